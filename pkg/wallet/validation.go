package wallet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	// addressRegex is a regular expression for validating the basic format of Ethereum-style addresses.
	// It checks for a "0x" prefix followed by exactly 40 hexadecimal characters.
	addressRegex = regexp.MustCompile("^0x[0-9a-fA-F]{40}$")

	// idRegex accepts unsigned base-10 integers without sign or exponent.
	idRegex = regexp.MustCompile("^[0-9]+$")
)

const (
	// MinDeadlineLead is the shortest allowed distance between now and a deadline
	MinDeadlineLead = time.Hour
	// MaxDeadlineLead is the longest allowed distance between now and a deadline
	MaxDeadlineLead = 30 * 24 * time.Hour

	// MinScore and MaxScore bound task scores
	MinScore = 0
	MaxScore = 100
)

// maxUint256 bounds every on-chain integer.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ValidateAddress checks that value is a 0x-prefixed 40 hex digit address.
// Mixed-case input must carry a valid EIP-55 checksum.
//
// Example:
//
//	addr, err := ValidateAddress("0x742d35Cc6634C0532925a3b844Bc454e4438f44e", "recipient")
//	if err != nil {
//	    return err
//	}
func ValidateAddress(value, field string) (common.Address, error) {
	if value == "" {
		return common.Address{}, NewValidationError(field, "is required")
	}

	if !addressRegex.MatchString(value) {
		return common.Address{}, NewValidationError(field, "invalid address format")
	}

	checksumAddr := common.HexToAddress(value)

	// If the address was provided with checksum, verify it matches
	hexPart := value[2:]
	if hexPart != strings.ToLower(hexPart) && hexPart != strings.ToUpper(hexPart) && value != checksumAddr.Hex() {
		return common.Address{}, NewValidationError(field, "invalid address checksum")
	}

	return checksumAddr, nil
}

// ValidateAmount parses a strictly positive integer amount in base units
// (wei). Plain digits and exponent notation such as "1e18" are accepted; the
// value must be integral and fit in a uint256. No float64 is involved.
func ValidateAmount(value, field string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, NewValidationError(field, "is required")
	}

	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, NewValidationError(field, "must be numeric")
	}

	return amountFromDecimal(d, field)
}

// ValidateTokenAmount parses a human readable token amount such as "1.5" and
// scales it by decimals into base units.
func ValidateTokenAmount(value string, decimals int32, field string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, NewValidationError(field, "is required")
	}

	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, NewValidationError(field, "must be numeric")
	}

	return amountFromDecimal(d.Shift(decimals), field)
}

func amountFromDecimal(d decimal.Decimal, field string) (*big.Int, error) {
	if !d.IsPositive() {
		return nil, NewValidationError(field, "must be greater than zero")
	}
	// 10^78 already exceeds uint256; refuse before materializing huge exponents
	if d.Exponent() > 78 {
		return nil, NewValidationError(field, "exceeds uint256 range")
	}
	if !d.Equal(d.Truncate(0)) {
		return nil, NewValidationError(field, "must be a whole number of base units")
	}

	amount := d.BigInt()
	if amount.Cmp(maxUint256) > 0 {
		return nil, NewValidationError(field, "exceeds uint256 range")
	}
	return amount, nil
}

// ValidateID parses a non-negative integer identifier.
func ValidateID(value, field string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, NewValidationError(field, "is required")
	}
	if !idRegex.MatchString(value) {
		return nil, NewValidationError(field, "must be a non-negative integer")
	}

	id, ok := new(big.Int).SetString(value, 10)
	if !ok || id.Cmp(maxUint256) > 0 {
		return nil, NewValidationError(field, "exceeds uint256 range")
	}
	return id, nil
}

// ValidateDeadline checks that deadline lies between one hour and thirty days
// from the current time.
func ValidateDeadline(deadline time.Time, field string) (time.Time, error) {
	return ValidateDeadlineAt(deadline, field, time.Now())
}

// ValidateDeadlineAt is ValidateDeadline evaluated against now.
func ValidateDeadlineAt(deadline time.Time, field string, now time.Time) (time.Time, error) {
	if deadline.IsZero() {
		return time.Time{}, NewValidationError(field, "is required")
	}
	if deadline.Before(now.Add(MinDeadlineLead)) {
		return time.Time{}, NewValidationError(field, "must be at least 1 hour in the future")
	}
	if deadline.After(now.Add(MaxDeadlineLead)) {
		return time.Time{}, NewValidationError(field, "must be at most 30 days in the future")
	}
	return deadline.UTC(), nil
}

// ValidateScore checks a score in [0, 100].
func ValidateScore(score int, field string) (uint8, error) {
	if score < MinScore || score > MaxScore {
		return 0, NewValidationError(field, fmt.Sprintf("must be between %d and %d", MinScore, MaxScore))
	}
	return uint8(score), nil
}

// ValidateString trims value and checks that its length in characters is in [min, max].
func ValidateString(value, field string, min, max int) (string, error) {
	value = strings.TrimSpace(value)
	length := utf8.RuneCountInString(value)

	if length == 0 && min > 0 {
		return "", NewValidationError(field, "is required")
	}
	if length < min || length > max {
		return "", NewValidationError(field, fmt.Sprintf("length must be between %d and %d characters", min, max))
	}
	return value, nil
}

// ValidateJSON accepts a JSON object or array, either as raw bytes or as a
// Go map, slice or struct, and returns its serialized form. The full
// serialization pass rejects reference cycles and unsupported values.
func ValidateJSON(value interface{}, field string) (json.RawMessage, error) {
	if value == nil {
		return nil, NewValidationError(field, "is required")
	}

	switch raw := value.(type) {
	case json.RawMessage:
		return validateRawJSON(raw, field)
	case []byte:
		return validateRawJSON(raw, field)
	case string:
		return validateRawJSON([]byte(raw), field)
	}

	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, NewValidationError(field, "is required")
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Map, reflect.Slice:
		if v.IsNil() {
			return nil, NewValidationError(field, "is required")
		}
	case reflect.Struct, reflect.Array:
	default:
		return nil, NewValidationError(field, "must be a JSON object or array")
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, NewValidationError(field, "is not serializable: "+err.Error())
	}
	// Custom marshalers such as time.Time turn structs into scalars.
	if len(encoded) == 0 || (encoded[0] != '{' && encoded[0] != '[') {
		return nil, NewValidationError(field, "must be a JSON object or array")
	}
	return encoded, nil
}

func validateRawJSON(raw []byte, field string) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, NewValidationError(field, "is required")
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return nil, NewValidationError(field, "must be a JSON object or array")
	}
	if !json.Valid(trimmed) {
		return nil, NewValidationError(field, "is not valid JSON")
	}

	var compacted bytes.Buffer
	if err := json.Compact(&compacted, trimmed); err != nil {
		return nil, NewValidationError(field, "is not valid JSON")
	}
	return compacted.Bytes(), nil
}
