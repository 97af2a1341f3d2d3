// Package wallet is the transaction execution layer: it validates inputs,
// sizes gas, prices fees, submits contract calls with classified retries and
// waits for their confirmation.
package wallet

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrorKind is the closed failure taxonomy shared by every layer.
type ErrorKind string

const (
	// KindValidation is an input rejected before reaching the node
	KindValidation ErrorKind = "Validation"
	// KindContract is a contract-level revert
	KindContract ErrorKind = "Contract"
	// KindBlockchain covers node-side failures such as nonce or funding problems
	KindBlockchain ErrorKind = "Blockchain"
	// KindNetwork is an unreachable node, a dropped connection or a timeout
	KindNetwork ErrorKind = "Network"
)

// ErrOperationTimeout is wrapped by the envelope raised when an operation
// exceeds its overall time budget.
var ErrOperationTimeout = errors.New("operation timeout")

// ErrorEnvelope is the normalized error returned to callers. It is built once
// where the failure is observed and is passed through unchanged afterwards.
type ErrorEnvelope struct {
	Kind      ErrorKind
	Message   string
	Retryable bool

	// Field names the offending input of a validation failure
	Field string

	// TxHash is set when a signed transaction may have reached the node
	TxHash *common.Hash

	// Err is the raw cause, kept for logs only
	Err error
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *ErrorEnvelope) Unwrap() error {
	return e.Err
}

// NewValidationError creates a non-retryable validation envelope for field.
func NewValidationError(field, message string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Kind:    KindValidation,
		Field:   field,
		Message: message,
	}
}

func newEnvelope(kind ErrorKind, message string, retryable bool, err error) *ErrorEnvelope {
	return &ErrorEnvelope{
		Kind:      kind,
		Message:   message,
		Retryable: retryable,
		Err:       err,
	}
}

// AsEnvelope extracts an envelope from an error chain.
func AsEnvelope(err error) (*ErrorEnvelope, bool) {
	var env *ErrorEnvelope
	if errors.As(err, &env) {
		return env, true
	}
	return nil, false
}

// IsKind reports whether err carries an envelope of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	env, ok := AsEnvelope(err)
	return ok && env.Kind == kind
}
