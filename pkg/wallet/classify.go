package wallet

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

// DefaultRetryablePatterns are the node messages that mark a Blockchain
// failure as transient.
var DefaultRetryablePatterns = []string{
	"nonce too low",
	"network error",
	"connection error",
	"timeout",
	"gas estimation failed",
	"insufficient funds",
	"gas limit exceeded",
	"out of gas",
}

var (
	contractPatterns = []string{
		"execution reverted",
		"revert",
	}
	networkPatterns = []string{
		"econnrefused",
		"connection refused",
		"network error",
		"no such host",
		"connection reset",
		"network is unreachable",
	}
)

// Classifier maps raw failures onto the error taxonomy. It inspects error
// values and messages only and never talks to the node.
type Classifier struct {
	RetryablePatterns []string
}

// NewClassifier returns a classifier using patterns, or the defaults when
// patterns is empty.
func NewClassifier(patterns []string) *Classifier {
	if len(patterns) == 0 {
		patterns = DefaultRetryablePatterns
	}
	return &Classifier{RetryablePatterns: patterns}
}

var defaultClassifier = NewClassifier(nil)

// Classify maps err with the default retryable patterns.
func Classify(err error) *ErrorEnvelope {
	return defaultClassifier.Classify(err)
}

// Classify maps err onto an envelope. An envelope already present in the
// chain is returned as is.
func (c *Classifier) Classify(err error) *ErrorEnvelope {
	if err == nil {
		return nil
	}
	if env, ok := AsEnvelope(err); ok {
		return env
	}

	msg := strings.ToLower(err.Error())

	switch {
	case errors.Is(err, context.Canceled):
		return newEnvelope(KindNetwork, "operation cancelled", false, err)
	case containsAny(msg, contractPatterns):
		return newEnvelope(KindContract, revertMessage(err), false, err)
	case isNetworkFailure(err, msg):
		return newEnvelope(KindNetwork, err.Error(), true, err)
	}

	if status, ok := httpStatus(err); ok {
		retryable := status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
		if retryable {
			return newEnvelope(KindNetwork, err.Error(), true, err)
		}
		return newEnvelope(KindBlockchain, err.Error(), false, err)
	}

	return newEnvelope(KindBlockchain, err.Error(), containsAny(msg, c.RetryablePatterns), err)
}

// IsRetryable reports whether err would be retried under the default patterns.
func IsRetryable(err error) bool {
	env := Classify(err)
	return env != nil && env.Retryable
}

func isNetworkFailure(err error, msg string) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return containsAny(msg, networkPatterns)
}

func httpStatus(err error) (int, bool) {
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode, true
	}
	return 0, false
}

// revertMessage appends the decoded revert reason when the node only
// reported a bare "execution reverted".
func revertMessage(err error) string {
	msg := err.Error()
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return msg
	}
	hexData, ok := dataErr.ErrorData().(string)
	if !ok {
		return msg
	}
	reason, unpackErr := abi.UnpackRevert(common.FromHex(hexData))
	if unpackErr != nil || strings.Contains(msg, reason) {
		return msg
	}
	return msg + ": " + reason
}

func containsAny(msg string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(msg, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
