// Package services exposes the task platform operations to an outer
// surface. Each service validates raw inputs, drives the execution layer and
// reports a uniform Response carrying an HTTP-style status.
package services

import (
	"errors"
	"net/http"
	"strings"

	"github.com/lisanmuaddib/taskchain/pkg/ratelimit"
	"github.com/lisanmuaddib/taskchain/pkg/wallet"
)

// Response is the result envelope handed to the outer surface.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
	Status  int         `json:"-"`
}

// ErrorBody is the caller-facing part of an ErrorEnvelope. The raw cause is
// never included.
type ErrorBody struct {
	Kind      wallet.ErrorKind `json:"kind"`
	Message   string           `json:"message"`
	Field     string           `json:"field,omitempty"`
	Retryable bool             `json:"retryable"`
	TxHash    string           `json:"txHash,omitempty"`
}

// Success wraps data with the given status.
func Success(status int, data interface{}) Response {
	return Response{Success: true, Data: data, Status: status}
}

// Failure converts err into a failed response.
func Failure(err error) Response {
	env := envelopeFor(err)

	body := &ErrorBody{
		Kind:      env.Kind,
		Message:   env.Message,
		Field:     env.Field,
		Retryable: env.Retryable,
	}
	if env.TxHash != nil {
		body.TxHash = env.TxHash.Hex()
	}

	return Response{Error: body, Status: StatusFor(env)}
}

func envelopeFor(err error) *wallet.ErrorEnvelope {
	if errors.Is(err, ratelimit.ErrLimitExceeded) {
		return wallet.NewValidationError("identity", ratelimit.ErrLimitExceeded.Error())
	}
	return wallet.Classify(err)
}

var (
	notFoundPatterns     = []string{"not found", "does not exist", "returned no data", "not registered"}
	unauthorizedPatterns = []string{"unauthorized", "not authorized", "not authenticated"}
	forbiddenPatterns    = []string{"not owner", "not the owner", "only owner", "caller is not", "forbidden", "not verified"}
)

// StatusFor maps an envelope onto an HTTP status. Validation failures are
// 400 except throttling (429); contract failures are 404, 401 or 403 when
// their message says so; everything else is 500.
func StatusFor(env *wallet.ErrorEnvelope) int {
	if env == nil {
		return http.StatusOK
	}

	msg := strings.ToLower(env.Message)

	switch env.Kind {
	case wallet.KindValidation:
		if strings.Contains(msg, ratelimit.ErrLimitExceeded.Error()) {
			return http.StatusTooManyRequests
		}
		return http.StatusBadRequest
	case wallet.KindContract:
		switch {
		case matches(msg, notFoundPatterns):
			return http.StatusNotFound
		case matches(msg, unauthorizedPatterns):
			return http.StatusUnauthorized
		case matches(msg, forbiddenPatterns):
			return http.StatusForbidden
		}
	}
	return http.StatusInternalServerError
}

func matches(msg string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
