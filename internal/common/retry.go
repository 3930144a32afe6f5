package common

import (
	"context"
	"errors"
	"strings"
)

var permanentErrors = []string{
	"invalid domain",
	"permission denied",
	"unauthorized",
	"forbidden",
}

// IsRetryable determines if an error should be retried.
// Typed errors are classified by type; other errors by their message.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		switch appErr.Type {
		case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeStorage:
			return true
		default:
			return false
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, permanentErr := range permanentErrors {
		if strings.Contains(errStr, permanentErr) {
			return false
		}
	}

	// Default to retryable for unknown errors
	return true
}
