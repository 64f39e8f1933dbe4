package amazonpay

import (
	"errors"
	"fmt"
)

var ErrNotConfigured = errors.New("amazon pay client is not configured")

type APIError struct {
	Operation  string
	StatusCode int
	ReasonCode string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("amazon pay %s failed: status=%d reason=%s message=%s", e.Operation, e.StatusCode, e.ReasonCode, e.Message)
}

// HasReasonCode reports whether err is an APIError carrying reasonCode.
func HasReasonCode(err error, reasonCode string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.ReasonCode == reasonCode
}
