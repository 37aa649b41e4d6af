package checkoutsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/checkout/pkg/httpx"
)

// ErrEmptySession is returned when the gateway answers a session request
// without a session id.
var ErrEmptySession = errors.New("gateway returned an empty session id")

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	// Operation names the call, e.g. "3DS authenticate".
	Operation string

	// StatusCode is the HTTP status code returned.
	StatusCode int

	// Code and Description are filled when the body carried a JSON error.
	Code        string
	Description string
}

// Error implements the error interface. The description stays out of the
// message; it is gateway supplied and may be shown to shoppers.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s failed (%d)", e.Operation, e.StatusCode)
}

// IsStatus reports whether err is an *APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// parseErrorResponse builds an *APIError from a failed response body,
// extracting {"error","error_description"} when present.
func parseErrorResponse(operation string, status int, body []byte) error {
	apiErr := &APIError{Operation: operation, StatusCode: status}

	var errBody httpx.ErrorBody
	if err := json.Unmarshal(body, &errBody); err == nil && errBody.Error != "" {
		apiErr.Code = errBody.Error
		apiErr.Description = errBody.ErrorDescription
		return apiErr
	}

	// Some upstream errors come back as {"message": "..."}.
	var msgBody struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &msgBody); err == nil && msgBody.Message != "" {
		apiErr.Description = strings.TrimSpace(msgBody.Message)
	}

	return apiErr
}
