package workos

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for use with errors.Is()
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("resource not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrServerError  = errors.New("server error")
	ErrInvalidInput = errors.New("invalid input")
)

// APIError is an error response from the WorkOS API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("workos api error (status %d, code %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("workos api error (status %d): %s", e.StatusCode, e.Message)
}

// Is maps the status code to a sentinel.
func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return target == ErrBadRequest
	case http.StatusUnauthorized:
		return target == ErrUnauthorized
	case http.StatusForbidden:
		return target == ErrForbidden
	case http.StatusNotFound:
		return target == ErrNotFound
	case http.StatusTooManyRequests:
		return target == ErrRateLimited
	}
	if e.StatusCode >= 500 && e.StatusCode < 600 {
		return target == ErrServerError
	}
	return false
}

// ValidationError reports a bad argument before any request is sent.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns ErrInvalidInput.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// newAPIErrorFromResponse extracts the message from either error shape WorkOS
// returns: {"code","message"} or the OAuth {"error","error_description"}.
func newAPIErrorFromResponse(status int, body []byte, requestID string) *APIError {
	apiErr := &APIError{StatusCode: status, Message: string(body), RequestID: requestID}

	var resp struct {
		Code             string `json:"code"`
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if json.Unmarshal(body, &resp) == nil {
		switch {
		case resp.Message != "":
			apiErr.Code, apiErr.Message = resp.Code, resp.Message
		case resp.Error != "":
			apiErr.Code, apiErr.Message = resp.Error, resp.ErrorDescription
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
