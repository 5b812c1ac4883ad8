package shopsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	// ErrTimeout is returned when no response arrives within the client's
	// timeout. It is always joined with context.DeadlineExceeded.
	ErrTimeout = errors.New("shopsdk: request timed out")

	// ErrSessionExpired is returned when a 401 could not be recovered by a
	// token refresh. Stored credentials have been cleared by then.
	ErrSessionExpired = errors.New("shopsdk: session expired, please log in again")
)

// ============================================================================
// APIError - non-2xx responses
// ============================================================================

// APIError is returned for any non-2xx response other than a recovered 401.
type APIError struct {
	// StatusCode is the HTTP status of the response
	StatusCode int

	// Message is the backend's message, or the status text when absent
	Message string

	// Code is the backend's machine-readable error code, if any
	Code string

	// Details carries per-field validation messages when the backend sent them
	Details map[string]string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an *APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool { return IsStatus(err, http.StatusNotFound) }

// parseErrorResponse builds an APIError from a failed response body. The
// backend uses {"message"} or {"error"}, and validation errors arrive as
// either a field map or a list of {field, message}.
func parseErrorResponse(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var payload struct {
		Message string          `json:"message"`
		Error   string          `json:"error"`
		Code    string          `json:"code"`
		Errors  json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Message = payload.Message
		if apiErr.Message == "" {
			apiErr.Message = payload.Error
		}
		apiErr.Code = payload.Code
		apiErr.Details = parseFieldErrors(payload.Errors)
	}

	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

func parseFieldErrors(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}

	var asMap map[string]string
	if err := json.Unmarshal(raw, &asMap); err == nil && len(asMap) > 0 {
		return asMap
	}

	var asList []struct {
		Field   string `json:"field"`
		Path    string `json:"path"`
		Message string `json:"message"`
		Msg     string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &asList); err != nil || len(asList) == 0 {
		return nil
	}

	fields := make(map[string]string, len(asList))
	for _, e := range asList {
		name := e.Field
		if name == "" {
			name = e.Path
		}
		msg := e.Message
		if msg == "" {
			msg = e.Msg
		}
		if name != "" {
			fields[name] = msg
		}
	}
	return fields
}

// ============================================================================
// Decode and contract errors
// ============================================================================

// DecodeError is returned when a 2xx body is not valid JSON.
type DecodeError struct {
	Path string
	Body string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode response from %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ContractError is returned when a decoded response is missing fields the
// client depends on, i.e. the backend contract drifted.
type ContractError struct {
	Path string
	Err  error
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("unexpected response from %s: %v", e.Path, e.Err)
}

func (e *ContractError) Unwrap() error { return e.Err }

// ============================================================================
// Validation errors
// ============================================================================

// ValidationErrors maps request field names to messages. Requests are
// validated before they leave the client.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+v[k])
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// ============================================================================
// MFA challenge
// ============================================================================

// MFARequiredError is returned by Login when the account has MFA enabled.
// Complete the login with AuthService.VerifyMFA using TempToken.
type MFARequiredError struct {
	TempToken string
}

func (e *MFARequiredError) Error() string {
	return "multi-factor authentication required"
}
