package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/drfirst/fhir-chat/internal/fhir/r4"
)

// Error codes carried by RequestError.
const (
	CodeNotFound        = "NOT_FOUND"
	CodeNetworkError    = "NETWORK_ERROR"
	CodeTimeoutError    = "TIMEOUT_ERROR"
	CodeCircuitOpen     = "CIRCUIT_OPEN"
	CodeInvalidResponse = "INVALID_RESPONSE"
)

// HTTPCode returns the code used for a non-2xx status other than 404.
func HTTPCode(status int) string {
	return fmt.Sprintf("HTTP_%d", status)
}

// RequestError describes a failed FHIR search.
type RequestError struct {
	Code       string
	Message    string
	StatusCode int         // 0 when no response was received
	Details    interface{} // upstream body: decoded JSON when possible, else a string
}

func (e *RequestError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fhir request failed: %s (%d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("fhir request failed: %s: %s", e.Code, e.Message)
}

// HTTPStatus is the status a caller should answer with: the upstream status
// when there was one, 500 otherwise.
func (e *RequestError) HTTPStatus() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// AsRequestError unwraps err into a *RequestError.
func AsRequestError(err error) (*RequestError, bool) {
	var re *RequestError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// IsServerHealthy is a breaker classifier: success, and 4xx answers from a
// responsive server, do not count as failures.
func IsServerHealthy(err error) bool {
	if err == nil {
		return true
	}
	re, ok := AsRequestError(err)
	if !ok {
		return false
	}
	return re.StatusCode >= 400 && re.StatusCode < 500
}

// statusError builds the error for a non-2xx response.
func statusError(status int, body []byte) *RequestError {
	code := HTTPCode(status)
	if status == http.StatusNotFound {
		code = CodeNotFound
	}

	re := &RequestError{Code: code, StatusCode: status}

	var outcome r4.OperationOutcome
	if len(body) > 0 && json.Unmarshal(body, &outcome) == nil {
		re.Message = outcome.Message()
	}
	if re.Message == "" {
		re.Message = http.StatusText(status)
	}
	if re.Message == "" {
		re.Message = fmt.Sprintf("status %d", status)
	}

	if json.Valid(body) {
		re.Details = json.RawMessage(body)
	} else if len(body) > 0 {
		re.Details = string(body)
	}
	return re
}
