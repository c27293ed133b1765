package clients

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// GenericFailureMessage is shown when the server response carries no readable message.
const GenericFailureMessage = "request failed"

// ErrUnauthorized is returned for 401 responses and for authenticated calls made
// without a session token.
var ErrUnauthorized = errors.New("session expired, please log in again")

// TransportError means the request never completed (dial, TLS, timeout, reset).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError is a non-2xx response (or a 2xx response with success=false).
// Parsed is false when the body was not JSON and Message is the generic fallback.
type APIError struct {
	Op      string
	Status  int
	Message string
	Parsed  bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
}

// DisplayMessage converts any client error into the string shown inline to the user.
// Server-provided messages are returned verbatim.
func DisplayMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrUnauthorized) {
		return ErrUnauthorized.Error()
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return "network error, please check your connection and try again"
	}

	return err.Error()
}

func fallbackMessage(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return GenericFailureMessage
	}
	return fmt.Sprintf("%s (%s)", GenericFailureMessage, text)
}
