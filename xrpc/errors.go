package xrpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Configuration errors, returned before any network activity.
var (
	// ErrNoHost means the client has no host and the call supplied no
	// session service endpoint to route to.
	ErrNoHost = errors.New("xrpc: no host configured")

	// ErrNoSession means an endpoint that requires authentication was
	// called without a session.
	ErrNoSession = errors.New("xrpc: no session provided")
)

// Common error codes returned by AT Protocol services.
const (
	ErrCodeInvalidRequest = "InvalidRequest"
	ErrCodeAuthRequired   = "AuthenticationRequired"
	ErrCodeExpiredToken   = "ExpiredToken"
	ErrCodeInvalidToken   = "InvalidToken"
	ErrCodeRecordNotFound = "RecordNotFound"
	ErrCodeRateLimited    = "RateLimitExceeded"
	ErrCodeInternalError  = "InternalServerError"
)

// Error is a structured XRPC error response. Servers report failures as a
// non-2xx status with a {"error", "message"} JSON body; both are preserved
// here along with the HTTP status. Extract it with errors.As:
//
//	var xerr *xrpc.Error
//	if errors.As(err, &xerr) && xerr.Code == xrpc.ErrCodeExpiredToken {
//		// refresh and retry
//	}
type Error struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int `json:"-"`
	// Code is the protocol error name, e.g. "InvalidRequest".
	Code string `json:"error"`
	// Message is the server's human-readable description, if any.
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("xrpc: %s (HTTP %d)", e.Code, e.StatusCode)
	}
	return fmt.Sprintf("xrpc: %s (HTTP %d): %s", e.Code, e.StatusCode, e.Message)
}

// IsErrorCode reports whether err carries an *Error with the given protocol
// error code anywhere in its chain.
func IsErrorCode(err error, code string) bool {
	var xerr *Error
	return errors.As(err, &xerr) && xerr.Code == code
}

func decodeError(status int, method string, body []byte) error {
	xerr := &Error{StatusCode: status}
	if err := json.Unmarshal(body, xerr); err != nil || xerr.Code == "" {
		// Not a structured XRPC error body; surface the raw payload.
		return fmt.Errorf("xrpc: %s returned HTTP %d: %s", method, status, strings.TrimSpace(string(body)))
	}
	return xerr
}
