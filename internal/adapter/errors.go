package adapter

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized is returned when the server rejects the bearer token.
var ErrUnauthorized = errors.New("client unauthorized")

// StatusError is a non-2xx response mapped to an error, preserving the status
// code so callers can classify it.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Code, e.Message)
}

// IsTransient reports whether err is worth retrying on a later cycle:
// transport-level failures (timeouts, refused connections) and 5xx/429
// responses. Unauthorized and other 4xx responses are permanent until the
// input changes.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnauthorized) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= http.StatusInternalServerError || se.Code == http.StatusTooManyRequests
	}

	// No status attached: the request never completed.
	return true
}
