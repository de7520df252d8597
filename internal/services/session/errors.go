package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRefreshToken means a refresh was attempted with nothing to refresh
	ErrNoRefreshToken = errors.New("no refresh token")
	// ErrRefreshRejected means the backend refused the refresh call
	ErrRefreshRejected = errors.New("refresh rejected by server")
	// ErrMalformedRefreshResponse means the backend did not rotate both tokens
	ErrMalformedRefreshResponse = fmt.Errorf("%w: refresh response missing tokens", ErrRefreshRejected)
	// ErrSessionExpired is the terminal, user-visible end of a session
	ErrSessionExpired = errors.New("session expired")
)

// SessionExpiredError is returned to callers whose request ended the session.
// StatusCode is the backend status that triggered it, or 0 when the session
// ended before the request was sent.
type SessionExpiredError struct {
	StatusCode int
	Cause      error
}

func (e *SessionExpiredError) Error() string {
	msg := ErrSessionExpired.Error()
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *SessionExpiredError) Is(target error) bool {
	return target == ErrSessionExpired
}

func (e *SessionExpiredError) Unwrap() error {
	return e.Cause
}
