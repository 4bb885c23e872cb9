package spider

import (
	"errors"
	"fmt"

	"spider-home/internal/domain"
)

var (
	ErrAuthentication   = errors.New("spider: authentication failed")
	ErrRemoteService    = errors.New("spider: remote service error")
	ErrDeviceOffline    = errors.New("spider: device is offline")
	ErrDeviceNotFound   = errors.New("spider: device not found")
	ErrPropertyNotFound = domain.ErrPropertyNotFound
)

// RemoteError is a failed exchange with the Spider API. StatusCode is zero
// when no response was received.
type RemoteError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("spider API request failed: %v", e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("spider API error %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("spider API error %d", e.StatusCode)
}

func (e *RemoteError) Unwrap() error { return e.Err }

func (e *RemoteError) Is(target error) bool { return target == ErrRemoteService }

func isUnauthorized(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.StatusCode == 401
}
