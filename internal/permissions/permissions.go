// Package permissions checks OS-level access the recorder depends on.
package permissions

import "errors"

// ErrMicrophoneDenied means the OS has not granted microphone access.
var ErrMicrophoneDenied = errors.New("microphone permission not granted")

// Status mirrors the platform authorization states.
type Status int

const (
	NotDetermined Status = iota
	Restricted
	Denied
	Authorized
)

func (s Status) String() string {
	switch s {
	case NotDetermined:
		return "not determined"
	case Restricted:
		return "restricted"
	case Denied:
		return "denied"
	case Authorized:
		return "authorized"
	default:
		return "unknown"
	}
}
