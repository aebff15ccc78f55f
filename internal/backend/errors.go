package backend

import (
	"errors"
	"fmt"
)

// Kind classifies a transport failure.
type Kind int

const (
	// KindNetwork covers unreachable hosts and non-2xx statuses.
	KindNetwork Kind = iota
	// KindTimeout means the call's deadline elapsed before a response.
	KindTimeout
	// KindProtocol means the backend answered with a body we could not
	// parse.
	KindProtocol
	// KindVerification means the backend explicitly rejected the request
	// content (e.g. an unverifiable document).
	KindVerification
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindProtocol:
		return "protocol"
	case KindVerification:
		return "verification"
	}
	return "unknown"
}

// Error is the uniform failure signal of the transport adapter. Op names
// the remote operation ("chat", "eligibility", "upload", "decision",
// "letter").
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func is(err error, k Kind) bool {
	var be *Error
	return errors.As(err, &be) && be.Kind == k
}

// IsTimeout reports whether err is a deadline-exceeded transport failure.
func IsTimeout(err error) bool { return is(err, KindTimeout) }

// IsNetwork reports whether err is a connectivity or HTTP-status failure.
func IsNetwork(err error) bool { return is(err, KindNetwork) }

// IsVerification reports whether the backend rejected the request content.
func IsVerification(err error) bool { return is(err, KindVerification) }
