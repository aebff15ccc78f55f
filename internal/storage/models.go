package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Application is the server-side record of one loan application session.
// FieldsJSON holds the collected applicant data; EligibilityJSON holds
// the scored result once the check has run, empty before that.
type Application struct {
	ID              string
	Stage           string
	FieldsJSON      string
	EligibilityJSON string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Message is one transcript entry of a session.
type Message struct {
	ID        int64
	SessionID string
	Role      string // "user" or "assistant"
	Content   string
	CreatedAt time.Time
}

// Document is one upload verification result attached to a session.
type Document struct {
	ID        int64
	SessionID string
	Type      string
	Verified  bool
	Message   string
	CreatedAt time.Time
}
