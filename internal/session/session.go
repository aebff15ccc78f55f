// Package session holds the authoritative client-side record of one loan
// application conversation: the stage, the transcript, collected applicant
// data, uploaded documents, and the eligibility and decision results.
//
// The session is pure data. It enforces nothing beyond its write-once
// guards; all transition legality lives in the orchestrator, which is the
// sole writer.
package session

import (
	"errors"
	"maps"
	"time"

	"github.com/google/uuid"
)

// Stage is the discrete phase of the loan workflow.
type Stage string

const (
	StageGreeting    Stage = "greeting"
	StageEligibility Stage = "eligibility"
	StageDocuments   Stage = "documents"
	StageComplete    Stage = "complete"
)

// Role identifies the author of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one immutable transcript entry. The ordered message sequence
// is the canonical record of the conversation.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// EligibilityResult is the backend's approval outcome. ApprovedAmount and
// InterestRate are meaningful when Eligible is true; MaxEligible carries
// the counter-offer when it is false.
type EligibilityResult struct {
	Eligible       bool    `json:"eligible"`
	ApprovedAmount int64   `json:"approved_amount"`
	InterestRate   float64 `json:"interest_rate"`
	MaxEligible    int64   `json:"max_eligible"`
}

// DocumentRecord is one upload result as reported by the backend.
type DocumentRecord struct {
	Type     string `json:"type"`
	Verified bool   `json:"verified"`
	Message  string `json:"message"`
}

// DecisionStatus is the terminal outcome class of an application.
type DecisionStatus string

const (
	DecisionApproved     DecisionStatus = "approved"
	DecisionPending      DecisionStatus = "pending"
	DecisionRejected     DecisionStatus = "rejected"
	DecisionManualReview DecisionStatus = "manual_review"
)

// Decision is the backend's final verdict. Narrative is the primary
// user-facing text, resolved once at ingestion from the backend's
// decision/message fallback pair; Note carries the secondary text when
// both were present.
type Decision struct {
	Status          DecisionStatus `json:"status"`
	Narrative       string         `json:"narrative"`
	Note            string         `json:"note,omitempty"`
	ProcessingTime  string         `json:"processing_time"`
	TraditionalTime string         `json:"traditional_time,omitempty"`
}

// Write-once guard violations. These indicate an orchestrator logic fault,
// not a user-correctable condition.
var (
	ErrEligibilitySet = errors.New("eligibility result already set")
	ErrDecisionSet    = errors.New("decision already set")
)

// Session is one end-to-end application instance. Not safe for concurrent
// use; the orchestrator serializes all access on its event loop.
type Session struct {
	id          string
	stage       Stage
	messages    []Message
	userData    map[string]any
	documents   []DocumentRecord
	eligibility *EligibilityResult
	decision    *Decision
}

// New creates a session in the greeting stage with a fresh opaque id.
func New() *Session {
	return &Session{
		id:       "session_" + uuid.NewString(),
		stage:    StageGreeting,
		userData: map[string]any{},
	}
}

// ID returns the stable session identifier sent on every backend call.
func (s *Session) ID() string { return s.id }

// Stage returns the current workflow stage.
func (s *Session) Stage() Stage { return s.stage }

// SetStage records a stage reported by the backend or decided by the
// orchestrator.
func (s *Session) SetStage(st Stage) { s.stage = st }

// Append adds a message to the transcript, stamping it with the current
// time. The transcript is append-only.
func (s *Session) Append(role Role, content string) {
	s.messages = append(s.messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
}

// ReplaceUserData swaps the collected application fields wholesale. Each
// successful chat response carries the full field set, so there is no
// merging.
func (s *Session) ReplaceUserData(data map[string]any) {
	s.userData = maps.Clone(data)
	if s.userData == nil {
		s.userData = map[string]any{}
	}
}

// AddDocument appends an upload record. Re-uploads of an already-verified
// type are appended too; completion counting is by distinct type.
func (s *Session) AddDocument(rec DocumentRecord) {
	s.documents = append(s.documents, rec)
}

// DistinctVerifiedDocs counts the distinct document types with at least
// one verified upload. The decision call gates on this reaching three.
func (s *Session) DistinctVerifiedDocs() int {
	seen := map[string]bool{}
	for _, d := range s.documents {
		if d.Verified {
			seen[d.Type] = true
		}
	}
	return len(seen)
}

// HasVerified reports whether the given document type has a verified
// upload.
func (s *Session) HasVerified(docType string) bool {
	for _, d := range s.documents {
		if d.Verified && d.Type == docType {
			return true
		}
	}
	return false
}

// Eligibility returns the recorded eligibility result, or nil.
func (s *Session) Eligibility() *EligibilityResult {
	return s.eligibility
}

// SetEligibility records the eligibility result. It is write-once.
func (s *Session) SetEligibility(res EligibilityResult) error {
	if s.eligibility != nil {
		return ErrEligibilitySet
	}
	s.eligibility = &res
	return nil
}

// Decision returns the recorded final decision, or nil.
func (s *Session) Decision() *Decision {
	return s.decision
}

// SetDecision records the final decision. It is write-once and terminal.
func (s *Session) SetDecision(dec Decision) error {
	if s.decision != nil {
		return ErrDecisionSet
	}
	s.decision = &dec
	return nil
}

// Snapshot is an immutable projection of the session for presentation.
// Busy is the orchestrator's in-flight flag; it is not part of the
// session data itself and is filled in at emission time.
type Snapshot struct {
	ID          string
	Stage       Stage
	Busy        bool
	Messages    []Message
	UserData    map[string]any
	Documents   []DocumentRecord
	Eligibility *EligibilityResult
	Decision    *Decision
	LetterPath  string
}

// Snapshot copies the session into a projection the presentation layer
// can read without synchronizing with the orchestrator.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		ID:        s.id,
		Stage:     s.stage,
		Messages:  append([]Message(nil), s.messages...),
		UserData:  maps.Clone(s.userData),
		Documents: append([]DocumentRecord(nil), s.documents...),
	}
	if s.eligibility != nil {
		e := *s.eligibility
		snap.Eligibility = &e
	}
	if s.decision != nil {
		d := *s.decision
		snap.Decision = &d
	}
	return snap
}
