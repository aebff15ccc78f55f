package orchestrator

import (
	"github.com/nmehta/loanassist/internal/backend"
	"github.com/nmehta/loanassist/internal/document"
	"github.com/nmehta/loanassist/internal/letter"
	"github.com/nmehta/loanassist/internal/session"
)

// event is anything the loop can process: a user intent, a resolved
// network call, or a pacing timer firing. Events are applied strictly in
// arrival order on the loop goroutine.
type event interface{ isEvent() }

// userMessage is the send-message intent.
type userMessage struct {
	text string
}

// chatResult is a resolved chat call.
type chatResult struct {
	resp backend.ChatResponse
	err  error
}

// eligibilityDue fires after the pacing delay that follows the backend
// signalling readiness for the eligibility check.
type eligibilityDue struct{}

// eligibilityResult is a resolved eligibility call.
type eligibilityResult struct {
	res session.EligibilityResult
	err error
}

// documentsDue fires after the pacing delay that follows an eligible
// result; it advances the session into the documents stage.
type documentsDue struct{}

// uploadRequest is the upload intent, carrying one or more files keyed by
// document type. Distinct types are uploaded concurrently.
type uploadRequest struct {
	files map[document.Type]string
}

// uploadResult is one resolved document upload.
type uploadResult struct {
	docType document.Type
	rec     session.DocumentRecord
	err     error
}

// decisionDue fires after the pacing delay that follows the third
// distinct verified document.
type decisionDue struct{}

// decisionResult is the resolved final-decision call.
type decisionResult struct {
	dec session.Decision
	err error
}

// letterRequest is the download-letter intent.
type letterRequest struct{}

// letterResult is the resolved letter fetch-and-save.
type letterResult struct {
	info letter.Info
	err  error
}

// retry is the manual retry intent; it re-arms whichever guarded call
// failed for the current stage.
type retry struct{}

func (userMessage) isEvent()       {}
func (chatResult) isEvent()        {}
func (eligibilityDue) isEvent()    {}
func (eligibilityResult) isEvent() {}
func (documentsDue) isEvent()      {}
func (uploadRequest) isEvent()     {}
func (uploadResult) isEvent()      {}
func (decisionDue) isEvent()       {}
func (decisionResult) isEvent()    {}
func (letterRequest) isEvent()     {}
func (letterResult) isEvent()      {}
func (retry) isEvent()             {}
