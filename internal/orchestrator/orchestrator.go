// Package orchestrator is the client-side state machine of the loan
// application workflow. It owns the session, sequences the dependent
// backend calls (chat, eligibility, document uploads, final decision),
// and enforces the single-fire guards that keep those calls from
// duplicating.
//
// All state lives behind one event loop: intents and resolved network
// calls are posted as events and applied strictly in arrival order, so
// the session has exactly one writer and the eligibility/decision latches
// are naturally atomic.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nmehta/loanassist/internal/backend"
	"github.com/nmehta/loanassist/internal/document"
	"github.com/nmehta/loanassist/internal/letter"
	"github.com/nmehta/loanassist/internal/session"
)

// Backend is the transport surface the orchestrator drives. Satisfied by
// *backend.Client; tests substitute function-field fakes.
type Backend interface {
	Chat(ctx context.Context, sessionID, message string) (backend.ChatResponse, error)
	CheckEligibility(ctx context.Context, sessionID string) (session.EligibilityResult, error)
	UploadDocument(ctx context.Context, sessionID, docType, filename string, r io.Reader) (session.DocumentRecord, error)
	RequestDecision(ctx context.Context, sessionID string) (session.Decision, error)
	GenerateLetter(ctx context.Context, approvedAmount int64, interestRate float64) ([]byte, error)
}

// Pacing holds the deliberate UI delays between dependent messages. They
// are readability sequencing, not correctness mechanisms; zero values are
// valid and used by tests and headless mode.
type Pacing struct {
	Eligibility    time.Duration // chat signals readiness -> eligibility call
	DocumentPrompt time.Duration // eligible result -> document request prompt
	Decision       time.Duration // third verified document -> decision call
}

// DefaultPacing mirrors the original conversation rhythm.
func DefaultPacing() Pacing {
	return Pacing{
		Eligibility:    1500 * time.Millisecond,
		DocumentPrompt: 2 * time.Second,
		Decision:       2 * time.Second,
	}
}

// Config wires an Orchestrator.
type Config struct {
	Backend   Backend
	Pacing    Pacing
	LetterDir string
	Logger    *slog.Logger // nil means slog.Default
}

const greeting = "Hello! I'm your loan assistant. I can help you get a personal " +
	"loan approved in just a few minutes. What type of loan are you looking for today?"

// Orchestrator runs the workflow for one session. Create with New, start
// the loop with Run, then drive it through the intent methods.
type Orchestrator struct {
	backend   Backend
	pacing    Pacing
	letterDir string
	log       *slog.Logger

	sess *session.Session

	events  chan event
	updates chan session.Snapshot
	latest  atomic.Pointer[session.Snapshot]

	// Loop-local state; touched only by the Run goroutine.
	inflight             int
	pending              int
	uploading            map[document.Type]bool
	eligibilityRequested bool
	decisionRequested    bool
	letterPath           string
}

// New creates an orchestrator with a fresh session in the greeting stage.
func New(cfg Config) *Orchestrator {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	o := &Orchestrator{
		backend:   cfg.Backend,
		pacing:    cfg.Pacing,
		letterDir: cfg.LetterDir,
		log:       log,
		sess:      session.New(),
		events:    make(chan event, 256),
		updates:   make(chan session.Snapshot, 128),
		uploading: map[document.Type]bool{},
	}
	snap := o.sess.Snapshot()
	o.latest.Store(&snap)
	return o
}

// SessionID returns the session identifier sent on every backend call.
func (o *Orchestrator) SessionID() string { return o.sess.ID() }

// Updates delivers a snapshot after every applied event. Slow consumers
// lose intermediate snapshots, never the latest one.
func (o *Orchestrator) Updates() <-chan session.Snapshot { return o.updates }

// Current returns the most recently emitted snapshot.
func (o *Orchestrator) Current() session.Snapshot { return *o.latest.Load() }

// SendMessage submits one chat turn. Ignored while a request is in flight
// or after the workflow completes; the presentation layer disables input
// in both cases, this is the backstop.
func (o *Orchestrator) SendMessage(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	o.enqueue(userMessage{text: text})
}

// UploadDocument submits one document file for the given type.
func (o *Orchestrator) UploadDocument(t document.Type, path string) {
	o.enqueue(uploadRequest{files: map[document.Type]string{t: path}})
}

// UploadDocuments submits several documents at once; distinct types are
// uploaded concurrently.
func (o *Orchestrator) UploadDocuments(files map[document.Type]string) {
	if len(files) == 0 {
		return
	}
	o.enqueue(uploadRequest{files: files})
}

// Retry re-arms the guarded call that failed for the current stage: the
// eligibility check while in the eligibility stage, the decision call
// while in the documents stage with all documents verified.
func (o *Orchestrator) Retry() {
	o.enqueue(retry{})
}

// DownloadLetter fetches and saves the sanction letter. Available only
// after an approved decision; a purely additive side action.
func (o *Orchestrator) DownloadLetter() {
	o.enqueue(letterRequest{})
}

func (o *Orchestrator) enqueue(ev event) {
	select {
	case o.events <- ev:
	default:
		// The loop is wedged or gone; dropping beats blocking the UI.
		o.log.Warn("event queue full, dropping intent", "event", fmt.Sprintf("%T", ev))
	}
}

// Run processes events until ctx is cancelled. It must be called exactly
// once; every session mutation happens on this goroutine.
func (o *Orchestrator) Run(ctx context.Context) {
	o.sess.Append(session.RoleAssistant, greeting)
	o.emit()

	for {
		select {
		case <-ctx.Done():
			close(o.updates)
			return
		case ev := <-o.events:
			o.handle(ctx, ev)
			o.emit()
		}
	}
}

func (o *Orchestrator) busy() bool { return o.inflight+o.pending > 0 }

func (o *Orchestrator) emit() {
	snap := o.sess.Snapshot()
	snap.Busy = o.busy()
	snap.LetterPath = o.letterPath
	o.latest.Store(&snap)

	// Drop the oldest queued snapshot when the consumer lags.
	select {
	case o.updates <- snap:
	default:
		select {
		case <-o.updates:
		default:
		}
		select {
		case o.updates <- snap:
		default:
		}
	}
}

// post delivers an event from a worker goroutine back into the loop.
func (o *Orchestrator) post(ctx context.Context, ev event) {
	select {
	case o.events <- ev:
	case <-ctx.Done():
	}
}

// after schedules an event on the loop once the pacing delay elapses.
// The delay never blocks the loop.
func (o *Orchestrator) after(ctx context.Context, d time.Duration, ev event) {
	o.pending++
	if d <= 0 {
		o.post(ctx, ev)
		return
	}
	go func() {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			o.post(ctx, ev)
		case <-ctx.Done():
		}
	}()
}

func (o *Orchestrator) handle(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case userMessage:
		o.handleUserMessage(ctx, ev)
	case chatResult:
		o.handleChatResult(ctx, ev)
	case eligibilityDue:
		o.pending--
		o.handleEligibilityDue(ctx)
	case eligibilityResult:
		o.handleEligibilityResult(ctx, ev)
	case documentsDue:
		o.pending--
		o.handleDocumentsDue()
	case uploadRequest:
		o.handleUploadRequest(ctx, ev)
	case uploadResult:
		o.handleUploadResult(ctx, ev)
	case decisionDue:
		o.pending--
		o.handleDecisionDue(ctx)
	case decisionResult:
		o.handleDecisionResult(ev)
	case letterRequest:
		o.handleLetterRequest(ctx)
	case letterResult:
		o.handleLetterResult(ev)
	case retry:
		o.handleRetry(ctx)
	default:
		o.log.Error("unhandled event", "type", fmt.Sprintf("%T", ev))
	}
}

func (o *Orchestrator) handleUserMessage(ctx context.Context, ev userMessage) {
	if o.sess.Stage() == session.StageComplete {
		o.log.Debug("message ignored, application complete")
		return
	}
	if o.busy() {
		o.log.Debug("message ignored, request in flight")
		return
	}

	o.sess.Append(session.RoleUser, ev.text)
	o.inflight++
	go func() {
		resp, err := o.backend.Chat(ctx, o.sess.ID(), ev.text)
		o.post(ctx, chatResult{resp: resp, err: err})
	}()
}

func (o *Orchestrator) handleChatResult(ctx context.Context, ev chatResult) {
	o.inflight--
	if ev.err != nil {
		// Failed calls leave stage and user data exactly as they were.
		o.sess.Append(session.RoleAssistant, chatFailureLine(ev.err))
		return
	}

	o.sess.Append(session.RoleAssistant, ev.resp.Message)
	o.sess.SetStage(ev.resp.Stage)
	o.sess.ReplaceUserData(ev.resp.UserData)

	if ev.resp.Stage == session.StageEligibility && !o.eligibilityRequested {
		o.eligibilityRequested = true
		o.after(ctx, o.pacing.Eligibility, eligibilityDue{})
	}
}

func (o *Orchestrator) handleEligibilityDue(ctx context.Context) {
	o.sess.Append(session.RoleAssistant, "Analyzing your application...")
	o.inflight++
	go func() {
		res, err := o.backend.CheckEligibility(ctx, o.sess.ID())
		o.post(ctx, eligibilityResult{res: res, err: err})
	}()
}

func (o *Orchestrator) handleEligibilityResult(ctx context.Context, ev eligibilityResult) {
	o.inflight--
	if ev.err != nil {
		// Release the entry guard so a retry intent can re-fire the check.
		o.eligibilityRequested = false
		o.sess.Append(session.RoleAssistant, failureLine("Failed to check eligibility", ev.err))
		return
	}

	if err := o.sess.SetEligibility(ev.res); err != nil {
		o.log.Error("eligibility guard violated", "error", err)
		return
	}

	if ev.res.Eligible {
		o.sess.Append(session.RoleAssistant, fmt.Sprintf(
			"Great news! You're eligible for ₹%d at %.1f%% interest.",
			ev.res.ApprovedAmount, ev.res.InterestRate))
		o.after(ctx, o.pacing.DocumentPrompt, documentsDue{})
		return
	}

	// Not eligible: record the counter-offer and stay in this stage; the
	// user decides what to do next.
	o.sess.Append(session.RoleAssistant, fmt.Sprintf(
		"We can offer up to ₹%d. Would you like to apply for this amount?",
		ev.res.MaxEligible))
}

func (o *Orchestrator) handleDocumentsDue() {
	var b strings.Builder
	b.WriteString("Please upload these documents to complete your application:\n")
	for _, t := range document.Required() {
		fmt.Fprintf(&b, "\n  • %s", t.Label())
	}
	o.sess.Append(session.RoleAssistant, b.String())
	o.sess.SetStage(session.StageDocuments)
}

func (o *Orchestrator) handleUploadRequest(ctx context.Context, ev uploadRequest) {
	if o.sess.Stage() != session.StageDocuments {
		o.log.Debug("upload ignored outside documents stage", "stage", o.sess.Stage())
		return
	}

	type job struct {
		docType document.Type
		path    string
	}
	var jobs []job
	for t, path := range ev.files {
		if o.uploading[t] {
			o.log.Debug("upload ignored, same type already in flight", "type", t)
			continue
		}
		o.uploading[t] = true
		o.inflight++
		jobs = append(jobs, job{docType: t, path: path})
	}
	if len(jobs) == 0 {
		return
	}

	// Distinct types upload concurrently; each result is serialized back
	// through the loop, which keeps the 3-of-3 decision trigger single-fire.
	go func() {
		var g errgroup.Group
		g.SetLimit(len(jobs))
		for _, j := range jobs {
			g.Go(func() error {
				rec, err := o.uploadOne(ctx, j.docType, j.path)
				o.post(ctx, uploadResult{docType: j.docType, rec: rec, err: err})
				return nil
			})
		}
		g.Wait()
	}()
}

func (o *Orchestrator) uploadOne(ctx context.Context, t document.Type, path string) (session.DocumentRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return session.DocumentRecord{}, fmt.Errorf("reading file: %w", err)
	}
	defer f.Close()
	return o.backend.UploadDocument(ctx, o.sess.ID(), string(t), f.Name(), f)
}

func (o *Orchestrator) handleUploadResult(ctx context.Context, ev uploadResult) {
	o.inflight--
	delete(o.uploading, ev.docType)

	if ev.err != nil {
		// The document is not recorded; the same type may be re-attempted.
		o.sess.Append(session.RoleAssistant, uploadFailureLine(ev.docType, ev.err))
		return
	}

	o.sess.AddDocument(ev.rec)
	if ev.rec.Message != "" {
		o.sess.Append(session.RoleAssistant, ev.rec.Message)
	}

	if o.sess.DistinctVerifiedDocs() >= len(document.Required()) && !o.decisionRequested {
		o.decisionRequested = true
		o.after(ctx, o.pacing.Decision, decisionDue{})
	}
}

func (o *Orchestrator) handleDecisionDue(ctx context.Context) {
	o.sess.Append(session.RoleAssistant, "All documents verified! Processing the final decision...")
	o.inflight++
	go func() {
		dec, err := o.backend.RequestDecision(ctx, o.sess.ID())
		o.post(ctx, decisionResult{dec: dec, err: err})
	}()
}

func (o *Orchestrator) handleDecisionResult(ev decisionResult) {
	o.inflight--
	if ev.err != nil {
		// Stay in the documents stage with the decision unset; the latch is
		// released so a retry intent can fire the call again.
		o.decisionRequested = false
		o.sess.Append(session.RoleAssistant, failureLine("Failed to process the decision", ev.err))
		return
	}

	if err := o.sess.SetDecision(ev.dec); err != nil {
		o.log.Error("decision guard violated", "error", err)
		return
	}
	if ev.dec.Narrative != "" {
		o.sess.Append(session.RoleAssistant, ev.dec.Narrative)
	}
	o.sess.SetStage(session.StageComplete)
}

func (o *Orchestrator) handleLetterRequest(ctx context.Context) {
	dec := o.sess.Decision()
	elig := o.sess.Eligibility()
	if dec == nil || dec.Status != session.DecisionApproved || elig == nil {
		o.sess.Append(session.RoleAssistant, "A sanction letter is only available once a loan is approved.")
		return
	}

	amount, rate := elig.ApprovedAmount, elig.InterestRate
	o.inflight++
	go func() {
		data, err := o.backend.GenerateLetter(ctx, amount, rate)
		if err != nil {
			o.post(ctx, letterResult{err: err})
			return
		}
		info, err := letter.Save(o.letterDir, data)
		o.post(ctx, letterResult{info: info, err: err})
	}()
}

func (o *Orchestrator) handleLetterResult(ev letterResult) {
	o.inflight--
	if ev.err != nil {
		// Purely a side action: stage and decision state are untouched.
		o.sess.Append(session.RoleAssistant, failureLine("Failed to download the sanction letter", ev.err))
		return
	}

	o.letterPath = ev.info.Path
	line := fmt.Sprintf("Sanction letter saved to %s.", ev.info.Path)
	if ev.info.Pages > 0 {
		line = fmt.Sprintf("Sanction letter saved to %s (%d page document).", ev.info.Path, ev.info.Pages)
	}
	o.sess.Append(session.RoleAssistant, line)
}

func (o *Orchestrator) handleRetry(ctx context.Context) {
	switch {
	case o.sess.Stage() == session.StageEligibility && o.sess.Eligibility() == nil && !o.eligibilityRequested:
		o.eligibilityRequested = true
		o.after(ctx, 0, eligibilityDue{})
	case o.sess.Stage() == session.StageDocuments && o.sess.Decision() == nil && !o.decisionRequested &&
		o.sess.DistinctVerifiedDocs() >= len(document.Required()):
		o.decisionRequested = true
		o.after(ctx, 0, decisionDue{})
	default:
		o.log.Debug("retry ignored, nothing to retry", "stage", o.sess.Stage())
	}
}

// chatFailureLine distinguishes a timed-out chat turn from a connection
// failure; the two must read differently in the transcript.
func chatFailureLine(err error) string {
	if backend.IsTimeout(err) {
		return "Request timed out. Please check the backend connection and try again."
	}
	return "Connection error. The loan service is unreachable right now. Please try again."
}

func failureLine(action string, err error) string {
	if backend.IsTimeout(err) {
		return action + ": the request timed out. Please try again."
	}
	return action + ". Please try again."
}

func uploadFailureLine(t document.Type, err error) string {
	var be *backend.Error
	if errors.As(err, &be) && be.Kind == backend.KindVerification && be.Message != "" {
		return fmt.Sprintf("Failed to upload %s: %s. Please try again.", t.Label(), be.Message)
	}
	if backend.IsTimeout(err) {
		return fmt.Sprintf("Failed to upload %s: the request timed out. Please try again.", t.Label())
	}
	return fmt.Sprintf("Failed to upload %s. Please try again.", t.Label())
}
