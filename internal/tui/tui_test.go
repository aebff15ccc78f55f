package tui

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nmehta/loanassist/internal/backend"
	"github.com/nmehta/loanassist/internal/orchestrator"
	"github.com/nmehta/loanassist/internal/session"
)

type stubBackend struct{}

func (stubBackend) Chat(context.Context, string, string) (backend.ChatResponse, error) {
	return backend.ChatResponse{Message: "ok", Stage: session.StageGreeting}, nil
}
func (stubBackend) CheckEligibility(context.Context, string) (session.EligibilityResult, error) {
	return session.EligibilityResult{}, nil
}
func (stubBackend) UploadDocument(context.Context, string, string, string, io.Reader) (session.DocumentRecord, error) {
	return session.DocumentRecord{}, nil
}
func (stubBackend) RequestDecision(context.Context, string) (session.Decision, error) {
	return session.Decision{}, nil
}
func (stubBackend) GenerateLetter(context.Context, int64, float64) ([]byte, error) {
	return nil, nil
}

func newTestModel(t *testing.T) Model {
	t.Helper()
	o := orchestrator.New(orchestrator.Config{
		Backend: stubBackend{},
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	m := New(o)
	sized, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return sized.(Model)
}

func apply(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestView_RendersTranscript(t *testing.T) {
	m := newTestModel(t)

	m = apply(t, m, snapshotMsg(session.Snapshot{
		ID:    "session_test",
		Stage: session.StageGreeting,
		Messages: []session.Message{
			{Role: session.RoleAssistant, Content: "Hello! How can I help?"},
			{Role: session.RoleUser, Content: "I need a loan"},
		},
	}))

	view := m.View()
	if !strings.Contains(view, "Hello! How can I help?") {
		t.Error("assistant message missing from view")
	}
	if !strings.Contains(view, "I need a loan") {
		t.Error("user message missing from view")
	}
	if !strings.Contains(view, "stage: greeting") {
		t.Error("stage missing from status line")
	}
}

func TestView_DocumentsChecklist(t *testing.T) {
	m := newTestModel(t)

	m = apply(t, m, snapshotMsg(session.Snapshot{
		Stage: session.StageDocuments,
		Documents: []session.DocumentRecord{
			{Type: "aadhaar", Verified: true},
		},
	}))

	view := m.View()
	if !strings.Contains(view, "[x] Aadhaar Card") {
		t.Error("verified document not checked")
	}
	if !strings.Contains(view, "[ ] PAN Card") {
		t.Error("pending document shown as checked")
	}
}

func TestView_CompleteLocksInput(t *testing.T) {
	m := newTestModel(t)

	m = apply(t, m, snapshotMsg(session.Snapshot{
		Stage:    session.StageComplete,
		Messages: []session.Message{{Role: session.RoleAssistant, Content: "done"}},
		Decision: &session.Decision{Status: session.DecisionApproved, ProcessingTime: "3.2 minutes"},
	}))

	view := m.View()
	if !strings.Contains(view, "Application complete") {
		t.Error("completion hint missing")
	}
	if !strings.Contains(view, "Decision: approved") {
		t.Error("decision card missing")
	}
	if m.input.Focused() {
		t.Error("input still focused after completion")
	}
}

func TestUpdate_BusyBlocksSubmit(t *testing.T) {
	m := newTestModel(t)
	m = apply(t, m, snapshotMsg(session.Snapshot{Stage: session.StageGreeting, Busy: true}))

	m.input.SetValue("hello")
	next, _ := m.submit()
	m = next.(Model)

	// The text stays put so nothing is silently lost.
	if m.input.Value() != "hello" {
		t.Errorf("input value = %q, want preserved while busy", m.input.Value())
	}
}

func TestUpdate_UnknownCommandNotice(t *testing.T) {
	m := newTestModel(t)
	m = apply(t, m, snapshotMsg(session.Snapshot{Stage: session.StageGreeting}))

	m.input.SetValue("/frobnicate")
	next, _ := m.submit()
	m = next.(Model)

	if !strings.Contains(m.notice, "Unknown command") {
		t.Errorf("notice = %q", m.notice)
	}
}

func TestUpdate_UploadValidatesLocally(t *testing.T) {
	m := newTestModel(t)
	m = apply(t, m, snapshotMsg(session.Snapshot{Stage: session.StageDocuments}))

	m.input.SetValue("/upload aadhaar /nonexistent/file.png")
	next, _ := m.submit()
	m = next.(Model)

	if m.notice == "" {
		t.Error("invalid upload path accepted without notice")
	}
}
