// Package tui is the interactive chat surface of the loan assistant. It
// renders the orchestrator's snapshots and translates keystrokes and
// slash commands into orchestrator intents.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nmehta/loanassist/internal/document"
	"github.com/nmehta/loanassist/internal/orchestrator"
	"github.com/nmehta/loanassist/internal/session"
)

// snapshotMsg delivers one orchestrator snapshot through the bubbletea
// message loop.
type snapshotMsg session.Snapshot

// updatesClosedMsg is sent when the orchestrator shuts down.
type updatesClosedMsg struct{}

// Model is the bubbletea model for a chat session. Create with New and
// hand to tea.NewProgram.
type Model struct {
	orch *orchestrator.Orchestrator

	vp    viewport.Model
	input textinput.Model
	spin  spinner.Model

	snap   session.Snapshot
	width  int
	height int
	ready  bool
	notice string
}

// New builds the model around a running orchestrator.
func New(orch *orchestrator.Orchestrator) Model {
	input := textinput.New()
	input.Placeholder = "Type a message, or /help for commands"
	input.CharLimit = 500
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = spinnerStyle

	return Model{
		orch:  orch,
		input: input,
		spin:  spin,
		snap:  orch.Current(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForSnapshot(m.orch.Updates()),
		textinput.Blink,
		m.spin.Tick,
	)
}

// waitForSnapshot blocks on the updates channel and feeds the next
// snapshot into the program.
func waitForSnapshot(updates <-chan session.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return updatesClosedMsg{}
		}
		return snapshotMsg(snap)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := max(msg.Height-chromeHeight, 3)
		if !m.ready {
			m.vp = viewport.New(msg.Width, vpHeight)
			m.ready = true
		} else {
			m.vp.Width = msg.Width
			m.vp.Height = vpHeight
		}
		m.input.Width = max(msg.Width-4, 20)
		m.vp.SetContent(m.renderTranscript())
		m.vp.GotoBottom()
		return m, nil

	case snapshotMsg:
		m.snap = session.Snapshot(msg)
		m.syncInputFocus()
		if m.ready {
			m.vp.SetContent(m.renderTranscript())
			m.vp.GotoBottom()
		}
		return m, waitForSnapshot(m.orch.Updates())

	case updatesClosedMsg:
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		}
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.vp, cmd = m.vp.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// inputLocked reports whether typing is currently pointless: a request
// is in flight or the application is finished.
func (m *Model) inputLocked() bool {
	return m.snap.Busy || m.snap.Stage == session.StageComplete
}

func (m *Model) syncInputFocus() {
	if m.inputLocked() {
		m.input.Blur()
		return
	}
	if !m.input.Focused() {
		m.input.Focus()
	}
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	m.notice = ""

	if strings.HasPrefix(text, "/") {
		m.input.SetValue("")
		return m.runCommand(text)
	}

	if m.inputLocked() {
		return m, nil
	}
	m.orch.SendMessage(text)
	m.input.SetValue("")
	return m, nil
}

func (m Model) runCommand(text string) (tea.Model, tea.Cmd) {
	args := strings.Fields(text)
	switch args[0] {
	case "/quit", "/exit":
		return m, tea.Quit

	case "/help":
		m.notice = "Commands: /upload <aadhaar|pan|salary> <path>   /retry   /letter   /quit"
		return m, nil

	case "/retry":
		m.orch.Retry()
		return m, nil

	case "/letter":
		m.orch.DownloadLetter()
		return m, nil

	case "/upload":
		if len(args) != 3 {
			m.notice = "Usage: /upload <aadhaar|pan|salary> <path>"
			return m, nil
		}
		docType, err := document.ParseType(args[1])
		if err != nil {
			m.notice = err.Error()
			return m, nil
		}
		// Size and content type are checked before any bytes leave the
		// machine; the backend re-verifies on its side.
		if err := document.ValidateFile(args[2]); err != nil {
			m.notice = err.Error()
			return m, nil
		}
		m.orch.UploadDocument(docType, args[2])
		return m, nil

	default:
		m.notice = fmt.Sprintf("Unknown command %s; try /help", args[0])
		return m, nil
	}
}
