package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nmehta/loanassist/internal/document"
	"github.com/nmehta/loanassist/internal/session"
)

// chromeHeight is the number of terminal rows taken by everything that
// is not the transcript viewport: title, status line, input, notice.
const chromeHeight = 6

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("78"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	noticeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	spinnerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("78")).
			Padding(0, 1)

	rejectedCardStyle = cardStyle.BorderForeground(lipgloss.Color("203"))
)

func (m Model) View() string {
	if !m.ready {
		return "starting..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Loan Assistant"))
	b.WriteString(dimStyle.Render("  " + m.snap.ID))
	b.WriteString("\n")
	b.WriteString(m.vp.View())
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")

	if m.snap.Stage == session.StageComplete {
		b.WriteString(dimStyle.Render("Application complete. /letter saves the sanction letter, /quit exits."))
	} else {
		b.WriteString(m.input.View())
	}
	b.WriteString("\n")

	if m.notice != "" {
		b.WriteString(noticeStyle.Render(m.notice))
	}
	return b.String()
}

func (m Model) statusLine() string {
	if m.snap.Busy {
		return m.spin.View() + dimStyle.Render(" working...")
	}
	return dimStyle.Render(fmt.Sprintf("stage: %s", m.snap.Stage))
}

func (m Model) renderTranscript() string {
	width := max(m.width-2, 20)
	wrap := lipgloss.NewStyle().Width(width)

	var b strings.Builder
	for _, msg := range m.snap.Messages {
		switch msg.Role {
		case session.RoleUser:
			b.WriteString(userStyle.Render("You"))
		default:
			b.WriteString(assistantStyle.Render("Assistant"))
		}
		b.WriteString("\n")
		b.WriteString(wrap.Render(msg.Content))
		b.WriteString("\n\n")
	}

	if card := m.eligibilityCard(); card != "" {
		b.WriteString(card)
		b.WriteString("\n\n")
	}
	if m.snap.Stage == session.StageDocuments {
		b.WriteString(m.documentChecklist())
		b.WriteString("\n")
	}
	if card := m.decisionCard(); card != "" {
		b.WriteString(card)
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) eligibilityCard() string {
	e := m.snap.Eligibility
	if e == nil {
		return ""
	}
	if e.Eligible {
		return cardStyle.Render(fmt.Sprintf(
			"Eligible\nApproved amount: ₹%d\nInterest rate: %.1f%%",
			e.ApprovedAmount, e.InterestRate))
	}
	return rejectedCardStyle.Render(fmt.Sprintf(
		"Not eligible for the requested amount\nMaximum offer: ₹%d", e.MaxEligible))
}

func (m Model) documentChecklist() string {
	var b strings.Builder
	b.WriteString(dimStyle.Render("Documents (/upload <type> <path>):"))
	for _, t := range document.Required() {
		mark := "[ ]"
		if m.hasVerified(string(t)) {
			mark = "[x]"
		}
		fmt.Fprintf(&b, "\n  %s %s", mark, t.Label())
	}
	return b.String()
}

func (m Model) hasVerified(docType string) bool {
	for _, d := range m.snap.Documents {
		if d.Verified && d.Type == docType {
			return true
		}
	}
	return false
}

func (m Model) decisionCard() string {
	d := m.snap.Decision
	if d == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Decision: %s", d.Status)
	if d.Note != "" {
		b.WriteString("\n" + d.Note)
	}
	if d.ProcessingTime != "" {
		fmt.Fprintf(&b, "\nProcessed in %s", d.ProcessingTime)
		if d.TraditionalTime != "" {
			fmt.Fprintf(&b, " (traditionally %s)", d.TraditionalTime)
		}
	}
	if m.snap.LetterPath != "" {
		fmt.Fprintf(&b, "\nSanction letter: %s", m.snap.LetterPath)
	}

	if d.Status == session.DecisionApproved {
		return cardStyle.Render(b.String())
	}
	return rejectedCardStyle.Render(b.String())
}
