package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/grantwriter/internal/events"
)

// ProgressPaneModel shows run-level progress: counts, a progress bar and
// the final status once the run ends.
type ProgressPaneModel struct {
	runID     string
	orgName   string
	total     int
	succeeded int
	failed    int
	pending   int
	finished  bool
	status    string
	reason    string
	duration  time.Duration
	bar       progress.Model
	spinner   spinner.Model
	width     int
	height    int
	focused   bool
}

// NewProgressPaneModel creates a new progress pane model.
func NewProgressPaneModel() ProgressPaneModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = StyleStatusRunning
	return ProgressPaneModel{
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		spinner: s,
	}
}

// Init starts the spinner.
func (m ProgressPaneModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages for the progress pane.
func (m ProgressPaneModel) Update(msg tea.Msg) (ProgressPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case events.RunStartedEvent:
		m.runID = msg.RunID
		m.orgName = msg.OrgName
		m.total = len(msg.Tasks)
		m.pending = m.total

	case events.RunProgressEvent:
		m.total = msg.Total
		m.succeeded = msg.Succeeded
		m.failed = msg.Failed
		m.pending = msg.Pending

	case events.RunFinishedEvent:
		m.finished = true
		m.status = msg.Status
		m.reason = msg.Reason
		m.duration = msg.Duration

	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// Finished reports whether the run has ended.
func (m ProgressPaneModel) Finished() bool { return m.finished }

// Status returns the final run status, empty while running.
func (m ProgressPaneModel) Status() string { return m.status }

// View renders the progress pane.
func (m ProgressPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Run Progress")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	if m.runID != "" {
		b.WriteString(fmt.Sprintf("Organization: %s\n", m.orgName))
		b.WriteString(StyleHelp.Render("Run "+m.runID) + "\n\n")
	}

	done := m.succeeded + m.failed
	b.WriteString(fmt.Sprintf("Total:     %d\n", m.total))
	b.WriteString(fmt.Sprintf("Succeeded: %s\n", StyleStatusComplete.Render(fmt.Sprint(m.succeeded))))
	b.WriteString(fmt.Sprintf("Failed:    %s\n", StyleStatusFailed.Render(fmt.Sprint(m.failed))))
	b.WriteString(fmt.Sprintf("Pending:   %s\n", StyleStatusPending.Render(fmt.Sprint(m.pending))))
	b.WriteString("\n")

	if m.total > 0 {
		m.bar.Width = max(min(m.width-16, 40), 10)
		b.WriteString(fmt.Sprintf("%s  %d/%d\n\n", m.bar.ViewAs(float64(done)/float64(m.total)), done, m.total))
	}

	switch {
	case m.finished:
		b.WriteString(fmt.Sprintf("Status: %s in %s\n", m.statusStyle().Render(m.status), m.duration.Round(time.Millisecond)))
		if m.reason != "" {
			b.WriteString(lipgloss.NewStyle().Width(max(m.width-6, 10)).Render(m.reason) + "\n")
		}
		b.WriteString("\n" + StyleHelp.Render("Run finished. Press q to exit."))
	case m.runID != "":
		b.WriteString(m.spinner.View() + " running")
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

func (m ProgressPaneModel) statusStyle() lipgloss.Style {
	switch m.status {
	case "succeeded":
		return StyleStatusComplete
	case "partially_failed":
		return StyleStatusRunning
	default:
		return StyleStatusFailed
	}
}

// SetSize updates the pane dimensions.
func (m *ProgressPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *ProgressPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
