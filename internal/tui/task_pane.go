package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/grantwriter/internal/events"
)

// Task states shown in the list.
const (
	statusPending   = "pending"
	statusRunning   = "running"
	statusCompleted = "completed"
	statusFailed    = "failed"
)

const taskListWidth = 26

// TaskState is what the pane knows about one pipeline task.
type TaskState struct {
	Name       string
	Role       string
	ExecutedBy string
	Status     string
	Lines      []string
	Attempts   int
	StartTime  time.Time
	Duration   time.Duration
}

// TaskPaneModel lists the run's tasks and shows the selected task's log and
// output in a scrollable viewport.
type TaskPaneModel struct {
	tasks       map[string]*TaskState
	order       []string // declared order
	selectedIdx int
	viewport    viewport.Model
	keys        KeyMap
	width       int
	height      int
	focused     bool
	updateTag   int // for debouncing
}

// NewTaskPaneModel creates an empty task pane.
func NewTaskPaneModel() TaskPaneModel {
	return TaskPaneModel{
		tasks:    make(map[string]*TaskState),
		viewport: viewport.New(0, 0),
		keys:     DefaultKeyMap(),
	}
}

// tickMsg is used for debouncing viewport updates.
type tickMsg struct {
	tag int
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch {
		case key.Matches(msg, m.keys.Down):
			if m.selectedIdx < len(m.order)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case key.Matches(msg, m.keys.Up):
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.RunStartedEvent:
		for _, name := range msg.Tasks {
			m.task(name)
		}
		m.updateViewportContent()

	case events.TaskStartedEvent:
		t := m.task(msg.ID)
		t.Status = statusRunning
		t.Role = msg.Role
		t.ExecutedBy = msg.ExecutedBy
		t.StartTime = msg.Timestamp
		line := "Started as " + msg.Role
		if msg.ExecutedBy != "" && msg.ExecutedBy != msg.Role {
			line += fmt.Sprintf(" (delegated to %s)", msg.ExecutedBy)
		}
		t.Lines = append(t.Lines, line)
		// Follow the running task
		m.selectedIdx = m.indexOf(msg.ID)
		m.updateViewportContent()

	case events.TaskAttemptEvent:
		t := m.task(msg.ID)
		t.Attempts = msg.Attempt
		line := fmt.Sprintf("attempt %d: %s in %s", msg.Attempt, msg.Outcome, msg.Elapsed.Round(time.Millisecond))
		if msg.Wait > 0 {
			line += fmt.Sprintf(" after waiting %s", msg.Wait.Round(time.Millisecond))
		}
		if msg.Err != nil {
			line += fmt.Sprintf(": %v", msg.Err)
		}
		t.Lines = append(t.Lines, line)
		if m.selectedTask() == msg.ID {
			m.updateTag++
			tag := m.updateTag
			return m, tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
				return tickMsg{tag: tag}
			})
		}

	case events.TaskCompletedEvent:
		t := m.task(msg.ID)
		t.Status = statusCompleted
		t.Duration = msg.Duration
		t.Lines = append(t.Lines, fmt.Sprintf("[Completed in %v after %d attempt(s)]", msg.Duration.Round(time.Millisecond), msg.Attempts), "", msg.Result)
		if m.selectedTask() == msg.ID {
			m.updateViewportContent()
		}

	case events.TaskFailedEvent:
		t := m.task(msg.ID)
		t.Status = statusFailed
		t.Duration = msg.Duration
		t.Lines = append(t.Lines, fmt.Sprintf("[Failed (%s) after %d attempt(s): %v]", msg.Kind, msg.Attempts, msg.Err))
		if m.selectedTask() == msg.ID {
			m.updateViewportContent()
		}

	case tickMsg:
		// Only update if this tick matches the current tag (debouncing)
		if msg.tag == m.updateTag {
			m.updateViewportContent()
		}
	}

	return m, cmd
}

// task returns the state for name, adding it to the list on first sight.
func (m *TaskPaneModel) task(name string) *TaskState {
	if t, ok := m.tasks[name]; ok {
		return t
	}
	t := &TaskState{Name: name, Status: statusPending}
	m.tasks[name] = t
	m.order = append(m.order, name)
	return t
}

func (m TaskPaneModel) indexOf(name string) int {
	for i, n := range m.order {
		if n == name {
			return i
		}
	}
	return m.selectedIdx
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	viewportWidth := m.width - taskListWidth - 4 // borders and padding

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderTaskList(taskListWidth),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m TaskPaneModel) renderTaskList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.order) == 0 {
		b.WriteString(StyleStatusPending.Render("Waiting..."))
	}
	for i, name := range m.order {
		t := m.tasks[name]
		if len(name) > width-3 {
			name = name[:width-6] + "..."
		}
		line := fmt.Sprintf("%s %s", StatusIcon(t.Status), name)
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// StatusIcon returns a styled status indicator.
func StatusIcon(status string) string {
	switch status {
	case statusRunning:
		return StyleStatusRunning.Render("●")
	case statusCompleted:
		return StyleStatusComplete.Render("✓")
	case statusFailed:
		return StyleStatusFailed.Render("✗")
	default:
		return StyleStatusPending.Render("○")
	}
}

// Task returns the state of a task, if the pane has seen it.
func (m TaskPaneModel) Task(name string) (TaskState, bool) {
	t, ok := m.tasks[name]
	if !ok {
		return TaskState{}, false
	}
	return *t, true
}

func (m TaskPaneModel) selectedTask() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.order) {
		return m.order[m.selectedIdx]
	}
	return ""
}

// updateViewportContent shows the selected task's lines, wrapped to the
// viewport width.
func (m *TaskPaneModel) updateViewportContent() {
	t, ok := m.tasks[m.selectedTask()]
	if !ok {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}
	if len(t.Lines) == 0 {
		m.viewport.SetContent(StyleStatusPending.Render(t.Name + " has not started"))
		return
	}

	content := strings.Join(t.Lines, "\n")
	if m.viewport.Width > 0 {
		content = lipgloss.NewStyle().Width(m.viewport.Width).Render(content)
	}
	m.viewport.SetContent(content)
	m.viewport.GotoBottom()
}

func (m *TaskPaneModel) resizeViewport() {
	m.viewport.Width = max(m.width-taskListWidth-4, 10)
	m.viewport.Height = max(m.height-4, 5)
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
	m.updateViewportContent()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
