package tui

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
)

// KeyMap holds the run view's key bindings.
type KeyMap struct {
	NextPane key.Binding
	PrevPane key.Binding
	Tasks    key.Binding
	Progress key.Binding
	Up       key.Binding
	Down     key.Binding
	Scroll   key.Binding
	Quit     key.Binding
}

// DefaultKeyMap returns the default bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		NextPane: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next pane")),
		PrevPane: key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "prev pane")),
		Tasks:    key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "tasks")),
		Progress: key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "progress")),
		Up:       key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "prev task")),
		Down:     key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "next task")),
		Scroll:   key.NewBinding(key.WithKeys("pgup", "pgdown"), key.WithHelp("pgup/pgdn", "scroll log")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextPane, k.Tasks, k.Progress, k.Down, k.Up, k.Scroll, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.NextPane, k.PrevPane, k.Tasks, k.Progress}, {k.Up, k.Down, k.Scroll, k.Quit}}
}

func newHelp() help.Model {
	h := help.New()
	h.Styles.ShortKey = StyleHelp.Bold(true)
	h.Styles.ShortDesc = StyleHelp
	h.Styles.ShortSeparator = StyleHelp
	return h
}
