package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Confirm key.Binding
	Focus   key.Binding
	Open    key.Binding
	Rerun   key.Binding
	Refresh key.Binding
	Repos   key.Binding
	Quit    key.Binding

	// repo editor
	Save      key.Binding
	Cancel    key.Binding
	Interrupt key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Confirm, k.Focus, k.Open, k.Rerun, k.Refresh, k.Repos, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Confirm, k.Focus},
		{k.Open, k.Rerun, k.Refresh},
		{k.Repos, k.Quit},
	}
}

var defaultKeyMap = keyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("j/k", "move"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/k", "move"),
	),
	Confirm: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "select"),
	),
	Focus: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "focus"),
	),
	Open: key.NewBinding(
		key.WithKeys("o"),
		key.WithHelp("o", "open"),
	),
	Rerun: key.NewBinding(
		key.WithKeys("f"),
		key.WithHelp("f", "rerun failed"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Repos: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "repos"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Save: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "save"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "cancel"),
	),
	Interrupt: key.NewBinding(
		key.WithKeys("ctrl+c"),
	),
}
