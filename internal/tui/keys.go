package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the bindings for every view. Run control keys act on the
// selected run in the list and on the open run in the detail view.
type KeyMap struct {
	Up   key.Binding
	Down key.Binding

	Open   key.Binding
	Back   key.Binding
	New    key.Binding
	Mode   key.Binding
	Policy key.Binding

	Pause    key.Binding
	Resume   key.Binding
	Stop     key.Binding
	Discard  key.Binding
	Annotate key.Binding

	Quit key.Binding
}

var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	Open: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "open"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "back"),
	),
	New: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "new run"),
	),
	Mode: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "full/dry"),
	),
	Policy: key.NewBinding(
		key.WithKeys("f"),
		key.WithHelp("f", "auto-fail"),
	),
	Pause: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "pause"),
	),
	Resume: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "resume"),
	),
	Stop: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "stop"),
	),
	Discard: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "discard"),
	),
	Annotate: key.NewBinding(
		key.WithKeys("e"),
		key.WithHelp("e", "add evidence"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

func helpLine(bindings ...key.Binding) string {
	s := ""
	for i, b := range bindings {
		if i > 0 {
			s += "  "
		}
		h := b.Help()
		s += "[" + h.Key + "] " + h.Desc
	}
	return s
}
