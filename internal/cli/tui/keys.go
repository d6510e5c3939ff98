package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Submit       key.Binding
	Accept       key.Binding
	SwitchFocus  key.Binding
	HistoryUp    key.Binding
	HistoryDown  key.Binding
	NewSession   key.Binding
	CloseSession key.Binding
	PrevSession  key.Binding
	NextSession  key.Binding
	SelectUp     key.Binding
	SelectDown   key.Binding
	Deselect     key.Binding
	Rerun        key.Binding
	Copy         key.Binding
	Explain      key.Binding
	ExplainOut   key.Binding
	Favorite     key.Binding
	RunSuggest   key.Binding
	EditSuggest  key.Binding
	DropSuggest  key.Binding
	Promote      key.Binding
	ScrollUp     key.Binding
	ScrollDown   key.Binding
	Help         key.Binding
	Quit         key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Submit:       key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "run / ask")),
		Accept:       key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "accept ghost")),
		SwitchFocus:  key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "shell/ai")),
		HistoryUp:    key.NewBinding(key.WithKeys("up"), key.WithHelp("↑", "older")),
		HistoryDown:  key.NewBinding(key.WithKeys("down"), key.WithHelp("↓", "newer")),
		NewSession:   key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("ctrl+n", "new session")),
		CloseSession: key.NewBinding(key.WithKeys("ctrl+w"), key.WithHelp("ctrl+w", "close session")),
		PrevSession:  key.NewBinding(key.WithKeys("ctrl+left"), key.WithHelp("ctrl+←", "prev session")),
		NextSession:  key.NewBinding(key.WithKeys("ctrl+right"), key.WithHelp("ctrl+→", "next session")),
		SelectUp:     key.NewBinding(key.WithKeys("alt+up"), key.WithHelp("alt+↑", "select block")),
		SelectDown:   key.NewBinding(key.WithKeys("alt+down"), key.WithHelp("alt+↓", "select block")),
		Deselect:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "deselect")),
		Rerun:        key.NewBinding(key.WithKeys("alt+r"), key.WithHelp("alt+r", "re-run")),
		Copy:         key.NewBinding(key.WithKeys("alt+c"), key.WithHelp("alt+c", "copy")),
		Explain:      key.NewBinding(key.WithKeys("alt+e"), key.WithHelp("alt+e", "explain")),
		ExplainOut:   key.NewBinding(key.WithKeys("alt+o"), key.WithHelp("alt+o", "explain output")),
		Favorite:     key.NewBinding(key.WithKeys("alt+f"), key.WithHelp("alt+f", "favorite")),
		RunSuggest:   key.NewBinding(key.WithKeys("alt+enter"), key.WithHelp("alt+enter", "run suggestion")),
		EditSuggest:  key.NewBinding(key.WithKeys("ctrl+e"), key.WithHelp("ctrl+e", "edit suggestion")),
		DropSuggest:  key.NewBinding(key.WithKeys("alt+x"), key.WithHelp("alt+x", "dismiss suggestion")),
		Promote: key.NewBinding(
			key.WithKeys("alt+1", "alt+2", "alt+3", "alt+4", "alt+5", "alt+6", "alt+7", "alt+8", "alt+9"),
			key.WithHelp("alt+1..9", "promote"),
		),
		ScrollUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
		ScrollDown: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "scroll down")),
		Help:       key.NewBinding(key.WithKeys("f1"), key.WithHelp("f1", "help")),
		Quit:       key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.Accept, k.SwitchFocus, k.NewSession, k.SelectUp, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Submit, k.Accept, k.SwitchFocus, k.HistoryUp, k.HistoryDown},
		{k.NewSession, k.CloseSession, k.PrevSession, k.NextSession},
		{k.SelectUp, k.SelectDown, k.Deselect, k.Rerun, k.Copy, k.Explain, k.ExplainOut, k.Favorite},
		{k.RunSuggest, k.EditSuggest, k.DropSuggest, k.Promote, k.ScrollUp, k.ScrollDown, k.Quit},
	}
}
