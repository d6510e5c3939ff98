package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/ccheshirecat/volterm/internal/cli/client"
	"github.com/ccheshirecat/volterm/internal/cli/config"
	"github.com/ccheshirecat/volterm/internal/shared/logging"
	"github.com/ccheshirecat/volterm/internal/terminal/autocomplete"
	"github.com/ccheshirecat/volterm/internal/terminal/history"
	"github.com/ccheshirecat/volterm/internal/terminal/session"
	"github.com/ccheshirecat/volterm/internal/terminal/suggest"
)

type focus int

const (
	focusShell focus = iota
	focusAI
	focusEdit
)

const (
	maxAIHistory   = 20
	thinkingText   = "Thinking..."
	aiFailureText  = "Could not reach the AI service."
	aiEmptyText    = "Empty response."
	noSelection    = -1
	defaultWrapCol = 80
)

type aiEntry struct {
	Prompt   string
	Response string
}

type model struct {
	ctx    context.Context
	cancel context.CancelFunc
	api    Backend
	cfg    config.ClientConfig
	logger *slog.Logger
	keys   keyMap

	sessions  *session.Registry
	history   *history.History
	favorites *history.Favorites
	suggest   *suggest.State
	ghost     *autocomplete.Suggester
	files     map[string][]string

	input    textinput.Model
	prompt   textinput.Model
	edit     textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	help     help.Model
	renderer *glamour.TermRenderer

	focus        focus
	observed     string
	selected     int
	follow       bool
	width        int
	height       int
	aiPanelLines int

	aiSeq      uint64
	aiPending  bool
	aiResponse string
	aiRendered string
	aiHistory  []aiEntry

	watchGen    uint64
	watchCancel context.CancelFunc
	watchCh     <-chan streamEvent
	watching    string

	statusLine     string
	writeClipboard func(string) error
}

func newModel(ctx context.Context, cancel context.CancelFunc, api Backend, cfg config.ClientConfig, logger *slog.Logger) model {
	if logger == nil {
		logger = logging.NewWriter(io.Discard, "tui", slog.LevelInfo)
	}

	input := textinput.New()
	input.Prompt = ""
	input.Placeholder = "type a command"
	input.Focus()

	prompt := textinput.New()
	prompt.Prompt = "ai❯ "
	prompt.Placeholder = "ask the assistant"

	edit := textinput.New()
	edit.Prompt = "edit❯ "

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	m := model{
		ctx:            ctx,
		cancel:         cancel,
		api:            api,
		cfg:            cfg,
		logger:         logger,
		keys:           defaultKeyMap(),
		sessions:       session.NewRegistry(),
		history:        history.New(),
		favorites:      history.NewFavorites(),
		suggest:        &suggest.State{},
		ghost:          autocomplete.New(cfg.Debounce),
		files:          make(map[string][]string),
		input:          input,
		prompt:         prompt,
		edit:           edit,
		viewport:       viewport.New(defaultWrapCol, 20),
		spinner:        spin,
		help:           help.New(),
		selected:       noSelection,
		follow:         true,
		aiPanelLines:   6,
		writeClipboard: clipboard.WriteAll,
	}
	m.renderer = newRenderer(defaultWrapCol)
	return m
}

func newRenderer(width int) *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return r
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textinput.Blink,
		func() tea.Msg { return statusTickMsg{} },
	}
	if m.cfg.Ingest.Polls() {
		cmds = append(cmds, pollTickCmd(m.cfg.PollInterval))
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	cmd := m.update(msg)
	m.syncViewport()
	return m, cmd
}

func (m *model) update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return nil
	case tea.KeyMsg:
		return m.handleKey(msg)

	case pollTickMsg:
		return tea.Batch(pollTickCmd(m.cfg.PollInterval), pollOutputCmd(m.api, m.ctx, m.sessions.ActiveID()))
	case outputMsg:
		if msg.err != nil {
			m.logger.Debug("poll output failed", "session", msg.sessionID, "error", msg.err)
			return nil
		}
		m.sessions.Route(msg.sessionID, func(s *session.Session) {
			s.Timeline.IngestFull(msg.text)
		})
		return nil

	case statusTickMsg:
		cmds := []tea.Cmd{
			statusTickCmd(m.cfg.StatusInterval),
			fetchStatusCmd(m.api, m.ctx, m.sessions.ActiveID()),
		}
		if m.cfg.Ingest.Pushes() && m.watching == "" {
			cmds = append(cmds, m.openStream(m.sessions.ActiveID()))
		}
		return tea.Batch(cmds...)
	case statusMsg:
		if msg.err != nil {
			m.logger.Debug("status poll failed", "session", msg.sessionID, "error", msg.err)
			return nil
		}
		if msg.status == nil {
			return nil
		}
		m.sessions.Route(msg.sessionID, func(s *session.Session) {
			if msg.status.Cwd != nil {
				s.Cwd = *msg.status.Cwd
			}
			if msg.status.HasFiles {
				m.files[s.ID] = msg.status.Files
			}
		})
		return nil

	case chunkMsg:
		m.sessions.Route(msg.sessionID, func(s *session.Session) {
			s.Timeline.IngestChunk(msg.text)
		})
		if msg.gen != m.watchGen {
			return nil
		}
		return waitStreamCmd(m.watchCh, msg.sessionID, msg.gen)
	case streamClosedMsg:
		if msg.gen != m.watchGen {
			return nil
		}
		m.stopStream()
		if msg.err != nil {
			m.logger.Warn("output stream closed", "session", msg.sessionID, "error", msg.err)
			m.statusLine = "output stream lost; reconnecting"
		}
		return nil

	case submitResultMsg:
		if msg.err != nil {
			m.logger.Warn("submit command failed", "session", msg.sessionID, "command", msg.command, "error", msg.err)
			m.statusLine = fmt.Sprintf("could not send %q: %v", msg.command, msg.err)
		}
		return nil
	case closeResultMsg:
		if msg.err != nil && !client.IsStatus(msg.err, http.StatusNotFound) {
			m.logger.Warn("close session failed", "session", msg.sessionID, "error", msg.err)
			m.statusLine = fmt.Sprintf("server did not close session: %v", msg.err)
		}
		return nil

	case aiResponseMsg:
		m.handleAIResponse(msg)
		return nil

	case debounceMsg:
		q, ok := m.ghost.Fire(msg.timer)
		if !ok {
			return nil
		}
		ctx, cancel := context.WithTimeout(m.ctx, requestTimeout)
		m.ghost.Track(q.Token, cancel)
		return completeCmd(m.api, ctx, m.sessions.ActiveID(), q)
	case completionMsg:
		if msg.err != nil {
			m.ghost.Release(msg.token)
			if !errors.Is(msg.err, context.Canceled) {
				m.logger.Debug("completion failed", "error", msg.err)
			}
			return nil
		}
		m.ghost.Resolve(msg.token, msg.text)
		return nil

	case copiedMsg:
		if msg.err != nil {
			m.statusLine = fmt.Sprintf("copy failed: %v", msg.err)
		} else {
			m.statusLine = fmt.Sprintf("copied %q", msg.text)
		}
		return nil

	case spinner.TickMsg:
		if !m.aiPending {
			return nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return cmd
	}

	return m.updateFocused(msg)
}

func (m *model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.shutdown()
		return tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return nil

	case key.Matches(msg, m.keys.NewSession):
		m.sessions.Create()
		return m.activated()
	case key.Matches(msg, m.keys.CloseSession):
		return m.closeActive()
	case key.Matches(msg, m.keys.PrevSession):
		m.sessions.Step(-1)
		return m.activated()
	case key.Matches(msg, m.keys.NextSession):
		m.sessions.Step(1)
		return m.activated()

	case key.Matches(msg, m.keys.SelectUp):
		m.moveSelection(-1)
		return nil
	case key.Matches(msg, m.keys.SelectDown):
		m.moveSelection(1)
		return nil
	case key.Matches(msg, m.keys.Deselect):
		if m.focus == focusEdit {
			m.setFocus(focusShell)
			return nil
		}
		m.selected = noSelection
		m.follow = true
		return nil
	case key.Matches(msg, m.keys.Rerun, m.keys.Copy, m.keys.Explain, m.keys.ExplainOut, m.keys.Favorite):
		return m.blockAction(msg)

	case key.Matches(msg, m.keys.RunSuggest):
		if cmd, ok := m.suggest.Take(); ok {
			return m.submit(cmd)
		}
		return nil
	case key.Matches(msg, m.keys.EditSuggest):
		if m.suggest.HasPrimary() {
			m.edit.SetValue(m.suggest.Primary)
			m.edit.CursorEnd()
			m.setFocus(focusEdit)
		}
		return nil
	case key.Matches(msg, m.keys.DropSuggest):
		m.suggest.Clear()
		return nil
	case key.Matches(msg, m.keys.Promote):
		s := msg.String()
		m.suggest.Promote(int(s[len(s)-1] - '1'))
		return nil

	case key.Matches(msg, m.keys.ScrollUp):
		m.follow = false
		m.viewport.SetYOffset(m.viewport.YOffset - max(1, m.viewport.Height/2))
		return nil
	case key.Matches(msg, m.keys.ScrollDown):
		m.viewport.SetYOffset(m.viewport.YOffset + max(1, m.viewport.Height/2))
		m.follow = m.viewport.AtBottom()
		return nil

	case key.Matches(msg, m.keys.SwitchFocus):
		if m.focus == focusShell {
			m.setFocus(focusAI)
		} else {
			m.setFocus(focusShell)
		}
		return nil
	}

	switch m.focus {
	case focusAI:
		if key.Matches(msg, m.keys.Submit) {
			text := m.prompt.Value()
			if strings.TrimSpace(text) == "" {
				return nil
			}
			m.prompt.SetValue("")
			return m.ask(text, nil)
		}
	case focusEdit:
		if key.Matches(msg, m.keys.Submit) {
			if edited := strings.TrimSpace(m.edit.Value()); edited != "" {
				m.suggest.Edit(edited)
			}
			m.setFocus(focusShell)
			return nil
		}
	default:
		switch {
		case key.Matches(msg, m.keys.Submit):
			return m.submit(m.input.Value())
		case key.Matches(msg, m.keys.Accept):
			if text, ok := m.ghost.Accept(); ok {
				m.input.SetValue(text)
				m.input.CursorEnd()
				m.observed = text
			}
			return nil
		case key.Matches(msg, m.keys.HistoryUp):
			if text, ok := m.history.Up(); ok {
				return m.setCommand(text)
			}
			return nil
		case key.Matches(msg, m.keys.HistoryDown):
			if text, ok := m.history.Down(); ok {
				return m.setCommand(text)
			}
			return nil
		}
	}
	return m.updateFocused(msg)
}

// updateFocused forwards msg to the input that owns the keyboard.
func (m *model) updateFocused(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch m.focus {
	case focusAI:
		m.prompt, cmd = m.prompt.Update(msg)
		return cmd
	case focusEdit:
		m.edit, cmd = m.edit.Update(msg)
		return cmd
	}
	m.input, cmd = m.input.Update(msg)
	return tea.Batch(cmd, m.observe())
}

func (m *model) setFocus(f focus) {
	m.focus = f
	m.input.Blur()
	m.prompt.Blur()
	m.edit.Blur()
	switch f {
	case focusAI:
		m.prompt.Focus()
	case focusEdit:
		m.edit.Focus()
	default:
		m.input.Focus()
	}
}

func (m *model) setCommand(text string) tea.Cmd {
	m.input.SetValue(text)
	m.input.CursorEnd()
	return m.observe()
}

// observe feeds the command line to the autocomplete debouncer whenever its
// value changed.
func (m *model) observe() tea.Cmd {
	value := m.input.Value()
	if value == m.observed {
		return nil
	}
	m.observed = value
	if timer, ok := m.ghost.Observe(value); ok {
		return debounceCmd(timer)
	}
	return nil
}

// submit appends command to the active timeline and sends it. Blank input is
// ignored.
func (m *model) submit(command string) tea.Cmd {
	if strings.TrimSpace(command) == "" {
		return nil
	}
	id := m.sessions.ActiveID()
	m.history.Push(command)
	m.sessions.Route(id, func(s *session.Session) {
		s.Timeline.AppendCommand(command)
	})
	m.input.SetValue("")
	m.observed = ""
	m.ghost.Reset()
	m.selected = noSelection
	m.follow = true
	m.statusLine = ""
	return submitCmd(m.api, m.ctx, id, command)
}

func (m *model) ask(prompt string, output *string) tea.Cmd {
	m.aiSeq++
	m.aiPending = true
	m.setAIResponse(thinkingText)
	req := client.AskRequest{Prompt: prompt, Output: output, SessionID: m.sessions.ActiveID()}
	return tea.Batch(askCmd(m.api, m.ctx, m.aiSeq, req), m.spinner.Tick)
}

func (m *model) handleAIResponse(msg aiResponseMsg) {
	if msg.seq != m.aiSeq {
		return
	}
	m.aiPending = false
	if msg.err != nil {
		m.logger.Warn("ai request failed", "error", msg.err)
		m.setAIResponse(aiFailureText)
		return
	}
	text := msg.response
	if strings.TrimSpace(text) == "" {
		text = aiEmptyText
	}
	m.setAIResponse(text)
	m.suggest.Apply(suggest.Parse(msg.response))

	m.aiHistory = append([]aiEntry{{Prompt: msg.prompt, Response: msg.response}}, m.aiHistory...)
	if len(m.aiHistory) > maxAIHistory {
		m.aiHistory = m.aiHistory[:maxAIHistory]
	}
}

func (m *model) setAIResponse(text string) {
	m.aiResponse = text
	m.aiRendered = text
	if m.renderer == nil || text == thinkingText {
		return
	}
	if out, err := m.renderer.Render(text); err == nil {
		m.aiRendered = strings.TrimSpace(out)
	}
}

func (m *model) selectedBlock() (session.Block, bool) {
	if m.selected == noSelection {
		return session.Block{}, false
	}
	b, ok := m.sessions.Active().Timeline.Block(m.selected)
	if !ok || !b.HasCommand() {
		return session.Block{}, false
	}
	return b, true
}

// moveSelection steps to the neighbouring command block. From no selection,
// moving up selects the newest one.
func (m *model) moveSelection(delta int) {
	tl := m.sessions.Active().Timeline
	i := m.selected
	if i == noSelection {
		if delta > 0 {
			return
		}
		i = tl.Len()
	}
	for i += delta; i >= 0 && i < tl.Len(); i += delta {
		if b, _ := tl.Block(i); b.HasCommand() {
			m.selected = i
			m.follow = false
			return
		}
	}
	if delta > 0 {
		m.selected = noSelection
		m.follow = true
	}
}

func (m *model) blockAction(msg tea.KeyMsg) tea.Cmd {
	b, ok := m.selectedBlock()
	if !ok {
		m.statusLine = "select a command block first (alt+↑)"
		return nil
	}
	switch {
	case key.Matches(msg, m.keys.Rerun):
		return m.submit(b.Command)
	case key.Matches(msg, m.keys.Copy):
		return copyCmd(m.writeClipboard, b.Command)
	case key.Matches(msg, m.keys.Explain):
		return m.ask("Explain the command: "+b.Command, nil)
	case key.Matches(msg, m.keys.ExplainOut):
		if strings.TrimSpace(b.Output) == "" {
			m.statusLine = "block has no output to explain"
			return nil
		}
		output := b.Output
		return m.ask(b.Command, &output)
	case key.Matches(msg, m.keys.Favorite):
		if m.favorites.Toggle(b.Command) {
			m.statusLine = fmt.Sprintf("added %q to favorites", b.Command)
		} else {
			m.statusLine = fmt.Sprintf("removed %q from favorites", b.Command)
		}
	}
	return nil
}

func (m *model) closeActive() tea.Cmd {
	id := m.sessions.ActiveID()
	if !m.sessions.Close(id) {
		m.statusLine = "the default session cannot be closed"
		return nil
	}
	delete(m.files, id)
	return tea.Batch(closeSessionCmd(m.api, m.ctx, id), m.activated())
}

// activated runs after the active session changed.
func (m *model) activated() tea.Cmd {
	m.selected = noSelection
	m.follow = true
	cmds := []tea.Cmd{fetchStatusCmd(m.api, m.ctx, m.sessions.ActiveID())}
	if m.cfg.Ingest.Pushes() && m.watching != m.sessions.ActiveID() {
		cmds = append(cmds, m.openStream(m.sessions.ActiveID()))
	}
	return tea.Batch(cmds...)
}

// openStream replaces the watched session. Messages from earlier streams
// carry an older generation and stop being re-armed.
func (m *model) openStream(sessionID string) tea.Cmd {
	m.stopStream()
	m.watchGen++
	ctx, cancel := context.WithCancel(m.ctx)
	ch := make(chan streamEvent, streamBuffer)
	m.watchCancel = cancel
	m.watchCh = ch
	m.watching = sessionID
	return tea.Batch(
		watchOutputCmd(m.api, ctx, sessionID, ch),
		waitStreamCmd(ch, sessionID, m.watchGen),
	)
}

func (m *model) stopStream() {
	if m.watchCancel != nil {
		m.watchCancel()
	}
	m.watchCancel = nil
	m.watchCh = nil
	m.watching = ""
}

func (m *model) shutdown() {
	m.stopStream()
	m.ghost.Reset()
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *model) resize(width, height int) {
	m.width = width
	m.height = height
	cols := m.mainWidth()
	m.aiPanelLines = max(4, height/4)
	m.viewport.Width = cols
	m.viewport.Height = max(3, height-m.aiPanelLines-7)
	m.input.Width = max(10, cols-len(m.sessions.Active().Cwd)-4)
	m.prompt.Width = max(10, cols-6)
	m.edit.Width = max(10, cols-8)
	m.help.Width = width
	m.renderer = newRenderer(max(20, cols-2))
	if !m.aiPending {
		m.setAIResponse(m.aiResponse)
	}
}

func (m *model) syncViewport() {
	content, line := m.renderTimeline(m.viewport.Width)
	m.viewport.SetContent(content)
	switch {
	case m.selected != noSelection && line >= 0:
		if line < m.viewport.YOffset || line >= m.viewport.YOffset+m.viewport.Height {
			m.viewport.SetYOffset(line)
		}
	case m.follow:
		m.viewport.GotoBottom()
	}
}
