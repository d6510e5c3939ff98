package tui

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ccheshirecat/volterm/internal/cli/client"
	"github.com/ccheshirecat/volterm/internal/cli/config"
	"github.com/ccheshirecat/volterm/internal/terminal/autocomplete"
)

// Backend is the remote shell service the controller drives.
type Backend interface {
	SubmitCommand(ctx context.Context, sessionID, command string) error
	PollOutput(ctx context.Context, sessionID string) (string, error)
	Status(ctx context.Context, sessionID string) (*client.Status, error)
	Ask(ctx context.Context, req client.AskRequest) (string, error)
	WatchOutput(ctx context.Context, sessionID string, handler func(string)) error
	CloseSession(ctx context.Context, sessionID string) error
}

const (
	completionPrefix = "complete this command: "
	requestTimeout   = 30 * time.Second
	streamBuffer     = 64
)

type pollTickMsg struct{}

type statusTickMsg struct{}

type outputMsg struct {
	sessionID string
	text      string
	err       error
}

type chunkMsg struct {
	sessionID string
	gen       uint64
	text      string
}

type streamClosedMsg struct {
	sessionID string
	gen       uint64
	err       error
}

type statusMsg struct {
	sessionID string
	status    *client.Status
	err       error
}

type submitResultMsg struct {
	sessionID string
	command   string
	err       error
}

type closeResultMsg struct {
	sessionID string
	err       error
}

type aiResponseMsg struct {
	seq      uint64
	prompt   string
	response string
	err      error
}

type debounceMsg struct {
	timer autocomplete.Timer
}

type completionMsg struct {
	token uint64
	text  string
	err   error
}

type copiedMsg struct {
	text string
	err  error
}

// streamEvent travels from the websocket goroutine to the event loop.
type streamEvent struct {
	text   string
	err    error
	closed bool
}

// Run launches the Bubble Tea TUI against the configured backend.
func Run(cfg config.ClientConfig, logger *slog.Logger) error {
	api, err := client.New(cfg.APIBase, client.WithTimeout(cfg.RequestTimeout))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := newModel(ctx, cancel, api, cfg, logger)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		cancel()
		return fmt.Errorf("tui: run: %w", err)
	}
	return nil
}

func submitCmd(api Backend, parent context.Context, sessionID, command string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, requestTimeout)
		defer cancel()
		err := api.SubmitCommand(ctx, sessionID, command)
		return submitResultMsg{sessionID: sessionID, command: command, err: err}
	}
}

func pollOutputCmd(api Backend, parent context.Context, sessionID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, requestTimeout)
		defer cancel()
		text, err := api.PollOutput(ctx, sessionID)
		return outputMsg{sessionID: sessionID, text: text, err: err}
	}
}

func fetchStatusCmd(api Backend, parent context.Context, sessionID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, requestTimeout)
		defer cancel()
		status, err := api.Status(ctx, sessionID)
		return statusMsg{sessionID: sessionID, status: status, err: err}
	}
}

func closeSessionCmd(api Backend, parent context.Context, sessionID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, requestTimeout)
		defer cancel()
		return closeResultMsg{sessionID: sessionID, err: api.CloseSession(ctx, sessionID)}
	}
}

func askCmd(api Backend, parent context.Context, seq uint64, req client.AskRequest) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, requestTimeout)
		defer cancel()
		resp, err := api.Ask(ctx, req)
		return aiResponseMsg{seq: seq, prompt: req.Prompt, response: resp, err: err}
	}
}

// completeCmd runs under a context the Suggester may cancel at any time.
func completeCmd(api Backend, ctx context.Context, sessionID string, q autocomplete.Query) tea.Cmd {
	return func() tea.Msg {
		resp, err := api.Ask(ctx, client.AskRequest{Prompt: completionPrefix + q.Input, SessionID: sessionID})
		return completionMsg{token: q.Token, text: resp, err: err}
	}
}

// watchOutputCmd starts the websocket reader in the background. Every chunk
// and the final close are forwarded on ch, which is closed afterwards.
func watchOutputCmd(api Backend, ctx context.Context, sessionID string, ch chan<- streamEvent) tea.Cmd {
	return func() tea.Msg {
		go func() {
			defer close(ch)
			err := api.WatchOutput(ctx, sessionID, func(chunk string) {
				select {
				case ch <- streamEvent{text: chunk}:
				case <-ctx.Done():
				}
			})
			if ctx.Err() != nil {
				err = nil
			}
			select {
			case ch <- streamEvent{closed: true, err: err}:
			case <-ctx.Done():
			}
		}()
		return nil
	}
}

func waitStreamCmd(ch <-chan streamEvent, sessionID string, gen uint64) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok || ev.closed {
			return streamClosedMsg{sessionID: sessionID, gen: gen, err: ev.err}
		}
		return chunkMsg{sessionID: sessionID, gen: gen, text: ev.text}
	}
}

func pollTickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return pollTickMsg{} })
}

func statusTickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return statusTickMsg{} })
}

func debounceCmd(t autocomplete.Timer) tea.Cmd {
	return tea.Tick(t.Delay, func(time.Time) tea.Msg { return debounceMsg{timer: t} })
}

func copyCmd(write func(string) error, text string) tea.Cmd {
	return func() tea.Msg {
		return copiedMsg{text: text, err: write(text)}
	}
}
