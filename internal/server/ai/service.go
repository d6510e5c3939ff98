// Package ai relays assistant queries to a language model, adding the
// session's directory, files and recent commands as context.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ccheshirecat/volterm/internal/server/db"
)

// CompletionPrefix marks an autocomplete query. The reply is reduced to a
// single command line.
const CompletionPrefix = "complete this command:"

// Replies returned in place of model output when the model cannot help.
const (
	ReplyUnreachable = "Could not reach the language model."
	ReplyMalformed   = "Could not read the language model's reply."
	ReplyEmpty       = "The language model returned an empty reply."
)

// ErrMalformedReply marks a model response that could not be decoded.
var ErrMalformedReply = errors.New("ai: malformed model reply")

var fencePattern = regexp.MustCompile("```[A-Za-z0-9_+-]*\\n([\\s\\S]*?)```")

// Request is an assistant query.
type Request struct {
	Prompt    string  `json:"prompt"`
	Output    *string `json:"output,omitempty"`
	SessionID string  `json:"session_id,omitempty"`
}

// Response wraps the assistant text.
type Response struct {
	Response string `json:"response"`
}

// CwdSource reports a session's working directory.
type CwdSource interface {
	Cwd(ctx context.Context, sessionID string) (string, error)
}

// Lister renders a long-form directory listing.
type Lister interface {
	Long(ctx context.Context, dir string) string
}

// CommandLog returns a session's most recent commands, oldest first.
type CommandLog interface {
	Recent(ctx context.Context, sessionID string, limit int) ([]db.Command, error)
}

// Options configure a Service.
type Options struct {
	Model    ChatModel
	Shells   CwdSource
	Files    Lister
	Commands CommandLog
	// Depth is how many recent commands the system prompt quotes.
	Depth  int
	Logger *slog.Logger
}

// Service answers assistant queries.
type Service struct {
	opts Options
}

// NewService builds a Service. Shells, Files and Commands may be nil.
func NewService(opts Options) (*Service, error) {
	if opts.Model == nil {
		return nil, fmt.Errorf("ai: chat model required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{opts: opts}, nil
}

// Answer returns the reply text for req. Model failures yield one of the
// Reply placeholders rather than an error, except for completions, which
// yield "".
func (s *Service) Answer(ctx context.Context, req Request) string {
	completion := isCompletion(req.Prompt) && req.Output == nil
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = "default"
	}
	logger := s.opts.Logger.With("session", sessionID)

	messages := []Message{
		{Role: "system", Content: s.systemPrompt(ctx, sessionID)},
		{Role: "user", Content: userPrompt(req)},
	}

	reply, err := s.opts.Model.Chat(ctx, messages)
	switch {
	case err != nil && completion:
		logger.Warn("complete command", "error", err)
		return ""
	case errors.Is(err, ErrMalformedReply):
		logger.Error("decode model reply", "error", err)
		return ReplyMalformed
	case err != nil:
		logger.Error("query model", "error", err)
		return ReplyUnreachable
	}

	if completion {
		return FirstFencedLine(reply)
	}
	if strings.TrimSpace(reply) == "" {
		return ReplyEmpty
	}
	return reply
}

func (s *Service) systemPrompt(ctx context.Context, sessionID string) string {
	cwd := ""
	if s.opts.Shells != nil {
		var err error
		if cwd, err = s.opts.Shells.Cwd(ctx, sessionID); err != nil {
			s.opts.Logger.Warn("resolve cwd", "session", sessionID, "error", err)
		}
	}

	files := "<unknown>"
	if cwd != "" && s.opts.Files != nil {
		files = s.opts.Files.Long(ctx, cwd)
	}

	var recent []string
	if s.opts.Commands != nil && s.opts.Depth > 0 {
		cmds, err := s.opts.Commands.Recent(ctx, sessionID, s.opts.Depth)
		if err != nil {
			s.opts.Logger.Warn("load recent commands", "session", sessionID, "error", err)
		}
		// Newest first.
		for i := len(cmds) - 1; i >= 0; i-- {
			recent = append(recent, fmt.Sprintf("%d. %s", len(recent)+1, Redact(cmds[i].Command)))
		}
	}

	if cwd == "" {
		cwd = "<unknown>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are a Linux terminal assistant. Current directory: %s.\n", cwd)
	fmt.Fprintf(&b, "Files:\n%s\n", files)
	fmt.Fprintf(&b, "Recent commands:\n%s\n", strings.Join(recent, "\n"))
	b.WriteString("When asked for a command, answer with ONE bash command inside a markdown code block. ")
	b.WriteString("When asked to explain output, explain it clearly and briefly.")
	return b.String()
}

func userPrompt(req Request) string {
	if req.Output != nil {
		return fmt.Sprintf("Explain the following output of the command '%s':\n\n%s", req.Prompt, *req.Output)
	}
	return req.Prompt
}

func isCompletion(prompt string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(prompt)), CompletionPrefix)
}

// FirstFencedLine returns the first line of the first fenced code block in
// text, or "" when there is none.
func FirstFencedLine(text string) string {
	m := fencePattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	line, _, _ := strings.Cut(strings.TrimSpace(m[1]), "\n")
	return strings.TrimSpace(line)
}
