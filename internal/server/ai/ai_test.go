package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ccheshirecat/volterm/internal/server/db"
	"github.com/ccheshirecat/volterm/internal/shared/logging"
)

type stubModel struct {
	reply string
	err   error
	seen  []Message
}

func (m *stubModel) Chat(_ context.Context, messages []Message) (string, error) {
	m.seen = messages
	return m.reply, m.err
}

type stubShells map[string]string

func (s stubShells) Cwd(_ context.Context, id string) (string, error) { return s[id], nil }

type stubFiles struct{}

func (stubFiles) Long(_ context.Context, dir string) string { return "-rw-r--r-- 1 dev dev 0 go.mod (" + dir + ")" }

type stubLog []db.Command

func (l stubLog) Recent(_ context.Context, sessionID string, limit int) ([]db.Command, error) {
	var out []db.Command
	for _, c := range l {
		if c.SessionID == sessionID {
			out = append(out, c)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func newTestService(t *testing.T, model ChatModel) *Service {
	t.Helper()
	svc, err := NewService(Options{
		Model:  model,
		Shells: stubShells{"default": "/home/dev"},
		Files:  stubFiles{},
		Commands: stubLog{
			{SessionID: "default", Command: "ls"},
			{SessionID: "default", Command: "export API_TOKEN=hunter2"},
			{SessionID: "default", Command: "git status"},
			{SessionID: "other", Command: "uptime"},
		},
		Depth:  2,
		Logger: logging.NewWriter(io.Discard, "ai", 0),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestSystemPromptCarriesContext(t *testing.T) {
	model := &stubModel{reply: "Lists files."}
	svc := newTestService(t, model)

	got := svc.Answer(context.Background(), Request{Prompt: "Explain the command: ls"})
	if got != "Lists files." {
		t.Fatalf("unexpected reply %q", got)
	}
	if len(model.seen) != 2 {
		t.Fatalf("expected system and user messages, got %d", len(model.seen))
	}
	system := model.seen[0].Content
	for _, want := range []string{"/home/dev", "go.mod", "1. git status", "2. export API_TOKEN=***"} {
		if !strings.Contains(system, want) {
			t.Fatalf("system prompt missing %q:\n%s", want, system)
		}
	}
	if strings.Contains(system, "hunter2") || strings.Contains(system, "3. ls") {
		t.Fatalf("system prompt leaked or over-quoted:\n%s", system)
	}
	if model.seen[1].Content != "Explain the command: ls" {
		t.Fatalf("prompt not sent as written: %q", model.seen[1].Content)
	}
}

func TestOutputExplanationPrompt(t *testing.T) {
	model := &stubModel{reply: "Permission denied means..."}
	svc := newTestService(t, model)
	output := "cat: secret: Permission denied"

	svc.Answer(context.Background(), Request{Prompt: "cat secret", Output: &output})
	user := model.seen[1].Content
	if !strings.Contains(user, "'cat secret'") || !strings.HasSuffix(user, output) {
		t.Fatalf("unexpected user prompt %q", user)
	}
}

func TestCompletionReturnsFirstFencedLine(t *testing.T) {
	model := &stubModel{reply: "Try:\n```bash\ngit status --short\ngit diff\n```\nor not."}
	svc := newTestService(t, model)

	got := svc.Answer(context.Background(), Request{Prompt: "complete this command: git st"})
	if got != "git status --short" {
		t.Fatalf("unexpected completion %q", got)
	}

	model.reply = "no code here"
	if got := svc.Answer(context.Background(), Request{Prompt: "Complete this command: git"}); got != "" {
		t.Fatalf("expected empty completion, got %q", got)
	}
}

func TestModelFailuresBecomePlaceholders(t *testing.T) {
	model := &stubModel{err: errors.New("dial tcp: refused")}
	svc := newTestService(t, model)

	if got := svc.Answer(context.Background(), Request{Prompt: "list files"}); got != ReplyUnreachable {
		t.Fatalf("unexpected reply %q", got)
	}
	if got := svc.Answer(context.Background(), Request{Prompt: "complete this command: ls"}); got != "" {
		t.Fatalf("completion failure should be empty, got %q", got)
	}

	model.err = ErrMalformedReply
	if got := svc.Answer(context.Background(), Request{Prompt: "list files"}); got != ReplyMalformed {
		t.Fatalf("unexpected reply %q", got)
	}

	model.err, model.reply = nil, "  "
	if got := svc.Answer(context.Background(), Request{Prompt: "list files"}); got != ReplyEmpty {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestRedact(t *testing.T) {
	cases := map[string]string{
		"export AWS_SECRET=abc123":      "export AWS_SECRET=***",
		"echo $HOME $DB_PASS":           "echo $HOME $REDACTED",
		"mysql --password=hunter2 -u x": "mysql --password=*** -u x",
		"ls -la":                        "ls -la",
	}
	for in, want := range cases {
		if got := Redact(in); got != want {
			t.Fatalf("Redact(%q) = %q, want %q", in, got, want)
		}
	}
	if got := Redact("echo 'unterminated $TOKEN"); strings.Contains(got, "$TOKEN") {
		t.Fatalf("fallback did not redact: %q", got)
	}
}

func TestOllamaChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body chatRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body.Model != "coder" || body.Stream || len(body.Messages) != 1 {
			t.Errorf("unexpected request %+v", body)
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"hi"}}`))
	}))
	defer srv.Close()

	got, err := NewOllama(srv.URL+"/", "coder", time.Second).Chat(context.Background(), []Message{{Role: "user", Content: "hello"}})
	if err != nil || got != "hi" {
		t.Fatalf("chat = %q, %v", got, err)
	}
}

func TestOllamaErrors(t *testing.T) {
	missing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model 'coder' not found"}`))
	}))
	defer missing.Close()

	_, err := NewOllama(missing.URL, "coder", time.Second).Chat(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected status error, got %v", err)
	}

	garbled := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer garbled.Close()

	_, err = NewOllama(garbled.URL, "coder", time.Second).Chat(context.Background(), nil)
	if !errors.Is(err, ErrMalformedReply) {
		t.Fatalf("expected malformed reply, got %v", err)
	}
}

func TestRouter(t *testing.T) {
	svc := newTestService(t, &stubModel{reply: "ok"})
	srv := httptest.NewServer(NewRouter(svc))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/ai", "application/json", strings.NewReader(`{"prompt":"hello"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Response != "ok" {
		t.Fatalf("unexpected response %+v (%v)", out, err)
	}

	resp, err = http.Post(srv.URL+"/ai", "application/json", strings.NewReader(`{"prompt":"  "}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank prompt, got %d", resp.StatusCode)
	}
}
