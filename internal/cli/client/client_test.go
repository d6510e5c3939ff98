package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestSubmitCommandSendsForm(t *testing.T) {
	var gotCmd, gotSession string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/input" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotSession = r.URL.Query().Get("session_id")
		gotCmd = r.FormValue("cmd")
		w.WriteHeader(http.StatusOK)
	}))

	if err := c.SubmitCommand(context.Background(), "s-1", "ls -la"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if gotCmd != "ls -la" || gotSession != "s-1" {
		t.Fatalf("unexpected form: cmd=%q session=%q", gotCmd, gotSession)
	}
}

func TestPollOutputReturnsPlainText(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("total 0\n"))
	}))

	out, err := c.PollOutput(context.Background(), "default")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if out != "total 0\n" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestStatusLeavesAbsentFieldsNil(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"cwd":"/srv"}`))
	}))

	status, err := c.Status(context.Background(), "default")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Cwd == nil || *status.Cwd != "/srv" {
		t.Fatalf("unexpected cwd: %v", status.Cwd)
	}
	if status.HasFiles {
		t.Fatalf("files should be absent, got %v", status.Files)
	}
}

func TestStatusIgnoresMalformedField(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"cwd":42,"files":["a","b"]}`))
	}))

	status, err := c.Status(context.Background(), "")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Cwd != nil {
		t.Fatalf("malformed cwd should be treated as absent")
	}
	if !status.HasFiles || len(status.Files) != 2 {
		t.Fatalf("unexpected files: %v", status.Files)
	}
}

func TestAskEncodesOutputContext(t *testing.T) {
	var got AskRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(AskResponse{Response: "it lists files"})
	}))

	output := "total 0"
	resp, err := c.Ask(context.Background(), AskRequest{Prompt: "explain", Output: &output, SessionID: "default"})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if resp != "it lists files" {
		t.Fatalf("unexpected response %q", resp)
	}
	if got.Output == nil || *got.Output != "total 0" || got.SessionID != "default" {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestHTTPErrorCarriesServerMessage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"default session cannot be closed"}`))
	}))

	err := c.CloseSession(context.Background(), "default")
	if !IsStatus(err, http.StatusBadRequest) {
		t.Fatalf("expected 400 HTTPError, got %v", err)
	}
	if !strings.Contains(err.Error(), "default session cannot be closed") {
		t.Fatalf("message missing: %v", err)
	}
}

func TestWatchOutputDeliversChunks(t *testing.T) {
	upgrader := websocket.Upgrader{}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("session_id") != "s-2" {
			t.Errorf("unexpected session %q", r.URL.Query().Get("session_id"))
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for _, chunk := range []string{"foo", "bar"} {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(chunk))
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))

	var (
		mu     sync.Mutex
		chunks []string
	)
	err := c.WatchOutput(context.Background(), "s-2", func(chunk string) {
		mu.Lock()
		chunks = append(chunks, chunk)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if strings.Join(chunks, "") != "foobar" {
		t.Fatalf("unexpected chunks %v", chunks)
	}
}

func TestWatchOutputStopsOnCancel(t *testing.T) {
	upgrader := websocket.Upgrader{}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.WatchOutput(ctx, "default", nil) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected context error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("watch did not stop after cancel")
	}
}
