package tui

import (
	"context"
	"errors"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccheshirecat/volterm/internal/cli/client"
	"github.com/ccheshirecat/volterm/internal/cli/config"
	"github.com/ccheshirecat/volterm/internal/terminal/autocomplete"
	"github.com/ccheshirecat/volterm/internal/terminal/session"
)

type fakeBackend struct {
	mu        sync.Mutex
	submitted []string
	asked     []client.AskRequest
	closed    []string
	askResp   string
	askErr    error
	submitErr error
}

func (f *fakeBackend) SubmitCommand(_ context.Context, sessionID, command string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, sessionID+":"+command)
	return f.submitErr
}

func (f *fakeBackend) PollOutput(context.Context, string) (string, error) { return "", nil }

func (f *fakeBackend) Status(context.Context, string) (*client.Status, error) {
	return &client.Status{}, nil
}

func (f *fakeBackend) Ask(_ context.Context, req client.AskRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, req)
	return f.askResp, f.askErr
}

func (f *fakeBackend) WatchOutput(ctx context.Context, _ string, _ func(string)) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeBackend) CloseSession(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, sessionID)
	return nil
}

func newTestModel(t *testing.T, ingest config.IngestMode) (model, *fakeBackend) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Ingest = ingest
	api := &fakeBackend{}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	m := newModel(ctx, cancel, api, cfg, nil)
	m.writeClipboard = func(string) error { return nil }
	return m, api
}

func send(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(model)
	require.True(t, ok)
	return out, cmd
}

func typeText(t *testing.T, m model, text string) model {
	t.Helper()
	for _, r := range text {
		m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func keyEnter() tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyEnter} }

func altRune(r rune) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}, Alt: true} }

func TestSubmitAppendsPendingAndSends(t *testing.T) {
	m, api := newTestModel(t, config.IngestPoll)
	m = typeText(t, m, "ls")

	m, cmd := send(t, m, keyEnter())
	require.NotNil(t, cmd)
	msg := cmd()
	assert.Equal(t, submitResultMsg{sessionID: session.DefaultID, command: "ls"}, msg)
	assert.Equal(t, []string{"default:ls"}, api.submitted)

	blocks := m.sessions.Active().Timeline.Blocks()
	require.Len(t, blocks, 1)
	assert.Equal(t, session.KindPending, blocks[0].Kind)
	assert.Equal(t, "ls", blocks[0].Command)
	assert.Empty(t, m.input.Value())
	assert.Equal(t, []string{"ls"}, m.history.Entries())
}

func TestSubmitBlankIgnored(t *testing.T) {
	m, _ := newTestModel(t, config.IngestPoll)
	m = typeText(t, m, "   ")
	m, cmd := send(t, m, keyEnter())
	assert.Nil(t, cmd)
	assert.Equal(t, 0, m.sessions.Active().Timeline.Len())
	assert.Equal(t, 0, m.history.Len())
}

func TestSubmitFailureLeavesTimeline(t *testing.T) {
	m, _ := newTestModel(t, config.IngestPoll)
	m = typeText(t, m, "ls")
	m, _ = send(t, m, keyEnter())
	before := m.sessions.Active().Timeline.Blocks()

	m, _ = send(t, m, submitResultMsg{sessionID: session.DefaultID, command: "ls", err: errors.New("connection refused")})
	assert.Contains(t, m.statusLine, "connection refused")
	assert.Equal(t, before, m.sessions.Active().Timeline.Blocks())
}

func TestPolledOutputCompletesPending(t *testing.T) {
	m, _ := newTestModel(t, config.IngestPoll)
	m = typeText(t, m, "pwd")
	m, _ = send(t, m, keyEnter())

	m, _ = send(t, m, outputMsg{sessionID: session.DefaultID, text: "/root\n"})
	blocks := m.sessions.Active().Timeline.Blocks()
	require.Len(t, blocks, 1)
	assert.Equal(t, session.KindCompleted, blocks[0].Kind)
	assert.Equal(t, "/root\n", blocks[0].Output)
}

func TestOutputForClosedSessionDropped(t *testing.T) {
	m, _ := newTestModel(t, config.IngestPoll)
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyCtrlN})
	closedID := m.sessions.ActiveID()
	require.NotEqual(t, session.DefaultID, closedID)

	m, cmd := send(t, m, tea.KeyMsg{Type: tea.KeyCtrlW})
	require.NotNil(t, cmd)
	assert.Equal(t, session.DefaultID, m.sessions.ActiveID())

	m, _ = send(t, m, chunkMsg{sessionID: closedID, text: "late"})
	m, _ = send(t, m, outputMsg{sessionID: closedID, text: "late"})
	_, ok := m.sessions.Get(closedID)
	assert.False(t, ok)
	assert.Equal(t, 1, m.sessions.Len())
}

func TestCloseDefaultRejected(t *testing.T) {
	m, _ := newTestModel(t, config.IngestPoll)
	m, cmd := send(t, m, tea.KeyMsg{Type: tea.KeyCtrlW})
	assert.Nil(t, cmd)
	assert.Equal(t, 1, m.sessions.Len())
	assert.NotEmpty(t, m.statusLine)
}

func TestPushedChunksCoalesce(t *testing.T) {
	m, _ := newTestModel(t, config.IngestPush)
	m, _ = send(t, m, chunkMsg{sessionID: session.DefaultID, text: "foo"})
	m, _ = send(t, m, chunkMsg{sessionID: session.DefaultID, text: "bar"})

	blocks := m.sessions.Active().Timeline.Blocks()
	require.Len(t, blocks, 1)
	assert.Equal(t, session.KindStream, blocks[0].Kind)
	assert.Equal(t, "foobar", blocks[0].Output)
}

func TestSwitchReopensStream(t *testing.T) {
	m, _ := newTestModel(t, config.IngestPush)
	m, _ = send(t, m, statusTickMsg{})
	assert.Equal(t, session.DefaultID, m.watching)
	firstGen := m.watchGen

	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyCtrlN})
	assert.Equal(t, m.sessions.ActiveID(), m.watching)
	assert.Greater(t, m.watchGen, firstGen)

	m, cmd := send(t, m, chunkMsg{sessionID: session.DefaultID, gen: firstGen, text: "old"})
	assert.Nil(t, cmd, "stale stream is not re-armed")
	def, _ := m.sessions.Get(session.DefaultID)
	assert.Equal(t, "old", def.Timeline.LastOutput())

	m, _ = send(t, m, streamClosedMsg{sessionID: session.DefaultID, gen: firstGen})
	assert.NotEmpty(t, m.watching, "stale close does not stop the live stream")
	m.shutdown()
}

func TestStatusOnlyOverwritesPresentFields(t *testing.T) {
	m, _ := newTestModel(t, config.IngestPoll)
	cwd := "/srv"
	m, _ = send(t, m, statusMsg{sessionID: session.DefaultID, status: &client.Status{Cwd: &cwd, Files: []string{"a"}, HasFiles: true}})
	m, _ = send(t, m, statusMsg{sessionID: session.DefaultID, status: &client.Status{}})

	assert.Equal(t, "/srv", m.sessions.Active().Cwd)
	assert.Equal(t, []string{"a"}, m.files[session.DefaultID])
}

func TestHistoryNavigation(t *testing.T) {
	m, _ := newTestModel(t, config.IngestPoll)
	for _, c := range []string{"a", "b", "c"} {
		m = typeText(t, m, c)
		m, _ = send(t, m, keyEnter())
	}

	up := tea.KeyMsg{Type: tea.KeyUp}
	for _, want := range []string{"c", "b", "a"} {
		m, _ = send(t, m, up)
		assert.Equal(t, want, m.input.Value())
	}
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, "b", m.input.Value())
}

func TestAIResponsePopulatesSuggestions(t *testing.T) {
	m, api := newTestModel(t, config.IngestPoll)
	api.askResp = "Try:\n```bash\nls -la\npwd\n```"

	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	m = typeText(t, m, "list files")
	m, cmd := send(t, m, keyEnter())
	require.NotNil(t, cmd)
	assert.True(t, m.aiPending)
	assert.Equal(t, uint64(1), m.aiSeq)

	resp, err := api.Ask(context.Background(), client.AskRequest{Prompt: "list files"})
	require.NoError(t, err)
	m, _ = send(t, m, aiResponseMsg{seq: 1, prompt: "list files", response: resp})

	assert.False(t, m.aiPending)
	assert.Equal(t, "ls -la", m.suggest.Primary)
	assert.Equal(t, []string{"pwd"}, m.suggest.Extras)
	require.Len(t, m.aiHistory, 1)
	assert.Equal(t, "list files", m.aiHistory[0].Prompt)

	m, _ = send(t, m, altRune('1'))
	assert.Equal(t, "pwd", m.suggest.Primary)
	assert.Empty(t, m.suggest.Extras)

	m, cmd = send(t, m, tea.KeyMsg{Type: tea.KeyEnter, Alt: true})
	require.NotNil(t, cmd)
	assert.False(t, m.suggest.HasPrimary())
	blocks := m.sessions.Active().Timeline.Blocks()
	require.Len(t, blocks, 1)
	assert.Equal(t, "pwd", blocks[0].Command)
}

func TestStaleAIResponseDropped(t *testing.T) {
	m, _ := newTestModel(t, config.IngestPoll)
	m.aiSeq = 2
	m.aiPending = true

	m, _ = send(t, m, aiResponseMsg{seq: 1, response: "```\nrm -rf /tmp/x\n```"})
	assert.True(t, m.aiPending)
	assert.False(t, m.suggest.HasPrimary())
}

func TestAIFailureShowsPlaceholder(t *testing.T) {
	m, _ := newTestModel(t, config.IngestPoll)
	m.aiSeq = 1
	m.aiPending = true
	m, _ = send(t, m, aiResponseMsg{seq: 1, err: errors.New("boom")})
	assert.Equal(t, aiFailureText, m.aiResponse)
	assert.Empty(t, m.aiHistory)
}

func TestAutocompleteDebouncesToOneQuery(t *testing.T) {
	m, api := newTestModel(t, config.IngestPoll)
	api.askResp = "ls -la"
	m = typeText(t, m, "ls")

	var cmds []tea.Cmd
	for gen := uint64(1); gen <= 2; gen++ {
		var cmd tea.Cmd
		m, cmd = send(t, m, debounceMsg{timer: autocomplete.Timer{Gen: gen}})
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	require.Len(t, cmds, 1)

	msg := cmds[0]()
	require.Len(t, api.asked, 1)
	assert.Equal(t, completionPrefix+"ls", api.asked[0].Prompt)

	m, _ = send(t, m, msg)
	ghost, ok := m.ghost.Suggestion()
	require.True(t, ok)
	assert.Equal(t, "ls -la", ghost)

	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, "ls -la", m.input.Value())
	_, ok = m.ghost.Suggestion()
	assert.False(t, ok)
}

func TestBlockActions(t *testing.T) {
	m, api := newTestModel(t, config.IngestPoll)
	m = typeText(t, m, "uname")
	m, _ = send(t, m, keyEnter())
	m, _ = send(t, m, outputMsg{sessionID: session.DefaultID, text: "Linux\n"})

	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyUp, Alt: true})
	require.Equal(t, 0, m.selected)

	m, _ = send(t, m, altRune('f'))
	assert.True(t, m.favorites.Contains("uname"))

	m, cmd := send(t, m, altRune('o'))
	require.NotNil(t, cmd)
	assert.True(t, m.aiPending)

	var copied string
	m.writeClipboard = func(s string) error { copied = s; return nil }
	m, cmd = send(t, m, altRune('c'))
	require.NotNil(t, cmd)
	m, _ = send(t, m, cmd())
	assert.Equal(t, "uname", copied)

	m, cmd = send(t, m, altRune('r'))
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, []string{"default:uname", "default:uname"}, api.submitted)
	assert.Equal(t, 2, m.sessions.Active().Timeline.Len())
}

func TestExplainOutputNeedsOutput(t *testing.T) {
	m, _ := newTestModel(t, config.IngestPoll)
	m = typeText(t, m, "true")
	m, _ = send(t, m, keyEnter())
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyUp, Alt: true})

	m, cmd := send(t, m, altRune('o'))
	assert.Nil(t, cmd)
	assert.False(t, m.aiPending)
}

func TestExplainOutputSendsCommandOnce(t *testing.T) {
	m, api := newTestModel(t, config.IngestPoll)
	m = typeText(t, m, "uname")
	m, _ = send(t, m, keyEnter())
	m, _ = send(t, m, outputMsg{sessionID: session.DefaultID, text: "Linux\n"})
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyUp, Alt: true})

	m, cmd := send(t, m, altRune('o'))
	require.NotNil(t, cmd)
	assert.True(t, m.aiPending)
	runBatch(cmd)

	require.Len(t, api.asked, 1)
	assert.Equal(t, "uname", api.asked[0].Prompt)
	require.NotNil(t, api.asked[0].Output)
	assert.Equal(t, "Linux\n", *api.asked[0].Output)
}

// runBatch executes cmd and, when it is a batch, each command inside it.
func runBatch(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	if batch, ok := cmd().(tea.BatchMsg); ok {
		for _, c := range batch {
			runBatch(c)
		}
	}
}

func TestViewRenders(t *testing.T) {
	m, _ := newTestModel(t, config.IngestPoll)
	m, _ = send(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m = typeText(t, m, "echo hi")
	m, _ = send(t, m, keyEnter())
	m, _ = send(t, m, outputMsg{sessionID: session.DefaultID, text: "hi\n"})

	view := m.View()
	assert.Contains(t, view, "echo hi")
	assert.Contains(t, view, "1:default")
}
