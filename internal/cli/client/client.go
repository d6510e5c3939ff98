package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const defaultBaseURL = "http://127.0.0.1:3030"

// Client wraps HTTP and websocket access to the voltermd API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// Option customises a Client.
type Option func(*Client)

// WithTimeout bounds every non-streaming request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New creates a client with the provided base URL (e.g. http://127.0.0.1:3030).
func New(rawURL string, opts ...Option) (*Client, error) {
	if rawURL == "" {
		rawURL = defaultBaseURL
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("client: parse url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("client: parse url: %q is not absolute", rawURL)
	}
	c := &Client{
		baseURL: parsed,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// HTTPError is returned for any non-2xx response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("client: http %d", e.StatusCode)
	}
	return fmt.Sprintf("client: http %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an HTTPError with the given code.
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == code
}

// Status is the working directory snapshot of a session. Nil fields were
// absent from the response.
type Status struct {
	Cwd   *string  `json:"cwd,omitempty"`
	Files []string `json:"files,omitempty"`

	HasFiles bool `json:"-"`
}

// AskRequest is the single AI entry point. Output carries context for
// explanation prompts.
type AskRequest struct {
	Prompt    string  `json:"prompt"`
	Output    *string `json:"output,omitempty"`
	SessionID string  `json:"session_id,omitempty"`
}

// AskResponse carries the raw assistant text.
type AskResponse struct {
	Response string `json:"response"`
}

// SubmitCommand sends a literal command line to the session's shell.
func (c *Client) SubmitCommand(ctx context.Context, sessionID, command string) error {
	form := url.Values{"cmd": {command}}
	req, err := c.newFormRequest(ctx, http.MethodPost, "/input", sessionQuery(sessionID), form)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// PollOutput returns everything the session printed since its last command.
func (c *Client) PollOutput(ctx context.Context, sessionID string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/output", sessionQuery(sessionID), nil)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := c.do(req, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Status fetches the session's working directory and listing.
func (c *Client) Status(ctx context.Context, sessionID string) (*Status, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/status", sessionQuery(sessionID), nil)
	if err != nil {
		return nil, err
	}
	var raw map[string]json.RawMessage
	if err := c.do(req, &raw); err != nil {
		return nil, err
	}
	status := &Status{}
	if v, ok := raw["cwd"]; ok {
		var cwd string
		if json.Unmarshal(v, &cwd) == nil {
			status.Cwd = &cwd
		}
	}
	if v, ok := raw["files"]; ok {
		var files []string
		if json.Unmarshal(v, &files) == nil {
			status.Files = files
			status.HasFiles = true
		}
	}
	return status, nil
}

// Ask forwards a prompt to the AI relay.
func (c *Client) Ask(ctx context.Context, payload AskRequest) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/ai", nil, payload)
	if err != nil {
		return "", err
	}
	var resp AskResponse
	if err := c.do(req, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}

// CloseSession tears down the session's shell on the server.
func (c *Client) CloseSession(ctx context.Context, sessionID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/api/v1/sessions/"+url.PathEscape(sessionID), nil, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// WatchOutput streams raw output chunks for a session and invokes handler for
// each until the context is cancelled or the server closes the connection.
func (c *Client) WatchOutput(ctx context.Context, sessionID string, handler func(string)) error {
	wsURL := c.resolve("/ws", sessionQuery(sessionID))
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}

	conn, resp, err := c.dialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		if resp != nil {
			return &HTTPError{StatusCode: resp.StatusCode}
		}
		return fmt.Errorf("client: watch output: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("client: output stream error: %w", err)
		}
		if len(data) == 0 || handler == nil {
			continue
		}
		handler(string(data))
	}
}

func sessionQuery(sessionID string) url.Values {
	if strings.TrimSpace(sessionID) == "" {
		return nil
	}
	return url.Values{"session_id": {sessionID}}
}

func (c *Client) resolve(path string, query url.Values) *url.URL {
	ref := &url.URL{Path: path}
	if len(query) > 0 {
		ref.RawQuery = query.Encode()
	}
	return c.baseURL.ResolveReference(ref)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("client: encode body: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path, query).String(), &buf)
	if err != nil {
		return nil, fmt.Errorf("client: new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) newFormRequest(ctx context.Context, method, path string, query url.Values, form url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path, query).String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("client: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

// do executes req. A *bytes.Buffer out receives the raw body; any other
// non-nil out is JSON-decoded.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		httpErr := &HTTPError{StatusCode: resp.StatusCode}
		var apiErr map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil {
			if msg, ok := apiErr["error"].(string); ok {
				httpErr.Message = msg
			}
		}
		return httpErr
	}

	switch dst := out.(type) {
	case nil:
		return nil
	case *bytes.Buffer:
		if _, err := io.Copy(dst, resp.Body); err != nil {
			return fmt.Errorf("client: read response: %w", err)
		}
		return nil
	default:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("client: decode response: %w", err)
		}
		return nil
	}
}
