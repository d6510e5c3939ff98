package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatModel produces an assistant reply for a conversation.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// Ollama talks to an Ollama server's /api/chat endpoint without streaming.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama returns a client for the server at baseURL using model.
func NewOllama(baseURL, model string, timeout time.Duration) *Ollama {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model    string    `json:"model"`
	Stream   bool      `json:"stream"`
	Messages []Message `json:"messages"`
}

type chatResponse struct {
	Message *Message `json:"message"`
	Error   string   `json:"error,omitempty"`
}

// Chat sends messages and returns the reply content.
func (o *Ollama) Chat(ctx context.Context, messages []Message) (string, error) {
	data, err := json.Marshal(chatRequest{Model: o.model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("ai: encode chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("ai: build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ai: chat: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("ai: read chat response: %w", err)
	}

	var decoded chatResponse
	decodeErr := json.Unmarshal(body, &decoded)
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if decodeErr == nil && decoded.Error != "" {
			msg = decoded.Error
		}
		return "", fmt.Errorf("ai: chat status %d: %s", resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedReply, decodeErr)
	}
	if decoded.Message == nil {
		return "", ErrMalformedReply
	}
	return decoded.Message.Content, nil
}
