// Package ollama talks to a local Ollama daemon over its /api/chat endpoint.
// It is the default provider: no API key, streaming via NDJSON.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"time"

	"github.com/jarvas-assistant/jarvas/message"
)

// DefaultURL is where a locally installed Ollama listens.
const DefaultURL = "http://localhost:11434"

// Config holds Ollama provider configuration.
type Config struct {
	BaseURL     string
	Model       string
	Temperature float64
	NumCtx      int
}

// DefaultConfig returns a configuration for a local llama3.1 daemon.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     DefaultURL,
		Model:       "llama3.1",
		Temperature: 0.2,
		NumCtx:      4096,
	}
}

// Provider implements the model client against Ollama's chat API.
type Provider struct {
	config *Config
	client *http.Client
}

// New creates an Ollama provider.
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultURL
	}
	if config.Model == "" {
		config.Model = "llama3.1"
	}
	if config.NumCtx <= 0 {
		config.NumCtx = 4096
	}
	return &Provider{
		config: config,
		client: &http.Client{Timeout: 5 * time.Minute},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumCtx      int     `json:"num_ctx"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error,omitempty"`
}

func (p *Provider) newRequest(ctx context.Context, msgs []*message.Message, stream bool) (*http.Request, error) {
	payload := chatRequest{
		Model:    p.config.Model,
		Messages: make([]chatMessage, 0, len(msgs)),
		Stream:   stream,
		Options: chatOptions{
			Temperature: p.config.Temperature,
			NumCtx:      p.config.NumCtx,
		},
	}
	for _, msg := range msgs {
		payload.Messages = append(payload.Messages, chatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// Chat performs a single non-streaming completion.
func (p *Provider) Chat(ctx context.Context, msgs []*message.Message) (string, error) {
	req, err := p.newRequest(ctx, msgs, false)
	if err != nil {
		return "", err
	}

	httpResp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return "", fmt.Errorf("ollama API error (status %d): %s", httpResp.StatusCode, string(body))
	}

	var resp chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("ollama API error: %s", resp.Error)
	}
	return resp.Message.Content, nil
}

// ChatStream performs a streaming completion. Ollama streams newline-delimited
// JSON objects; each object's message.content is yielded as one chunk.
func (p *Provider) ChatStream(ctx context.Context, msgs []*message.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		req, err := p.newRequest(ctx, msgs, true)
		if err != nil {
			yield("", err)
			return
		}

		httpResp, err := p.client.Do(req)
		if err != nil {
			yield("", fmt.Errorf("ollama request: %w", err))
			return
		}
		defer httpResp.Body.Close()

		if httpResp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
			yield("", fmt.Errorf("ollama API error (status %d): %s", httpResp.StatusCode, string(body)))
			return
		}

		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var resp chatResponse
			if err := json.Unmarshal(line, &resp); err != nil {
				yield("", fmt.Errorf("decode ollama stream line: %w", err))
				return
			}
			if resp.Error != "" {
				yield("", fmt.Errorf("ollama API error: %s", resp.Error))
				return
			}
			if resp.Message.Content != "" {
				if !yield(resp.Message.Content, nil) {
					return
				}
			}
			if resp.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", fmt.Errorf("read ollama stream: %w", err))
		}
	}
}
