// Package gemini adapts Google's Generative AI SDK to the assistant's model
// client contract.
package gemini

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/jarvas-assistant/jarvas/message"
)

// Config holds Gemini provider configuration.
type Config struct {
	APIKey      string
	Model       string
	Temperature float32
}

// DefaultConfig returns default Gemini configuration.
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       "gemini-1.5-flash",
		Temperature: 0.2,
	}
}

// Provider implements the model client for Gemini.
type Provider struct {
	config *Config
	client *genai.Client
}

// New creates a Gemini provider. Close must be called when done.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		return nil, fmt.Errorf("gemini config cannot be nil")
	}
	if config.Model == "" {
		config.Model = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Provider{config: config, client: client}, nil
}

// Close releases the underlying client.
func (p *Provider) Close() error {
	return p.client.Close()
}

// chatSession builds a chat with prior turns as history and returns the parts
// of the final message. System messages become the model's system instruction;
// Gemini only knows "user" and "model" roles.
func (p *Provider) chatSession(msgs []*message.Message) (*genai.ChatSession, []genai.Part) {
	gm := p.client.GenerativeModel(p.config.Model)
	gm.SetTemperature(p.config.Temperature)

	var system []string
	var history []*genai.Content
	for _, msg := range msgs {
		switch msg.Role {
		case message.RoleSystem:
			system = append(system, msg.Content)
		case message.RoleUser:
			history = append(history, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.Text(msg.Content)},
			})
		case message.RoleAssistant:
			history = append(history, &genai.Content{
				Role:  "model",
				Parts: []genai.Part{genai.Text(msg.Content)},
			})
		}
	}
	if len(system) > 0 {
		gm.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(strings.Join(system, "\n"))},
		}
	}

	cs := gm.StartChat()
	last := []genai.Part{genai.Text("")}
	if len(history) > 0 {
		cs.History = history[:len(history)-1]
		last = history[len(history)-1].Parts
	}
	return cs, last
}

// Chat performs a single non-streaming completion.
func (p *Provider) Chat(ctx context.Context, msgs []*message.Message) (string, error) {
	cs, last := p.chatSession(msgs)
	resp, err := cs.SendMessage(ctx, last...)
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}
	return collectText(resp), nil
}

// ChatStream performs a streaming completion, yielding text deltas.
func (p *Provider) ChatStream(ctx context.Context, msgs []*message.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		cs, last := p.chatSession(msgs)
		it := cs.SendMessageStream(ctx, last...)
		for {
			resp, err := it.Next()
			if err == iterator.Done {
				return
			}
			if err != nil {
				yield("", fmt.Errorf("Gemini streaming error: %w", err))
				return
			}
			if text := collectText(resp); text != "" {
				if !yield(text, nil) {
					return
				}
			}
		}
	}
}

func collectText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				sb.WriteString(string(txt))
			}
		}
	}
	return sb.String()
}
