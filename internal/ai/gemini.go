package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiClient serves the same Client contract through Google's Gemini API.
// ChatConfig.BaseURL and APIKey are ignored; the key is bound at creation.
type GeminiClient struct {
	client *genai.Client
}

func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client failed: %w", err)
	}
	return &GeminiClient{client: client}, nil
}

func (c *GeminiClient) Close() error {
	return c.client.Close()
}

func (c *GeminiClient) Complete(ctx context.Context, cfg ChatConfig, messages []ChatMessage) (string, error) {
	chat, last, err := c.startChat(cfg, messages)
	if err != nil {
		return "", err
	}
	resp, err := chat.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return "", fmt.Errorf("gemini send message failed: %w", err)
	}
	text := responseText(resp)
	if text == "" {
		return "", ErrEmptyChoices
	}
	return text, nil
}

func (c *GeminiClient) StreamComplete(
	ctx context.Context,
	cfg ChatConfig,
	messages []ChatMessage,
	onChunk func(chunk string) error,
) (string, error) {
	chat, last, err := c.startChat(cfg, messages)
	if err != nil {
		return "", err
	}

	iter := chat.SendMessageStream(ctx, genai.Text(last))
	var full strings.Builder
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("gemini stream failed: %w", err)
		}
		text := responseText(resp)
		if text == "" {
			continue
		}
		full.WriteString(text)
		if err := onChunk(text); err != nil {
			return "", err
		}
	}
	return full.String(), nil
}

// startChat maps the role-tagged transcript onto a Gemini chat: system
// messages become the system instruction, assistant turns become "model"
// turns, and the final user message is returned for sending.
func (c *GeminiClient) startChat(cfg ChatConfig, messages []ChatMessage) (*genai.ChatSession, string, error) {
	if len(messages) == 0 || messages[len(messages)-1].Role != "user" {
		return nil, "", fmt.Errorf("gemini chat needs a trailing user message")
	}

	model := c.client.GenerativeModel(cfg.Model)
	var system []string
	var history []*genai.Content
	for _, m := range messages[:len(messages)-1] {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	if len(system) > 0 {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(strings.Join(system, "\n"))}}
	}

	chat := model.StartChat()
	chat.History = history
	return chat, messages[len(messages)-1].Content, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}
