package chat

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"fiskeat/internal/llm"
	"fiskeat/internal/menu"
	"fiskeat/internal/nutrition"
	"fiskeat/internal/shared"
)

//go:embed chat_prompt.md
var chatPrompt string

var promptTmpl = template.Must(template.New("Chat").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(chatPrompt))

// maxHistory caps how many past messages are sent with each request.
const maxHistory = 20

// ErrEmptyMessage is returned when the conversation has nothing to answer.
var ErrEmptyMessage = errors.New("message is empty")

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Preferences are optional hints about what the student eats.
type Preferences struct {
	Dietary   []string         `json:"dietary,omitempty"`
	Allergens []string         `json:"allergens,omitempty"`
	Goals     *nutrition.Goals `json:"goals,omitempty"`
}

// Reply is the assistant's answer.
type Reply struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
	Meta     shared.CallMeta
}

// Client answers chat messages with an LLM, using the displayed menu as context.
type Client struct {
	textGen llm.TextGenerator
}

// NewClient creates a chat client.
func NewClient(textGen llm.TextGenerator) *Client {
	return &Client{textGen: textGen}
}

// SendMessage answers the last user message in history. menuCtx is only read.
func (c *Client) SendMessage(ctx context.Context, history []Message, prefs *Preferences, menuCtx *menu.Snapshot) (Reply, error) {
	if len(history) == 0 || strings.TrimSpace(history[len(history)-1].Content) == "" {
		return Reply{Error: ErrEmptyMessage.Error()}, ErrEmptyMessage
	}

	start := time.Now()
	prompt, err := buildPrompt(history, prefs, menuCtx)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to build chat prompt: %w", err)
	}

	resp, err := c.textGen.GenerateContent(ctx, prompt)
	meta := shared.CallMeta{Operation: "chat", Usage: resp.Usage, Latency: time.Since(start), Err: err}
	if err != nil {
		return Reply{Error: "Sorry, I couldn't answer that right now.", Meta: meta}, fmt.Errorf("failed to generate chat reply: %w", err)
	}

	return Reply{
		Success:  true,
		Response: strings.TrimSpace(resp.Content),
		Meta:     meta,
	}, nil
}

func buildPrompt(history []Message, prefs *Preferences, menuCtx *menu.Snapshot) (string, error) {
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}

	data := struct {
		History     []Message
		Preferences *Preferences
		Menu        *menu.Snapshot
	}{history, prefs, menuCtx}

	var buf bytes.Buffer
	if err := promptTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
