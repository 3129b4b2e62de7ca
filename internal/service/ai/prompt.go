package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/medintell/oncochat/backend/internal/model/chat"
	"github.com/medintell/oncochat/backend/internal/model/persona"
)

const contextHeader = "Below is the relevant context retrieved from our medical database:"

// Payload is the model-ready request for one turn.
type Payload struct {
	Model    string            `json:"model"`
	Messages []*schema.Message `json:"messages"`
}

// Composer turns retrieval context, history and the new user turn into a
// Payload. It performs no I/O and never mutates its inputs.
type Composer struct {
	template     *prompt.DefaultChatTemplate
	persona      persona.Persona
	defaultModel string
	tokenBudget  int
	countTokens  TokenCounter
}

// ComposerOption customises a Composer.
type ComposerOption func(*Composer)

// WithTokenBudget limits the history so the whole payload fits budget tokens.
// A non-positive budget keeps the full history.
func WithTokenBudget(budget int) ComposerOption {
	return func(c *Composer) {
		c.tokenBudget = budget
	}
}

// WithTokenCounter overrides the counter used for the token budget.
func WithTokenCounter(counter TokenCounter) ComposerOption {
	return func(c *Composer) {
		if counter != nil {
			c.countTokens = counter
		}
	}
}

// NewComposer builds a composer for p that falls back to defaultModel.
func NewComposer(p persona.Persona, defaultModel string, opts ...ComposerOption) *Composer {
	c := &Composer{
		template: prompt.FromMessages(
			schema.FString,
			schema.SystemMessage("{system}"),
			schema.MessagesPlaceholder("history", true),
			schema.UserMessage("{query}"),
		),
		persona:      p,
		defaultModel: defaultModel,
		countTokens:  EstimateTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithPersona returns a copy of the composer speaking as p.
func (c *Composer) WithPersona(p persona.Persona) *Composer {
	clone := *c
	clone.persona = p
	return &clone
}

// Persona reports the persona used for the system prompt.
func (c *Composer) Persona() persona.Persona {
	return c.persona
}

// ResolveModel returns override when set, otherwise the configured default.
func (c *Composer) ResolveModel(override string) string {
	if m := strings.TrimSpace(override); m != "" {
		return m
	}
	return c.defaultModel
}

// ComposePayload returns [system, ...history, user]. The system message holds
// the persona instructions followed by contextText.
func (c *Composer) ComposePayload(contextText string, history []chat.Message, userTurn, model string) (Payload, error) {
	system := c.SystemPrompt(contextText)
	kept := trimHistory(c.countTokens, c.tokenBudget, system, userTurn, history)

	messages, err := c.template.Format(context.Background(), map[string]any{
		"system":  system,
		"history": buildHistoryMessages(kept),
		"query":   userTurn,
	})
	if err != nil {
		return Payload{}, fmt.Errorf("format prompt: %w", err)
	}

	return Payload{Model: c.ResolveModel(model), Messages: messages}, nil
}

// SystemPrompt renders the persona block and appends the retrieved context.
func (c *Composer) SystemPrompt(contextText string) string {
	p := c.persona

	var b strings.Builder
	if p.Name != "" {
		fmt.Fprintf(&b, "You are %s, a %s.", p.Name, p.Title)
		if p.Tone != "" {
			fmt.Fprintf(&b, " Your tone is %s.", p.Tone)
		}
		b.WriteString("\n")
	}
	if p.Description != "" {
		b.WriteString(p.Description)
		b.WriteString("\n")
	}
	if len(p.Instructions) > 0 {
		b.WriteString("\nGuidelines:\n- ")
		b.WriteString(strings.Join(p.Instructions, "\n- "))
		b.WriteString("\n")
	}
	if len(p.Expertise) > 0 {
		b.WriteString("\nAreas of expertise: ")
		b.WriteString(strings.Join(p.Expertise, ", "))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(contextHeader)
	b.WriteString("\n\n")
	b.WriteString(contextText)
	return b.String()
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		case chat.RoleSystem:
			history = append(history, schema.SystemMessage(msg.Content))
		}
	}
	return history
}
