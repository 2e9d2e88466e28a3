// Package delivery injects capability bundles into a live conversation.
//
// Durable injection: a bundle is delivered as two ordinary conversation
// messages instead of a tool result, because hosts prune tool results far
// more aggressively than conversation history. Both messages are marked
// no-reply so the host does not solicit an agent turn for them, and
// synthetic so the ingestion pipeline does not store them as memory.
package delivery

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hpungsan/mnemo/internal/observe"
	"github.com/hpungsan/mnemo/internal/skills"
)

// Message is one injected conversation message.
type Message struct {
	Text      string `json:"text"`
	NoReply   bool   `json:"no_reply"`
	Synthetic bool   `json:"synthetic"`
}

// Injector writes a message into the session's durable history.
type Injector interface {
	Inject(ctx context.Context, sessionID string, msg Message) error
}

// InjectorFunc adapts a function to Injector.
type InjectorFunc func(ctx context.Context, sessionID string, msg Message) error

// Inject implements Injector.
func (f InjectorFunc) Inject(ctx context.Context, sessionID string, msg Message) error {
	return f(ctx, sessionID, msg)
}

// Protocol delivers bundles from a registry through an injector.
type Protocol struct {
	registry *skills.Registry
	injector Injector
	obs      *observe.Observer
}

// New creates a Protocol.
func New(registry *skills.Registry, injector Injector, obs *observe.Observer) *Protocol {
	if obs == nil {
		obs = observe.Discard()
	}
	return &Protocol{registry: registry, injector: injector, obs: obs}
}

// HeaderText is the first injected message for a bundle.
func HeaderText(b skills.Bundle) string {
	return fmt.Sprintf("The %q skill is loading\n%s", b.ID, b.Title)
}

// BodyText is the second injected message: base path, then content.
func BodyText(b skills.Bundle) string {
	return fmt.Sprintf("Base directory for this skill: %s\n\n%s", b.BasePath, b.Body)
}

// Messages returns the ordered messages that deliver b.
func Messages(b skills.Bundle) []Message {
	return []Message{
		{Text: HeaderText(b), NoReply: true, Synthetic: true},
		{Text: BodyText(b), NoReply: true, Synthetic: true},
	}
}

// Invoke delivers the bundle id into sessionID and returns a confirmation.
// Failures are returned as a message for the calling agent, never as an
// error.
func (p *Protocol) Invoke(ctx context.Context, id, sessionID string) string {
	ctx, span := p.obs.StartSpan(ctx, "delivery.Invoke")
	defer span.End()
	span.SetAttributes(attribute.String("skill", id))

	b, ok := p.registry.Get(id)
	if !ok {
		span.SetStatus(codes.Error, "unknown skill")
		return fmt.Sprintf("Failed to load skill %q: no such skill. Available skills: %s", id, p.available())
	}

	for i, msg := range Messages(b) {
		if err := p.injector.Inject(ctx, sessionID, msg); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "inject failed")
			p.obs.Log().Warn().
				Str("skill", id).
				Str("session", sessionID).
				Int("message", i+1).
				Err(err).
				Msg("skill injection failed")
			return fmt.Sprintf("Failed to load skill %q: %v", id, err)
		}
	}

	p.obs.Log().Info().Str("skill", id).Str("session", sessionID).Msg("skill injected")
	return fmt.Sprintf("Skill %q loaded. Its instructions are now part of this conversation.", id)
}

func (p *Protocol) available() string {
	list := p.registry.List()
	if len(list) == 0 {
		return "(none)"
	}
	ids := make([]string, len(list))
	for i, b := range list {
		ids[i] = b.ID
	}
	return strings.Join(ids, ", ")
}
