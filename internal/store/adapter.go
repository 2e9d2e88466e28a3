package store

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hpungsan/mnemo/internal/errors"
	"github.com/hpungsan/mnemo/internal/observe"
)

// Adapter wraps a Client. The ensure operations are idempotent: an
// already-exists response counts as success, so they are safe to call on
// every startup. Every call runs inside a tracing span.
type Adapter struct {
	client Client
	obs    *observe.Observer
}

// NewAdapter creates an Adapter. A nil observer discards logs.
func NewAdapter(client Client, obs *observe.Observer) *Adapter {
	if obs == nil {
		obs = observe.Discard()
	}
	return &Adapter{client: client, obs: obs}
}

// EnsureSubject creates the subject unless it already exists.
func (a *Adapter) EnsureSubject(ctx context.Context, subjectID string) error {
	ctx, span := a.span(ctx, "store.EnsureSubject", attribute.String("subject_id", subjectID))
	defer span.End()

	err := a.client.CreateSubject(ctx, subjectID)
	if errors.Is(err, errors.ErrAlreadyExists) {
		a.obs.Log().Debug().Str("subject", subjectID).Msg("subject already exists")
		return nil
	}
	return a.finish(span, "create subject", err)
}

// EnsureConversation creates the conversation unless it already exists.
func (a *Adapter) EnsureConversation(ctx context.Context, conversationID, subjectID string) error {
	ctx, span := a.span(ctx, "store.EnsureConversation",
		attribute.String("conversation_id", conversationID),
		attribute.String("subject_id", subjectID))
	defer span.End()

	err := a.client.CreateConversation(ctx, conversationID, subjectID)
	if errors.Is(err, errors.ErrAlreadyExists) {
		a.obs.Log().Debug().Str("conversation", conversationID).Msg("conversation already exists")
		return nil
	}
	return a.finish(span, "create conversation", err)
}

// AppendMessages writes messages to a conversation.
func (a *Adapter) AppendMessages(ctx context.Context, conversationID string, messages []Message) error {
	ctx, span := a.span(ctx, "store.AppendMessages",
		attribute.String("conversation_id", conversationID),
		attribute.Int("messages", len(messages)))
	defer span.End()

	return a.finish(span, "append messages", a.client.AppendMessages(ctx, conversationID, messages))
}

// AppendFact writes raw text through the fact-ingestion path.
func (a *Adapter) AppendFact(ctx context.Context, subjectID, text string) error {
	ctx, span := a.span(ctx, "store.AppendFact",
		attribute.String("subject_id", subjectID),
		attribute.Int("chars", len(text)))
	defer span.End()

	return a.finish(span, "append fact", a.client.AppendFact(ctx, subjectID, text))
}

// Search returns facts relevant to query.
func (a *Adapter) Search(ctx context.Context, subjectID, query string, limit int) ([]Fact, error) {
	ctx, span := a.span(ctx, "store.Search",
		attribute.String("subject_id", subjectID),
		attribute.Int("limit", limit))
	defer span.End()

	facts, err := a.client.Search(ctx, subjectID, query, limit)
	if err != nil {
		return nil, a.finish(span, "search", err)
	}
	span.SetAttributes(attribute.Int("results", len(facts)))
	return facts, nil
}

func (a *Adapter) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := a.obs.StartSpan(ctx, name)
	span.SetAttributes(attrs...)
	return ctx, span
}

// finish records err on the span and wraps it with the operation name.
func (a *Adapter) finish(span trace.Span, op string, err error) error {
	if err == nil {
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, errors.Class(err))
	return fmt.Errorf("%s: %w", op, err)
}
