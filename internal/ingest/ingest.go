// Package ingest is the message-produced entry point of the write pipeline.
//
// The host calls OnMessage once per produced turn. The text parts are
// extracted, routed by the chunk policy and submitted to the write queue.
// In blocking mode OnMessage waits for the write; in non-blocking mode it
// returns as soon as the job is queued and failures only reach the log.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/hpungsan/mnemo/internal/chunk"
	"github.com/hpungsan/mnemo/internal/errors"
	"github.com/hpungsan/mnemo/internal/observe"
	"github.com/hpungsan/mnemo/internal/queue"
	"github.com/hpungsan/mnemo/internal/store"
)

// PartText is the only part type whose content is stored.
const PartText = "text"

// Part is one content part of a produced message.
type Part struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	// Synthetic parts were inserted by tooling, not typed or generated in
	// the turn (durably injected capability content among them).
	Synthetic bool `json:"synthetic,omitempty"`
	Ignored   bool `json:"ignored,omitempty"`
}

// Event is one message-produced callback.
type Event struct {
	Role  store.Role `json:"role"`
	Parts []Part     `json:"parts"`
}

// Extract joins the storable text parts of an event with newlines.
func Extract(parts []Part) string {
	var texts []string
	for _, p := range parts {
		if p.Type != PartText || p.Synthetic || p.Ignored || p.Text == "" {
			continue
		}
		texts = append(texts, p.Text)
	}
	return strings.Join(texts, "\n")
}

// Session names where ingested turns are written.
type Session struct {
	SubjectID      string
	ConversationID string
}

// Result describes what OnMessage did with an event.
type Result struct {
	Kind  chunk.Kind
	JobID string
	// Outcome is set in blocking mode only.
	Outcome *queue.Outcome
}

// Pipeline routes produced messages into the write queue. It owns its queue:
// no other call site may submit to it.
type Pipeline struct {
	policy  chunk.Policy
	queue   *queue.Queue
	session Session
	obs     *observe.Observer
}

// New creates a Pipeline.
func New(policy chunk.Policy, q *queue.Queue, session Session, obs *observe.Observer) *Pipeline {
	if obs == nil {
		obs = observe.Discard()
	}
	return &Pipeline{policy: policy, queue: q, session: session, obs: obs}
}

// Session returns the subject and conversation turns are written to.
func (p *Pipeline) Session() Session {
	return p.session
}

// OnMessage ingests one produced message.
//
// Empty text produces no job and no error. In non-blocking mode the returned
// error is only ever a validation error; store failures are logged by the
// queue. In blocking mode a dropped job is returned as an error.
func (p *Pipeline) OnMessage(ctx context.Context, ev Event) (Result, error) {
	if !ev.Role.Valid() {
		return Result{}, errors.NewInvalidRequest(fmt.Sprintf("unknown role %q", ev.Role))
	}

	text := Extract(ev.Parts)
	if strings.TrimSpace(text) == "" {
		return Result{Kind: chunk.None}, nil
	}

	plan := p.policy.Route(text)
	var job queue.Job
	switch plan.Kind {
	case chunk.Direct:
		job = queue.DirectJob(p.session.SubjectID, p.session.ConversationID,
			store.Message{Role: ev.Role, Content: plan.Text})
	case chunk.Segmented:
		job = queue.SegmentedJob(p.session.SubjectID, plan.Segments)
	default:
		return Result{Kind: chunk.None}, nil
	}

	ticket := p.queue.Submit(job)
	res := Result{Kind: plan.Kind, JobID: ticket.ID}

	p.obs.Log().Debug().
		Str("job", ticket.ID).
		Str("role", string(ev.Role)).
		Str("route", plan.Kind.String()).
		Int("segments", len(plan.Segments)).
		Msg("message ingested")

	if p.queue.Mode() != queue.Blocking {
		return res, nil
	}

	outcome, err := ticket.Wait(ctx)
	if err != nil {
		return res, fmt.Errorf("ingest: waiting for job %s: %w", ticket.ID, err)
	}
	res.Outcome = &outcome
	if outcome.Status == queue.Dropped {
		return res, fmt.Errorf("ingest: job %s dropped: %w", ticket.ID, outcome.Reason)
	}
	return res, nil
}

// Shutdown stops the pipeline and drains outstanding writes.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	return p.queue.Shutdown(ctx)
}
