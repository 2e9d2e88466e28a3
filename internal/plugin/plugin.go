// Package plugin wires the memory and skills components together and owns
// their lifecycle: New at process start, Start once the host is ready,
// Shutdown before exit.
//
// Without a store credential the plugin runs disabled: the same surface is
// exposed, ingestion is a no-op and memory operations reply that memory is
// disabled. Skills work either way.
package plugin

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hpungsan/mnemo/internal/chunk"
	"github.com/hpungsan/mnemo/internal/config"
	"github.com/hpungsan/mnemo/internal/db"
	"github.com/hpungsan/mnemo/internal/delivery"
	"github.com/hpungsan/mnemo/internal/identity"
	"github.com/hpungsan/mnemo/internal/ingest"
	"github.com/hpungsan/mnemo/internal/metrics"
	"github.com/hpungsan/mnemo/internal/observe"
	"github.com/hpungsan/mnemo/internal/ops"
	"github.com/hpungsan/mnemo/internal/queue"
	"github.com/hpungsan/mnemo/internal/skills"
	"github.com/hpungsan/mnemo/internal/store"
)

// Options configures New.
type Options struct {
	Config   *config.Config
	Observer *observe.Observer
	Metrics  *metrics.Metrics

	// GlobalDir holds the SQLite database for the sqlite backend.
	GlobalDir string
	// OriginDir is the host's working directory. Empty means unknown.
	OriginDir string

	// Client replaces the configured store client. Used by tests.
	Client store.Client
	// Sources replaces the configured skill directories. Used by tests.
	Sources []skills.Source
}

// Plugin is the composed memory and skills layer.
type Plugin struct {
	cfg      *config.Config
	obs      *observe.Observer
	identity identity.Resolution
	registry *skills.Registry

	// nil when disabled
	adapter  *store.Adapter
	pipeline *ingest.Pipeline
	closer   io.Closer
}

// New builds the plugin. It performs no store calls.
func New(opts Options) (*Plugin, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	obs := opts.Observer
	if obs == nil {
		obs = observe.Discard()
	}

	p := &Plugin{cfg: cfg, obs: obs}

	sources := opts.Sources
	if sources == nil {
		for _, dir := range cfg.SkillsDirs {
			sources = append(sources, skills.DirSource(dir))
		}
	}
	p.registry = skills.Discover(obs, sources...)

	origin := identity.CanonicalOrigin(opts.OriginDir)
	p.identity = identity.Resolve(cfg.ConversationID, cfg.SubjectID, origin)

	client := opts.Client
	if client == nil && cfg.Enabled() {
		c, closer, err := newClient(cfg, opts.GlobalDir)
		if err != nil {
			return nil, err
		}
		client, p.closer = c, closer
	}
	if client == nil {
		obs.Log().Info().Msg("memory disabled: no store configured")
		return p, nil
	}

	policy, err := chunk.NewPolicy(cfg.DirectLimit, cfg.SegmentLimit)
	if err != nil {
		p.close()
		return nil, err
	}

	mode := queue.NonBlocking
	if !cfg.NonBlocking() {
		mode = queue.Blocking
	}

	p.adapter = store.NewAdapter(client, obs)
	q := queue.New(p.adapter, queue.Options{
		Mode:      mode,
		WarnDepth: cfg.QueueWarnDepth,
		Observer:  obs,
		Metrics:   opts.Metrics,
	})
	p.pipeline = ingest.New(policy, q, ingest.Session{
		SubjectID:      cfg.SubjectID,
		ConversationID: p.identity.ConversationID,
	}, obs)

	obs.Log().Info().
		Str("subject", cfg.SubjectID).
		Str("conversation", p.identity.ConversationID).
		Str("conversation_source", string(p.identity.Source)).
		Str("mode", mode.String()).
		Str("backend", cfg.Backend).
		Msg("memory enabled")
	return p, nil
}

func newClient(cfg *config.Config, globalDir string) (store.Client, io.Closer, error) {
	if cfg.Backend == config.BackendSQLite {
		s, err := db.Open(globalDir)
		if err != nil {
			return nil, nil, fmt.Errorf("open local store: %w", err)
		}
		return s, s, nil
	}
	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	return store.NewHTTPClient(cfg.BaseURL, cfg.APIKey, timeout), nil, nil
}

// Enabled reports whether the memory layer is active.
func (p *Plugin) Enabled() bool {
	return p.adapter != nil
}

// Config returns the resolved configuration.
func (p *Plugin) Config() *config.Config {
	return p.cfg
}

// Identity returns the resolved conversation identity.
func (p *Plugin) Identity() identity.Resolution {
	return p.identity
}

// Skills returns the discovered capability bundles.
func (p *Plugin) Skills() *skills.Registry {
	return p.registry
}

// Start makes sure the subject and conversation exist. Both calls are
// idempotent, so Start runs on every launch.
func (p *Plugin) Start(ctx context.Context) error {
	if p.identity.SubjectScoped() {
		p.obs.Log().Warn().
			Str("conversation", p.identity.ConversationID).
			Msg("no working directory known: memory from different contexts will share one conversation")
	}
	if !p.Enabled() {
		return nil
	}
	if err := p.adapter.EnsureSubject(ctx, p.cfg.SubjectID); err != nil {
		return err
	}
	return p.adapter.EnsureConversation(ctx, p.identity.ConversationID, p.cfg.SubjectID)
}

// OnMessage ingests one produced message. It is a no-op when disabled.
func (p *Plugin) OnMessage(ctx context.Context, ev ingest.Event) (ingest.Result, error) {
	if !p.Enabled() {
		return ingest.Result{}, nil
	}
	return p.pipeline.OnMessage(ctx, ev)
}

// Remember stores a fact for the configured subject.
func (p *Plugin) Remember(ctx context.Context, fact string) (*ops.RememberOutput, error) {
	return ops.Remember(ctx, p.memory(), p.cfg, ops.RememberInput{SubjectID: p.cfg.SubjectID, Fact: fact})
}

// Recall searches the configured subject's facts.
func (p *Plugin) Recall(ctx context.Context, query string, limit int) (*ops.RecallOutput, error) {
	return ops.Recall(ctx, p.memory(), p.cfg, ops.RecallInput{SubjectID: p.cfg.SubjectID, Query: query, Limit: limit})
}

// memory returns the adapter as an untyped nil when disabled.
func (p *Plugin) memory() ops.Memory {
	if p.adapter == nil {
		return nil
	}
	return p.adapter
}

// Delivery returns the capability delivery protocol over inj.
func (p *Plugin) Delivery(inj delivery.Injector) *delivery.Protocol {
	return delivery.New(p.registry, inj, p.obs)
}

// Shutdown drains outstanding writes and releases the store.
func (p *Plugin) Shutdown(ctx context.Context) error {
	var err error
	if p.pipeline != nil {
		err = p.pipeline.Shutdown(ctx)
		if err != nil {
			p.obs.Log().Error().Err(err).Msg("write queue did not drain")
		}
	}
	if cerr := p.close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (p *Plugin) close() error {
	if p.closer == nil {
		return nil
	}
	c := p.closer
	p.closer = nil
	return c.Close()
}
