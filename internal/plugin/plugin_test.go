package plugin

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/mnemo/internal/chunk"
	"github.com/hpungsan/mnemo/internal/config"
	"github.com/hpungsan/mnemo/internal/delivery"
	"github.com/hpungsan/mnemo/internal/errors"
	"github.com/hpungsan/mnemo/internal/identity"
	"github.com/hpungsan/mnemo/internal/ingest"
	"github.com/hpungsan/mnemo/internal/skills"
	"github.com/hpungsan/mnemo/internal/store"
	"github.com/hpungsan/mnemo/internal/store/storetest"
)

var skillFS = fstest.MapFS{
	"deploy/SKILL.md": &fstest.MapFile{Data: []byte(
		"---\nname: deploy\ndescription: Ship the service to production safely.\n---\n# Deploy\n\nSteps.")},
}

func enabledConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.APIKey = "key"
	cfg.SubjectID = "alice"
	return cfg
}

func TestPlugin_Disabled(t *testing.T) {
	p, err := New(Options{Sources: []skills.Source{skills.FSSource(skillFS, "/skills")}})
	require.NoError(t, err)
	assert.False(t, p.Enabled())

	require.NoError(t, p.Start(context.Background()))

	res, err := p.OnMessage(context.Background(), ingest.Event{
		Role:  store.RoleSubject,
		Parts: []ingest.Part{{Type: ingest.PartText, Text: "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, chunk.None, res.Kind)

	_, err = p.Remember(context.Background(), "a fact")
	assert.True(t, errors.Is(err, errors.ErrDisabled))
	_, err = p.Recall(context.Background(), "a query", 0)
	assert.True(t, errors.Is(err, errors.ErrDisabled))

	// Skills work without memory.
	assert.Equal(t, 1, p.Skills().Len())
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPlugin_StartEnsuresSubjectAndConversation(t *testing.T) {
	fake := storetest.New()
	p, err := New(Options{Config: enabledConfig(), Client: fake, OriginDir: t.TempDir(), Sources: []skills.Source{}})
	require.NoError(t, err)

	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Start(context.Background()), "start is idempotent")

	assert.Equal(t, identity.SourceOrigin, p.Identity().Source)
	assert.True(t, strings.HasPrefix(p.Identity().ConversationID, "alice-"))

	convs := fake.CallsOf("CreateConversation")
	require.Len(t, convs, 2)
	assert.Equal(t, p.Identity().ConversationID, convs[0].ConversationID)
	assert.Equal(t, "alice", convs[0].SubjectID)
}

func TestPlugin_ConversationOverride(t *testing.T) {
	cfg := enabledConfig()
	cfg.ConversationID = "pinned"

	p, err := New(Options{Config: cfg, Client: storetest.New(), OriginDir: t.TempDir(), Sources: []skills.Source{}})
	require.NoError(t, err)
	assert.Equal(t, "pinned", p.Identity().ConversationID)
	assert.Equal(t, identity.SourceOverride, p.Identity().Source)
}

func TestPlugin_IngestRememberRecall(t *testing.T) {
	fake := storetest.New()
	p, err := New(Options{Config: enabledConfig(), Client: fake, Sources: []skills.Source{}})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, p.Start(ctx))

	_, err = p.OnMessage(ctx, ingest.Event{
		Role:  store.RoleSubject,
		Parts: []ingest.Part{{Type: ingest.PartText, Text: "hello"}},
	})
	require.NoError(t, err)

	_, err = p.Remember(ctx, "alice likes green tea")
	require.NoError(t, err)

	out, err := p.Recall(ctx, "tea", 0)
	require.NoError(t, err)
	assert.Equal(t, "- alice likes green tea", out.Reply())

	require.NoError(t, p.Shutdown(ctx))
	msgs := fake.CallsOf("AppendMessages")
	require.Len(t, msgs, 1)
	assert.Equal(t, "alice-default", msgs[0].ConversationID)
}

func TestPlugin_BlockingMode(t *testing.T) {
	cfg := enabledConfig()
	blocking := false
	cfg.AsyncStorage = &blocking
	fake := storetest.New()
	fake.Fail("AppendMessages", errors.FromStatus(503, "down"))

	p, err := New(Options{Config: cfg, Client: fake, Sources: []skills.Source{}})
	require.NoError(t, err)

	_, err = p.OnMessage(context.Background(), ingest.Event{
		Role:  store.RoleAgent,
		Parts: []ingest.Part{{Type: ingest.PartText, Text: "reply"}},
	})
	assert.True(t, errors.Is(err, errors.ErrUnavailable))
}

func TestPlugin_SQLiteBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Backend = config.BackendSQLite
	cfg.SubjectID = "bob"

	p, err := New(Options{Config: cfg, GlobalDir: t.TempDir(), Sources: []skills.Source{}})
	require.NoError(t, err)
	require.True(t, p.Enabled())
	ctx := context.Background()
	require.NoError(t, p.Start(ctx))

	_, err = p.Remember(ctx, "bob keeps bees")
	require.NoError(t, err)
	out, err := p.Recall(ctx, "bees", 0)
	require.NoError(t, err)
	assert.Equal(t, "bob keeps bees", out.Facts[0].Fact)

	require.NoError(t, p.Shutdown(ctx))
}

func TestPlugin_Delivery(t *testing.T) {
	p, err := New(Options{Sources: []skills.Source{skills.FSSource(skillFS, "/skills")}})
	require.NoError(t, err)

	var got []delivery.Message
	inj := delivery.InjectorFunc(func(_ context.Context, _ string, m delivery.Message) error {
		got = append(got, m)
		return nil
	})

	reply := p.Delivery(inj).Invoke(context.Background(), "deploy", "s1")
	assert.Contains(t, reply, "loaded")
	require.Len(t, got, 2)
	assert.True(t, strings.HasPrefix(got[1].Text, "Base directory for this skill: /skills/deploy"))

	// Injected content is synthetic and never ingested as memory.
	text := ingest.Extract([]ingest.Part{{Type: ingest.PartText, Text: got[1].Text, Synthetic: got[1].Synthetic}})
	assert.Empty(t, text)
}
