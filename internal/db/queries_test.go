package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/mnemo/internal/errors"
	"github.com/hpungsan/mnemo/internal/store"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_CreateSubjectConflict(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSubject(ctx, "alice"))
	err := s.CreateSubject(ctx, "alice")
	assert.True(t, errors.Is(err, errors.ErrAlreadyExists))
}

func TestStore_CreateConversation(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	err := s.CreateConversation(ctx, "c1", "ghost")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	require.NoError(t, s.CreateSubject(ctx, "alice"))
	require.NoError(t, s.CreateConversation(ctx, "c1", "alice"))
	err = s.CreateConversation(ctx, "c1", "alice")
	assert.True(t, errors.Is(err, errors.ErrAlreadyExists))
}

func TestStore_AppendMessagesInOrder(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateSubject(ctx, "alice"))
	require.NoError(t, s.CreateConversation(ctx, "c1", "alice"))

	require.NoError(t, s.AppendMessages(ctx, "c1", []store.Message{
		{Role: store.RoleSubject, Content: "first"},
		{Role: store.RoleAgent, Content: "second"},
	}))
	require.NoError(t, s.AppendMessages(ctx, "c1", []store.Message{
		{Role: store.RoleSubject, Content: "third"},
	}))

	rows, err := s.DB().Query(`SELECT seq, role, content FROM messages WHERE conversation_id = ? ORDER BY seq`, "c1")
	require.NoError(t, err)
	defer rows.Close()

	var got []string
	for rows.Next() {
		var seq int
		var role, content string
		require.NoError(t, rows.Scan(&seq, &role, &content))
		assert.Equal(t, len(got)+1, seq)
		got = append(got, role+":"+content)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"subject:first", "agent:second", "subject:third"}, got)
}

func TestStore_AppendMessagesUnknownConversation(t *testing.T) {
	s := openStore(t)

	err := s.AppendMessages(context.Background(), "nope", []store.Message{{Role: store.RoleSubject, Content: "x"}})
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestStore_AppendMessagesInvalidRole(t *testing.T) {
	s := openStore(t)

	err := s.AppendMessages(context.Background(), "c1", []store.Message{{Role: "system", Content: "x"}})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestStore_SearchScopedToSubject(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	require.NoError(t, s.CreateSubject(ctx, "alice"))
	require.NoError(t, s.CreateSubject(ctx, "bob"))
	require.NoError(t, s.AppendFact(ctx, "alice", "prefers tabs over spaces"))
	require.NoError(t, s.AppendFact(ctx, "alice", "deploys on fridays"))
	require.NoError(t, s.AppendFact(ctx, "bob", "prefers spaces"))

	facts, err := s.Search(ctx, "alice", "tabs", 5)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "prefers tabs over spaces", facts[0].Fact)
	require.NotNil(t, facts[0].ValidFrom)
	assert.True(t, fixed.Equal(*facts[0].ValidFrom))
	assert.Nil(t, facts[0].ValidTo)

	facts, err = s.Search(ctx, "alice", "tabs fridays", 5)
	require.NoError(t, err)
	assert.Len(t, facts, 2)

	facts, err = s.Search(ctx, "bob", "tabs", 5)
	require.NoError(t, err)
	assert.Empty(t, facts)
}

func TestStore_SearchLimit(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateSubject(ctx, "alice"))
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendFact(ctx, "alice", "coffee fact"))
	}

	facts, err := s.Search(ctx, "alice", "coffee", 2)
	require.NoError(t, err)
	assert.Len(t, facts, 2)
}

func TestStore_AppendFactUnknownSubject(t *testing.T) {
	s := openStore(t)

	err := s.AppendFact(context.Background(), "ghost", "x")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestStore_ThroughAdapter(t *testing.T) {
	s := openStore(t)
	a := store.NewAdapter(s, nil)
	ctx := context.Background()

	require.NoError(t, a.EnsureSubject(ctx, "alice"))
	require.NoError(t, a.EnsureSubject(ctx, "alice"))
	require.NoError(t, a.EnsureConversation(ctx, "c1", "alice"))
	require.NoError(t, a.EnsureConversation(ctx, "c1", "alice"))
}
