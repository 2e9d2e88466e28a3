package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/mnemo/internal/chunk"
	"github.com/hpungsan/mnemo/internal/errors"
	"github.com/hpungsan/mnemo/internal/queue"
	"github.com/hpungsan/mnemo/internal/store"
	"github.com/hpungsan/mnemo/internal/store/storetest"
)

var session = Session{SubjectID: "alice", ConversationID: "alice-0123456789ab"}

func newPipeline(t *testing.T, fake *storetest.Fake, mode queue.Mode) *Pipeline {
	t.Helper()
	policy, err := chunk.NewPolicy(2500, 4500)
	require.NoError(t, err)
	q := queue.New(store.NewAdapter(fake, nil), queue.Options{Mode: mode})
	return New(policy, q, session, nil)
}

func textEvent(role store.Role, text string) Event {
	return Event{Role: role, Parts: []Part{{Type: PartText, Text: text}}}
}

func TestExtract(t *testing.T) {
	parts := []Part{
		{Type: PartText, Text: "first"},
		{Type: "file", Text: "ignored by type"},
		{Type: PartText, Text: "injected", Synthetic: true},
		{Type: PartText, Text: "hidden", Ignored: true},
		{Type: PartText, Text: ""},
		{Type: PartText, Text: "second"},
	}
	assert.Equal(t, "first\nsecond", Extract(parts))
	assert.Equal(t, "", Extract(nil))
}

func TestOnMessage_ShortMessageIsOneDirectJob(t *testing.T) {
	fake := storetest.New()
	p := newPipeline(t, fake, queue.Blocking)

	res, err := p.OnMessage(context.Background(), textEvent(store.RoleSubject, "hello"))
	require.NoError(t, err)
	assert.Equal(t, chunk.Direct, res.Kind)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, queue.Delivered, res.Outcome.Status)

	calls := fake.CallsOf("AppendMessages")
	require.Len(t, calls, 1)
	assert.Equal(t, session.ConversationID, calls[0].ConversationID)
	assert.Equal(t, []store.Message{{Role: store.RoleSubject, Content: "hello"}}, calls[0].Messages)
	assert.Empty(t, fake.CallsOf("AppendFact"))
}

func TestOnMessage_LongMessageIsTwoSegmentsInOrder(t *testing.T) {
	fake := storetest.New()
	p := newPipeline(t, fake, queue.Blocking)
	text := strings.Repeat("a", 4500) + strings.Repeat("b", 1500)

	res, err := p.OnMessage(context.Background(), textEvent(store.RoleAgent, text))
	require.NoError(t, err)
	assert.Equal(t, chunk.Segmented, res.Kind)

	calls := fake.CallsOf("AppendFact")
	require.Len(t, calls, 2)
	assert.Len(t, []rune(calls[0].Text), 4500)
	assert.Len(t, []rune(calls[1].Text), 1500)
	assert.Equal(t, text, calls[0].Text+calls[1].Text)
	assert.Equal(t, session.SubjectID, calls[0].SubjectID)
	assert.Empty(t, fake.CallsOf("AppendMessages"))
}

func TestOnMessage_EmptyTextNoJob(t *testing.T) {
	fake := storetest.New()
	p := newPipeline(t, fake, queue.Blocking)

	for _, ev := range []Event{
		{Role: store.RoleSubject},
		textEvent(store.RoleSubject, "   \n"),
		{Role: store.RoleAgent, Parts: []Part{{Type: PartText, Text: "skill body", Synthetic: true}}},
	} {
		res, err := p.OnMessage(context.Background(), ev)
		require.NoError(t, err)
		assert.Equal(t, chunk.None, res.Kind)
	}
	assert.Empty(t, fake.Calls())
}

func TestOnMessage_UnknownRole(t *testing.T) {
	fake := storetest.New()
	p := newPipeline(t, fake, queue.NonBlocking)

	_, err := p.OnMessage(context.Background(), textEvent("system", "hi"))
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
	assert.Empty(t, fake.Calls())
}

func TestOnMessage_NonBlockingReturnsBeforeWrite(t *testing.T) {
	fake := storetest.New()
	fake.Gate = make(chan struct{})
	p := newPipeline(t, fake, queue.NonBlocking)

	res, err := p.OnMessage(context.Background(), textEvent(store.RoleSubject, "hello"))
	require.NoError(t, err)
	assert.Nil(t, res.Outcome)
	assert.Empty(t, fake.CallsOf("AppendMessages"), "write must still be pending")

	close(fake.Gate)
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Len(t, fake.CallsOf("AppendMessages"), 1)
}

func TestOnMessage_BlockingWaitsForWrite(t *testing.T) {
	fake := storetest.New()
	fake.Gate = make(chan struct{})
	p := newPipeline(t, fake, queue.Blocking)

	done := make(chan error, 1)
	go func() {
		_, err := p.OnMessage(context.Background(), textEvent(store.RoleSubject, "hello"))
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("OnMessage returned before the write resolved")
	case <-time.After(20 * time.Millisecond):
	}

	fake.Gate <- struct{}{}
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("OnMessage did not return after the write resolved")
	}
}

func TestOnMessage_BlockingSurfacesDrop(t *testing.T) {
	fake := storetest.New()
	fake.Fail("AppendMessages", errors.FromStatus(401, "bad key"))
	p := newPipeline(t, fake, queue.Blocking)

	res, err := p.OnMessage(context.Background(), textEvent(store.RoleSubject, "hello"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
	require.NotNil(t, res.Outcome)
	assert.Equal(t, queue.Dropped, res.Outcome.Status)
}

func TestOnMessage_NonBlockingSwallowsDrop(t *testing.T) {
	fake := storetest.New()
	fake.Fail("AppendMessages", errors.FromStatus(500, "down"))
	p := newPipeline(t, fake, queue.NonBlocking)

	_, err := p.OnMessage(context.Background(), textEvent(store.RoleSubject, "hello"))
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestShutdown_FlushesThreeQueuedJobs(t *testing.T) {
	fake := storetest.New()
	fake.Gate = make(chan struct{})
	p := newPipeline(t, fake, queue.NonBlocking)

	for _, text := range []string{"one", "two", "three"} {
		_, err := p.OnMessage(context.Background(), textEvent(store.RoleSubject, text))
		require.NoError(t, err)
	}

	done := make(chan error, 1)
	go func() { done <- p.Shutdown(context.Background()) }()

	for i := 0; i < 3; i++ {
		select {
		case <-done:
			t.Fatalf("Shutdown completed after %d of 3 writes", i)
		case fake.Gate <- struct{}{}:
		}
	}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not complete")
	}

	calls := fake.CallsOf("AppendMessages")
	require.Len(t, calls, 3)
	assert.Equal(t, "one", calls[0].Messages[0].Content)
	assert.Equal(t, "three", calls[2].Messages[0].Content)
}
