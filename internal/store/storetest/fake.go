// Package storetest provides an in-memory store.Client for tests.
package storetest

import (
	"context"
	"strings"
	"sync"

	"github.com/hpungsan/mnemo/internal/errors"
	"github.com/hpungsan/mnemo/internal/store"
)

// Call records one invocation of the fake.
type Call struct {
	Op             string
	SubjectID      string
	ConversationID string
	Messages       []store.Message
	Text           string
}

// Fake is a concurrency-safe store.Client that records every call in order.
//
// Gate, when set, is received from before each append completes, which lets a
// test hold writes in flight. FailOn maps an operation name to the error it
// returns.
type Fake struct {
	mu            sync.Mutex
	calls         []Call
	subjects      map[string]bool
	conversations map[string]bool
	facts         map[string][]string

	Gate   chan struct{}
	FailOn map[string]error
}

// New creates an empty Fake.
func New() *Fake {
	return &Fake{
		subjects:      make(map[string]bool),
		conversations: make(map[string]bool),
		facts:         make(map[string][]string),
		FailOn:        make(map[string]error),
	}
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsOf returns recorded calls for one operation.
func (f *Fake) CallsOf(op string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Fail makes op return err from now on.
func (f *Fake) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FailOn[op] = err
}

func (f *Fake) record(c Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.FailOn[c.Op]
}

func (f *Fake) wait(ctx context.Context) error {
	if f.Gate == nil {
		return nil
	}
	select {
	case <-f.Gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateSubject implements store.Client.
func (f *Fake) CreateSubject(_ context.Context, subjectID string) error {
	if err := f.record(Call{Op: "CreateSubject", SubjectID: subjectID}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subjects[subjectID] {
		return errors.NewAlreadyExists("subject", subjectID)
	}
	f.subjects[subjectID] = true
	return nil
}

// CreateConversation implements store.Client.
func (f *Fake) CreateConversation(_ context.Context, conversationID, subjectID string) error {
	if err := f.record(Call{Op: "CreateConversation", ConversationID: conversationID, SubjectID: subjectID}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conversations[conversationID] {
		return errors.NewAlreadyExists("conversation", conversationID)
	}
	f.conversations[conversationID] = true
	return nil
}

// AppendMessages implements store.Client.
func (f *Fake) AppendMessages(ctx context.Context, conversationID string, messages []store.Message) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	msgs := append([]store.Message(nil), messages...)
	return f.record(Call{Op: "AppendMessages", ConversationID: conversationID, Messages: msgs})
}

// AppendFact implements store.Client.
func (f *Fake) AppendFact(ctx context.Context, subjectID, text string) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	if err := f.record(Call{Op: "AppendFact", SubjectID: subjectID, Text: text}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.facts[subjectID] = append(f.facts[subjectID], text)
	return nil
}

// Search implements store.Client with a case-insensitive substring match.
func (f *Fake) Search(_ context.Context, subjectID, query string, limit int) ([]store.Fact, error) {
	if err := f.record(Call{Op: "Search", SubjectID: subjectID, Text: query}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Fact
	q := strings.ToLower(query)
	for _, text := range f.facts[subjectID] {
		if strings.Contains(strings.ToLower(text), q) {
			out = append(out, store.Fact{Fact: text})
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
