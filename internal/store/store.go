// Package store defines the contract with the external memory service and the
// idempotent adapter the rest of mnemo talks to.
package store

import (
	"context"
	"time"
)

// Role tags a message with its author.
type Role string

const (
	RoleSubject Role = "subject"
	RoleAgent   Role = "agent"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleSubject || r == RoleAgent
}

// Message is one conversational turn written through the append path.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Fact is a search hit returned by the store.
type Fact struct {
	Fact      string     `json:"fact"`
	ValidFrom *time.Time `json:"valid_from,omitempty"`
	ValidTo   *time.Time `json:"valid_to,omitempty"`
}

// Client is the minimal contract of the memory service.
//
// Create operations return an ALREADY_EXISTS error for records that exist.
// Implementations neither retry nor batch.
type Client interface {
	CreateSubject(ctx context.Context, subjectID string) error
	CreateConversation(ctx context.Context, conversationID, subjectID string) error
	AppendMessages(ctx context.Context, conversationID string, messages []Message) error
	AppendFact(ctx context.Context, subjectID, text string) error
	Search(ctx context.Context, subjectID, query string, limit int) ([]Fact, error)
}
