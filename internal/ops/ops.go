// Package ops implements the user-facing memory operations.
//
// Operations validate locally before touching the store: an invalid input
// never costs a network call. Results and failures are both rendered as text
// by Reply, since they are shown to the user inside the conversation.
package ops

import (
	"context"
	"fmt"

	"github.com/hpungsan/mnemo/internal/errors"
	"github.com/hpungsan/mnemo/internal/store"
)

// NoResults is the reply to a recall that matched nothing.
const NoResults = "no results"

// Memory is the store surface the operations need.
type Memory interface {
	AppendFact(ctx context.Context, subjectID, text string) error
	Search(ctx context.Context, subjectID, query string, limit int) ([]store.Fact, error)
}

// Replier is an operation result that renders itself for the user.
type Replier interface {
	Reply() string
}

// Reply renders an operation's result or error as user-facing text.
func Reply(op string, out Replier, err error) string {
	if err == nil {
		return out.Reply()
	}
	return Describe(op, err)
}

// Describe renders an error for the user. Validation and disabled errors
// are shown as-is; store failures name their class.
func Describe(op string, err error) string {
	switch {
	case errors.Is(err, errors.ErrInvalidRequest), errors.Is(err, errors.ErrTooLarge):
		return fmt.Sprintf("Invalid %s: %s", op, message(err))
	case errors.Is(err, errors.ErrDisabled):
		return message(err)
	default:
		return fmt.Sprintf("%s failed (%s): %v", op, errors.Class(err), err)
	}
}

func message(err error) string {
	if mErr := errors.From(err); mErr != nil {
		return mErr.Message
	}
	return err.Error()
}

// DisabledReason is the reply of every memory operation while no store is
// configured.
const DisabledReason = "Memory is disabled: set MNEMO_API_KEY, or MNEMO_STORE=sqlite for local storage."

func disabled() error {
	return errors.NewDisabled(DisabledReason)
}
