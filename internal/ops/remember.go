package ops

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hpungsan/mnemo/internal/config"
	"github.com/hpungsan/mnemo/internal/errors"
)

// RememberInput contains parameters for the Remember operation.
type RememberInput struct {
	SubjectID string
	Fact      string // required
}

// RememberOutput contains the result of the Remember operation.
type RememberOutput struct {
	SubjectID string `json:"subject_id"`
	Chars     int    `json:"chars"`
}

// Reply implements Replier.
func (o *RememberOutput) Reply() string {
	return fmt.Sprintf("Remembered (%d chars).", o.Chars)
}

// Remember stores a fact for the subject. The write goes straight through the
// store, not the ingestion queue, so its result can be reported.
func Remember(ctx context.Context, mem Memory, cfg *config.Config, input RememberInput) (*RememberOutput, error) {
	fact := strings.TrimSpace(input.Fact)
	if fact == "" {
		return nil, errors.NewInvalidRequest("fact is required")
	}
	if n := utf8.RuneCountInString(fact); n > cfg.FactMaxChars {
		return nil, errors.NewTooLarge("fact", cfg.FactMaxChars, n)
	}
	if mem == nil {
		return nil, disabled()
	}

	if err := mem.AppendFact(ctx, input.SubjectID, fact); err != nil {
		return nil, err
	}
	return &RememberOutput{SubjectID: input.SubjectID, Chars: utf8.RuneCountInString(fact)}, nil
}
