package ops

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hpungsan/mnemo/internal/config"
	"github.com/hpungsan/mnemo/internal/errors"
	"github.com/hpungsan/mnemo/internal/store"
)

// RecallInput contains parameters for the Recall operation.
type RecallInput struct {
	SubjectID string
	Query     string // required
	Limit     int    // default: cfg.SearchLimit
}

// RecallOutput contains the result of the Recall operation.
type RecallOutput struct {
	Query string       `json:"query"`
	Facts []store.Fact `json:"facts"`
}

// Reply implements Replier: one fact per line, or NoResults.
func (o *RecallOutput) Reply() string {
	if len(o.Facts) == 0 {
		return NoResults
	}
	var b strings.Builder
	for i, f := range o.Facts {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(f.Fact)
		if span := validity(f); span != "" {
			b.WriteString(" (")
			b.WriteString(span)
			b.WriteByte(')')
		}
	}
	return b.String()
}

func validity(f store.Fact) string {
	const layout = "2006-01-02"
	switch {
	case f.ValidFrom != nil && f.ValidTo != nil:
		return fmt.Sprintf("valid %s to %s", f.ValidFrom.Format(layout), f.ValidTo.Format(layout))
	case f.ValidFrom != nil:
		return "valid since " + f.ValidFrom.Format(layout)
	case f.ValidTo != nil:
		return "valid until " + f.ValidTo.Format(layout)
	default:
		return ""
	}
}

// Recall searches the subject's facts.
func Recall(ctx context.Context, mem Memory, cfg *config.Config, input RecallInput) (*RecallOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, errors.NewInvalidRequest("query is required")
	}
	if n := utf8.RuneCountInString(query); n > cfg.QueryMaxChars {
		return nil, errors.NewTooLarge("query", cfg.QueryMaxChars, n)
	}
	limit := input.Limit
	if limit <= 0 || limit > cfg.SearchLimit {
		limit = cfg.SearchLimit
	}
	if mem == nil {
		return nil, disabled()
	}

	facts, err := mem.Search(ctx, input.SubjectID, query, limit)
	if err != nil {
		return nil, err
	}
	return &RecallOutput{Query: query, Facts: facts}, nil
}
