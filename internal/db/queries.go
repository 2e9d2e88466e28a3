package db

import (
	"context"
	"crypto/rand"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/mnemo/internal/errors"
	"github.com/hpungsan/mnemo/internal/store"
)

// DefaultSearchLimit applies when Search is called without a positive limit.
const DefaultSearchLimit = 10

// Store implements store.Client on a SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

var _ store.Client = (*Store)(nil)

// New wraps an initialized database.
func New(db *sql.DB) *Store {
	return &Store{
		db:      db,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Open initializes the database under baseDir and wraps it.
func Open(baseDir string) (*Store, error) {
	db, err := Init(baseDir)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database.
func (s *Store) DB() *sql.DB {
	return s.db
}

// newID generates a ULID. Monotonic entropy is not safe for concurrent use.
func (s *Store) newID(t time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), s.entropy).String()
}

// CreateSubject implements store.Client.
func (s *Store) CreateSubject(ctx context.Context, subjectID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subjects (id, created_at) VALUES (?, ?)`,
		subjectID, s.now().Unix())
	if err != nil {
		if isUniqueConstraintError(err) {
			return errors.NewAlreadyExists("subject", subjectID)
		}
		return errors.NewInternal(err)
	}
	return nil
}

// CreateConversation implements store.Client.
func (s *Store) CreateConversation(ctx context.Context, conversationID, subjectID string) error {
	ok, err := s.exists(ctx, `SELECT 1 FROM subjects WHERE id = ?`, subjectID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.NewNotFound("subject", subjectID)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, subject_id, created_at) VALUES (?, ?, ?)`,
		conversationID, subjectID, s.now().Unix())
	if err != nil {
		if isUniqueConstraintError(err) {
			return errors.NewAlreadyExists("conversation", conversationID)
		}
		return errors.NewInternal(err)
	}
	return nil
}

// AppendMessages implements store.Client. Messages get consecutive sequence
// numbers after the conversation's last message.
func (s *Store) AppendMessages(ctx context.Context, conversationID string, messages []store.Message) error {
	if len(messages) == 0 {
		return nil
	}
	for _, m := range messages {
		if !m.Role.Valid() {
			return errors.NewInvalidRequest("invalid role: " + string(m.Role))
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	var found int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE id = ?`, conversationID).Scan(&found)
	if err != nil {
		return errors.NewInternal(err)
	}
	if found == 0 {
		return errors.NewNotFound("conversation", conversationID)
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM messages WHERE conversation_id = ?`,
		conversationID).Scan(&seq)
	if err != nil {
		return errors.NewInternal(err)
	}

	now := s.now()
	for _, m := range messages {
		seq++
		_, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, conversation_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			s.newID(now), conversationID, seq, string(m.Role), m.Content, now.Unix())
		if err != nil {
			return errors.NewInternal(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// AppendFact implements store.Client. The fact is valid from the time it is
// written.
func (s *Store) AppendFact(ctx context.Context, subjectID, text string) error {
	ok, err := s.exists(ctx, `SELECT 1 FROM subjects WHERE id = ?`, subjectID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.NewNotFound("subject", subjectID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	now := s.now()
	id := s.newID(now)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO facts (id, subject_id, text, valid_from, valid_to, created_at) VALUES (?, ?, ?, ?, NULL, ?)`,
		id, subjectID, text, now.Unix(), now.Unix())
	if err != nil {
		return errors.NewInternal(err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO facts_fts (text, fact_id, subject_id) VALUES (?, ?, ?)`,
		text, id, subjectID)
	if err != nil {
		return errors.NewInternal(err)
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// Search implements store.Client. Results are ranked by BM25; any query term
// may match.
func (s *Store) Search(ctx context.Context, subjectID, query string, limit int) ([]store.Fact, error) {
	match := sanitizeFTS5Query(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.text, f.valid_from, f.valid_to
		FROM facts_fts
		JOIN facts f ON f.id = facts_fts.fact_id
		WHERE facts_fts MATCH ? AND facts_fts.subject_id = ?
		ORDER BY bm25(facts_fts), f.created_at DESC
		LIMIT ?`,
		match, subjectID, limit)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var facts []store.Fact
	for rows.Next() {
		var f store.Fact
		var from, to sql.NullInt64
		if err := rows.Scan(&f.Fact, &from, &to); err != nil {
			return nil, errors.NewInternal(err)
		}
		f.ValidFrom = fromNullUnix(from)
		f.ValidTo = fromNullUnix(to)
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return facts, nil
}

func (s *Store) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return true, nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for unique violations
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// sanitizeFTS5Query quotes every word so user input cannot inject FTS5
// syntax, and ORs the words together.
func sanitizeFTS5Query(query string) string {
	words := strings.Fields(query)
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		clean := strings.Map(func(r rune) rune {
			if r == '"' {
				return -1
			}
			return r
		}, w)
		if clean != "" {
			quoted = append(quoted, `"`+clean+`"`)
		}
	}
	return strings.Join(quoted, " OR ")
}

func fromNullUnix(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(n.Int64, 0).UTC()
	return &t
}
