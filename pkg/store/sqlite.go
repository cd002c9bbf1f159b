package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"

	"github.com/charla-ai/charla/pkg/model"
)

// SQLiteStore implements Store on a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

var _ Store = &SQLiteStore{}

// NewSQLiteStore opens (or creates) the database at path and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite store: empty path")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "sqlite store: create db dir")
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "sqlite store: open")
	}
	s := &SQLiteStore{
		db:      db,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS personas (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT '',
			biography TEXT NOT NULL DEFAULT '',
			key_traits TEXT NOT NULL DEFAULT '[]',
			speech_tics TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			persona_id TEXT REFERENCES personas(id),
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
			content TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS messages_by_conversation ON messages(conversation_id, created_at, id);`,
		`CREATE INDEX IF NOT EXISTS personas_by_created ON personas(created_at, id);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite store: migrate")
		}
	}
	return nil
}

// newMessageID returns a monotonic ULID so message ids sort by creation order
// even when two rows share a timestamp, as the two halves of an exchange do.
func (s *SQLiteStore) newMessageID() string {
	s.entropyMu.Lock()
	defer s.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) GetOrCreateConversation(ctx context.Context, id string) (*model.Conversation, error) {
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}
	now := time.Now().UTC()
	// INSERT OR IGNORE keeps this idempotent under concurrent first use.
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversations (id, persona_id, created_at) VALUES (?, NULL, ?)`,
		id, now,
	); err != nil {
		return nil, errors.Wrap(err, "sqlite store: create conversation")
	}
	return s.GetConversation(ctx, id)
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, COALESCE(persona_id, ''), created_at FROM conversations WHERE id = ?`, id)
	var conv model.Conversation
	if err := row.Scan(&conv.ID, &conv.PersonaID, &conv.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "sqlite store: get conversation")
	}
	return &conv, nil
}

func (s *SQLiteStore) SetConversationPersona(ctx context.Context, conversationID, personaID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET persona_id = ? WHERE id = ?`, personaID, conversationID)
	if err != nil {
		return errors.Wrap(err, "sqlite store: set conversation persona")
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return errors.Errorf("sqlite store: conversation %s not found", conversationID)
	}
	return nil
}

func (s *SQLiteStore) GetPersona(ctx context.Context, id string) (*model.Persona, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, role, biography, key_traits, speech_tics, created_at
		 FROM personas WHERE id = ?`, id)
	return scanPersona(row)
}

func (s *SQLiteStore) FirstPersona(ctx context.Context) (*model.Persona, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, role, biography, key_traits, speech_tics, created_at
		 FROM personas ORDER BY created_at ASC, id ASC LIMIT 1`)
	return scanPersona(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPersona(row rowScanner) (*model.Persona, error) {
	var p model.Persona
	var traits, tics string
	if err := row.Scan(&p.ID, &p.Name, &p.Role, &p.Biography, &traits, &tics, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "sqlite store: scan persona")
	}
	if err := json.Unmarshal([]byte(traits), &p.KeyTraits); err != nil {
		return nil, errors.Wrap(err, "sqlite store: decode key_traits")
	}
	if err := json.Unmarshal([]byte(tics), &p.SpeechTics); err != nil {
		return nil, errors.Wrap(err, "sqlite store: decode speech_tics")
	}
	return &p, nil
}

func (s *SQLiteStore) ListPersonas(ctx context.Context) ([]model.Persona, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, role, biography, key_traits, speech_tics, created_at
		 FROM personas ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite store: list personas")
	}
	defer rows.Close()
	var out []model.Persona
	for rows.Next() {
		p, err := scanPersona(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, errors.Wrap(rows.Err(), "sqlite store: list personas")
}

func (s *SQLiteStore) SeedPersonas(ctx context.Context, personas []model.Persona) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlite store: begin seed")
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range personas {
		traits, err := json.Marshal(p.KeyTraits)
		if err != nil {
			return errors.Wrapf(err, "sqlite store: encode key_traits for %s", p.Name)
		}
		tics, err := json.Marshal(p.SpeechTics)
		if err != nil {
			return errors.Wrapf(err, "sqlite store: encode speech_tics for %s", p.Name)
		}
		createdAt := p.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO personas (id, name, role, biography, key_traits, speech_tics, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				role = excluded.role,
				biography = excluded.biography,
				key_traits = excluded.key_traits,
				speech_tics = excluded.speech_tics`,
			p.ID, p.Name, p.Role, p.Biography, string(traits), string(tics), createdAt,
		); err != nil {
			return errors.Wrapf(err, "sqlite store: seed persona %s", p.Name)
		}
	}
	return errors.Wrap(tx.Commit(), "sqlite store: commit seed")
}

func (s *SQLiteStore) LastNTurns(ctx context.Context, conversationID string, n int) ([]model.Turn, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM messages
		 WHERE conversation_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, conversationID, n)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite store: last n turns")
	}
	defer rows.Close()
	var newestFirst []model.Turn
	for rows.Next() {
		var t model.Turn
		if err := rows.Scan(&t.Role, &t.Content); err != nil {
			return nil, errors.Wrap(err, "sqlite store: scan turn")
		}
		newestFirst = append(newestFirst, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite store: last n turns")
	}
	// Reverse so the oldest turn comes first, as prompt construction expects.
	out := make([]model.Turn, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		out = append(out, newestFirst[i])
	}
	return out, nil
}

func (s *SQLiteStore) AppendTurn(ctx context.Context, conversationID string, role model.Role, content string) error {
	if !role.Valid() {
		return errors.Errorf("sqlite store: invalid role %q", role)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		s.newMessageID(), conversationID, string(role), content, time.Now().UTC())
	return errors.Wrap(err, "sqlite store: append turn")
}

func (s *SQLiteStore) AppendExchange(ctx context.Context, conversationID, userText, assistantText string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlite store: begin exchange")
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES (?, ?, 'user', ?, ?)`,
		s.newMessageID(), conversationID, userText, now,
	); err != nil {
		return errors.Wrap(err, "sqlite store: append user turn")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES (?, ?, 'assistant', ?, ?)`,
		s.newMessageID(), conversationID, assistantText, now,
	); err != nil {
		return errors.Wrap(err, "sqlite store: append assistant turn")
	}
	return errors.Wrap(tx.Commit(), "sqlite store: commit exchange")
}

func (s *SQLiteStore) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, COALESCE(persona_id, ''), created_at FROM conversations ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite store: list conversations")
	}
	defer rows.Close()
	var out []model.Conversation
	for rows.Next() {
		var c model.Conversation
		if err := rows.Scan(&c.ID, &c.PersonaID, &c.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "sqlite store: scan conversation")
		}
		out = append(out, c)
	}
	return out, errors.Wrap(rows.Err(), "sqlite store: list conversations")
}

func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, created_at FROM messages
		 WHERE conversation_id = ?
		 ORDER BY created_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite store: list messages")
	}
	defer rows.Close()
	var out []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "sqlite store: scan message")
		}
		out = append(out, m)
	}
	return out, errors.Wrap(rows.Err(), "sqlite store: list messages")
}

func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	return errors.Wrap(err, "sqlite store: delete conversation")
}
