package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"duffel/pkg/model"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS change_journal (
	id       UUID PRIMARY KEY,
	list_id  UUID NOT NULL,
	actor_id UUID NOT NULL,
	seq      BIGINT NOT NULL,
	action   TEXT NOT NULL,
	entity_id UUID NOT NULL,
	batch_id UUID,
	at       TIMESTAMPTZ NOT NULL,
	payload  JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_change_journal_list_seq ON change_journal (list_id, seq DESC);
`

// PostgresStore journals entries in Postgres. Appends are idempotent on the
// entry ID so at-least-once delivery from the publisher is safe.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the journal table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, journalSchema); err != nil {
		return fmt.Errorf("ensure journal schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	const q = `
		INSERT INTO change_journal (id, list_id, actor_id, seq, action, entity_id, batch_id, at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	var batchID any
	if entry.BatchID != uuid.Nil {
		batchID = entry.BatchID.String()
	}
	_, err := s.db.ExecContext(ctx, q,
		entry.ID.String(),
		entry.ListID.String(),
		entry.ActorID.String(),
		int64(entry.Seq),
		entry.Action,
		entry.EntityID.String(),
		batchID,
		entry.At,
		[]byte(entry.Payload),
	)
	if err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByList(ctx context.Context, listID model.ListID, limit int) ([]Entry, error) {
	const q = `
		SELECT id::text, list_id::text, actor_id::text, seq, action, entity_id::text, batch_id::text, at, payload
		FROM change_journal
		WHERE list_id = $1
		ORDER BY seq DESC, at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, q, listID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var (
			e        Entry
			id       string
			listID   string
			actorID  string
			seq      int64
			entityID string
			batchID  sql.NullString
		)
		if err := rows.Scan(&id, &listID, &actorID, &seq, &e.Action, &entityID, &batchID, &e.At, (*[]byte)(&e.Payload)); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		var err error
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse journal id: %w", err)
		}
		if e.ListID, err = model.ParseListID(listID); err != nil {
			return nil, err
		}
		if e.ActorID, err = model.ParseActorID(actorID); err != nil {
			return nil, err
		}
		if batchID.Valid {
			if e.BatchID, err = uuid.Parse(batchID.String); err != nil {
				return nil, fmt.Errorf("parse journal batch id: %w", err)
			}
		}
		e.Seq = uint64(seq)
		e.EntityID, err = uuid.Parse(entityID)
		if err != nil {
			return nil, fmt.Errorf("parse journal entity id: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
