package evidence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"acclaim/internal/recognition/models"
	id "acclaim/pkg/domain"
	"acclaim/pkg/platform/sentinel"
)

// PostgresStore persists evidence references. The bytes themselves live in
// the external evidence store; only the storage key is recorded here.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed evidence reference store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const evidenceSchema = `
CREATE TABLE IF NOT EXISTS evidence (
	id            UUID PRIMARY KEY,
	request_id    UUID NOT NULL,
	kind          TEXT NOT NULL,
	storage_key   TEXT NOT NULL,
	original_name TEXT NOT NULL,
	verified      BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS evidence_by_request ON evidence (request_id);
`

// EnsureSchema creates the evidence table.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, evidenceSchema); err != nil {
		return fmt.Errorf("ensure evidence schema: %w", err)
	}
	return nil
}

// Add inserts an evidence reference.
func (s *PostgresStore) Add(ctx context.Context, ev *models.Evidence) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evidence (id, request_id, kind, storage_key, original_name, verified)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.UUID(ev.ID), uuid.UUID(ev.RequestID), string(ev.Kind),
		ev.StorageKey, ev.OriginalName, ev.Verified,
	)
	if err != nil {
		return fmt.Errorf("insert evidence: %w", err)
	}
	return nil
}

// FindByID returns one evidence reference.
func (s *PostgresStore) FindByID(ctx context.Context, evidenceID id.EvidenceID) (*models.Evidence, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, request_id, kind, storage_key, original_name, verified
		FROM evidence WHERE id = $1`,
		uuid.UUID(evidenceID),
	)
	ev, err := scanEvidence(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get evidence: %w", err)
	}
	return ev, nil
}

// Remove deletes an evidence reference.
func (s *PostgresStore) Remove(ctx context.Context, evidenceID id.EvidenceID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM evidence WHERE id = $1`, uuid.UUID(evidenceID))
	if err != nil {
		return fmt.Errorf("delete evidence: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete evidence: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// ListByRequest returns a request's evidence references.
func (s *PostgresStore) ListByRequest(ctx context.Context, requestID id.RequestID) ([]*models.Evidence, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, kind, storage_key, original_name, verified
		FROM evidence WHERE request_id = $1
		ORDER BY original_name`,
		uuid.UUID(requestID),
	)
	if err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	defer rows.Close()

	var out []*models.Evidence
	for rows.Next() {
		ev, err := scanEvidence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvidence(row rowScanner) (*models.Evidence, error) {
	var (
		ev    models.Evidence
		evID  uuid.UUID
		reqID uuid.UUID
		kind  string
	)
	if err := row.Scan(&evID, &reqID, &kind, &ev.StorageKey, &ev.OriginalName, &ev.Verified); err != nil {
		return nil, err
	}
	ev.ID = id.EvidenceID(evID)
	ev.RequestID = id.RequestID(reqID)
	ev.Kind = models.EvidenceKind(kind)
	return &ev, nil
}
