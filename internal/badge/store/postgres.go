package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"acclaim/internal/badge/models"
	id "acclaim/pkg/domain"
	"acclaim/pkg/platform/sentinel"
)

// PostgresStore persists badges in PostgreSQL. The partial unique index on
// (holder_id, competency_id) WHERE active is the storage-level enforcement of
// the one-active-badge invariant; the issuer's per-key lock prevents races
// from ever reaching it in normal operation.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed badge store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const badgeSchema = `
CREATE TABLE IF NOT EXISTS badges (
	id                  UUID PRIMARY KEY,
	competency_id       UUID NOT NULL,
	holder_id           UUID NOT NULL,
	certification_level TEXT NOT NULL,
	active              BOOLEAN NOT NULL,
	public              BOOLEAN NOT NULL DEFAULT FALSE,
	position            INT NOT NULL DEFAULT 0,
	granted_at          TIMESTAMPTZ NOT NULL,
	expires_at          TIMESTAMPTZ,
	source_request_id   UUID NOT NULL,
	revocation_reason   TEXT NOT NULL DEFAULT '',
	revoked_by          UUID
);
CREATE UNIQUE INDEX IF NOT EXISTS badges_one_active_per_key
	ON badges (holder_id, competency_id)
	WHERE active;
`

// EnsureSchema creates the badges table and its partial unique index.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, badgeSchema); err != nil {
		return fmt.Errorf("ensure badge schema: %w", err)
	}
	return nil
}

const badgeColumns = `id, competency_id, holder_id, certification_level,
	active, public, position, granted_at, expires_at, source_request_id,
	revocation_reason, revoked_by`

// Insert stores a new badge. A second active badge for the same key trips
// the partial unique index and surfaces as sentinel.ErrConflict.
func (s *PostgresStore) Insert(ctx context.Context, badge *models.Badge) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO badges (`+badgeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		uuid.UUID(badge.ID), uuid.UUID(badge.CompetencyID), uuid.UUID(badge.HolderID),
		string(badge.CertificationLevel), badge.Active, badge.Public, badge.Position,
		badge.GrantedAt, nullableTime(badge.ExpiresAt), uuid.UUID(badge.SourceRequestID),
		badge.RevocationReason, nullableExpert(badge.RevokedBy),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert badge: %w", err)
	}
	return nil
}

// FindByID loads a badge by id.
func (s *PostgresStore) FindByID(ctx context.Context, badgeID id.BadgeID) (*models.Badge, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+badgeColumns+` FROM badges WHERE id = $1`, uuid.UUID(badgeID))
	return scanBadge(row)
}

// FindActive returns the active badge for one (holder, competency) pair.
func (s *PostgresStore) FindActive(ctx context.Context, holderID id.ExpertID, competencyID id.CompetencyID) (*models.Badge, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+badgeColumns+` FROM badges
		 WHERE holder_id = $1 AND competency_id = $2 AND active`,
		uuid.UUID(holderID), uuid.UUID(competencyID))
	return scanBadge(row)
}

// Deactivate sets active=false on one badge as an independently committed
// statement (autocommit), so the deactivation is durable before the caller
// proceeds to insert a replacement.
func (s *PostgresStore) Deactivate(ctx context.Context, badgeID id.BadgeID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE badges SET active = FALSE WHERE id = $1`, uuid.UUID(badgeID))
	if err != nil {
		return fmt.Errorf("deactivate badge: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate badge: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// Execute loads the badge under FOR UPDATE, applies validate then mutate, and
// writes the result back in the same transaction.
func (s *PostgresStore) Execute(
	ctx context.Context,
	badgeID id.BadgeID,
	validate func(*models.Badge) error,
	mutate func(*models.Badge),
) (*models.Badge, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin badge transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+badgeColumns+` FROM badges WHERE id = $1 FOR UPDATE`, uuid.UUID(badgeID))
	badge, err := scanBadge(row)
	if err != nil {
		return nil, err
	}

	if err := validate(badge); err != nil {
		return nil, err
	}
	mutate(badge)

	_, err = tx.ExecContext(ctx, `
		UPDATE badges SET
			active = $2, public = $3, position = $4,
			revocation_reason = $5, revoked_by = $6
		WHERE id = $1`,
		uuid.UUID(badge.ID), badge.Active, badge.Public, badge.Position,
		badge.RevocationReason, nullableExpert(badge.RevokedBy),
	)
	if err != nil {
		return nil, fmt.Errorf("update badge: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit badge transaction: %w", err)
	}
	return badge, nil
}

// ListByHolder returns the holder's badges ordered by position then grant time.
func (s *PostgresStore) ListByHolder(ctx context.Context, holderID id.ExpertID, activeOnly bool) ([]*models.Badge, error) {
	query := `SELECT ` + badgeColumns + ` FROM badges WHERE holder_id = $1`
	if activeOnly {
		query += ` AND active`
	}
	query += ` ORDER BY position, granted_at`

	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(holderID))
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	defer rows.Close()

	var out []*models.Badge
	for rows.Next() {
		badge, err := scanBadge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, badge)
	}
	return out, rows.Err()
}

// UpdatePositions applies a display ordering to the holder's badges inside
// one transaction.
func (s *PostgresStore) UpdatePositions(ctx context.Context, holderID id.ExpertID, ordered []id.BadgeID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for pos, badgeID := range ordered {
		res, err := tx.ExecContext(ctx,
			`UPDATE badges SET position = $1 WHERE id = $2 AND holder_id = $3`,
			pos, uuid.UUID(badgeID), uuid.UUID(holderID))
		if err != nil {
			return fmt.Errorf("reorder badge: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reorder badge: %w", err)
		}
		if affected == 0 {
			return sentinel.ErrNotFound
		}
	}
	return tx.Commit()
}

// CountActive counts active badges for one (holder, competency) pair.
func (s *PostgresStore) CountActive(ctx context.Context, holderID id.ExpertID, competencyID id.CompetencyID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM badges WHERE holder_id = $1 AND competency_id = $2 AND active`,
		uuid.UUID(holderID), uuid.UUID(competencyID)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active badges: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBadge(row rowScanner) (*models.Badge, error) {
	var (
		badge        models.Badge
		badgeID      uuid.UUID
		competencyID uuid.UUID
		holderID     uuid.UUID
		level        string
		expiresAt    sql.NullTime
		sourceID     uuid.UUID
		revokedBy    uuid.NullUUID
	)
	err := row.Scan(
		&badgeID, &competencyID, &holderID, &level,
		&badge.Active, &badge.Public, &badge.Position, &badge.GrantedAt,
		&expiresAt, &sourceID, &badge.RevocationReason, &revokedBy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan badge: %w", err)
	}
	badge.ID = id.BadgeID(badgeID)
	badge.CompetencyID = id.CompetencyID(competencyID)
	badge.HolderID = id.ExpertID(holderID)
	badge.CertificationLevel = models.CertificationLevel(level)
	badge.SourceRequestID = id.RequestID(sourceID)
	if expiresAt.Valid {
		t := expiresAt.Time
		badge.ExpiresAt = &t
	}
	if revokedBy.Valid {
		r := id.ExpertID(revokedBy.UUID)
		badge.RevokedBy = &r
	}
	return &badge, nil
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullableExpert(expertID *id.ExpertID) uuid.NullUUID {
	if expertID == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*expertID), Valid: true}
}
