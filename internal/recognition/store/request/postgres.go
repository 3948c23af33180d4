package request

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"acclaim/internal/recognition/models"
	id "acclaim/pkg/domain"
	"acclaim/pkg/platform/sentinel"
)

// PostgresStore persists recognition requests in PostgreSQL.
//
// The one-open-request-per-(requester, competency) invariant is enforced by a
// partial unique index so concurrent submissions cannot both succeed, and
// Execute serializes transitions with SELECT ... FOR UPDATE.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed request store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const requestSchema = `
CREATE TABLE IF NOT EXISTS recognition_requests (
	id                    UUID PRIMARY KEY,
	requester_id          UUID NOT NULL,
	competency_id         UUID NOT NULL,
	status                TEXT NOT NULL,
	tier                  TEXT NOT NULL DEFAULT '',
	assigned_evaluator_id UUID,
	assigning_manager_id  UUID,
	expert_comment        TEXT NOT NULL DEFAULT '',
	manager_comment       TEXT NOT NULL DEFAULT '',
	rejection_reason      TEXT NOT NULL DEFAULT '',
	created_at            TIMESTAMPTZ NOT NULL,
	last_modified_at      TIMESTAMPTZ NOT NULL,
	assigned_at           TIMESTAMPTZ,
	evaluated_at          TIMESTAMPTZ,
	correlation_id        TEXT NOT NULL DEFAULT '',
	version               BIGINT NOT NULL DEFAULT 1
);
CREATE UNIQUE INDEX IF NOT EXISTS recognition_requests_one_open
	ON recognition_requests (requester_id, competency_id)
	WHERE status NOT IN ('APPROVED', 'REJECTED', 'CANCELLED');
`

// EnsureSchema creates the request table and its partial unique index.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, requestSchema); err != nil {
		return fmt.Errorf("ensure request schema: %w", err)
	}
	return nil
}

const requestColumns = `id, requester_id, competency_id, status, tier,
	assigned_evaluator_id, assigning_manager_id, expert_comment,
	manager_comment, rejection_reason, created_at, last_modified_at,
	assigned_at, evaluated_at, correlation_id, version`

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateIfNoOpen inserts the request; the partial unique index rejects a
// second open request for the same pair.
func (s *PostgresStore) CreateIfNoOpen(ctx context.Context, req *models.RecognitionRequest) error {
	req.Version = 1
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recognition_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		uuid.UUID(req.ID), uuid.UUID(req.RequesterID), uuid.UUID(req.CompetencyID),
		string(req.Status), string(req.Tier),
		nullableExpert(req.AssignedEvaluatorID), nullableExpert(req.AssigningManagerID),
		req.ExpertComment, req.ManagerComment, req.RejectionReason,
		req.CreatedAt, req.LastModifiedAt,
		nullableTime(req.AssignedAt), nullableTime(req.EvaluatedAt),
		req.CorrelationID, req.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrDuplicateOpen
		}
		return fmt.Errorf("insert recognition request: %w", err)
	}
	return nil
}

// FindByID loads a request by id.
func (s *PostgresStore) FindByID(ctx context.Context, requestID id.RequestID) (*models.RecognitionRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM recognition_requests WHERE id = $1`,
		uuid.UUID(requestID))
	return scanRequest(row)
}

// Execute loads the request under FOR UPDATE, applies validate then mutate,
// and writes the result back in the same transaction. Concurrent transitions
// on one request serialize on the row lock; the loser re-validates against
// the committed status and fails its guard.
func (s *PostgresStore) Execute(
	ctx context.Context,
	requestID id.RequestID,
	validate func(*models.RecognitionRequest) error,
	mutate func(*models.RecognitionRequest),
) (*models.RecognitionRequest, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin request transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM recognition_requests WHERE id = $1 FOR UPDATE`,
		uuid.UUID(requestID))
	req, err := scanRequest(row)
	if err != nil {
		return nil, err
	}

	if err := validate(req); err != nil {
		return nil, err
	}
	mutate(req)
	req.Version++

	_, err = tx.ExecContext(ctx, `
		UPDATE recognition_requests SET
			status = $2, tier = $3, assigned_evaluator_id = $4,
			assigning_manager_id = $5, expert_comment = $6, manager_comment = $7,
			rejection_reason = $8, last_modified_at = $9, assigned_at = $10,
			evaluated_at = $11, correlation_id = $12, version = $13
		WHERE id = $1`,
		uuid.UUID(req.ID), string(req.Status), string(req.Tier),
		nullableExpert(req.AssignedEvaluatorID), nullableExpert(req.AssigningManagerID),
		req.ExpertComment, req.ManagerComment, req.RejectionReason,
		req.LastModifiedAt, nullableTime(req.AssignedAt), nullableTime(req.EvaluatedAt),
		req.CorrelationID, req.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("update recognition request: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit request transaction: %w", err)
	}
	return req, nil
}

// ListByRequester returns all requests created by the given expert.
func (s *PostgresStore) ListByRequester(ctx context.Context, requesterID id.ExpertID) ([]*models.RecognitionRequest, error) {
	return s.list(ctx,
		`SELECT `+requestColumns+` FROM recognition_requests
		 WHERE requester_id = $1 ORDER BY created_at DESC`,
		uuid.UUID(requesterID))
}

// ListByEvaluator returns open requests assigned to the given evaluator.
func (s *PostgresStore) ListByEvaluator(ctx context.Context, evaluatorID id.ExpertID) ([]*models.RecognitionRequest, error) {
	return s.list(ctx,
		`SELECT `+requestColumns+` FROM recognition_requests
		 WHERE assigned_evaluator_id = $1
		   AND status NOT IN ('APPROVED', 'REJECTED', 'CANCELLED')
		 ORDER BY created_at DESC`,
		uuid.UUID(evaluatorID))
}

// ListPendingApproval returns requests awaiting the given manager's decision.
func (s *PostgresStore) ListPendingApproval(ctx context.Context, managerID id.ExpertID) ([]*models.RecognitionRequest, error) {
	return s.list(ctx,
		`SELECT `+requestColumns+` FROM recognition_requests
		 WHERE assigning_manager_id = $1 AND status = 'SUBMITTED_FOR_APPROVAL'
		 ORDER BY created_at DESC`,
		uuid.UUID(managerID))
}

// CountOpenByPair counts non-terminal requests for one pair.
func (s *PostgresStore) CountOpenByPair(ctx context.Context, requesterID id.ExpertID, competencyID id.CompetencyID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM recognition_requests
		WHERE requester_id = $1 AND competency_id = $2
		  AND status NOT IN ('APPROVED', 'REJECTED', 'CANCELLED')`,
		uuid.UUID(requesterID), uuid.UUID(competencyID)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count open requests: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.RecognitionRequest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recognition requests: %w", err)
	}
	defer rows.Close()

	var out []*models.RecognitionRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.RecognitionRequest, error) {
	var (
		req                  models.RecognitionRequest
		requestID            uuid.UUID
		requesterID          uuid.UUID
		competencyID         uuid.UUID
		status, tier         string
		evaluatorID          uuid.NullUUID
		managerID            uuid.NullUUID
		assignedAt           sql.NullTime
		evaluatedAt          sql.NullTime
	)
	err := row.Scan(
		&requestID, &requesterID, &competencyID, &status, &tier,
		&evaluatorID, &managerID, &req.ExpertComment, &req.ManagerComment,
		&req.RejectionReason, &req.CreatedAt, &req.LastModifiedAt,
		&assignedAt, &evaluatedAt, &req.CorrelationID, &req.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan recognition request: %w", err)
	}
	req.ID = id.RequestID(requestID)
	req.RequesterID = id.ExpertID(requesterID)
	req.CompetencyID = id.CompetencyID(competencyID)
	req.Status = models.Status(status)
	req.Tier = models.Tier(tier)
	if evaluatorID.Valid {
		e := id.ExpertID(evaluatorID.UUID)
		req.AssignedEvaluatorID = &e
	}
	if managerID.Valid {
		m := id.ExpertID(managerID.UUID)
		req.AssigningManagerID = &m
	}
	if assignedAt.Valid {
		t := assignedAt.Time
		req.AssignedAt = &t
	}
	if evaluatedAt.Valid {
		t := evaluatedAt.Time
		req.EvaluatedAt = &t
	}
	return &req, nil
}

func nullableExpert(expertID *id.ExpertID) uuid.NullUUID {
	if expertID == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*expertID), Valid: true}
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
