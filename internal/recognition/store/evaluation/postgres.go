package evaluation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"acclaim/internal/recognition/models"
	id "acclaim/pkg/domain"
	"acclaim/pkg/platform/sentinel"
)

// PostgresStore persists evaluations keyed by request id. The primary key on
// request_id plus ON CONFLICT DO UPDATE gives upsert semantics at the storage
// layer, so a concurrent re-evaluation can never produce a duplicate row.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed evaluation store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const evaluationSchema = `
CREATE TABLE IF NOT EXISTS evaluations (
	request_id     UUID PRIMARY KEY,
	evaluator_id   UUID NOT NULL,
	recommendation TEXT NOT NULL,
	criteria       JSONB NOT NULL DEFAULT '{}',
	overall_score  INT NOT NULL,
	comment        TEXT NOT NULL DEFAULT '',
	recorded_at    TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema creates the evaluations table.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, evaluationSchema); err != nil {
		return fmt.Errorf("ensure evaluation schema: %w", err)
	}
	return nil
}

// Upsert stores the evaluation, replacing any existing one for the request.
func (s *PostgresStore) Upsert(ctx context.Context, eval *models.Evaluation) error {
	criteria, err := json.Marshal(eval.Criteria)
	if err != nil {
		return fmt.Errorf("marshal evaluation criteria: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO evaluations (request_id, evaluator_id, recommendation, criteria, overall_score, comment, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (request_id) DO UPDATE SET
			evaluator_id = EXCLUDED.evaluator_id,
			recommendation = EXCLUDED.recommendation,
			criteria = EXCLUDED.criteria,
			overall_score = EXCLUDED.overall_score,
			comment = EXCLUDED.comment,
			recorded_at = EXCLUDED.recorded_at`,
		uuid.UUID(eval.RequestID), uuid.UUID(eval.EvaluatorID),
		string(eval.Recommendation), criteria, eval.OverallScore,
		eval.Comment, eval.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert evaluation: %w", err)
	}
	return nil
}

// Get returns the evaluation for a request.
func (s *PostgresStore) Get(ctx context.Context, requestID id.RequestID) (*models.Evaluation, error) {
	var (
		eval        models.Evaluation
		reqID       uuid.UUID
		evaluatorID uuid.UUID
		rec         string
		criteria    []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT request_id, evaluator_id, recommendation, criteria, overall_score, comment, recorded_at
		FROM evaluations WHERE request_id = $1`,
		uuid.UUID(requestID),
	).Scan(&reqID, &evaluatorID, &rec, &criteria, &eval.OverallScore, &eval.Comment, &eval.RecordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get evaluation: %w", err)
	}
	eval.RequestID = id.RequestID(reqID)
	eval.EvaluatorID = id.ExpertID(evaluatorID)
	eval.Recommendation = models.Recommendation(rec)
	if len(criteria) > 0 {
		if err := json.Unmarshal(criteria, &eval.Criteria); err != nil {
			return nil, fmt.Errorf("unmarshal evaluation criteria: %w", err)
		}
	}
	return &eval, nil
}
