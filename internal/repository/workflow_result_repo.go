package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"phishbox/internal/model"
)

type WorkflowResultRepository struct {
	db *pgxpool.Pool
}

func NewWorkflowResultRepository(db *pgxpool.Pool) *WorkflowResultRepository {
	return &WorkflowResultRepository{db: db}
}

// InsertAll writes one row per detector outcome in a single batch.
func (r *WorkflowResultRepository) InsertAll(ctx context.Context, results []model.WorkflowResult) error {
	if len(results) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, res := range results {
		indicators := res.RiskIndicators
		if indicators == nil {
			indicators = []string{}
		}
		result := res.Result
		if len(result) == 0 {
			result = []byte(`{}`)
		}
		batch.Queue(`
			INSERT INTO workflow_results
				(email_id, workflow_name, is_phishing_detected, confidence_score, risk_indicators, result, executed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			res.EmailID, res.WorkflowName, res.IsPhishingDetected,
			model.ClampConfidence(res.ConfidenceScore), indicators, result, res.ExecutedAt,
		)
	}

	if err := r.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert workflow results: %w", err)
	}
	return nil
}

func (r *WorkflowResultRepository) ListByEmail(ctx context.Context, emailID int64) ([]model.WorkflowResult, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, email_id, workflow_name, is_phishing_detected, confidence_score,
		       risk_indicators, result, executed_at
		FROM workflow_results
		WHERE email_id = $1
		ORDER BY executed_at ASC, id ASC`, emailID)
	if err != nil {
		return nil, fmt.Errorf("list workflow results for email %d: %w", emailID, err)
	}
	defer rows.Close()

	out := make([]model.WorkflowResult, 0)
	for rows.Next() {
		var w model.WorkflowResult
		if err := rows.Scan(
			&w.ID,
			&w.EmailID,
			&w.WorkflowName,
			&w.IsPhishingDetected,
			&w.ConfidenceScore,
			&w.RiskIndicators,
			&w.Result,
			&w.ExecutedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
