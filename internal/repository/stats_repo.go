package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"phishbox/internal/model"
)

type StatsRepository struct {
	db *pgxpool.Pool
}

func NewStatsRepository(db *pgxpool.Pool) *StatsRepository {
	return &StatsRepository{db: db}
}

// Enriched builds the dashboard aggregate.
func (r *StatsRepository) Enriched(ctx context.Context) (*model.DashboardStats, error) {
	stats := &model.DashboardStats{
		ByAssignedTeam:    map[model.TeamKey]int{},
		BySuggestedTeam:   map[model.TeamKey]int{},
		DetectorHitRates:  map[string]model.Rate{},
		RecentPhishingIDs: []int64{},
	}

	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE processed),
		       COUNT(*) FILTER (WHERE is_phishing),
		       COUNT(*) FILTER (WHERE suggested_team IS NOT NULL),
		       COUNT(*) FILTER (WHERE assigned_team IS NOT NULL)
		FROM emails`).Scan(
		&stats.TotalEmails,
		&stats.ProcessedEmails,
		&stats.PhishingEmails,
		&stats.SuggestedEmails,
		&stats.AssignedEmails,
	)
	if err != nil {
		return nil, fmt.Errorf("count emails: %w", err)
	}

	if err := r.teamCounts(ctx, "assigned_team", stats.ByAssignedTeam); err != nil {
		return nil, err
	}
	if err := r.teamCounts(ctx, "suggested_team", stats.BySuggestedTeam); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT workflow_name,
		       COUNT(*) FILTER (WHERE is_phishing_detected),
		       COUNT(*)
		FROM workflow_results
		GROUP BY workflow_name`)
	if err != nil {
		return nil, fmt.Errorf("detector rates: %w", err)
	}
	for rows.Next() {
		var (
			name string
			rate model.Rate
		)
		if err := rows.Scan(&name, &rate.Hits, &rate.Total); err != nil {
			rows.Close()
			return nil, err
		}
		stats.DetectorHitRates[name] = rate
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.db.Query(ctx, `
		SELECT id FROM emails WHERE is_phishing
		ORDER BY received_at DESC LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("recent phishing: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		stats.RecentPhishingIDs = append(stats.RecentPhishingIDs, id)
	}
	return stats, rows.Err()
}

// teamCounts fills out with row counts grouped by column. column is one of
// two fixed identifiers, never user input.
func (r *StatsRepository) teamCounts(ctx context.Context, column string, out map[model.TeamKey]int) error {
	rows, err := r.db.Query(ctx, `
		SELECT `+column+`, COUNT(*) FROM emails
		WHERE `+column+` IS NOT NULL
		GROUP BY `+column)
	if err != nil {
		return fmt.Errorf("count by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			team  string
			count int
		)
		if err := rows.Scan(&team, &count); err != nil {
			return err
		}
		out[model.TeamKey(team)] = count
	}
	return rows.Err()
}
