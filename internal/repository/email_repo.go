package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"phishbox/internal/model"
)

type EmailRepository struct {
	db *pgxpool.Pool
}

func NewEmailRepository(db *pgxpool.Pool) *EmailRepository {
	return &EmailRepository{db: db}
}

const emailColumns = `
	id, external_id, subject, sender, recipient, body, received_at,
	processed, is_phishing, label, phishing_type, summary, call_to_actions,
	wiki_enrichment, directory_enrichment,
	suggested_team, assigned_team, agentic_task_id, team_assigned_at, created_at`

func scanEmail(row pgx.Row) (*model.Email, error) {
	var (
		e             model.Email
		ctas          []byte
		suggestedTeam *string
		assignedTeam  *string
	)
	err := row.Scan(
		&e.ID,
		&e.ExternalID,
		&e.Subject,
		&e.Sender,
		&e.Recipient,
		&e.Body,
		&e.ReceivedAt,
		&e.Processed,
		&e.IsPhishing,
		&e.Label,
		&e.PhishingType,
		&e.Summary,
		&ctas,
		&e.WikiEnrichment,
		&e.DirectoryEnrichment,
		&suggestedTeam,
		&assignedTeam,
		&e.AgenticTaskID,
		&e.TeamAssignedAt,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.CallToActions = []string{}
	if len(ctas) > 0 {
		if err := json.Unmarshal(ctas, &e.CallToActions); err != nil {
			return nil, fmt.Errorf("decode call_to_actions for email %d: %w", e.ID, err)
		}
	}
	e.SuggestedTeam = teamPtr(suggestedTeam)
	e.AssignedTeam = teamPtr(assignedTeam)
	return &e, nil
}

func teamPtr(s *string) *model.TeamKey {
	if s == nil {
		return nil
	}
	k := model.TeamKey(*s)
	return &k
}

func collectEmails(rows pgx.Rows) ([]*model.Email, error) {
	defer rows.Close()

	emails := make([]*model.Email, 0)
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}

// InsertIfNew stores an ingested email. When an email with the same
// external id already exists nothing is written, the stored row is
// returned and the second return is false.
func (r *EmailRepository) InsertIfNew(ctx context.Context, in model.IncomingEmail) (*model.Email, bool, error) {
	receivedAt := in.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO emails (external_id, subject, sender, recipient, body, received_at, label, phishing_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (external_id) DO NOTHING
		RETURNING `+emailColumns,
		in.ExternalID, in.Subject, in.Sender, in.Recipient, in.Body, receivedAt, in.Label, in.PhishingType,
	)

	e, err := scanEmail(row)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := scanEmail(r.db.QueryRow(ctx, `SELECT `+emailColumns+` FROM emails WHERE external_id = $1`, in.ExternalID))
		if err != nil {
			return nil, false, fmt.Errorf("load existing email %s: %w", in.ExternalID, err)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert email %s: %w", in.ExternalID, err)
	}
	return e, true, nil
}

func (r *EmailRepository) GetByID(ctx context.Context, id int64) (*model.Email, error) {
	e, err := scanEmail(r.db.QueryRow(ctx, `SELECT `+emailColumns+` FROM emails WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("email %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get email %d: %w", id, err)
	}
	return e, nil
}

// List returns a page of emails, newest first, with the total count.
func (r *EmailRepository) List(ctx context.Context, limit, offset int) ([]*model.Email, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM emails`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count emails: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+emailColumns+`
		FROM emails
		ORDER BY received_at DESC, id DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list emails: %w", err)
	}

	emails, err := collectEmails(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("list emails: %w", err)
	}
	return emails, total, nil
}

// UpdateClassification marks the email processed with the pool's verdict.
func (r *EmailRepository) UpdateClassification(ctx context.Context, id int64, c model.Classification) error {
	ctas := c.CallToActions
	if ctas == nil {
		ctas = []string{}
	}
	ctaJSON, err := json.Marshal(ctas)
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE emails
		SET processed = TRUE,
		    is_phishing = $2,
		    summary = $3,
		    call_to_actions = $4,
		    wiki_enrichment = COALESCE($5, wiki_enrichment),
		    directory_enrichment = COALESCE($6, directory_enrichment)
		WHERE id = $1`,
		id, c.IsPhishing, c.Summary, ctaJSON, nullJSON(c.WikiEnrichment), nullJSON(c.DirectoryEnrichment),
	)
	if err != nil {
		return fmt.Errorf("update classification for email %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("email %d: %w", id, model.ErrNotFound)
	}
	return nil
}

func nullJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

// SetSuggestedTeam records a suggestion, replacing any earlier one. The
// assignment columns are never touched.
func (r *EmailRepository) SetSuggestedTeam(ctx context.Context, id int64, team model.TeamKey) error {
	tag, err := r.db.Exec(ctx, `UPDATE emails SET suggested_team = $2 WHERE id = $1`, id, string(team))
	if err != nil {
		return fmt.Errorf("set suggested team for email %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("email %d: %w", id, model.ErrNotFound)
	}
	return nil
}

// SetSuggestedTeamIfUnset records a suggestion only for emails that have
// none yet and reports whether it did.
func (r *EmailRepository) SetSuggestedTeamIfUnset(ctx context.Context, id int64, team model.TeamKey) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE emails SET suggested_team = $2
		WHERE id = $1 AND suggested_team IS NULL`, id, string(team))
	if err != nil {
		return false, fmt.Errorf("set suggested team for email %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListUnsuggested returns up to limit processed emails without a suggestion,
// oldest first.
func (r *EmailRepository) ListUnsuggested(ctx context.Context, limit int) ([]*model.Email, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+emailColumns+`
		FROM emails
		WHERE suggested_team IS NULL AND processed
		ORDER BY id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unsuggested emails: %w", err)
	}
	return collectEmails(rows)
}

func (r *EmailRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
