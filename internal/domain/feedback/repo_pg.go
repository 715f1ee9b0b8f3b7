package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/onco/onco/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const feedbackCols = `id, message, email, page, user_agent, rating, type, priority, category,
	labels, confidence, status, submitted_by, github_issue_number, github_issue_url, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, f *Feedback) error {
	f.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO feedback (
			id, message, email, page, user_agent, rating, type, priority, category,
			labels, confidence, status, submitted_by, github_issue_number, github_issue_url
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING created_at, updated_at`,
		f.ID, f.Message, f.Email, f.Page, f.UserAgent, f.Rating, f.Type, f.Priority, f.Category,
		f.Labels, f.Confidence, f.Status, f.SubmittedBy, f.GitHubIssueNumber, f.GitHubIssueURL,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Feedback, error) {
	f, err := scanFeedback(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+feedbackCols+` FROM feedback WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return f, err
}

func (r *repoPG) Update(ctx context.Context, f *Feedback) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE feedback SET
			type = $2, priority = $3, category = $4, labels = $5, confidence = $6, status = $7,
			github_issue_number = $8, github_issue_url = $9, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		f.ID, f.Type, f.Priority, f.Category, f.Labels, f.Confidence, f.Status,
		f.GitHubIssueNumber, f.GitHubIssueURL,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update feedback: %w", err)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, filter Filter, limit, offset int) ([]*Feedback, int, error) {
	var clauses []string
	var args []any
	if filter.Status != "" {
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		clauses = append(clauses, fmt.Sprintf("type = $%d", len(args)))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	q := db.Conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM feedback`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	args = append(args, limit, offset)
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT %s FROM feedback%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		feedbackCols, where, n+1, n+2), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Feedback
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, f)
	}
	return out, total, rows.Err()
}

func (r *repoPG) Stats(ctx context.Context) (*Stats, error) {
	q := db.Conn(ctx, r.pool)
	s := newStats()

	err := q.QueryRow(ctx, `SELECT COUNT(*), COUNT(github_issue_number), AVG(rating)::float8 FROM feedback`).
		Scan(&s.Total, &s.WithIssue, &s.AverageRating)
	if err != nil {
		return nil, fmt.Errorf("feedback totals: %w", err)
	}

	rows, err := q.Query(ctx, `SELECT status, type, priority, category, COUNT(*)
		FROM feedback GROUP BY status, type, priority, category`)
	if err != nil {
		return nil, fmt.Errorf("feedback breakdown: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status   Status
			typ      Type
			priority Priority
			category Category
			n        int
		)
		if err := rows.Scan(&status, &typ, &priority, &category, &n); err != nil {
			return nil, err
		}
		s.ByStatus[status] += n
		s.ByType[typ] += n
		s.ByPriority[priority] += n
		s.ByCategory[category] += n
	}
	return s, rows.Err()
}

func scanFeedback(row pgx.Row) (*Feedback, error) {
	var f Feedback
	err := row.Scan(
		&f.ID, &f.Message, &f.Email, &f.Page, &f.UserAgent, &f.Rating, &f.Type, &f.Priority, &f.Category,
		&f.Labels, &f.Confidence, &f.Status, &f.SubmittedBy, &f.GitHubIssueNumber, &f.GitHubIssueURL,
		&f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
