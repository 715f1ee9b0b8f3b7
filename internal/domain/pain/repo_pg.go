package pain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/onco/onco/internal/platform/db"
)

type assessmentRepoPG struct {
	pool *pgxpool.Pool
}

func NewAssessmentRepo(pool *pgxpool.Pool) AssessmentRepository {
	return &assessmentRepoPG{pool: pool}
}

const assessmentCols = `id, patient_id, pain_score, medications, total_mme_per_day, risk_tier,
	findings, highest_severity, notes, assessed_by, created_at`

func (r *assessmentRepoPG) Create(ctx context.Context, a *Assessment) error {
	a.ID = uuid.New()
	meds, err := json.Marshal(a.Medications)
	if err != nil {
		return fmt.Errorf("marshal medications: %w", err)
	}
	findings, err := json.Marshal(a.Findings)
	if err != nil {
		return fmt.Errorf("marshal findings: %w", err)
	}

	err = db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO pain_assessment (
			id, patient_id, pain_score, medications, total_mme_per_day, risk_tier,
			findings, highest_severity, notes, assessed_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at`,
		a.ID, a.PatientID, a.PainScore, meds, a.TotalMMEPerDay, a.RiskTier,
		findings, nullIfEmpty(string(a.HighestSeverity)), a.Notes, a.AssessedBy,
	).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert pain assessment: %w", err)
	}
	return nil
}

func (r *assessmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	a, err := scanAssessment(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+assessmentCols+` FROM pain_assessment WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (r *assessmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Assessment, int, error) {
	q := db.Conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM pain_assessment WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `SELECT `+assessmentCols+` FROM pain_assessment
		WHERE patient_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func scanAssessment(row pgx.Row) (*Assessment, error) {
	var (
		a        Assessment
		meds     []byte
		findings []byte
		highest  *string
	)
	err := row.Scan(&a.ID, &a.PatientID, &a.PainScore, &meds, &a.TotalMMEPerDay, &a.RiskTier,
		&findings, &highest, &a.Notes, &a.AssessedBy, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(meds, &a.Medications); err != nil {
		return nil, fmt.Errorf("decode medications: %w", err)
	}
	if err := json.Unmarshal(findings, &a.Findings); err != nil {
		return nil, fmt.Errorf("decode findings: %w", err)
	}
	if highest != nil {
		a.HighestSeverity = Severity(*highest)
	}
	return &a, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
