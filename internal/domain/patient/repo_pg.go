package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/onco/onco/internal/platform/db"
)

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

const patientCols = `id, mrn, first_name, last_name, birth_date, gender,
	primary_diagnosis, cancer_stage, renal_clearance, cyp2d6_phenotype,
	has_respiratory_disease, has_sleep_apnea, is_pregnant, active, created_at, updated_at`

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient (
			id, mrn, first_name, last_name, birth_date, gender,
			primary_diagnosis, cancer_stage, renal_clearance, cyp2d6_phenotype,
			has_respiratory_disease, has_sleep_apnea, is_pregnant, active
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING created_at, updated_at`,
		p.ID, p.MRN, p.FirstName, p.LastName, p.BirthDate, p.Gender,
		p.PrimaryDiagnosis, p.CancerStage, p.RenalClearance, p.CYP2D6Phenotype,
		p.HasRespiratoryDisease, p.HasSleepApnea, p.IsPregnant, p.Active,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return mapWriteErr("insert patient", err)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.getOne(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id)
}

func (r *patientRepoPG) GetByMRN(ctx context.Context, mrn string) (*Patient, error) {
	return r.getOne(ctx, `SELECT `+patientCols+` FROM patient WHERE lower(mrn) = lower($1)`, mrn)
}

func (r *patientRepoPG) getOne(ctx context.Context, sql string, arg any) (*Patient, error) {
	p, err := scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx, sql, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE patient SET
			mrn = $2, first_name = $3, last_name = $4, birth_date = $5, gender = $6,
			primary_diagnosis = $7, cancer_stage = $8, renal_clearance = $9, cyp2d6_phenotype = $10,
			has_respiratory_disease = $11, has_sleep_apnea = $12, is_pregnant = $13, active = $14,
			updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		p.ID, p.MRN, p.FirstName, p.LastName, p.BirthDate, p.Gender,
		p.PrimaryDiagnosis, p.CancerStage, p.RenalClearance, p.CYP2D6Phenotype,
		p.HasRespiratoryDisease, p.HasSleepApnea, p.IsPregnant, p.Active,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return mapWriteErr("update patient", err)
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *patientRepoPG) Search(ctx context.Context, params SearchParams, limit, offset int) ([]*Patient, int, error) {
	where, args := params.sqlWhere()
	q := db.Conn(ctx, r.pool)

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM patient`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	args = append(args, limit, offset)
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT %s FROM patient%s ORDER BY last_name, first_name, id LIMIT $%d OFFSET $%d`,
		patientCols, where, n+1, n+2), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		patients = append(patients, p)
	}
	return patients, total, rows.Err()
}

func (sp SearchParams) sqlWhere() (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, strings.ReplaceAll(clause, "$?", fmt.Sprintf("$%d", len(args))))
	}

	if sp.Query != "" {
		add(`(first_name ILIKE $? OR last_name ILIKE $? OR mrn ILIKE $?)`, "%"+sp.Query+"%")
	}
	if sp.Name != "" {
		add(`(first_name ILIKE $? OR last_name ILIKE $?)`, "%"+sp.Name+"%")
	}
	if sp.Identifier != "" {
		add(`lower(mrn) = lower($?)`, identifierValue(sp.Identifier))
	}
	if sp.Gender != "" {
		add(`lower(gender) = lower($?)`, sp.Gender)
	}
	if sp.BirthDate != nil {
		add(`birth_date `+sp.BirthDate.sqlOp()+` $?`, sp.BirthDate.Date)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.MRN, &p.FirstName, &p.LastName, &p.BirthDate, &p.Gender,
		&p.PrimaryDiagnosis, &p.CancerStage, &p.RenalClearance, &p.CYP2D6Phenotype,
		&p.HasRespiratoryDisease, &p.HasSleepApnea, &p.IsPregnant, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func mapWriteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateMRN
	}
	return fmt.Errorf("%s: %w", op, err)
}
