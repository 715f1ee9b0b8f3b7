package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("patient not found")
	ErrDuplicateMRN = errors.New("mrn already in use")
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByMRN(ctx context.Context, mrn string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, params SearchParams, limit, offset int) ([]*Patient, int, error)
}

// SearchParams narrows a patient listing. Empty fields match everything.
// Query matches name or MRN; Name matches given or family name.
type SearchParams struct {
	Query      string
	Name       string
	Identifier string
	Gender     string
	BirthDate  *DateFilter
}

// DateFilter is a FHIR date search value such as "ge1950-01-01".
type DateFilter struct {
	Op   string
	Date time.Time
}

var dateOps = []string{"eq", "ne", "ge", "le", "gt", "lt"}

func ParseDateFilter(v string) (*DateFilter, error) {
	op := "eq"
	for _, candidate := range dateOps {
		if strings.HasPrefix(v, candidate) {
			op, v = candidate, v[len(candidate):]
			break
		}
	}
	d, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, fmt.Errorf("invalid birthdate %q: expected [prefix]YYYY-MM-DD", v)
	}
	return &DateFilter{Op: op, Date: d}, nil
}

// Match compares on calendar days.
func (f DateFilter) Match(t time.Time) bool {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch f.Op {
	case "ne":
		return !day.Equal(f.Date)
	case "ge":
		return !day.Before(f.Date)
	case "le":
		return !day.After(f.Date)
	case "gt":
		return day.After(f.Date)
	case "lt":
		return day.Before(f.Date)
	}
	return day.Equal(f.Date)
}

// sqlOp maps the filter prefix onto a comparison operator.
func (f DateFilter) sqlOp() string {
	switch f.Op {
	case "ne":
		return "<>"
	case "ge":
		return ">="
	case "le":
		return "<="
	case "gt":
		return ">"
	case "lt":
		return "<"
	}
	return "="
}

// identifierValue strips an optional "system|" prefix from a token search.
func identifierValue(token string) string {
	if i := strings.LastIndex(token, "|"); i >= 0 {
		return token[i+1:]
	}
	return token
}
