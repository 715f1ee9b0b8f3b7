package feedback

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/onco/onco/internal/platform/auth"
	"github.com/onco/onco/internal/platform/github"
)

const (
	MaxMessageLength = 5000
	titleLength      = 72
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidInput      = errors.New("invalid input")
)

// IssueCreator files an issue for a feedback item. *github.Client satisfies it.
type IssueCreator interface {
	CreateIssue(ctx context.Context, req github.IssueRequest) (*github.Issue, error)
}

type Service struct {
	repo       Repository
	classifier *Classifier
	issues     IssueCreator
	autoIssue  bool
	logger     zerolog.Logger
	inflight   singleflight.Group

	// filed holds issues GitHub accepted whose feedback row is not yet
	// updated, so a retry links the same issue instead of filing another.
	mu    sync.Mutex
	filed map[uuid.UUID]*github.Issue
}

// NewService wires the feedback store. issues may be nil when GitHub is not
// configured; autoIssue files issues for critical and high priority
// submissions.
func NewService(repo Repository, issues IssueCreator, autoIssue bool, logger zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		classifier: NewClassifier(),
		issues:     issues,
		autoIssue:  autoIssue,
		logger:     logger,
		filed:      make(map[uuid.UUID]*github.Issue),
	}
}

func (s *Service) Classify(message string) Classification {
	return s.classifier.Classify(message)
}

// Submit validates, classifies and stores a new feedback item. Automatic
// issue filing never fails the submission.
func (s *Service) Submit(ctx context.Context, f *Feedback) error {
	f.Message = strings.TrimSpace(f.Message)
	if f.Message == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(f.Message) > MaxMessageLength {
		return fmt.Errorf("%w: message must be at most %d characters", ErrInvalidInput, MaxMessageLength)
	}
	if f.Rating != nil && (*f.Rating < 1 || *f.Rating > 5) {
		return fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidInput)
	}
	if f.Email != nil && *f.Email != "" {
		if _, err := mail.ParseAddress(*f.Email); err != nil {
			return fmt.Errorf("%w: invalid email address", ErrInvalidInput)
		}
	}

	f.apply(s.classifier.Classify(f.Message))
	f.Status = StatusNew
	f.SubmittedBy = auth.UserIDFromContext(ctx)
	f.GitHubIssueNumber, f.GitHubIssueURL = nil, nil

	if err := s.repo.Create(ctx, f); err != nil {
		return err
	}
	s.logger.Info().
		Str("feedback_id", f.ID.String()).
		Str("type", string(f.Type)).
		Str("priority", string(f.Priority)).
		Float64("confidence", f.Confidence).
		Msg("feedback submitted")

	if s.autoIssue && s.issues != nil && (f.Priority == PriorityCritical || f.Priority == PriorityHigh) {
		filed, err := s.CreateIssue(ctx, f.ID)
		if err != nil {
			s.logger.Warn().Err(err).Str("feedback_id", f.ID.String()).Msg("auto github issue failed")
			return nil
		}
		*f = *filed
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Feedback, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, filter Filter, limit, offset int) ([]*Feedback, int, error) {
	return s.repo.List(ctx, filter, limit, offset)
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.repo.Stats(ctx)
}

func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, next Status) (*Feedback, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, next)
	}
	f, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !f.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, f.Status, next)
	}
	prev := f.Status
	f.Status = next
	if err := s.repo.Update(ctx, f); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("feedback_id", id.String()).
		Str("from", string(prev)).
		Str("to", string(next)).
		Msg("feedback status changed")
	return f, nil
}

// CreateIssue files a GitHub issue for the item, or returns the item
// unchanged when it already has one. Concurrent calls for the same item
// share a single request. When storing the issue link fails, a later call
// links the issue already filed.
func (s *Service) CreateIssue(ctx context.Context, id uuid.UUID) (*Feedback, error) {
	if s.issues == nil {
		return nil, github.ErrNotConfigured
	}
	v, err, _ := s.inflight.Do(id.String(), func() (interface{}, error) {
		f, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if f.HasIssue() {
			return f, nil
		}

		issue := s.pendingIssue(id)
		if issue == nil {
			issue, err = s.issues.CreateIssue(ctx, IssueFor(f))
			if err != nil {
				return nil, err
			}
			s.setPendingIssue(id, issue)
		}
		f.GitHubIssueNumber = &issue.Number
		f.GitHubIssueURL = &issue.HTMLURL
		if f.Status == StatusNew {
			f.Status = StatusTriaged
		}
		if err := s.repo.Update(ctx, f); err != nil {
			return nil, fmt.Errorf("record issue #%d: %w", issue.Number, err)
		}
		s.setPendingIssue(id, nil)
		s.logger.Info().
			Str("feedback_id", id.String()).
			Int("issue", issue.Number).
			Msg("github issue created")
		return f, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Feedback), nil
}

func (s *Service) pendingIssue(id uuid.UUID) *github.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filed[id]
}

// setPendingIssue records issue for id, or clears it when issue is nil.
func (s *Service) setPendingIssue(id uuid.UUID, issue *github.Issue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if issue == nil {
		delete(s.filed, id)
		return
	}
	s.filed[id] = issue
}

// IssueFor renders the issue title, markdown body and labels for f.
func IssueFor(f *Feedback) github.IssueRequest {
	title := strings.Join(strings.Fields(f.Message), " ")
	if r := []rune(title); len(r) > titleLength {
		title = strings.TrimSpace(string(r[:titleLength]))
	}

	var b strings.Builder
	b.WriteString("## Feedback\n\n")
	for _, line := range strings.Split(f.Message, "\n") {
		b.WriteString("> " + line + "\n")
	}
	b.WriteString("\n## Details\n\n| Field | Value |\n|---|---|\n")
	row := func(k, v string) { fmt.Fprintf(&b, "| %s | %s |\n", k, strings.ReplaceAll(v, "|", `\|`)) }
	row("Type", string(f.Type))
	row("Priority", string(f.Priority))
	row("Category", string(f.Category))
	row("Confidence", fmt.Sprintf("%.2f", f.Confidence))
	if f.Page != nil {
		row("Page", *f.Page)
	}
	if f.Rating != nil {
		row("Rating", fmt.Sprintf("%d/5", *f.Rating))
	}
	if f.UserAgent != nil {
		row("User agent", *f.UserAgent)
	}
	row("Submitted", f.CreatedAt.UTC().Format("2006-01-02 15:04 MST"))
	row("Feedback ID", f.ID.String())

	return github.IssueRequest{
		Title:  fmt.Sprintf("[%s] %s", f.Type.Title(), title),
		Body:   b.String(),
		Labels: append([]string(nil), f.Labels...),
	}
}
