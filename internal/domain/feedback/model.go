package feedback

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeBug            Type = "bug"
	TypeFeatureRequest Type = "feature_request"
	TypeQuestion       Type = "question"
	TypePraise         Type = "praise"
	TypeComplaint      Type = "complaint"
	TypeOther          Type = "other"
)

// Title is the bracketed form used in issue titles.
func (t Type) Title() string {
	switch t {
	case TypeBug:
		return "Bug"
	case TypeFeatureRequest:
		return "Feature Request"
	case TypeQuestion:
		return "Question"
	case TypePraise:
		return "Praise"
	case TypeComplaint:
		return "Complaint"
	}
	return "Feedback"
}

type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

type Category string

const (
	CategoryClinicalContent Category = "clinical_content"
	CategoryMedication      Category = "medication"
	CategoryPerformance     Category = "performance"
	CategoryUI              Category = "ui"
	CategoryAuthentication  Category = "authentication"
	CategoryData            Category = "data"
	CategoryOther           Category = "other"
)

type Status string

const (
	StatusNew        Status = "new"
	StatusTriaged    Status = "triaged"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusDismissed  Status = "dismissed"
)

var transitions = map[Status][]Status{
	StatusNew:        {StatusTriaged, StatusDismissed},
	StatusTriaged:    {StatusInProgress, StatusDismissed},
	StatusInProgress: {StatusResolved, StatusDismissed},
	StatusResolved:   {StatusTriaged},
	StatusDismissed:  {StatusTriaged},
}

// CanTransition reports whether a feedback item may move from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Classification is the rule-based reading of a feedback message.
type Classification struct {
	Type       Type     `json:"type"`
	Priority   Priority `json:"priority"`
	Category   Category `json:"category"`
	Labels     []string `json:"labels"`
	Confidence float64  `json:"confidence"`
}

type Feedback struct {
	ID                uuid.UUID `db:"id" json:"id"`
	Message           string    `db:"message" json:"message"`
	Email             *string   `db:"email" json:"email,omitempty"`
	Page              *string   `db:"page" json:"page,omitempty"`
	UserAgent         *string   `db:"user_agent" json:"user_agent,omitempty"`
	Rating            *int      `db:"rating" json:"rating,omitempty"`
	Type              Type      `db:"type" json:"type"`
	Priority          Priority  `db:"priority" json:"priority"`
	Category          Category  `db:"category" json:"category"`
	Labels            []string  `db:"labels" json:"labels"`
	Confidence        float64   `db:"confidence" json:"confidence"`
	Status            Status    `db:"status" json:"status"`
	SubmittedBy       string    `db:"submitted_by" json:"submitted_by,omitempty"`
	GitHubIssueNumber *int      `db:"github_issue_number" json:"github_issue_number,omitempty"`
	GitHubIssueURL    *string   `db:"github_issue_url" json:"github_issue_url,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

func (f *Feedback) apply(c Classification) {
	f.Type = c.Type
	f.Priority = c.Priority
	f.Category = c.Category
	f.Labels = c.Labels
	f.Confidence = c.Confidence
}

func (f *Feedback) HasIssue() bool {
	return f.GitHubIssueNumber != nil
}

type Stats struct {
	Total         int              `json:"total"`
	ByStatus      map[Status]int   `json:"by_status"`
	ByType        map[Type]int     `json:"by_type"`
	ByPriority    map[Priority]int `json:"by_priority"`
	ByCategory    map[Category]int `json:"by_category"`
	WithIssue     int              `json:"with_github_issue"`
	AverageRating *float64         `json:"average_rating,omitempty"`
}

func newStats() *Stats {
	return &Stats{
		ByStatus:   map[Status]int{},
		ByType:     map[Type]int{},
		ByPriority: map[Priority]int{},
		ByCategory: map[Category]int{},
	}
}
