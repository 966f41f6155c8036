package models

import "time"

// Faculty is the top level of the organization tree
type Faculty struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Department belongs to a faculty
type Department struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	FacultyID   ID     `json:"faculty_id,omitempty"`
	Description string `json:"description,omitempty"`
}

// Major belongs to a department
type Major struct {
	ID           ID     `json:"id"`
	Name         string `json:"name"`
	DepartmentID ID     `json:"department_id,omitempty"`
	Description  string `json:"description,omitempty"`
}

// RuleStatus toggles whether a scoring rule is in effect
type RuleStatus string

const (
	RuleActive   RuleStatus = "active"
	RuleDisabled RuleStatus = "disabled"
)

// Rule is a scoring rule applications are matched against
type Rule struct {
	ID                ID         `json:"id,omitempty" yaml:"-"`
	Name              string     `json:"name" yaml:"name" validate:"required"`
	Type              string     `json:"type" yaml:"type" validate:"required"`
	SubType           string     `json:"sub_type,omitempty" yaml:"subType"`
	Level             string     `json:"level,omitempty" yaml:"level"`
	Grade             string     `json:"grade,omitempty" yaml:"grade"`
	Category          string     `json:"category,omitempty" yaml:"category"`
	ParticipationType string     `json:"participation_type,omitempty" yaml:"participationType" validate:"omitempty,oneof=individual team"`
	TeamRole          string     `json:"team_role,omitempty" yaml:"teamRole"`
	AuthorRankType    string     `json:"author_rank_type,omitempty" yaml:"authorRankType" validate:"omitempty,oneof=ranked unranked"`
	AuthorRank        *int       `json:"author_rank,omitempty" yaml:"authorRank"`
	AuthorRankRatio   *float64   `json:"author_rank_ratio,omitempty" yaml:"authorRankRatio" validate:"omitempty,gt=0,lte=1"`
	ResearchType      string     `json:"research_type,omitempty" yaml:"researchType"`
	Score             float64    `json:"score" yaml:"score" validate:"gt=0"`
	MaxScore          *float64   `json:"max_score,omitempty" yaml:"maxScore"`
	MaxCount          *int       `json:"max_count,omitempty" yaml:"maxCount"`
	IsSpecial         bool       `json:"is_special,omitempty" yaml:"isSpecial"`
	Status            RuleStatus `json:"status,omitempty" yaml:"status" validate:"omitempty,oneof=active disabled"`
	Description       string     `json:"description,omitempty" yaml:"description"`
}

// Validate checks a rule before it is sent to the backend
func (r Rule) Validate() error {
	return validateStruct(r)
}

// GraduateFile is a document published to students (e.g. admission notices)
type GraduateFile struct {
	ID          ID        `json:"id"`
	Name        string    `json:"file_name"`
	URL         string    `json:"file_url,omitempty"`
	Size        int64     `json:"file_size,omitempty"`
	Category    string    `json:"category,omitempty"`
	Description string    `json:"description,omitempty"`
	FacultyID   ID        `json:"faculty_id,omitempty"`
	UploadedBy  string    `json:"uploaded_by,omitempty"`
	UploadedAt  Timestamp `json:"uploaded_at,omitempty"`
}

// EventType names a change pushed over the event feed
type EventType string

const (
	EventApplicationCreated  EventType = "application.created"
	EventApplicationUpdated  EventType = "application.updated"
	EventApplicationReviewed EventType = "application.reviewed"
	EventApplicationDeleted  EventType = "application.deleted"
)

// Event is a change notification from the backend
type Event struct {
	Type          EventType `json:"type"`
	ApplicationID ID        `json:"application_id"`
	StudentID     string    `json:"student_id,omitempty"`
	Status        Status    `json:"status,omitempty"`
	At            time.Time `json:"at"`
}
