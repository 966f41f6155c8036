package models

import (
	"encoding/json"
	"io"
)

// Status represents the review state of an application
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// IsReviewed returns true once a reviewer has decided the application
func (s Status) IsReviewed() bool {
	return s == StatusApproved || s == StatusRejected
}

// Application is a student's claim for bonus points.
// Field names follow the client convention; the backend's snake_case
// spelling is produced by the fieldmap package.
type Application struct {
	ID ID `json:"id,omitempty"`

	StudentID    string `json:"studentId,omitempty"`
	StudentName  string `json:"studentName,omitempty"`
	FacultyID    ID     `json:"facultyId,omitempty"`
	DepartmentID ID     `json:"departmentId,omitempty"`
	MajorID      ID     `json:"majorId,omitempty"`

	// Legacy organization fields. Depending on backend version these hold
	// a display name or an id; they are only read for filter matching.
	Department ID `json:"department,omitempty"`
	Major      ID `json:"major,omitempty"`
	DeptID     ID `json:"deptId,omitempty"`
	Dept       ID `json:"dept,omitempty"`

	ApplicationType string `json:"applicationType,omitempty"`
	RuleID          ID     `json:"ruleId,omitempty"`

	ProjectName string `json:"projectName,omitempty"`
	Description string `json:"description,omitempty"`
	AwardDate   string `json:"awardDate,omitempty"`
	AwardLevel  string `json:"awardLevel,omitempty"`
	AwardType   string `json:"awardType,omitempty"`

	AcademicType             string `json:"academicType,omitempty"`
	ResearchType             string `json:"researchType,omitempty"`
	InnovationLevel          string `json:"innovationLevel,omitempty"`
	InnovationRole           string `json:"innovationRole,omitempty"`
	AwardGrade               string `json:"awardGrade,omitempty"`
	AwardCategory            string `json:"awardCategory,omitempty"`
	AuthorRankType           string `json:"authorRankType,omitempty"`
	AuthorOrder              *int   `json:"authorOrder,omitempty"`
	PerformanceType          string `json:"performanceType,omitempty"`
	PerformanceLevel         string `json:"performanceLevel,omitempty"`
	PerformanceParticipation string `json:"performanceParticipation,omitempty"`
	TeamRole                 string `json:"teamRole,omitempty"`

	SelfScore           *float64        `json:"selfScore,omitempty"`
	FinalScore          *float64        `json:"finalScore,omitempty"`
	DynamicCoefficients json.RawMessage `json:"dynamicCoefficients,omitempty"`

	Status        Status    `json:"status,omitempty"`
	ReviewComment string    `json:"reviewComment,omitempty"`
	ReviewedAt    Timestamp `json:"reviewedAt,omitempty"`
	ReviewedBy    string    `json:"reviewedBy,omitempty"`

	AppliedAt Timestamp `json:"appliedAt,omitempty"`
	CreatedAt Timestamp `json:"createdAt,omitempty"`
	UpdatedAt Timestamp `json:"updatedAt,omitempty"`

	Files []FileRef `json:"files,omitempty"`
}

// SubmittedAt returns appliedAt, falling back to createdAt
func (a *Application) SubmittedAt() Timestamp {
	if !a.AppliedAt.IsZero() {
		return a.AppliedAt
	}
	return a.CreatedAt
}

// Clone returns a deep copy of the application
func (a Application) Clone() Application {
	out := a
	if a.AuthorOrder != nil {
		v := *a.AuthorOrder
		out.AuthorOrder = &v
	}
	if a.SelfScore != nil {
		v := *a.SelfScore
		out.SelfScore = &v
	}
	if a.FinalScore != nil {
		v := *a.FinalScore
		out.FinalScore = &v
	}
	if a.DynamicCoefficients != nil {
		out.DynamicCoefficients = append(json.RawMessage(nil), a.DynamicCoefficients...)
	}
	if a.Files != nil {
		out.Files = append([]FileRef(nil), a.Files...)
	}
	return out
}

// FileRef points at a file the backend already stores
type FileRef struct {
	ID   ID     `json:"id,omitempty"`
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// Upload is a binary payload that has not been sent to the backend yet
type Upload struct {
	Name        string
	ContentType string
	Content     io.Reader
}

// Attachment is one entry of an application's file list: either an
// existing backend file or a new upload.
type Attachment struct {
	Ref    *FileRef
	Upload *Upload
}

// RefAttachment wraps an existing file reference
func RefAttachment(ref FileRef) Attachment {
	return Attachment{Ref: &ref}
}

// UploadAttachment wraps a new upload
func UploadAttachment(name string, content io.Reader) Attachment {
	return Attachment{Upload: &Upload{Name: name, Content: content}}
}

// SplitAttachments separates persisted file references from new uploads
func SplitAttachments(files []Attachment) ([]FileRef, []Upload) {
	var refs []FileRef
	var uploads []Upload
	for _, f := range files {
		switch {
		case f.Upload != nil:
			uploads = append(uploads, *f.Upload)
		case f.Ref != nil:
			refs = append(refs, *f.Ref)
		}
	}
	return refs, uploads
}

// ReviewDecision is the input of a review call
type ReviewDecision struct {
	Status     Status   `json:"status" validate:"required,oneof=approved rejected"`
	Comment    string   `json:"reviewComment"`
	FinalScore *float64 `json:"finalScore" validate:"omitempty,gte=0"`
	ReviewedBy string   `json:"reviewedBy" validate:"required"`
}

// Validate checks the decision at the boundary
func (d ReviewDecision) Validate() error {
	return validateStruct(d)
}

// Score returns the final score, zero when unset
func (d ReviewDecision) Score() float64 {
	if d.FinalScore == nil {
		return 0
	}
	return *d.FinalScore
}

// StudentStatistics summarizes one student's applications
type StudentStatistics struct {
	StudentID    string        `json:"studentId"`
	StudentName  string        `json:"studentName,omitempty"`
	Total        int           `json:"totalApplications"`
	Approved     int           `json:"approvedApplications"`
	Rejected     int           `json:"rejectedApplications"`
	Pending      int           `json:"pendingApplications"`
	TotalScore   float64       `json:"totalScore"`
	AverageScore float64       `json:"averageScore"`
	Recent       []RecentEntry `json:"recentApplications,omitempty"`
}

// RecentEntry is a short application summary inside statistics
type RecentEntry struct {
	ID        ID        `json:"id"`
	Type      string    `json:"type"`
	Status    Status    `json:"status"`
	AppliedAt Timestamp `json:"appliedAt,omitempty"`
	Score     *float64  `json:"score,omitempty"`
}

// RankingEntry is one row of the students ranking
type RankingEntry struct {
	Rank          int     `json:"rank"`
	StudentID     string  `json:"studentId"`
	StudentName   string  `json:"studentName,omitempty"`
	FacultyID     ID      `json:"facultyId,omitempty"`
	DepartmentID  ID      `json:"departmentId,omitempty"`
	MajorID       ID      `json:"majorId,omitempty"`
	ApprovedCount int     `json:"approvedCount"`
	TotalScore    float64 `json:"totalScore"`
}
