package models

import (
	"strings"
)

// AllValue is the sentinel the UI sends for "no restriction"
const AllValue = "all"

// Filter selects applications, either server-side through query
// parameters or in memory over the local mirror. Empty fields and the
// "all" sentinel mean no restriction.
type Filter struct {
	StudentID   string
	StudentName string

	FacultyID    string
	DepartmentID string
	MajorID      string

	// Legacy organization filters, sent as department/major. They may hold
	// a name or an id.
	Department string
	Major      string

	Status          string `validate:"omitempty,oneof=pending approved rejected all"`
	ApplicationType string
	RuleID          string
	ReviewedBy      string

	// MyReviewsOnly keeps only applications reviewed by exactly this reviewer
	MyReviewsOnly string

	// Inclusive range on appliedAt. A bare date as EndDate covers the whole day.
	StartDate string `validate:"timestamp"`
	EndDate   string `validate:"timestamp"`

	ReviewedStartDate string `validate:"timestamp"`
	ReviewedEndDate   string `validate:"timestamp"`
}

// Normalize trims whitespace, clears "all" sentinels and lowercases the status
func (f Filter) Normalize() Filter {
	norm := func(s string) string {
		s = strings.TrimSpace(s)
		if strings.EqualFold(s, AllValue) {
			return ""
		}
		return s
	}
	return Filter{
		StudentID:         norm(f.StudentID),
		StudentName:       norm(f.StudentName),
		FacultyID:         norm(f.FacultyID),
		DepartmentID:      norm(f.DepartmentID),
		MajorID:           norm(f.MajorID),
		Department:        norm(f.Department),
		Major:             norm(f.Major),
		Status:            strings.ToLower(norm(f.Status)),
		ApplicationType:   norm(f.ApplicationType),
		RuleID:            norm(f.RuleID),
		ReviewedBy:        norm(f.ReviewedBy),
		MyReviewsOnly:     strings.TrimSpace(f.MyReviewsOnly),
		StartDate:         norm(f.StartDate),
		EndDate:           norm(f.EndDate),
		ReviewedStartDate: norm(f.ReviewedStartDate),
		ReviewedEndDate:   norm(f.ReviewedEndDate),
	}
}

// Validate checks the filter once at the boundary
func (f Filter) Validate() error {
	return validateStruct(f)
}

// RankingFilter narrows the students ranking
type RankingFilter struct {
	FacultyID    string
	DepartmentID string
	MajorID      string
	Department   string
	Major        string
}

// Normalize trims whitespace and clears "all" sentinels
func (f RankingFilter) Normalize() RankingFilter {
	g := Filter{
		FacultyID:    f.FacultyID,
		DepartmentID: f.DepartmentID,
		MajorID:      f.MajorID,
		Department:   f.Department,
		Major:        f.Major,
	}.Normalize()
	return RankingFilter{
		FacultyID:    g.FacultyID,
		DepartmentID: g.DepartmentID,
		MajorID:      g.MajorID,
		Department:   g.Department,
		Major:        g.Major,
	}
}
