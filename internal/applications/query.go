package applications

import (
	"net/url"

	"github.com/gradpush/extrapoints/internal/models"
)

// BuildQuery encodes a filter as query parameters. Empty values and the
// "all" sentinel are omitted.
func BuildQuery(f models.Filter) url.Values {
	f = f.Normalize()
	q := url.Values{}
	add := func(key, value string) {
		if value != "" {
			q.Set(key, value)
		}
	}

	add("studentId", f.StudentID)
	add("studentName", f.StudentName)
	add("facultyId", f.FacultyID)
	add("departmentId", f.DepartmentID)
	add("majorId", f.MajorID)
	add("department", f.Department)
	add("major", f.Major)
	add("status", f.Status)
	add("applicationType", f.ApplicationType)
	add("ruleId", f.RuleID)
	add("reviewedBy", f.ReviewedBy)
	add("startDate", f.StartDate)
	add("endDate", f.EndDate)
	add("reviewedStartDate", f.ReviewedStartDate)
	add("reviewedEndDate", f.ReviewedEndDate)

	return q
}

// ParseQuery is the inverse of BuildQuery
func ParseQuery(q url.Values) models.Filter {
	return models.Filter{
		StudentID:         q.Get("studentId"),
		StudentName:       q.Get("studentName"),
		FacultyID:         q.Get("facultyId"),
		DepartmentID:      q.Get("departmentId"),
		MajorID:           q.Get("majorId"),
		Department:        q.Get("department"),
		Major:             q.Get("major"),
		Status:            q.Get("status"),
		ApplicationType:   q.Get("applicationType"),
		RuleID:            q.Get("ruleId"),
		ReviewedBy:        q.Get("reviewedBy"),
		StartDate:         q.Get("startDate"),
		EndDate:           q.Get("endDate"),
		ReviewedStartDate: q.Get("reviewedStartDate"),
		ReviewedEndDate:   q.Get("reviewedEndDate"),
	}.Normalize()
}

// BuildRankingQuery encodes a ranking filter
func BuildRankingQuery(f models.RankingFilter) url.Values {
	f = f.Normalize()
	q := url.Values{}
	for key, value := range map[string]string{
		"facultyId":    f.FacultyID,
		"departmentId": f.DepartmentID,
		"majorId":      f.MajorID,
		"department":   f.Department,
		"major":        f.Major,
	} {
		if value != "" {
			q.Set(key, value)
		}
	}
	return q
}

// ParseRankingQuery is the inverse of BuildRankingQuery
func ParseRankingQuery(q url.Values) models.RankingFilter {
	return models.RankingFilter{
		FacultyID:    q.Get("facultyId"),
		DepartmentID: q.Get("departmentId"),
		MajorID:      q.Get("majorId"),
		Department:   q.Get("department"),
		Major:        q.Get("major"),
	}.Normalize()
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}
