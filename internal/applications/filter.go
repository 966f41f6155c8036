package applications

import (
	"strings"
	"time"

	"github.com/gradpush/extrapoints/internal/models"
)

// Filter returns the applications matching f, preserving order.
// It never fails: records whose dates cannot be parsed simply do not
// match a date bound.
func Filter(apps []models.Application, f models.Filter) []models.Application {
	m := newMatcher(f)
	out := make([]models.Application, 0, len(apps))
	for i := range apps {
		if m.match(&apps[i]) {
			out = append(out, apps[i].Clone())
		}
	}
	return out
}

// Match reports whether a single application satisfies f
func Match(app *models.Application, f models.Filter) bool {
	return newMatcher(f).match(app)
}

type dateBound struct {
	set     bool
	valid   bool
	instant time.Time
}

type matcher struct {
	f            models.Filter
	start, end   dateBound
	rStart, rEnd dateBound
}

func newMatcher(f models.Filter) *matcher {
	f = f.Normalize()
	return &matcher{
		f:      f,
		start:  lowerBound(f.StartDate),
		end:    upperBound(f.EndDate),
		rStart: lowerBound(f.ReviewedStartDate),
		rEnd:   upperBound(f.ReviewedEndDate),
	}
}

func lowerBound(value string) dateBound {
	if value == "" {
		return dateBound{}
	}
	t, err := models.ParseTime(value)
	return dateBound{set: true, valid: err == nil, instant: t}
}

// upperBound extends a bare date to the last millisecond of that day
func upperBound(value string) dateBound {
	b := lowerBound(value)
	if b.valid && models.IsDateOnly(value) {
		b.instant = b.instant.Add(24*time.Hour - time.Millisecond)
	}
	return b
}

func (m *matcher) match(app *models.Application) bool {
	f := m.f

	if !containsFold(app.StudentID, f.StudentID) ||
		!containsFold(app.StudentName, f.StudentName) ||
		!containsFold(app.ReviewedBy, f.ReviewedBy) {
		return false
	}

	if f.FacultyID != "" && app.FacultyID.String() != f.FacultyID {
		return false
	}
	if !matchesAny(f.DepartmentID, app.DepartmentID, app.Department, app.DeptID, app.Dept) ||
		!matchesAny(f.Department, app.DepartmentID, app.Department, app.DeptID, app.Dept) {
		return false
	}
	if !matchesAny(f.MajorID, app.MajorID, app.Major) ||
		!matchesAny(f.Major, app.MajorID, app.Major) {
		return false
	}

	if f.Status != "" && string(app.Status) != f.Status {
		return false
	}
	if f.ApplicationType != "" && app.ApplicationType != f.ApplicationType {
		return false
	}
	if f.RuleID != "" && app.RuleID.String() != f.RuleID {
		return false
	}
	if f.MyReviewsOnly != "" && app.ReviewedBy != f.MyReviewsOnly {
		return false
	}

	if !inRange(string(app.SubmittedAt()), m.start, m.end) {
		return false
	}
	if !inRange(string(app.ReviewedAt), m.rStart, m.rEnd) {
		return false
	}
	return true
}

func inRange(value string, lower, upper dateBound) bool {
	if !lower.set && !upper.set {
		return true
	}
	if (lower.set && !lower.valid) || (upper.set && !upper.valid) {
		return false
	}
	t, err := models.ParseTime(value)
	if err != nil {
		return false
	}
	if lower.set && t.Before(lower.instant) {
		return false
	}
	if upper.set && t.After(upper.instant) {
		return false
	}
	return true
}

func containsFold(value, term string) bool {
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(term))
}

// matchesAny compares an organization filter against every field that
// may carry it; older records use department, deptId or dept.
func matchesAny(want string, fields ...models.ID) bool {
	if want == "" {
		return true
	}
	for _, field := range fields {
		if field.String() == want {
			return true
		}
	}
	return false
}
