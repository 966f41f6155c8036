package applications

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradpush/extrapoints/internal/models"
)

func sampleApplications() []models.Application {
	return []models.Application{
		{ID: "1", StudentID: "2021001", StudentName: "张三", DepartmentID: "10", Status: models.StatusPending, ApplicationType: "academic", AppliedAt: "2024-03-01T08:00:00Z"},
		{ID: "2", StudentID: "2021002", StudentName: "李四", Department: "cs", Status: models.StatusApproved, ApplicationType: "competition", ReviewedBy: "TeacherA", ReviewedAt: "2024-03-05T10:00:00Z", AppliedAt: "2024-03-02T23:30:00Z"},
		{ID: "3", StudentID: "2022003", StudentName: "Wang Wu", Dept: "cs", Status: models.StatusRejected, ApplicationType: "academic", ReviewedBy: "teacherB", CreatedAt: "2024-03-03 09:00:00"},
		{ID: "4", StudentID: "2022004", StudentName: "Zhao", DeptID: "10", MajorID: "7", Status: models.StatusPending, AppliedAt: "not a date"},
	}
}

func ids(apps []models.Application) []models.ID {
	out := make([]models.ID, 0, len(apps))
	for _, app := range apps {
		out = append(out, app.ID)
	}
	return out
}

func TestFilterStudentNameSubstring(t *testing.T) {
	got := Filter(sampleApplications(), models.Filter{StudentName: "张"})
	assert.Equal(t, []models.ID{"1"}, ids(got))
}

func TestFilterIsCaseInsensitive(t *testing.T) {
	assert.Equal(t, []models.ID{"3"}, ids(Filter(sampleApplications(), models.Filter{StudentName: "wang"})))
	assert.Equal(t, []models.ID{"2", "3"}, ids(Filter(sampleApplications(), models.Filter{ReviewedBy: "TEACHER"})))
	assert.Equal(t, []models.ID{"3", "4"}, ids(Filter(sampleApplications(), models.Filter{StudentID: "2022"})))
}

func TestFilterAllSentinelAndEmpty(t *testing.T) {
	got := Filter(sampleApplications(), models.Filter{Status: "all", ApplicationType: "ALL", Department: " "})
	assert.Len(t, got, 4)
}

func TestFilterLegacyDepartmentFields(t *testing.T) {
	assert.Equal(t, []models.ID{"2", "3"}, ids(Filter(sampleApplications(), models.Filter{Department: "cs"})))
	assert.Equal(t, []models.ID{"1", "4"}, ids(Filter(sampleApplications(), models.Filter{DepartmentID: "10"})))
	assert.Equal(t, []models.ID{"4"}, ids(Filter(sampleApplications(), models.Filter{Major: "7"})))
}

func TestFilterStatusTypeAndReviewer(t *testing.T) {
	assert.Equal(t, []models.ID{"1", "4"}, ids(Filter(sampleApplications(), models.Filter{Status: "pending"})))
	assert.Equal(t, []models.ID{"1", "3"}, ids(Filter(sampleApplications(), models.Filter{ApplicationType: "academic"})))
	assert.Equal(t, []models.ID{"2"}, ids(Filter(sampleApplications(), models.Filter{MyReviewsOnly: "TeacherA"})))
	assert.Empty(t, Filter(sampleApplications(), models.Filter{MyReviewsOnly: "teachera"}))
}

func TestFilterDateRange(t *testing.T) {
	apps := sampleApplications()

	got := Filter(apps, models.Filter{StartDate: "2024-03-02", EndDate: "2024-03-02"})
	assert.Equal(t, []models.ID{"2"}, ids(got), "end date covers the whole day")

	got = Filter(apps, models.Filter{StartDate: "2024-03-01"})
	assert.Equal(t, []models.ID{"1", "2", "3"}, ids(got), "createdAt is the fallback and bad dates never match")

	got = Filter(apps, models.Filter{EndDate: "2024-03-01T08:00:00Z"})
	assert.Equal(t, []models.ID{"1"}, ids(got), "bounds are inclusive")

	got = Filter(apps, models.Filter{ReviewedStartDate: "2024-03-05", ReviewedEndDate: "2024-03-05"})
	assert.Equal(t, []models.ID{"2"}, ids(got))
}

func TestFilterUnparseableFilterDateMatchesNothing(t *testing.T) {
	assert.Empty(t, Filter(sampleApplications(), models.Filter{StartDate: "yesterday"}))
}

func TestFilterReturnsCopies(t *testing.T) {
	apps := sampleApplications()
	got := Filter(apps, models.Filter{StudentName: "张"})
	require.Len(t, got, 1)

	got[0].StudentName = "changed"
	assert.Equal(t, "张三", apps[0].StudentName)
}

func TestMatch(t *testing.T) {
	app := sampleApplications()[1]
	assert.True(t, Match(&app, models.Filter{Department: "cs", Status: "approved"}))
	assert.False(t, Match(&app, models.Filter{Department: "ee"}))
}
