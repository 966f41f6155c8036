package applications

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradpush/extrapoints/internal/models"
	"github.com/gradpush/extrapoints/pkg/client"
)

type recordedRequest struct {
	Method      string
	Path        string
	Query       string
	ContentType string
	Application map[string]interface{}
	FileNames   []string
	Body        map[string]interface{}
}

type fakePortal struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  func(w http.ResponseWriter, r *http.Request) bool
}

func (p *fakePortal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := recordedRequest{
		Method:      r.Method,
		Path:        r.URL.Path,
		Query:       r.URL.RawQuery,
		ContentType: r.Header.Get("Content-Type"),
	}
	if strings.HasPrefix(rec.ContentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			json.Unmarshal([]byte(r.FormValue("application")), &rec.Application)
			for _, fh := range r.MultipartForm.File["files"] {
				rec.FileNames = append(rec.FileNames, fh.Filename)
			}
		}
	} else if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &rec.Body)
	}
	p.mu.Lock()
	p.requests = append(p.requests, rec)
	p.mu.Unlock()

	if p.handler != nil && p.handler(w, r) {
		return
	}
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"message":"not found"}`))
}

func (p *fakePortal) last() recordedRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[len(p.requests)-1]
}

func (p *fakePortal) all() []recordedRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]recordedRequest(nil), p.requests...)
}

func newPortal(t *testing.T, handler func(w http.ResponseWriter, r *http.Request) bool) (*fakePortal, *HTTPBackend) {
	t.Helper()
	portal := &fakePortal{handler: handler}
	srv := httptest.NewServer(portal)
	t.Cleanup(srv.Close)
	return portal, NewHTTPBackend(client.NewClient(srv.URL + "/api"))
}

func TestCreateScenario(t *testing.T) {
	portal, backend := newPortal(t, func(w http.ResponseWriter, r *http.Request) bool {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/applications":
			w.Write([]byte(`{"id":42}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/applications/42":
			w.Write([]byte(`{"id":42,"student_id":"2021001","application_type":"academic","project_name":"ACM","status":"pending","applied_at":"2024-03-01T08:00:00"}`))
		default:
			return false
		}
		return true
	})
	store := NewStore(backend)

	id, ok := store.Create(context.Background(), models.Application{
		StudentID:       "2021001",
		ApplicationType: "academic",
		ProjectName:     "ACM",
	}, nil)
	require.True(t, ok, store.Err())
	assert.Equal(t, models.ID("42"), id)

	requests := portal.all()
	require.Len(t, requests, 2)
	create := requests[0]
	assert.Equal(t, http.MethodPost, create.Method)
	assert.True(t, strings.HasPrefix(create.ContentType, "multipart/form-data"))
	assert.Equal(t, "2021001", create.Application["student_id"])
	assert.Equal(t, "ACM", create.Application["project_name"])
	assert.Equal(t, "pending", create.Application["status"])
	assert.NotContains(t, create.Application, "studentId")
	assert.Equal(t, "/api/applications/42", requests[1].Path)

	apps := store.Applications()
	require.Len(t, apps, 1)
	assert.Equal(t, models.ID("42"), apps[0].ID)
	assert.Equal(t, "ACM", apps[0].ProjectName)
	assert.Empty(t, store.Err())
	assert.False(t, store.Loading())
}

func TestCreatePrependsAndSendsAttachments(t *testing.T) {
	portal, backend := newPortal(t, func(w http.ResponseWriter, r *http.Request) bool {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/applications":
			w.Write([]byte(`{"applications":[{"id":1,"student_id":"a"}]}`))
		case r.Method == http.MethodPost:
			w.Write([]byte(`{"data":{"id":2}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/applications/2":
			w.Write([]byte(`{"application":{"id":2,"student_id":"b"}}`))
		default:
			return false
		}
		return true
	})
	store := NewStore(backend)
	ctx := context.Background()

	_, err := store.FetchAll(ctx, models.Filter{})
	require.NoError(t, err)

	id, ok := store.Create(ctx, models.Application{
		ID:         "999",
		StudentID:  "b",
		FinalScore: ptr(100),
		Status:     models.StatusApproved,
	}, []models.Attachment{
		models.RefAttachment(models.FileRef{ID: "7", Name: "old.pdf", Path: "/uploads/old.pdf"}),
		models.UploadAttachment("new.pdf", strings.NewReader("data")),
	})
	require.True(t, ok, store.Err())
	assert.Equal(t, models.ID("2"), id)

	create := portal.all()[1]
	assert.Equal(t, []string{"new.pdf"}, create.FileNames)
	assert.NotContains(t, create.Application, "id")
	assert.NotContains(t, create.Application, "final_score")
	assert.Equal(t, "pending", create.Application["status"])
	files, _ := create.Application["files"].([]interface{})
	require.Len(t, files, 1)
	assert.Equal(t, "old.pdf", files[0].(map[string]interface{})["name"])

	assert.Equal(t, []models.ID{"2", "1"}, ids(store.Applications()))
}

func TestCreateFailureLeavesMirror(t *testing.T) {
	_, backend := newPortal(t, func(w http.ResponseWriter, r *http.Request) bool {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message":"缺少必填字段"}`))
			return true
		}
		return false
	})
	store := NewStore(backend)

	id, ok := store.Create(context.Background(), models.Application{StudentID: "x"}, nil)

	assert.False(t, ok)
	assert.Empty(t, id)
	assert.Contains(t, store.Err(), "缺少必填字段")
	assert.Equal(t, http.StatusBadRequest, client.StatusCode(store.LastError()))
	assert.Empty(t, store.Applications())
}

func TestFetchAllSendsQueryAndClearsOnFailure(t *testing.T) {
	fail := false
	portal, backend := newPortal(t, func(w http.ResponseWriter, r *http.Request) bool {
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return true
		}
		w.Write([]byte(`[{"id":1,"student_id":"2021001","student_name":"张三","department":"cs","final_score":90,"dynamic_coefficients":{"level_factor":1.5}}]`))
		return true
	})
	store := NewStore(backend)
	ctx := context.Background()

	apps, err := store.FetchAll(ctx, models.Filter{Status: "all", Department: "cs"})
	require.NoError(t, err)
	assert.Equal(t, "department=cs", portal.last().Query)
	require.Len(t, apps, 1)
	assert.Equal(t, "张三", apps[0].StudentName)
	assert.Equal(t, 90.0, *apps[0].FinalScore)
	assert.JSONEq(t, `{"level_factor":1.5}`, string(apps[0].DynamicCoefficients))
	assert.Equal(t, 1, store.Total())

	fail = true
	_, err = store.FetchAll(ctx, models.Filter{})
	require.Error(t, err)
	assert.Equal(t, 0, store.Total())
	assert.NotEmpty(t, store.Err())
}

func TestFetchPendingUsesPendingEndpoint(t *testing.T) {
	portal, backend := newPortal(t, func(w http.ResponseWriter, r *http.Request) bool {
		w.Write([]byte(`[{"id":5,"status":"pending"}]`))
		return true
	})
	store := NewStore(backend)

	_, err := store.FetchPending(context.Background(), models.Filter{StudentName: "张", Status: "approved"})
	require.NoError(t, err)

	req := portal.last()
	assert.Equal(t, "/api/applications/pending", req.Path)
	assert.Equal(t, "studentName=%E5%BC%A0", req.Query)
	assert.Len(t, store.Pending(), 1)
}

func TestReviewSendsDedicatedRequest(t *testing.T) {
	portal, backend := newPortal(t, func(w http.ResponseWriter, r *http.Request) bool {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/applications":
			w.Write([]byte(`[{"id":1,"status":"pending"}]`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/applications/1":
			w.Write([]byte(`{"id":1,"status":"approved","final_score":90,"review_comment":"good","reviewed_by":"teacherA","reviewed_at":"2024-03-10T12:00:00"}`))
		case r.URL.Path == "/api/applications/1/review":
			w.Write([]byte(`{"message":"ok"}`))
		default:
			return false
		}
		return true
	})
	store := NewStore(backend)
	ctx := context.Background()
	_, err := store.FetchAll(ctx, models.Filter{})
	require.NoError(t, err)

	require.True(t, store.Approve(ctx, "1", 85, "good", "teacherA"), store.Err())

	var body map[string]interface{}
	for _, req := range portal.all() {
		if req.Path == "/api/applications/1/review" {
			body = req.Body
		}
	}
	require.NotNil(t, body)
	assert.Equal(t, "approved", body["status"])
	assert.Equal(t, true, body["approval"])
	assert.Equal(t, 85.0, body["final_score"])
	assert.Equal(t, "good", body["review_comment"])
	assert.Equal(t, "teacherA", body["reviewed_by"])

	assert.False(t, store.Review(ctx, "404", models.ReviewDecision{Status: models.StatusRejected, ReviewedBy: "t"}))
	assert.True(t, IsNotFound(store.LastError()))

	app := store.Applications()[0]
	assert.Equal(t, models.StatusApproved, app.Status)
	require.NotNil(t, app.FinalScore)
	assert.Equal(t, 90.0, *app.FinalScore)
}

func TestUpdateMergesReturnedRecord(t *testing.T) {
	portal, backend := newPortal(t, func(w http.ResponseWriter, r *http.Request) bool {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`[{"id":1,"project_name":"Old","award_level":"provincial","status":"pending"}]`))
		case http.MethodPut:
			w.Write([]byte(`{"application":{"id":1,"project_name":"New","award_level":"national","status":"pending"}}`))
		default:
			return false
		}
		return true
	})
	store := NewStore(backend)
	ctx := context.Background()
	_, err := store.FetchAll(ctx, models.Filter{})
	require.NoError(t, err)

	require.True(t, store.Update(ctx, "1", models.Application{ProjectName: "New", Status: models.StatusApproved}, nil))

	req := portal.last()
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "New", req.Application["project_name"])
	assert.NotContains(t, req.Application, "status")

	app := store.Applications()[0]
	assert.Equal(t, "New", app.ProjectName)
	assert.Equal(t, "national", app.AwardLevel)
	assert.Equal(t, models.StatusPending, app.Status)
}

func TestUpdateMergesGivenFieldsWithoutRecord(t *testing.T) {
	_, backend := newPortal(t, func(w http.ResponseWriter, r *http.Request) bool {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`[{"id":1,"project_name":"Old","award_level":"provincial"}]`))
		case http.MethodPut:
			w.Write([]byte(`{"message":"updated"}`))
		default:
			return false
		}
		return true
	})
	store := NewStore(backend)
	ctx := context.Background()
	_, err := store.FetchAll(ctx, models.Filter{})
	require.NoError(t, err)

	require.True(t, store.Update(ctx, "1", models.Application{ProjectName: "New"}, nil))

	app := store.Applications()[0]
	assert.Equal(t, models.ID("1"), app.ID)
	assert.Equal(t, "New", app.ProjectName)
	assert.Equal(t, "provincial", app.AwardLevel)
}

func TestStatisticsAndRanking(t *testing.T) {
	portal, backend := newPortal(t, func(w http.ResponseWriter, r *http.Request) bool {
		switch r.URL.Path {
		case "/api/applications/statistics":
			w.Write([]byte(`{"student_id":"2021001","total_applications":3,"approved_applications":2,"total_score":7.5,"average_score":3.75,"recent_applications":[{"id":1,"type":"academic","status":"approved","applied_at":"2024-01-01"}]}`))
		case "/api/students/ranking":
			w.Write([]byte(`{"ranking":[{"student_id":"a","total_score":9,"approved_count":2},{"student_id":"b","total_score":3,"approved_count":1}]}`))
		default:
			return false
		}
		return true
	})
	store := NewStore(backend)
	ctx := context.Background()

	stats, err := store.FetchStatistics(ctx, "2021001")
	require.NoError(t, err)
	assert.Equal(t, "studentId=2021001", portal.last().Query)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Approved)
	assert.Equal(t, 3.75, stats.AverageScore)
	require.Len(t, stats.Recent, 1)
	assert.Equal(t, models.Timestamp("2024-01-01"), stats.Recent[0].AppliedAt)

	ranking, err := store.FetchStudentsRanking(ctx, models.RankingFilter{Department: "cs", Major: "all"})
	require.NoError(t, err)
	assert.Equal(t, "department=cs", portal.last().Query)
	require.Len(t, ranking, 2)
	assert.Equal(t, 1, ranking[0].Rank)
	assert.Equal(t, "a", ranking[0].StudentID)
	assert.Equal(t, 2, ranking[1].Rank)
	assert.Equal(t, 3.0, ranking[1].TotalScore)
}

func TestLegacyRankingPath(t *testing.T) {
	portal := &fakePortal{handler: func(w http.ResponseWriter, r *http.Request) bool {
		w.Write([]byte(`[]`))
		return true
	}}
	srv := httptest.NewServer(portal)
	defer srv.Close()

	backend := NewHTTPBackend(client.NewClient(srv.URL+"/api"), WithRankingPath(LegacyRankingPath))
	_, err := backend.Ranking(context.Background(), models.RankingFilter{})
	require.NoError(t, err)
	assert.Equal(t, "/api/applications/students-ranking", portal.last().Path)
}

func ptr(v float64) *float64 {
	return &v
}
