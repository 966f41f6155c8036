package mockserver

import (
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gradpush/extrapoints/internal/applications"
	"github.com/gradpush/extrapoints/internal/fieldmap"
	"github.com/gradpush/extrapoints/internal/models"
)

// maxUploadMemory bounds the in-memory part of multipart bodies
const maxUploadMemory = 32 << 20

// reviewRequest accepts either the status string or the approval flag
type reviewRequest struct {
	Status        models.Status `json:"status"`
	Approval      *bool         `json:"approval"`
	ReviewComment string        `json:"review_comment"`
	FinalScore    *float64      `json:"final_score"`
	ReviewedBy    string        `json:"reviewed_by"`
}

func (s *Server) encodeApplication(app models.Application) (map[string]interface{}, error) {
	return s.mapper.EncodeExternal(app)
}

func (s *Server) respondApplications(w http.ResponseWriter, apps []models.Application) {
	out := make([]map[string]interface{}, 0, len(apps))
	for _, app := range apps {
		record, err := s.encodeApplication(app)
		if err != nil {
			s.respondFailure(w, "encode applications", err)
			return
		}
		out = append(out, record)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"applications": out, "total": len(out)})
}

// ownsApplication reports whether the caller may touch app
func ownsApplication(c *claims, app *models.Application) bool {
	return c.Role.IsReviewer() || (c.StudentID != "" && c.StudentID == app.StudentID)
}

func (s *Server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	f := applications.ParseQuery(r.URL.Query())
	if c := claimsFromContext(r.Context()); !c.Role.IsReviewer() {
		if c.StudentID == "" {
			s.respondApplications(w, nil)
			return
		}
		f.StudentID = c.StudentID
	}

	apps, err := s.apps.List(r.Context(), f)
	if err != nil {
		s.respondFailure(w, "list applications", err)
		return
	}
	if f.StudentID != "" && !claimsFromContext(r.Context()).Role.IsReviewer() {
		// the filter matches substrings; students see exactly their own
		own := apps[:0]
		for _, app := range apps {
			if app.StudentID == f.StudentID {
				own = append(own, app)
			}
		}
		apps = own
	}
	s.respondApplications(w, apps)
}

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	apps, err := s.apps.Pending(r.Context(), applications.ParseQuery(r.URL.Query()))
	if err != nil {
		s.respondFailure(w, "list pending applications", err)
		return
	}
	s.respondApplications(w, apps)
}

func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	app, ok := s.loadOwned(w, r)
	if !ok {
		return
	}
	record, err := s.encodeApplication(*app)
	if err != nil {
		s.respondFailure(w, "encode application", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"application": record})
}

// loadOwned fetches the application named in the path and checks access
func (s *Server) loadOwned(w http.ResponseWriter, r *http.Request) (*models.Application, bool) {
	app, err := s.apps.Get(r.Context(), models.ID(chi.URLParam(r, "id")))
	if err != nil {
		s.respondFailure(w, "load application", err)
		return nil, false
	}
	if !ownsApplication(claimsFromContext(r.Context()), app) {
		respondError(w, http.StatusForbidden, "forbidden", "没有权限访问该申请")
		return nil, false
	}
	return app, true
}

func (s *Server) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	sub, cleanup, err := s.readSubmission(r)
	if err != nil {
		s.respondFailure(w, "create application", err)
		return
	}
	defer cleanup()

	c := claimsFromContext(r.Context())
	if !c.Role.IsReviewer() {
		sub.Application.StudentID = c.StudentID
	}

	id, err := s.apps.Create(r.Context(), sub)
	if err != nil {
		s.respondFailure(w, "create application", err)
		return
	}

	s.logger.Info("application submitted", "id", id, "student_id", sub.Application.StudentID, "files", len(sub.Uploads))
	respondJSON(w, http.StatusCreated, map[string]interface{}{"id": id, "message": "申请提交成功"})
}

func (s *Server) handleUpdateApplication(w http.ResponseWriter, r *http.Request) {
	app, ok := s.loadOwned(w, r)
	if !ok {
		return
	}

	sub, cleanup, err := s.readSubmission(r)
	if err != nil {
		s.respondFailure(w, "update application", err)
		return
	}
	defer cleanup()

	// Review fields only change through the review endpoint.
	sub.Application.Status = ""
	sub.Application.FinalScore = nil
	sub.Application.ReviewComment = ""
	sub.Application.ReviewedBy = ""
	sub.Application.ReviewedAt = ""

	updated, err := s.apps.Update(r.Context(), app.ID, sub)
	if err != nil {
		s.respondFailure(w, "update application", err)
		return
	}
	record, err := s.encodeApplication(*updated)
	if err != nil {
		s.respondFailure(w, "encode application", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"application": record, "message": "更新成功"})
}

func (s *Server) handleDeleteApplication(w http.ResponseWriter, r *http.Request) {
	app, ok := s.loadOwned(w, r)
	if !ok {
		return
	}
	if err := s.apps.Delete(r.Context(), app.ID); err != nil {
		s.respondFailure(w, "delete application", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "删除成功"})
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondFailure(w, "review application", err)
		return
	}
	if req.Status == "" && req.Approval != nil {
		req.Status = models.StatusRejected
		if *req.Approval {
			req.Status = models.StatusApproved
		}
	}
	if req.ReviewedBy == "" {
		req.ReviewedBy = claimsFromContext(r.Context()).Username
	}

	id := models.ID(chi.URLParam(r, "id"))
	decision := models.ReviewDecision{
		Status:     req.Status,
		Comment:    req.ReviewComment,
		FinalScore: req.FinalScore,
		ReviewedBy: req.ReviewedBy,
	}
	if err := s.apps.Review(r.Context(), id, decision); err != nil {
		s.respondFailure(w, "review application", err)
		return
	}

	s.logger.Info("application reviewed", "id", id, "status", req.Status, "reviewed_by", req.ReviewedBy)
	respondJSON(w, http.StatusOK, map[string]string{"message": "审核完成"})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	studentID := r.URL.Query().Get("studentId")
	if c := claimsFromContext(r.Context()); !c.Role.IsReviewer() {
		studentID = c.StudentID
	}

	stats, err := s.apps.Statistics(r.Context(), studentID)
	if err != nil {
		s.respondFailure(w, "load statistics", err)
		return
	}

	record, err := fieldmap.Encode(stats)
	if err != nil {
		s.respondFailure(w, "encode statistics", err)
		return
	}
	if recent, ok := record["recentApplications"].([]interface{}); ok {
		for i, entry := range recent {
			recent[i] = s.stats.ToExternal(entry)
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"statistics": s.stats.ToExternal(record)})
}

func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	entries, err := s.apps.Ranking(r.Context(), applications.ParseRankingQuery(r.URL.Query()))
	if err != nil {
		s.respondFailure(w, "load ranking", err)
		return
	}

	out := make([]interface{}, 0, len(entries))
	for _, entry := range entries {
		record, err := fieldmap.Encode(entry)
		if err != nil {
			s.respondFailure(w, "encode ranking", err)
			return
		}
		out = append(out, s.ranking.ToExternal(record))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"ranking": out})
}

// readSubmission parses a multipart body with the record under
// "application" and uploads under "files". Plain JSON bodies are
// accepted too. cleanup closes the opened uploads.
func (s *Server) readSubmission(r *http.Request) (applications.Submission, func(), error) {
	noop := func() {}

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		var raw json.RawMessage
		if err := decodeJSON(r, &raw); err != nil {
			return applications.Submission{}, noop, err
		}
		var app models.Application
		if err := s.mapper.DecodeExternal(raw, &app); err != nil {
			return applications.Submission{}, noop, fmt.Errorf("%w: %v", models.ErrValidation, err)
		}
		return applications.Submission{Application: app}, noop, nil
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return applications.Submission{}, noop, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}

	var app models.Application
	if value := r.FormValue("application"); value != "" {
		if err := s.mapper.DecodeExternal([]byte(value), &app); err != nil {
			return applications.Submission{}, noop, fmt.Errorf("%w: %v", models.ErrValidation, err)
		}
	}

	var opened []multipart.File
	cleanup := func() {
		for _, f := range opened {
			f.Close()
		}
		r.MultipartForm.RemoveAll()
	}

	sub := applications.Submission{Application: app}
	for _, header := range r.MultipartForm.File["files"] {
		f, err := header.Open()
		if err != nil {
			cleanup()
			return applications.Submission{}, noop, fmt.Errorf("failed to open upload %s: %w", header.Filename, err)
		}
		opened = append(opened, f)
		sub.Uploads = append(sub.Uploads, models.Upload{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Content:     f,
		})
	}
	return sub, cleanup, nil
}
