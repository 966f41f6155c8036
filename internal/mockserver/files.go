package mockserver

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gradpush/extrapoints/internal/models"
)

func (s *Server) handleListGraduateFiles(w http.ResponseWriter, r *http.Request) {
	facultyID := models.ID(r.URL.Query().Get("faculty_id"))
	files, err := s.files.list(r.Context(), func(f models.GraduateFile) bool {
		return facultyID.IsZero() || f.FacultyID.IsZero() || f.FacultyID == facultyID
	})
	if err != nil {
		s.respondFailure(w, "list graduate files", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"files": files, "total": len(files)})
}

// handleUploadGraduateFile stores the file metadata; content is drained
// to measure its size
func (s *Server) handleUploadGraduateFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "multipart body required")
		return
	}
	defer r.MultipartForm.RemoveAll()

	f, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "file is required")
		return
	}
	defer f.Close()

	size, err := io.Copy(io.Discard, f)
	if err != nil {
		s.respondFailure(w, "upload graduate file", fmt.Errorf("failed to read %s: %w", header.Filename, err))
		return
	}

	uploader := r.FormValue("uploader")
	if uploader == "" {
		uploader = claimsFromContext(r.Context()).Username
	}

	key := uuid.NewString()
	file := models.GraduateFile{
		Name:        header.Filename,
		URL:         "/uploads/graduate/" + key + "/" + header.Filename,
		Size:        size,
		Category:    r.FormValue("category"),
		Description: r.FormValue("description"),
		FacultyID:   models.ID(r.FormValue("faculty_id")),
		UploadedBy:  uploader,
		UploadedAt:  models.NewTimestamp(time.Now()),
	}
	id, err := s.files.create(r.Context(), file)
	if err != nil {
		s.respondFailure(w, "upload graduate file", err)
		return
	}
	file.ID = id

	s.logger.Info("graduate file uploaded", "id", id, "name", file.Name, "size", size)
	respondJSON(w, http.StatusCreated, map[string]interface{}{"file": file, "message": "上传成功"})
}

func (s *Server) handleDeleteGraduateFile(w http.ResponseWriter, r *http.Request) {
	if err := s.files.delete(r.Context(), models.ID(chi.URLParam(r, "id"))); err != nil {
		s.respondFailure(w, "delete graduate file", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "删除成功"})
}
