package mockserver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gradpush/extrapoints/internal/models"
)

func validateFaculty(f *models.Faculty) error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("%w: name is required", models.ErrValidation)
	}
	return nil
}

func validateDepartment(d *models.Department) error {
	if strings.TrimSpace(d.Name) == "" || d.FacultyID.IsZero() {
		return fmt.Errorf("%w: name and faculty_id are required", models.ErrValidation)
	}
	return nil
}

func validateMajor(m *models.Major) error {
	if strings.TrimSpace(m.Name) == "" || m.DepartmentID.IsZero() {
		return fmt.Errorf("%w: name and department_id are required", models.ErrValidation)
	}
	return nil
}

func validateRule(r *models.Rule) error {
	if r.Status == "" {
		r.Status = models.RuleActive
	}
	return r.Validate()
}

func (s *Server) handleListFaculties(w http.ResponseWriter, r *http.Request) {
	faculties, err := s.faculties.list(r.Context(), nil)
	if err != nil {
		s.respondFailure(w, "list faculties", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"faculties": faculties})
}

func (s *Server) handleListDepartments(w http.ResponseWriter, r *http.Request) {
	facultyID := models.ID(chi.URLParam(r, "facultyId"))
	departments, err := s.departments.list(r.Context(), func(d models.Department) bool {
		return d.FacultyID == facultyID
	})
	if err != nil {
		s.respondFailure(w, "list departments", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"departments": departments})
}

func (s *Server) handleListMajors(w http.ResponseWriter, r *http.Request) {
	departmentID := models.ID(chi.URLParam(r, "departmentId"))
	majors, err := s.majors.list(r.Context(), func(m models.Major) bool {
		return m.DepartmentID == departmentID
	})
	if err != nil {
		s.respondFailure(w, "list majors", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"majors": majors})
}

func (s *Server) handleRuleStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status models.RuleStatus `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondFailure(w, "update rule status", err)
		return
	}
	if req.Status != models.RuleActive && req.Status != models.RuleDisabled {
		respondError(w, http.StatusBadRequest, "validation_error", "status must be active or disabled")
		return
	}

	id := models.ID(chi.URLParam(r, "id"))
	err := s.rules.modify(r.Context(), id, func(rule *models.Rule) error {
		rule.Status = req.Status
		return nil
	})
	if err != nil {
		s.respondFailure(w, "update rule status", err)
		return
	}
	s.logger.Info("rule status changed", "id", id, "status", req.Status)
	respondJSON(w, http.StatusOK, map[string]string{"message": "状态已更新"})
}
