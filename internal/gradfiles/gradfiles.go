// Package gradfiles mirrors the documents published to graduating students.
package gradfiles

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gradpush/extrapoints/internal/models"
	"github.com/gradpush/extrapoints/pkg/client"
)

// API is the part of the portal client used for graduate files
type API interface {
	PublicGraduateFiles(ctx context.Context, facultyID models.ID) ([]models.GraduateFile, error)
	UploadGraduateFile(ctx context.Context, upload client.GraduateFileUpload) (*models.GraduateFile, error)
	DeleteGraduateFile(ctx context.Context, id models.ID) error
}

// Store keeps the last loaded file list. Like the application store, Load
// returns its error while Upload and Delete report success as a bool.
type Store struct {
	api    API
	logger *slog.Logger

	mu      sync.RWMutex
	files   []models.GraduateFile
	loading int
	errMsg  string
	lastErr error
}

// New creates an empty store
func New(api API, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{api: api, logger: logger}
}

func (s *Store) begin() {
	s.mu.Lock()
	s.loading++
	s.errMsg = ""
	s.lastErr = nil
	s.mu.Unlock()
}

func (s *Store) end() {
	s.mu.Lock()
	s.loading--
	s.mu.Unlock()
}

func (s *Store) fail(action string, err error) {
	s.mu.Lock()
	s.errMsg = fmt.Sprintf("failed to %s: %s", action, client.Message(err))
	s.lastErr = err
	s.mu.Unlock()
	s.logger.Error("graduate file operation failed", "action", action, "error", err)
}

// Files returns a copy of the loaded list
func (s *Store) Files() []models.GraduateFile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.GraduateFile(nil), s.files...)
}

// Loading reports whether any operation is in flight
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading > 0
}

// Err returns the last error message
func (s *Store) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errMsg
}

// LastError returns the cause of the last failure
func (s *Store) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Load replaces the list with the files published for facultyID, or all
// files when facultyID is empty
func (s *Store) Load(ctx context.Context, facultyID models.ID) ([]models.GraduateFile, error) {
	s.begin()
	defer s.end()
	return s.load(ctx, facultyID)
}

func (s *Store) load(ctx context.Context, facultyID models.ID) ([]models.GraduateFile, error) {
	files, err := s.api.PublicGraduateFiles(ctx, facultyID)
	if err != nil {
		s.fail("load graduate files", err)
		return nil, err
	}
	s.mu.Lock()
	s.files = append([]models.GraduateFile(nil), files...)
	s.mu.Unlock()
	return files, nil
}

// Upload sends each file in order and reloads the list. It stops at the
// first failed upload; files sent before it stay on the backend.
func (s *Store) Upload(ctx context.Context, uploads []client.GraduateFileUpload, facultyID models.ID) bool {
	s.begin()
	defer s.end()

	for _, upload := range uploads {
		if upload.FacultyID.IsZero() {
			upload.FacultyID = facultyID
		}
		file, err := s.api.UploadGraduateFile(ctx, upload)
		if err != nil {
			s.fail("upload "+upload.File.Name, err)
			return false
		}
		s.logger.Info("graduate file uploaded", "id", file.ID, "name", upload.File.Name)
	}

	_, err := s.load(ctx, facultyID)
	return err == nil
}

// Delete removes a file and drops it from the list
func (s *Store) Delete(ctx context.Context, id models.ID) bool {
	s.begin()
	defer s.end()

	if err := s.api.DeleteGraduateFile(ctx, id); err != nil {
		s.fail("delete graduate file", err)
		return false
	}

	s.mu.Lock()
	for i := range s.files {
		if s.files[i].ID == id {
			s.files = append(s.files[:i:i], s.files[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.logger.Info("graduate file deleted", "id", id)
	return true
}
