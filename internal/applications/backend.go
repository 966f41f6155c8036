package applications

import (
	"context"
	"errors"

	"github.com/gradpush/extrapoints/internal/models"
)

var (
	// ErrNotFound is returned when an application does not exist
	ErrNotFound = errors.New("application not found")

	// ErrInvalidStatus is returned for a review status other than approved or rejected
	ErrInvalidStatus = errors.New("invalid review status")
)

// Submission is the write payload of create and update. Application.Files
// lists attachments the backend already stores; Uploads are new files.
type Submission struct {
	Application models.Application
	Uploads     []models.Upload
}

// Backend is where application records live. The HTTP implementation
// talks to the portal; the local implementation keeps records in a
// snapshot store and serves as the mock backend.
type Backend interface {
	List(ctx context.Context, f models.Filter) ([]models.Application, error)
	Pending(ctx context.Context, f models.Filter) ([]models.Application, error)
	Get(ctx context.Context, id models.ID) (*models.Application, error)

	// Create stores a new application and returns its id
	Create(ctx context.Context, sub Submission) (models.ID, error)

	// Update changes an application. It returns the stored record when
	// the backend sends one back, nil otherwise.
	Update(ctx context.Context, id models.ID, sub Submission) (*models.Application, error)

	Review(ctx context.Context, id models.ID, d models.ReviewDecision) error
	Delete(ctx context.Context, id models.ID) error

	Statistics(ctx context.Context, studentID string) (*models.StudentStatistics, error)
	Ranking(ctx context.Context, f models.RankingFilter) ([]models.RankingEntry, error)
}
