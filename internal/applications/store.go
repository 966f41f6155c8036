// Package applications is the client-side mirror of application records
// together with the review workflow.
package applications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gradpush/extrapoints/internal/models"
	"github.com/gradpush/extrapoints/pkg/client"
)

// Store keeps an ordered local mirror of application records. Reads
// return errors; writes return a success flag and record the error,
// readable through Err and LastError. A failed operation never changes
// the mirror.
//
// The mutex guards state only and is never held across a backend call,
// so two writes on the same record may race. Loading is one flag for
// the whole store.
type Store struct {
	backend Backend
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.RWMutex
	apps    []models.Application
	loading int
	errMsg  string
	lastErr error
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNow overrides the clock used for reviewedAt
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty store over backend
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// begin marks an operation in flight and clears the previous error
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

// fail records err under a user-facing message
func (s *Store) fail(action string, err error) {
	msg := fmt.Sprintf("failed to %s: %s", action, client.Message(err))
	s.mu.Lock()
	s.errMsg = msg
	s.lastErr = err
	s.mu.Unlock()
	s.logger.Error("application operation failed", "action", action, "error", err)
}

// Loading reports whether any operation is in flight
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading > 0
}

// Err returns the last error message, or "" after a successful operation
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

// Applications returns a copy of the mirror
func (s *Store) Applications() []models.Application {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.apps)
}

// Pending returns the mirrored applications awaiting review
func (s *Store) Pending() []models.Application {
	return s.Filter(models.Filter{Status: string(models.StatusPending)})
}

// Reviewed returns the mirrored applications that were approved or rejected
func (s *Store) Reviewed() []models.Application {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Application
	for _, app := range s.apps {
		if app.Status.IsReviewed() {
			out = append(out, app.Clone())
		}
	}
	return out
}

// Total returns the number of mirrored applications
func (s *Store) Total() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.apps)
}

// Filter returns the mirrored applications matching f
func (s *Store) Filter(f models.Filter) []models.Application {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Filter(s.apps, f)
}

// FetchAll replaces the mirror with the backend's applications matching f.
// On failure the mirror is cleared.
func (s *Store) FetchAll(ctx context.Context, f models.Filter) ([]models.Application, error) {
	return s.fetchList(ctx, "load applications", f, s.backend.List)
}

// FetchPending replaces the mirror with the pending applications matching f
func (s *Store) FetchPending(ctx context.Context, f models.Filter) ([]models.Application, error) {
	return s.fetchList(ctx, "load pending applications", f, s.backend.Pending)
}

func (s *Store) fetchList(
	ctx context.Context,
	action string,
	f models.Filter,
	list func(context.Context, models.Filter) ([]models.Application, error),
) ([]models.Application, error) {
	s.begin()
	defer s.end()

	apps, err := func() ([]models.Application, error) {
		f = f.Normalize()
		if err := f.Validate(); err != nil {
			return nil, err
		}
		return list(ctx, f)
	}()
	if err != nil {
		s.mu.Lock()
		s.apps = nil
		s.mu.Unlock()
		s.fail(action, err)
		return nil, err
	}

	s.mu.Lock()
	s.apps = cloneAll(apps)
	s.mu.Unlock()

	s.logger.Debug("applications loaded", "action", action, "count", len(apps))
	return apps, nil
}

// FetchByID loads one application without touching the mirror
func (s *Store) FetchByID(ctx context.Context, id models.ID) (*models.Application, error) {
	s.begin()
	defer s.end()

	app, err := s.backend.Get(ctx, id)
	if err != nil {
		s.fail("load application", err)
		return nil, err
	}
	return app, nil
}

// GetByID returns the mirrored application or falls back to FetchByID
func (s *Store) GetByID(ctx context.Context, id models.ID) (*models.Application, error) {
	s.mu.RLock()
	if i := indexOf(s.apps, id); i >= 0 {
		app := s.apps[i].Clone()
		s.mu.RUnlock()
		return &app, nil
	}
	s.mu.RUnlock()
	return s.FetchByID(ctx, id)
}

// Create submits a new application with its attachments. Existing file
// references and new uploads may be mixed. The created record is fetched
// back and put at the front of the mirror.
func (s *Store) Create(ctx context.Context, app models.Application, files []models.Attachment) (models.ID, bool) {
	s.begin()
	defer s.end()

	sub := submission(app, files)
	sub.Application.Status = models.StatusPending

	id, err := s.backend.Create(ctx, sub)
	if err != nil {
		s.fail("create application", err)
		return "", false
	}

	created, err := s.backend.Get(ctx, id)
	if err != nil {
		// The record exists; mirror what was submitted, stamped locally
		// until the next fetch brings the server's copy.
		s.logger.Warn("failed to fetch created application", "id", id, "error", err)
		fallback := sub.Application
		fallback.ID = id
		fallback.AppliedAt = models.NewTimestamp(s.now())
		created = &fallback
	}

	s.mu.Lock()
	s.apps = append([]models.Application{created.Clone()}, s.apps...)
	s.mu.Unlock()

	s.logger.Info("application created", "id", id, "student_id", created.StudentID)
	return id, true
}

// Update changes an application. Fields set in app overwrite the mirrored
// record; unset fields are left alone.
func (s *Store) Update(ctx context.Context, id models.ID, app models.Application, files []models.Attachment) bool {
	s.begin()
	defer s.end()

	sub := submission(app, files)
	returned, err := s.backend.Update(ctx, id, sub)
	if err != nil {
		s.fail("update application", err)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.apps, id)
	if i < 0 {
		return true
	}

	patch := sub.Application
	if returned != nil {
		patch = *returned
	}
	merged, err := overlay(s.apps[i], patch)
	if err != nil {
		s.logger.Warn("failed to merge updated application", "id", id, "error", err)
		return true
	}
	if returned == nil && patch.Files != nil {
		merged.Files = patch.Files
	}
	s.apps[i] = merged
	return true
}

// Review records a decision through the dedicated review endpoint, which
// triggers scoring on the backend. A mirrored record is then replaced by
// the backend's copy; when that fetch fails the decision is applied
// locally. Already reviewed applications may be reviewed again.
func (s *Store) Review(ctx context.Context, id models.ID, d models.ReviewDecision) bool {
	s.begin()
	defer s.end()

	if err := d.Validate(); err != nil {
		if d.Status != models.StatusApproved && d.Status != models.StatusRejected {
			err = fmt.Errorf("%w: %q: %w", ErrInvalidStatus, d.Status, err)
		}
		s.fail("review application", err)
		return false
	}

	if err := s.backend.Review(ctx, id, d); err != nil {
		s.fail("review application", err)
		return false
	}

	s.mu.RLock()
	mirrored := indexOf(s.apps, id) >= 0
	s.mu.RUnlock()

	var reviewed *models.Application
	if mirrored {
		app, err := s.backend.Get(ctx, id)
		if err != nil {
			s.logger.Warn("failed to fetch reviewed application", "id", id, "error", err)
		} else {
			reviewed = app
		}
	}

	s.mu.Lock()
	if i := indexOf(s.apps, id); i >= 0 {
		if reviewed != nil {
			s.apps[i] = reviewed.Clone()
		} else {
			applyDecision(&s.apps[i], d, s.now())
		}
	}
	s.mu.Unlock()

	s.logger.Info("application reviewed", "id", id, "status", d.Status, "reviewed_by", d.ReviewedBy)
	return true
}

// applyDecision mirrors a decision without the backend's copy. The score
// always follows the decision, so a missing score clears the old one.
func applyDecision(app *models.Application, d models.ReviewDecision, now time.Time) {
	app.Status = d.Status
	app.ReviewComment = d.Comment
	app.ReviewedBy = d.ReviewedBy
	app.ReviewedAt = models.NewTimestamp(now)
	app.FinalScore = nil
	if d.FinalScore != nil {
		score := *d.FinalScore
		app.FinalScore = &score
	}
}

// Approve approves an application with a final score
func (s *Store) Approve(ctx context.Context, id models.ID, score float64, comment, reviewer string) bool {
	return s.Review(ctx, id, models.ReviewDecision{
		Status:     models.StatusApproved,
		Comment:    comment,
		FinalScore: &score,
		ReviewedBy: reviewer,
	})
}

// Reject rejects an application; the final score becomes zero
func (s *Store) Reject(ctx context.Context, id models.ID, comment, reviewer string) bool {
	zero := 0.0
	return s.Review(ctx, id, models.ReviewDecision{
		Status:     models.StatusRejected,
		Comment:    comment,
		FinalScore: &zero,
		ReviewedBy: reviewer,
	})
}

// Delete removes an application. Deleting an id the backend accepts but
// the mirror does not hold succeeds without changing the mirror.
func (s *Store) Delete(ctx context.Context, id models.ID) bool {
	s.begin()
	defer s.end()

	if err := s.backend.Delete(ctx, id); err != nil {
		s.fail("delete application", err)
		return false
	}

	s.mu.Lock()
	if i := indexOf(s.apps, id); i >= 0 {
		s.apps = append(s.apps[:i:i], s.apps[i+1:]...)
	}
	s.mu.Unlock()

	s.logger.Info("application deleted", "id", id)
	return true
}

// FetchStatistics returns a student's score summary
func (s *Store) FetchStatistics(ctx context.Context, studentID string) (*models.StudentStatistics, error) {
	s.begin()
	defer s.end()

	stats, err := s.backend.Statistics(ctx, studentID)
	if err != nil {
		s.fail("load statistics", err)
		return nil, err
	}
	return stats, nil
}

// FetchStudentsRanking returns students ordered by total approved score
func (s *Store) FetchStudentsRanking(ctx context.Context, f models.RankingFilter) ([]models.RankingEntry, error) {
	s.begin()
	defer s.end()

	entries, err := s.backend.Ranking(ctx, f.Normalize())
	if err != nil {
		s.fail("load students ranking", err)
		return nil, err
	}
	return entries, nil
}

// IsNotFound reports whether err means the application does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func submission(app models.Application, files []models.Attachment) Submission {
	refs, uploads := models.SplitAttachments(files)
	out := writable(app)
	if files != nil {
		out.Files = refs
		if out.Files == nil {
			out.Files = []models.FileRef{}
		}
	}
	return Submission{Application: out, Uploads: uploads}
}

func cloneAll(apps []models.Application) []models.Application {
	if apps == nil {
		return nil
	}
	out := make([]models.Application, len(apps))
	for i := range apps {
		out[i] = apps[i].Clone()
	}
	return out
}
