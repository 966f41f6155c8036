package applications

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gradpush/extrapoints/internal/models"
	"github.com/gradpush/extrapoints/internal/storage"
)

// Snapshot loads and saves the full set of application records
type Snapshot interface {
	Load(ctx context.Context) ([]models.Application, error)
	Save(ctx context.Context, apps []models.Application) error
}

// DefaultSnapshotKey is where KVSnapshot keeps the records
const DefaultSnapshotKey = "mock:applications"

// KVSnapshot keeps records as one JSON document in a KV store
type KVSnapshot struct {
	kv  storage.KV
	key string
}

// NewKVSnapshot creates a snapshot stored under key
func NewKVSnapshot(kv storage.KV, key string) *KVSnapshot {
	if key == "" {
		key = DefaultSnapshotKey
	}
	return &KVSnapshot{kv: kv, key: key}
}

func (s *KVSnapshot) Load(ctx context.Context) ([]models.Application, error) {
	var apps []models.Application
	err := storage.GetJSON(ctx, s.kv, s.key, &apps)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return apps, err
}

func (s *KVSnapshot) Save(ctx context.Context, apps []models.Application) error {
	return storage.SetJSON(ctx, s.kv, s.key, apps)
}

// LocalBackend keeps applications in a snapshot store. It implements the
// same contract as the portal, including the review side effects, and
// backs the mock server.
type LocalBackend struct {
	mu       sync.Mutex
	snapshot Snapshot
	now      func() time.Time
	onChange func(models.Event)
	logger   *slog.Logger
}

// LocalOption configures a LocalBackend
type LocalOption func(*LocalBackend)

// WithClock overrides the time source
func WithClock(now func() time.Time) LocalOption {
	return func(b *LocalBackend) {
		b.now = now
	}
}

// WithChangeHook registers a callback invoked after every successful write
func WithChangeHook(fn func(models.Event)) LocalOption {
	return func(b *LocalBackend) {
		b.onChange = fn
	}
}

// WithLocalLogger sets the logger
func WithLocalLogger(logger *slog.Logger) LocalOption {
	return func(b *LocalBackend) {
		b.logger = logger
	}
}

// NewLocalBackend creates a backend over snapshot
func NewLocalBackend(snapshot Snapshot, opts ...LocalOption) *LocalBackend {
	b := &LocalBackend{
		snapshot: snapshot,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *LocalBackend) List(ctx context.Context, f models.Filter) ([]models.Application, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	apps, err := b.snapshot.Load(ctx)
	if err != nil {
		return nil, err
	}
	return Filter(apps, f), nil
}

func (b *LocalBackend) Pending(ctx context.Context, f models.Filter) ([]models.Application, error) {
	f.Status = string(models.StatusPending)
	return b.List(ctx, f)
}

func (b *LocalBackend) Get(ctx context.Context, id models.ID) (*models.Application, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	apps, err := b.snapshot.Load(ctx)
	if err != nil {
		return nil, err
	}
	i := indexOf(apps, id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	app := apps[i].Clone()
	return &app, nil
}

func (b *LocalBackend) Create(ctx context.Context, sub Submission) (models.ID, error) {
	if sub.Application.StudentID == "" {
		return "", fmt.Errorf("%w: studentId is required", models.ErrValidation)
	}
	if sub.Application.ApplicationType == "" {
		return "", fmt.Errorf("%w: applicationType is required", models.ErrValidation)
	}

	files, err := b.storeUploads(sub)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	apps, err := b.snapshot.Load(ctx)
	if err != nil {
		return "", err
	}

	now := models.NewTimestamp(b.now())
	app := writable(sub.Application)
	app.ID = nextID(apps)
	app.Status = models.StatusPending
	app.AppliedAt = now
	app.CreatedAt = now
	app.UpdatedAt = now
	app.Files = files

	apps = append([]models.Application{app}, apps...)
	if err := b.snapshot.Save(ctx, apps); err != nil {
		return "", err
	}

	b.emit(models.EventApplicationCreated, app)
	return app.ID, nil
}

func (b *LocalBackend) Update(ctx context.Context, id models.ID, sub Submission) (*models.Application, error) {
	files, err := b.storeUploads(sub)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	apps, err := b.snapshot.Load(ctx)
	if err != nil {
		return nil, err
	}
	i := indexOf(apps, id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	patch := writable(sub.Application)
	if sub.Application.Files == nil && len(sub.Uploads) == 0 {
		patch.Files = nil
	} else {
		patch.Files = files
	}

	merged, err := overlay(apps[i], patch)
	if err != nil {
		return nil, err
	}
	if patch.Files != nil {
		merged.Files = patch.Files
	}
	merged.UpdatedAt = models.NewTimestamp(b.now())
	apps[i] = merged

	if err := b.snapshot.Save(ctx, apps); err != nil {
		return nil, err
	}

	b.emit(models.EventApplicationUpdated, merged)
	out := merged.Clone()
	return &out, nil
}

// Review applies a decision. Approval without a score awards the
// student's self-assessed score; rejection always scores zero.
// Applications that were already reviewed may be reviewed again.
func (b *LocalBackend) Review(ctx context.Context, id models.ID, d models.ReviewDecision) error {
	if err := d.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	apps, err := b.snapshot.Load(ctx)
	if err != nil {
		return err
	}
	i := indexOf(apps, id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	app := &apps[i]
	score := d.FinalScore
	switch {
	case d.Status == models.StatusRejected:
		zero := 0.0
		score = &zero
	case score == nil && app.SelfScore != nil:
		v := *app.SelfScore
		score = &v
	case score == nil:
		zero := 0.0
		score = &zero
	}

	now := models.NewTimestamp(b.now())
	app.Status = d.Status
	app.FinalScore = score
	app.ReviewComment = d.Comment
	app.ReviewedBy = d.ReviewedBy
	app.ReviewedAt = now
	app.UpdatedAt = now

	if err := b.snapshot.Save(ctx, apps); err != nil {
		return err
	}

	b.emit(models.EventApplicationReviewed, *app)
	return nil
}

func (b *LocalBackend) Delete(ctx context.Context, id models.ID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	apps, err := b.snapshot.Load(ctx)
	if err != nil {
		return err
	}
	i := indexOf(apps, id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	removed := apps[i]
	apps = append(apps[:i], apps[i+1:]...)
	if err := b.snapshot.Save(ctx, apps); err != nil {
		return err
	}

	b.emit(models.EventApplicationDeleted, removed)
	return nil
}

// recentLimit caps the recent applications listed in statistics
const recentLimit = 5

func (b *LocalBackend) Statistics(ctx context.Context, studentID string) (*models.StudentStatistics, error) {
	if studentID == "" {
		return nil, fmt.Errorf("%w: studentId is required", models.ErrValidation)
	}

	b.mu.Lock()
	apps, err := b.snapshot.Load(ctx)
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	stats := &models.StudentStatistics{StudentID: studentID}
	var mine []models.Application
	for _, app := range apps {
		if app.StudentID != studentID {
			continue
		}
		mine = append(mine, app)
		if stats.StudentName == "" {
			stats.StudentName = app.StudentName
		}
		stats.Total++
		switch app.Status {
		case models.StatusApproved:
			stats.Approved++
			if app.FinalScore != nil {
				stats.TotalScore += *app.FinalScore
			}
		case models.StatusRejected:
			stats.Rejected++
		default:
			stats.Pending++
		}
	}
	if stats.Approved > 0 {
		stats.AverageScore = stats.TotalScore / float64(stats.Approved)
	}

	sortBySubmission(mine)
	for i := 0; i < len(mine) && i < recentLimit; i++ {
		app := mine[i]
		entry := models.RecentEntry{
			ID:        app.ID,
			Type:      app.ApplicationType,
			Status:    app.Status,
			AppliedAt: app.SubmittedAt(),
		}
		if app.FinalScore != nil {
			score := *app.FinalScore
			entry.Score = &score
		}
		stats.Recent = append(stats.Recent, entry)
	}
	return stats, nil
}

// Ranking orders students by the total score of their approved
// applications. Ties are broken by student id.
func (b *LocalBackend) Ranking(ctx context.Context, f models.RankingFilter) ([]models.RankingEntry, error) {
	f = f.Normalize()

	b.mu.Lock()
	apps, err := b.snapshot.Load(ctx)
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	orgFilter := models.Filter{
		FacultyID:    f.FacultyID,
		DepartmentID: f.DepartmentID,
		MajorID:      f.MajorID,
		Department:   f.Department,
		Major:        f.Major,
		Status:       string(models.StatusApproved),
	}

	byStudent := make(map[string]*models.RankingEntry)
	var order []string
	for _, app := range Filter(apps, orgFilter) {
		entry, ok := byStudent[app.StudentID]
		if !ok {
			entry = &models.RankingEntry{
				StudentID:    app.StudentID,
				StudentName:  app.StudentName,
				FacultyID:    app.FacultyID,
				DepartmentID: app.DepartmentID,
				MajorID:      app.MajorID,
			}
			byStudent[app.StudentID] = entry
			order = append(order, app.StudentID)
		}
		entry.ApprovedCount++
		if app.FinalScore != nil {
			entry.TotalScore += *app.FinalScore
		}
	}

	entries := make([]models.RankingEntry, 0, len(order))
	for _, id := range order {
		entries = append(entries, *byStudent[id])
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].TotalScore != entries[j].TotalScore {
			return entries[i].TotalScore > entries[j].TotalScore
		}
		return entries[i].StudentID < entries[j].StudentID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// storeUploads turns uploads into file references. Content is drained to
// measure its size; the mock keeps metadata only.
func (b *LocalBackend) storeUploads(sub Submission) ([]models.FileRef, error) {
	var files []models.FileRef
	if sub.Application.Files != nil {
		files = make([]models.FileRef, 0, len(sub.Application.Files)+len(sub.Uploads))
		files = append(files, sub.Application.Files...)
	}
	for _, upload := range sub.Uploads {
		var size int64
		if upload.Content != nil {
			n, err := io.Copy(io.Discard, upload.Content)
			if err != nil {
				return nil, fmt.Errorf("failed to read upload %s: %w", upload.Name, err)
			}
			size = n
		}
		fileID := uuid.NewString()
		files = append(files, models.FileRef{
			ID:   models.ID(fileID),
			Name: upload.Name,
			Path: "/uploads/" + fileID + "/" + upload.Name,
			Size: size,
		})
	}
	return files, nil
}

func (b *LocalBackend) emit(kind models.EventType, app models.Application) {
	b.logger.Debug("application changed", "type", kind, "id", app.ID, "status", app.Status)
	if b.onChange == nil {
		return
	}
	b.onChange(models.Event{
		Type:          kind,
		ApplicationID: app.ID,
		StudentID:     app.StudentID,
		Status:        app.Status,
		At:            b.now().UTC(),
	})
}

func indexOf(apps []models.Application, id models.ID) int {
	for i := range apps {
		if apps[i].ID == id {
			return i
		}
	}
	return -1
}

// nextID continues the numeric id sequence
func nextID(apps []models.Application) models.ID {
	var highest int64
	for _, app := range apps {
		if n, err := strconv.ParseInt(app.ID.String(), 10, 64); err == nil && n > highest {
			highest = n
		}
	}
	return models.ID(strconv.FormatInt(highest+1, 10))
}

func sortBySubmission(apps []models.Application) {
	sort.SliceStable(apps, func(i, j int) bool {
		ti, erri := apps[i].SubmittedAt().Time()
		tj, errj := apps[j].SubmittedAt().Time()
		if erri != nil || errj != nil {
			return erri == nil
		}
		return ti.After(tj)
	})
}
