package applications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gradpush/extrapoints/internal/fieldmap"
	"github.com/gradpush/extrapoints/internal/models"
	"github.com/gradpush/extrapoints/pkg/client"
)

// Ranking endpoints differ between backend versions
const (
	RankingPath       = "/students/ranking"
	LegacyRankingPath = "/applications/students-ranking"
)

var statisticsFields = []string{
	"studentId",
	"studentName",
	"totalApplications",
	"approvedApplications",
	"rejectedApplications",
	"pendingApplications",
	"totalScore",
	"averageScore",
	"recentApplications",
	"appliedAt",
}

var rankingFields = []string{
	"studentId",
	"studentName",
	"facultyId",
	"departmentId",
	"majorId",
	"approvedCount",
	"totalScore",
}

// StatisticsMapper translates student statistics records. Entries of
// recentApplications must be translated one by one.
func StatisticsMapper() *fieldmap.Mapper {
	return fieldmap.New(statisticsFields, nil, nil)
}

// RankingMapper translates ranking entries
func RankingMapper() *fieldmap.Mapper {
	return fieldmap.New(rankingFields, nil, nil)
}

// HTTPBackend stores applications on the portal backend
type HTTPBackend struct {
	client      *client.Client
	mapper      *fieldmap.Mapper
	stats       *fieldmap.Mapper
	ranking     *fieldmap.Mapper
	rankingPath string
}

// HTTPOption configures an HTTPBackend
type HTTPOption func(*HTTPBackend)

// WithMapper replaces the application field mapper
func WithMapper(m *fieldmap.Mapper) HTTPOption {
	return func(b *HTTPBackend) {
		b.mapper = m
	}
}

// WithRankingPath selects the ranking endpoint
func WithRankingPath(path string) HTTPOption {
	return func(b *HTTPBackend) {
		if path != "" {
			b.rankingPath = path
		}
	}
}

// NewHTTPBackend creates a backend over the API client
func NewHTTPBackend(c *client.Client, opts ...HTTPOption) *HTTPBackend {
	b := &HTTPBackend{
		client:      c,
		mapper:      fieldmap.Default(),
		stats:       StatisticsMapper(),
		ranking:     RankingMapper(),
		rankingPath: RankingPath,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *HTTPBackend) List(ctx context.Context, f models.Filter) ([]models.Application, error) {
	return b.list(ctx, withQuery("/applications", BuildQuery(f)))
}

func (b *HTTPBackend) Pending(ctx context.Context, f models.Filter) ([]models.Application, error) {
	f.Status = ""
	return b.list(ctx, withQuery("/applications/pending", BuildQuery(f)))
}

func (b *HTTPBackend) list(ctx context.Context, endpoint string) ([]models.Application, error) {
	raw, err := b.client.Request(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	if err := client.DecodeList(raw, &items, "applications"); err != nil {
		return nil, fmt.Errorf("failed to decode applications: %w", err)
	}

	apps := make([]models.Application, 0, len(items))
	for _, item := range items {
		var app models.Application
		if err := b.mapper.DecodeExternal(item, &app); err != nil {
			return nil, fmt.Errorf("failed to decode application: %w", err)
		}
		apps = append(apps, app)
	}
	return apps, nil
}

func (b *HTTPBackend) Get(ctx context.Context, id models.ID) (*models.Application, error) {
	raw, err := b.client.Request(ctx, http.MethodGet, itemPath(id), nil)
	if err != nil {
		if client.StatusCode(err) == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, id, err)
		}
		return nil, err
	}

	var app models.Application
	if err := b.mapper.DecodeExternal(unwrap(raw, "application"), &app); err != nil {
		return nil, fmt.Errorf("failed to decode application %s: %w", id, err)
	}
	return &app, nil
}

func (b *HTTPBackend) Create(ctx context.Context, sub Submission) (models.ID, error) {
	form, err := b.form(sub)
	if err != nil {
		return "", err
	}

	raw, err := b.client.Request(ctx, http.MethodPost, "/applications", form)
	if err != nil {
		return "", err
	}

	var resp struct {
		ID models.ID `json:"id"`
	}
	if err := json.Unmarshal(unwrap(raw, "application"), &resp); err != nil {
		return "", fmt.Errorf("failed to decode create response: %w", err)
	}
	if resp.ID.IsZero() {
		return "", fmt.Errorf("create response has no id")
	}
	return resp.ID, nil
}

func (b *HTTPBackend) Update(ctx context.Context, id models.ID, sub Submission) (*models.Application, error) {
	form, err := b.form(sub)
	if err != nil {
		return nil, err
	}

	raw, err := b.client.Request(ctx, http.MethodPut, itemPath(id), form)
	if err != nil {
		if client.StatusCode(err) == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, id, err)
		}
		return nil, err
	}

	record := unwrap(raw, "application")
	var probe struct {
		ID models.ID `json:"id"`
	}
	if err := json.Unmarshal(record, &probe); err != nil || probe.ID.IsZero() {
		return nil, nil
	}

	var app models.Application
	if err := b.mapper.DecodeExternal(record, &app); err != nil {
		return nil, fmt.Errorf("failed to decode application %s: %w", id, err)
	}
	return &app, nil
}

// reviewRequest carries approval next to status; one backend generation
// reads the boolean instead of the status string.
type reviewRequest struct {
	Status        models.Status `json:"status"`
	Approval      bool          `json:"approval"`
	ReviewComment string        `json:"review_comment"`
	FinalScore    *float64      `json:"final_score"`
	ReviewedBy    string        `json:"reviewed_by"`
}

func (b *HTTPBackend) Review(ctx context.Context, id models.ID, d models.ReviewDecision) error {
	body := reviewRequest{
		Status:        d.Status,
		Approval:      d.Status == models.StatusApproved,
		ReviewComment: d.Comment,
		FinalScore:    d.FinalScore,
		ReviewedBy:    d.ReviewedBy,
	}
	_, err := b.client.Request(ctx, http.MethodPost, itemPath(id)+"/review", body)
	if err != nil && client.StatusCode(err) == http.StatusNotFound {
		return fmt.Errorf("%w: %s: %w", ErrNotFound, id, err)
	}
	return err
}

func (b *HTTPBackend) Delete(ctx context.Context, id models.ID) error {
	_, err := b.client.Request(ctx, http.MethodDelete, itemPath(id), nil)
	if err != nil && client.StatusCode(err) == http.StatusNotFound {
		return fmt.Errorf("%w: %s: %w", ErrNotFound, id, err)
	}
	return err
}

func (b *HTTPBackend) Statistics(ctx context.Context, studentID string) (*models.StudentStatistics, error) {
	endpoint := withQuery("/applications/statistics", url.Values{"studentId": {studentID}})
	raw, err := b.client.Request(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	record, err := decodeRecord(unwrap(raw, "statistics"))
	if err != nil {
		return nil, fmt.Errorf("failed to decode statistics: %w", err)
	}
	internal, _ := b.stats.ToInternal(record).(map[string]interface{})
	if recent, ok := internal["recentApplications"].([]interface{}); ok {
		for i, entry := range recent {
			recent[i] = b.stats.ToInternal(entry)
		}
	}

	var stats models.StudentStatistics
	if err := fieldmap.Decode(internal, &stats); err != nil {
		return nil, fmt.Errorf("failed to decode statistics: %w", err)
	}
	if stats.StudentID == "" {
		stats.StudentID = studentID
	}
	return &stats, nil
}

func (b *HTTPBackend) Ranking(ctx context.Context, f models.RankingFilter) ([]models.RankingEntry, error) {
	raw, err := b.client.Request(ctx, http.MethodGet, withQuery(b.rankingPath, BuildRankingQuery(f)), nil)
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	if err := client.DecodeList(raw, &items, "ranking", "students"); err != nil {
		return nil, fmt.Errorf("failed to decode ranking: %w", err)
	}

	entries := make([]models.RankingEntry, 0, len(items))
	for i, item := range items {
		var entry models.RankingEntry
		if err := b.ranking.DecodeExternal(item, &entry); err != nil {
			return nil, fmt.Errorf("failed to decode ranking entry: %w", err)
		}
		if entry.Rank == 0 {
			entry.Rank = i + 1
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// form builds the multipart body: the mapped record as JSON under
// "application" and each new upload under "files"
func (b *HTTPBackend) form(sub Submission) (*client.Multipart, error) {
	record, err := b.mapper.EncodeExternal(sub.Application)
	if err != nil {
		return nil, err
	}

	form := client.NewMultipart()
	if err := form.AddJSON("application", record); err != nil {
		return nil, err
	}
	for _, upload := range sub.Uploads {
		form.AddFile("files", upload.Name, upload.ContentType, upload.Content)
	}
	return form, nil
}

func itemPath(id models.ID) string {
	return "/applications/" + url.PathEscape(id.String())
}

// unwrap returns the object under key or "data" when the response wraps it
func unwrap(raw json.RawMessage, key string) json.RawMessage {
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return raw
	}
	for _, k := range []string{key, "data"} {
		if inner, ok := wrapper[k]; ok {
			inner = bytes.TrimSpace(inner)
			if len(inner) > 0 && inner[0] == '{' {
				return inner
			}
		}
	}
	return raw
}

func decodeRecord(raw json.RawMessage) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var record map[string]interface{}
	if err := dec.Decode(&record); err != nil {
		return nil, err
	}
	return record, nil
}
