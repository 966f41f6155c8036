package watch

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradpush/extrapoints/internal/models"
)

type scriptedSource struct {
	mu      sync.Mutex
	batches [][]models.ID
	calls   int
	filters []models.Filter
}

func (s *scriptedSource) FetchPending(ctx context.Context, f models.Filter) ([]models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = append(s.filters, f)
	i := s.calls
	s.calls++
	if i >= len(s.batches) {
		i = len(s.batches) - 1
	}
	if s.batches[i] == nil {
		return nil, errors.New("unavailable")
	}
	var apps []models.Application
	for _, id := range s.batches[i] {
		apps = append(apps, models.Application{ID: id, Status: models.StatusPending})
	}
	return apps, nil
}

func (s *scriptedSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func collect() (func(Change), func() []Change) {
	var mu sync.Mutex
	var changes []Change
	return func(c Change) {
			mu.Lock()
			changes = append(changes, c)
			mu.Unlock()
		}, func() []Change {
			mu.Lock()
			defer mu.Unlock()
			return append([]Change(nil), changes...)
		}
}

func sorted(ids []models.ID) []models.ID {
	out := append([]models.ID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestRefreshReportsDifferences(t *testing.T) {
	source := &scriptedSource{batches: [][]models.ID{
		{"1", "2"},
		{"1", "2"},
		nil,
		{"2", "3"},
	}}
	onChange, changes := collect()
	p := NewPoller(source, models.Filter{Department: "cs"}, time.Hour, onChange, nil)
	ctx := context.Background()

	p.refresh(ctx)
	p.refresh(ctx)
	p.refresh(ctx)
	p.refresh(ctx)

	got := changes()
	require.Len(t, got, 2)
	assert.Equal(t, []models.ID{"1", "2"}, sorted(got[0].Added))
	assert.Empty(t, got[0].Removed)
	assert.Equal(t, []models.ID{"3"}, got[1].Added)
	assert.Equal(t, []models.ID{"1"}, got[1].Removed)
	assert.Len(t, got[1].Pending, 2)
	assert.Equal(t, "cs", source.filters[0].Department)
}

func TestFirstRefreshReportsEmptyQueue(t *testing.T) {
	source := &scriptedSource{batches: [][]models.ID{{}}}
	onChange, changes := collect()
	p := NewPoller(source, models.Filter{}, time.Hour, onChange, nil)

	p.refresh(context.Background())

	require.Len(t, changes(), 1)
	assert.Empty(t, changes()[0].Pending)
}

func TestRunStopsOnCancel(t *testing.T) {
	source := &scriptedSource{batches: [][]models.ID{{"1"}}}
	p := NewPoller(source, models.Filter{}, 10*time.Millisecond, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return source.count() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestNotifyTriggersRefresh(t *testing.T) {
	source := &scriptedSource{batches: [][]models.ID{{"1"}, {"1", "2"}}}
	onChange, changes := collect()
	p := NewPoller(source, models.Filter{}, time.Hour, onChange, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.Start(ctx)
	assert.Eventually(t, func() bool { return len(changes()) == 1 }, time.Second, 5*time.Millisecond)

	p.Notify()
	p.Notify()
	assert.Eventually(t, func() bool { return len(changes()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []models.ID{"2"}, changes()[1].Added)
}

func TestDefaultInterval(t *testing.T) {
	p := NewPoller(&scriptedSource{}, models.Filter{}, 0, nil, nil)
	assert.Equal(t, DefaultInterval, p.interval)
}
