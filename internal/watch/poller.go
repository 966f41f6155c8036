// Package watch keeps the pending review queue fresh.
package watch

import (
	"context"
	"log/slog"
	"time"

	"github.com/gradpush/extrapoints/internal/models"
)

// DefaultInterval is used when no positive interval is configured
const DefaultInterval = 30 * time.Second

// Source loads the pending applications; *applications.Store satisfies it
type Source interface {
	FetchPending(ctx context.Context, f models.Filter) ([]models.Application, error)
}

// Change describes the queue after a refresh
type Change struct {
	Pending []models.Application
	Added   []models.ID
	Removed []models.ID
}

// Poller re-fetches the pending queue on a ticker and whenever Notify is
// called
type Poller struct {
	source   Source
	filter   models.Filter
	interval time.Duration
	onChange func(Change)
	logger   *slog.Logger
	notify   chan struct{}

	known map[models.ID]bool
	first bool
}

// NewPoller creates a poller. onChange may be nil.
func NewPoller(source Source, filter models.Filter, interval time.Duration, onChange func(Change), logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		source:   source,
		filter:   filter,
		interval: interval,
		onChange: onChange,
		logger:   logger,
		notify:   make(chan struct{}, 1),
		known:    make(map[models.ID]bool),
		first:    true,
	}
}

// Start runs the poller in a goroutine
func (p *Poller) Start(ctx context.Context) {
	go p.Run(ctx)
}

// Notify requests an immediate refresh. Calls made while one is pending
// are coalesced.
func (p *Poller) Notify() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Run refreshes immediately and then on every tick until ctx is done
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("pending watcher started", "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pending watcher stopped")
			return
		case <-ticker.C:
			p.refresh(ctx)
		case <-p.notify:
			p.refresh(ctx)
		}
	}
}

func (p *Poller) refresh(ctx context.Context) {
	pending, err := p.source.FetchPending(ctx, p.filter)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Error("failed to refresh pending applications", "error", err)
		return
	}

	change := Change{Pending: pending}
	current := make(map[models.ID]bool, len(pending))
	for _, app := range pending {
		current[app.ID] = true
		if !p.known[app.ID] {
			change.Added = append(change.Added, app.ID)
		}
	}
	for id := range p.known {
		if !current[id] {
			change.Removed = append(change.Removed, id)
		}
	}
	p.known = current

	if !p.first && len(change.Added) == 0 && len(change.Removed) == 0 {
		p.logger.Debug("pending queue unchanged", "count", len(pending))
		return
	}
	p.first = false

	p.logger.Info("pending queue changed",
		"count", len(pending),
		"added", len(change.Added),
		"removed", len(change.Removed),
	)
	if p.onChange != nil {
		p.onChange(change)
	}
}
