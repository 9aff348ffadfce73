package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/backstop/internal/infra/storage"
)

// Pruner deletes journal entries older than the retention period.
type Pruner struct {
	retention time.Duration
	journal   storage.JournalRepository
	log       *slog.Logger
	now       func() time.Time
}

// NewPruner creates a new Pruner worker.
func NewPruner(retention time.Duration, journal storage.JournalRepository, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		retention: retention,
		journal:   journal,
		log:       logger,
		now:       time.Now,
	}
}

// Start runs the pruner loop until ctx is done.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// 10% of the retention period, between 1 minute and 1 hour
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune runs a single pass and returns the number of deleted entries.
func (p *Pruner) Prune(ctx context.Context) int {
	threshold := p.now().Add(-p.retention)

	n, err := p.journal.DeleteOlderThan(ctx, threshold)
	if err != nil {
		p.log.Error("Failed to prune failure journal", "error", err)
		return 0
	}
	if n > 0 {
		p.log.Debug("Pruned failure journal", "deleted", n, "before", threshold)
	}
	return n
}
