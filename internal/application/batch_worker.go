package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/stoik/phish-catcher/internal/domain"
	"github.com/stoik/phish-catcher/internal/domain/detection"
	"github.com/stoik/phish-catcher/internal/metrics"
	"github.com/stoik/phish-catcher/internal/ports"
)

const dateLayout = "2006-01-02"

// BatchDomainWorker scores the daily list of newly registered domains, once per day
type BatchDomainWorker struct {
	provider ports.DomainBatchProvider
	scorer   *detection.Scorer
	alerter  *Alerter
	interval time.Duration
	metrics  *metrics.Collector
	logger   *slog.Logger
	now      func() time.Time

	mu            sync.Mutex
	lastProcessed string // Date key of the last successfully scored batch
}

// NewBatchDomainWorker creates a worker waking up every interval
func NewBatchDomainWorker(
	provider ports.DomainBatchProvider,
	scorer *detection.Scorer,
	alerter *Alerter,
	interval time.Duration,
	collector *metrics.Collector,
	logger *slog.Logger,
) *BatchDomainWorker {
	return &BatchDomainWorker{
		provider: provider,
		scorer:   scorer,
		alerter:  alerter,
		interval: interval,
		metrics:  collector,
		logger:   orDiscard(logger),
		now:      time.Now,
	}
}

// Run checks immediately, then on every interval, until ctx is cancelled.
// Fetch failures are logged and retried on the next wake.
func (w *BatchDomainWorker) Run(ctx context.Context) error {
	w.logger.Info("batch domain worker started", "interval", w.interval)
	w.wake(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("batch domain worker stopped")
			return nil
		case <-ticker.C:
			w.wake(ctx)
		}
	}
}

func (w *BatchDomainWorker) wake(ctx context.Context) {
	if err := w.RunOnce(ctx); err != nil {
		w.logger.Warn("daily batch not processed", "error", err)
	}
}

// RunOnce processes yesterday's batch unless it was already processed.
// A failed fetch leaves the date pending and is returned.
func (w *BatchDomainWorker) RunOnce(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	y, m, d := now.AddDate(0, 0, -1).Date()
	date := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	key := date.Format(dateLayout)

	if key == w.lastProcessed {
		w.logger.Debug("daily batch already processed", "date", key)
		return nil
	}

	names, err := w.provider.FetchDailyBatch(ctx, date)
	if err != nil {
		w.metrics.IncBatchFetchFailure()
		return fmt.Errorf("failed to fetch batch for %s: %w", key, err)
	}

	alerts := 0
	for _, name := range names {
		if ctx.Err() != nil {
			// Interrupted batches are redone in full on the next start
			return ctx.Err()
		}
		score := w.scorer.Score(strings.ToLower(name))
		w.metrics.IncScored(domain.SourceNRD)
		if w.alerter.Consider(ctx, name, score, domain.SourceNRD) {
			alerts++
		}
	}

	w.lastProcessed = key
	w.logger.Info("daily batch processed", "date", key, "domains", len(names), "alerts", alerts)
	return nil
}
