package application

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/stoik/phish-catcher/internal/domain"
	"github.com/stoik/phish-catcher/internal/metrics"
	"github.com/stoik/phish-catcher/internal/ports"
)

// Alerter turns scored domains into persisted alerts.
// Shared by every producer; safe for concurrent use.
type Alerter struct {
	store     ports.AlertStore
	publisher ports.AlertPublisher // Optional fan-out, nil when disabled
	metrics   *metrics.Collector
	logger    *slog.Logger
	now       func() time.Time
}

// NewAlerter creates an alerter. publisher, collector and logger may be nil.
func NewAlerter(store ports.AlertStore, publisher ports.AlertPublisher, collector *metrics.Collector, logger *slog.Logger) *Alerter {
	return &Alerter{
		store:     store,
		publisher: publisher,
		metrics:   collector,
		logger:    orDiscard(logger),
		now:       time.Now,
	}
}

// Consider records name as an alert when score reaches domain.AlertThreshold.
// Returns true when the alert was persisted.
//
// Error handling strategy:
//   - A rejected append is logged and counted, the producer keeps going
//   - Publishing happens after the store write and never undoes it
func (a *Alerter) Consider(ctx context.Context, name string, score int, source domain.Source) bool {
	if score < domain.AlertThreshold {
		return false
	}

	alert := domain.Alert{
		Domain:     name,
		Score:      score,
		Source:     source,
		ObservedAt: a.now().UTC(),
	}

	if err := a.store.Append(ctx, alert); err != nil {
		a.logger.Error("failed to append alert", "domain", name, "score", score, "source", source, "error", err)
		a.metrics.IncAlertDropped()
		return false
	}
	a.metrics.IncAlert(source)

	a.logger.Info("suspicious domain",
		"domain", name,
		"score", score,
		"level", domain.RiskLevel(score),
		"source", source,
	)

	if a.publisher != nil {
		if err := a.publisher.Publish(ctx, alert); err != nil {
			a.logger.Warn("failed to publish alert", "domain", name, "error", err)
			a.metrics.IncPublishFailure()
		}
	}
	return true
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logger
}
