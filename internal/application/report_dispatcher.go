package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stoik/phish-catcher/internal/domain"
	"github.com/stoik/phish-catcher/internal/metrics"
	"github.com/stoik/phish-catcher/internal/ports"
)

// ReportDispatcher periodically rotates the alert store and mails the closed segment
type ReportDispatcher struct {
	store    ports.AlertStore
	mailer   ports.ReportMailer // nil keeps rotated segments pending
	interval time.Duration
	retry    bool
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// NewReportDispatcher creates a dispatcher. With retry set, segments left
// pending by an earlier failure are re-sent before each rotation.
func NewReportDispatcher(
	store ports.AlertStore,
	mailer ports.ReportMailer,
	interval time.Duration,
	retry bool,
	collector *metrics.Collector,
	logger *slog.Logger,
) *ReportDispatcher {
	return &ReportDispatcher{
		store:    store,
		mailer:   mailer,
		interval: interval,
		retry:    retry,
		metrics:  collector,
		logger:   orDiscard(logger),
	}
}

// Run dispatches every interval until ctx is cancelled
func (d *ReportDispatcher) Run(ctx context.Context) error {
	if d.mailer == nil {
		d.logger.Warn("mail is not configured, rotated reports stay pending")
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := d.DispatchOnce(ctx); err != nil {
				d.logger.Error("report dispatch failed", "error", err)
			}
		}
	}
}

// DispatchOnce runs one report cycle.
// Mail failures are logged and counted; only store failures are returned.
func (d *ReportDispatcher) DispatchOnce(ctx context.Context) error {
	var errs []error

	if d.retry && d.mailer != nil {
		pending, err := d.store.Pending(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to list pending segments: %w", err))
		}
		for _, segment := range pending {
			if err := d.deliver(ctx, segment); err != nil {
				errs = append(errs, err)
			}
		}
	}

	segment, err := d.store.Rotate(ctx)
	if err != nil {
		return errors.Join(append(errs, fmt.Errorf("failed to rotate alert store: %w", err))...)
	}
	if segment == nil {
		d.logger.Debug("no suspicious domains since last report")
		return errors.Join(errs...)
	}

	d.logger.Info("alert segment rotated", "segment", segment.Name, "records", len(segment.Records))
	if d.mailer == nil {
		return errors.Join(errs...)
	}
	if err := d.deliver(ctx, *segment); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// deliver mails and archives one segment. The segment stays pending on failure.
func (d *ReportDispatcher) deliver(ctx context.Context, segment domain.Segment) error {
	if err := d.mailer.SendReport(ctx, segment); err != nil {
		d.logger.Warn("failed to send report", "segment", segment.Name, "error", err)
		d.metrics.IncReportFailed()
		return nil
	}

	if err := d.store.Archive(ctx, segment); err != nil {
		return fmt.Errorf("failed to archive segment %s: %w", segment.Name, err)
	}
	d.metrics.IncReportSent()
	d.logger.Info("report sent", "segment", segment.Name, "records", len(segment.Records))
	return nil
}
