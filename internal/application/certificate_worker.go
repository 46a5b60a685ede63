package application

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/stoik/phish-catcher/internal/domain"
	"github.com/stoik/phish-catcher/internal/domain/detection"
	"github.com/stoik/phish-catcher/internal/metrics"
	"github.com/stoik/phish-catcher/internal/ports"
)

// freeCAPoints is added when the certificate was issued by a free CA
const freeCAPoints = 10

// CertificateFeedWorker scores every domain of every certificate seen on the feed
type CertificateFeedWorker struct {
	scorer       *detection.Scorer
	alerter      *Alerter
	freeCAMarker string
	workers      int
	metrics      *metrics.Collector
	logger       *slog.Logger
}

type scoreJob struct {
	domain string
	issuer string
}

// NewCertificateFeedWorker creates a worker scoring on a pool of the given size
func NewCertificateFeedWorker(
	scorer *detection.Scorer,
	alerter *Alerter,
	freeCAMarker string,
	workers int,
	collector *metrics.Collector,
	logger *slog.Logger,
) *CertificateFeedWorker {
	if workers < 1 {
		workers = 1
	}
	return &CertificateFeedWorker{
		scorer:       scorer,
		alerter:      alerter,
		freeCAMarker: freeCAMarker,
		workers:      workers,
		metrics:      collector,
		logger:       orDiscard(logger),
	}
}

// Run listens on feed until ctx is cancelled or the feed gives up.
// Jobs already queued when it stops are drained before Run returns.
func (w *CertificateFeedWorker) Run(ctx context.Context, feed ports.CertificateFeed) error {
	jobs := make(chan scoreJob, w.workers*16)

	// In-flight appends must complete even once shutdown has started
	drainCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				w.score(drainCtx, job)
			}
		}()
	}

	w.logger.Info("certificate feed worker started", "workers", w.workers)
	err := feed.Listen(ctx, func(ctx context.Context, event domain.CertificateEvent) {
		w.metrics.IncCertificate()
		for _, name := range event.Domains {
			select {
			case jobs <- scoreJob{domain: name, issuer: event.IssuerName}:
			case <-ctx.Done():
				return
			}
		}
	})

	close(jobs)
	wg.Wait()
	w.logger.Info("certificate feed worker stopped")
	return err
}

// CertificateScore is the score of name when found on a certificate from issuer
func (w *CertificateFeedWorker) CertificateScore(name, issuer string) int {
	score := w.scorer.Score(strings.ToLower(name))
	if w.freeCAMarker != "" && strings.Contains(issuer, w.freeCAMarker) {
		score += freeCAPoints
	}
	return score
}

func (w *CertificateFeedWorker) score(ctx context.Context, job scoreJob) {
	score := w.CertificateScore(job.domain, job.issuer)
	w.metrics.IncScored(domain.SourceCertstream)
	w.alerter.Consider(ctx, job.domain, score, domain.SourceCertstream)
}
