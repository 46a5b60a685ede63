package ports

import (
	"context"
	"time"

	"github.com/stoik/phish-catcher/internal/domain"
)

// CertificateHandler receives each certificate observed on the feed
type CertificateHandler func(ctx context.Context, event domain.CertificateEvent)

// CertificateFeed delivers de-duplicated certificates from a transparency stream
type CertificateFeed interface {
	// Listen blocks, invoking handler for every certificate until ctx is cancelled.
	// Transport errors are handled inside (reconnect with backoff) and never surface here.
	Listen(ctx context.Context, handler CertificateHandler) error
}

// DomainBatchProvider fetches lists of newly registered domains
type DomainBatchProvider interface {
	// FetchDailyBatch returns the domains registered on the given day
	FetchDailyBatch(ctx context.Context, date time.Time) ([]string, error)
}
