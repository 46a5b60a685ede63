package ports

import (
	"context"

	"github.com/stoik/phish-catcher/internal/domain"
)

// AlertStore is the append-only alert log shared by every producer.
//
// Implementations must make Append and Rotate mutually exclusive: once Rotate
// returns a segment no later Append may land in it, and the fresh active
// segment must accept appends before Rotate returns.
type AlertStore interface {
	// Append durably adds an alert to the active segment. Safe for concurrent use.
	Append(ctx context.Context, alert domain.Alert) error

	// Rotate closes the active segment and opens a fresh one.
	// Returns nil without changing anything when the active segment is empty.
	Rotate(ctx context.Context) (*domain.Segment, error)

	// Pending lists closed segments that were never archived, oldest first
	Pending(ctx context.Context) ([]domain.Segment, error)

	// Archive moves a dispatched segment out of the pending area
	Archive(ctx context.Context, segment domain.Segment) error

	// Lifecycle
	Close() error
}
