package ports

import (
	"context"

	"github.com/stoik/phish-catcher/internal/domain"
)

// ReportMailer ships a rotated segment to the security team
type ReportMailer interface {
	SendReport(ctx context.Context, segment domain.Segment) error
}

// AlertPublisher fans alerts out to external systems (SIEM, message bus)
type AlertPublisher interface {
	Publish(ctx context.Context, alert domain.Alert) error
	Close() error
}
