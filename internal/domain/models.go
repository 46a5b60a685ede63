package domain

import (
	"time"

	"github.com/google/uuid"
)

// AlertThreshold is the minimum score a domain needs to be persisted as an alert
const AlertThreshold = 100

// Source identifies which feed a domain was observed on
type Source string

const (
	SourceCertstream Source = "certstream"
	SourceNRD        Source = "nrd"
)

// ScoringContext holds the suspicious keyword weights and TLD suffixes used by the scorer.
// Built once at startup and shared read-only by every worker.
type ScoringContext struct {
	Keywords map[string]int      `json:"keywords"`
	TLDs     map[string]struct{} `json:"tlds"`
}

// NewScoringContext creates an empty scoring context
func NewScoringContext() ScoringContext {
	return ScoringContext{
		Keywords: make(map[string]int),
		TLDs:     make(map[string]struct{}),
	}
}

// CertificateEvent is one de-duplicated certificate observed on the transparency feed
type CertificateEvent struct {
	Domains    []string `json:"domains"`
	IssuerName string   `json:"issuer_name"`
}

// Signal is a single additive term of a domain score
type Signal struct {
	Type     string `json:"type"`   // e.g., "SUSPICIOUS_TLD"
	Points   int    `json:"points"` // Contribution to the total score
	Evidence string `json:"evidence"`
}

// ScoreResult is the outcome of scoring one domain.
// Score is always the sum of the Signals' points.
type ScoreResult struct {
	Domain  string   `json:"domain"`
	Score   int      `json:"score"`
	Level   string   `json:"level"`
	Signals []Signal `json:"signals,omitempty"`
}

// Alert is a domain that scored at or above AlertThreshold
type Alert struct {
	Domain     string    `json:"domain"` // Original case, as observed on the feed
	Score      int       `json:"score"`
	Source     Source    `json:"source"`
	ObservedAt time.Time `json:"observed_at"`
}

// Segment is a closed, immutable batch of alert records produced by one rotation
type Segment struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	ClosedAt  time.Time `json:"closed_at"`
	Records   []string  `json:"records"`
}

// Filename returns the attachment name of the segment's report
func (s Segment) Filename() string {
	return s.Name + ".log"
}

// RiskLevel converts a domain score to a categorical level
func RiskLevel(score int) string {
	switch {
	case score >= 100:
		return "very suspicious"
	case score >= 90:
		return "suspicious"
	case score >= 80:
		return "likely"
	case score >= 65:
		return "potential"
	default:
		return "none"
	}
}
