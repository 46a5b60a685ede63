package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/phish-catcher/internal/domain"
	"github.com/stoik/phish-catcher/internal/domain/detection"
	"github.com/stoik/phish-catcher/internal/ports"
)

var errBoom = errors.New("boom")

// memStore is an in-memory AlertStore
type memStore struct {
	mu         sync.Mutex
	active     []domain.Alert
	pending    []domain.Segment
	archived   []domain.Segment
	appendErr  error
	rotateErr  error
	archiveErr error
}

func (s *memStore) Append(_ context.Context, alert domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.active = append(s.active, alert)
	return nil
}

func (s *memStore) Rotate(_ context.Context) (*domain.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rotateErr != nil {
		return nil, s.rotateErr
	}
	if len(s.active) == 0 {
		return nil, nil
	}
	segment := domain.Segment{ID: uuid.New(), Name: "segment-" + uuid.NewString(), ClosedAt: time.Now()}
	for _, alert := range s.active {
		segment.Records = append(segment.Records, alert.Domain)
	}
	s.active = nil
	s.pending = append(s.pending, segment)
	return &segment, nil
}

func (s *memStore) Pending(_ context.Context) ([]domain.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Segment(nil), s.pending...), nil
}

func (s *memStore) Archive(_ context.Context, segment domain.Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.archiveErr != nil {
		return s.archiveErr
	}
	for i, p := range s.pending {
		if p.ID == segment.ID {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			break
		}
	}
	s.archived = append(s.archived, segment)
	return nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) domains() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.active))
	for _, alert := range s.active {
		out = append(out, alert.Domain)
	}
	return out
}

// recordingMailer fails while err is set
type recordingMailer struct {
	mu   sync.Mutex
	sent []domain.Segment
	err  error
}

func (m *recordingMailer) SendReport(_ context.Context, segment domain.Segment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, segment)
	return nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []domain.Alert
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, alert domain.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, alert)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

// sliceFeed replays its events then returns
type sliceFeed struct {
	events []domain.CertificateEvent
}

func (f *sliceFeed) Listen(ctx context.Context, handler ports.CertificateHandler) error {
	for _, event := range f.events {
		handler(ctx, event)
	}
	return nil
}

type stubBatchProvider struct {
	mu      sync.Mutex
	domains []string
	err     error
	dates   []time.Time
}

func (p *stubBatchProvider) FetchDailyBatch(_ context.Context, date time.Time) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dates = append(p.dates, date)
	if p.err != nil {
		return nil, p.err
	}
	return p.domains, nil
}

// phishingScorer flags anything containing "paypal"
func phishingScorer() *detection.Scorer {
	ctx := domain.NewScoringContext()
	ctx.Keywords["paypal"] = 100
	return detection.NewScorer(ctx)
}
