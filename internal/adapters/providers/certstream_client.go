package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/patrickmn/go-cache"
	"github.com/stoik/phish-catcher/internal/domain"
	"github.com/stoik/phish-catcher/internal/ports"
)

const (
	// Certstream drops clients that stay silent for too long
	pingInterval = 30 * time.Second
	readTimeout  = 3 * pingInterval
	writeTimeout = 5 * time.Second

	dedupWindow      = 10 * time.Minute
	maxReconnectWait = 10 * time.Second
)

// Certstream also sends "heartbeat" frames, which are skipped
const messageCertificate = "certificate_update"

// CertstreamClient implements ports.CertificateFeed over the certstream websocket
type CertstreamClient struct {
	url    string
	dialer *websocket.Dialer
	seen   *cache.Cache
	logger *slog.Logger

	pingInterval   time.Duration
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewCertstreamClient creates a client for the given websocket URL (ie. wss://certstream.calidog.io)
func NewCertstreamClient(url string, logger *slog.Logger) *CertstreamClient {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &CertstreamClient{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 15 * time.Second,
			Proxy:            websocket.DefaultDialer.Proxy,
		},
		seen:           cache.New(dedupWindow, 2*dedupWindow),
		logger:         logger,
		pingInterval:   pingInterval,
		initialBackoff: 500 * time.Millisecond,
		maxBackoff:     maxReconnectWait,
	}
}

// certstreamEnvelope is the part shared by every certstream frame
type certstreamEnvelope struct {
	MessageType string          `json:"message_type"`
	Data        json.RawMessage `json:"data"`
}

// certificateUpdate holds the fields we read from a certificate_update payload
type certificateUpdate struct {
	LeafCert struct {
		AllDomains  []string `json:"all_domains"`
		Fingerprint string   `json:"fingerprint"`
		Issuer      struct {
			Aggregated string `json:"aggregated"`
		} `json:"issuer"`
	} `json:"leaf_cert"`
	Chain []struct {
		Subject struct {
			Aggregated string `json:"aggregated"`
		} `json:"subject"`
	} `json:"chain"`
}

// Listen connects and forwards certificates until ctx is cancelled.
// Connection errors are logged and followed by a reconnect with exponential backoff.
func (c *CertstreamClient) Listen(ctx context.Context, handler ports.CertificateHandler) error {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = c.initialBackoff
	retry.MaxInterval = c.maxBackoff
	retry.MaxElapsedTime = 0 // Never give up
	retry.Reset()

	for {
		connected, err := c.session(ctx, handler)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			retry.Reset()
		}

		wait := retry.NextBackOff()
		c.logger.Warn("certstream connection lost", "error", err, "retry_in", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// session runs one websocket connection.
// The boolean reports whether the dial succeeded, so the caller can reset its backoff.
func (c *CertstreamClient) session(ctx context.Context, handler ports.CertificateHandler) (bool, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to dial certstream: %w", err)
	}
	defer conn.Close()
	c.logger.Info("connected to certstream", "url", c.url)

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go c.keepAlive(ctx, conn, done)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("failed to read certstream message: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		event, ok, err := c.decode(raw)
		if err != nil {
			c.logger.Debug("skipping malformed certstream message", "error", err)
			continue
		}
		if ok {
			handler(ctx, event)
		}
	}
}

// keepAlive pings the server and unblocks the reader when ctx is cancelled
func (c *CertstreamClient) keepAlive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutting down")
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
			conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				c.logger.Warn("certstream ping failed", "error", err)
				conn.Close()
				return
			}
		}
	}
}

// decode parses one frame. ok is false for heartbeats, other message types and
// certificates already seen inside the dedup window.
func (c *CertstreamClient) decode(raw []byte) (domain.CertificateEvent, bool, error) {
	var envelope certstreamEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return domain.CertificateEvent{}, false, err
	}

	// Other message types carry payloads of their own shape
	if envelope.MessageType != messageCertificate {
		return domain.CertificateEvent{}, false, nil
	}

	var update certificateUpdate
	if err := json.Unmarshal(envelope.Data, &update); err != nil {
		return domain.CertificateEvent{}, false, fmt.Errorf("invalid %s payload: %w", messageCertificate, err)
	}

	leaf := update.LeafCert
	if len(leaf.AllDomains) == 0 {
		return domain.CertificateEvent{}, false, nil
	}

	key := leaf.Fingerprint
	if key == "" {
		sorted := append([]string(nil), leaf.AllDomains...)
		sort.Strings(sorted)
		key = strings.Join(sorted, ",")
	}
	// Add fails when the key is already cached, which makes check-and-set atomic
	if err := c.seen.Add(key, struct{}{}, cache.DefaultExpiration); err != nil {
		return domain.CertificateEvent{}, false, nil
	}

	issuer := leaf.Issuer.Aggregated
	if len(update.Chain) > 0 && update.Chain[0].Subject.Aggregated != "" {
		issuer = update.Chain[0].Subject.Aggregated
	}

	return domain.CertificateEvent{
		Domains:    leaf.AllDomains,
		IssuerName: issuer,
	}, true, nil
}
