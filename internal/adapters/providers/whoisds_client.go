package providers

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Archives are a few MB in practice
const maxArchiveSize = 256 << 20

// whoisds rejects the default Go user agent
const browserUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

var (
	// ErrEmptyArchive is returned when the downloaded archive holds no file
	ErrEmptyArchive = errors.New("newly registered domains archive is empty")

	errArchiveTooLarge = fmt.Errorf("archive exceeds %d bytes", maxArchiveSize)
)

// WhoisDSClient implements ports.DomainBatchProvider for the whoisds.com daily NRD feed
type WhoisDSClient struct {
	baseURL string
	client  *http.Client
}

// NewWhoisDSClient creates a client for the feed rooted at baseURL
// (ie. https://whoisds.com//whois-database/newly-registered-domains)
func NewWhoisDSClient(baseURL string) *WhoisDSClient {
	return &WhoisDSClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

// ArchiveURL returns the download URL of the batch for date.
// The feed keys archives by the base64 of "yyyy-mm-dd.zip".
func (c *WhoisDSClient) ArchiveURL(date time.Time) string {
	key := base64.StdEncoding.EncodeToString([]byte(date.Format("2006-01-02") + ".zip"))
	return c.baseURL + "/" + key + "/nrd"
}

// FetchDailyBatch downloads the archive for date and returns its domains
func (c *WhoisDSClient) FetchDailyBatch(ctx context.Context, date time.Time) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ArchiveURL(date), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download batch: HTTP %d", resp.StatusCode)
	}

	// Read one extra byte to tell "at the limit" from "over it"
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArchiveSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read batch: %w", err)
	}
	if len(data) > maxArchiveSize {
		return nil, errArchiveTooLarge
	}

	return extractDomains(data)
}

// extractDomains returns the trimmed, non-blank lines of the first file in the archive
func extractDomains(data []byte) ([]string, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	if len(archive.File) == 0 {
		return nil, ErrEmptyArchive
	}

	f, err := archive.File[0].Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", archive.File[0].Name, err)
	}
	defer f.Close()

	domains := make([]string, 0)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			domains = append(domains, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", archive.File[0].Name, err)
	}
	return domains, nil
}
