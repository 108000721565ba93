package f4m

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"hds2flv/internal/logger"
)

// Client is responsible for all communication with the HDS origin:
// manifests, external bootstrap boxes and, through HttpClient, the
// fragment downloads.
type Client struct {
	httpClient *http.Client
	logger     logger.Logger
	userAgent  string
}

// NewClient creates a new origin client. The user agent is sent on
// every request when non-empty.
func NewClient(log logger.Logger, userAgent string) *Client {
	transport := &http.Transport{
		ResponseHeaderTimeout: 5 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
		},
		logger:    log,
		userAgent: userAgent,
	}
}

// HttpClient returns the underlying http.Client instance.
func (c *Client) HttpClient() *http.Client {
	return c.httpClient
}

// Fetch loads a manifest from an http(s) URL or a local file path. The
// returned location is the URL after redirects (or the path itself) and
// is what relative fragment URLs resolve against.
func (c *Client) Fetch(ctx context.Context, src string) (*Manifest, string, error) {
	if isHTTP(src) {
		return c.fetchHTTP(ctx, src)
	}

	c.logger.Debugf("Reading manifest file: %s", src)
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read manifest file: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, "", fmt.Errorf("manifest %s: %w", src, err)
	}
	return m, src, nil
}

func (c *Client) fetchHTTP(ctx context.Context, rawURL string) (*Manifest, string, error) {
	c.logger.Debugf("Fetching manifest from URL: %s", rawURL)

	data, finalURL, err := c.get(ctx, rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch manifest: %w", err)
	}

	m, err := Parse(data)
	if err != nil {
		c.logger.Errorf("Failed to unmarshal manifest XML from %s: %v", finalURL, err)
		return nil, "", fmt.Errorf("manifest %s: %w", finalURL, err)
	}

	c.logger.Debugf("Successfully fetched and parsed manifest %q from %s", m.ID, finalURL)
	return m, finalURL, nil
}

// FetchBootstrap downloads an externally referenced bootstrap box and
// returns its raw bytes.
func (c *Client) FetchBootstrap(ctx context.Context, rawURL string) ([]byte, error) {
	c.logger.Debugf("Fetching bootstrap from URL: %s", rawURL)

	data, _, err := c.get(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bootstrap: %w", err)
	}
	return data, nil
}

// get performs one GET, following redirects, and returns the body
// together with the final URL.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request for %s: %w", rawURL, err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("received status code %d from %s", resp.StatusCode, finalURL)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response body from %s: %w", finalURL, err)
	}
	return data, finalURL, nil
}

func isHTTP(src string) bool {
	lower := strings.ToLower(src)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
