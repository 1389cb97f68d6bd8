// CLAUDE:SUMMARY Rate-limited HTTP client for the SGX derivatives portal: link template, day-label probe, download open.
// Package portal talks to the SGX derivatives-historical portal.
//
// The portal addresses each day's files by an opaque day identifier:
//
//	https://links.sgx.com/1.0.0/derivatives-historical/<id>/<file>
//
// The only way to learn which calendar day an identifier holds is to ask
// for one of its files and read the filename the server puts in the
// Content-Disposition header. A response without that header means the
// identifier carries no data.
package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/hazyhaar/sgxhist/sgx/internal/calendar"
)

// DefaultLinkPattern is the portal's link template: identifier, then file name.
const DefaultLinkPattern = "https://links.sgx.com/1.0.0/derivatives-historical/%d/%s"

// ErrNoFile is returned by Open when the portal answers without a filename,
// meaning nothing is published for that identifier and file.
var ErrNoFile = errors.New("portal: no file published for this identifier")

// Config configures the portal client.
type Config struct {
	// LinkPattern is a fmt template taking (identifier int, fileName string).
	LinkPattern string
	// KeyFile is the file requested when probing an identifier for its day.
	KeyFile string
	// UserAgent sent with requests.
	UserAgent string
	// Timeout bounds a whole request including the body. Default: 10m.
	Timeout time.Duration
	// RateInterval is the minimum spacing between two requests.
	// Zero disables pacing.
	RateInterval time.Duration
}

func (c *Config) defaults() {
	if c.LinkPattern == "" {
		c.LinkPattern = DefaultLinkPattern
	}
	if c.KeyFile == "" {
		c.KeyFile = "TC.txt"
	}
	if c.UserAgent == "" {
		c.UserAgent = "sgxhist/1.0"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Minute
	}
}

// Client issues sequential, paced requests against the portal.
type Client struct {
	http    *http.Client
	config  Config
	limiter *rate.Limiter
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its Timeout is left
// as given.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a Client.
func New(cfg Config, opts ...Option) *Client {
	cfg.defaults()
	limit := rate.Inf
	if cfg.RateInterval > 0 {
		limit = rate.Every(cfg.RateInterval)
	}
	c := &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		config:  cfg,
		limiter: rate.NewLimiter(limit, 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Link expands the link template for an identifier and file name.
func (c *Client) Link(id int, fileName string) string {
	return fmt.Sprintf(c.config.LinkPattern, id, fileName)
}

// Probe asks the portal which day an identifier holds by requesting the
// key file. It returns the 8 label digits (YYYYMMDD) found in the reported
// filename, or "" when the identifier carries no data.
func (c *Client) Probe(ctx context.Context, id int) (string, error) {
	resp, err := c.get(ctx, c.Link(id, c.config.KeyFile))
	if err != nil {
		return "", err
	}
	defer drain(resp.Body)

	name := DispositionFilename(resp.Header.Get("Content-Disposition"))
	if name == "" {
		return "", nil
	}
	return calendar.Digits(name), nil
}

// HasData reports whether an identifier answers with a filename. It is the
// discovery probe used to rebuild the exclusion list.
func (c *Client) HasData(ctx context.Context, id int) (bool, error) {
	resp, err := c.get(ctx, c.Link(id, c.config.KeyFile))
	if err != nil {
		return false, err
	}
	defer drain(resp.Body)
	return DispositionFilename(resp.Header.Get("Content-Disposition")) != "", nil
}

// Download is an open response for a published file. The caller must
// close Body.
type Download struct {
	// Filename is the server-reported file name, already reduced to a base name.
	Filename string
	// ContentLength is the declared body size, or -1 when unknown.
	ContentLength int64
	Body          io.ReadCloser
}

// Open requests a file. It returns ErrNoFile when the portal reports no
// filename, *HTTPError on a non-200 status and *NetworkError when the
// request could not be completed.
func (c *Client) Open(ctx context.Context, link string) (*Download, error) {
	resp, err := c.get(ctx, link)
	if err != nil {
		return nil, err
	}
	name := DispositionFilename(resp.Header.Get("Content-Disposition"))
	if name == "" {
		drain(resp.Body)
		return nil, ErrNoFile
	}
	return &Download{
		Filename:      name,
		ContentLength: resp.ContentLength,
		Body:          resp.Body,
	}, nil
}

func (c *Client) get(ctx context.Context, link string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &NetworkError{URL: link, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("portal: new request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: link, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &HTTPError{
			URL:        link,
			Status:     resp.Status,
			StatusCode: resp.StatusCode,
			Body:       body,
		}
	}
	return resp, nil
}

// drain discards what is left of a body so the connection can be reused.
// Probe bodies are whole files; cap what is read.
func drain(body io.ReadCloser) {
	io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	body.Close()
}
