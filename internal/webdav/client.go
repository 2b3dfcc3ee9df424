// Package webdav is a minimal authenticated WebDAV client for the sync
// engine: PROPFIND, MKCOL, PUT, GET, DELETE and a connection probe, with
// retry/backoff on transient failures. Callers get raw bytes back and do
// their own decoding.
package webdav

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"path"
	"strings"
	"time"
)

// Retry policy: base 1s, ×2 per attempt, 3 attempts total.
const (
	maxAttempts   = 3
	baseBackoff   = 1 * time.Second
	backoffFactor = 2.0
	userAgent     = "EcoPaste-CloudSync/1.0"
)

// Timeout floors for known heavy paths. The configured timeout applies
// everywhere else; these only ever raise it.
const (
	indexTimeout   = 90 * time.Second
	blobTimeout    = 60 * time.Second
	archiveTimeout = 120 * time.Second
)

// propfindBody asks only for the resource type; existence is all we need.
const propfindBody = `<?xml version="1.0" encoding="utf-8"?>
<D:propfind xmlns:D="DAV:">
    <D:prop>
        <D:resourcetype/>
    </D:prop>
</D:propfind>`

// Config is the WebDAV target.
type Config struct {
	URL      string
	Username string
	Password string
	// Path is the remote directory all operations are rooted under.
	Path    string
	Timeout time.Duration
}

// ConnectionResult is the outcome of TestConnection.
type ConnectionResult struct {
	Connected bool
	Status    int
	Latency   time.Duration
	Message   string
}

// Client issues authenticated WebDAV requests. Safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger

	// sleepFunc waits between retries; tests override it to avoid delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Client for the given target. Per-request timeouts are
// applied via context, so the underlying http.Client carries none.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logger,
		sleepFunc:  timeSleep,
	}
}

// fullURL joins the server URL, the sync root and rel. An empty rel
// addresses the sync root itself.
func (c *Client) fullURL(rel string) string {
	base := strings.TrimSuffix(c.cfg.URL, "/")

	root := strings.Trim(c.cfg.Path, "/")
	rel = strings.Trim(rel, "/")

	switch {
	case root == "" && rel == "":
		return base + "/"
	case root == "":
		return base + "/" + rel
	case rel == "":
		return base + "/" + root + "/"
	default:
		return base + "/" + root + "/" + rel
	}
}

// timeoutFor raises the configured timeout for known heavy paths.
func (c *Client) timeoutFor(rel string) time.Duration {
	timeout := c.cfg.Timeout

	switch {
	case strings.HasSuffix(rel, "sync-data.json"):
		if timeout < indexTimeout {
			timeout = indexTimeout
		}
	case strings.HasSuffix(rel, ".zip") || strings.HasSuffix(rel, ".tar.gz"):
		if timeout < archiveTimeout {
			timeout = archiveTimeout
		}
	case strings.HasPrefix(strings.TrimPrefix(rel, "/"), "files/"):
		if timeout < blobTimeout {
			timeout = blobTimeout
		}
	}

	return timeout
}

// response is the decoded outcome of one request.
type response struct {
	status  int
	body    []byte
	latency time.Duration
	header  http.Header
}

// do executes one verb against rel with the retry loop. body is resent in
// full on every attempt.
func (c *Client) do(ctx context.Context, op, method, rel string, body []byte, headers map[string]string) (*response, error) {
	var attempt int

	for {
		resp, err := c.doOnce(ctx, method, rel, body, headers)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("webdav: %s canceled: %w", op, ctx.Err())
			}

			// Network-level failures (timeouts, refused connections, TLS
			// handshake) are retryable until the budget runs out.
			if attempt < maxAttempts-1 {
				backoff := calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("op", op),
					slog.String("path", rel),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("webdav: %s canceled: %w", op, sleepErr)
				}

				attempt++

				continue
			}

			return nil, &DAVError{Op: op, Path: rel, Retryable: true, Err: fmt.Errorf("%w: %v", ErrRetryExhausted, err)}
		}

		if retryableStatus(resp.status) && attempt < maxAttempts-1 {
			backoff := calcBackoff(attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("op", op),
				slog.String("path", rel),
				slog.Int("status", resp.status),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
				return nil, fmt.Errorf("webdav: %s canceled: %w", op, sleepErr)
			}

			attempt++

			continue
		}

		return resp, nil
	}
}

// doOnce executes a single HTTP request with the per-path timeout applied.
func (c *Client) doOnce(ctx context.Context, method, rel string, body []byte, headers map[string]string) (*response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeoutFor(rel))
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, c.fullURL(rel), reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	req.Header.Set("User-Agent", userAgent)

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	latency := time.Since(start)

	c.logger.Debug("request finished",
		slog.String("method", method),
		slog.String("path", rel),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", latency),
	)

	return &response{status: resp.StatusCode, body: data, latency: latency, header: resp.Header}, nil
}

// davError builds the structured failure for a terminal status.
func davError(op, rel string, resp *response) *DAVError {
	return &DAVError{
		Op:        op,
		Path:      rel,
		Status:    resp.status,
		Latency:   resp.latency,
		Retryable: retryableStatus(resp.status),
		Err:       classifyStatus(resp.status),
	}
}

// Exists probes rel with a depth-0 PROPFIND. 200/207 means present, 404
// absent; anything else is an error.
func (c *Client) Exists(ctx context.Context, rel string) (bool, error) {
	resp, err := c.do(ctx, "exists", "PROPFIND", rel, []byte(propfindBody), map[string]string{
		"Content-Type": "application/xml; charset=utf-8",
		"Depth":        "0",
	})
	if err != nil {
		return false, err
	}

	switch {
	case resp.status == http.StatusOK || resp.status == http.StatusMultiStatus:
		return true, nil
	case resp.status == http.StatusNotFound:
		return false, nil
	default:
		return false, davError("exists", rel, resp)
	}
}

// EnsureDir creates the directory rel (and its parents) under the sync
// root. Each missing segment gets a MKCOL; a 405 means someone else created
// it first, which the follow-up PROPFIND confirms.
func (c *Client) EnsureDir(ctx context.Context, rel string) error {
	rel = strings.Trim(rel, "/")

	var prefix string
	for _, segment := range strings.Split(rel, "/") {
		if segment == "" {
			continue
		}

		prefix = path.Join(prefix, segment)

		if err := c.ensureOneDir(ctx, prefix); err != nil {
			return err
		}
	}

	return nil
}

// ensureOneDir creates a single directory level.
func (c *Client) ensureOneDir(ctx context.Context, rel string) error {
	exists, err := c.Exists(ctx, rel)
	if err != nil {
		return err
	}

	if exists {
		return nil
	}

	resp, err := c.do(ctx, "mkcol", "MKCOL", rel, nil, nil)
	if err != nil {
		return err
	}

	switch resp.status {
	case http.StatusCreated, http.StatusOK:
		return nil
	case http.StatusMethodNotAllowed:
		// Raced with another client; confirm the directory is really there.
		exists, err := c.Exists(ctx, rel)
		if err != nil {
			return err
		}

		if exists {
			return nil
		}

		return davError("mkcol", rel, resp)
	default:
		return davError("mkcol", rel, resp)
	}
}

// Upload PUTs data at rel with Overwrite: T. A 409 (missing parent
// collection) triggers parent creation and a single re-PUT.
func (c *Client) Upload(ctx context.Context, rel string, data []byte, contentType string) error {
	resp, err := c.doUpload(ctx, rel, data, contentType)
	if err != nil {
		return err
	}

	if resp.status == http.StatusConflict {
		if parent := path.Dir(strings.Trim(rel, "/")); parent != "." && parent != "/" {
			if err := c.EnsureDir(ctx, parent); err != nil {
				return err
			}
		}

		resp, err = c.doUpload(ctx, rel, data, contentType)
		if err != nil {
			return err
		}
	}

	switch resp.status {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	default:
		return davError("upload", rel, resp)
	}
}

// doUpload issues one PUT through the retry loop.
func (c *Client) doUpload(ctx context.Context, rel string, data []byte, contentType string) (*response, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return c.do(ctx, "upload", http.MethodPut, rel, data, map[string]string{
		"Content-Type": contentType,
		"Overwrite":    "T",
	})
}

// Download GETs rel and returns the raw bytes. Absence surfaces as
// ErrNotFound for the caller to classify.
func (c *Client) Download(ctx context.Context, rel string) ([]byte, error) {
	resp, err := c.do(ctx, "download", http.MethodGet, rel, nil, nil)
	if err != nil {
		return nil, err
	}

	if resp.status >= http.StatusOK && resp.status < http.StatusMultipleChoices {
		return resp.body, nil
	}

	return nil, davError("download", rel, resp)
}

// Delete removes rel. 200/204 succeed; 404 counts as success because the
// desired state (absent) already holds.
func (c *Client) Delete(ctx context.Context, rel string) error {
	resp, err := c.do(ctx, "delete", http.MethodDelete, rel, nil, nil)
	if err != nil {
		return err
	}

	switch resp.status {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return davError("delete", rel, resp)
	}
}

// TestConnection HEADs the sync root and measures latency. 2xx, 207 and
// 405 all count as reachable (many servers reject HEAD on collections).
func (c *Client) TestConnection(ctx context.Context) ConnectionResult {
	resp, err := c.do(ctx, "test", http.MethodHead, "", nil, nil)
	if err != nil {
		return ConnectionResult{Connected: false, Message: err.Error()}
	}

	connected := (resp.status >= http.StatusOK && resp.status < http.StatusMultipleChoices) ||
		resp.status == http.StatusMultiStatus ||
		resp.status == http.StatusMethodNotAllowed

	result := ConnectionResult{
		Connected: connected,
		Status:    resp.status,
		Latency:   resp.latency,
	}

	if !connected {
		result.Message = fmt.Sprintf("HTTP %d", resp.status)
	}

	return result
}

// calcBackoff computes the exponential delay for the given attempt.
func calcBackoff(attempt int) time.Duration {
	return time.Duration(float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt)))
}

// timeSleep waits for d or until ctx is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsRetryable reports whether err represents a transient failure worth a
// future attempt (used by the sync engine to keep rows pending).
func IsRetryable(err error) bool {
	var davErr *DAVError
	if errors.As(err, &davErr) {
		return davErr.Retryable
	}

	return false
}
