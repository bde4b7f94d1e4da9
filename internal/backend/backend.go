// Package backend is the HTTP+JSON client of the download service.
//
// Endpoints:
//
//	POST /extract_info              {url}                -> VideoMetadata
//	POST /download                  {url, format, type}  -> {download_id}
//	GET  /progress/{download_id}                         -> DownloadJob
//	GET  /downloads                                      -> []CompletedDownload
//	GET  /download_file/{download_id}                    -> binary stream
//
// Error responses carry {"error": "..."}.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"ytpanel/internal/config"
	"ytpanel/internal/entity"
	"ytpanel/internal/errs"
	"ytpanel/internal/observability"
	"ytpanel/internal/proxymgr"
	"ytpanel/pkg/urls"
)

// Operation names used for logs and metrics.
const (
	OpAnalyze  = "analyze"
	OpStart    = "start"
	OpProgress = "progress"
	OpList     = "list"
	OpFetch    = "fetch"
)

const (
	// HeaderXRequestID correlates panel and backend logs.
	HeaderXRequestID = "X-Request-ID"

	maxJSONBody = 10 << 20
)

// StatusError is a non-2xx backend response.
type StatusError struct {
	Code int
	// Message is the backend-supplied error field, empty when absent.
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %d", errs.ErrUnexpectedStatus, e.Code)
	}

	return fmt.Sprintf("%s %d: %s", errs.ErrUnexpectedStatus, e.Code, e.Message)
}

// Is matches errs.ErrUnexpectedStatus.
func (e *StatusError) Is(target error) bool {
	return target == errs.ErrUnexpectedStatus
}

// BackendMessage returns the backend-supplied message carried by err, if any.
func BackendMessage(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Message
	}

	return ""
}

type errorBody struct {
	Error string `json:"error"`
}

type startResponse struct {
	DownloadID string `json:"download_id"`
}

// Client talks to one backend.
type Client struct {
	log     *slog.Logger
	baseURL string
	http    *http.Client
	proxies *proxymgr.Manager
	metrics *observability.Metrics

	userAgent      string
	requestTimeout time.Duration
	fetchTimeout   time.Duration
}

// New creates a backend client from cfg.Backend. proxies and metrics may be nil.
func New(log *slog.Logger, cfg *config.Config, proxies *proxymgr.Manager, metrics *observability.Metrics) *Client {
	return &Client{
		log:            log.With(slog.String("package", "backend")),
		baseURL:        cfg.Backend.URL,
		http:           newHTTPClient(proxies),
		proxies:        proxies,
		metrics:        metrics,
		userAgent:      cfg.Backend.UserAgent,
		requestTimeout: cfg.Backend.RequestTimeout,
		fetchTimeout:   cfg.Backend.FetchTimeout,
	}
}

func newHTTPClient(proxies *proxymgr.Manager) *http.Client {
	if proxies == nil || proxies.ProxyCount() == 0 {
		return &http.Client{}
	}

	baseTransport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return &http.Client{}
	}

	transport := baseTransport.Clone()
	transport.Proxy = proxymgr.TransportProxy

	return &http.Client{Transport: transport}
}

// BaseURL returns the backend root URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FileURL returns the direct download link of a completed job.
func (c *Client) FileURL(downloadID string) string {
	u, err := urls.Join(c.baseURL, "download_file", downloadID)
	if err != nil {
		return c.baseURL + "/download_file/" + downloadID
	}

	return u
}

// ExtractInfo requests metadata for rawURL.
func (c *Client) ExtractInfo(ctx context.Context, rawURL string) (*entity.VideoMetadata, error) {
	var meta entity.VideoMetadata

	err := c.doJSON(ctx, OpAnalyze, http.MethodPost, []string{"extract_info"}, map[string]string{"url": rawURL}, &meta)
	if err != nil {
		return nil, err
	}

	return &meta, nil
}

// StartDownload asks the backend to start a job and returns its download id.
func (c *Client) StartDownload(ctx context.Context, req entity.DownloadRequest) (string, error) {
	var out startResponse

	err := c.doJSON(ctx, OpStart, http.MethodPost, []string{"download"}, req, &out)
	if err != nil {
		return "", err
	}

	if out.DownloadID == "" {
		return "", errs.ErrEmptyDownloadID
	}

	return out.DownloadID, nil
}

// Progress returns the current state of a job.
func (c *Client) Progress(ctx context.Context, downloadID string) (*entity.DownloadJob, error) {
	var job entity.DownloadJob

	err := c.doJSON(ctx, OpProgress, http.MethodGet, []string{"progress", downloadID}, nil, &job)
	if err != nil {
		return nil, err
	}

	if job.DownloadID == "" {
		job.DownloadID = downloadID
	}

	return &job, nil
}

// ListDownloads returns completed jobs in backend order.
func (c *Client) ListDownloads(ctx context.Context) ([]entity.CompletedDownload, error) {
	var list []entity.CompletedDownload

	err := c.doJSON(ctx, OpList, http.MethodGet, []string{"downloads"}, nil, &list)
	if err != nil {
		return nil, err
	}

	if list == nil {
		list = []entity.CompletedDownload{}
	}

	return list, nil
}

// FetchFile streams a completed job's file into dst and returns the bytes written.
func (c *Client) FetchFile(ctx context.Context, downloadID string, dst io.Writer) (int64, error) {
	ctx, cancel := withTimeout(ctx, c.fetchTimeout)
	defer cancel()

	resp, err := c.do(ctx, OpFetch, http.MethodGet, []string{"download_file", downloadID}, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		return n, fmt.Errorf("copy body: %w", err)
	}

	return n, nil
}

// withTimeout applies d unless it is zero.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, d)
}

func (c *Client) doJSON(ctx context.Context, op, method string, path []string, in, out any) error {
	ctx, cancel := withTimeout(ctx, c.requestTimeout)
	defer cancel()

	resp, err := c.do(ctx, op, method, path, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONBody)).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}

	return nil
}

// do sends the request and returns the response only for 2xx codes.
// Non-2xx responses are drained into a *StatusError.
func (c *Client) do(ctx context.Context, op, method string, path []string, in any) (*http.Response, error) {
	endpoint, err := urls.Join(c.baseURL, path...)
	if err != nil {
		return nil, fmt.Errorf("%s: build url: %w", op, err)
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal request: %w", op, err)
		}

		body = bytes.NewReader(payload)
	}

	reqID := uuid.NewString()
	log := c.log.With(slog.String("op", op), slog.String("request_id", reqID))

	proxy := c.proxies.GetRandomProxy()
	if proxy != "" {
		ctx = proxymgr.WithProxy(ctx, proxy)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("%s: new request: %w", op, err)
	}

	req.Header.Set(HeaderXRequestID, reqID)
	req.Header.Set("Accept", "application/json")

	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()

	resp, err := c.http.Do(req)

	c.proxies.Report(proxy, err)

	if err != nil {
		c.metrics.RecordBackendRequest(op, 0, time.Since(start))
		log.DebugContext(ctx, "backend request failed", slog.String("url", endpoint), slog.Any("error", err))

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	c.metrics.RecordBackendRequest(op, resp.StatusCode, time.Since(start))
	log.DebugContext(ctx, "backend request",
		slog.String("method", method),
		slog.String("url", endpoint),
		slog.Int("status", resp.StatusCode),
		slog.Duration("took", time.Since(start)))

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return resp, nil
	}

	defer resp.Body.Close()

	var eb errorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, maxJSONBody)).Decode(&eb)

	return nil, fmt.Errorf("%s: %w", op, &StatusError{Code: resp.StatusCode, Message: eb.Error})
}
