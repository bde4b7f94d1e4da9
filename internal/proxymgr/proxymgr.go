// Package proxymgr rotates outbound proxies for backend requests.
// It handles random selection, failure backoff and background health checks.
package proxymgr

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"ytpanel/internal/config"
	"ytpanel/internal/observability"
)

// ProxyState represents the current state of a proxy.
type ProxyState int

const (
	// ProxyStateAvailable indicates the proxy is available for use.
	ProxyStateAvailable ProxyState = iota
	// ProxyStateFailed indicates the proxy has failed and is in backoff.
	ProxyStateFailed
)

const (
	healthCheckTimeout = 10 * time.Second
	maxBackoff         = 1 * time.Hour
)

type proxyInfo struct {
	URL           string
	State         ProxyState
	FailureCount  int
	BackoffUntil  time.Time
	LastHealthChk time.Time
}

// Manager manages proxy rotation and health.
type Manager struct {
	log     *slog.Logger
	cfg     config.Proxy
	metrics *observability.Metrics

	mu      sync.Mutex
	proxies map[string]*proxyInfo
	order   []string // insertion order for deterministic iteration
	now     func() time.Time
}

// New creates a new proxy manager for cfg.Proxy.Proxies.
func New(log *slog.Logger, cfg *config.Config, metrics *observability.Metrics) *Manager {
	mgr := &Manager{
		log:     log.With(slog.String("package", "proxymgr")),
		cfg:     cfg.Proxy,
		metrics: metrics,
		proxies: make(map[string]*proxyInfo),
		order:   make([]string, 0, len(cfg.Proxy.Proxies)),
		now:     time.Now,
	}

	for _, proxy := range cfg.Proxy.Proxies {
		if _, dup := mgr.proxies[proxy]; dup {
			continue
		}

		mgr.proxies[proxy] = &proxyInfo{URL: proxy, State: ProxyStateAvailable}
		mgr.order = append(mgr.order, proxy)
	}

	metrics.SetProxiesAvailable(len(mgr.order))

	return mgr
}

type ctxKey struct{}

// WithProxy returns a context that routes requests through proxyURL.
func WithProxy(ctx context.Context, proxyURL string) context.Context {
	return context.WithValue(ctx, ctxKey{}, proxyURL)
}

// FromContext returns the proxy chosen for a request context, if any.
func FromContext(ctx context.Context) (string, bool) {
	p, ok := ctx.Value(ctxKey{}).(string)

	return p, ok && p != ""
}

// TransportProxy is an http.Transport.Proxy func honouring the proxy stored by WithProxy.
// Requests without one go direct.
func TransportProxy(req *http.Request) (*url.URL, error) {
	proxyURL, ok := FromContext(req.Context())
	if !ok {
		return nil, nil
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}

	return u, nil
}

// GetRandomProxy returns a random available proxy URL and counts it as used.
// Returns empty string if no proxies are available.
func (m *Manager) GetRandomProxy() string {
	if m == nil {
		return ""
	}

	m.mu.Lock()
	available := m.getAvailableProxies()
	m.mu.Unlock()

	if len(available) == 0 {
		return ""
	}

	proxy := available[rand.IntN(len(available))]
	m.metrics.RecordProxyRequest(proxy)

	return proxy
}

// Report feeds the outcome of a request made through proxyURL back into the rotation.
func (m *Manager) Report(proxyURL string, err error) {
	if m == nil || proxyURL == "" {
		return
	}

	if err != nil {
		m.MarkFailed(proxyURL)

		return
	}

	m.MarkSuccess(proxyURL)
}

// MarkFailed marks a proxy as failed and applies exponential backoff
// once MaxFailures is reached.
func (m *Manager) MarkFailed(proxyURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, exists := m.proxies[proxyURL]
	if !exists {
		return
	}

	info.FailureCount++
	m.metrics.RecordProxyFailure(proxyURL)

	maxFailures := max(m.cfg.MaxFailures, 1)
	if info.FailureCount < maxFailures {
		return
	}

	info.State = ProxyStateFailed

	backoff := m.cfg.FailureBackoff
	if shift := info.FailureCount - maxFailures; shift > 0 {
		backoff *= time.Duration(1 << min(shift, 16))
	}

	backoff = min(backoff, maxBackoff)
	info.BackoffUntil = m.now().Add(backoff)

	m.metrics.SetProxiesAvailable(len(m.getAvailableProxies()))

	m.log.Warn("proxy marked as failed",
		slog.String("proxy", proxyURL),
		slog.Int("failure_count", info.FailureCount),
		slog.Duration("backoff", backoff))
}

// MarkSuccess marks a proxy as successful and resets failure count.
func (m *Manager) MarkSuccess(proxyURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, exists := m.proxies[proxyURL]
	if !exists {
		return
	}

	info.State = ProxyStateAvailable
	info.FailureCount = 0
	info.BackoffUntil = time.Time{}

	m.metrics.SetProxiesAvailable(len(m.getAvailableProxies()))
}

// HealthCheck dials the proxy host and updates its state.
func (m *Manager) HealthCheck(ctx context.Context, proxyURL string) error {
	parsedURL, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("parse proxy URL: %w", err)
	}

	dialer := &net.Dialer{Timeout: healthCheckTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", parsedURL.Host)
	if err != nil {
		m.MarkFailed(proxyURL)

		return fmt.Errorf("dial proxy: %w", err)
	}
	defer conn.Close()

	m.mu.Lock()
	if info, exists := m.proxies[proxyURL]; exists {
		info.LastHealthChk = m.now()
	}
	m.mu.Unlock()

	m.MarkSuccess(proxyURL)

	return nil
}

// StartHealthChecker starts background health checking until ctx is done.
func (m *Manager) StartHealthChecker(ctx context.Context) {
	if m.cfg.HealthCheckInterval <= 0 || len(m.order) == 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(m.cfg.HealthCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.checkAllProxies(ctx)
			}
		}
	}()

	m.log.Info("proxy health checker started",
		slog.Duration("interval", m.cfg.HealthCheckInterval),
		slog.Int("proxy_count", len(m.order)))
}

// ProxyCount returns the total number of configured proxies.
func (m *Manager) ProxyCount() int {
	return len(m.order)
}

// AvailableCount returns the number of currently available proxies.
func (m *Manager) AvailableCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.getAvailableProxies())
}

func (m *Manager) getAvailableProxies() []string {
	now := m.now()
	available := make([]string, 0, len(m.order))

	for _, proxyURL := range m.order {
		info := m.proxies[proxyURL]
		if info.State == ProxyStateAvailable || now.After(info.BackoffUntil) {
			available = append(available, proxyURL)
		}
	}

	return available
}

func (m *Manager) checkAllProxies(ctx context.Context) {
	for _, proxy := range m.order {
		if ctx.Err() != nil {
			return
		}

		if err := m.HealthCheck(ctx, proxy); err != nil {
			m.log.Debug("proxy health check failed", slog.String("proxy", proxy), slog.Any("error", err))
		}
	}
}
