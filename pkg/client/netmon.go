package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// NetworkMonitor reports whether the device currently has connectivity.
// A probe error means offline: the SDK fails toward queueing a write, never
// toward losing one.
type NetworkMonitor interface {
	Online(ctx context.Context) bool
}

// Probe intervals for the default monitor.
const (
	defaultProbeInterval = 15 * time.Second
	defaultProbeTimeout  = 5 * time.Second
)

// ProbeMonitor is the default NetworkMonitor: it periodically issues a
// lightweight health probe and tracks the result. When a probe succeeds
// after a failure, registered connectivity-restored callbacks fire, which
// is the trigger for offline queue replay.
type ProbeMonitor struct {
	probe    func(ctx context.Context) error
	interval time.Duration

	mu        sync.Mutex
	online    bool
	probed    bool
	onRestore []func()
	cancel    context.CancelFunc
}

// NewProbeMonitor creates a monitor around the given probe function.
func NewProbeMonitor(probe func(ctx context.Context) error, interval time.Duration) *ProbeMonitor {
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	return &ProbeMonitor{
		probe:    probe,
		interval: interval,
		online:   true,
	}
}

// NewHTTPProbeMonitor creates a monitor that probes the server's public
// health endpoint.
func NewHTTPProbeMonitor(baseURL string, httpClient *http.Client, interval time.Duration) *ProbeMonitor {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	probe := func(ctx context.Context) error {
		probeCtx, cancel := context.WithTimeout(ctx, defaultProbeTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, baseURL+"/v1/ops/health", nil)
		if err != nil {
			return err
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("health probe returned %d", resp.StatusCode)
		}
		return nil
	}
	return NewProbeMonitor(probe, interval)
}

// Online probes immediately on first call, then reports the tracked state.
func (m *ProbeMonitor) Online(ctx context.Context) bool {
	m.mu.Lock()
	probed := m.probed
	online := m.online
	m.mu.Unlock()

	if probed {
		return online
	}
	m.check(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnConnectivityRestored registers a callback fired on each offline-to-online
// transition.
func (m *ProbeMonitor) OnConnectivityRestored(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRestore = append(m.onRestore, fn)
}

// Start begins the background probe loop. Stop with Stop or by cancelling
// the context.
func (m *ProbeMonitor) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		cancel()
		return
	}
	m.cancel = cancel
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				m.check(loopCtx)
			}
		}
	}()
}

// Stop halts the background probe loop.
func (m *ProbeMonitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// check runs one probe and fires restore callbacks on an offline-to-online
// transition.
func (m *ProbeMonitor) check(ctx context.Context) {
	err := m.probe(ctx)

	m.mu.Lock()
	wasOnline := m.online
	wasProbed := m.probed
	m.online = err == nil
	m.probed = true
	restored := m.online && wasProbed && !wasOnline
	var callbacks []func()
	if restored {
		callbacks = append(callbacks, m.onRestore...)
	}
	m.mu.Unlock()

	for _, fn := range callbacks {
		go fn()
	}
}

// staticMonitor always reports a fixed state. Useful in tests.
type staticMonitor bool

func (s staticMonitor) Online(context.Context) bool { return bool(s) }

// AlwaysOnline is a NetworkMonitor that never reports offline.
var AlwaysOnline NetworkMonitor = staticMonitor(true)

// AlwaysOffline is a NetworkMonitor that always reports offline.
var AlwaysOffline NetworkMonitor = staticMonitor(false)
