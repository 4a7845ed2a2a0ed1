package resilience

import (
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Health is a snapshot of one upstream dependency's state, derived from its
// circuit breaker plus the last observed outcome.
type Health struct {
	// Name is the upstream identifier, e.g. "expo-push".
	Name string

	// CircuitState is the current circuit breaker state.
	CircuitState gobreaker.State

	// Counts contains circuit breaker statistics.
	Counts gobreaker.Counts

	// LastSuccessAt is the timestamp of the last successful request.
	LastSuccessAt *time.Time

	// LastFailureAt is the timestamp of the last failed request.
	LastFailureAt *time.Time

	// LastError is the most recent error message, if any.
	LastError string
}

// IsHealthy reports a closed circuit.
func (h *Health) IsHealthy() bool {
	return h.CircuitState == gobreaker.StateClosed
}

// IsDegraded reports a half-open circuit.
func (h *Health) IsDegraded() bool {
	return h.CircuitState == gobreaker.StateHalfOpen
}

// IsUnhealthy reports an open circuit.
func (h *Health) IsUnhealthy() bool {
	return h.CircuitState == gobreaker.StateOpen
}

// Registry tracks the resilient clients for upstream dependencies so health
// surfaces (readiness probes, the ops status endpoint) can report on them
// without reaching into each client.
type Registry struct {
	mu        sync.RWMutex
	upstreams map[string]*trackedUpstream
}

type trackedUpstream struct {
	client        *Client
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewRegistry creates an empty health registry.
func NewRegistry() *Registry {
	return &Registry{upstreams: make(map[string]*trackedUpstream)}
}

// Register starts tracking a client under the given name. Re-registering a
// name replaces the tracked client and resets its observations.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upstreams[name] = &trackedUpstream{client: client}
}

// RecordSuccess notes a successful request for the named upstream.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.upstreams[name]; ok {
		now := time.Now()
		u.lastSuccessAt = &now
	}
}

// RecordFailure notes a failed request for the named upstream.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.upstreams[name]; ok {
		now := time.Now()
		u.lastFailureAt = &now
		if err != nil {
			u.lastError = err.Error()
		}
	}
}

// GetHealth returns the health snapshot for one upstream, or nil if the
// name is not registered.
func (r *Registry) GetHealth(name string) *Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.upstreams[name]
	if !ok {
		return nil
	}
	return snapshot(name, u)
}

// GetAllHealth returns snapshots for every registered upstream.
func (r *Registry) GetAllHealth() []*Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	health := make([]*Health, 0, len(r.upstreams))
	for name, u := range r.upstreams {
		health = append(health, snapshot(name, u))
	}
	return health
}

// ProbeFor builds a readiness probe over the named upstream: it fails while
// the circuit is open and passes otherwise. A half-open circuit passes; the
// upstream is being retried, not down.
func (r *Registry) ProbeFor(name string) func() error {
	return func() error {
		h := r.GetHealth(name)
		if h == nil {
			return fmt.Errorf("upstream %q not registered", name)
		}
		if h.IsUnhealthy() {
			if h.LastError != "" {
				return fmt.Errorf("upstream %q circuit open: %s", name, h.LastError)
			}
			return fmt.Errorf("upstream %q circuit open", name)
		}
		return nil
	}
}

func snapshot(name string, u *trackedUpstream) *Health {
	return &Health{
		Name:          name,
		CircuitState:  u.client.CircuitBreakerState(),
		Counts:        u.client.CircuitBreakerCounts(),
		LastSuccessAt: u.lastSuccessAt,
		LastFailureAt: u.lastFailureAt,
		LastError:     u.lastError,
	}
}
