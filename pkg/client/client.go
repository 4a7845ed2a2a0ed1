// Package client is the MealDrop Go SDK: an offline-first HTTP client with
// a persistent mutation queue, a fallback response cache, and a realtime
// event listener.
//
// Reads are live-first; the cache is consulted only when the network fails.
// Mutations made while offline are captured into a persistent queue and
// replayed sequentially when connectivity returns.
//
// Example:
//
//	store, _ := client.NewFileStore("/data/mealdrop.json")
//	c := client.New("https://api.mealdrop.app", token, client.WithStore(store))
//	defer c.Close()
//
//	resp, _ := c.Post(ctx, "/v1/orders", order)
//	if resp.Queued {
//		// saved locally, will sync
//	}
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout is the per-request HTTP timeout.
const DefaultTimeout = 30 * time.Second

// Response is the result of an SDK request.
type Response struct {
	// StatusCode is the HTTP status, or 0 for a queued mutation.
	StatusCode int

	// Data is the response body.
	Data json.RawMessage

	// FromCache marks a read served from the fallback cache after a
	// network failure. UIs should surface the staleness.
	FromCache bool

	// Queued marks a mutation captured into the offline queue instead of
	// sent live.
	Queued bool

	// ActionID identifies the queued action when Queued is true.
	ActionID string
}

// APIError is a non-2xx response from the server. It is never a trigger
// for cache fallback or offline queueing; the server answered.
type APIError struct {
	StatusCode int
	Body       json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status %d", e.StatusCode)
}

// Client is the MealDrop API client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     zerolog.Logger

	store   Store
	cache   *ResponseCache
	queue   *OfflineQueue
	monitor NetworkMonitor

	cacheTTL   time.Duration
	retryLimit int
	onFailure  FailureListener

	ownMonitor *ProbeMonitor
	cancel     context.CancelFunc
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithStore sets the persistent store backing the queue and cache.
func WithStore(s Store) Option {
	return func(c *Client) { c.store = s }
}

// WithMonitor replaces the default probe-based network monitor.
func WithMonitor(m NetworkMonitor) Option {
	return func(c *Client) { c.monitor = m }
}

// WithLogger sets the SDK logger. Default is a no-op logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithCacheTTL overrides the default TTL applied to cached GET responses.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) { c.cacheTTL = ttl }
}

// WithRetryLimit overrides the offline queue's replay attempt cap.
func WithRetryLimit(n int) Option {
	return func(c *Client) { c.retryLimit = n }
}

// WithFailureListener registers a callback for permanently failed queued
// actions, so the UI can distinguish them from pending ones.
func WithFailureListener(fn FailureListener) Option {
	return func(c *Client) { c.onFailure = fn }
}

// New creates a MealDrop client.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     zerolog.Nop(),
		cacheTTL:   DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.store == nil {
		c.store = NewMemoryStore()
	}
	c.cache = NewResponseCache(c.store, c.logger)
	c.queue = NewOfflineQueue(OfflineQueueConfig{
		Store:              c.store,
		Sync:               c.replayAction,
		OnPermanentFailure: c.onFailure,
		RetryLimit:         c.retryLimit,
		Logger:             c.logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	if c.monitor == nil {
		mon := NewHTTPProbeMonitor(c.baseURL, c.httpClient, 0)
		mon.Start(ctx)
		c.monitor = mon
		c.ownMonitor = mon
	}
	if mon, ok := c.monitor.(*ProbeMonitor); ok {
		mon.OnConnectivityRestored(func() {
			if err := c.queue.ProcessQueue(ctx); err != nil {
				c.logger.Warn().Err(err).Msg("offline queue replay interrupted")
			}
		})
	}

	return c
}

// Close stops background work. Queued actions stay persisted.
func (c *Client) Close() {
	if c.ownMonitor != nil {
		c.ownMonitor.Stop()
	}
	if c.cancel != nil {
		c.cancel()
	}
}

// SetToken updates the bearer token, e.g. after a refresh.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Queue exposes the offline queue, e.g. to list pending or failed actions.
func (c *Client) Queue() *OfflineQueue { return c.queue }

// Cache exposes the response cache.
func (c *Client) Cache() *ResponseCache { return c.cache }

// ProcessQueue replays queued mutations now instead of waiting for the
// connectivity-restored trigger.
func (c *Client) ProcessQueue(ctx context.Context) error {
	return c.queue.ProcessQueue(ctx)
}

// ── Reads ────────────────────────────────────────────────

// Get issues a live GET. On success the response is written through to the
// cache. On a network failure (not an HTTP error status) the cache is
// consulted and a hit is returned tagged FromCache.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	key := cacheKey(path, query)

	resp, err := c.doRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		if cached, ok := c.cache.Get(key); ok {
			return &Response{StatusCode: http.StatusOK, Data: cached, FromCache: true}, nil
		}
		return nil, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.cache.Set(key, resp.Data, c.cacheTTL)
		return resp, nil
	}
	return nil, &APIError{StatusCode: resp.StatusCode, Body: resp.Data}
}

// ── Mutations ────────────────────────────────────────────

// Post issues a POST, queueing it if the device is offline.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.mutate(ctx, http.MethodPost, path, body)
}

// Put issues a PUT, queueing it if the device is offline.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.mutate(ctx, http.MethodPut, path, body)
}

// Patch issues a PATCH, queueing it if the device is offline.
func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return c.mutate(ctx, http.MethodPatch, path, body)
}

// Delete issues a DELETE, queueing it if the device is offline.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.mutate(ctx, http.MethodDelete, path, nil)
}

func opTypeFor(method string) OpType {
	switch method {
	case http.MethodPut:
		return OpUpdate
	case http.MethodPatch:
		return OpPatch
	case http.MethodDelete:
		return OpDelete
	default:
		return OpCreate
	}
}

// mutate sends a write live when online, or intercepts it into the offline
// queue and returns the action ID. A live attempt that fails with a network
// error is also queued: the SDK fails toward queueing, never toward losing
// a write.
func (c *Client) mutate(ctx context.Context, method, path string, body any) (*Response, error) {
	var payload json.RawMessage
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		payload = data
	}

	if !c.monitor.Online(ctx) {
		return c.enqueue(method, path, payload), nil
	}

	resp, err := c.doRequest(ctx, method, path, nil, payload)
	if err != nil {
		c.logger.Debug().Err(err).Str("path", path).Msg("mutation failed, queueing")
		return c.enqueue(method, path, payload), nil
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	return nil, &APIError{StatusCode: resp.StatusCode, Body: resp.Data}
}

func (c *Client) enqueue(method, path string, payload json.RawMessage) *Response {
	actionID := c.queue.Enqueue(opTypeFor(method), path, method, payload, nil)
	return &Response{Queued: true, ActionID: actionID}
}

// replayAction is the queue's sync callback: one live request per action.
func (c *Client) replayAction(ctx context.Context, action *QueuedAction) error {
	resp, err := c.doRequest(ctx, action.Method, action.Endpoint, nil, action.Payload)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Body: resp.Data}
	}
	return nil
}

// ── Transport ────────────────────────────────────────────

func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body json.RawMessage) (*Response, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{StatusCode: httpResp.StatusCode, Data: data}, nil
}
