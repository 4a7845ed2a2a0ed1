package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/mealdrop/mealdrop/internal/resilience"
)

const (
	defaultExpoURL = "https://exp.host/--/api/v2/push/send"

	// ExpoMaxBatchSize is the maximum number of messages Expo accepts in a
	// single request.
	ExpoMaxBatchSize = 100
)

// ExpoConfig holds configuration for the Expo push provider.
type ExpoConfig struct {
	// URL overrides the Expo push endpoint. Tests point this at a local
	// server; production leaves it empty.
	URL string

	// AccessToken is the optional Expo access token for enhanced security
	// projects. Sent as a bearer token when set.
	AccessToken string

	// Timeout is the per-request timeout. Default: 15 seconds.
	Timeout time.Duration

	// Health, when set, tracks this provider's circuit state and request
	// outcomes for readiness probes and the ops status endpoint.
	Health *resilience.Registry
}

// expoUpstreamName is the provider's name in the health registry.
const expoUpstreamName = "expo-push"

// ExpoProvider delivers messages through the Expo push HTTP API.
type ExpoProvider struct {
	url         string
	accessToken string
	client      *resilience.Client
	health      *resilience.Registry
	logger      zerolog.Logger
}

var _ Provider = (*ExpoProvider)(nil)

// NewExpoProvider creates an Expo push provider with circuit breaker and
// retry protection on the HTTP path.
func NewExpoProvider(cfg ExpoConfig, logger zerolog.Logger) *ExpoProvider {
	if cfg.URL == "" {
		cfg.URL = defaultExpoURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	clientCfg := resilience.DefaultClientConfig(expoUpstreamName)
	clientCfg.Timeout = cfg.Timeout
	client := resilience.NewClient(clientCfg)

	if cfg.Health != nil {
		cfg.Health.Register(expoUpstreamName, client)
	}

	return &ExpoProvider{
		url:         cfg.URL,
		accessToken: cfg.AccessToken,
		client:      client,
		health:      cfg.Health,
		logger:      logger.With().Str("provider", "expo").Logger(),
	}
}

func (p *ExpoProvider) recordOutcome(err error) {
	if p.health == nil {
		return
	}
	if err != nil {
		p.health.RecordFailure(expoUpstreamName, err)
		return
	}
	p.health.RecordSuccess(expoUpstreamName)
}

// expoTicket mirrors one entry of the Expo response's data array.
type expoTicket struct {
	Status  string `json:"status"` // "ok" or "error"
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
	Details struct {
		Error string `json:"error,omitempty"`
	} `json:"details,omitempty"`
}

type expoResponse struct {
	Data   []expoTicket `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors,omitempty"`
}

// Send submits one batch. Callers must keep batches at or under
// ExpoMaxBatchSize; Expo rejects oversized requests outright.
func (p *ExpoProvider) Send(ctx context.Context, messages []Message) ([]Ticket, error) {
	if len(messages) == 0 {
		return nil, nil
	}
	tickets, err := p.send(ctx, messages)
	p.recordOutcome(err)
	return tickets, err
}

func (p *ExpoProvider) send(ctx context.Context, messages []Message) ([]Ticket, error) {
	if len(messages) > ExpoMaxBatchSize {
		return nil, fmt.Errorf("batch of %d exceeds expo limit of %d", len(messages), ExpoMaxBatchSize)
	}

	payload, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("failed to encode push batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.accessToken)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("push request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read push response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("push endpoint returned status %d", resp.StatusCode)
	}

	var parsed expoResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode push response: %w", err)
	}
	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("push endpoint rejected batch: %s", parsed.Errors[0].Message)
	}
	if len(parsed.Data) != len(messages) {
		return nil, fmt.Errorf("push endpoint returned %d tickets for %d messages", len(parsed.Data), len(messages))
	}

	tickets := make([]Ticket, len(messages))
	for i, et := range parsed.Data {
		tickets[i] = Ticket{
			Token:        messages[i].To,
			OK:           et.Status == "ok",
			TokenInvalid: et.Details.Error == "DeviceNotRegistered",
			Detail:       et.Details.Error,
		}
		if tickets[i].Detail == "" && et.Status != "ok" {
			tickets[i].Detail = et.Message
		}
	}
	return tickets, nil
}
