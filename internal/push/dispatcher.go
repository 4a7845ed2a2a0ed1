package push

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/mealdrop/mealdrop/internal/device"
	"github.com/mealdrop/mealdrop/internal/user"
)

// Result is the aggregate outcome of one dispatch. Partial failure is the
// normal case: some devices are offline or uninstalled at any given time.
type Result struct {
	SuccessCount int `json:"successCount"`
	FailureCount int `json:"failureCount"`
}

// Dispatcher fans an event out to the active device tokens of its recipients.
//
// Delivery failures are counted, logged, and swallowed. A dispatch must never
// fail the business operation that triggered it; the returned error covers
// recipient resolution only.
type Dispatcher struct {
	provider  Provider
	devices   *device.Service
	logger    zerolog.Logger
	batchSize int
}

// NewDispatcher creates a push dispatcher. batchSize caps messages per
// provider call; zero means ExpoMaxBatchSize.
func NewDispatcher(provider Provider, devices *device.Service, batchSize int, logger zerolog.Logger) *Dispatcher {
	if batchSize <= 0 || batchSize > ExpoMaxBatchSize {
		batchSize = ExpoMaxBatchSize
	}
	return &Dispatcher{
		provider:  provider,
		devices:   devices,
		logger:    logger,
		batchSize: batchSize,
	}
}

// SendToUsers delivers an event to every active token of the given users.
func (d *Dispatcher) SendToUsers(ctx context.Context, userIDs []string, eventType string, data Payload) (Result, error) {
	if len(userIDs) == 0 {
		return Result{}, nil
	}

	tokens, err := d.devices.ListActiveByUsers(ctx, userIDs)
	if err != nil {
		return Result{}, err
	}
	return d.dispatch(ctx, tokens, eventType, data), nil
}

// SendToRole delivers an event to every active token whose stored role
// matches.
func (d *Dispatcher) SendToRole(ctx context.Context, role user.Role, eventType string, data Payload) (Result, error) {
	tokens, err := d.devices.ListActiveByRole(ctx, role)
	if err != nil {
		return Result{}, err
	}
	return d.dispatch(ctx, tokens, eventType, data), nil
}

// SendToDevices delivers an event to the given tokens directly, bypassing
// recipient resolution. Used for token-scoped test sends.
func (d *Dispatcher) SendToDevices(ctx context.Context, tokens []*device.Token, eventType string, data Payload) (Result, error) {
	return d.dispatch(ctx, tokens, eventType, data), nil
}

// dispatch chunks the token set and submits each batch independently. A
// failed batch counts its messages as failures and must not abort siblings.
func (d *Dispatcher) dispatch(ctx context.Context, tokens []*device.Token, eventType string, data Payload) Result {
	if len(tokens) == 0 {
		return Result{}
	}

	rendered := Render(eventType, data)
	messages := make([]Message, len(tokens))
	for i, t := range tokens {
		messages[i] = Message{
			To:       t.Token,
			Title:    rendered.Title,
			Body:     rendered.Body,
			Sound:    rendered.Sound,
			Priority: rendered.Priority,
			Data:     messageData(eventType, data),
		}
	}

	var result Result
	var delivered []string

	for start := 0; start < len(messages); start += d.batchSize {
		end := start + d.batchSize
		if end > len(messages) {
			end = len(messages)
		}
		batch := messages[start:end]

		tickets, err := d.provider.Send(ctx, batch)
		if err != nil {
			result.FailureCount += len(batch)
			d.logger.Warn().Err(err).
				Str("event_type", eventType).
				Int("batch_size", len(batch)).
				Msg("push batch failed")
			continue
		}

		for _, ticket := range tickets {
			if ticket.OK {
				result.SuccessCount++
				delivered = append(delivered, ticket.Token)
				continue
			}

			result.FailureCount++
			if ticket.TokenInvalid {
				// The only non-logout deactivation path.
				if err := d.devices.Deactivate(ctx, ticket.Token); err != nil {
					d.logger.Warn().Err(err).Msg("failed to deactivate invalid token")
				}
			} else {
				d.logger.Debug().
					Str("event_type", eventType).
					Str("detail", ticket.Detail).
					Msg("push delivery failed")
			}
		}
	}

	d.devices.Touch(ctx, delivered)

	d.logger.Info().
		Str("event_type", eventType).
		Int("success", result.SuccessCount).
		Int("failure", result.FailureCount).
		Msg("push dispatch complete")

	return result
}

// messageData is the machine-readable payload attached to every message so
// the client can route taps without parsing the body text.
func messageData(eventType string, data Payload) map[string]interface{} {
	out := make(map[string]interface{}, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out["eventType"] = eventType
	return out
}
