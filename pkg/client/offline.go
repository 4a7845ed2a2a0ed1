package client

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// OpType classifies a queued mutation.
type OpType string

const (
	OpCreate OpType = "CREATE"
	OpUpdate OpType = "UPDATE"
	OpPatch  OpType = "PATCH"
	OpDelete OpType = "DELETE"
)

// ActionStatus is the replay state of a queued action.
type ActionStatus string

const (
	// ActionPending actions are waiting for replay (or a retry).
	ActionPending ActionStatus = "pending"

	// ActionFailed actions exhausted their retries. They stay visible in
	// the queue until explicitly removed; they are never silently dropped.
	ActionFailed ActionStatus = "failed"
)

// DefaultRetryLimit is the replay attempt cap per action.
const DefaultRetryLimit = 5

// QueuedAction is a mutation captured while offline, persisted until it
// replays successfully or permanently fails.
type QueuedAction struct {
	ActionID     string          `json:"actionId"`
	OpType       OpType          `json:"opType"`
	Endpoint     string          `json:"endpoint"`
	Method       string          `json:"method"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Priority     int             `json:"priority,omitempty"`
	ResourceType string          `json:"resourceType,omitempty"`
	TempID       string          `json:"tempId,omitempty"`
	RetryCount   int             `json:"retryCount"`
	Status       ActionStatus    `json:"status"`
	LastError    string          `json:"lastError,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// SyncFunc replays one action against the server. A nil error removes the
// action from the queue.
type SyncFunc func(ctx context.Context, action *QueuedAction) error

// FailureListener is invoked when an action exhausts its retries.
type FailureListener func(action *QueuedAction)

// EnqueueOptions carries the optional fields of a queued action.
type EnqueueOptions struct {
	Priority     int
	ResourceType string
	TempID       string
}

// OfflineQueue persists mutations made while offline and replays them
// sequentially when connectivity returns.
//
// Replay order is enqueue order (FIFO) unless an action carries a higher
// Priority, which moves it ahead without reordering its peers. Replays are
// strictly sequential so dependent mutations for the same resource keep
// their causal order. Server handlers should tolerate duplicate delivery;
// a replay interrupted after the server applied it will be retried.
type OfflineQueue struct {
	store      Store
	sync       SyncFunc
	onFailure  FailureListener
	retryLimit int
	logger     zerolog.Logger

	mu         sync.Mutex
	actions    []*QueuedAction
	processing bool
}

// OfflineQueueConfig configures an OfflineQueue.
type OfflineQueueConfig struct {
	Store Store

	// Sync replays one action. Required before ProcessQueue is called.
	Sync SyncFunc

	// OnPermanentFailure is invoked for actions that exhaust retries.
	OnPermanentFailure FailureListener

	// RetryLimit caps replay attempts per action. Default: 5.
	RetryLimit int

	Logger zerolog.Logger
}

// NewOfflineQueue creates a queue, restoring any persisted actions. State
// persisted by an incompatible SDK version is discarded.
func NewOfflineQueue(cfg OfflineQueueConfig) *OfflineQueue {
	q := &OfflineQueue{
		store:      cfg.Store,
		sync:       cfg.Sync,
		onFailure:  cfg.OnPermanentFailure,
		retryLimit: cfg.RetryLimit,
		logger:     cfg.Logger,
	}
	if q.store == nil {
		q.store = NewMemoryStore()
	}
	if q.retryLimit <= 0 {
		q.retryLimit = DefaultRetryLimit
	}

	if raw, ok := q.store.Get(keyOfflineQueue); ok {
		var restored []*QueuedAction
		if unmarshalEnvelope(raw, &restored) {
			q.actions = restored
		} else {
			q.logger.Warn().Msg("discarding offline queue persisted by an incompatible version")
			_ = q.store.Delete(keyOfflineQueue)
		}
	}
	return q
}

// Enqueue appends a mutation to the queue and returns its action ID. The
// ID is returned synchronously; a storage write failure is logged, not
// returned, so the caller's optimistic flow is never interrupted.
func (q *OfflineQueue) Enqueue(opType OpType, endpoint, method string, payload json.RawMessage, opts *EnqueueOptions) string {
	action := &QueuedAction{
		ActionID:  uuid.New().String(),
		OpType:    opType,
		Endpoint:  endpoint,
		Method:    method,
		Payload:   payload,
		Status:    ActionPending,
		CreatedAt: time.Now().UTC(),
	}
	if opts != nil {
		action.Priority = opts.Priority
		action.ResourceType = opts.ResourceType
		action.TempID = opts.TempID
	}

	q.mu.Lock()
	q.actions = append(q.actions, action)
	q.persistLocked()
	q.mu.Unlock()

	return action.ActionID
}

// ProcessQueue replays pending actions sequentially. Successful actions are
// removed; failures increment the retry count and stay queued until the cap,
// after which they are marked failed and surfaced via the failure listener.
// Concurrent calls coalesce: a call made while a replay pass is running
// returns immediately.
func (q *OfflineQueue) ProcessQueue(ctx context.Context) error {
	q.mu.Lock()
	if q.processing {
		q.mu.Unlock()
		return nil
	}
	q.processing = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.processing = false
		q.mu.Unlock()
	}()

	for {
		action := q.nextPending()
		if action == nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		err := q.sync(ctx, action)

		q.mu.Lock()
		if err == nil {
			q.removeLocked(action.ActionID)
			q.persistLocked()
			q.mu.Unlock()
			continue
		}

		action.RetryCount++
		action.LastError = err.Error()
		if action.RetryCount >= q.retryLimit {
			action.Status = ActionFailed
			q.logger.Warn().
				Str("action_id", action.ActionID).
				Str("endpoint", action.Endpoint).
				Int("retries", action.RetryCount).
				Msg("offline action permanently failed")
			if q.onFailure != nil {
				cpy := *action
				q.onFailure(&cpy)
			}
		}
		q.persistLocked()
		q.mu.Unlock()
	}
}

// nextPending returns the first replayable action: FIFO, with higher
// Priority moved ahead by a stable sort.
func (q *OfflineQueue) nextPending() *QueuedAction {
	q.mu.Lock()
	defer q.mu.Unlock()

	ordered := make([]*QueuedAction, 0, len(q.actions))
	for _, a := range q.actions {
		if a.Status == ActionPending {
			ordered = append(ordered, a)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	if len(ordered) == 0 {
		return nil
	}
	return ordered[0]
}

// Actions returns a snapshot of every queued action, pending and failed.
func (q *OfflineQueue) Actions() []*QueuedAction {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*QueuedAction, len(q.actions))
	for i, a := range q.actions {
		cpy := *a
		out[i] = &cpy
	}
	return out
}

// PendingCount returns the number of actions still awaiting replay.
func (q *OfflineQueue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, a := range q.actions {
		if a.Status == ActionPending {
			n++
		}
	}
	return n
}

// Remove deletes an action, typically a failed one the user dismissed.
func (q *OfflineQueue) Remove(actionID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeLocked(actionID)
	q.persistLocked()
}

func (q *OfflineQueue) removeLocked(actionID string) {
	for i, a := range q.actions {
		if a.ActionID == actionID {
			q.actions = append(q.actions[:i], q.actions[i+1:]...)
			return
		}
	}
}

func (q *OfflineQueue) persistLocked() {
	data, err := marshalEnvelope(q.actions)
	if err == nil {
		err = q.store.Set(keyOfflineQueue, data)
	}
	if err != nil {
		q.logger.Error().Err(err).Msg("failed to persist offline queue")
	}
}
