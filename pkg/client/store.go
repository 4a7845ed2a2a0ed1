package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// storeSchemaVersion tags every persisted envelope. Data written by an
// incompatible SDK build is discarded on load rather than misread.
const storeSchemaVersion = 1

// Storage keys for the two persisted namespaces.
const (
	keyOfflineQueue  = "mealdrop:offline-queue"
	keyResponseCache = "mealdrop:response-cache"
)

// envelope wraps persisted state with a schema version tag.
type envelope struct {
	Version int             `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// Store is the device key-value storage the SDK persists into. Each
// namespace (queue, cache) owns a dedicated key.
type Store interface {
	// Get returns the raw bytes stored under key, or false if absent.
	Get(key string) ([]byte, bool)

	// Set stores raw bytes under key.
	Set(key string, value []byte) error

	// Delete removes the key.
	Delete(key string) error
}

// marshalEnvelope wraps v in a versioned envelope.
func marshalEnvelope(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Version: storeSchemaVersion, Data: data})
}

// unmarshalEnvelope unpacks a versioned envelope into v. Unknown versions
// return false so callers start fresh instead of misreading old layouts.
func unmarshalEnvelope(raw []byte, v any) bool {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false
	}
	if env.Version != storeSchemaVersion {
		return false
	}
	return json.Unmarshal(env.Data, v) == nil
}

// ============================================================================
// MemoryStore
// ============================================================================

// MemoryStore is a goroutine-safe in-memory store. Nothing survives process
// exit; intended for tests and ephemeral clients.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, false
	}
	cpy := make([]byte, len(v))
	copy(cpy, v)
	return cpy, true
}

func (s *MemoryStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cpy := make([]byte, len(value))
	copy(cpy, value)
	s.values[key] = cpy
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// ============================================================================
// FileStore
// ============================================================================

// FileStore persists all keys into a single JSON file, written atomically
// via a temp file and rename. One app instance owns the file; there is no
// cross-process locking.
type FileStore struct {
	mu     sync.Mutex
	path   string
	values map[string]json.RawMessage
}

// NewFileStore opens (or creates) a file-backed store at path.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:   path,
		values: make(map[string]json.RawMessage),
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening store file: %w", err)
	}

	// A corrupt file starts fresh rather than failing the client.
	_ = json.Unmarshal(raw, &s.values)
	return s, nil
}

func (s *FileStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return nil, false
	}
	cpy := make([]byte, len(v))
	copy(cpy, v)
	return cpy, true
}

func (s *FileStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cpy := make(json.RawMessage, len(value))
	copy(cpy, value)
	s.values[key] = cpy
	return s.flushLocked()
}

func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return s.flushLocked()
}

func (s *FileStore) flushLocked() error {
	data, err := json.Marshal(s.values)
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
