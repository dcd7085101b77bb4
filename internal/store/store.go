// Package store defines the persistence contracts for submitted operations.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record exists for an operation name.
	ErrNotFound = errors.New("operation not found")
	// ErrUnavailable is returned when the backing store cannot be reached.
	ErrUnavailable = errors.New("store unavailable")
)

// Record is a persisted operation. Key is derived from Name and never leaves
// the process.
type Record struct {
	Key       string          `json:"-"`
	Name      string          `json:"name"`
	URL       string          `json:"url"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// OperationStore holds one record per operation name, keyed by opkey.Key.
type OperationStore interface {
	Upsert(ctx context.Context, name, url string, payload json.RawMessage) error
	List(ctx context.Context) ([]Record, error)
	Get(ctx context.Context, name string) (Record, error)
	Close() error
}

// NameLog is the append-only list of operation names used for recovery
// independently of the OperationStore.
type NameLog interface {
	AppendName(ctx context.Context, name string) error
	// Names returns every logged name in insertion order.
	Names(ctx context.Context) ([]string, error)
	// Exists reports whether the log has ever been written.
	Exists() bool
	Close() error
}
