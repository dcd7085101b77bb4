package composite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/urisubmit/urisubmit/internal/store"
)

// Store pairs the rich operation store with the append-only name log. The log
// is the recovery source of truth for names; the operation store is the
// metadata cache. Either may be nil.
type Store struct {
	ops store.OperationStore
	log store.NameLog
}

func New(ops store.OperationStore, log store.NameLog) *Store {
	return &Store{ops: ops, log: log}
}

// Record writes name to the log and then upserts the full record. The two
// sinks are independent: a failure in one does not skip the other. The
// returned error joins every failure.
func (s *Store) Record(ctx context.Context, name, url string, payload json.RawMessage) error {
	var errs []error
	if s.log != nil {
		if err := s.log.AppendName(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("append name log: %w", err))
		}
	}
	if s.ops != nil {
		if err := s.ops.Upsert(ctx, name, url, payload); err != nil {
			errs = append(errs, fmt.Errorf("upsert operation: %w", err))
		}
	}
	return errors.Join(errs...)
}

// List returns records newest-first. Without an operation store it falls back
// to the log, reversed and de-duplicated, with only names populated.
func (s *Store) List(ctx context.Context) ([]store.Record, error) {
	if s.ops != nil {
		return s.ops.List(ctx)
	}
	if s.log == nil {
		return []store.Record{}, nil
	}
	names, err := s.log.Names(ctx)
	if err != nil {
		return nil, err
	}
	slices.Reverse(names)
	seen := mapset.NewThreadUnsafeSet[string]()
	out := make([]store.Record, 0, len(names))
	for _, n := range names {
		if !seen.Add(n) {
			continue
		}
		out = append(out, store.Record{Name: n})
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, name string) (store.Record, error) {
	if s.ops == nil {
		return store.Record{}, fmt.Errorf("%w: %s", store.ErrNotFound, name)
	}
	return s.ops.Get(ctx, name)
}

// HasLog reports whether anything has ever been submitted. Without a log it
// always reports true.
func (s *Store) HasLog() bool {
	if s.log == nil {
		return true
	}
	return s.log.Exists()
}

// Recover upserts every logged name that the operation store does not know
// about. Recovered records carry no url and an empty payload. It returns the
// number of records restored.
func (s *Store) Recover(ctx context.Context) (int, error) {
	if s.ops == nil || s.log == nil {
		return 0, fmt.Errorf("recover needs both an operation store and a name log")
	}
	existing, err := s.ops.List(ctx)
	if err != nil {
		return 0, err
	}
	known := mapset.NewThreadUnsafeSet[string]()
	for _, rec := range existing {
		known.Add(rec.Name)
	}

	names, err := s.log.Names(ctx)
	if err != nil {
		return 0, err
	}
	restored := 0
	for _, n := range names {
		if !known.Add(n) {
			continue
		}
		if err := s.ops.Upsert(ctx, n, "", nil); err != nil {
			return restored, err
		}
		restored++
	}
	return restored, nil
}

func (s *Store) Close() error {
	var firstErr error
	if s.log != nil {
		if err := s.log.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.ops != nil {
		if err := s.ops.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
