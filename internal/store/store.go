package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/roach88/anchorage/internal/anchorid"
	"github.com/roach88/anchorage/internal/ar"
	"github.com/roach88/anchorage/internal/kv"
)

var (
	// ErrNotFound is returned by Get when the index is out of range or the
	// record's fields are absent or incomplete.
	ErrNotFound = errors.New("anchor record not found")

	// ErrStorageUnavailable is returned by Append when the backing store
	// could not be written. Count is unchanged.
	ErrStorageUnavailable = errors.New("anchor storage unavailable")
)

// Record is one committed anchor.
type Record struct {
	Index    uint64
	ID       anchorid.ID
	Fallback *ar.Vec3

	// Legacy is true when the identifier was read from the dual-field form.
	Legacy bool
}

// Entry is one slot of a List snapshot. Exactly one of Record and Err is set.
type Entry struct {
	Index  uint64
	Record *Record
	Err    error
}

// Store is the anchor record store.
type Store struct {
	kv   kv.Store
	keys keySpace

	// mu serializes Append so read-count/write-record/write-count never
	// interleaves between callers.
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithNamespace prefixes every key with ns + "/".
func WithNamespace(ns string) Option {
	return func(s *Store) {
		s.keys = newKeySpace(ns)
	}
}

// New returns a Store over backend. The Store does not own backend.
func New(backend kv.Store, opts ...Option) *Store {
	s := &Store{kv: backend}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Count returns the number of committed records.
func (s *Store) Count(ctx context.Context) (uint64, error) {
	raw, ok, err := s.kv.Get(ctx, s.keys.count())
	if err != nil {
		return 0, fmt.Errorf("count: %w: %w", ErrStorageUnavailable, err)
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("count: invalid %s value %q: %w", s.keys.count(), raw, err)
	}
	return n, nil
}

// Get returns the record at index.
//
// The canonical identifier field wins over the legacy halves when both are
// present.
func (s *Store) Get(ctx context.Context, index uint64) (Record, error) {
	count, err := s.Count(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("get %d: %w", index, err)
	}
	if index >= count {
		return Record{}, fmt.Errorf("get %d: %w: index out of range (count=%d)", index, ErrNotFound, count)
	}

	rec := Record{Index: index}

	rec.ID, rec.Legacy, err = s.readID(ctx, index)
	if err != nil {
		return Record{}, fmt.Errorf("get %d: %w", index, err)
	}

	rec.Fallback, err = s.readFallback(ctx, index)
	if err != nil {
		return Record{}, fmt.Errorf("get %d: %w", index, err)
	}

	return rec, nil
}

func (s *Store) readID(ctx context.Context, index uint64) (anchorid.ID, bool, error) {
	text, ok, err := s.kv.Get(ctx, s.keys.guid(index))
	if err != nil {
		return anchorid.Zero, false, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if ok {
		id, err := anchorid.Decode(text)
		return id, false, err
	}

	low, okLow, err := s.kv.Get(ctx, s.keys.guidLow(index))
	if err != nil {
		return anchorid.Zero, false, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	high, okHigh, err := s.kv.Get(ctx, s.keys.guidHigh(index))
	if err != nil {
		return anchorid.Zero, false, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	switch {
	case okLow && okHigh:
		id, err := anchorid.DecodeHalves(low, high)
		return id, true, err
	case okLow || okHigh:
		return anchorid.Zero, false, fmt.Errorf("%w: legacy identifier is missing a companion field", ErrNotFound)
	default:
		return anchorid.Zero, false, fmt.Errorf("%w: no identifier stored", ErrNotFound)
	}
}

// readFallback returns nil when no fallback fields are stored. A partial or
// unparseable triple makes the record corrupt.
func (s *Store) readFallback(ctx context.Context, index uint64) (*ar.Vec3, error) {
	var (
		vals    [3]float64
		present int
	)
	for i, key := range s.keys.fallback(index) {
		raw, ok, err := s.kv.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}
		if !ok {
			continue
		}
		present++
		vals[i], err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: fallback field %s=%q is not a number", ErrNotFound, key, raw)
		}
	}

	switch present {
	case 0:
		return nil, nil
	case 3:
		return &ar.Vec3{X: vals[0], Y: vals[1], Z: vals[2]}, nil
	default:
		return nil, fmt.Errorf("%w: fallback coordinate is missing a companion field", ErrNotFound)
	}
}

// Append commits a new record at index Count and returns that index.
func (s *Store) Append(ctx context.Context, id anchorid.ID, fallback *ar.Vec3) (uint64, error) {
	return s.append(ctx, fallback, func(index uint64) error {
		return s.kv.Set(ctx, s.keys.guid(index), anchorid.Encode(id))
	})
}

// AppendLegacy commits a record in the pre-canonical dual-field layout.
// Only migration tooling and compatibility tests write this form.
func (s *Store) AppendLegacy(ctx context.Context, id anchorid.ID, fallback *ar.Vec3) (uint64, error) {
	return s.append(ctx, fallback, func(index uint64) error {
		// A canonical identifier left by an earlier failed Append would
		// shadow the halves.
		if err := s.kv.Delete(ctx, s.keys.guid(index)); err != nil {
			return err
		}
		low, high := anchorid.EncodeHalves(id)
		if err := s.kv.Set(ctx, s.keys.guidLow(index), low); err != nil {
			return err
		}
		return s.kv.Set(ctx, s.keys.guidHigh(index), high)
	})
}

func (s *Store) append(ctx context.Context, fallback *ar.Vec3, writeID func(index uint64) error) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevRaw, hadCount, err := s.kv.Get(ctx, s.keys.count())
	if err != nil {
		return 0, fmt.Errorf("append: %w: %w", ErrStorageUnavailable, err)
	}
	index, err := s.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("append: %w", err)
	}

	// Identifier, then fallback, then the counter. Anything written before a
	// failure sits beyond Count and is overwritten by the next Append.
	if err := writeID(index); err != nil {
		return 0, fmt.Errorf("append %d: identifier: %w: %w", index, ErrStorageUnavailable, err)
	}
	if err := s.writeFallback(ctx, index, fallback); err != nil {
		return 0, fmt.Errorf("append %d: fallback: %w: %w", index, ErrStorageUnavailable, err)
	}
	if err := s.kv.Set(ctx, s.keys.count(), strconv.FormatUint(index+1, 10)); err != nil {
		return 0, fmt.Errorf("append %d: count: %w: %w", index, ErrStorageUnavailable, err)
	}

	if err := s.kv.Flush(ctx); err != nil {
		s.restoreCount(ctx, prevRaw, hadCount)
		return 0, fmt.Errorf("append %d: flush: %w: %w", index, ErrStorageUnavailable, err)
	}

	return index, nil
}

// writeFallback writes the triple, or clears leftovers from an earlier
// uncommitted append at the same index when fallback is nil.
func (s *Store) writeFallback(ctx context.Context, index uint64, fallback *ar.Vec3) error {
	keys := s.keys.fallback(index)
	if fallback == nil {
		for _, key := range keys {
			if err := s.kv.Delete(ctx, key); err != nil {
				return err
			}
		}
		return nil
	}

	vals := [3]float64{fallback.X, fallback.Y, fallback.Z}
	for i, key := range keys {
		if err := s.kv.Set(ctx, key, strconv.FormatFloat(vals[i], 'g', -1, 64)); err != nil {
			return err
		}
	}
	return nil
}

// restoreCount puts the counter back after a failed flush so the in-memory
// view of buffered backends does not run ahead of what is durable.
func (s *Store) restoreCount(ctx context.Context, prevRaw string, hadCount bool) {
	if hadCount {
		_ = s.kv.Set(ctx, s.keys.count(), prevRaw)
		return
	}
	_ = s.kv.Delete(ctx, s.keys.count())
}

// List returns every slot in 0..Count with its record or error.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	count, err := s.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}

	entries := make([]Entry, 0, count)
	for i := uint64(0); i < count; i++ {
		rec, err := s.Get(ctx, i)
		if err != nil {
			entries = append(entries, Entry{Index: i, Err: err})
			continue
		}
		entries = append(entries, Entry{Index: i, Record: &rec})
	}
	return entries, nil
}
