package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/roach88/anchorage/internal/kv"
)

// ErrInjected is the error FaultyKV returns for injected failures.
var ErrInjected = errors.New("injected storage failure")

// FaultyKV wraps a kv.Store and fails selected operations on demand.
// It also records the order of Set/Delete/Flush calls.
type FaultyKV struct {
	kv.Store

	mu         sync.Mutex
	failSet    []string
	failFlush  bool
	afterSet   func(key string)
	operations []string
}

// NewFaultyKV wraps inner. A nil inner means a fresh kv.Memory.
func NewFaultyKV(inner kv.Store) *FaultyKV {
	if inner == nil {
		inner = kv.NewMemory()
	}
	return &FaultyKV{Store: inner}
}

// FailSetsContaining makes every Set whose key contains substr fail.
func (f *FaultyKV) FailSetsContaining(substr string) {
	f.mu.Lock()
	f.failSet = append(f.failSet, substr)
	f.mu.Unlock()
}

// AfterSet registers fn to run after every successful Set, with the key.
func (f *FaultyKV) AfterSet(fn func(key string)) {
	f.mu.Lock()
	f.afterSet = fn
	f.mu.Unlock()
}

// FailFlush makes Flush fail.
func (f *FaultyKV) FailFlush(fail bool) {
	f.mu.Lock()
	f.failFlush = fail
	f.mu.Unlock()
}

// Heal clears every injected failure.
func (f *FaultyKV) Heal() {
	f.mu.Lock()
	f.failSet = nil
	f.failFlush = false
	f.mu.Unlock()
}

// Operations returns "set <key>", "delete <key>" and "flush" entries in call
// order, including failed calls.
func (f *FaultyKV) Operations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.operations))
	copy(out, f.operations)
	return out
}

func (f *FaultyKV) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	f.operations = append(f.operations, "set "+key)
	fail := false
	after := f.afterSet
	for _, s := range f.failSet {
		if strings.Contains(key, s) {
			fail = true
			break
		}
	}
	f.mu.Unlock()

	if fail {
		return ErrInjected
	}
	if err := f.Store.Set(ctx, key, value); err != nil {
		return err
	}
	if after != nil {
		after(key)
	}
	return nil
}

func (f *FaultyKV) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	f.operations = append(f.operations, "delete "+key)
	f.mu.Unlock()
	return f.Store.Delete(ctx, key)
}

func (f *FaultyKV) Flush(ctx context.Context) error {
	f.mu.Lock()
	f.operations = append(f.operations, "flush")
	fail := f.failFlush
	f.mu.Unlock()

	if fail {
		return ErrInjected
	}
	return f.Store.Flush(ctx)
}
