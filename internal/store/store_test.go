package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/anchorage/internal/anchorid"
	"github.com/roach88/anchorage/internal/ar"
	"github.com/roach88/anchorage/internal/kv"
	"github.com/roach88/anchorage/internal/testutil"
)

func id(n int) anchorid.ID {
	return anchorid.Derive("store-test", fmt.Sprint(n))
}

func TestCount_EmptyStore(t *testing.T) {
	s := New(kv.NewMemory())

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAppend_MonotonicIndex(t *testing.T) {
	ctx := context.Background()
	s := New(kv.NewMemory())

	for i := 0; i < 5; i++ {
		before, err := s.Count(ctx)
		require.NoError(t, err)

		index, err := s.Append(ctx, id(i), nil)
		require.NoError(t, err)
		assert.Equal(t, before, index, "new record goes at the pre-call count")

		after, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, before+1, after)
	}
}

func TestAppend_GetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(kv.NewMemory())

	fb := &ar.Vec3{X: 1.5, Y: -0.25, Z: 3}
	_, err := s.Append(ctx, id(0), fb)
	require.NoError(t, err)
	_, err = s.Append(ctx, id(1), nil)
	require.NoError(t, err)

	r0, err := s.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), r0.Index)
	assert.Equal(t, id(0), r0.ID)
	require.NotNil(t, r0.Fallback)
	assert.Equal(t, *fb, *r0.Fallback)
	assert.False(t, r0.Legacy)

	r1, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, id(1), r1.ID)
	assert.Nil(t, r1.Fallback)
}

func TestAppend_CommitOrder(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewFaultyKV(nil)
	s := New(f)

	_, err := s.Append(ctx, id(0), &ar.Vec3{X: 1, Y: 2, Z: 3})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"set anchor_guid_0",
		"set anchor_fallback_x_0",
		"set anchor_fallback_y_0",
		"set anchor_fallback_z_0",
		"set anchor_count",
		"flush",
	}, f.Operations())
}

func TestAppend_FailureLeavesCountUnchanged(t *testing.T) {
	cases := map[string]func(f *testutil.FaultyKV){
		"identifier": func(f *testutil.FaultyKV) { f.FailSetsContaining("anchor_guid_") },
		"fallback":   func(f *testutil.FaultyKV) { f.FailSetsContaining("anchor_fallback_y_") },
		"counter":    func(f *testutil.FaultyKV) { f.FailSetsContaining("anchor_count") },
		"flush":      func(f *testutil.FaultyKV) { f.FailFlush(true) },
	}

	for name, inject := range cases {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			f := testutil.NewFaultyKV(nil)
			s := New(f)

			_, err := s.Append(ctx, id(0), nil)
			require.NoError(t, err)

			inject(f)
			_, err = s.Append(ctx, id(1), &ar.Vec3{X: 1})
			assert.ErrorIs(t, err, ErrStorageUnavailable)

			n, err := s.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, uint64(1), n)

			_, err = s.Get(ctx, 1)
			assert.ErrorIs(t, err, ErrNotFound, "partial record stays invisible")

			// The slot is reused once storage recovers.
			f.Heal()
			index, err := s.Append(ctx, id(2), nil)
			require.NoError(t, err)
			assert.Equal(t, uint64(1), index)

			rec, err := s.Get(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, id(2), rec.ID)
			assert.Nil(t, rec.Fallback, "leftover fallback from the failed append must be cleared")
		})
	}
}

func TestAppend_FirstRecordFlushFailureRemovesCounter(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	f := testutil.NewFaultyKV(mem)
	f.FailFlush(true)
	s := New(f)

	_, err := s.Append(ctx, id(0), nil)
	require.ErrorIs(t, err, ErrStorageUnavailable)

	_, ok := mem.Snapshot()["anchor_count"]
	assert.False(t, ok)
}

func TestAppend_ConcurrentCallersGetDistinctIndices(t *testing.T) {
	ctx := context.Background()
	s := New(kv.NewMemory())

	const n = 32
	indices := make([]uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			index, err := s.Append(ctx, id(i), nil)
			assert.NoError(t, err)
			indices[i] = index
		}(i)
	}
	wg.Wait()

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(n), count)

	seen := map[uint64]bool{}
	for _, index := range indices {
		assert.False(t, seen[index], "index %d handed out twice", index)
		seen[index] = true
	}
}

func TestGet_OutOfRange(t *testing.T) {
	ctx := context.Background()
	s := New(kv.NewMemory())
	_, err := s.Append(ctx, id(0), nil)
	require.NoError(t, err)

	_, err = s.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, 100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGet_LegacyHalves(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	want := anchorid.FromHalves(12345678901234567890, 42)

	require.NoError(t, mem.Set(ctx, "anchor_guid_low_0", "12345678901234567890"))
	require.NoError(t, mem.Set(ctx, "anchor_guid_high_0", "42"))
	require.NoError(t, mem.Set(ctx, "anchor_count", "1"))

	rec, err := New(mem).Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, want, rec.ID)
	assert.True(t, rec.Legacy)
}

func TestAppendLegacy_ReadsBack(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	s := New(mem)

	_, err := s.AppendLegacy(ctx, id(7), nil)
	require.NoError(t, err)

	snap := mem.Snapshot()
	assert.Contains(t, snap, "anchor_guid_low_0")
	assert.Contains(t, snap, "anchor_guid_high_0")
	assert.NotContains(t, snap, "anchor_guid_0")

	rec, err := s.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, id(7), rec.ID)
	assert.True(t, rec.Legacy)
}

func TestAppendLegacy_ClearsLeftoverCanonicalID(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewFaultyKV(nil)
	s := New(f)

	f.FailSetsContaining("anchor_fallback")
	_, err := s.Append(ctx, anchorid.FromHalves(1, 2), &ar.Vec3{X: 1})
	require.ErrorIs(t, err, ErrStorageUnavailable)

	f.Heal()
	index, err := s.AppendLegacy(ctx, anchorid.FromHalves(3, 4), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), index)

	rec, err := s.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, anchorid.FromHalves(3, 4), rec.ID)
	assert.True(t, rec.Legacy)
}

func TestGet_CanonicalWinsOverLegacy(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	require.NoError(t, mem.Set(ctx, "anchor_guid_0", id(1).String()))
	require.NoError(t, mem.Set(ctx, "anchor_guid_low_0", "1"))
	require.NoError(t, mem.Set(ctx, "anchor_guid_high_0", "2"))
	require.NoError(t, mem.Set(ctx, "anchor_count", "1"))

	rec, err := New(mem).Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, id(1), rec.ID)
	assert.False(t, rec.Legacy)
}

func TestGet_CorruptRecords(t *testing.T) {
	cases := []struct {
		name    string
		entries map[string]string
		want    error
	}{
		{
			name:    "no identifier",
			entries: map[string]string{},
			want:    ErrNotFound,
		},
		{
			name:    "legacy low only",
			entries: map[string]string{"anchor_guid_low_0": "1"},
			want:    ErrNotFound,
		},
		{
			name:    "legacy high only",
			entries: map[string]string{"anchor_guid_high_0": "1"},
			want:    ErrNotFound,
		},
		{
			name:    "malformed canonical",
			entries: map[string]string{"anchor_guid_0": "not-a-guid"},
			want:    anchorid.ErrMalformed,
		},
		{
			name:    "malformed legacy",
			entries: map[string]string{"anchor_guid_low_0": "abc", "anchor_guid_high_0": "1"},
			want:    anchorid.ErrMalformed,
		},
		{
			name: "partial fallback",
			entries: map[string]string{
				"anchor_guid_0":       id(0).String(),
				"anchor_fallback_x_0": "1",
				"anchor_fallback_y_0": "2",
			},
			want: ErrNotFound,
		},
		{
			name: "non-numeric fallback",
			entries: map[string]string{
				"anchor_guid_0":       id(0).String(),
				"anchor_fallback_x_0": "1",
				"anchor_fallback_y_0": "up",
				"anchor_fallback_z_0": "3",
			},
			want: ErrNotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			mem := kv.NewMemory()
			for k, v := range tc.entries {
				require.NoError(t, mem.Set(ctx, k, v))
			}
			require.NoError(t, mem.Set(ctx, "anchor_count", "1"))

			_, err := New(mem).Get(ctx, 0)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCount_InvalidValue(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	require.NoError(t, mem.Set(ctx, "anchor_count", "two"))

	_, err := New(mem).Count(ctx)
	assert.ErrorContains(t, err, "invalid")
}

func TestNamespace_IsolatesKeyFamilies(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()

	kitchen := New(mem, WithNamespace("kitchen"))
	garage := New(mem, WithNamespace("garage"))

	_, err := kitchen.Append(ctx, id(0), nil)
	require.NoError(t, err)

	n, err := garage.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Contains(t, mem.Snapshot(), "kitchen/anchor_count")
}

func TestNamespace_NormalizedToNFC(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()

	composed := New(mem, WithNamespace("caf\u00e9"))
	decomposed := New(mem, WithNamespace("cafe\u0301"))

	_, err := composed.Append(ctx, id(0), nil)
	require.NoError(t, err)

	n, err := decomposed.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestList_ReportsPerSlotErrors(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	s := New(mem)

	for i := 0; i < 3; i++ {
		_, err := s.Append(ctx, id(i), nil)
		require.NoError(t, err)
	}
	require.NoError(t, mem.Set(ctx, "anchor_guid_1", "garbage"))

	entries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.NotNil(t, entries[0].Record)
	assert.ErrorIs(t, entries[1].Err, anchorid.ErrMalformed)
	assert.Nil(t, entries[1].Record)
	assert.NotNil(t, entries[2].Record)
}

func TestStore_DurableAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "anchors.db")

	backend, err := kv.OpenSQLite(path)
	require.NoError(t, err)
	s := New(backend)
	_, err = s.Append(ctx, id(0), &ar.Vec3{X: 1, Y: 2, Z: 3})
	require.NoError(t, err)
	_, err = s.Append(ctx, id(1), nil)
	require.NoError(t, err)
	require.NoError(t, backend.Close())

	backend, err = kv.OpenSQLite(path)
	require.NoError(t, err)
	defer backend.Close()
	s = New(backend)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	rec, err := s.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, id(0), rec.ID)
	assert.Equal(t, &ar.Vec3{X: 1, Y: 2, Z: 3}, rec.Fallback)
}

func TestAppend_CancelledMidAppendThenRetry(t *testing.T) {
	backend, err := kv.OpenSQLite(filepath.Join(t.TempDir(), "anchors.db"))
	require.NoError(t, err)
	defer backend.Close()

	f := testutil.NewFaultyKV(backend)
	s := New(f)

	reqCtx, cancel := context.WithCancel(t.Context())
	f.AfterSet(func(key string) {
		if strings.HasPrefix(key, "anchor_guid_") {
			cancel()
		}
	})
	_, err = s.Append(reqCtx, id(0), &ar.Vec3{X: 1})
	require.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorIs(t, err, context.Canceled)

	f.AfterSet(nil)
	ctx := t.Context()
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	for i := 1; i <= 2; i++ {
		index, err := s.Append(ctx, id(i), nil)
		require.NoError(t, err)
		assert.Equal(t, uint64(i-1), index)
	}

	rec, err := s.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, id(1), rec.ID)
	assert.Nil(t, rec.Fallback)
}
