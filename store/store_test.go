package store

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	p, err := OpenPebble("idx", PebbleOptions{Pebble: pebble.Options{FS: vfs.NewMem()}})
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return map[string]Store{
		"pebble": p,
		"memory": NewMemory(),
	}
}

func scanKeys(t *testing.T, r Reader, lower, upper []byte, reverse bool) []string {
	var out []string
	for kv, err := range r.Scan(lower, upper, reverse) {
		require.NoError(t, err)
		out = append(out, string(kv.Key))
	}
	return out
}

func TestStores(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var b Batch
			for i := 0; i < 5; i++ {
				b.Set([]byte(fmt.Sprintf("k%d", i)), []byte(fmt.Sprintf("v%d", i)))
			}
			require.Equal(t, 5, b.Len())
			require.NoError(t, s.Apply(&b))

			val, err := s.Get([]byte("k3"))
			require.NoError(t, err)
			assert.Equal(t, "v3", string(val))
			_, err = s.Get([]byte("k9"))
			assert.ErrorIs(t, err, ErrNotFound)

			assert.Equal(t, []string{"k1", "k2", "k3"}, scanKeys(t, s, []byte("k1"), []byte("k4"), false))
			assert.Equal(t, []string{"k3", "k2", "k1"}, scanKeys(t, s, []byte("k1"), []byte("k4"), true))
			assert.Equal(t, []string{"k0", "k1"}, scanKeys(t, s, nil, []byte("k2"), false))
			assert.Equal(t, []string{"k4", "k3"}, scanKeys(t, s, []byte("k3"), nil, true))
			assert.Len(t, scanKeys(t, s, nil, nil, true), 5)
			assert.Empty(t, scanKeys(t, s, []byte("k2"), []byte("k2"), false))
		})
	}
}

func TestSnapshotIsolation(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var b Batch
			b.Set([]byte("a"), []byte("1"))
			require.NoError(t, s.Apply(&b))

			snap := s.Snapshot()
			defer snap.Close()

			b.Reset()
			b.Set([]byte("a"), []byte("2"))
			b.Set([]byte("b"), []byte("2"))
			require.NoError(t, s.Apply(&b))

			val, err := snap.Get([]byte("a"))
			require.NoError(t, err)
			assert.Equal(t, "1", string(val))
			assert.Equal(t, []string{"a"}, scanKeys(t, snap, nil, nil, false))

			val, err = s.Get([]byte("a"))
			require.NoError(t, err)
			assert.Equal(t, "2", string(val))
			assert.Equal(t, []string{"a", "b"}, scanKeys(t, s, nil, nil, false))
		})
	}
}

func TestScanStopsEarly(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var b Batch
			for i := 0; i < 10; i++ {
				b.Set([]byte{byte('a' + i)}, nil)
			}
			require.NoError(t, s.Apply(&b))
			n := 0
			for range s.Scan(nil, nil, false) {
				n++
				if n == 3 {
					break
				}
			}
			assert.Equal(t, 3, n)
		})
	}
}

func TestPebbleCollector(t *testing.T) {
	p, err := OpenPebble("idx", PebbleOptions{Pebble: pebble.Options{FS: vfs.NewMem()}})
	require.NoError(t, err)
	defer p.Close()

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewPebbleCollector(p)))
	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 11, n)
}
