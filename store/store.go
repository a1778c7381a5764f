// Package store is the ordered key-value layer under the index engine:
// atomic batches, point reads, bounded scans and consistent snapshots.
package store

import (
	"iter"

	"github.com/drpcorg/feedview/feedview_errors"
)

// ErrNotFound is returned by Get for absent keys.
var ErrNotFound = feedview_errors.ErrNotFound

type KV struct {
	Key   []byte
	Value []byte
}

type Reader interface {
	Get(key []byte) ([]byte, error)
	// Scan yields keys in [lower, upper) ascending, or descending when
	// reverse is set. A nil bound is open. Yielded slices are owned by the
	// caller.
	Scan(lower, upper []byte, reverse bool) iter.Seq2[KV, error]
}

// Snapshot is a point-in-time Reader. It must be closed.
type Snapshot interface {
	Reader
	Close() error
}

type Store interface {
	Reader
	// Apply commits every write of the batch atomically.
	Apply(b *Batch) error
	Snapshot() Snapshot
	Close() error
}

// Batch collects writes for one atomic Apply.
type Batch struct {
	writes []KV
}

func (b *Batch) Set(key, value []byte) {
	b.writes = append(b.writes, KV{Key: key, Value: value})
}

func (b *Batch) Len() int {
	return len(b.writes)
}

func (b *Batch) Reset() {
	b.writes = b.writes[:0]
}
