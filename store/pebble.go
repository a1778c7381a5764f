package store

import (
	"bytes"
	"errors"
	"io"
	"iter"

	"github.com/cockroachdb/pebble"
)

type PebbleOptions struct {
	Pebble pebble.Options
	// defaults to pebble.Sync
	WriteOptions *pebble.WriteOptions
}

type Pebble struct {
	db *pebble.DB
	wo *pebble.WriteOptions
}

type pebbleReader interface {
	Get(key []byte) ([]byte, io.Closer, error)
	NewIter(o *pebble.IterOptions) (*pebble.Iterator, error)
}

func OpenPebble(path string, opts PebbleOptions) (*Pebble, error) {
	db, err := pebble.Open(path, &opts.Pebble)
	if err != nil {
		return nil, err
	}
	return NewPebble(db, opts.WriteOptions), nil
}

func NewPebble(db *pebble.DB, wo *pebble.WriteOptions) *Pebble {
	if wo == nil {
		wo = pebble.Sync
	}
	return &Pebble{db: db, wo: wo}
}

func (p *Pebble) DB() *pebble.DB {
	return p.db
}

func (p *Pebble) Apply(b *Batch) error {
	batch := p.db.NewBatch()
	defer batch.Close()
	for _, w := range b.writes {
		if err := batch.Set(w.Key, w.Value, nil); err != nil {
			return err
		}
	}
	return batch.Commit(p.wo)
}

func (p *Pebble) Get(key []byte) ([]byte, error) {
	return pebbleGet(p.db, key)
}

func (p *Pebble) Scan(lower, upper []byte, reverse bool) iter.Seq2[KV, error] {
	return pebbleScan(p.db, lower, upper, reverse)
}

func (p *Pebble) Snapshot() Snapshot {
	return pebbleSnapshot{p.db.NewSnapshot()}
}

func (p *Pebble) Close() error {
	return p.db.Close()
}

type pebbleSnapshot struct {
	snap *pebble.Snapshot
}

func (s pebbleSnapshot) Get(key []byte) ([]byte, error) {
	return pebbleGet(s.snap, key)
}

func (s pebbleSnapshot) Scan(lower, upper []byte, reverse bool) iter.Seq2[KV, error] {
	return pebbleScan(s.snap, lower, upper, reverse)
}

func (s pebbleSnapshot) Close() error {
	return s.snap.Close()
}

func pebbleGet(r pebbleReader, key []byte) ([]byte, error) {
	val, closer, err := r.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return bytes.Clone(val), nil
}

func pebbleScan(r pebbleReader, lower, upper []byte, reverse bool) iter.Seq2[KV, error] {
	return func(yield func(KV, error) bool) {
		it, err := r.NewIter(&pebble.IterOptions{
			LowerBound: lower,
			UpperBound: upper,
		})
		if err != nil {
			yield(KV{}, err)
			return
		}
		defer it.Close()
		first, next := it.First, it.Next
		if reverse {
			first, next = it.Last, it.Prev
		}
		for valid := first(); valid; valid = next() {
			kv := KV{Key: bytes.Clone(it.Key()), Value: bytes.Clone(it.Value())}
			if !yield(kv, nil) {
				return
			}
		}
		if err := it.Error(); err != nil {
			yield(KV{}, err)
		}
	}
}
