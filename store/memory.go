package store

import (
	"bytes"
	"iter"
	"sync"

	"github.com/google/btree"
)

type item struct {
	key   []byte
	value []byte
}

func itemLess(a, b item) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// Memory is an in-process Store on a copy-on-write btree. Snapshots are
// lazy clones, so taking one is O(1) and never blocks writers for long.
type Memory struct {
	lock sync.RWMutex
	tree *btree.BTreeG[item]
}

func NewMemory() *Memory {
	return &Memory{tree: btree.NewG(32, itemLess)}
}

func (m *Memory) Apply(b *Batch) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	for _, w := range b.writes {
		m.tree.ReplaceOrInsert(item{key: bytes.Clone(w.Key), value: bytes.Clone(w.Value)})
	}
	return nil
}

func (m *Memory) Get(key []byte) ([]byte, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return memGet(m.tree, key)
}

func (m *Memory) Scan(lower, upper []byte, reverse bool) iter.Seq2[KV, error] {
	return func(yield func(KV, error) bool) {
		snap := m.Snapshot()
		defer snap.Close()
		snap.Scan(lower, upper, reverse)(yield)
	}
}

func (m *Memory) Snapshot() Snapshot {
	// Clone touches the copy-on-write state of both trees
	m.lock.Lock()
	defer m.lock.Unlock()
	return memSnapshot{tree: m.tree.Clone()}
}

func (m *Memory) Close() error {
	return nil
}

type memSnapshot struct {
	tree *btree.BTreeG[item]
}

func (s memSnapshot) Get(key []byte) ([]byte, error) {
	return memGet(s.tree, key)
}

func (s memSnapshot) Scan(lower, upper []byte, reverse bool) iter.Seq2[KV, error] {
	return func(yield func(KV, error) bool) {
		visit := func(it item) bool {
			if upper != nil && bytes.Compare(it.key, upper) >= 0 {
				// reverse starts at upper inclusive
				return reverse
			}
			if lower != nil && bytes.Compare(it.key, lower) < 0 {
				return false
			}
			return yield(KV{Key: bytes.Clone(it.key), Value: bytes.Clone(it.value)}, nil)
		}
		switch {
		case reverse && upper == nil:
			s.tree.Descend(visit)
		case reverse:
			s.tree.DescendLessOrEqual(item{key: upper}, visit)
		case lower == nil:
			s.tree.Ascend(visit)
		default:
			s.tree.AscendGreaterOrEqual(item{key: lower}, visit)
		}
	}
}

func (s memSnapshot) Close() error {
	return nil
}

func memGet(tree *btree.BTreeG[item], key []byte) ([]byte, error) {
	it, ok := tree.Get(item{key: key})
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(it.value), nil
}
