package indexes

import (
	"encoding/binary"
	"errors"

	"github.com/cespare/xxhash/v2"
	"github.com/drpcorg/feedview/feedview_errors"
	"github.com/drpcorg/feedview/protocol"
	"github.com/drpcorg/feedview/store"
)

// EncodeCheckpoint wraps a blob as TLV B<blob> H<xxhash64(blob)>.
func EncodeCheckpoint(blob []byte) []byte {
	sum := binary.BigEndian.AppendUint64(nil, xxhash.Sum64(blob))
	return protocol.Concat(
		protocol.Record('B', blob),
		protocol.Record('H', sum),
	)
}

func DecodeCheckpoint(data []byte) ([]byte, error) {
	blob, rest, err := protocol.TakeWary('B', data)
	if err != nil {
		return nil, errors.Join(feedview_errors.ErrCorruptState, err)
	}
	sum, _, err := protocol.TakeWary('H', rest)
	if err != nil {
		return nil, errors.Join(feedview_errors.ErrCorruptState, err)
	}
	if len(sum) != 8 || binary.BigEndian.Uint64(sum) != xxhash.Sum64(blob) {
		return nil, feedview_errors.ErrCorruptState
	}
	return blob, nil
}

// SaveState stores a checkpoint outside of any index batch.
func (ix *Indexer) SaveState(name string, blob []byte) error {
	ix.lock.Lock()
	defer ix.lock.Unlock()
	var b store.Batch
	b.Set(StateKey(name), EncodeCheckpoint(blob))
	return ix.store.Apply(&b)
}

// LoadState returns the last checkpoint saved under name, nil if none.
func (ix *Indexer) LoadState(name string) ([]byte, error) {
	data, err := ix.store.Get(StateKey(name))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return DecodeCheckpoint(data)
}
