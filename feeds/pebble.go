package feeds

import (
	"context"
	"encoding/binary"
	"errors"
	"iter"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/drpcorg/feedview/feedview_errors"
	"github.com/drpcorg/feedview/keys"
	"github.com/klauspost/compress/zstd"
)

// PebbleLogs stores logs in a pebble database, payloads zstd-compressed.
//
//	'F' enc(log) u64be(seq) -> zstd(value)
//	'N' enc(log)            -> u64be(len)
type PebbleLogs struct {
	db   *pebble.DB
	enc  *zstd.Encoder
	dec  *zstd.Decoder
	lock sync.Mutex
	lens map[LogID]uint64
}

type pebbleLog struct {
	id LogID
	pl *PebbleLogs
}

func recordKey(id LogID, seq uint64) []byte {
	key := keys.AppendString([]byte{'F'}, string(id))
	return binary.BigEndian.AppendUint64(key, seq)
}

func lenKey(id LogID) []byte {
	return keys.AppendString([]byte{'N'}, string(id))
}

func OpenPebbleLogs(path string, opts *pebble.Options) (*PebbleLogs, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}
	pl, err := newPebbleLogs(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return pl, nil
}

func newPebbleLogs(db *pebble.DB) (*PebbleLogs, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	pl := &PebbleLogs{db: db, enc: enc, dec: dec, lens: make(map[LogID]uint64)}
	it, err := db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{'N'},
		UpperBound: []byte{'O'},
	})
	if err != nil {
		return nil, err
	}
	defer it.Close()
	for valid := it.First(); valid; valid = it.Next() {
		id, _, ok := keys.DecodeString(it.Key()[1:])
		if !ok || len(it.Value()) != 8 {
			return nil, errors.New("bad log length row")
		}
		pl.lens[LogID(id)] = binary.BigEndian.Uint64(it.Value())
	}
	return pl, it.Error()
}

func (p *PebbleLogs) Append(ctx context.Context, id LogID, value []byte) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	seq := p.lens[id]
	batch := p.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(recordKey(id, seq), p.enc.EncodeAll(value, nil), nil); err != nil {
		return nil, err
	}
	if err := batch.Set(lenKey(id), binary.BigEndian.AppendUint64(nil, seq+1), nil); err != nil {
		return nil, err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return nil, err
	}
	p.lens[id] = seq + 1
	return &Record{Log: id, Seq: seq, Value: value}, nil
}

func (p *PebbleLogs) All() []Log {
	p.lock.Lock()
	defer p.lock.Unlock()
	all := make([]Log, 0, len(p.lens))
	for id := range p.lens {
		all = append(all, pebbleLog{id: id, pl: p})
	}
	sortLogs(all)
	return all
}

func (p *PebbleLogs) Log(id LogID) (Log, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	_, ok := p.lens[id]
	return pebbleLog{id: id, pl: p}, ok
}

func (p *PebbleLogs) Close() error {
	p.enc.Close()
	p.dec.Close()
	return p.db.Close()
}

func (l pebbleLog) ID() LogID {
	return l.id
}

func (l pebbleLog) Len() uint64 {
	l.pl.lock.Lock()
	defer l.pl.lock.Unlock()
	return l.pl.lens[l.id]
}

func (l pebbleLog) Get(ctx context.Context, seq uint64) (*Record, error) {
	val, closer, err := l.pl.db.Get(recordKey(l.id, seq))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, feedview_errors.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	value, err := l.pl.dec.DecodeAll(val, nil)
	if err != nil {
		return nil, err
	}
	return &Record{Log: l.id, Seq: seq, Value: value}, nil
}

func (l pebbleLog) ReadFrom(ctx context.Context, seq uint64) iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		prefix := keys.AppendString([]byte{'F'}, string(l.id))
		it, err := l.pl.db.NewIter(&pebble.IterOptions{
			LowerBound: recordKey(l.id, seq),
			UpperBound: keys.PrefixEnd(prefix),
		})
		if err != nil {
			yield(nil, err)
			return
		}
		defer it.Close()
		for valid := it.First(); valid; valid = it.Next() {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			value, err := l.pl.dec.DecodeAll(it.Value(), nil)
			if err != nil {
				yield(nil, err)
				return
			}
			rec := &Record{Log: l.id, Seq: binary.BigEndian.Uint64(it.Key()[len(prefix):]), Value: value}
			if !yield(rec, nil) {
				return
			}
		}
		if err := it.Error(); err != nil {
			yield(nil, err)
		}
	}
}
