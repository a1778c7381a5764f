package feeds

import (
	"context"
	"iter"
	"slices"
	"strings"
	"sync"

	"github.com/drpcorg/feedview/feedview_errors"
)

// MemoryLogs keeps logs in process memory. Used by tests and the REPL.
type MemoryLogs struct {
	lock sync.RWMutex
	logs map[LogID]*memoryLog
}

type memoryLog struct {
	id      LogID
	lock    sync.RWMutex
	records [][]byte
}

func NewMemoryLogs() *MemoryLogs {
	return &MemoryLogs{logs: make(map[LogID]*memoryLog)}
}

func (m *MemoryLogs) Append(ctx context.Context, id LogID, value []byte) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.lock.Lock()
	log, ok := m.logs[id]
	if !ok {
		log = &memoryLog{id: id}
		m.logs[id] = log
	}
	m.lock.Unlock()

	log.lock.Lock()
	defer log.lock.Unlock()
	rec := &Record{Log: id, Seq: uint64(len(log.records)), Value: slices.Clone(value)}
	log.records = append(log.records, rec.Value)
	return rec, nil
}

func (m *MemoryLogs) All() []Log {
	m.lock.RLock()
	defer m.lock.RUnlock()
	all := make([]Log, 0, len(m.logs))
	for _, log := range m.logs {
		all = append(all, log)
	}
	sortLogs(all)
	return all
}

func (m *MemoryLogs) Log(id LogID) (Log, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	log, ok := m.logs[id]
	return log, ok
}

func (l *memoryLog) ID() LogID {
	return l.id
}

func (l *memoryLog) Len() uint64 {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return uint64(len(l.records))
}

func (l *memoryLog) Get(ctx context.Context, seq uint64) (*Record, error) {
	l.lock.RLock()
	defer l.lock.RUnlock()
	if seq >= uint64(len(l.records)) {
		return nil, feedview_errors.ErrRecordNotFound
	}
	return &Record{Log: l.id, Seq: seq, Value: l.records[seq]}, nil
}

func (l *memoryLog) ReadFrom(ctx context.Context, seq uint64) iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		for ; ; seq++ {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			rec, err := l.Get(ctx, seq)
			if err != nil {
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func sortLogs(all []Log) {
	slices.SortFunc(all, func(a, b Log) int {
		return strings.Compare(string(a.ID()), string(b.ID()))
	})
}
