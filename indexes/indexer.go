package indexes

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drpcorg/feedview/feeds"
	"github.com/drpcorg/feedview/feedview_errors"
	"github.com/drpcorg/feedview/store"
	"github.com/drpcorg/feedview/utils"
	"github.com/puzpuzpuz/xsync/v3"
)

// Observer is called once per indexed record after its batch committed.
type Observer func(rec *feeds.Record)

type Options struct {
	// MaxBatch caps the records per Index call.
	MaxBatch  int
	Validator feeds.Validator
	// Resolver reads records back when a late index is backfilled.
	Resolver feeds.Resolver
	Logger   utils.Logger
}

func (o *Options) SetDefaults() {
	if o.MaxBatch == 0 {
		o.MaxBatch = 100
	}
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelInfo)
	}
}

// Checkpoint is an opaque caller blob committed together with a batch.
type Checkpoint struct {
	Name string
	Blob []byte
}

// Change is one changelog row: the Seq-th record to become indexed.
type Change struct {
	Seq uint64
	Loc feeds.Locator
}

type Indexer struct {
	store    store.Store
	registry *Registry
	opts     Options

	// serializes commits; head and snapshots are taken under it
	lock sync.Mutex
	head atomic.Uint64

	observers  *xsync.MapOf[uint64, Observer]
	observerID atomic.Uint64
	signal     utils.Signal
}

func NewIndexer(st store.Store, registry *Registry, opts Options) (*Indexer, error) {
	opts.SetDefaults()
	ix := &Indexer{
		store:     st,
		registry:  registry,
		opts:      opts,
		observers: xsync.NewMapOf[uint64, Observer](),
	}
	val, err := st.Get(HeadKey)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return nil, err
	case len(val) != 8:
		return nil, errors.Join(feedview_errors.ErrCorruptState, errors.New("bad changelog head"))
	default:
		ix.head.Store(binary.BigEndian.Uint64(val))
	}
	ChangelogHead.Set(float64(ix.head.Load()))
	return ix, nil
}

func (ix *Indexer) Registry() *Registry {
	return ix.registry
}

func (ix *Indexer) MaxBatch() int {
	return ix.opts.MaxBatch
}

// Head is the sequence of the last changelog row.
func (ix *Indexer) Head() uint64 {
	return ix.head.Load()
}

// Index validates the batch, writes entries for every registered index plus
// changelog rows, and commits them as one atomic store batch. Rejected
// records are skipped. Observers run after the commit.
func (ix *Indexer) Index(ctx context.Context, batch []*feeds.Record, cp *Checkpoint) error {
	if len(batch) > ix.opts.MaxBatch {
		return errors.Join(feedview_errors.ErrBatchTooLarge,
			fmt.Errorf("%d records, max %d", len(batch), ix.opts.MaxBatch))
	}
	start := time.Now()
	indexed, err := ix.commit(ctx, batch, cp)
	if err != nil {
		return err
	}
	IndexedBatches.Inc()
	BatchDuration.Observe(time.Since(start).Seconds())
	if len(indexed) == 0 {
		return nil
	}
	ix.observers.Range(func(_ uint64, obs Observer) bool {
		for _, rec := range indexed {
			obs(rec)
		}
		return true
	})
	ix.signal.Broadcast()
	return nil
}

func (ix *Indexer) commit(ctx context.Context, batch []*feeds.Record, cp *Checkpoint) ([]*feeds.Record, error) {
	ix.lock.Lock()
	defer ix.lock.Unlock()

	var (
		b       store.Batch
		indexed []*feeds.Record
		head    = ix.head.Load()
		entries = map[string]int{}
	)
	entryList := ix.registry.All()
	for _, rec := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ix.opts.Validator != nil {
			rec = ix.opts.Validator(rec)
		}
		if rec == nil {
			IndexedRecords.WithLabelValues("rejected").Inc()
			continue
		}
		doc, err := rec.Doc()
		if err != nil {
			IndexedRecords.WithLabelValues("rejected").Inc()
			ix.opts.Logger.DebugCtx(ctx, "record is not a document, skipping", "locator", rec.Locator().String(), "err", err)
			continue
		}
		loc := rec.Locator()
		locBytes := loc.Bytes()
		for _, e := range entryList {
			comp, ok := EncodeComponents(&e.Definition, doc)
			if !ok {
				continue
			}
			b.Set(EntryKey(e.Key, comp, loc), locBytes)
			entries[e.Key]++
		}
		head++
		b.Set(ChangeKey(head), locBytes)
		indexed = append(indexed, rec)
		IndexedRecords.WithLabelValues("indexed").Inc()
	}
	if len(indexed) > 0 {
		b.Set(HeadKey, binary.BigEndian.AppendUint64(nil, head))
	}
	if cp != nil {
		b.Set(StateKey(cp.Name), EncodeCheckpoint(cp.Blob))
	}
	if b.Len() == 0 {
		return nil, nil
	}
	if err := ix.store.Apply(&b); err != nil {
		ix.opts.Logger.ErrorCtx(ctx, "index batch commit failed", "records", len(batch), "err", err)
		return nil, err
	}
	ix.head.Store(head)
	ChangelogHead.Set(float64(head))
	for key, n := range entries {
		IndexEntries.WithLabelValues(key).Add(float64(n))
	}
	return indexed, nil
}

// Snapshot returns a store snapshot and the changelog head it contains.
func (ix *Indexer) Snapshot() (store.Snapshot, uint64) {
	ix.lock.Lock()
	defer ix.lock.Unlock()
	return ix.store.Snapshot(), ix.head.Load()
}

// Changes iterates changelog rows with after < Seq <= upto.
func (ix *Indexer) Changes(r store.Reader, after, upto uint64) iter.Seq2[Change, error] {
	return changes(r, after, upto, false)
}

// ChangesReverse is Changes, newest row first.
func (ix *Indexer) ChangesReverse(r store.Reader, after, upto uint64) iter.Seq2[Change, error] {
	return changes(r, after, upto, true)
}

func changes(r store.Reader, after, upto uint64, reverse bool) iter.Seq2[Change, error] {
	return func(yield func(Change, error) bool) {
		if after >= upto {
			return
		}
		lower, upper := changeRange(after, upto)
		for kv, err := range r.Scan(lower, upper, reverse) {
			if err != nil {
				yield(Change{}, err)
				return
			}
			loc, err := feeds.ParseLocator(kv.Value)
			if err != nil {
				yield(Change{}, errors.Join(feedview_errors.ErrCorruptState, err))
				return
			}
			if !yield(Change{Seq: binary.BigEndian.Uint64(kv.Key[1:]), Loc: loc}, nil) {
				return
			}
		}
	}
}

// Wait returns a channel closed by the next commit that indexed records.
// Take it before checking Head to not miss a wakeup.
func (ix *Indexer) Wait() <-chan struct{} {
	return ix.signal.Wait()
}

func (ix *Indexer) Subscribe(obs Observer) uint64 {
	id := ix.observerID.Add(1)
	ix.observers.Store(id, obs)
	return id
}

func (ix *Indexer) Unsubscribe(id uint64) {
	ix.observers.Delete(id)
}
