// Package feedview is a materialized secondary-index and query engine over
// append-only logs. A View indexes records into an ordered key-value store,
// plans structured queries against its composite indexes and streams the
// results, optionally continuing live as new records are indexed.
package feedview

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/drpcorg/feedview/feeds"
	"github.com/drpcorg/feedview/feedview_errors"
	"github.com/drpcorg/feedview/indexes"
	"github.com/drpcorg/feedview/query"
	"github.com/drpcorg/feedview/store"
	"github.com/drpcorg/feedview/utils"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
)

type Options struct {
	// Store holds indexes; New defaults it to an in-memory store.
	Store store.Store
	// Open passes these to pebble.
	PebbleOptions store.PebbleOptions

	// Logs are read by full scans and CatchUp.
	Logs feeds.Logs
	// Resolver defaults to feeds.FromLogs(Logs, Validator).
	Resolver  feeds.Resolver
	Validator feeds.Validator
	Matcher   query.Matcher

	Indexes []indexes.Definition
	// RestoreIndexes also registers every index the store holds entries
	// for, ahead of Indexes.
	RestoreIndexes bool

	MaxBatch  int
	CacheSize int
	// Deferred views serve no reads until SetReady.
	Deferred bool

	Logger     utils.Logger
	Registerer prometheus.Registerer
}

func (o *Options) SetDefaults() {
	if o.MaxBatch == 0 {
		o.MaxBatch = 100
	}
	if o.CacheSize == 0 {
		o.CacheSize = 4096
	}
	if o.Matcher == nil {
		o.Matcher = query.DefaultMatcher{}
	}
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelWarn)
	}
	if o.Resolver == nil && o.Logs != nil {
		o.Resolver = feeds.FromLogs(o.Logs, o.Validator)
	}
}

const followState = "$follow"
const userState = "state"

type View struct {
	opts     Options
	store    store.Store
	ownStore bool

	registry *indexes.Registry
	indexer  *indexes.Indexer
	planner  *query.Planner
	cache    *lru.Cache[feeds.Locator, *feeds.Record]

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	closed    atomic.Bool

	// one CatchUp at a time
	follow sync.Mutex
}

// Open creates a view persisting its indexes in a pebble database at dirname.
func Open(dirname string, opts Options) (*View, error) {
	st, err := store.OpenPebble(dirname, opts.PebbleOptions)
	if err != nil {
		return nil, err
	}
	opts.Store = st
	v, err := New(opts)
	if err != nil {
		st.Close()
		return nil, err
	}
	v.ownStore = true
	return v, nil
}

func New(opts Options) (*View, error) {
	opts.SetDefaults()
	if opts.Store == nil {
		opts.Store = store.NewMemory()
	}
	registry := indexes.NewRegistry()
	indexer, err := indexes.NewIndexer(opts.Store, registry, indexes.Options{
		MaxBatch:  opts.MaxBatch,
		Validator: opts.Validator,
		Resolver:  opts.Resolver,
		Logger:    opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	defs := opts.Indexes
	if opts.RestoreIndexes {
		stored, err := indexer.Definitions()
		if err != nil {
			return nil, err
		}
		defs = mergeDefinitions(stored, opts.Indexes)
	}
	// indexes new to a non-empty store are backfilled here
	for _, def := range defs {
		if err := indexer.AddIndex(context.Background(), def); err != nil {
			return nil, err
		}
	}
	cache, err := lru.New[feeds.Locator, *feeds.Record](opts.CacheSize)
	if err != nil {
		return nil, err
	}
	v := &View{
		opts:     opts,
		store:    opts.Store,
		registry: registry,
		indexer:  indexer,
		planner:  query.NewPlanner(registry),
		cache:    cache,
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	if !opts.Deferred {
		v.SetReady()
	}
	if opts.Registerer != nil {
		if err := v.registerMetrics(opts.Registerer); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// mergeDefinitions keeps stored order; a configured definition replaces the
// stored one of the same key so AddIndex can check they agree.
func mergeDefinitions(stored, configured []indexes.Definition) []indexes.Definition {
	out := slices.Clone(stored)
	for _, def := range configured {
		i := slices.IndexFunc(out, func(sd indexes.Definition) bool { return sd.Key == def.Key })
		if i < 0 {
			out = append(out, def)
		} else {
			out[i] = def
		}
	}
	return out
}

func (v *View) Close() error {
	if !v.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(v.done)
	if v.ownStore {
		return v.store.Close()
	}
	return nil
}

// SetReady releases reads waiting on a Deferred view.
func (v *View) SetReady() {
	v.readyOnce.Do(func() { close(v.ready) })
}

func (v *View) waitReady(ctx context.Context) error {
	select {
	case <-v.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-v.done:
		return feedview_errors.ErrClosed
	}
}

// RegisterIndex adds an index at runtime. Already indexed records are
// backfilled before the index is used for planning.
func (v *View) RegisterIndex(ctx context.Context, def indexes.Definition) error {
	if v.closed.Load() {
		return feedview_errors.ErrClosed
	}
	return v.indexer.AddIndex(ctx, def)
}

func (v *View) Indexes() []*indexes.Entry {
	return v.registry.All()
}

// Index is the map stage: it indexes one batch atomically. A non-nil state
// is committed with it and returned by LoadState.
func (v *View) Index(ctx context.Context, batch []*feeds.Record, state []byte) error {
	if v.closed.Load() {
		return feedview_errors.ErrClosed
	}
	var cp *indexes.Checkpoint
	if state != nil {
		cp = &indexes.Checkpoint{Name: userState, Blob: state}
	}
	return v.indexer.Index(ctx, batch, cp)
}

func (v *View) Explain(q *query.Query, opts query.Options) *query.Plan {
	return v.planner.Explain(q, opts)
}

// Subscribe calls obs for every record after its batch is committed.
func (v *View) Subscribe(obs indexes.Observer) uint64 {
	return v.indexer.Subscribe(obs)
}

func (v *View) Unsubscribe(id uint64) {
	v.indexer.Unsubscribe(id)
}

func (v *View) SaveState(blob []byte) error {
	return v.indexer.SaveState(userState, blob)
}

// LoadState returns the last saved state blob, nil if there is none.
func (v *View) LoadState() ([]byte, error) {
	return v.indexer.LoadState(userState)
}

func (v *View) registerMetrics(reg prometheus.Registerer) error {
	collectors := append(indexes.Collectors(), Collectors()...)
	if p, ok := v.store.(*store.Pebble); ok {
		collectors = append(collectors, store.NewPebbleCollector(p))
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}
