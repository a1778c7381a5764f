package indexes

import (
	"context"
	"errors"
	"time"

	"github.com/drpcorg/feedview/store"
	"github.com/drpcorg/feedview/utils"
)

var ErrNoResolver = errors.New("feedview: late index registration needs a resolver")

// AddIndex registers def on a running indexer. Records committed from now on
// are indexed inline; everything already in the changelog is backfilled
// from a snapshot through the Resolver. The index is not Ready, and so not
// used by the planner, until the backfill completes. An index the store
// already holds complete entries for is ready at once.
func (ix *Indexer) AddIndex(ctx context.Context, def Definition) error {
	ix.lock.Lock()
	stored, err := loadDefinitions(ix.store)
	if err != nil {
		ix.lock.Unlock()
		return err
	}
	sd, complete, err := recorded(stored, &def)
	if err != nil {
		ix.lock.Unlock()
		return err
	}
	head := ix.head.Load()
	if !complete && head > 0 && ix.opts.Resolver == nil {
		ix.lock.Unlock()
		return ErrNoResolver
	}
	if err := ix.registry.register(def, complete); err != nil {
		ix.lock.Unlock()
		return err
	}
	if complete {
		ix.lock.Unlock()
		return nil
	}
	if head == 0 {
		// nothing to backfill; later commits index it inline
		var b store.Batch
		b.Set(DefinitionKey(def.Key), sd.bytes())
		err := ix.store.Apply(&b)
		ix.lock.Unlock()
		if err != nil {
			return err
		}
		ix.registry.markReady(def.Key)
		return nil
	}
	snap := ix.store.Snapshot()
	ix.lock.Unlock()
	defer snap.Close()

	start := time.Now()
	ReindexCount.WithLabelValues(def.Key).Inc()
	ctx = utils.WithDefaultArgs(ctx, "index", def.Key, "process", "reindex")
	ix.opts.Logger.InfoCtx(ctx, "backfilling late index", "changes", head)

	var (
		b       store.Batch
		entries int
	)
	flush := func() error {
		if b.Len() == 0 {
			return nil
		}
		if err := ix.store.Apply(&b); err != nil {
			return err
		}
		b.Reset()
		return nil
	}
	for ch, err := range ix.Changes(snap, 0, head) {
		if err != nil {
			ReindexResults.WithLabelValues(def.Key, "error", "fail_to_read_changelog").Inc()
			ix.opts.Logger.ErrorCtx(ctx, "failed to read changelog", "err", err)
			return err
		}
		if ctx.Err() != nil {
			ReindexResults.WithLabelValues(def.Key, "cancelled", "cancelled").Inc()
			return ctx.Err()
		}
		rec, err := ix.opts.Resolver.Resolve(ctx, ch.Loc)
		if err != nil {
			ReindexResults.WithLabelValues(def.Key, "skipped", "fail_to_resolve").Inc()
			ix.opts.Logger.DebugCtx(ctx, "changelog record unavailable", "locator", ch.Loc.String(), "err", err)
			continue
		}
		doc, err := rec.Doc()
		if err != nil {
			continue
		}
		comp, ok := EncodeComponents(&def, doc)
		if !ok {
			continue
		}
		b.Set(EntryKey(def.Key, comp, ch.Loc), ch.Loc.Bytes())
		entries++
		if b.Len() >= ix.opts.MaxBatch {
			if err := flush(); err != nil {
				ReindexResults.WithLabelValues(def.Key, "error", "fail_to_write_entries").Inc()
				ix.opts.Logger.ErrorCtx(ctx, "failed to write backfilled entries", "err", err)
				return err
			}
		}
	}
	b.Set(DefinitionKey(def.Key), sd.bytes())
	if err := flush(); err != nil {
		ReindexResults.WithLabelValues(def.Key, "error", "fail_to_write_entries").Inc()
		ix.opts.Logger.ErrorCtx(ctx, "failed to write backfilled entries", "err", err)
		return err
	}
	ix.registry.markReady(def.Key)
	IndexEntries.WithLabelValues(def.Key).Add(float64(entries))
	ReindexResults.WithLabelValues(def.Key, "success", "reindexed").Inc()
	ReindexDuration.WithLabelValues(def.Key).Observe(time.Since(start).Seconds())
	ix.opts.Logger.InfoCtx(ctx, "late index ready", "entries", entries)
	return nil
}
