package feedview

import (
	"context"

	"github.com/drpcorg/feedview/feedview_errors"
	"github.com/drpcorg/feedview/indexes"
	"github.com/drpcorg/feedview/query"
	"github.com/drpcorg/feedview/utils"
	"github.com/google/uuid"
)

// live runs the backfill (when the plan asks for old records) on a
// snapshot, emits the sync marker and then tails the changelog from the
// snapshot head. Nothing indexed after the snapshot is missed, nothing
// before it is repeated.
func (v *View) live(ctx context.Context, plan *query.Plan, out *sink) {
	id, err := uuid.NewV7()
	if err != nil {
		out.fail(err)
		return
	}
	ctx = utils.WithDefaultArgs(ctx, "query", id.String())
	LiveQueries.Inc()
	defer LiveQueries.Dec()
	v.opts.Logger.DebugCtx(ctx, "live query started", "plan", plan.Mode)

	snap, cursor := v.indexer.Snapshot()
	if plan.Old && !v.backfill(ctx, plan, snap, cursor, out) {
		snap.Close()
		return
	}
	snap.Close()
	if !out.sync() {
		return
	}

	for {
		wake := v.indexer.Wait()
		if head := v.indexer.Head(); head > cursor {
			for ch, err := range v.indexer.Changes(v.store, cursor, head) {
				if err != nil {
					out.fail(err)
					return
				}
				cursor = ch.Seq
				if !v.emitChange(ctx, plan, ch, "live", out) {
					return
				}
			}
			cursor = max(cursor, head)
			continue
		}
		select {
		case <-wake:
		case <-ctx.Done():
			out.fail(ctx.Err())
			return
		case <-v.done:
			out.fail(feedview_errors.ErrClosed)
			return
		}
	}
}

// emitChange resolves a changelog row and emits it if the plan selects it.
// For index plans the record's entry key must fall in the scanned range.
func (v *View) emitChange(ctx context.Context, plan *query.Plan, ch indexes.Change, phase string, out *sink) bool {
	rec, ok := v.resolve(ctx, ch.Loc)
	if !ok {
		return true
	}
	if !plan.Scan {
		doc, err := rec.Doc()
		if err != nil {
			return true
		}
		comp, ok := indexes.EncodeComponents(&plan.Index.Definition, doc)
		if !ok || !plan.Bounds.Contains(indexes.EntryKey(plan.Index.Key, comp, ch.Loc)) {
			return true
		}
	}
	if !v.matches(rec, plan.Remaining) {
		return true
	}
	RecordsEmitted.WithLabelValues(phase).Inc()
	return out.put(rec)
}
