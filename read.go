package feedview

import (
	"context"
	"errors"
	"iter"

	"github.com/drpcorg/feedview/feeds"
	"github.com/drpcorg/feedview/feedview_errors"
	"github.com/drpcorg/feedview/query"
	"github.com/drpcorg/feedview/store"
)

// Read plans q and streams the matching records. Nothing is resolved before
// the consumer asks for it. Live reads yield feeds.SyncMarker once, between
// the records that existed when the read started and the ones indexed after.
func (v *View) Read(ctx context.Context, q *query.Query, opts query.Options) iter.Seq2[*feeds.Record, error] {
	return v.Execute(ctx, v.planner.Explain(q, opts))
}

// Execute runs a plan made by Explain.
func (v *View) Execute(ctx context.Context, plan *query.Plan) iter.Seq2[*feeds.Record, error] {
	return func(yield func(*feeds.Record, error) bool) {
		out := &sink{yield: yield, limit: plan.Limit}
		if v.closed.Load() {
			out.fail(feedview_errors.ErrClosed)
			return
		}
		if err := v.waitReady(ctx); err != nil {
			out.fail(err)
			return
		}
		index := ""
		if plan.Index != nil {
			index = plan.Index.Key
		}
		PlansExecuted.WithLabelValues(string(plan.Mode), index).Inc()
		if plan.Live {
			v.live(ctx, plan, out)
			return
		}
		snap, head := v.indexer.Snapshot()
		defer snap.Close()
		v.backfill(ctx, plan, snap, head, out)
	}
}

// sink applies the limit and remembers whether the consumer is done.
type sink struct {
	yield func(*feeds.Record, error) bool
	limit int
	n     int
	done  bool
}

func (s *sink) put(rec *feeds.Record) bool {
	if s.done {
		return false
	}
	if !s.yield(rec, nil) {
		s.done = true
		return false
	}
	s.n++
	if s.limit > 0 && s.n >= s.limit {
		s.done = true
	}
	return !s.done
}

func (s *sink) sync() bool {
	if s.done {
		return false
	}
	if !s.yield(feeds.SyncMarker, nil) {
		s.done = true
	}
	return !s.done
}

func (s *sink) fail(err error) {
	if !s.done {
		s.yield(nil, err)
		s.done = true
	}
}

// backfill emits what the snapshot holds for the plan. It reports whether
// the consumer wants more.
func (v *View) backfill(ctx context.Context, plan *query.Plan, snap store.Reader, head uint64, out *sink) bool {
	switch {
	case !plan.Scan:
		return v.scanIndex(ctx, plan, snap, out)
	case plan.Live || v.opts.Logs == nil:
		// the changelog is what a live tail continues from
		return v.scanChanges(ctx, plan, snap, 0, head, out)
	default:
		return v.scanLogs(ctx, plan, out)
	}
}

func (v *View) scanIndex(ctx context.Context, plan *query.Plan, r store.Reader, out *sink) bool {
	for kv, err := range r.Scan(plan.Bounds.LowerKey, plan.Bounds.UpperKey, plan.Reverse) {
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			out.fail(err)
			return false
		}
		loc, err := feeds.ParseLocator(kv.Value)
		if err != nil {
			out.fail(errors.Join(feedview_errors.ErrCorruptState, err))
			return false
		}
		rec, ok := v.resolve(ctx, loc)
		if !ok || !v.matches(rec, plan.Remaining) {
			continue
		}
		RecordsEmitted.WithLabelValues("backfill").Inc()
		if !out.put(rec) {
			return false
		}
	}
	return true
}

// scanChanges emits changelog rows in (after, upto] that pass the plan.
func (v *View) scanChanges(ctx context.Context, plan *query.Plan, r store.Reader, after, upto uint64, out *sink) bool {
	rows := v.indexer.Changes(r, after, upto)
	if plan.Reverse {
		rows = v.indexer.ChangesReverse(r, after, upto)
	}
	for ch, err := range rows {
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			out.fail(err)
			return false
		}
		if !v.emitChange(ctx, plan, ch, "backfill", out) {
			return false
		}
	}
	return true
}

// scanLogs walks every record of every log, ordered by log id and sequence.
func (v *View) scanLogs(ctx context.Context, plan *query.Plan, out *sink) bool {
	logs := v.opts.Logs.All()
	if plan.Reverse {
		for i := len(logs) - 1; i >= 0; i-- {
			for seq := logs[i].Len(); seq > 0; seq-- {
				if err := ctx.Err(); err != nil {
					out.fail(err)
					return false
				}
				rec, err := logs[i].Get(ctx, seq-1)
				if errors.Is(err, feedview_errors.ErrRecordNotFound) {
					continue
				}
				if err != nil {
					out.fail(err)
					return false
				}
				if !v.emitScanned(rec, plan, out) {
					return false
				}
			}
		}
		return true
	}
	for _, log := range logs {
		for rec, err := range log.ReadFrom(ctx, 0) {
			if err != nil {
				out.fail(err)
				return false
			}
			if !v.emitScanned(rec, plan, out) {
				return false
			}
		}
	}
	return true
}

func (v *View) emitScanned(rec *feeds.Record, plan *query.Plan, out *sink) bool {
	if v.opts.Validator != nil {
		if rec = v.opts.Validator(rec); rec == nil {
			return true
		}
	}
	if !v.matches(rec, plan.Remaining) {
		return true
	}
	RecordsEmitted.WithLabelValues("backfill").Inc()
	return out.put(rec)
}

// resolve fetches a record by locator through the cache. Misses are soft:
// the index may briefly point at records the resolver can't serve.
func (v *View) resolve(ctx context.Context, loc feeds.Locator) (*feeds.Record, bool) {
	if rec, ok := v.cache.Get(loc); ok {
		return rec, true
	}
	if v.opts.Resolver == nil {
		ResolutionMisses.Inc()
		return nil, false
	}
	rec, err := v.opts.Resolver.Resolve(ctx, loc)
	if err != nil {
		ResolutionMisses.Inc()
		v.opts.Logger.DebugCtx(ctx, "index entry not resolvable, dropped", "locator", loc.String(), "err", err)
		return nil, false
	}
	v.cache.Add(loc, rec)
	return rec, true
}

func (v *View) matches(rec *feeds.Record, f query.Filter) bool {
	if len(f) == 0 {
		return true
	}
	doc, err := rec.Doc()
	if err != nil {
		return false
	}
	return v.opts.Matcher.Match(doc, f)
}
