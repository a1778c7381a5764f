package feedview

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strconv"

	"github.com/drpcorg/feedview/feeds"
	"github.com/drpcorg/feedview/feedview_errors"
	"github.com/drpcorg/feedview/indexes"
	"github.com/valyala/fastjson"
)

// positions maps a log to the next sequence CatchUp will read from it.
type positions map[feeds.LogID]uint64

func (p positions) encode() []byte {
	var a fastjson.Arena
	obj := a.NewObject()
	for _, id := range slices.Sorted(maps.Keys(p)) {
		obj.Set(string(id), a.NewNumberString(strconv.FormatUint(p[id], 10)))
	}
	return obj.MarshalTo(nil)
}

func decodePositions(data []byte) (positions, error) {
	p := positions{}
	if data == nil {
		return p, nil
	}
	v, err := fastjson.ParseBytes(data)
	if err != nil {
		return nil, errors.Join(feedview_errors.ErrCorruptState, err)
	}
	obj, err := v.Object()
	if err != nil {
		return nil, errors.Join(feedview_errors.ErrCorruptState, err)
	}
	obj.Visit(func(key []byte, v *fastjson.Value) {
		if err != nil {
			return
		}
		var seq uint64
		if seq, err = v.Uint64(); err == nil {
			p[feeds.LogID(key)] = seq
		}
	})
	if err != nil {
		return nil, errors.Join(feedview_errors.ErrCorruptState, err)
	}
	return p, nil
}

// CatchUp indexes every record appended to the configured logs since the
// previous CatchUp. Read positions are committed with each batch, so an
// interrupted CatchUp resumes where its last batch ended. It returns the
// number of records read.
func (v *View) CatchUp(ctx context.Context) (int, error) {
	if v.opts.Logs == nil {
		return 0, errors.New("feedview: no logs to follow")
	}
	if v.closed.Load() {
		return 0, feedview_errors.ErrClosed
	}
	v.follow.Lock()
	defer v.follow.Unlock()

	blob, err := v.indexer.LoadState(followState)
	if err != nil {
		return 0, err
	}
	pos, err := decodePositions(blob)
	if err != nil {
		return 0, err
	}

	var (
		batch []*feeds.Record
		total int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		cp := &indexes.Checkpoint{Name: followState, Blob: pos.encode()}
		if err := v.indexer.Index(ctx, batch, cp); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}
	for _, log := range v.opts.Logs.All() {
		id := log.ID()
		for rec, err := range log.ReadFrom(ctx, pos[id]) {
			if err != nil {
				return total, err
			}
			batch = append(batch, rec)
			pos[id] = rec.Seq + 1
			FollowedRecords.WithLabelValues(string(id)).Inc()
			if len(batch) >= v.indexer.MaxBatch() {
				if err := flush(); err != nil {
					return total, err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}
	if total > 0 {
		v.opts.Logger.InfoCtx(ctx, "caught up with logs", "records", total, "head", v.indexer.Head())
	}
	return total, nil
}
