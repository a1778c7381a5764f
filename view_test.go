package feedview

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/drpcorg/feedview/feeds"
	"github.com/drpcorg/feedview/feedview_errors"
	"github.com/drpcorg/feedview/indexes"
	"github.com/drpcorg/feedview/paths"
	"github.com/drpcorg/feedview/query"
	"github.com/drpcorg/feedview/store"
	"github.com/drpcorg/feedview/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	logIndex = indexes.Definition{Key: "log", FieldPaths: []paths.Path{paths.Parse("value.timestamp")}}
	typIndex = indexes.Definition{Key: "typ", FieldPaths: []paths.Path{paths.Parse("value.type"), paths.Parse("value.timestamp")}}
)

func testView(t *testing.T, opts Options) (*View, *feeds.MemoryLogs) {
	logs := feeds.NewMemoryLogs()
	if opts.Logs == nil {
		opts.Logs = logs
	}
	if opts.Indexes == nil {
		opts.Indexes = []indexes.Definition{logIndex, typIndex}
	}
	opts.Logger = utils.NewWriterLogger(&bytes.Buffer{}, slog.LevelDebug)
	v, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { v.Close() })
	return v, logs
}

func appendAll(t *testing.T, logs feeds.Appender, log feeds.LogID, values ...string) {
	for _, value := range values {
		_, err := logs.Append(context.Background(), log, []byte(value))
		require.NoError(t, err)
	}
}

func chat(ts int) string {
	return fmt.Sprintf(`{"type":"chat/message","timestamp":%d}`, ts)
}

func mustQuery(t *testing.T, q string) *query.Query {
	parsed, err := query.Parse([]byte(q))
	require.NoError(t, err)
	return parsed
}

// timestamps collects value.timestamp of every record, "sync" for the marker.
func timestamps(t *testing.T, seq iter.Seq2[*feeds.Record, error]) []string {
	var out []string
	for rec, err := range seq {
		require.NoError(t, err)
		if rec.IsSync() {
			out = append(out, "sync")
			continue
		}
		doc, err := rec.Doc()
		require.NoError(t, err)
		out = append(out, strconv.Itoa(doc.GetInt("value", "timestamp")))
	}
	return out
}

func locators(t *testing.T, seq iter.Seq2[*feeds.Record, error]) []string {
	var out []string
	for rec, err := range seq {
		require.NoError(t, err)
		out = append(out, rec.Locator().String())
	}
	return out
}

func TestView_OrdersByIndex(t *testing.T) {
	ctx := context.Background()
	v, logs := testView(t, Options{})
	appendAll(t, logs, "bob", chat(739), chat(741), chat(740))
	n, err := v.CatchUp(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	q := mustQuery(t, `{"value":{"type":"chat/message","timestamp":{"$gt":700}}}`)
	plan := v.Explain(q, query.Options{})
	require.NotNil(t, plan.Index)
	assert.Equal(t, "typ", plan.Index.Key)
	assert.Empty(t, plan.Remaining)

	assert.Equal(t, []string{"739", "740", "741"}, timestamps(t, v.Read(ctx, q, query.Options{})))
	assert.Equal(t, []string{"741", "740", "739"}, timestamps(t, v.Read(ctx, q, query.Options{Reverse: true})))

	sorted := mustQuery(t, `[{"$sort":["value","timestamp"],"$reverse":true}]`)
	assert.Equal(t, []string{"741", "740", "739"}, timestamps(t, v.Read(ctx, sorted, query.Options{})))

	ranged := mustQuery(t, `{"value":{"timestamp":{"$gte":740,"$lt":741}}}`)
	assert.Equal(t, []string{"740"}, timestamps(t, v.Read(ctx, ranged, query.Options{})))
}

func TestView_CompositeKeysAreAllOrNothing(t *testing.T) {
	ctx := context.Background()
	v, logs := testView(t, Options{})
	appendAll(t, logs, "ann", chat(5), `{"timestamp":3,"author":"ann"}`, `{"type":"chat/message"}`)
	_, err := v.CatchUp(ctx)
	require.NoError(t, err)

	typed := mustQuery(t, `{"value":{"type":"chat/message"}}`)
	assert.Equal(t, []string{"ann@0"}, locators(t, v.Read(ctx, typed, query.Options{})))

	stamped := mustQuery(t, `{"value":{"timestamp":{"$gte":0}}}`)
	assert.Equal(t, []string{"ann@1", "ann@0"}, locators(t, v.Read(ctx, stamped, query.Options{})))

	// no index covers author: a full scan still finds it
	byAuthor := mustQuery(t, `{"value":{"author":"ann"}}`)
	assert.True(t, v.Explain(byAuthor, query.Options{}).Scan)
	assert.Equal(t, []string{"ann@1"}, locators(t, v.Read(ctx, byAuthor, query.Options{})))

	all := locators(t, v.Read(ctx, &query.Query{}, query.Options{}))
	assert.Equal(t, []string{"ann@0", "ann@1", "ann@2"}, all)
	reversed := locators(t, v.Read(ctx, &query.Query{}, query.Options{Reverse: true}))
	assert.Equal(t, []string{"ann@2", "ann@1", "ann@0"}, reversed)
}

func TestView_Deterministic(t *testing.T) {
	ctx := context.Background()
	v, logs := testView(t, Options{})
	appendAll(t, logs, "bob", chat(2), chat(1))
	appendAll(t, logs, "amy", chat(2), chat(1))
	_, err := v.CatchUp(ctx)
	require.NoError(t, err)

	q := mustQuery(t, `{"value":{"timestamp":{"$lte":2}}}`)
	first := locators(t, v.Read(ctx, q, query.Options{}))
	assert.Equal(t, []string{"amy@1", "bob@1", "amy@0", "bob@0"}, first)
	assert.Equal(t, first, locators(t, v.Read(ctx, q, query.Options{})))
	assert.Equal(t, v.Explain(q, query.Options{}).String(), v.Explain(q, query.Options{}).String())

	n, err := v.CatchUp(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, first, locators(t, v.Read(ctx, q, query.Options{})))
}

func TestView_Limit(t *testing.T) {
	ctx := context.Background()
	v, logs := testView(t, Options{})
	appendAll(t, logs, "bob", chat(3), chat(1), chat(2))
	_, err := v.CatchUp(ctx)
	require.NoError(t, err)

	q := mustQuery(t, `{"value":{"timestamp":{"$gt":0}}}`)
	assert.Equal(t, []string{"1", "2"}, timestamps(t, v.Read(ctx, q, query.Options{Limit: 2})))
	assert.Equal(t, []string{"3"}, timestamps(t, v.Read(ctx, q, query.Options{Limit: 1, Reverse: true})))
}

func TestView_ScanWithoutLogs(t *testing.T) {
	ctx := context.Background()
	logs := feeds.NewMemoryLogs()
	v, err := New(Options{Resolver: feeds.FromLogs(logs, nil)})
	require.NoError(t, err)
	defer v.Close()
	appendAll(t, logs, "bob", chat(1), chat(2))
	var batch []*feeds.Record
	for rec, err := range logs.All()[0].ReadFrom(ctx, 0) {
		require.NoError(t, err)
		batch = append(batch, rec)
	}
	require.NoError(t, v.Index(ctx, batch, nil))

	q := mustQuery(t, `{"value":{"timestamp":2}}`)
	assert.True(t, v.Explain(q, query.Options{}).Scan)
	assert.Equal(t, []string{"bob@1"}, locators(t, v.Read(ctx, q, query.Options{})))
	assert.Equal(t, []string{"bob@1", "bob@0"}, locators(t, v.Read(ctx, &query.Query{}, query.Options{Reverse: true})))
}

func TestView_DropsUnresolvable(t *testing.T) {
	ctx := context.Background()
	v, logs := testView(t, Options{})
	appendAll(t, logs, "bob", chat(1))
	_, err := v.CatchUp(ctx)
	require.NoError(t, err)
	require.NoError(t, v.Index(ctx, []*feeds.Record{{Log: "ghost", Seq: 0, Value: []byte(chat(0))}}, nil))

	before := testutil.ToFloat64(ResolutionMisses)
	q := mustQuery(t, `{"value":{"timestamp":{"$gte":0}}}`)
	assert.Equal(t, []string{"bob@0"}, locators(t, v.Read(ctx, q, query.Options{})))
	assert.Equal(t, before+1, testutil.ToFloat64(ResolutionMisses))
}

func TestView_Deferred(t *testing.T) {
	v, logs := testView(t, Options{Deferred: true})
	appendAll(t, logs, "bob", chat(1))
	_, err := v.CatchUp(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, err := range v.Read(ctx, &query.Query{}, query.Options{}) {
		assert.ErrorIs(t, err, context.Canceled)
	}

	v.SetReady()
	v.SetReady()
	assert.Equal(t, []string{"bob@0"}, locators(t, v.Read(context.Background(), &query.Query{}, query.Options{})))
}

func TestView_RegisterIndex(t *testing.T) {
	ctx := context.Background()
	v, logs := testView(t, Options{Indexes: []indexes.Definition{logIndex}})
	appendAll(t, logs, "bob", chat(9), `{"type":"note","timestamp":4}`, chat(7))
	_, err := v.CatchUp(ctx)
	require.NoError(t, err)

	q := mustQuery(t, `{"value":{"type":"chat/message"}}`)
	assert.True(t, v.Explain(q, query.Options{}).Scan)

	require.NoError(t, v.RegisterIndex(ctx, typIndex))
	err = v.RegisterIndex(ctx, typIndex)
	assert.ErrorIs(t, err, feedview_errors.ErrDuplicateIndex)

	plan := v.Explain(q, query.Options{})
	require.False(t, plan.Scan)
	assert.Equal(t, "typ", plan.Index.Key)
	assert.Equal(t, []string{"7", "9"}, timestamps(t, v.Read(ctx, q, query.Options{})))
	assert.Len(t, v.Indexes(), 2)
}

func TestView_State(t *testing.T) {
	ctx := context.Background()
	v, _ := testView(t, Options{})
	state, err := v.LoadState()
	require.NoError(t, err)
	assert.Nil(t, state)

	require.NoError(t, v.SaveState([]byte("one")))
	state, err = v.LoadState()
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), state)

	require.NoError(t, v.Index(ctx, []*feeds.Record{{Log: "a", Value: []byte(chat(1))}}, []byte("two")))
	state, err = v.LoadState()
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), state)
}

func TestView_Closed(t *testing.T) {
	ctx := context.Background()
	v, _ := testView(t, Options{})
	require.NoError(t, v.Close())
	require.NoError(t, v.Close())

	for _, err := range v.Read(ctx, &query.Query{}, query.Options{}) {
		assert.ErrorIs(t, err, feedview_errors.ErrClosed)
	}
	assert.ErrorIs(t, v.Index(ctx, nil, nil), feedview_errors.ErrClosed)
	assert.ErrorIs(t, v.RegisterIndex(ctx, logIndex), feedview_errors.ErrClosed)
	_, err := v.CatchUp(ctx)
	assert.ErrorIs(t, err, feedview_errors.ErrClosed)
}

func TestView_Metrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	v, logs := testView(t, Options{Registerer: reg})
	appendAll(t, logs, "bob", chat(1))
	_, err := v.CatchUp(ctx)
	require.NoError(t, err)
	locators(t, v.Read(ctx, mustQuery(t, `{"value":{"timestamp":1}}`), query.Options{}))

	other, err := New(Options{Registerer: reg})
	require.NoError(t, err, "registering twice is not an error")
	other.Close()

	n, err := testutil.GatherAndCount(reg, "feedview_view_plans", "feedview_view_records")
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestView_NewBackfillsAddedIndexes(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	logs := feeds.NewMemoryLogs()
	appendAll(t, logs, "bob", chat(739), chat(741), chat(740))

	first, _ := testView(t, Options{Store: st, Logs: logs, Indexes: []indexes.Definition{logIndex}})
	_, err := first.CatchUp(ctx)
	require.NoError(t, err)

	second, _ := testView(t, Options{Store: st, Logs: logs})
	q := mustQuery(t, `{"value":{"type":"chat/message"}}`)
	plan := second.Explain(q, query.Options{})
	require.False(t, plan.Scan)
	assert.Equal(t, "typ", plan.Index.Key)
	assert.Equal(t, []string{"739", "740", "741"}, timestamps(t, second.Read(ctx, q, query.Options{})))
}

func TestView_ReopenWithExtraIndex(t *testing.T) {
	ctx := context.Background()
	fs := vfs.NewMem()
	logs := feeds.NewMemoryLogs()
	opts := Options{
		Logs:          logs,
		Indexes:       []indexes.Definition{logIndex},
		PebbleOptions: store.PebbleOptions{Pebble: pebble.Options{FS: fs}},
	}
	appendAll(t, logs, "bob", chat(2), `{"type":"note","timestamp":1}`, chat(3))

	v, err := Open("view", opts)
	require.NoError(t, err)
	_, err = v.CatchUp(ctx)
	require.NoError(t, err)
	require.NoError(t, v.Close())

	opts.Indexes = []indexes.Definition{typIndex, logIndex}
	v, err = Open("view", opts)
	require.NoError(t, err)
	q := mustQuery(t, `{"value":{"type":"chat/message","timestamp":{"$gte":0}}}`)
	assert.Equal(t, []string{"2", "3"}, timestamps(t, v.Read(ctx, q, query.Options{})))
	require.NoError(t, v.Close())

	// nothing configured: the stored indexes come back, already complete
	v, err = Open("view", Options{
		PebbleOptions:  opts.PebbleOptions,
		RestoreIndexes: true,
	})
	require.NoError(t, err)
	defer v.Close()
	var keys []string
	for _, e := range v.Indexes() {
		assert.True(t, e.Ready)
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"log", "typ"}, keys)

	_, err = Open("view2", Options{
		PebbleOptions: opts.PebbleOptions,
		Indexes:       []indexes.Definition{logIndex, {Key: "log", FieldPaths: typIndex.FieldPaths}},
	})
	assert.ErrorIs(t, err, feedview_errors.ErrDuplicateIndex)
}
