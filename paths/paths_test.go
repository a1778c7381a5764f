package paths

import (
	"testing"

	"github.com/drpcorg/feedview/feedview_errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastjson"
)

const doc = `{
	"key": "one",
	"seq": 3,
	"value": {
		"type": "chat/message",
		"timestamp": 1574069723314,
		"content": {"body": "First message", "tags": ["a", "b"]},
		"deleted": null
	}
}`

func TestExtract(t *testing.T) {
	d := fastjson.MustParse(doc)

	v, ok := Extract(d, Field("key"))
	require.True(t, ok)
	assert.Equal(t, "one", string(v.GetStringBytes()))

	v, ok = Extract(d, Parse("value.type"))
	require.True(t, ok)
	assert.Equal(t, "chat/message", string(v.GetStringBytes()))

	v, ok = Extract(d, Path{"value", "content", "tags", "1"})
	require.True(t, ok)
	assert.Equal(t, "b", string(v.GetStringBytes()))

	_, ok = Extract(d, Parse("value.deleted"))
	assert.False(t, ok, "null is absent")
	_, ok = Extract(d, Parse("value.missing.deeper"))
	assert.False(t, ok)
	_, ok = Extract(d, Parse("value.type.length"))
	assert.False(t, ok, "lookup through a scalar")
}

func TestExtractAll_AllOrNothing(t *testing.T) {
	d := fastjson.MustParse(doc)
	vals, ok := ExtractAll(d, []Path{Parse("value.type"), Parse("value.timestamp")})
	require.True(t, ok)
	require.Len(t, vals, 2)
	assert.Equal(t, float64(1574069723314), vals[1].GetFloat64())

	vals, ok = ExtractAll(d, []Path{Parse("value.type"), Parse("value.author")})
	assert.False(t, ok)
	assert.Nil(t, vals)
}

func TestPathHelpers(t *testing.T) {
	typ := []Path{Parse("value.type"), Parse("value.timestamp")}
	assert.True(t, HasPrefix(typ, []Path{Parse("value.type")}))
	assert.False(t, HasPrefix(typ, []Path{Parse("value.timestamp")}))
	assert.True(t, HasPrefix(typ, nil))
	assert.False(t, HasPrefix(typ[:1], typ))
	assert.True(t, EqualAll(typ, []Path{{"value", "type"}, {"value", "timestamp"}}))
	assert.Equal(t, "[value.type, value.timestamp]", JoinAll(typ))
	assert.Nil(t, Parse(""))
}

func TestFromJSON(t *testing.T) {
	ps, err := FromJSON(fastjson.MustParse(`"value.timestamp"`))
	require.NoError(t, err)
	assert.Equal(t, []Path{{"value", "timestamp"}}, ps)

	ps, err = FromJSON(fastjson.MustParse(`["value", "timestamp"]`))
	require.NoError(t, err)
	assert.Equal(t, []Path{{"value", "timestamp"}}, ps)

	ps, err = FromJSON(fastjson.MustParse(`[["value", "type"], ["value", "timestamp"]]`))
	require.NoError(t, err)
	assert.Equal(t, []Path{{"value", "type"}, {"value", "timestamp"}}, ps)

	_, err = FromJSON(fastjson.MustParse(`[["value", 1]]`))
	assert.ErrorIs(t, err, feedview_errors.ErrBadQuery)
	_, err = FromJSON(fastjson.MustParse(`42`))
	assert.ErrorIs(t, err, feedview_errors.ErrBadQuery)
}
