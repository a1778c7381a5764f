package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastjson"
)

func match(t *testing.T, filter, doc string) bool {
	q, err := Parse([]byte(filter))
	require.NoError(t, err)
	return DefaultMatcher{}.Match(fastjson.MustParse(doc), q.Filter)
}

func TestDefaultMatcher(t *testing.T) {
	doc := `{"key":"bob","seq":1,"value":{"type":"chat/message","timestamp":740,"tags":["a","b"],"gone":null}}`

	assert.True(t, match(t, `{}`, doc))
	assert.True(t, match(t, `{"value":{"type":"chat/message"}}`, doc))
	assert.False(t, match(t, `{"value":{"type":"chat/other"}}`, doc))
	assert.True(t, match(t, `{"key":"bob","value":{"timestamp":740}}`, doc))
	assert.True(t, match(t, `{"value":{"timestamp":740.0}}`, doc), "numbers compare by value")
	assert.False(t, match(t, `{"value":{"timestamp":"740"}}`, doc), "no cross-type equality")
	assert.True(t, match(t, `{"value":{"tags":["a","b"]}}`, doc))
	assert.False(t, match(t, `{"value":{"tags":["a"]}}`, doc))

	assert.True(t, match(t, `{"value":{"timestamp":{"$gt":739,"$lt":741}}}`, doc))
	assert.False(t, match(t, `{"value":{"timestamp":{"$gt":740}}}`, doc))
	assert.True(t, match(t, `{"value":{"timestamp":{"$gte":740}}}`, doc))
	assert.True(t, match(t, `{"value":{"timestamp":{"$lte":740}}}`, doc))
	assert.False(t, match(t, `{"value":{"timestamp":{"$lt":740}}}`, doc))
	assert.False(t, match(t, `{"value":{"timestamp":{"$gt":"a"}}}`, doc), "half-open range stays in its type")
	assert.True(t, match(t, `{"value":{"type":{"$gte":"chat/","$lt":"chat0"}}}`, doc), "prefix range on strings")

	assert.False(t, match(t, `{"value":{"author":"x"}}`, doc), "missing field")
	assert.True(t, match(t, `{"value":{"gone":null}}`, doc))
	assert.True(t, match(t, `{"value":{"author":null}}`, doc))
	assert.False(t, match(t, `{"value":{"type":null}}`, doc))
}
