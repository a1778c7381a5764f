package feeds

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocator(t *testing.T) {
	loc := Locator{Log: "9f3a", Seq: 1 << 40}
	back, err := ParseLocator(loc.Bytes())
	require.NoError(t, err)
	assert.Equal(t, loc, back)
	assert.Equal(t, "9f3a@1099511627776", loc.String())

	back, err = ParseLocatorString("a@b@12")
	require.NoError(t, err)
	assert.Equal(t, Locator{Log: "a@b", Seq: 12}, back)

	_, err = ParseLocator([]byte("garbage"))
	assert.ErrorIs(t, err, ErrBadLocator)
	_, err = ParseLocatorString("nosequence")
	assert.ErrorIs(t, err, ErrBadLocator)
}

func TestRecord_Doc(t *testing.T) {
	rec := &Record{Log: "bob", Seq: 7, Value: []byte(`{"type":"chat/message","timestamp":739}`)}
	doc, err := rec.Doc()
	require.NoError(t, err)
	assert.Equal(t, "bob", string(doc.GetStringBytes("key")))
	assert.Equal(t, 7, doc.GetInt("seq"))
	assert.Equal(t, "chat/message", string(doc.GetStringBytes("value", "type")))
	assert.Equal(t, float64(739), doc.GetFloat64("value", "timestamp"))

	doc, err = (&Record{Log: "bob"}).Doc()
	require.NoError(t, err)
	assert.Nil(t, doc.Get("value", "type"))

	_, err = (&Record{Log: "bob", Value: []byte("{")}).Doc()
	assert.Error(t, err)
}

func TestSyncMarker(t *testing.T) {
	assert.True(t, SyncMarker.IsSync())
	assert.False(t, (&Record{Log: "$sync"}).IsSync())
	assert.Equal(t, "<sync>", SyncMarker.String())
}
