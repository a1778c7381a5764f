package keys

import (
	"bytes"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastjson"
)

func enc(t *testing.T, js string) []byte {
	v, err := fastjson.Parse(js)
	require.NoError(t, err)
	b, ok := Encode(v)
	require.True(t, ok, js)
	return b
}

func TestEncode_NumbersSortNumerically(t *testing.T) {
	nums := []string{"-1e300", "-741", "-2.5", "-0", "0", "1e-9", "2", "10", "739", "740", "741", "1574069723313"}
	encs := make([][]byte, len(nums))
	for i, n := range nums {
		encs[i] = enc(t, n)
	}
	for i := 1; i < len(encs); i++ {
		assert.True(t, Compare(encs[i-1], encs[i]) <= 0, "%s <= %s", nums[i-1], nums[i])
	}
	assert.Equal(t, enc(t, "0"), enc(t, "-0"))
	// decimal text would put "10" before "2"
	assert.Equal(t, -1, Compare(enc(t, "2"), enc(t, "10")))
}

func TestEncode_StringsAndPrefixes(t *testing.T) {
	strs := []string{`""`, `"a"`, `"a\u0000"`, `"a\u0000b"`, `"ab"`, `"b"`, `"chat/message"`, `"user/about"`}
	encs := make([][]byte, len(strs))
	for i, s := range strs {
		encs[i] = enc(t, s)
	}
	assert.True(t, sort.SliceIsSorted(encs, func(i, j int) bool { return bytes.Compare(encs[i], encs[j]) < 0 }))
}

func TestEncode_CrossTypeOrder(t *testing.T) {
	ordered := []string{"null", "false", "true", "-5", "5", `"5"`, `[]`, `[1]`, `[1,2]`, `["a"]`}
	for i := 1; i < len(ordered); i++ {
		assert.Equal(t, -1, Compare(enc(t, ordered[i-1]), enc(t, ordered[i])), "%s < %s", ordered[i-1], ordered[i])
	}
}

func TestEncode_ObjectsAreNotIndexable(t *testing.T) {
	v := fastjson.MustParse(`{"a":1}`)
	_, ok := Encode(v)
	assert.False(t, ok)
	_, ok = Encode(fastjson.MustParse(`[1,{"a":1}]`))
	assert.False(t, ok)
	_, ok = Encode(nil)
	assert.False(t, ok)
}

func TestSuccessor(t *testing.T) {
	a := enc(t, `"a"`)
	succ := Successor(a)
	withSuffix := AppendNumber(append([]byte{}, a...), 12)
	assert.Equal(t, -1, Compare(withSuffix, succ))
	assert.Equal(t, -1, Compare(succ, enc(t, `"ab"`)))
	assert.Len(t, succ, len(a)+1)
}

func TestKindBounds(t *testing.T) {
	n := enc(t, "42")
	assert.True(t, Compare(Number.Min(), n) < 0)
	assert.True(t, Compare(n, Number.Max()) < 0)
	assert.True(t, Compare(Number.Max(), enc(t, `""`)) <= 0)
	assert.True(t, Compare(Successor(n), Hi.Min()) < 0)
	assert.True(t, Compare(True.Min(), enc(t, "false")) <= 0)
	assert.True(t, Compare(enc(t, "true"), False.Max()) < 0)
}

func TestDecode(t *testing.T) {
	b := AppendString(nil, "x\x00y")
	b = AppendNumber(b, -3.25)
	s, rest, ok := DecodeString(b)
	require.True(t, ok)
	assert.Equal(t, "x\x00y", s)
	f, rest, ok := DecodeNumber(rest)
	require.True(t, ok)
	assert.Equal(t, -3.25, f)
	assert.Empty(t, rest)

	_, _, ok = DecodeNumber([]byte{byte(String)})
	assert.False(t, ok)
	_, _, ok = DecodeString([]byte{byte(String), 'a'})
	assert.False(t, ok)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Number, KindOf(fastjson.MustParse("1")))
	assert.Equal(t, String, KindOf(fastjson.MustParse(`"1"`)))
	assert.Equal(t, True, KindOf(fastjson.MustParse("true")))
	assert.Equal(t, Hi, KindOf(fastjson.MustParse("{}")))
	assert.Equal(t, "number", Number.String())
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, []byte{'I', 'b'}, PrefixEnd([]byte{'I', 'a'}))
	assert.Equal(t, []byte{'J'}, PrefixEnd([]byte{'I', 0xff, 0xff}))
	assert.Nil(t, PrefixEnd([]byte{0xff}))
	p := []byte{'C', 0x01}
	_ = PrefixEnd(p)
	assert.Equal(t, []byte{'C', 0x01}, p, "input is not modified")
}
