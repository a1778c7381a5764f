package indexes

import (
	"encoding/binary"
	"math"

	"github.com/drpcorg/feedview/feeds"
	"github.com/drpcorg/feedview/keys"
	"github.com/drpcorg/feedview/paths"
	"github.com/valyala/fastjson"
)

const (
	EntryPrefix  = 'I'
	ChangePrefix = 'C'
	MetaPrefix   = 'M'
	StatePrefix  = 'S'

	// precedes the tie-break suffix; below every value tag
	suffixTag = 0x01
)

var HeadKey = []byte{MetaPrefix, 'h', 'e', 'a', 'd'}

// Prefix is the key prefix of every entry of the index.
func Prefix(indexKey string) []byte {
	return keys.AppendString([]byte{EntryPrefix}, indexKey)
}

// EncodeComponents extracts and encodes every field path of def from doc.
// A missing, null or object component fails the whole key.
func EncodeComponents(def *Definition, doc *fastjson.Value) ([]byte, bool) {
	vals, ok := paths.ExtractAll(doc, def.FieldPaths)
	if !ok {
		return nil, false
	}
	var comp []byte
	for _, v := range vals {
		if comp, ok = keys.AppendValue(comp, v); !ok {
			return nil, false
		}
	}
	return comp, true
}

// EntryKey is Prefix(indexKey) ++ components ++ 0x01 ++ u64be(seq) ++ log.
// The suffix orders records sharing a composite key by sequence, then log.
func EntryKey(indexKey string, components []byte, loc feeds.Locator) []byte {
	key := Prefix(indexKey)
	key = append(key, components...)
	key = append(key, suffixTag)
	key = binary.BigEndian.AppendUint64(key, loc.Seq)
	return append(key, loc.Log...)
}

func ChangeKey(seq uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte{ChangePrefix}, seq)
}

// changeRange is the key range of changelog rows (after, upto].
func changeRange(after, upto uint64) (lower, upper []byte) {
	lower = ChangeKey(after + 1)
	if upto == math.MaxUint64 {
		return lower, []byte{ChangePrefix + 1}
	}
	return lower, ChangeKey(upto + 1)
}

func StateKey(name string) []byte {
	return append([]byte{StatePrefix}, name...)
}
