// Package keys implements the order-preserving, type-tagged tuple encoding
// used for index entry keys. Comparing two encodings with bytes.Compare gives
// the same answer as comparing the original values: within a type by natural
// order, across types by tag.
//
//	0x00 LO sentinel   0x02 null   0x03 false   0x04 true
//	0x05 number        0x06 string 0x07 array   0xFF HI sentinel
//
// Numbers are IEEE-754 doubles with the sign bit flipped (negatives fully
// inverted) so that big-endian bytes sort numerically. Strings escape 0x00 as
// 0x00 0xFF and end with 0x00 0x01, so a string sorts before its extensions
// and nothing can follow a string's terminator ambiguously. Arrays are their
// encoded elements followed by 0x00. Objects have no encoding.
package keys

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/valyala/fastjson"
)

type Kind byte

const (
	Lo     Kind = 0x00
	Null   Kind = 0x02
	False  Kind = 0x03
	True   Kind = 0x04
	Number Kind = 0x05
	String Kind = 0x06
	Array  Kind = 0x07
	Hi     Kind = 0xff
)

const (
	escByte  = 0xff
	termByte = 0x01
)

func (k Kind) String() string {
	switch k {
	case Lo:
		return "LO"
	case Null:
		return "null"
	case False, True:
		return "boolean"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Hi:
		return "HI"
	default:
		return "?"
	}
}

// Min is the smallest possible encoding of kind k (inclusive lower bound).
func (k Kind) Min() []byte {
	if k == True {
		return []byte{byte(False)}
	}
	return []byte{byte(k)}
}

// Max is the exclusive upper bound of all encodings of kind k.
func (k Kind) Max() []byte {
	if k == False {
		return []byte{byte(True) + 1}
	}
	return []byte{byte(k) + 1}
}

func AppendNull(dst []byte) []byte {
	return append(dst, byte(Null))
}

func AppendBool(dst []byte, b bool) []byte {
	if b {
		return append(dst, byte(True))
	}
	return append(dst, byte(False))
}

func AppendNumber(dst []byte, f float64) []byte {
	if f == 0 {
		f = 0 // -0 and +0 must encode the same
	}
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	dst = append(dst, byte(Number))
	return binary.BigEndian.AppendUint64(dst, bits)
}

func AppendString(dst []byte, s string) []byte {
	dst = append(dst, byte(String))
	for i := 0; i < len(s); i++ {
		dst = append(dst, s[i])
		if s[i] == 0 {
			dst = append(dst, escByte)
		}
	}
	return append(dst, 0, termByte)
}

// AppendValue encodes a JSON value. Objects are not indexable and report false.
func AppendValue(dst []byte, v *fastjson.Value) ([]byte, bool) {
	if v == nil {
		return dst, false
	}
	switch v.Type() {
	case fastjson.TypeNull:
		return AppendNull(dst), true
	case fastjson.TypeTrue:
		return AppendBool(dst, true), true
	case fastjson.TypeFalse:
		return AppendBool(dst, false), true
	case fastjson.TypeNumber:
		return AppendNumber(dst, v.GetFloat64()), true
	case fastjson.TypeString:
		return AppendString(dst, string(v.GetStringBytes())), true
	case fastjson.TypeArray:
		dst = append(dst, byte(Array))
		items, _ := v.Array()
		for _, item := range items {
			var ok bool
			if dst, ok = AppendValue(dst, item); !ok {
				return dst, false
			}
		}
		return append(dst, 0), true
	default:
		return dst, false
	}
}

// Encode is AppendValue into a fresh slice.
func Encode(v *fastjson.Value) ([]byte, bool) {
	return AppendValue(nil, v)
}

// KindOf reports the tag a value encodes with.
func KindOf(v *fastjson.Value) Kind {
	switch v.Type() {
	case fastjson.TypeNull:
		return Null
	case fastjson.TypeTrue:
		return True
	case fastjson.TypeFalse:
		return False
	case fastjson.TypeNumber:
		return Number
	case fastjson.TypeString:
		return String
	case fastjson.TypeArray:
		return Array
	default:
		return Hi
	}
}

// Compare orders two encodings.
func Compare(a, b []byte) int {
	return bytes.Compare(a, b)
}

// Successor returns the smallest key greater than every key having enc as a
// component prefix. Used to make a component bound exclusive on the lower end
// and inclusive on the upper end.
func Successor(enc []byte) []byte {
	out := make([]byte, len(enc), len(enc)+1)
	copy(out, enc)
	return append(out, byte(Hi))
}

// DecodeNumber reads a number component and returns the remainder.
func DecodeNumber(data []byte) (f float64, rest []byte, ok bool) {
	if len(data) < 9 || Kind(data[0]) != Number {
		return 0, data, false
	}
	bits := binary.BigEndian.Uint64(data[1:9])
	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits), data[9:], true
}

// DecodeString reads a string component and returns the remainder.
func DecodeString(data []byte) (s string, rest []byte, ok bool) {
	if len(data) == 0 || Kind(data[0]) != String {
		return "", data, false
	}
	out := make([]byte, 0, len(data))
	for i := 1; i < len(data); i++ {
		if data[i] != 0 {
			out = append(out, data[i])
			continue
		}
		if i+1 >= len(data) {
			return "", data, false
		}
		switch data[i+1] {
		case escByte:
			out = append(out, 0)
			i++
		case termByte:
			return string(out), data[i+2:], true
		default:
			return "", data, false
		}
	}
	return "", data, false
}

// PrefixEnd is the exclusive upper bound of all keys starting with prefix,
// nil when there is none.
func PrefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
