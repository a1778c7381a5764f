// Protocol format is based on ToyTLV (MIT licence) written by Victor Grishchenko in 2024
// Original project: https://github.com/learn-decentralized-systems/toytlv

/*
Package protocol implements the compact TLV (Type-Length-Value) records feedview
uses for every small structured value it persists: locators, changelog rows
and checkpoint envelopes.

# TLV Record Format

 1. Tiny (1 byte header), body 0-9 bytes, lowercase type only:
    [('0' + body_length)]
 2. Short (2 bytes header), body up to 255 bytes:
    [lowercase_type, body_length]
 3. Long (5 bytes header), body up to 2GB:
    [uppercase_type, length_as_4byte_little_endian]

Types are letters A-Z. Tiny records lose their type, so callers that need to
tell records apart pass uppercase types.
*/
package protocol

import (
	"encoding/binary"
	"errors"
)

const CaseBit uint8 = 'a' - 'A'

var (
	ErrIncomplete = errors.New("incomplete data")
	ErrBadRecord  = errors.New("bad TLV record format")
)

// ProbeHeader returns the record type ('A'-'Z', '0' for tiny, '-' for
// garbage, 0 for an incomplete header), the header and the body lengths.
func ProbeHeader(data []byte) (lit byte, hdrlen, bodylen int) {
	if len(data) == 0 {
		return 0, 0, 0
	}
	dlit := data[0]
	switch {
	case dlit >= '0' && dlit <= '9':
		return '0', 1, int(dlit - '0')
	case dlit >= 'a' && dlit <= 'z':
		if len(data) < 2 {
			return 0, 0, 0
		}
		return dlit - CaseBit, 2, int(data[1])
	case dlit >= 'A' && dlit <= 'Z':
		if len(data) < 5 {
			return 0, 0, 0
		}
		bl := binary.LittleEndian.Uint32(data[1:5])
		if bl > 0x7fffffff {
			return '-', 0, 0
		}
		return dlit, 5, int(bl)
	default:
		return '-', 0, 0
	}
}

// AppendHeader picks the shortest header for bodylen.
// Lowercase lit enables the tiny format.
func AppendHeader(into []byte, lit byte, bodylen int) []byte {
	biglit := lit &^ CaseBit
	if biglit < 'A' || biglit > 'Z' {
		panic("TLV record type is A..Z")
	}
	switch {
	case bodylen < 10 && (lit&CaseBit) != 0:
		return append(into, byte('0'+bodylen))
	case bodylen > 0xff:
		if bodylen > 0x7fffffff {
			panic("oversized TLV record")
		}
		into = append(into, biglit)
		return binary.LittleEndian.AppendUint32(into, uint32(bodylen))
	default:
		return append(into, biglit|CaseBit, byte(bodylen))
	}
}

func TotalLen(inputs [][]byte) (sum int) {
	for _, input := range inputs {
		sum += len(input)
	}
	return
}

// Append adds a complete record to into.
func Append(into []byte, lit byte, body ...[]byte) []byte {
	into = AppendHeader(into, lit, TotalLen(body))
	for _, b := range body {
		into = append(into, b...)
	}
	return into
}

func Record(lit byte, body ...[]byte) []byte {
	return Append(make([]byte, 0, TotalLen(body)+5), lit, body...)
}

func Concat(msg ...[]byte) []byte {
	ret := make([]byte, 0, TotalLen(msg))
	for _, b := range msg {
		ret = append(ret, b...)
	}
	return ret
}

// Take extracts a record of the given type from trusted data.
// Returns nil body on mismatch; rest stays data when incomplete.
func Take(lit byte, data []byte) (body, rest []byte) {
	body, rest, _ = TakeWary(lit, data)
	return
}

// TakeWary is Take for untrusted data.
func TakeWary(lit byte, data []byte) (body, rest []byte, err error) {
	flit, hdrlen, bodylen := ProbeHeader(data)
	if flit == 0 || hdrlen+bodylen > len(data) {
		return nil, data, ErrIncomplete
	}
	if flit != lit && flit != '0' {
		return nil, nil, ErrBadRecord
	}
	return data[hdrlen : hdrlen+bodylen], data[hdrlen+bodylen:], nil
}

// TakeAny extracts the next record whatever its type.
func TakeAny(data []byte) (lit byte, body, rest []byte, err error) {
	if len(data) == 0 {
		return 0, nil, nil, ErrIncomplete
	}
	lit, _, _ = ProbeHeader(data)
	if lit == '-' {
		return 0, nil, nil, ErrBadRecord
	}
	body, rest, err = TakeWary(lit, data)
	return
}
