package feeds

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/drpcorg/feedview/protocol"
	"github.com/valyala/fastjson"
)

// LogID names a source log, e.g. a hex-encoded feed key.
type LogID string

// Record is one immutable log entry. (Log, Seq) is its permanent identity.
type Record struct {
	Log   LogID
	Seq   uint64
	Value []byte
}

// SyncMarker separates backfill from live records in a live read. It is not
// a data record; compare with IsSync.
var SyncMarker = &Record{Log: "$sync"}

func (r *Record) IsSync() bool {
	return r == SyncMarker
}

func (r *Record) Locator() Locator {
	return Locator{Log: r.Log, Seq: r.Seq}
}

// Doc parses the record into the envelope document field paths resolve
// against: {"key": <log>, "seq": <seq>, "value": <payload>}. A payload that
// is not valid JSON fails the parse.
func (r *Record) Doc() (*fastjson.Value, error) {
	var a fastjson.Arena
	env := a.NewObject()
	env.Set("key", a.NewString(string(r.Log)))
	env.Set("seq", a.NewNumberString(strconv.FormatUint(r.Seq, 10)))
	if len(r.Value) == 0 {
		env.Set("value", a.NewNull())
		return env, nil
	}
	payload, err := fastjson.ParseBytes(r.Value)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", r.Locator(), err)
	}
	env.Set("value", payload)
	return env, nil
}

func (r *Record) String() string {
	if r.IsSync() {
		return "<sync>"
	}
	return fmt.Sprintf("%s %s", r.Locator(), r.Value)
}

// Locator is a compact reference to a record: which log, which sequence.
type Locator struct {
	Log LogID
	Seq uint64
}

var ErrBadLocator = errors.New("bad locator")

// Bytes encodes the locator as TLV L<log> S<seq, big-endian>.
func (l Locator) Bytes() []byte {
	return protocol.Concat(
		protocol.Record('L', []byte(l.Log)),
		protocol.Record('S', binary.BigEndian.AppendUint64(nil, l.Seq)),
	)
}

func (l Locator) String() string {
	return fmt.Sprintf("%s@%d", l.Log, l.Seq)
}

func ParseLocator(data []byte) (Locator, error) {
	log, rest, err := protocol.TakeWary('L', data)
	if err != nil {
		return Locator{}, errors.Join(ErrBadLocator, err)
	}
	seq, _, err := protocol.TakeWary('S', rest)
	if err != nil {
		return Locator{}, errors.Join(ErrBadLocator, err)
	}
	if len(seq) != 8 {
		return Locator{}, ErrBadLocator
	}
	return Locator{Log: LogID(log), Seq: binary.BigEndian.Uint64(seq)}, nil
}

// ParseLocatorString reads the printable "<log>@<seq>" form.
func ParseLocatorString(s string) (Locator, error) {
	i := strings.LastIndexByte(s, '@')
	if i < 0 {
		return Locator{}, ErrBadLocator
	}
	seq, err := strconv.ParseUint(s[i+1:], 10, 64)
	if err != nil {
		return Locator{}, errors.Join(ErrBadLocator, err)
	}
	return Locator{Log: LogID(s[:i]), Seq: seq}, nil
}
