// Package feeds defines records, locators and the log collaborators the
// index engine reads through, plus reference log backends.
package feeds

import (
	"context"
	"errors"
	"iter"

	"github.com/drpcorg/feedview/feedview_errors"
	"github.com/valyala/fastjson"
)

// Validator gates which records are indexed and resolved. Returning nil
// rejects the record.
type Validator func(*Record) *Record

// TimestampValidator accepts records whose payload is an object carrying a
// numeric timestamp field.
func TimestampValidator(r *Record) *Record {
	v, err := fastjson.ParseBytes(r.Value)
	if err != nil || v.Type() != fastjson.TypeObject {
		return nil
	}
	ts := v.Get("timestamp")
	if ts == nil || ts.Type() != fastjson.TypeNumber {
		return nil
	}
	return r
}

type Log interface {
	ID() LogID
	// Len is the sequence number the next appended record will get.
	Len() uint64
	// Get returns feedview_errors.ErrRecordNotFound for unknown sequences.
	Get(ctx context.Context, seq uint64) (*Record, error)
	// ReadFrom yields records in ascending order starting at seq, up to the
	// end of the log at the time each step runs.
	ReadFrom(ctx context.Context, seq uint64) iter.Seq2[*Record, error]
}

type Logs interface {
	// All lists logs sorted by id.
	All() []Log
	Log(id LogID) (Log, bool)
}

// Appender is implemented by the writable backends in this package.
type Appender interface {
	Append(ctx context.Context, id LogID, value []byte) (*Record, error)
}

type Resolver interface {
	Resolve(ctx context.Context, loc Locator) (*Record, error)
}

type ResolverFunc func(ctx context.Context, loc Locator) (*Record, error)

func (f ResolverFunc) Resolve(ctx context.Context, loc Locator) (*Record, error) {
	return f(ctx, loc)
}

func validated(rec *Record, validate Validator) (*Record, error) {
	if validate == nil {
		return rec, nil
	}
	if out := validate(rec); out != nil {
		return out, nil
	}
	return nil, errors.Join(feedview_errors.ErrRecordNotFound, feedview_errors.ErrRejected)
}

// FromLogs resolves locators against a set of logs, picking the log the
// locator names. validate may be nil.
func FromLogs(logs Logs, validate Validator) Resolver {
	return ResolverFunc(func(ctx context.Context, loc Locator) (*Record, error) {
		log, ok := logs.Log(loc.Log)
		if !ok {
			return nil, feedview_errors.ErrRecordNotFound
		}
		rec, err := log.Get(ctx, loc.Seq)
		if err != nil {
			return nil, err
		}
		return validated(rec, validate)
	})
}

// FromLog resolves locators against one log; the log part of a locator must
// name it.
func FromLog(log Log, validate Validator) Resolver {
	return ResolverFunc(func(ctx context.Context, loc Locator) (*Record, error) {
		if loc.Log != log.ID() {
			return nil, feedview_errors.ErrRecordNotFound
		}
		rec, err := log.Get(ctx, loc.Seq)
		if err != nil {
			return nil, err
		}
		return validated(rec, validate)
	})
}
