// Package query parses structured queries, plans them against the index
// registry and builds the key ranges the plans scan.
//
// A query is either a bare filter object or a list of stages:
//
//	[{"$filter": {"value": {"type": "chat/message", "timestamp": {"$gt": 700}}}},
//	 {"$sort": ["value", "timestamp"], "$reverse": true}]
//
// Nested filter objects flatten into one predicate per field path. An object
// whose keys are all range operators ($gt, $gte, $lt, $lte) is a range on its
// path; any other value is an equality.
package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/drpcorg/feedview/feedview_errors"
	"github.com/drpcorg/feedview/keys"
	"github.com/drpcorg/feedview/paths"
	"github.com/valyala/fastjson"
)

// Range holds the operators given for one path; nil means absent.
type Range struct {
	Gt, Gte, Lt, Lte *fastjson.Value
}

// Predicate constrains one field path, by equality when Value is set or by
// Range otherwise.
type Predicate struct {
	Path  paths.Path
	Value *fastjson.Value
	Range *Range
}

func (p *Predicate) IsEq() bool {
	return p.Range == nil
}

// Indexable reports whether the predicate can narrow an index scan. Null
// values are never indexed, so an equality with null cannot.
func (p *Predicate) Indexable() bool {
	return p.Range != nil || p.Value.Type() != fastjson.TypeNull
}

func (p *Predicate) String() string {
	if p.IsEq() {
		return fmt.Sprintf("%s = %s", p.Path, p.Value)
	}
	var ops []string
	for _, op := range []struct {
		name string
		v    *fastjson.Value
	}{{">", p.Range.Gt}, {">=", p.Range.Gte}, {"<", p.Range.Lt}, {"<=", p.Range.Lte}} {
		if op.v != nil {
			ops = append(ops, fmt.Sprintf("%s %s %s", p.Path, op.name, op.v))
		}
	}
	return strings.Join(ops, " && ")
}

// Filter is a conjunction of predicates in the order the query lists them.
type Filter []Predicate

func (f Filter) Lookup(p paths.Path) (*Predicate, bool) {
	for i := range f {
		if f[i].Path.Equal(p) {
			return &f[i], true
		}
	}
	return nil, false
}

// Only keeps the predicates on the given paths.
func (f Filter) Only(ps []paths.Path) Filter {
	var out Filter
	for _, pred := range f {
		for _, p := range ps {
			if pred.Path.Equal(p) {
				out = append(out, pred)
				break
			}
		}
	}
	return out
}

// Without drops the predicates on the given paths.
func (f Filter) Without(ps []paths.Path) Filter {
	var out Filter
next:
	for _, pred := range f {
		for _, p := range ps {
			if pred.Path.Equal(p) {
				continue next
			}
		}
		out = append(out, pred)
	}
	return out
}

func (f Filter) String() string {
	if len(f) == 0 {
		return "-"
	}
	parts := make([]string, len(f))
	for i := range f {
		parts[i] = f[i].String()
	}
	return strings.Join(parts, ", ")
}

// Query is a parsed filter plus an optional trailing sort directive.
type Query struct {
	Filter Filter
	// Sort names the index field paths to scan in order; nil when absent.
	Sort    []paths.Path
	Reverse bool
}

// Options are the read options: Live continues after the backfill, SkipOld
// skips the backfill (and implies Live), Limit caps data records.
type Options struct {
	Reverse bool
	Live    bool
	SkipOld bool
	Limit   int
}

func badQuery(format string, args ...any) error {
	return errors.Join(feedview_errors.ErrBadQuery, fmt.Errorf(format, args...))
}

// Parse reads a query from JSON. Empty input is the match-all query.
func Parse(data []byte) (*Query, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return &Query{}, nil
	}
	v, err := fastjson.ParseBytes(data)
	if err != nil {
		return nil, errors.Join(feedview_errors.ErrBadQuery, err)
	}
	return FromValue(v)
}

func FromValue(v *fastjson.Value) (*Query, error) {
	q := &Query{}
	if v == nil || v.Type() == fastjson.TypeNull {
		return q, nil
	}
	switch v.Type() {
	case fastjson.TypeObject:
		f, err := ParseFilter(v)
		if err != nil {
			return nil, err
		}
		q.Filter = f
		return q, nil
	case fastjson.TypeArray:
	default:
		return nil, badQuery("query must be an object or a list of stages, got %s", v.Type())
	}
	stages, _ := v.Array()
	for i, stage := range stages {
		obj, err := stage.Object()
		if err != nil {
			return nil, badQuery("stage %d is not an object", i)
		}
		var serr error
		obj.Visit(func(key []byte, val *fastjson.Value) {
			if serr != nil {
				return
			}
			switch k := string(key); {
			case k == "$filter" && i == 0:
				q.Filter, serr = ParseFilter(val)
			case k == "$sort" && i == len(stages)-1:
				q.Sort, serr = paths.FromJSON(val)
			case k == "$reverse" && i == len(stages)-1:
				q.Reverse = val.Type() == fastjson.TypeTrue
			default:
				serr = badQuery("unsupported stage operator %q in stage %d", k, i)
			}
		})
		if serr != nil {
			return nil, serr
		}
	}
	return q, nil
}

// ParseFilter flattens a nested filter object into predicates.
func ParseFilter(v *fastjson.Value) (Filter, error) {
	if v.Type() != fastjson.TypeObject {
		return nil, badQuery("filter must be an object, got %s", v.Type())
	}
	var f Filter
	if err := flatten(nil, v, &f); err != nil {
		return nil, err
	}
	return f, nil
}

func flatten(prefix paths.Path, v *fastjson.Value, f *Filter) error {
	obj, _ := v.Object()
	var err error
	obj.Visit(func(key []byte, val *fastjson.Value) {
		if err != nil {
			return
		}
		if len(key) > 0 && key[0] == '$' {
			err = badQuery("operator %q where a field name is expected", key)
			return
		}
		path := append(prefix[:len(prefix):len(prefix)], paths.Field(key))
		if val.Type() != fastjson.TypeObject {
			if _, ok := keys.Encode(val); !ok {
				err = badQuery("value of %s is not comparable", path)
				return
			}
			*f = append(*f, Predicate{Path: path, Value: val})
			return
		}
		if !isRange(val) {
			err = flatten(path, val, f)
			return
		}
		var r *Range
		if r, err = parseRange(path, val); err == nil {
			*f = append(*f, Predicate{Path: path, Range: r})
		}
	})
	return err
}

func isRange(v *fastjson.Value) bool {
	obj, _ := v.Object()
	ops := false
	obj.Visit(func(key []byte, _ *fastjson.Value) {
		if len(key) > 0 && key[0] == '$' {
			ops = true
		}
	})
	return ops
}

func parseRange(path paths.Path, v *fastjson.Value) (*Range, error) {
	obj, _ := v.Object()
	r := &Range{}
	var err error
	obj.Visit(func(key []byte, val *fastjson.Value) {
		if err != nil {
			return
		}
		if _, ok := keys.Encode(val); !ok {
			err = badQuery("range bound %s on %s is not comparable", key, path)
			return
		}
		switch string(key) {
		case "$gt":
			r.Gt = val
		case "$gte":
			r.Gte = val
		case "$lt":
			r.Lt = val
		case "$lte":
			r.Lte = val
		default:
			err = badQuery("unsupported operator %q on %s", key, path)
		}
	})
	return r, err
}
