// Package paths resolves field paths against JSON documents.
//
// An Expr is either a single Field looked up at the top level, or a Path of
// fields applied as successive lookups. A composite index is an ordered list
// of Paths, each resolved independently against the same document.
package paths

import (
	"errors"
	"fmt"
	"strings"

	"github.com/drpcorg/feedview/feedview_errors"
	"github.com/valyala/fastjson"
)

type Expr interface {
	resolve(doc *fastjson.Value) *fastjson.Value
	String() string
}

type Field string

func (f Field) resolve(doc *fastjson.Value) *fastjson.Value {
	if doc == nil {
		return nil
	}
	// Value.Get also indexes arrays by decimal position
	return doc.Get(string(f))
}

func (f Field) String() string {
	return string(f)
}

type Path []Field

func (p Path) resolve(doc *fastjson.Value) *fastjson.Value {
	if len(p) == 0 {
		return doc
	}
	return p[1:].resolve(p[0].resolve(doc))
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, f := range p {
		parts[i] = string(f)
	}
	return strings.Join(parts, ".")
}

func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// Parse splits a dotted path, "value.type" -> [value type].
func Parse(dotted string) Path {
	if dotted == "" {
		return nil
	}
	parts := strings.Split(dotted, ".")
	p := make(Path, len(parts))
	for i, part := range parts {
		p[i] = Field(part)
	}
	return p
}

// Extract resolves expr against doc. Missing fields and JSON null are absent.
func Extract(doc *fastjson.Value, expr Expr) (*fastjson.Value, bool) {
	v := expr.resolve(doc)
	if v == nil || v.Type() == fastjson.TypeNull {
		return nil, false
	}
	return v, true
}

// ExtractAll resolves every path of a composite against the same document.
// It is all-or-nothing: one absent component fails the whole extraction.
func ExtractAll(doc *fastjson.Value, ps []Path) ([]*fastjson.Value, bool) {
	vals := make([]*fastjson.Value, len(ps))
	for i, p := range ps {
		v, ok := Extract(doc, p)
		if !ok {
			return nil, false
		}
		vals[i] = v
	}
	return vals, true
}

func EqualAll(a, b []Path) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is a leading sublist of ps.
func HasPrefix(ps, prefix []Path) bool {
	return len(prefix) <= len(ps) && EqualAll(ps[:len(prefix)], prefix)
}

func JoinAll(ps []Path) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = p.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

var errBadPath = errors.New("path must be a string or an array of strings")

// FromJSON reads the index/sort forms used in definitions and queries:
//
//	"value.timestamp"                           one path, dotted
//	["value", "timestamp"]                      one path
//	[["value", "type"], ["value", "timestamp"]] composite
func FromJSON(v *fastjson.Value) ([]Path, error) {
	if v == nil {
		return nil, errors.Join(feedview_errors.ErrBadQuery, errBadPath)
	}
	switch v.Type() {
	case fastjson.TypeString:
		return []Path{Parse(string(v.GetStringBytes()))}, nil
	case fastjson.TypeArray:
		items, _ := v.Array()
		if len(items) == 0 {
			return nil, nil
		}
		if items[0].Type() == fastjson.TypeArray {
			out := make([]Path, 0, len(items))
			for _, item := range items {
				p, err := pathFromArray(item)
				if err != nil {
					return nil, err
				}
				out = append(out, p)
			}
			return out, nil
		}
		p, err := pathFromArray(v)
		if err != nil {
			return nil, err
		}
		return []Path{p}, nil
	default:
		return nil, errors.Join(feedview_errors.ErrBadQuery, errBadPath)
	}
}

func pathFromArray(v *fastjson.Value) (Path, error) {
	items, err := v.Array()
	if err != nil {
		return nil, errors.Join(feedview_errors.ErrBadQuery, errBadPath)
	}
	p := make(Path, 0, len(items))
	for _, item := range items {
		if item.Type() != fastjson.TypeString {
			return nil, errors.Join(feedview_errors.ErrBadQuery, fmt.Errorf("path element %s is not a string", item))
		}
		p = append(p, Field(item.GetStringBytes()))
	}
	return p, nil
}
