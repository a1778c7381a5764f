package query

import (
	"bytes"

	"github.com/drpcorg/feedview/keys"
	"github.com/drpcorg/feedview/paths"
	"github.com/valyala/fastjson"
)

// Matcher decides whether a record document passes a filter.
type Matcher interface {
	Match(doc *fastjson.Value, f Filter) bool
}

type MatcherFunc func(doc *fastjson.Value, f Filter) bool

func (m MatcherFunc) Match(doc *fastjson.Value, f Filter) bool {
	return m(doc, f)
}

// DefaultMatcher compares values by their key encodings, so it agrees with
// index scans on every bound, type boundaries included.
type DefaultMatcher struct{}

func (DefaultMatcher) Match(doc *fastjson.Value, f Filter) bool {
	for i := range f {
		if !f[i].Match(doc) {
			return false
		}
	}
	return true
}

func (p *Predicate) Match(doc *fastjson.Value) bool {
	v, ok := paths.Extract(doc, p.Path)
	if p.IsEq() && p.Value.Type() == fastjson.TypeNull {
		return !ok
	}
	if !ok {
		return false
	}
	enc, ok := keys.Encode(v)
	if !ok {
		return false
	}
	if p.IsEq() {
		want, _ := keys.Encode(p.Value)
		return bytes.Equal(enc, want)
	}
	lo, hi, _, _ := componentRange(p.Range)
	return bytes.Compare(enc, lo) >= 0 && bytes.Compare(enc, hi) < 0
}
