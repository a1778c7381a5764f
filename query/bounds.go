package query

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/drpcorg/feedview/feedview_errors"
	"github.com/drpcorg/feedview/indexes"
	"github.com/drpcorg/feedview/keys"
	"github.com/valyala/fastjson"
)

// Bound is one component of a scan bound: a value, or a sentinel when Value
// is nil (global LO/HI, or the min/max of a type for a half-open range).
type Bound struct {
	Value     *fastjson.Value
	Exclusive bool
	Sentinel  string
}

func sentinel(name string) Bound {
	return Bound{Sentinel: name}
}

// Bounds are per-component scan bounds plus the key range [LowerKey,
// UpperKey) they encode to. Only the first Covered components narrow the
// key range; later ones are matched by the post-filter.
type Bounds struct {
	Lower, Upper []Bound
	LowerKey     []byte
	UpperKey     []byte
	Covered      int
}

// Contains reports whether an entry key falls in the scanned range.
func (b *Bounds) Contains(key []byte) bool {
	return bytes.Compare(key, b.LowerKey) >= 0 && bytes.Compare(key, b.UpperKey) < 0
}

func (b *Bounds) String() string {
	lower := make([]string, len(b.Lower))
	upper := make([]string, len(b.Upper))
	for i := range b.Lower {
		lower[i] = b.Lower[i].format("(", "")
		upper[i] = b.Upper[i].format("", ")")
	}
	return fmt.Sprintf("lower [%s] upper [%s]", strings.Join(lower, ", "), strings.Join(upper, ", "))
}

// exclusive bounds print as (v on the lower side and v) on the upper side
func (b Bound) format(open, close string) string {
	if b.Value == nil {
		return b.Sentinel
	}
	if b.Exclusive {
		return open + b.Value.String() + close
	}
	return b.Value.String()
}

// componentRange is the range of component encodings a range predicate
// admits, lo inclusive, hi exclusive. Where both a strict and a non-strict
// operator bound the same end, the tighter one wins. A missing end stays
// within the type of the other end.
func componentRange(r *Range) (lo, hi []byte, loB, hiB Bound) {
	if r.Gte != nil {
		lo, _ = keys.Encode(r.Gte)
		loB = Bound{Value: r.Gte}
	}
	if r.Gt != nil {
		enc, _ := keys.Encode(r.Gt)
		if succ := keys.Successor(enc); lo == nil || bytes.Compare(succ, lo) > 0 {
			lo, loB = succ, Bound{Value: r.Gt, Exclusive: true}
		}
	}
	if r.Lte != nil {
		enc, _ := keys.Encode(r.Lte)
		hi, hiB = keys.Successor(enc), Bound{Value: r.Lte}
	}
	if r.Lt != nil {
		if enc, _ := keys.Encode(r.Lt); hi == nil || bytes.Compare(enc, hi) < 0 {
			hi, hiB = enc, Bound{Value: r.Lt, Exclusive: true}
		}
	}
	switch {
	case lo == nil && hi != nil:
		kind := keys.KindOf(hiB.Value)
		lo, loB = kind.Min(), sentinel("min("+kind.String()+")")
	case hi == nil && lo != nil:
		kind := keys.KindOf(loB.Value)
		hi, hiB = kind.Max(), sentinel("max("+kind.String()+")")
	}
	return lo, hi, loB, hiB
}

// BuildBounds turns the predicates on def's field paths into scan bounds.
// Equalities pin a component; the first range ends the narrowable prefix.
// A component with no usable predicate is unconstrained, which an exact
// index does not allow, and no constrained component may follow it.
func BuildBounds(def *indexes.Definition, f Filter) (*Bounds, error) {
	n := len(def.FieldPaths)
	b := &Bounds{Lower: make([]Bound, n), Upper: make([]Bound, n)}
	lower := indexes.Prefix(def.Key)
	upper := indexes.Prefix(def.Key)
	unconstrained, ranged := false, false
	for i, path := range def.FieldPaths {
		pred, ok := f.Lookup(path)
		if !ok || !pred.Indexable() {
			if def.Exact {
				return nil, errors.Join(feedview_errors.ErrExactUnderqualified,
					fmt.Errorf("index %s needs an equality on %s", def.Key, path))
			}
			unconstrained = true
			b.Lower[i], b.Upper[i] = sentinel("LO"), sentinel("HI")
			continue
		}
		if unconstrained {
			return nil, errors.Join(feedview_errors.ErrSkippedComponent,
				fmt.Errorf("index %s: %s follows an unconstrained component", def.Key, path))
		}
		if def.Exact && !pred.IsEq() {
			return nil, errors.Join(feedview_errors.ErrExactUnderqualified,
				fmt.Errorf("index %s can't serve a range on %s", def.Key, path))
		}
		if pred.IsEq() {
			b.Lower[i] = Bound{Value: pred.Value}
			b.Upper[i] = Bound{Value: pred.Value}
			if !ranged {
				enc, _ := keys.Encode(pred.Value)
				lower = append(lower, enc...)
				upper = append(upper, enc...)
				b.Covered++
			}
			continue
		}
		lo, hi, loB, hiB := componentRange(pred.Range)
		b.Lower[i], b.Upper[i] = loB, hiB
		if !ranged {
			lower = append(lower, lo...)
			upper = append(upper, hi...)
			b.Covered++
			ranged = true
		}
	}
	if !ranged {
		upper = append(upper, byte(keys.Hi))
	}
	b.LowerKey, b.UpperKey = lower, upper
	return b, nil
}
