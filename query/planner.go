package query

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/drpcorg/feedview/indexes"
	"github.com/drpcorg/feedview/paths"
)

type Mode string

const (
	ModePredicate Mode = "predicate"
	ModeSort      Mode = "sort"
	ModeScan      Mode = "scan"
)

// Plan is a fully resolved read: which index and range to scan, or a full
// scan when Index is nil.
type Plan struct {
	Mode    Mode
	Index   *indexes.Entry
	Scan    bool
	Bounds  *Bounds
	Reverse bool
	Live    bool
	Old     bool
	Limit   int
	// Scores holds the prefix score of every ready index in predicate mode.
	Scores map[string]int
	Filter Filter
	// Remaining are the predicates the scan range does not enforce.
	Remaining Filter
	Sort      []paths.Path
}

func (p *Plan) String() string {
	var sb strings.Builder
	if p.Scan {
		sb.WriteString("full scan")
	} else {
		fmt.Fprintf(&sb, "index %s", &p.Index.Definition)
	}
	fmt.Fprintf(&sb, " (%s)\n", p.Mode)
	if p.Bounds != nil {
		fmt.Fprintf(&sb, "  %s covered %d\n", p.Bounds, p.Bounds.Covered)
	}
	if len(p.Scores) > 0 {
		scores := make([]string, 0, len(p.Scores))
		for _, key := range slices.Sorted(maps.Keys(p.Scores)) {
			scores = append(scores, fmt.Sprintf("%s=%d", key, p.Scores[key]))
		}
		fmt.Fprintf(&sb, "  scores %s\n", strings.Join(scores, " "))
	}
	fmt.Fprintf(&sb, "  filter %s\n  remaining %s\n", p.Filter, p.Remaining)
	fmt.Fprintf(&sb, "  reverse=%t live=%t old=%t limit=%d", p.Reverse, p.Live, p.Old, p.Limit)
	return sb.String()
}

// Planner selects indexes from a registry. It keeps no state between calls.
type Planner struct {
	registry *indexes.Registry
}

func NewPlanner(registry *indexes.Registry) *Planner {
	return &Planner{registry: registry}
}

// score is the length of the leading run of def's paths the filter can
// narrow: equalities extend it, a range ends it. eqs counts the equalities.
func score(def *indexes.Definition, f Filter) (score, eqs int) {
	for _, path := range def.FieldPaths {
		pred, ok := f.Lookup(path)
		if !ok || !pred.Indexable() {
			break
		}
		score++
		if !pred.IsEq() {
			break
		}
		eqs++
	}
	if def.Exact && eqs < len(def.FieldPaths) {
		return 0, eqs
	}
	return score, eqs
}

// Select picks the index for q. Sort-driven queries need an index whose
// paths equal the sort paths; otherwise the highest scoring ready index
// wins, earliest registered on ties. Nil means full scan.
func (pl *Planner) Select(q *Query) (*indexes.Entry, map[string]int) {
	if q.Sort != nil {
		e, ok := pl.registry.FindByPaths(q.Sort)
		if !ok || !e.Ready {
			return nil, nil
		}
		return e, nil
	}
	scores := map[string]int{}
	var best *indexes.Entry
	bestScore := 0
	for _, e := range pl.registry.All() {
		if !e.Ready {
			continue
		}
		s, _ := score(&e.Definition, q.Filter)
		scores[e.Key] = s
		if s > bestScore {
			best, bestScore = e, s
		}
	}
	return best, scores
}

// Explain resolves q and opts into a Plan without running it. Planning never
// fails: anything an index can't serve becomes a full scan.
func (pl *Planner) Explain(q *Query, opts Options) *Plan {
	plan := &Plan{
		Mode:    ModePredicate,
		Reverse: opts.Reverse || q.Reverse,
		Live:    opts.Live || opts.SkipOld,
		Old:     !opts.SkipOld,
		Limit:   opts.Limit,
		Filter:  q.Filter,
		Sort:    q.Sort,
	}
	if q.Sort != nil {
		plan.Mode = ModeSort
	}
	e, scores := pl.Select(q)
	plan.Scores = scores
	if e != nil {
		s, _ := score(&e.Definition, q.Filter)
		usable := q.Filter.Only(e.FieldPaths[:s])
		if bounds, err := BuildBounds(&e.Definition, usable); err == nil {
			plan.Index, plan.Bounds = e, bounds
			plan.Remaining = q.Filter.Without(e.FieldPaths[:bounds.Covered])
			return plan
		}
	}
	plan.Mode = ModeScan
	plan.Scan = true
	plan.Remaining = q.Filter
	return plan
}
