package indexes

import (
	"errors"
	"fmt"
	"sync"

	"github.com/drpcorg/feedview/feedview_errors"
	"github.com/drpcorg/feedview/paths"
	"github.com/valyala/fastjson"
)

// Definition declares a composite index. FieldPaths are most significant
// first. An Exact index only serves queries that pin every component with an
// equality.
type Definition struct {
	Key        string
	FieldPaths []paths.Path
	Exact      bool
}

func (d *Definition) String() string {
	if d.Exact {
		return fmt.Sprintf("%s %s exact", d.Key, paths.JoinAll(d.FieldPaths))
	}
	return fmt.Sprintf("%s %s", d.Key, paths.JoinAll(d.FieldPaths))
}

// ParseDefinition reads {"key": "typ", "value": [["value","type"], ...],
// "exact": false}. "value" takes any form paths.FromJSON accepts.
func ParseDefinition(data []byte) (*Definition, error) {
	v, err := fastjson.ParseBytes(data)
	if err != nil {
		return nil, errors.Join(feedview_errors.ErrBadQuery, err)
	}
	return definitionFromValue(v)
}

func definitionFromValue(v *fastjson.Value) (*Definition, error) {
	ps, err := paths.FromJSON(v.Get("value"))
	if err != nil {
		return nil, err
	}
	return &Definition{
		Key:        string(v.GetStringBytes("key")),
		FieldPaths: ps,
		Exact:      v.GetBool("exact"),
	}, nil
}

// Equal reports whether both definitions describe the same index.
func (d *Definition) Equal(other *Definition) bool {
	return d.Key == other.Key && d.Exact == other.Exact && paths.EqualAll(d.FieldPaths, other.FieldPaths)
}

// appendJSON writes the form ParseDefinition reads, fields as arrays.
func (d *Definition) appendJSON(a *fastjson.Arena, obj *fastjson.Value) {
	obj.Set("key", a.NewString(d.Key))
	list := a.NewArray()
	for i, p := range d.FieldPaths {
		path := a.NewArray()
		for j, f := range p {
			path.SetArrayItem(j, a.NewString(string(f)))
		}
		list.SetArrayItem(i, path)
	}
	obj.Set("value", list)
	if d.Exact {
		obj.Set("exact", a.NewTrue())
	} else {
		obj.Set("exact", a.NewFalse())
	}
}

func (d *Definition) Bytes() []byte {
	var a fastjson.Arena
	obj := a.NewObject()
	d.appendJSON(&a, obj)
	return obj.MarshalTo(nil)
}

// Entry is a registered definition. Entries are immutable; readiness
// changes replace the entry.
type Entry struct {
	Definition
	// Ready is false while a late-registered index is backfilled.
	Ready bool
}

// Registry holds index definitions in declaration order. Registration is
// append-only.
type Registry struct {
	lock    sync.RWMutex
	entries []*Entry
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Register(def Definition) error {
	return r.register(def, true)
}

func (r *Registry) register(def Definition, ready bool) error {
	if len(def.FieldPaths) == 0 {
		return errors.Join(feedview_errors.ErrEmptyFieldPaths, fmt.Errorf("index %q", def.Key))
	}
	for _, p := range def.FieldPaths {
		if len(p) == 0 {
			return errors.Join(feedview_errors.ErrEmptyFieldPaths, fmt.Errorf("index %q has an empty path", def.Key))
		}
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, e := range r.entries {
		if e.Key == def.Key {
			return errors.Join(feedview_errors.ErrDuplicateIndex, fmt.Errorf("index %q", def.Key))
		}
	}
	// readers keep the old slice
	next := make([]*Entry, len(r.entries), len(r.entries)+1)
	copy(next, r.entries)
	r.entries = append(next, &Entry{Definition: def, Ready: ready})
	return nil
}

func (r *Registry) markReady(key string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	next := make([]*Entry, len(r.entries))
	for i, e := range r.entries {
		if e.Key == key && !e.Ready {
			e = &Entry{Definition: e.Definition, Ready: true}
		}
		next[i] = e
	}
	r.entries = next
}

func (r *Registry) Lookup(key string) (*Entry, bool) {
	for _, e := range r.All() {
		if e.Key == key {
			return e, true
		}
	}
	return nil, false
}

// All returns the entries in declaration order. The slice must not be
// modified.
func (r *Registry) All() []*Entry {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.entries
}

// FindByLeadingPaths returns the first index whose field paths start with ps.
func (r *Registry) FindByLeadingPaths(ps []paths.Path) (*Entry, bool) {
	for _, e := range r.All() {
		if paths.HasPrefix(e.FieldPaths, ps) {
			return e, true
		}
	}
	return nil, false
}

// FindByPaths returns the first index whose field paths equal ps.
func (r *Registry) FindByPaths(ps []paths.Path) (*Entry, bool) {
	for _, e := range r.All() {
		if paths.EqualAll(e.FieldPaths, ps) {
			return e, true
		}
	}
	return nil, false
}
