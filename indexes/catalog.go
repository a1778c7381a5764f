package indexes

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/drpcorg/feedview/feedview_errors"
	"github.com/drpcorg/feedview/keys"
	"github.com/drpcorg/feedview/store"
	"github.com/valyala/fastjson"
)

// Definitions whose entries are complete are recorded in the store as
// 'M' "idx/" key -> {"key":..,"value":..,"exact":..,"n":ordinal}. The
// ordinal keeps declaration order across restarts.

var definitionPrefix = []byte{MetaPrefix, 'i', 'd', 'x', '/'}

func DefinitionKey(indexKey string) []byte {
	return append(slices.Clip(definitionPrefix), indexKey...)
}

type storedDefinition struct {
	Definition
	n uint64
}

func (sd *storedDefinition) bytes() []byte {
	var a fastjson.Arena
	obj := a.NewObject()
	sd.appendJSON(&a, obj)
	obj.Set("n", a.NewNumberString(strconv.FormatUint(sd.n, 10)))
	return obj.MarshalTo(nil)
}

func parseStoredDefinition(data []byte) (*storedDefinition, error) {
	v, err := fastjson.ParseBytes(data)
	if err != nil {
		return nil, errors.Join(feedview_errors.ErrCorruptState, err)
	}
	def, err := definitionFromValue(v)
	if err != nil {
		return nil, errors.Join(feedview_errors.ErrCorruptState, err)
	}
	return &storedDefinition{Definition: *def, n: v.GetUint64("n")}, nil
}

// loadDefinitions returns the recorded definitions in declaration order.
func loadDefinitions(r store.Reader) ([]*storedDefinition, error) {
	var out []*storedDefinition
	for kv, err := range r.Scan(definitionPrefix, keys.PrefixEnd(definitionPrefix), false) {
		if err != nil {
			return nil, err
		}
		sd, err := parseStoredDefinition(kv.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, sd)
	}
	slices.SortFunc(out, func(a, b *storedDefinition) int {
		return cmp.Or(cmp.Compare(a.n, b.n), strings.Compare(a.Key, b.Key))
	})
	return out, nil
}

// Definitions lists the indexes whose entries the store holds, in the order
// they were first declared.
func (ix *Indexer) Definitions() ([]Definition, error) {
	stored, err := loadDefinitions(ix.store)
	if err != nil {
		return nil, err
	}
	defs := make([]Definition, len(stored))
	for i, sd := range stored {
		defs[i] = sd.Definition
	}
	return defs, nil
}

// recorded looks def up among the stored definitions and picks the ordinal
// it is recorded under. A stored index of the same key must match def:
// its entries were built from the stored field paths.
func recorded(stored []*storedDefinition, def *Definition) (*storedDefinition, bool, error) {
	next := uint64(0)
	for _, sd := range stored {
		if sd.Key == def.Key {
			if !sd.Equal(def) {
				return nil, false, errors.Join(feedview_errors.ErrDuplicateIndex,
					fmt.Errorf("index %q is stored as %s", def.Key, &sd.Definition))
			}
			return sd, true, nil
		}
		next = max(next, sd.n+1)
	}
	return &storedDefinition{Definition: *def, n: next}, false, nil
}
