package core

import (
	"fmt"
	"sort"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"crate-tool/internal/types"
)

// Entry is one (identity, value) pair of a NameVersionIndex.
type Entry[V any] struct {
	Identity types.CrateIdentity
	Value    V
}

// NameVersionIndex is an ordered map keyed by crate identity. Iteration is
// always in identity order: by name, then ascending version.
type NameVersionIndex[V any] struct {
	values map[types.CrateIdentity]V
	keys   []types.CrateIdentity
}

func NewNameVersionIndex[V any]() *NameVersionIndex[V] {
	return &NameVersionIndex[V]{values: map[types.CrateIdentity]V{}}
}

// InsertOrError adds id. A duplicate leaves the index unchanged.
func (x *NameVersionIndex[V]) InsertOrError(id types.CrateIdentity, value V) error {
	if _, ok := x.values[id]; ok {
		return errbuilder.New().
			WithCode(errbuilder.CodeAlreadyExists).
			WithMsg(fmt.Sprintf("duplicate crate identity %s", id))
	}
	x.values[id] = value
	pos := sort.Search(len(x.keys), func(i int) bool {
		return !x.keys[i].Less(id)
	})
	x.keys = append(x.keys, types.CrateIdentity{})
	copy(x.keys[pos+1:], x.keys[pos:])
	x.keys[pos] = id
	return nil
}

func (x *NameVersionIndex[V]) Get(id types.CrateIdentity) (V, bool) {
	value, ok := x.values[id]
	return value, ok
}

func (x *NameVersionIndex[V]) Contains(id types.CrateIdentity) bool {
	_, ok := x.values[id]
	return ok
}

func (x *NameVersionIndex[V]) ContainsName(name string) bool {
	return len(x.Versions(name)) > 0
}

func (x *NameVersionIndex[V]) Len() int {
	return len(x.keys)
}

func (x *NameVersionIndex[V]) Keys() []types.CrateIdentity {
	return append([]types.CrateIdentity(nil), x.keys...)
}

func (x *NameVersionIndex[V]) Entries() []Entry[V] {
	out := make([]Entry[V], 0, len(x.keys))
	for _, id := range x.keys {
		out = append(out, Entry[V]{Identity: id, Value: x.values[id]})
	}
	return out
}

// Names returns distinct crate names in order.
func (x *NameVersionIndex[V]) Names() []string {
	var names []string
	for _, id := range x.keys {
		if len(names) == 0 || names[len(names)-1] != id.Name {
			names = append(names, id.Name)
		}
	}
	return names
}

// Versions returns every version of name, ascending.
func (x *NameVersionIndex[V]) Versions(name string) []Entry[V] {
	start := sort.Search(len(x.keys), func(i int) bool {
		return x.keys[i].Name >= name
	})
	var out []Entry[V]
	for i := start; i < len(x.keys) && x.keys[i].Name == name; i++ {
		out = append(out, Entry[V]{Identity: x.keys[i], Value: x.values[x.keys[i]]})
	}
	return out
}

// CompatibleUpgrade returns the highest version of candidate's crate that
// candidate may be upgraded to under rule.
func (x *NameVersionIndex[V]) CompatibleUpgrade(candidate types.CrateIdentity, rule types.CompatibilityRule) (types.CrateIdentity, bool) {
	var best types.CrateIdentity
	found := false
	for _, entry := range x.Versions(candidate.Name) {
		if IsUpgradableTo(candidate.Version, entry.Identity.Version, rule) {
			best = entry.Identity
			found = true
		}
	}
	return best, found
}

// Retain drops every entry for which keep returns false.
func (x *NameVersionIndex[V]) Retain(keep func(types.CrateIdentity, V) bool) {
	kept := x.keys[:0]
	for _, id := range x.keys {
		if keep(id, x.values[id]) {
			kept = append(kept, id)
			continue
		}
		delete(x.values, id)
	}
	x.keys = kept
}

func (x *NameVersionIndex[V]) groups() [][]Entry[V] {
	var out [][]Entry[V]
	for _, name := range x.Names() {
		out = append(out, x.Versions(name))
	}
	return out
}

// SingleVersion returns the crates that have exactly one version.
func (x *NameVersionIndex[V]) SingleVersion() []Entry[V] {
	var out []Entry[V]
	for _, group := range x.groups() {
		if len(group) == 1 {
			out = append(out, group[0])
		}
	}
	return out
}

// MultiVersion returns every version of crates that have more than one.
func (x *NameVersionIndex[V]) MultiVersion() []Entry[V] {
	var out []Entry[V]
	for _, group := range x.groups() {
		if len(group) > 1 {
			out = append(out, group...)
		}
	}
	return out
}

// MostRecent returns the highest version of every crate.
func (x *NameVersionIndex[V]) MostRecent() []Entry[V] {
	var out []Entry[V]
	for _, group := range x.groups() {
		out = append(out, group[len(group)-1])
	}
	return out
}
