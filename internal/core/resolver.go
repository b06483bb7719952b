package core

import (
	"fmt"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"crate-tool/internal/types"
)

// VersionPair is a source crate and the destination it resolved to, if any.
type VersionPair[V any] struct {
	Source     Entry[V]
	Dest       Entry[V]
	Compatible bool
}

// CompatiblePair is a VersionPair known to have a destination.
type CompatiblePair[V any] struct {
	Source Entry[V]
	Dest   Entry[V]
}

// VersionResolver matches every source crate to the highest compatible
// destination crate. No destination is claimed by two sources.
type VersionResolver[V any] struct {
	source  *NameVersionIndex[V]
	dest    *NameVersionIndex[V]
	rule    types.CompatibilityRule
	matches map[types.CrateIdentity]types.CrateIdentity
	claimed map[types.CrateIdentity]types.CrateIdentity
}

func NewVersionResolver[V any](source *NameVersionIndex[V], dest *NameVersionIndex[V], rule types.CompatibilityRule) (*VersionResolver[V], error) {
	r := &VersionResolver[V]{
		source:  source,
		dest:    dest,
		rule:    rule,
		matches: map[types.CrateIdentity]types.CrateIdentity{},
		claimed: map[types.CrateIdentity]types.CrateIdentity{},
	}
	for _, id := range source.Keys() {
		destID, ok := dest.CompatibleUpgrade(id, rule)
		if !ok {
			continue
		}
		if err := r.claim(id, destID); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *VersionResolver[V]) claim(source types.CrateIdentity, dest types.CrateIdentity) error {
	if !r.dest.Contains(dest) {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("destination crate version %s expected but not found", dest))
	}
	if other, ok := r.claimed[dest]; ok {
		return errbuilder.New().
			WithCode(errbuilder.CodeAlreadyExists).
			WithMsg(fmt.Sprintf("destination crate version %s claimed by both %s and %s", dest, other, source))
	}
	r.claimed[dest] = source
	r.matches[source] = dest
	return nil
}

func (r *VersionResolver[V]) Rule() types.CompatibilityRule {
	return r.rule
}

func (r *VersionResolver[V]) Source() *NameVersionIndex[V] {
	return r.source
}

func (r *VersionResolver[V]) Dest() *NameVersionIndex[V] {
	return r.dest
}

// CompatibleVersion returns the destination identity source resolved to.
func (r *VersionResolver[V]) CompatibleVersion(source types.CrateIdentity) (types.CrateIdentity, bool) {
	if !r.source.Contains(source) {
		return types.CrateIdentity{}, false
	}
	match, ok := r.matches[source]
	return match, ok
}

// CompatibleItem returns the destination value source resolved to.
func (r *VersionResolver[V]) CompatibleItem(source types.CrateIdentity) (V, bool) {
	var zero V
	id, ok := r.CompatibleVersion(source)
	if !ok {
		return zero, false
	}
	return r.dest.Get(id)
}

// IsSuperfluous reports whether dest is a destination no source claimed.
func (r *VersionResolver[V]) IsSuperfluous(dest types.CrateIdentity) bool {
	if !r.dest.Contains(dest) {
		return false
	}
	_, claimed := r.claimed[dest]
	return !claimed
}

// Superfluous returns every unclaimed destination in identity order.
func (r *VersionResolver[V]) Superfluous() []Entry[V] {
	var out []Entry[V]
	for _, entry := range r.dest.Entries() {
		if r.IsSuperfluous(entry.Identity) {
			out = append(out, entry)
		}
	}
	return out
}

// Pairs returns every source with its destination, if any.
func (r *VersionResolver[V]) Pairs() []VersionPair[V] {
	var out []VersionPair[V]
	for _, entry := range r.source.Entries() {
		pair := VersionPair[V]{Source: entry}
		if id, ok := r.CompatibleVersion(entry.Identity); ok {
			value, _ := r.dest.Get(id)
			pair.Dest = Entry[V]{Identity: id, Value: value}
			pair.Compatible = true
		}
		out = append(out, pair)
	}
	return out
}

// CompatiblePairs returns only the sources that resolved.
func (r *VersionResolver[V]) CompatiblePairs() []CompatiblePair[V] {
	var out []CompatiblePair[V]
	for _, pair := range r.Pairs() {
		if pair.Compatible {
			out = append(out, CompatiblePair[V]{Source: pair.Source, Dest: pair.Dest})
		}
	}
	return out
}

// Unmatched returns the sources with no compatible destination.
func (r *VersionResolver[V]) Unmatched() []Entry[V] {
	var out []Entry[V]
	for _, pair := range r.Pairs() {
		if !pair.Compatible {
			out = append(out, pair.Source)
		}
	}
	return out
}
