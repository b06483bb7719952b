package core

// Migratable is implemented by values that can be classified for
// migration. Eligibility is asked of sources, migratability of
// destinations.
type Migratable interface {
	IsMigrationEligible() bool
	IsMigratable() bool
}

// Ineligible returns the source crates that cannot be migrated at all.
func Ineligible[V Migratable](r *VersionResolver[V]) []Entry[V] {
	var out []Entry[V]
	for _, entry := range r.source.Entries() {
		if !entry.Value.IsMigrationEligible() {
			out = append(out, entry)
		}
	}
	return out
}

// EligibleButNotMigratable returns eligible sources that either have no
// compatible destination or whose destination failed to stage cleanly.
func EligibleButNotMigratable[V Migratable](r *VersionResolver[V]) []VersionPair[V] {
	var out []VersionPair[V]
	for _, pair := range r.Pairs() {
		if !pair.Source.Value.IsMigrationEligible() {
			continue
		}
		if pair.Compatible && pair.Dest.Value.IsMigratable() {
			continue
		}
		out = append(out, pair)
	}
	return out
}

func CompatibleAndEligible[V Migratable](r *VersionResolver[V]) []CompatiblePair[V] {
	var out []CompatiblePair[V]
	for _, pair := range r.CompatiblePairs() {
		if pair.Source.Value.IsMigrationEligible() {
			out = append(out, pair)
		}
	}
	return out
}

func MigratablePairs[V Migratable](r *VersionResolver[V]) []CompatiblePair[V] {
	var out []CompatiblePair[V]
	for _, pair := range CompatibleAndEligible(r) {
		if pair.Dest.Value.IsMigratable() {
			out = append(out, pair)
		}
	}
	return out
}

// Classification groups every source and destination of a resolver into
// the four migration buckets.
type Classification[V Migratable] struct {
	Migratable            []CompatiblePair[V]
	EligibleNotMigratable []VersionPair[V]
	Ineligible            []Entry[V]
	Superfluous           []Entry[V]
}

func Classify[V Migratable](r *VersionResolver[V]) Classification[V] {
	return Classification[V]{
		Migratable:            MigratablePairs(r),
		EligibleNotMigratable: EligibleButNotMigratable(r),
		Ineligible:            Ineligible(r),
		Superfluous:           r.Superfluous(),
	}
}
