package types

// CompatibilityRule selects how strictly semver-zero crates are matched.
// Every caller chooses one explicitly; nothing defaults to relaxed.
type CompatibilityRule int

const (
	RuleStrict CompatibilityRule = iota
	RuleRelaxed
)

func (r CompatibilityRule) String() string {
	switch r {
	case RuleStrict:
		return "strict"
	case RuleRelaxed:
		return "relaxed"
	default:
		return "unknown"
	}
}

type Verdict string

const (
	VerdictHealthy   Verdict = "healthy"
	VerdictUnhealthy Verdict = "UNHEALTHY"
)

type Bucket string

const (
	BucketMigratable            Bucket = "migratable"
	BucketEligibleNotMigratable Bucket = "eligible-not-migratable"
	BucketIneligible            Bucket = "ineligible"
	BucketSuperfluous           Bucket = "superfluous"
)
