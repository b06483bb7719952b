package types

type ReportEntry struct {
	Name       string `yaml:"name"`
	Version    string `yaml:"version"`
	Upgrade    string `yaml:"upgrade,omitempty"`
	Diagnostic string `yaml:"diagnostic,omitempty"`
}

// HealthReport is the migration classification of every legacy crate.
type HealthReport struct {
	Migratable            []ReportEntry `yaml:"migratable"`
	EligibleNotMigratable []ReportEntry `yaml:"eligible_not_migratable"`
	Ineligible            []ReportEntry `yaml:"ineligible"`
	Superfluous           []ReportEntry `yaml:"superfluous"`
}

type UpdateSuggestion struct {
	Name       string `yaml:"name"`
	OldVersion string `yaml:"old_version"`
	Version    string `yaml:"version"`
}
