package types

const (
	CrateConfigFileName = "android_config.toml"
	RepoConfigFileName  = "android_repo_config.toml"
	MetadataFileName    = "METADATA"
	BuildFileName       = "Android.bp"
	GeneratorConfigName = "cargo_embargo.json"
	CrateListFileName   = "crate-list.txt"
)

// CrateConfig holds per-crate settings from android_config.toml.
type CrateConfig struct {
	// Deletions are directories removed from the staged tree after the
	// customizations are overlaid.
	Deletions []string `toml:"deletions"`
	// UpdateWith names dependencies that must be updated in lockstep.
	UpdateWith []string `toml:"update_with"`
}

// RepoConfig holds repository-wide settings.
type RepoConfig struct {
	CrateDenylist     []string `toml:"crate_denylist"`
	MigrationDenylist []string `toml:"migration_denylist"`
}
