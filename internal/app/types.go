package app

import "crate-tool/internal/types"

type RegenerateRequest struct {
	// Names defaults to every dependency of the pseudo-crate.
	Names          []string
	UpdateMetadata bool
	FailFast       bool
}

type MigrateRequest struct {
	Names []string
	// Unpinned crates are registered with a caret requirement instead of
	// an exact version.
	Unpinned []string
	FailFast bool
}

type MigrationHealthRequest struct {
	Name     string
	Unpinned bool
}

type MigrationHealthResult struct {
	Name    string
	Version string
	Healthy bool
	// Diagnostics holds the reasons the crate is unhealthy, or notes
	// about a healthy one.
	Diagnostics []string
}

type PreuploadRequest struct {
	// Files are changed paths, relative to the managed tree or the repo
	// root.
	Files []string
}

type HealthReportRequest struct {
	// Output is where the YAML report is written. Empty skips writing.
	Output string
}

type UpdateRequest struct {
	Name    string
	Version string
}

type ImportRequest struct {
	Name string
}

type ImportResult struct {
	Added   []string
	Summary types.BatchSummary
}

type SuggestRequest struct {
	Rule types.CompatibilityRule
}

type AnalyzeImportRequest struct {
	Name string
}

// DependencyState classifies a dependency of an import candidate.
type DependencyState string

const (
	DepSatisfied DependencyState = "satisfied"
	// DepAmbiguous means a matching version exists alongside others, so
	// cargo_embargo.json may need to pick one.
	DepAmbiguous   DependencyState = "ambiguous"
	DepUnsatisfied DependencyState = "unsatisfied"
	DepNotImported DependencyState = "not imported"
)

type ImportAnalysis struct {
	Name string
	// Status is set when there is nothing to analyze.
	Status   string
	Versions []ImportVersion
}

type ImportVersion struct {
	Version string
	Deps    []DependencyAnalysis
	// Problems is true when some dependency is missing or unsatisfied.
	Problems bool
}

type DependencyAnalysis struct {
	Name        string
	Requirement string
	State       DependencyState
	Denylisted  bool
	Available   []AvailableVersion
}

type AvailableVersion struct {
	Version   string
	Path      string
	Satisfies bool
}
