package ports

import (
	"context"

	"crate-tool/internal/types"
)

// GeneratorPort runs the build-file generator in a crate directory. The
// error return is reserved for failures to launch it at all.
type GeneratorPort interface {
	Generate(ctx context.Context, dir string) (types.CommandResult, error)
	// Autoconfig writes a starting generator config into dir.
	Autoconfig(ctx context.Context, dir string) (types.CommandResult, error)
}

// PatchPort applies one patch file inside dir.
type PatchPort interface {
	Apply(ctx context.Context, dir string, patchFile string) (types.CommandResult, error)
}

// LicenseClassifierPort finds the license files that satisfy a crate's
// declared license expression.
type LicenseClassifierPort interface {
	Classify(dir string, name string, declared string) (types.LicenseState, error)
	// MostRestrictiveType returns the METADATA license type for state.
	MostRestrictiveType(state types.LicenseState) string
	// UpdateModuleLicenseFiles rewrites the MODULE_LICENSE_* marker files.
	UpdateModuleLicenseFiles(dir string, state types.LicenseState) error
}

// DifferPort compares committed and staged crate content.
type DifferPort interface {
	// DiffBuildFile returns a unified diff of two build files, empty when
	// they only differ in volatile lines or whitespace.
	DiffBuildFile(committed string, staged string) (string, error)
	// DiffTree lists the relative paths that differ between two trees.
	DiffTree(left string, right string) ([]string, error)
}
