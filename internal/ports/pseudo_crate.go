package ports

import (
	"context"

	"crate-tool/internal/types"
)

// PseudoCratePort drives the dependency-closure tool through the
// pseudo-crate that pins every managed crate.
type PseudoCratePort interface {
	Dir() types.RootedPath
	// Deps returns the declared dependencies, name to version requirement.
	Deps() (map[string]string, error)
	// Add pins name to exactly version.
	Add(ctx context.Context, name string, version string) error
	// AddUnpinned adds name with a loose requirement; an empty req lets
	// the tool pick the newest version.
	AddUnpinned(ctx context.Context, name string, req string) error
	Remove(ctx context.Context, name string) error
	// Vendor refreshes the vendored snapshot of every dependency.
	Vendor(ctx context.Context) (types.VendoredSnapshot, error)
	// DepsOf lists the direct normal dependencies of name.
	DepsOf(ctx context.Context, name string) ([]string, error)
	ReadCrateList() ([]string, error)
	WriteCrateList(names []string) error
}
