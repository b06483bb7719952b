package ports

import "crate-tool/internal/types"

// CrateScannerPort discovers crates on disk by their Cargo.toml.
type CrateScannerPort interface {
	// ScanCrates walks dir (relative to root) and returns every crate found.
	ScanCrates(root string, dir string) ([]types.CrateRecord, error)
	// ReadCrate reads the crate whose Cargo.toml lives directly in dir.
	ReadCrate(dir types.RootedPath) (types.CrateRecord, error)
}
