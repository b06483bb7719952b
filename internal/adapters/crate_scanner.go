package adapters

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"crate-tool/internal/ports"
	"crate-tool/internal/types"
)

const cargoManifestName = "Cargo.toml"

type CrateScannerAdapter struct{}

func NewCrateScannerAdapter() CrateScannerAdapter {
	return CrateScannerAdapter{}
}

// ScanCrates returns the crates below dir. A directory holding a crate
// manifest is not descended into further; manifests without a [package]
// table are workspace roots and are walked through.
func (a CrateScannerAdapter) ScanCrates(root string, dir string) ([]types.CrateRecord, error) {
	if root == "" {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("source tree root is empty")
	}
	base := types.NewRootedPath(root, dir)
	var crates []types.CrateRecord
	err := filepath.WalkDir(base.Abs(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != base.Abs() && shouldSkipCrateDir(d.Name()) {
			return filepath.SkipDir
		}
		if _, err := os.Stat(filepath.Join(path, cargoManifestName)); err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		record, err := a.ReadCrate(types.NewRootedPath(root, rel))
		if err != nil {
			log.Debug().
				Str("path", rel).
				Err(err).
				Msg("skipping unreadable crate manifest")
			return nil
		}
		if record.Identity.Name == "" {
			return nil
		}
		crates = append(crates, record)
		return filepath.SkipDir
	})
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("failed to scan crates in %s", base)).
			WithCause(err)
	}
	return crates, nil
}

// ReadCrate parses dir/Cargo.toml. A manifest with no [package] table
// returns a record with an empty identity.
func (a CrateScannerAdapter) ReadCrate(dir types.RootedPath) (types.CrateRecord, error) {
	data, err := os.ReadFile(dir.Join(cargoManifestName).Abs())
	if err != nil {
		return types.CrateRecord{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("crate manifest not found in %s", dir)).
			WithCause(err)
	}
	var manifest types.CargoManifest
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return types.CrateRecord{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("failed to parse %s", dir.Join(cargoManifestName))).
			WithCause(err)
	}
	record := types.CrateRecord{
		Path:        dir,
		License:     manifest.Package.License,
		Edition:     manifest.Package.Edition,
		Description: manifest.Package.Description,
		Repository:  manifest.Package.Repository,
		CratesIO:    manifest.Publishable(),
	}
	if len(manifest.Dependencies) > 0 {
		record.Dependencies = make(map[string]string, len(manifest.Dependencies))
		for name, raw := range manifest.Dependencies {
			record.Dependencies[name] = types.DependencyRequirement(raw)
		}
	}
	if manifest.Package.Name == "" {
		return record, nil
	}
	id, err := types.NewCrateIdentity(manifest.Package.Name, manifest.Package.Version)
	if err != nil {
		return types.CrateRecord{}, err
	}
	record.Identity = id
	return record, nil
}

func shouldSkipCrateDir(name string) bool {
	switch name {
	case ".git", "target", "target.tmp", "out":
		return true
	default:
		return false
	}
}

var _ ports.CrateScannerPort = CrateScannerAdapter{}
