package adapters

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"crate-tool/internal/ports"
	"crate-tool/internal/shared"
	"crate-tool/internal/types"
)

// PseudoCrateAdapter manages the pseudo-crate whose dependency list pins
// every managed crate, and runs cargo against it.
type PseudoCrateAdapter struct {
	Path    types.RootedPath
	Cargo   string
	Scanner ports.CrateScannerPort
}

func NewPseudoCrateAdapter(path types.RootedPath, cargo string) PseudoCrateAdapter {
	if strings.TrimSpace(cargo) == "" {
		cargo = "cargo"
	}
	return PseudoCrateAdapter{Path: path, Cargo: cargo, Scanner: NewCrateScannerAdapter()}
}

func (a PseudoCrateAdapter) Dir() types.RootedPath {
	return a.Path
}

func (a PseudoCrateAdapter) Deps() (map[string]string, error) {
	path := a.Path.Join(cargoManifestName)
	data, err := os.ReadFile(path.Abs())
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("pseudo-crate manifest %s not found", path)).
			WithCause(err)
	}
	var manifest types.CargoManifest
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("failed to parse %s", path)).
			WithCause(err)
	}
	deps := make(map[string]string, len(manifest.Dependencies))
	for name, raw := range manifest.Dependencies {
		deps[name] = types.DependencyRequirement(raw)
	}
	return deps, nil
}

func (a PseudoCrateAdapter) Add(ctx context.Context, name string, version string) error {
	return a.cargo(ctx, "add", fmt.Sprintf("%s@=%s", name, version))
}

func (a PseudoCrateAdapter) AddUnpinned(ctx context.Context, name string, req string) error {
	if strings.TrimSpace(req) == "" {
		return a.cargo(ctx, "add", name)
	}
	return a.cargo(ctx, "add", fmt.Sprintf("%s@%s", name, req))
}

func (a PseudoCrateAdapter) Remove(ctx context.Context, name string) error {
	return a.cargo(ctx, "remove", name)
}

// Vendor runs `cargo vendor` and reads back the version vendored for each
// declared dependency.
func (a PseudoCrateAdapter) Vendor(ctx context.Context) (types.VendoredSnapshot, error) {
	if err := a.cargo(ctx, "vendor"); err != nil {
		return types.VendoredSnapshot{}, err
	}
	deps, err := a.Deps()
	if err != nil {
		return types.VendoredSnapshot{}, err
	}
	snapshot := types.VendoredSnapshot{
		VendorDir: a.Path.Join("vendor"),
		Deps:      make(map[string]string, len(deps)),
	}
	for name := range deps {
		record, err := a.Scanner.ReadCrate(snapshot.DirFor(name))
		if err != nil {
			return types.VendoredSnapshot{}, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("dependency %s missing from vendored snapshot", name)).
				WithCause(err)
		}
		snapshot.Deps[name] = record.Identity.Version.String()
	}
	log.Debug().
		Str("path", snapshot.VendorDir.String()).
		Int("deps", len(snapshot.Deps)).
		Msg("vendored snapshot refreshed")
	return snapshot, nil
}

// DepsOf returns the direct normal dependencies of name, sorted.
func (a PseudoCrateAdapter) DepsOf(ctx context.Context, name string) ([]string, error) {
	result, err := shared.RunCommand(ctx, a.Path.Abs(), a.Cargo, "tree", "--prefix", "none", "-e", "normal", "-p", name, "--depth", "1")
	if err != nil {
		return nil, err
	}
	if !result.Success() {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("cargo tree failed for %s", name)).
			WithCause(shared.ResultError(result))
	}
	seen := map[string]bool{}
	var deps []string
	for i, line := range strings.Split(result.Stdout, "\n") {
		fields := strings.Fields(line)
		if i == 0 || len(fields) == 0 {
			continue
		}
		dep := fields[0]
		if dep == name || seen[dep] {
			continue
		}
		seen[dep] = true
		deps = append(deps, dep)
	}
	sort.Strings(deps)
	return deps, nil
}

func (a PseudoCrateAdapter) ReadCrateList() ([]string, error) {
	path := a.Path.Join(types.CrateListFileName)
	data, err := os.ReadFile(path.Abs())
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("%s not found", path)).
			WithCause(err)
	}
	var names []string
	for _, line := range strings.Split(string(data), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names, nil
}

func (a PseudoCrateAdapter) WriteCrateList(names []string) error {
	ordered := append([]string(nil), names...)
	sort.Strings(ordered)
	var b strings.Builder
	for _, name := range ordered {
		b.WriteString(name)
		b.WriteString("\n")
	}
	path := a.Path.Join(types.CrateListFileName)
	if err := os.WriteFile(path.Abs(), []byte(b.String()), 0644); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to write %s", path)).
			WithCause(err)
	}
	return nil
}

func (a PseudoCrateAdapter) cargo(ctx context.Context, args ...string) error {
	result, err := shared.RunCommand(ctx, a.Path.Abs(), a.Cargo, args...)
	if err != nil {
		return err
	}
	if !result.Success() {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("cargo %s failed", strings.Join(args, " "))).
			WithCause(shared.ResultError(result))
	}
	return nil
}

var _ ports.PseudoCratePort = PseudoCrateAdapter{}
