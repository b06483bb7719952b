package types

import (
	"path/filepath"
	"strings"
)

// RootedPath is a path relative to the source tree root. Rel is what gets
// printed in diagnostics; Abs is what gets opened.
type RootedPath struct {
	Root string
	Rel  string
}

func NewRootedPath(root string, rel string) RootedPath {
	return RootedPath{Root: root, Rel: filepath.Clean(rel)}
}

func (p RootedPath) Abs() string {
	return filepath.Join(p.Root, p.Rel)
}

func (p RootedPath) Join(elem ...string) RootedPath {
	return RootedPath{Root: p.Root, Rel: filepath.Join(append([]string{p.Rel}, elem...)...)}
}

// WithSameRoot returns another path under the same tree root.
func (p RootedPath) WithSameRoot(rel string) RootedPath {
	return NewRootedPath(p.Root, rel)
}

func (p RootedPath) String() string {
	return p.Rel
}

// CrateRecord is one crate found on disk.
type CrateRecord struct {
	Identity    CrateIdentity
	Path        RootedPath
	License     string
	Edition     string
	Description string
	Repository  string
	CratesIO    bool
	// Dependencies maps each normal dependency to its version requirement.
	Dependencies map[string]string
}

func (c CrateRecord) Name() string {
	return c.Identity.Name
}

// CargoManifest is the subset of Cargo.toml the tool reads.
type CargoManifest struct {
	Package struct {
		Name        string `toml:"name"`
		Version     string `toml:"version"`
		Edition     string `toml:"edition"`
		License     string `toml:"license"`
		Description string `toml:"description"`
		Repository  string `toml:"repository"`
		Publish     any    `toml:"publish"`
	} `toml:"package"`
	Dependencies map[string]any `toml:"dependencies"`
}

// Publishable reports whether the manifest could have come from crates.io.
// `publish = false` or an empty registry list marks a local-only crate.
func (m CargoManifest) Publishable() bool {
	switch value := m.Package.Publish.(type) {
	case nil:
		return true
	case bool:
		return value
	case []any:
		return len(value) > 0
	default:
		return true
	}
}

// DependencyRequirement extracts the version requirement of a dependency
// written either as `name = "1.2"` or `name = { version = "1.2" }`.
func DependencyRequirement(raw any) string {
	switch value := raw.(type) {
	case string:
		return strings.TrimSpace(value)
	case map[string]any:
		if version, ok := value["version"].(string); ok {
			return strings.TrimSpace(version)
		}
	}
	return ""
}
