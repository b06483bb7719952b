// Package testutil provides shared test helpers used across e2e and unit
// test packages.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// RepoRoot returns the absolute path to the repository root by walking
// up from the current working directory. It fails the test if the
// working directory cannot be determined.
func RepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	return filepath.Clean(filepath.Join(dir, "..", ".."))
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// WriteCrate lays out a minimal MIT-licensed crate in dir.
func WriteCrate(t *testing.T, dir string, name string, version string) {
	t.Helper()
	WriteFile(t, filepath.Join(dir, "Cargo.toml"),
		fmt.Sprintf("[package]\nname = %q\nversion = %q\nlicense = \"MIT\"\n", name, version))
	WriteFile(t, filepath.Join(dir, "src", "lib.rs"), fmt.Sprintf("// %s %s\n", name, version))
	WriteFile(t, filepath.Join(dir, "LICENSE-MIT"), "MIT License\n")
}
