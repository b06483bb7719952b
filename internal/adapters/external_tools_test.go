package adapters

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crate-tool/internal/types"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestGeneratorRestoresCargoLock(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cargo.lock"), []byte("original"), 0o644))
	// The fake generator clobbers Cargo.lock and writes a build file.
	tool := writeScript(t, "echo \"$@\" > args.txt\necho changed > Cargo.lock\necho 'rust_library {}' > Android.bp\n")

	result, err := NewGeneratorAdapter(tool).Generate(t.Context(), dir)
	require.NoError(t, err)
	assert.True(t, result.Success())

	data, err := os.ReadFile(filepath.Join(dir, "Cargo.lock"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
	assert.NoFileExists(t, filepath.Join(dir, "Cargo.lock.saved"))
	args, err := os.ReadFile(filepath.Join(dir, "args.txt"))
	require.NoError(t, err)
	assert.Equal(t, "generate cargo_embargo.json", strings.TrimSpace(string(args)))
	assert.FileExists(t, filepath.Join(dir, "Android.bp"))
}

func TestGeneratorRemovesCreatedCargoLock(t *testing.T) {
	dir := t.TempDir()
	tool := writeScript(t, "echo new > Cargo.lock\n")

	_, err := NewGeneratorAdapter(tool).Generate(t.Context(), dir)
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "Cargo.lock"))
}

func TestGeneratorReportsFailure(t *testing.T) {
	tool := writeScript(t, "echo boom >&2\nexit 2\n")
	result, err := NewGeneratorAdapter(tool).Generate(t.Context(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 2, result.ExitCode)
	assert.Equal(t, "boom\n", result.Stderr)
}

func TestGeneratorDefaultCommand(t *testing.T) {
	assert.Equal(t, "cargo_embargo", NewGeneratorAdapter(" ").Command)
	assert.Equal(t, "patch", NewPatchAdapter("").Command)
}

func TestPatchAdapterPassesFlags(t *testing.T) {
	dir := t.TempDir()
	tool := writeScript(t, "echo \"$@\" > args.txt\n")
	patchFile := filepath.Join(t.TempDir(), "0001-fix.patch")
	require.NoError(t, os.WriteFile(patchFile, []byte(""), 0o644))

	result, err := NewPatchAdapter(tool).Apply(t.Context(), dir, patchFile)
	require.NoError(t, err)
	assert.True(t, result.Success())
	args, err := os.ReadFile(filepath.Join(dir, "args.txt"))
	require.NoError(t, err)
	assert.Equal(t, "-p1 -l --no-backup-if-mismatch -i "+patchFile, strings.TrimSpace(string(args)))
}

func TestGeneratorKeepsRestoreErrorAlongsideRunError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cargo.lock"), []byte("original"), 0o644))
	runErr := errors.New("generator crashed")

	_, err := NewGeneratorAdapter("").withSavedLock(dir, func() (types.CommandResult, error) {
		require.NoError(t, os.Remove(filepath.Join(dir, "Cargo.lock.saved")))
		return types.CommandResult{}, runErr
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, runErr)
	assert.Equal(t, errbuilder.CodeInternal, errbuilder.CodeOf(err))
	assert.Contains(t, err.Error(), "failed to restore")
}
