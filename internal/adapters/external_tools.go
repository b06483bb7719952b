package adapters

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"crate-tool/internal/ports"
	"crate-tool/internal/shared"
	"crate-tool/internal/types"
)

const (
	cargoLockName      = "Cargo.lock"
	cargoLockSavedName = "Cargo.lock.saved"
)

// GeneratorAdapter runs cargo_embargo. Cargo.lock is moved aside while it
// runs so the generator cannot leave a modified lockfile behind.
type GeneratorAdapter struct {
	Command string
}

func NewGeneratorAdapter(command string) GeneratorAdapter {
	if strings.TrimSpace(command) == "" {
		command = "cargo_embargo"
	}
	return GeneratorAdapter{Command: command}
}

func (a GeneratorAdapter) Generate(ctx context.Context, dir string) (types.CommandResult, error) {
	return a.withSavedLock(dir, func() (types.CommandResult, error) {
		return shared.RunCommand(ctx, dir, a.Command, "generate", types.GeneratorConfigName)
	})
}

func (a GeneratorAdapter) Autoconfig(ctx context.Context, dir string) (types.CommandResult, error) {
	return a.withSavedLock(dir, func() (types.CommandResult, error) {
		return shared.RunCommand(ctx, dir, a.Command, "autoconfig", types.GeneratorConfigName)
	})
}

func (a GeneratorAdapter) withSavedLock(dir string, run func() (types.CommandResult, error)) (types.CommandResult, error) {
	lock := filepath.Join(dir, cargoLockName)
	saved := filepath.Join(dir, cargoLockSavedName)
	hadLock := shared.Exists(lock)
	if hadLock {
		if err := os.Rename(lock, saved); err != nil {
			return types.CommandResult{}, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("failed to save %s", lock)).
				WithCause(err)
		}
	}
	result, runErr := run()
	var restoreErr error
	if hadLock {
		restoreErr = os.Rename(saved, lock)
	} else if shared.Exists(lock) {
		restoreErr = os.Remove(lock)
	}
	if restoreErr != nil {
		restoreErr = errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to restore %s", lock)).
			WithCause(restoreErr)
	}
	return result, errors.Join(runErr, restoreErr)
}

// PatchAdapter applies patches with the patch(1) utility.
type PatchAdapter struct {
	Command string
}

func NewPatchAdapter(command string) PatchAdapter {
	if strings.TrimSpace(command) == "" {
		command = "patch"
	}
	return PatchAdapter{Command: command}
}

func (a PatchAdapter) Apply(ctx context.Context, dir string, patchFile string) (types.CommandResult, error) {
	abs, err := filepath.Abs(patchFile)
	if err != nil {
		return types.CommandResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("invalid patch path %s", patchFile)).
			WithCause(err)
	}
	return shared.RunCommand(ctx, dir, a.Command, "-p1", "-l", "--no-backup-if-mismatch", "-i", abs)
}

var (
	_ ports.GeneratorPort = GeneratorAdapter{}
	_ ports.PatchPort     = PatchAdapter{}
)
