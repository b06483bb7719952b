package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	assert "github.com/ZanzyTHEbar/assert-lib"
	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"crate-tool/internal/shared"
	"crate-tool/internal/types"
)

// customizations are the monorepo-owned files overlaid onto a fresh
// vendored copy.
var customizations = []string{
	"*.bp",
	"*.bp.fragment",
	"*.mk",
	types.CrateConfigFileName,
	types.GeneratorConfigName,
	"patches",
	types.MetadataFileName,
	"MODULE_LICENSE_*",
	"TEST_MAPPING",
}

var customizationSymlinks = []string{"LICENSE", "NOTICE"}

// excludedPatches are applied by the generator itself, not by patch(1).
var excludedPatches = map[string]bool{
	"Android.bp.patch": true,
	"Android.bp.diff":  true,
	"rules.mk.diff":    true,
}

// Stage builds the crate in a fresh staging directory and runs the
// generator there. Patch and generator failures are recorded on the
// result, not returned; use Check to turn them into an error.
func (c *VendoredCrate) Stage(ctx context.Context) (*StagedCrate, error) {
	assert.NotEmpty(ctx, c.Name(), "crate name must be set")
	if err := c.consume(c.Name(), "vendored"); err != nil {
		return nil, err
	}
	staging := c.StagingPath()
	if err := shared.EnsureEmptyDir(staging.Abs()); err != nil {
		return nil, err
	}
	if err := shared.CopyDir(c.vendored.Path.Abs(), staging.Abs()); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to copy %s to %s", c.vendored.Path, staging)).
			WithCause(err)
	}
	staged := &StagedCrate{crate: c.crate, vendored: c.vendored, tools: c.tools}
	if !c.IsLegacy() {
		if err := c.overlayCustomizations(staging); err != nil {
			return nil, err
		}
		if err := c.applyDeletions(staging); err != nil {
			return nil, err
		}
		outcomes, err := c.applyPatches(ctx, staging)
		if err != nil {
			return nil, err
		}
		staged.patches = outcomes
	}
	result, err := c.tools.Generator.Generate(ctx, staging.Abs())
	if err != nil {
		return nil, err
	}
	staged.generator = result
	if result.Success() {
		staged.buildDiff, staged.buildDiffErr = c.tools.Differ.DiffBuildFile(
			c.crate.Path.Join(types.BuildFileName).Abs(),
			staging.Join(types.BuildFileName).Abs(),
		)
	}
	log.Ctx(ctx).Debug().
		Str("crate", c.Name()).
		Str("version", c.vendored.Identity.Version.String()).
		Int("patches", len(staged.patches)).
		Bool("generator_ok", result.Success()).
		Msg("crate staged")
	return staged, nil
}

func (c *VendoredCrate) overlayCustomizations(staging types.RootedPath) error {
	for _, pattern := range customizations {
		matches, err := filepath.Glob(filepath.Join(c.crate.Path.Abs(), pattern))
		if err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("invalid customization pattern %s", pattern)).
				WithCause(err)
		}
		sort.Strings(matches)
		for _, match := range matches {
			dest := staging.Join(filepath.Base(match))
			if shared.Exists(dest.Abs()) {
				return errbuilder.New().
					WithCode(errbuilder.CodeAlreadyExists).
					WithMsg(fmt.Sprintf("destination file %s exists", dest))
			}
			if shared.IsDir(match) {
				if err := shared.CopyDir(match, dest.Abs()); err != nil {
					return err
				}
				continue
			}
			if err := shared.CopyFile(match, dest.Abs()); err != nil {
				return err
			}
		}
	}
	for _, link := range customizationSymlinks {
		src := c.crate.Path.Join(link).Abs()
		info, err := os.Lstat(src)
		if err != nil || info.Mode()&os.ModeSymlink == 0 {
			continue
		}
		target, err := os.Readlink(src)
		if err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("failed to read link %s", c.crate.Path.Join(link))).
				WithCause(err)
		}
		dest := staging.Join(link)
		if shared.Exists(dest.Abs()) {
			return errbuilder.New().
				WithCode(errbuilder.CodeAlreadyExists).
				WithMsg(fmt.Sprintf("cannot symlink %s -> %s because destination exists", dest, target))
		}
		if err := os.Symlink(target, dest.Abs()); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("failed to symlink %s", dest)).
				WithCause(err)
		}
	}
	return nil
}

func (c *VendoredCrate) applyDeletions(staging types.RootedPath) error {
	config, err := c.tools.Config.LoadCrateConfig(c.crate.Path.Join(types.CrateConfigFileName).Abs())
	if err != nil {
		return err
	}
	for _, deletion := range config.Deletions {
		target := staging.Join(deletion)
		if !shared.IsDir(target.Abs()) {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("deletion %s in %s is not a directory", deletion, c.Name()))
		}
		if err := os.RemoveAll(target.Abs()); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("failed to delete %s", target)).
				WithCause(err)
		}
	}
	return nil
}

// patchFiles lists the crate's patches in name order.
func (c *VendoredCrate) patchFiles() ([]string, error) {
	dir := c.crate.Path.Join("patches").Abs()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to read %s", c.crate.Path.Join("patches"))).
			WithCause(err)
	}
	var patches []string
	for _, entry := range entries {
		if entry.IsDir() || excludedPatches[entry.Name()] {
			continue
		}
		patches = append(patches, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(patches)
	return patches, nil
}

func (c *VendoredCrate) applyPatches(ctx context.Context, staging types.RootedPath) ([]types.PatchOutcome, error) {
	patches, err := c.patchFiles()
	if err != nil {
		return nil, err
	}
	var outcomes []types.PatchOutcome
	for _, patch := range patches {
		result, err := c.tools.Patcher.Apply(ctx, staging.Abs(), patch)
		if err != nil {
			return nil, err
		}
		if !result.Success() {
			log.Ctx(ctx).Debug().
				Str("crate", c.Name()).
				Str("patch", filepath.Base(patch)).
				Msg("patch failed")
		}
		outcomes = append(outcomes, types.PatchOutcome{Patch: filepath.Base(patch), Result: result})
	}
	return outcomes, nil
}
