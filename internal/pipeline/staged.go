package pipeline

import (
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"github.com/ZanzyTHEbar/errbuilder-go"

	"crate-tool/internal/shared"
	"crate-tool/internal/types"
)

// StagedCrate holds a staged build and the outcome of every step.
type StagedCrate struct {
	handle
	crate        types.CrateRecord
	vendored     types.CrateRecord
	tools        Tools
	patches      []types.PatchOutcome
	generator    types.CommandResult
	buildDiff    string
	buildDiffErr error
	checked      bool
}

func (c *StagedCrate) Name() string {
	return c.crate.Name()
}

func (c *StagedCrate) Crate() types.CrateRecord {
	return c.crate
}

func (c *StagedCrate) Vendored() types.CrateRecord {
	return c.vendored
}

func (c *StagedCrate) VendoredVersion() semver.Version {
	return c.vendored.Identity.Version
}

func (c *StagedCrate) StagingPath() types.RootedPath {
	return stagingPath(c.crate)
}

func (c *StagedCrate) PatchOutcomes() []types.PatchOutcome {
	return append([]types.PatchOutcome(nil), c.patches...)
}

func (c *StagedCrate) GeneratorResult() types.CommandResult {
	return c.generator
}

func (c *StagedCrate) PatchSuccess() bool {
	for _, outcome := range c.patches {
		if !outcome.Result.Success() {
			return false
		}
	}
	return true
}

func (c *StagedCrate) GeneratorSuccess() bool {
	return c.generator.Success()
}

// BuildFileUnchanged reports whether the generated build file matches the
// committed one. It is false when the generator failed.
func (c *StagedCrate) BuildFileUnchanged() bool {
	return c.GeneratorSuccess() && c.buildDiffErr == nil && c.buildDiff == ""
}

// IsMigratable reports whether the staged crate reproduces the committed
// build exactly.
func (c *StagedCrate) IsMigratable() bool {
	return c.PatchSuccess() && c.BuildFileUnchanged()
}

// IsMigrationEligible is always true for a staged destination; it only
// matters for source crates.
func (c *StagedCrate) IsMigrationEligible() bool {
	return true
}

// Check fails with the first failing patch, else with the generator
// failure. Promote requires a successful Check.
func (c *StagedCrate) Check() error {
	if c.spent {
		return c.notFound()
	}
	for _, outcome := range c.patches {
		if !outcome.Result.Success() {
			return errbuilder.New().
				WithCode(errbuilder.CodeFailedPrecondition).
				WithMsg(fmt.Sprintf("failed to patch %s with %s", c.Name(), outcome.Patch)).
				WithCause(shared.ResultError(outcome.Result))
		}
	}
	if !c.generator.Success() {
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("cargo_embargo execution failed for %s", c.Name())).
			WithCause(shared.ResultError(c.generator))
	}
	c.checked = true
	return nil
}

// DiffAgainstCommitted returns the build-file diff computed at staging
// time. An empty string means no significant change.
func (c *StagedCrate) DiffAgainstCommitted() (string, error) {
	if !c.GeneratorSuccess() {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("no generated build file for %s", c.Name()))
	}
	return c.buildDiff, c.buildDiffErr
}

// DiffTree lists the files that differ between the committed crate and
// the staged one.
func (c *StagedCrate) DiffTree() ([]string, error) {
	if c.spent || !shared.Exists(c.StagingPath().Abs()) {
		return nil, c.notFound()
	}
	return c.tools.Differ.DiffTree(c.crate.Path.Abs(), c.StagingPath().Abs())
}

// Discard removes the staging directory without promoting it.
func (c *StagedCrate) Discard() error {
	if err := c.consume(c.Name(), "staged"); err != nil {
		return err
	}
	if err := os.RemoveAll(c.StagingPath().Abs()); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to remove %s", c.StagingPath())).
			WithCause(err)
	}
	return nil
}

func (c *StagedCrate) notFound() error {
	return errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(fmt.Sprintf("staged crate not found at %s", c.StagingPath()))
}
