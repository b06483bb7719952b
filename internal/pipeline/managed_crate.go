// Package pipeline moves one crate through the staged regeneration
// pipeline: New, then Vendored, then Staged, then promoted into place.
// Every transition consumes its receiver.
package pipeline

import (
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/ZanzyTHEbar/errbuilder-go"

	"crate-tool/internal/ports"
	"crate-tool/internal/types"
)

// StagingDir is where crates are staged, relative to the tree root.
const StagingDir = "out/rust-crate-temporary-build"

// Tools are the collaborators a managed crate needs.
type Tools struct {
	Scanner   ports.CrateScannerPort
	Generator ports.GeneratorPort
	Patcher   ports.PatchPort
	Config    ports.ConfigPort
	Metadata  ports.MetadataPort
	Differ    ports.DifferPort
	Clock     func() time.Time
}

func (t Tools) now() time.Time {
	if t.Clock == nil {
		return time.Now()
	}
	return t.Clock()
}

// handle is embedded in every phase and refuses reuse after a transition.
type handle struct {
	spent bool
}

func (h *handle) consume(name string, phase string) error {
	if h.spent {
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("%s crate handle for %s already used", phase, name))
	}
	h.spent = true
	return nil
}

func stagingPath(crate types.CrateRecord) types.RootedPath {
	return crate.Path.WithSameRoot(StagingDir).Join(crate.Name())
}

// NewCrate is a managed crate that has not been matched to a vendored copy.
type NewCrate struct {
	handle
	crate types.CrateRecord
	tools Tools
}

func NewManagedCrate(crate types.CrateRecord, tools Tools) *NewCrate {
	return &NewCrate{crate: crate, tools: tools}
}

func (c *NewCrate) Name() string {
	return c.crate.Name()
}

func (c *NewCrate) Crate() types.CrateRecord {
	return c.crate
}

func (c *NewCrate) StagingPath() types.RootedPath {
	return stagingPath(c.crate)
}

// Vendor pairs the crate with its directory in the vendored snapshot.
func (c *NewCrate) Vendor(snapshot types.VendoredSnapshot) (*VendoredCrate, error) {
	if err := c.consume(c.Name(), "new"); err != nil {
		return nil, err
	}
	vendored, err := c.tools.Scanner.ReadCrate(snapshot.DirFor(c.Name()))
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("no vendored copy of %s in %s", c.Name(), snapshot.VendorDir)).
			WithCause(err)
	}
	if vendored.Name() != c.Name() {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("vendored directory for %s holds crate %q", c.Name(), vendored.Name()))
	}
	return &VendoredCrate{crate: c.crate, vendored: vendored, tools: c.tools}, nil
}

// VendorRecord pairs the crate with an already resolved vendored crate.
func (c *NewCrate) VendorRecord(vendored types.CrateRecord) (*VendoredCrate, error) {
	if err := c.consume(c.Name(), "new"); err != nil {
		return nil, err
	}
	return &VendoredCrate{crate: c.crate, vendored: vendored, tools: c.tools}, nil
}

// AsLegacy treats the crate as its own vendored copy. Staging it then
// skips the customization overlay and patches.
func (c *NewCrate) AsLegacy() (*VendoredCrate, error) {
	if err := c.consume(c.Name(), "new"); err != nil {
		return nil, err
	}
	return &VendoredCrate{crate: c.crate, vendored: c.crate, tools: c.tools}, nil
}

// VendoredCrate has a vendored copy and is ready to stage.
type VendoredCrate struct {
	handle
	crate    types.CrateRecord
	vendored types.CrateRecord
	tools    Tools
}

func (c *VendoredCrate) Name() string {
	return c.crate.Name()
}

func (c *VendoredCrate) Crate() types.CrateRecord {
	return c.crate
}

func (c *VendoredCrate) Vendored() types.CrateRecord {
	return c.vendored
}

func (c *VendoredCrate) VendoredVersion() semver.Version {
	return c.vendored.Identity.Version
}

func (c *VendoredCrate) StagingPath() types.RootedPath {
	return stagingPath(c.crate)
}

func (c *VendoredCrate) IsLegacy() bool {
	return c.crate.Path == c.vendored.Path
}
