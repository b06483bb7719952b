package types

import (
	"fmt"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// CommandResult is the captured result of one subprocess run.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

func (r CommandResult) Success() bool {
	return r.ExitCode == 0
}

// PatchOutcome records the result of applying one patch file.
type PatchOutcome struct {
	Patch  string
	Result CommandResult
}

// LicenseState is what the license classifier found for a crate.
// Satisfied maps a license id to the file that carries its text.
type LicenseState struct {
	Satisfied   map[string]string
	Unsatisfied []string
}

// CrateVerdict is the per-crate line of a batch summary.
type CrateVerdict struct {
	Name       string
	Version    string
	Verdict    Verdict
	Diagnostic string
}

type BatchSummary struct {
	Verdicts []CrateVerdict
}

func (s BatchSummary) Unhealthy() []CrateVerdict {
	var out []CrateVerdict
	for _, v := range s.Verdicts {
		if v.Verdict != VerdictHealthy {
			out = append(out, v)
		}
	}
	return out
}

// Err folds the unhealthy verdicts into one error, or nil when every
// crate is healthy.
func (s BatchSummary) Err() error {
	bad := s.Unhealthy()
	if len(bad) == 0 {
		return nil
	}
	return errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(fmt.Sprintf("%d of %d crates UNHEALTHY, first: %s", len(bad), len(s.Verdicts), bad[0].Name))
}

// VendoredSnapshot is a read-only view of one `cargo vendor` run.
type VendoredSnapshot struct {
	VendorDir RootedPath
	// Deps is the resolved direct-dependency version table.
	Deps map[string]string
}

func (s VendoredSnapshot) DirFor(name string) RootedPath {
	return s.VendorDir.Join(name)
}
