package app

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"crate-tool/internal/core"
	"crate-tool/internal/pipeline"
	"crate-tool/internal/shared"
	"crate-tool/internal/types"
)

// crateHealth is what the health report knows about one crate, legacy or
// vendored.
type crateHealth struct {
	record     types.CrateRecord
	reasons    []string
	migratable bool
	diagnostic string
}

func (h *crateHealth) IsMigrationEligible() bool {
	return len(h.reasons) == 0
}

func (h *crateHealth) IsMigratable() bool {
	return h.migratable
}

// HealthReport classifies every legacy crate against a fresh vendored
// snapshot: migratable, eligible but not migratable, ineligible, and
// vendored crates no legacy or managed crate claims.
func (s Service) HealthReport(ctx context.Context, req HealthReportRequest) (types.HealthReport, error) {
	source, err := s.legacyHealth()
	if err != nil {
		return types.HealthReport{}, err
	}
	snapshot, err := s.PseudoCrate.Vendor(ctx)
	if err != nil {
		return types.HealthReport{}, err
	}
	vendored, err := s.vendoredIndex(snapshot)
	if err != nil {
		return types.HealthReport{}, err
	}
	dest := core.NewNameVersionIndex[*crateHealth]()
	for _, entry := range vendored.Entries() {
		if s.isManaged(entry.Identity.Name) {
			continue
		}
		if err := dest.InsertOrError(entry.Identity, &crateHealth{record: entry.Value}); err != nil {
			return types.HealthReport{}, err
		}
	}
	resolver, err := core.NewVersionResolver(source, dest, types.RuleStrict)
	if err != nil {
		return types.HealthReport{}, err
	}
	for _, pair := range core.CompatibleAndEligible(resolver) {
		if err := s.stageForReport(ctx, pair.Source.Value, pair.Dest.Value); err != nil {
			return types.HealthReport{}, err
		}
	}

	classified := core.Classify(resolver)
	report := types.HealthReport{}
	for _, pair := range classified.Migratable {
		report.Migratable = append(report.Migratable, reportEntry(pair.Source, &pair.Dest, ""))
	}
	for _, pair := range classified.EligibleNotMigratable {
		if !pair.Compatible {
			report.EligibleNotMigratable = append(report.EligibleNotMigratable,
				reportEntry(pair.Source, nil, "no compatible vendored version"))
			continue
		}
		report.EligibleNotMigratable = append(report.EligibleNotMigratable,
			reportEntry(pair.Source, &pair.Dest, pair.Dest.Value.diagnostic))
	}
	for _, entry := range classified.Ineligible {
		report.Ineligible = append(report.Ineligible,
			reportEntry(entry, nil, strings.Join(entry.Value.reasons, "; ")))
	}
	for _, entry := range classified.Superfluous {
		report.Superfluous = append(report.Superfluous, reportEntry(entry, nil, ""))
	}
	log.Ctx(ctx).Info().
		Int("migratable", len(report.Migratable)).
		Int("eligible_not_migratable", len(report.EligibleNotMigratable)).
		Int("ineligible", len(report.Ineligible)).
		Int("superfluous", len(report.Superfluous)).
		Msg("health report")
	if req.Output != "" {
		if err := s.Reports.WriteHealthReport(req.Output, report); err != nil {
			return report, err
		}
	}
	return report, nil
}

// legacyHealth indexes every legacy crate with the reasons it cannot be
// migrated, if any.
func (s Service) legacyHealth() (*core.NameVersionIndex[*crateHealth], error) {
	index := core.NewNameVersionIndex[*crateHealth]()
	dir := s.legacyDir()
	if !shared.IsDir(dir.Abs()) {
		return index, nil
	}
	records, err := s.Scanner.ScanCrates(dir.Root, dir.Rel)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		reasons, err := s.ineligibility(record)
		if err != nil {
			return nil, err
		}
		if s.isManaged(record.Name()) {
			reasons = append(reasons, "already migrated")
		}
		if err := index.InsertOrError(record.Identity, &crateHealth{record: record, reasons: reasons}); err != nil {
			return nil, err
		}
	}
	return index, nil
}

// stageForReport stages the vendored crate with the legacy crate's
// customizations and records whether it reproduces the legacy build.
func (s Service) stageForReport(ctx context.Context, legacy *crateHealth, vendored *crateHealth) error {
	crate, err := pipeline.NewManagedCrate(legacy.record, s.tools()).VendorRecord(vendored.record)
	if err != nil {
		return err
	}
	staged, err := crate.Stage(ctx)
	if err != nil {
		vendored.diagnostic = err.Error()
		return nil
	}
	defer discardStaged(ctx, staged)
	diagnostics := stagedDiagnostics(staged)
	vendored.migratable = len(diagnostics) == 0
	if len(diagnostics) > 0 {
		vendored.diagnostic = diagnostics[0]
	}
	return nil
}

func reportEntry(source core.Entry[*crateHealth], dest *core.Entry[*crateHealth], diagnostic string) types.ReportEntry {
	entry := types.ReportEntry{
		Name:       source.Identity.Name,
		Version:    source.Identity.Version.String(),
		Diagnostic: diagnostic,
	}
	if dest != nil && dest.Identity != source.Identity {
		entry.Upgrade = dest.Identity.Version.String()
	}
	return entry
}
