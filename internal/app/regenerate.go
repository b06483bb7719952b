package app

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"crate-tool/internal/core"
	"crate-tool/internal/pipeline"
	"crate-tool/internal/types"
)

// Regenerate refreshes the vendored snapshot once and moves each crate
// through stage, check and promote, then rewrites the crate list. A
// failing crate is recorded in the summary and the batch continues unless
// FailFast is set.
func (s Service) Regenerate(ctx context.Context, req RegenerateRequest) (types.BatchSummary, error) {
	if err := s.Recover(ctx); err != nil {
		return types.BatchSummary{}, err
	}
	names := uniqueSorted(req.Names)
	if len(names) == 0 {
		deps, err := s.depNames()
		if err != nil {
			return types.BatchSummary{}, err
		}
		names = deps
	}
	snapshot, err := s.PseudoCrate.Vendor(ctx)
	if err != nil {
		return types.BatchSummary{}, err
	}
	summary, err := s.regenerate(ctx, names, snapshot, req)
	if err != nil {
		return summary, err
	}
	if err := s.writeCrateList(); err != nil {
		return summary, err
	}
	return summary, summary.Err()
}

func (s Service) regenerate(ctx context.Context, names []string, snapshot types.VendoredSnapshot, req RegenerateRequest) (types.BatchSummary, error) {
	summary := types.BatchSummary{}
	dest, err := s.vendoredIndex(snapshot)
	if err != nil {
		return summary, err
	}
	source := core.NewNameVersionIndex[types.CrateRecord]()
	failed := map[string]error{}
	for _, name := range names {
		record, err := s.managedCrate(name)
		if err == nil {
			err = source.InsertOrError(record.Identity, record)
		}
		if err != nil {
			if req.FailFast {
				summary.Verdicts = append(summary.Verdicts, unhealthy(name, "", err))
				return summary, err
			}
			failed[name] = err
		}
	}
	resolver, err := core.NewVersionResolver(source, dest, types.RuleStrict)
	if err != nil {
		return summary, err
	}
	for _, name := range names {
		if err, ok := failed[name]; ok {
			summary.Verdicts = append(summary.Verdicts, unhealthy(name, "", err))
			continue
		}
		record := source.Versions(name)[0].Value
		version, err := s.regenerateCrate(ctx, record, resolver, req.UpdateMetadata)
		if err != nil {
			log.Ctx(ctx).Debug().Str("crate", name).Err(err).Msg("regeneration failed")
			summary.Verdicts = append(summary.Verdicts, unhealthy(name, version, err))
			if req.FailFast {
				return summary, err
			}
			continue
		}
		summary.Verdicts = append(summary.Verdicts, healthy(name, version))
	}
	return summary, nil
}

// regenerateCrate returns the version the crate was regenerated at, or
// its current version when no compatible vendored crate exists.
func (s Service) regenerateCrate(ctx context.Context, record types.CrateRecord, resolver *core.VersionResolver[types.CrateRecord], updateMetadata bool) (string, error) {
	vendored, ok := resolver.CompatibleItem(record.Identity)
	if !ok {
		return record.Identity.Version.String(), errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("no compatible vendored crate found for %s", record.Identity))
	}
	version := vendored.Identity.Version.String()
	crate, err := pipeline.NewManagedCrate(record, s.tools()).VendorRecord(vendored)
	if err != nil {
		return version, err
	}
	return version, s.stageAndPromote(ctx, crate, updateMetadata)
}

// stageAndPromote promotes the staged crate only if it passes Check.
func (s Service) stageAndPromote(ctx context.Context, crate *pipeline.VendoredCrate, updateMetadata bool) error {
	staged, err := crate.Stage(ctx)
	if err != nil {
		return err
	}
	if err := staged.Check(); err != nil {
		discardStaged(ctx, staged)
		return err
	}
	return staged.Promote(ctx, pipeline.PromoteOptions{UpdateMetadata: updateMetadata})
}

// discardStaged removes a staged crate that will not be promoted. Failures
// are logged.
func discardStaged(ctx context.Context, staged *pipeline.StagedCrate) {
	if err := staged.Discard(); err != nil {
		log.Ctx(ctx).Warn().
			Err(err).
			Str("crate", staged.Name()).
			Str("path", staged.StagingPath().String()).
			Msg("failed to discard staged crate")
	}
}
