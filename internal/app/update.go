package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"crate-tool/internal/pipeline"
	"crate-tool/internal/types"
)

// Update re-pins a managed crate to version and regenerates it together
// with the companions listed under update_with in its android_config.toml.
// Companions move to whatever version the dependency tool resolves for
// them and are pinned there. The new version need not be semver
// compatible with the old one.
func (s Service) Update(ctx context.Context, req UpdateRequest) (types.BatchSummary, error) {
	name := strings.TrimSpace(req.Name)
	version := strings.TrimSpace(req.Version)
	if name == "" || version == "" {
		return types.BatchSummary{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("crate name and version are required")
	}
	if _, err := types.ParseVersion(version); err != nil {
		return types.BatchSummary{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("invalid version %q", version)).
			WithCause(err)
	}
	if err := s.Recover(ctx); err != nil {
		return types.BatchSummary{}, err
	}
	if _, err := s.managedCrate(name); err != nil {
		return types.BatchSummary{}, err
	}
	cfg, err := s.Config.LoadCrateConfig(s.managedDirFor(name).Join(types.CrateConfigFileName).Abs())
	if err != nil {
		return types.BatchSummary{}, err
	}
	companions := uniqueSorted(cfg.UpdateWith)
	for _, companion := range companions {
		if !s.isManaged(companion) {
			return types.BatchSummary{}, errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg(fmt.Sprintf("crate %s lists %s under update_with but it is not managed", name, companion))
		}
	}

	if err := s.PseudoCrate.Add(ctx, name, version); err != nil {
		return types.BatchSummary{}, err
	}
	for _, companion := range companions {
		if err := s.PseudoCrate.AddUnpinned(ctx, companion, ""); err != nil {
			return types.BatchSummary{}, err
		}
	}
	snapshot, err := s.PseudoCrate.Vendor(ctx)
	if err != nil {
		return types.BatchSummary{}, err
	}
	for _, companion := range companions {
		resolved, ok := snapshot.Deps[companion]
		if !ok {
			return types.BatchSummary{}, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("crate %s missing from vendored snapshot", companion))
		}
		log.Ctx(ctx).Info().Str("crate", companion).Str("version", resolved).Msg("updating companion")
		if err := s.PseudoCrate.Add(ctx, companion, resolved); err != nil {
			return types.BatchSummary{}, err
		}
	}

	summary := types.BatchSummary{}
	for _, crate := range uniqueSorted(append([]string{name}, companions...)) {
		want := ""
		if crate == name {
			want = version
		}
		resolved, err := s.updateCrate(ctx, crate, want, snapshot)
		if err != nil {
			summary.Verdicts = append(summary.Verdicts, unhealthy(crate, resolved, err))
			continue
		}
		summary.Verdicts = append(summary.Verdicts, healthy(crate, resolved))
	}
	if err := s.writeCrateList(); err != nil {
		return summary, err
	}
	return summary, summary.Err()
}

// updateCrate regenerates a managed crate from exactly the version the
// snapshot vendored for it, which may be incompatible with the current
// one. A non-empty want must match the vendored version.
func (s Service) updateCrate(ctx context.Context, name string, want string, snapshot types.VendoredSnapshot) (string, error) {
	record, err := s.managedCrate(name)
	if err != nil {
		return want, err
	}
	crate, err := pipeline.NewManagedCrate(record, s.tools()).Vendor(snapshot)
	if err != nil {
		return want, err
	}
	got := crate.VendoredVersion().String()
	if want != "" && got != want {
		return got, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("vendored %s is at %s, expected %s", name, got, want))
	}
	return got, s.stageAndPromote(ctx, crate, true)
}
