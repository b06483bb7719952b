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

// FixLicenses rewrites the MODULE_LICENSE_* markers of every managed crate
// whose declared licenses are all backed by a license file. Crates with
// missing license files are reported and left alone.
func (s Service) FixLicenses(ctx context.Context) (types.BatchSummary, error) {
	managed, err := s.crateIndex(s.managedDir())
	if err != nil {
		return types.BatchSummary{}, err
	}
	summary := types.BatchSummary{}
	for _, entry := range managed.Entries() {
		record := entry.Value
		version := record.Identity.Version.String()
		state, err := s.Licenses.Classify(record.Path.Abs(), record.Name(), record.License)
		if err != nil {
			return summary, err
		}
		if len(state.Unsatisfied) > 0 {
			summary.Verdicts = append(summary.Verdicts, unhealthy(record.Name(), version, errbuilder.New().
				WithCode(errbuilder.CodeFailedPrecondition).
				WithMsg(fmt.Sprintf("missing license files for %s", strings.Join(state.Unsatisfied, ", ")))))
			continue
		}
		if err := s.Licenses.UpdateModuleLicenseFiles(record.Path.Abs(), state); err != nil {
			return summary, err
		}
		summary.Verdicts = append(summary.Verdicts, healthy(record.Name(), version))
	}
	return summary, summary.Err()
}

// FixMetadata brings the METADATA of every managed crate in line with the
// crate's Cargo.toml version and the current URL conventions.
func (s Service) FixMetadata(ctx context.Context) ([]string, error) {
	managed, err := s.crateIndex(s.managedDir())
	if err != nil {
		return nil, err
	}
	var changed []string
	for _, entry := range managed.Entries() {
		record := entry.Value
		path := record.Path.Join(types.MetadataFileName).Abs()
		metadata, err := s.Metadata.ReadMetadata(path)
		if err != nil {
			return changed, err
		}
		if !pipeline.RefreshMetadata(&metadata, record.Name(), record.Identity.Version.String(), timeNow(s.Clock)) {
			continue
		}
		if err := s.Metadata.WriteMetadata(path, metadata); err != nil {
			return changed, err
		}
		log.Ctx(ctx).Info().Str("crate", record.Name()).Msg("metadata updated")
		changed = append(changed, record.Name())
	}
	return changed, nil
}
