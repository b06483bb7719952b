package adapters

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"gopkg.in/yaml.v3"

	"crate-tool/internal/ports"
	"crate-tool/internal/types"
)

type MetadataFileAdapter struct{}

func NewMetadataFileAdapter() MetadataFileAdapter {
	return MetadataFileAdapter{}
}

func (a MetadataFileAdapter) ReadMetadata(path string) (types.Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Metadata{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("metadata file %s not found", path)).
			WithCause(err)
	}
	var metadata types.Metadata
	if err := yaml.Unmarshal(data, &metadata); err != nil {
		return types.Metadata{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("failed to parse %s", path)).
			WithCause(err)
	}
	return metadata, nil
}

func (a MetadataFileAdapter) WriteMetadata(path string, metadata types.Metadata) error {
	if strings.TrimSpace(metadata.Name) == "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("metadata name is empty")
	}
	return writeYAML(path, metadata)
}

type ReportFileAdapter struct{}

func NewReportFileAdapter() ReportFileAdapter {
	return ReportFileAdapter{}
}

// WriteHealthReport writes the report with every bucket sorted by crate
// name and version.
func (a ReportFileAdapter) WriteHealthReport(path string, report types.HealthReport) error {
	if strings.TrimSpace(path) == "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("report path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create report directory").
			WithCause(err)
	}
	ordered := types.HealthReport{
		Migratable:            sortedEntries(report.Migratable),
		EligibleNotMigratable: sortedEntries(report.EligibleNotMigratable),
		Ineligible:            sortedEntries(report.Ineligible),
		Superfluous:           sortedEntries(report.Superfluous),
	}
	return writeYAML(path, ordered)
}

func sortedEntries(entries []types.ReportEntry) []types.ReportEntry {
	ordered := append([]types.ReportEntry{}, entries...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Name != ordered[j].Name {
			return ordered[i].Name < ordered[j].Name
		}
		return ordered[i].Version < ordered[j].Version
	})
	return ordered
}

func writeYAML(path string, value any) error {
	data, err := yaml.Marshal(value)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to encode %s", path)).
			WithCause(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to write %s", path)).
			WithCause(err)
	}
	return nil
}

var (
	_ ports.MetadataPort     = MetadataFileAdapter{}
	_ ports.ReportWriterPort = ReportFileAdapter{}
)
