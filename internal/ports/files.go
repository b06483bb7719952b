package ports

import "crate-tool/internal/types"

type MetadataPort interface {
	ReadMetadata(path string) (types.Metadata, error)
	WriteMetadata(path string, metadata types.Metadata) error
}

// ConfigPort loads per-crate and repository configuration. A missing file
// yields the zero config.
type ConfigPort interface {
	LoadCrateConfig(path string) (types.CrateConfig, error)
	LoadRepoConfig(path string) (types.RepoConfig, error)
}

type ReportWriterPort interface {
	WriteHealthReport(path string, report types.HealthReport) error
}
