package app

import (
	"strings"
	"time"

	"crate-tool/internal/adapters"
	"crate-tool/internal/pipeline"
	"crate-tool/internal/ports"
	"crate-tool/internal/types"
)

const (
	DefaultManagedPath = "external/rust/android-crates-io"
	DefaultLegacyPath  = "external/rust/crates"

	managedCratesDir = "crates"
	pseudoCrateDir   = "pseudo_crate"
)

// Config locates the trees the service works on. Paths other than
// RepoRoot are relative to it.
type Config struct {
	RepoRoot         string
	ManagedPath      string
	LegacyPath       string
	GeneratorCommand string
	PatchCommand     string
	CargoCommand     string
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.RepoRoot) == "" {
		c.RepoRoot = "."
	}
	if strings.TrimSpace(c.ManagedPath) == "" {
		c.ManagedPath = DefaultManagedPath
	}
	if strings.TrimSpace(c.LegacyPath) == "" {
		c.LegacyPath = DefaultLegacyPath
	}
	return c
}

type Service struct {
	Scanner     ports.CrateScannerPort
	PseudoCrate ports.PseudoCratePort
	Generator   ports.GeneratorPort
	Patcher     ports.PatchPort
	Licenses    ports.LicenseClassifierPort
	Differ      ports.DifferPort
	Config      ports.ConfigPort
	Metadata    ports.MetadataPort
	Reports     ports.ReportWriterPort
	Root        string
	ManagedPath string
	LegacyPath  string
	Clock       func() time.Time
}

func NewService(cfg Config) Service {
	cfg = cfg.withDefaults()
	managed := types.NewRootedPath(cfg.RepoRoot, cfg.ManagedPath)
	return Service{
		Scanner:     adapters.NewCrateScannerAdapter(),
		PseudoCrate: adapters.NewPseudoCrateAdapter(managed.Join(pseudoCrateDir), cfg.CargoCommand),
		Generator:   adapters.NewGeneratorAdapter(cfg.GeneratorCommand),
		Patcher:     adapters.NewPatchAdapter(cfg.PatchCommand),
		Licenses:    adapters.NewLicenseFileAdapter(),
		Differ:      adapters.NewDifferAdapter(),
		Config:      adapters.NewConfigFileAdapter(),
		Metadata:    adapters.NewMetadataFileAdapter(),
		Reports:     adapters.NewReportFileAdapter(),
		Root:        cfg.RepoRoot,
		ManagedPath: cfg.ManagedPath,
		LegacyPath:  cfg.LegacyPath,
		Clock:       time.Now,
	}
}

func (s Service) tools() pipeline.Tools {
	return pipeline.Tools{
		Scanner:   s.Scanner,
		Generator: s.Generator,
		Patcher:   s.Patcher,
		Config:    s.Config,
		Metadata:  s.Metadata,
		Differ:    s.Differ,
		Clock:     s.Clock,
	}
}

func (s Service) managedDir() types.RootedPath {
	return types.NewRootedPath(s.Root, s.ManagedPath).Join(managedCratesDir)
}

func (s Service) managedDirFor(name string) types.RootedPath {
	return s.managedDir().Join(name)
}

func (s Service) legacyDir() types.RootedPath {
	return types.NewRootedPath(s.Root, s.LegacyPath)
}

func (s Service) legacyDirFor(name string) types.RootedPath {
	return s.legacyDir().Join(name)
}

func (s Service) repoConfigPath() string {
	return types.NewRootedPath(s.Root, s.ManagedPath).Join(types.RepoConfigFileName).Abs()
}

func timeNow(clock func() time.Time) time.Time {
	if clock == nil {
		return time.Now()
	}
	return clock()
}
