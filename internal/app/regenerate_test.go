package app

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crate-tool/internal/adapters"
	"crate-tool/internal/pipeline"
	"crate-tool/internal/types"
)

func TestRegenerateMovesToCompatibleVersion(t *testing.T) {
	f := newRepoFixture(t)
	dir := f.manage(t, "foo", "1.2.3", "")
	f.publish(t, "foo", "1.2.4", "")
	f.pseudoCrate.deps["foo"] = "=1.2.4"

	summary, err := f.service.Regenerate(t.Context(), RegenerateRequest{UpdateMetadata: true})
	require.NoError(t, err)
	want := []types.CrateVerdict{{Name: "foo", Version: "1.2.4", Verdict: types.VerdictHealthy}}
	if diff := cmp.Diff(want, summary.Verdicts); diff != "" {
		t.Fatalf("verdicts (-want +got):\n%s", diff)
	}

	assert.Contains(t, readTestFile(t, filepath.Join(dir, "Cargo.toml")), `version = "1.2.4"`)
	assert.Equal(t, "// foo 1.2.4\n", readTestFile(t, filepath.Join(dir, "src", "lib.rs")))
	assert.Equal(t, "foo\n", readTestFile(t, f.pseudoCrate.dir.Join(types.CrateListFileName).Abs()))
	assert.NoDirExists(t, filepath.Join(f.root, "out", "rust-crate-temporary-build", "foo"))

	metadata, err := adapters.NewMetadataFileAdapter().ReadMetadata(filepath.Join(dir, types.MetadataFileName))
	require.NoError(t, err)
	assert.Equal(t, "1.2.4", metadata.ThirdParty.Version)
	assert.Equal(t, types.Date{Year: 2026, Month: 10, Day: 16}, metadata.ThirdParty.LastUpgradeDate)
}

func TestRegenerateContinuesPastFailingCrate(t *testing.T) {
	f := newRepoFixture(t)
	f.manage(t, "baz", "0.1.0", "")
	foo := f.manage(t, "foo", "1.2.3", "")
	f.publish(t, "foo", "1.2.4", "")
	f.pseudoCrate.deps["foo"] = "=1.2.4"
	f.generator.failing["baz"] = true

	summary, err := f.service.Regenerate(t.Context(), RegenerateRequest{})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeFailedPrecondition, errbuilder.CodeOf(err))
	assert.Contains(t, err.Error(), "UNHEALTHY")
	assert.Equal(t, map[string]types.Verdict{
		"baz": types.VerdictUnhealthy,
		"foo": types.VerdictHealthy,
	}, verdictNames(summary))
	require.Len(t, summary.Unhealthy(), 1)
	assert.Contains(t, summary.Unhealthy()[0].Diagnostic, "cargo_embargo execution failed for baz")

	assert.Contains(t, readTestFile(t, filepath.Join(foo, "Cargo.toml")), `version = "1.2.4"`)
	assert.Equal(t, "baz\nfoo\n", readTestFile(t, f.pseudoCrate.dir.Join(types.CrateListFileName).Abs()))
}

func TestRegenerateFailFastStopsBatch(t *testing.T) {
	f := newRepoFixture(t)
	f.manage(t, "baz", "0.1.0", "")
	foo := f.manage(t, "foo", "1.2.3", "")
	f.publish(t, "foo", "1.2.4", "")
	f.pseudoCrate.deps["foo"] = "=1.2.4"
	f.generator.failing["baz"] = true

	summary, err := f.service.Regenerate(t.Context(), RegenerateRequest{FailFast: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cargo_embargo execution failed for baz")
	require.Len(t, summary.Verdicts, 1)
	assert.Contains(t, readTestFile(t, filepath.Join(foo, "Cargo.toml")), `version = "1.2.3"`)
}

func TestRegenerateRejectsIncompatibleVersion(t *testing.T) {
	f := newRepoFixture(t)
	dir := f.manage(t, "foo", "1.2.3", "")
	f.publish(t, "foo", "2.0.0", "")
	f.pseudoCrate.deps["foo"] = "=2.0.0"

	summary, err := f.service.Regenerate(t.Context(), RegenerateRequest{Names: []string{"foo"}})
	require.Error(t, err)
	require.Len(t, summary.Verdicts, 1)
	assert.Equal(t, types.VerdictUnhealthy, summary.Verdicts[0].Verdict)
	assert.Contains(t, summary.Verdicts[0].Diagnostic, "no compatible vendored crate found for foo@1.2.3")
	assert.Contains(t, readTestFile(t, filepath.Join(dir, "Cargo.toml")), `version = "1.2.3"`)
}

func TestRegenerateUnknownCrate(t *testing.T) {
	f := newRepoFixture(t)
	f.manage(t, "foo", "1.2.3", "")

	summary, err := f.service.Regenerate(t.Context(), RegenerateRequest{Names: []string{"missing"}})
	require.Error(t, err)
	require.Len(t, summary.Verdicts, 1)
	assert.Contains(t, summary.Verdicts[0].Diagnostic, "crate missing not found")
}

func TestRecoverRestoresInterruptedPromotion(t *testing.T) {
	f := newRepoFixture(t)
	dir := f.manage(t, "foo", "1.2.3", "")
	require.NoError(t, os.Rename(dir, dir+".aside"))

	require.NoError(t, f.service.Recover(t.Context()))
	assert.FileExists(t, filepath.Join(dir, "Cargo.toml"))
	assert.NoDirExists(t, dir+".aside")
}

func TestDiscardStagedLogsFailure(t *testing.T) {
	f := newRepoFixture(t)
	f.manage(t, "foo", "1.2.3", "")
	snapshot, err := f.pseudoCrate.Vendor(t.Context())
	require.NoError(t, err)
	record, err := f.service.singleCrate("foo", f.service.managedDirFor("foo"))
	require.NoError(t, err)
	vendored, err := f.service.singleCrate("foo", snapshot.DirFor("foo"))
	require.NoError(t, err)
	crate, err := pipeline.NewManagedCrate(record, f.service.tools()).VendorRecord(vendored)
	require.NoError(t, err)
	staged, err := crate.Stage(t.Context())
	require.NoError(t, err)
	require.NoError(t, staged.Discard())

	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(t.Context())
	discardStaged(ctx, staged)
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), "failed to discard staged crate")
}
