package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"crate-tool/internal/shared"
	"crate-tool/internal/types"
)

const asideSuffix = ".aside"

type PromoteOptions struct {
	// UpdateMetadata refreshes METADATA when the vendored version differs
	// from the recorded one.
	UpdateMetadata bool
}

// Promote replaces the committed crate with the staged one. The old
// directory is renamed aside first so an interrupted promotion can be
// rolled back by RecoverAside.
func (c *StagedCrate) Promote(ctx context.Context, opts PromoteOptions) error {
	staging := c.StagingPath()
	if c.spent || !shared.Exists(staging.Abs()) {
		return c.notFound()
	}
	if !c.checked {
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("staged crate %s has not passed check", c.Name()))
	}
	if opts.UpdateMetadata {
		if err := c.refreshMetadata(ctx); err != nil {
			return err
		}
	}
	dest := c.crate.Path.Abs()
	if _, err := recoverAside(dest + asideSuffix); err != nil {
		return err
	}
	c.spent = true
	if err := swapIntoPlace(ctx, staging.Abs(), dest); err != nil {
		return err
	}
	log.Ctx(ctx).Info().
		Str("crate", c.Name()).
		Str("version", c.VendoredVersion().String()).
		Str("path", c.crate.Path.String()).
		Msg("crate promoted")
	return nil
}

func swapIntoPlace(ctx context.Context, staging string, dest string) error {
	aside := dest + asideSuffix
	hadDest := shared.Exists(dest)
	if hadDest {
		if err := os.Rename(dest, aside); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("failed to move %s aside", dest)).
				WithCause(err)
		}
	}
	if err := os.Rename(staging, dest); err != nil {
		if hadDest {
			if restoreErr := os.Rename(aside, dest); restoreErr != nil {
				log.Ctx(ctx).Warn().
					Err(restoreErr).
					Str("path", dest).
					Msg("failed to restore crate from aside copy")
			}
		}
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to move %s into place", staging)).
			WithCause(err)
	}
	if hadDest {
		if err := os.RemoveAll(aside); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("failed to remove %s", aside)).
				WithCause(err)
		}
	}
	return nil
}

func (c *StagedCrate) refreshMetadata(ctx context.Context) error {
	path := c.StagingPath().Join(types.MetadataFileName).Abs()
	metadata, err := c.tools.Metadata.ReadMetadata(path)
	if err != nil {
		return err
	}
	if !RefreshMetadata(&metadata, c.Name(), c.VendoredVersion().String(), c.tools.now()) {
		return nil
	}
	log.Ctx(ctx).Debug().
		Str("crate", c.Name()).
		Str("version", metadata.ThirdParty.Version).
		Msg("metadata refreshed")
	return c.tools.Metadata.WriteMetadata(path, metadata)
}

// RecoverAside finishes or rolls back interrupted promotions in dir. An
// aside copy is restored when its crate directory is missing and deleted
// otherwise. It returns the restored directories.
func RecoverAside(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+asideSuffix))
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("invalid aside pattern").
			WithCause(err)
	}
	var restored []string
	for _, aside := range matches {
		ok, err := recoverAside(aside)
		if err != nil {
			return restored, err
		}
		if ok {
			restored = append(restored, strings.TrimSuffix(aside, asideSuffix))
		}
	}
	return restored, nil
}

func recoverAside(aside string) (bool, error) {
	if !shared.Exists(aside) {
		return false, nil
	}
	dest := strings.TrimSuffix(aside, asideSuffix)
	if !shared.Exists(dest) {
		if err := os.Rename(aside, dest); err != nil {
			return false, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("failed to restore %s", dest)).
				WithCause(err)
		}
		log.Warn().Str("path", dest).Msg("restored crate from interrupted promotion")
		return true, nil
	}
	if err := os.RemoveAll(aside); err != nil {
		return false, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to remove %s", aside)).
			WithCause(err)
	}
	return false, nil
}
