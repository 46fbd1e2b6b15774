package farm

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/arthur-debert/symfarm/pkg/errors"
	"github.com/arthur-debert/symfarm/pkg/types"
)

// Sync materializes the planned links under the link directory. Links that
// already point at the right source are left untouched, wrong ones are
// replaced in place, missing ones are created. A target resolving outside
// the link directory is refused. Per-link failures are counted and logged,
// they never abort the pass.
func (f *Farm) Sync(plans []types.LinkPlan) types.Report {
	var report types.Report

	for _, plan := range plans {
		linkPath := filepath.Join(f.linkDir, plan.Target)
		if !f.contains(linkPath) {
			report.Failed++
			f.logger.Warn().
				Str("target", plan.Target).
				Str("source", plan.Source).
				Msg("Target path escapes the link directory, skipping")
			continue
		}
		dest, err := f.destFor(linkPath, plan.Source)
		if err != nil {
			report.Failed++
			f.logger.Warn().Err(err).Str("source", plan.Source).Msg("Cannot compute link destination")
			continue
		}

		switch f.apply(linkPath, dest, &report) {
		case linkCreated:
			report.Created++
			f.logger.Info().Str("link", linkPath).Str("dest", dest).Msg("Created link")
		case linkUpdated:
			report.Updated++
			f.logger.Info().Str("link", linkPath).Str("dest", dest).Msg("Updated link")
		case linkUnchanged:
			report.Unchanged++
		case linkFailed:
			// already counted and logged
		}
	}

	f.logger.Info().
		Int("created", report.Created).
		Int("updated", report.Updated).
		Int("unchanged", report.Unchanged).
		Msg("Synchronized links")

	return report
}

type linkOutcome int

const (
	linkCreated linkOutcome = iota
	linkUpdated
	linkUnchanged
	linkFailed
)

// destFor computes the destination string to store in the link.
func (f *Farm) destFor(linkPath, source string) (string, error) {
	if !f.relative {
		return source, nil
	}
	rel, err := filepath.Rel(filepath.Dir(linkPath), source)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrLinkCreate, "cannot relativize link destination")
	}
	return rel, nil
}

func (f *Farm) apply(linkPath, dest string, report *types.Report) linkOutcome {
	info, err := f.fs.Lstat(linkPath)
	switch {
	case os.IsNotExist(err):
		if err := f.create(linkPath, dest); err != nil {
			report.Failed++
			f.logger.Warn().Err(err).Str("link", linkPath).Msg("Cannot create link")
			return linkFailed
		}
		return linkCreated

	case err != nil:
		report.Failed++
		f.logger.Warn().Err(err).Str("link", linkPath).Msg("Cannot stat link path")
		return linkFailed

	case info.Mode()&fs.ModeSymlink == 0:
		report.Failed++
		f.logger.Warn().Str("path", linkPath).Msg("Path exists and is not a link, refusing to replace it")
		return linkFailed
	}

	current, err := f.fs.Readlink(linkPath)
	if err == nil && current == dest {
		return linkUnchanged
	}

	if err := f.replace(linkPath, dest); err != nil {
		report.Failed++
		f.logger.Warn().Err(err).Str("link", linkPath).Msg("Cannot update link")
		return linkFailed
	}
	return linkUpdated
}

func (f *Farm) create(linkPath, dest string) error {
	if f.dryRun {
		return nil
	}
	if err := f.fs.MkdirAll(filepath.Dir(linkPath), 0o755); err != nil {
		return errors.Wrapf(err, errors.ErrDirCreate, "cannot create %s", filepath.Dir(linkPath))
	}
	if err := f.fs.Symlink(dest, linkPath); err != nil {
		return errors.Wrap(err, errors.ErrLinkCreate, "symlink failed")
	}
	return nil
}

// replace swaps the link atomically: the new link is written under a
// temporary name in the same directory and renamed over the old one.
func (f *Farm) replace(linkPath, dest string) error {
	if f.dryRun {
		return nil
	}
	tmp := linkPath + ".symfarm-tmp"
	_ = f.fs.Remove(tmp)
	if err := f.fs.Symlink(dest, tmp); err != nil {
		return errors.Wrap(err, errors.ErrLinkCreate, "symlink failed")
	}
	if err := f.fs.Rename(tmp, linkPath); err != nil {
		_ = f.fs.Remove(tmp)
		return errors.Wrap(err, errors.ErrLinkCreate, "rename failed")
	}
	return nil
}
