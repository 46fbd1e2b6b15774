package farm

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/arthur-debert/symfarm/pkg/errors"
	"github.com/arthur-debert/symfarm/pkg/types"
)

// Scan walks the link directory and returns the set of source paths that
// already have a valid link, so they can be skipped on rescan. A link is
// valid when its destination exists, sits under one of the music
// directories, is an accepted file, and its destination form matches the
// configured link relativity. With clean set, broken links are removed
// along with any directories left empty afterwards.
func (f *Farm) Scan(musicDirs []string, accepts func(name string) bool, clean bool) (map[string]bool, types.Report, error) {
	var report types.Report
	linked := make(map[string]bool)

	if _, err := f.fs.Lstat(f.linkDir); err != nil {
		if os.IsNotExist(err) {
			// Nothing to scan yet, sync will create the tree.
			return linked, report, nil
		}
		return nil, report, errors.Wrapf(err, errors.ErrLinkDirAccess,
			"cannot access link directory %s", f.linkDir)
	}

	entries, err := f.fs.ReadDir(f.linkDir)
	if err != nil {
		return nil, report, errors.Wrapf(err, errors.ErrLinkDirAccess,
			"cannot read link directory %s", f.linkDir)
	}
	f.scanEntries(f.linkDir, entries, musicDirs, accepts, clean, linked, &report)

	f.logger.Debug().
		Int("linked", len(linked)).
		Int("removedLinks", report.RemovedLinks).
		Int("removedDirs", report.RemovedDirs).
		Msg("Scanned link directory")

	return linked, report, nil
}

// scanEntries processes the entries of dir and returns how many remain in
// it after any removals, so emptied directories can be pruned bottom-up.
// Only the root read is fatal; an unreadable subdirectory is counted as a
// failure and the walk continues around it.
func (f *Farm) scanEntries(dir string, entries []fs.DirEntry, musicDirs []string, accepts func(string) bool, clean bool, linked map[string]bool, report *types.Report) int {
	remaining := len(entries)
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			sub, err := f.fs.ReadDir(path)
			if err != nil {
				report.Failed++
				f.logger.Warn().Err(err).Str("dir", path).
					Msg("Cannot read directory, skipping it")
				continue
			}
			left := f.scanEntries(path, sub, musicDirs, accepts, clean, linked, report)
			if left == 0 && clean {
				if f.removeDir(path) {
					report.RemovedDirs++
					remaining--
				}
			}
			continue
		}

		if entry.Type()&fs.ModeSymlink == 0 {
			// Regular files are not ours to manage.
			continue
		}

		if f.inspectLink(path, musicDirs, accepts, clean, linked, report) {
			remaining--
		}
	}
	return remaining
}

// inspectLink classifies one symlink and reports whether it was removed.
func (f *Farm) inspectLink(path string, musicDirs []string, accepts func(string) bool, clean bool, linked map[string]bool, report *types.Report) bool {
	dest, err := f.fs.Readlink(path)
	if err != nil {
		f.logger.Warn().Err(err).Str("link", path).Msg("Cannot read link, leaving it alone")
		return false
	}

	resolved := resolveDest(path, dest)
	if _, err := f.fs.Stat(resolved); err != nil {
		if !clean {
			f.logger.Debug().Str("link", path).Str("dest", dest).Msg("Broken link left in place")
			return false
		}
		if err := f.removeLink(path); err != nil {
			f.logger.Warn().Err(err).Str("link", path).Msg("Cannot remove broken link")
			report.Failed++
			return false
		}
		f.logger.Info().Str("link", path).Str("dest", dest).Msg("Removed broken link")
		report.RemovedLinks++
		return true
	}

	if !insideAny(resolved, musicDirs) || !accepts(filepath.Base(resolved)) {
		// Points somewhere we do not manage.
		return false
	}
	if filepath.IsAbs(dest) == f.relative {
		// Wrong relativity, leave the source eligible for relinking.
		return false
	}

	linked[resolved] = true
	return false
}

func (f *Farm) removeLink(path string) error {
	if f.dryRun {
		return nil
	}
	return f.fs.Remove(path)
}

func (f *Farm) removeDir(path string) bool {
	if f.dryRun {
		return true
	}
	if err := f.fs.Remove(path); err != nil {
		f.logger.Warn().Err(err).Str("dir", path).Msg("Cannot remove empty directory")
		return false
	}
	f.logger.Info().Str("dir", path).Msg("Removed empty directory")
	return true
}
