// Package farm maintains the symlink tree inside the link directory: it
// scans the existing links, prunes the broken ones, and brings the tree in
// line with a planned set of links.
package farm

import (
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/symfarm/pkg/logging"
	"github.com/arthur-debert/symfarm/pkg/types"
)

// Farm operates on one link directory.
type Farm struct {
	fs       types.FS
	linkDir  string
	relative bool
	dryRun   bool
	logger   zerolog.Logger
}

// New creates a Farm rooted at linkDir. When relative is set, links are
// written and validated as paths relative to the link's own directory;
// otherwise they are absolute. With dryRun, mutating operations are counted
// but not performed.
func New(fsys types.FS, linkDir string, relative, dryRun bool) *Farm {
	return &Farm{
		fs:       fsys,
		linkDir:  linkDir,
		relative: relative,
		dryRun:   dryRun,
		logger:   logging.GetLogger("farm"),
	}
}

// contains reports whether path sits strictly inside the link directory.
// Planned targets can carry ".." segments from hostile tag values, so every
// link path is checked before any filesystem operation.
func (f *Farm) contains(path string) bool {
	return path != f.linkDir && insideAny(path, []string{f.linkDir})
}

// resolveDest turns a link's raw destination into an absolute path.
func resolveDest(linkPath, dest string) string {
	if filepath.IsAbs(dest) {
		return filepath.Clean(dest)
	}
	return filepath.Clean(filepath.Join(filepath.Dir(linkPath), dest))
}

// insideAny reports whether path sits under one of the given directories.
func insideAny(path string, dirs []string) bool {
	for _, dir := range dirs {
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
