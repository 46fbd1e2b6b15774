// Package core wires the pipeline: link-directory scan, music scan, album
// grouping, path planning and link synchronization.
package core

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/symfarm/pkg/album"
	"github.com/arthur-debert/symfarm/pkg/config"
	"github.com/arthur-debert/symfarm/pkg/errors"
	"github.com/arthur-debert/symfarm/pkg/farm"
	"github.com/arthur-debert/symfarm/pkg/filesystem"
	"github.com/arthur-debert/symfarm/pkg/logging"
	"github.com/arthur-debert/symfarm/pkg/override"
	"github.com/arthur-debert/symfarm/pkg/planner"
	"github.com/arthur-debert/symfarm/pkg/scanner"
	"github.com/arthur-debert/symfarm/pkg/tagsource"
	"github.com/arthur-debert/symfarm/pkg/types"
)

// Options parameterizes one run.
type Options struct {
	// MusicDirs are the source trees (or single files) to scan.
	MusicDirs []string

	// LinkDir is the directory the symlink tree is maintained in.
	LinkDir string

	// DryRun reports what would change without touching the filesystem.
	DryRun bool

	// FS overrides the filesystem, nil means the OS one.
	FS types.FS

	// Source overrides the tag reader, nil means the file-based one.
	Source tagsource.TagSource
}

// Run executes one synchronization pass and returns the aggregated report.
func Run(ctx context.Context, cfg *config.Compiled, opts Options) (types.Report, error) {
	var report types.Report
	logger := logging.GetLogger("core")
	defer logging.LogOperationStart(logger, "sync")()

	fsys := opts.FS
	if fsys == nil {
		fsys = filesystem.NewOS()
	}
	source := opts.Source
	if source == nil {
		source = tagsource.NewReader()
	}

	musicDirs, linkDir, err := normalizePaths(opts.MusicDirs, opts.LinkDir)
	if err != nil {
		return report, err
	}

	links := farm.New(fsys, linkDir, cfg.Options.RelativeLinks, opts.DryRun)

	linked, rep, err := links.Scan(musicDirs, cfg.AcceptsFile, cfg.Options.Clean)
	report.Merge(rep)
	if err != nil {
		return report, err
	}
	if cfg.Options.RescanExisting {
		// Rescan everything, existing links are revalidated by Sync.
		linked = nil
	}

	engine := override.NewEngine(cfg.Rules, cfg.Tagmap, cfg.Fallbacks)
	scan := scanner.New(cfg, source, engine)

	var songs []types.Song
	for _, dir := range musicDirs {
		found, rep, err := scan.Scan(ctx, dir, linked)
		report.Merge(rep)
		if err != nil {
			return report, err
		}
		songs = append(songs, found...)
	}

	albums := album.NewGrouper(cfg.Tagmap, cfg.Fallbacks, cfg.VariousArtists).Group(songs)
	plans, rep := planner.New(cfg).Plan(albums)
	report.Merge(rep)

	report.Merge(links.Sync(plans))

	logger.Info().
		Int("scanned", report.Scanned).
		Int("created", report.Created).
		Int("updated", report.Updated).
		Int("failed", report.Failed).
		Msg("Run complete")

	return report, nil
}

// normalizePaths absolutizes every path, drops music directories nested
// inside another one, and rejects a link directory that overlaps a music
// directory, which would make the farm consume its own links.
func normalizePaths(musicDirs []string, linkDir string) ([]string, string, error) {
	if len(musicDirs) == 0 {
		return nil, "", errors.New(errors.ErrInvalidInput, "no music directories given")
	}
	if linkDir == "" {
		return nil, "", errors.New(errors.ErrInvalidInput, "no link directory given")
	}

	absLink, err := filepath.Abs(linkDir)
	if err != nil {
		return nil, "", errors.Wrap(err, errors.ErrInvalidInput, "bad link directory")
	}

	var abs []string
	for _, dir := range musicDirs {
		a, err := filepath.Abs(dir)
		if err != nil {
			return nil, "", errors.Wrapf(err, errors.ErrInvalidInput, "bad music directory %s", dir)
		}
		abs = append(abs, filepath.Clean(a))
	}

	var kept []string
	seen := make(map[string]bool)
	for i, dir := range abs {
		if seen[dir] {
			continue
		}
		nested := false
		for j, other := range abs {
			if i != j && dir != other && under(dir, other) {
				nested = true
				break
			}
		}
		if !nested {
			kept = append(kept, dir)
			seen[dir] = true
		}
	}

	for _, dir := range kept {
		if under(absLink, dir) || under(dir, absLink) || dir == absLink {
			return nil, "", errors.Newf(errors.ErrInvalidInput,
				"link directory %s overlaps music directory %s", absLink, dir)
		}
	}
	return kept, absLink, nil
}

func under(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
