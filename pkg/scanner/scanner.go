// Package scanner enumerates music files, reads their tags and resolves
// overrides, producing the Songs the rest of the pipeline consumes.
package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/arthur-debert/symfarm/pkg/config"
	"github.com/arthur-debert/symfarm/pkg/logging"
	"github.com/arthur-debert/symfarm/pkg/override"
	"github.com/arthur-debert/symfarm/pkg/tags"
	"github.com/arthur-debert/symfarm/pkg/tagsource"
	"github.com/arthur-debert/symfarm/pkg/types"
)

// Scanner walks music directories and resolves songs.
type Scanner struct {
	cfg     *config.Compiled
	source  tagsource.TagSource
	engine  *override.Engine
	workers int
	logger  zerolog.Logger
}

// New creates a scanner. Tag reading runs on a bounded worker pool sized to
// the CPU count; per-file rule evaluation stays sequential within a file.
func New(cfg *config.Compiled, source tagsource.TagSource, engine *override.Engine) *Scanner {
	return &Scanner{
		cfg:     cfg,
		source:  source,
		engine:  engine,
		workers: runtime.NumCPU(),
		logger:  logging.GetLogger("scanner"),
	}
}

// Scan enumerates musicDir and returns the resolved songs in deterministic
// walk order. Paths present in alreadyLinked are skipped without reading
// tags; per-file failures are counted, not fatal.
func (s *Scanner) Scan(ctx context.Context, musicDir string, alreadyLinked map[string]bool) ([]types.Song, types.Report, error) {
	var report types.Report

	s.logger.Info().Str("dir", musicDir).Msg("Scanning music files")

	candidates, rep, err := s.collect(ctx, musicDir, alreadyLinked)
	report.Merge(rep)
	if err != nil {
		return nil, report, err
	}

	songs := make([]*types.Song, len(candidates))
	var g errgroup.Group
	g.SetLimit(s.workers)

	for i, path := range candidates {
		i, path := i, path
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			song, err := s.resolve(musicDir, path)
			if err != nil {
				s.logger.Warn().Err(err).Str("file", path).
					Msg("Failed to read song")
				return nil
			}
			songs[i] = song
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, report, err
	}

	out := make([]types.Song, 0, len(songs))
	for _, song := range songs {
		if song == nil {
			report.Failed++
			continue
		}
		report.Scanned++
		out = append(out, *song)
	}

	s.logger.Info().
		Int("songs", report.Scanned).
		Int("alreadyLinked", report.AlreadyLinked).
		Int("ignored", report.NonMusic).
		Int("failed", report.Failed).
		Str("dir", musicDir).
		Msg("Scan complete")

	return out, report, nil
}

// collect walks the directory and returns accepted file paths in walk order.
// A musicDir that is itself a file yields that single candidate.
func (s *Scanner) collect(ctx context.Context, musicDir string, alreadyLinked map[string]bool) ([]string, types.Report, error) {
	var report types.Report
	var candidates []string

	consider := func(path, base string) {
		if !s.cfg.AcceptsFile(base) {
			report.NonMusic++
			return
		}
		if alreadyLinked[path] {
			report.AlreadyLinked++
			return
		}
		candidates = append(candidates, path)
	}

	info, err := os.Stat(musicDir)
	if err != nil {
		return nil, report, err
	}
	if !info.IsDir() {
		abs, err := filepath.Abs(musicDir)
		if err != nil {
			return nil, report, err
		}
		consider(abs, filepath.Base(abs))
		return candidates, report, nil
	}

	err = filepath.WalkDir(musicDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("Walk error, skipping")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		consider(path, d.Name())
		return nil
	})
	if err != nil {
		return nil, report, err
	}
	return candidates, report, nil
}

// resolve reads tags, merges the path-derived fields and runs the override
// engine for a single file.
func (s *Scanner) resolve(musicDir, path string) (*types.Song, error) {
	raw, err := s.source.Read(path)
	if err != nil {
		return nil, err
	}

	attrs := make(tags.AttributeSet, len(raw)+4)
	for k, v := range raw {
		if v = strings.TrimSpace(v); v != "" {
			attrs[strings.ToUpper(k)] = tags.StringValue(v)
		}
	}

	relpath, err := filepath.Rel(musicDir, path)
	if err != nil || relpath == "." {
		relpath = filepath.Base(path)
	}
	base := filepath.Base(path)

	attrs[tags.AttrAbsPath] = tags.StringValue(path)
	attrs[tags.AttrPath] = tags.StringValue(relpath)
	attrs[tags.AttrFilename] = tags.StringValue(base)
	if ext := filepath.Ext(base); ext != "" {
		attrs[tags.AttrExt] = tags.StringValue(strings.TrimPrefix(ext, "."))
	}

	s.logger.Debug().Str("file", path).Msg("Scraped tags from file")

	resolved, directives := s.engine.Resolve(attrs)
	return &types.Song{
		AbsPath:    path,
		Attrs:      resolved,
		Directives: directives,
	}, nil
}
