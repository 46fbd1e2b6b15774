// Package planner turns grouped albums into the desired set of link targets,
// one relative path per accepted song.
package planner

import (
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/symfarm/pkg/album"
	"github.com/arthur-debert/symfarm/pkg/config"
	"github.com/arthur-debert/symfarm/pkg/logging"
	"github.com/arthur-debert/symfarm/pkg/override"
	"github.com/arthur-debert/symfarm/pkg/tags"
	"github.com/arthur-debert/symfarm/pkg/types"
)

// Planner expands structure templates into concrete link targets.
type Planner struct {
	structure config.Structure
	tagmap    tags.Tagmap
	fallbacks tags.Fallbacks
	sanitize  *sanitizer
	logger    zerolog.Logger
}

// New creates a planner from the compiled configuration.
func New(cfg *config.Compiled) *Planner {
	return &Planner{
		structure: cfg.Structure,
		tagmap:    cfg.Tagmap,
		fallbacks: cfg.Fallbacks,
		sanitize:  newSanitizer(cfg.Structure.CharacterStrip, cfg.Structure.CharacterReplace),
		logger:    logging.GetLogger("planner"),
	}
}

// Plan computes the target path for every accepted song across all albums.
// Two songs resolving to the same target are a collision: the first wins,
// the later one is reported and skipped.
func (p *Planner) Plan(albums []*album.Album) ([]types.LinkPlan, types.Report) {
	var report types.Report
	var plans []types.LinkPlan
	claimed := make(map[string]string) // target -> source

	for _, a := range albums {
		for i := range a.Songs {
			song := &a.Songs[i]
			if song.Directives.Ignore {
				report.Ignored++
				continue
			}

			target, err := p.target(a, song)
			if err != nil {
				report.Failed++
				p.logger.Warn().Err(err).Str("file", song.AbsPath).
					Msg("Failed to resolve target path, skipping file")
				continue
			}

			if prev, ok := claimed[target]; ok {
				report.Collisions++
				p.logger.Error().
					Str("target", target).
					Str("file", song.AbsPath).
					Str("linkedTo", prev).
					Msg("Target path already planned for another song, skipping")
				continue
			}
			claimed[target] = song.AbsPath
			plans = append(plans, types.LinkPlan{Target: target, Source: song.AbsPath})
		}
	}

	p.logger.Info().
		Int("planned", len(plans)).
		Int("collisions", report.Collisions).
		Msg("Planned link targets")

	return plans, report
}

// target picks and expands the templates for one song, honoring the
// path_template and filename_template directives.
func (p *Planner) target(a *album.Album, song *types.Song) (string, error) {
	tmpl := song.Directives.PathTemplate
	if tmpl == "" {
		tmpl = p.folderTemplate(a) + "/" + p.fileTemplate(a, song.Directives)
	}

	look := &tags.Resolver{
		Attrs:     song.Attrs,
		Tagmap:    p.tagmap,
		Fallbacks: p.fallbacks,
	}

	var segments []string
	for _, segTmpl := range tags.SplitTemplatePath(tmpl) {
		seg, err := tags.Expand(segTmpl, look)
		if err != nil {
			return "", err
		}
		if seg = p.sanitize.clean(seg); seg != "" {
			segments = append(segments, seg)
		}
	}
	return filepath.Join(segments...), nil
}

func (p *Planner) folderTemplate(a *album.Album) string {
	if a.Compilation {
		return p.structure.PathCompilation
	}
	return p.structure.Path
}

func (p *Planner) fileTemplate(a *album.Album, dir override.Directives) string {
	if dir.FilenameTemplate != "" {
		return dir.FilenameTemplate
	}
	tmpl := p.structure.File
	if a.MultiArtist {
		tmpl = p.structure.FileMultiArtist
	}
	if a.MultiDisc {
		tmpl = p.structure.FileDiscPrefix + tmpl
	}
	return tmpl
}

// sanitizer removes character_strip runes and applies the positional
// character_replace mapping to every path segment.
type sanitizer struct {
	strip   map[rune]bool
	replace map[rune]rune
}

func newSanitizer(strip string, replace []string) *sanitizer {
	s := &sanitizer{
		strip:   make(map[rune]bool, len(strip)),
		replace: make(map[rune]rune),
	}
	for _, r := range strip {
		s.strip[r] = true
	}
	if len(replace) == 2 {
		from := []rune(replace[0])
		to := []rune(replace[1])
		for i := range from {
			s.replace[from[i]] = to[i]
		}
	}
	return s
}

func (s *sanitizer) clean(segment string) string {
	out := make([]rune, 0, len(segment))
	for _, r := range segment {
		if s.strip[r] {
			continue
		}
		if repl, ok := s.replace[r]; ok {
			r = repl
		}
		out = append(out, r)
	}
	return string(out)
}
