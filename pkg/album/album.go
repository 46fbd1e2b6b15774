// Package album groups resolved songs into albums and derives the
// compilation, multi-artist and multi-disc decisions that drive path
// planning.
package album

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/symfarm/pkg/logging"
	"github.com/arthur-debert/symfarm/pkg/tags"
	"github.com/arthur-debert/symfarm/pkg/types"
)

// Key is the album identity: case-normalized album artist (or the Various
// Artists sentinel), album title, and the year portion of DATE.
type Key struct {
	AlbumArtist string
	Album       string
	Year        string
}

// Album is a group of songs sharing one identity plus the derived naming
// decisions.
type Album struct {
	Key   Key
	Songs []types.Song

	// Compilation selects the compilation path template.
	Compilation bool
	// MultiArtist selects the multi-artist file template.
	MultiArtist bool
	// MultiDisc prepends the disc prefix to every member's filename.
	MultiDisc bool
}

// Grouper groups songs into albums.
type Grouper struct {
	tagmap    tags.Tagmap
	fallbacks tags.Fallbacks
	various   string
	logger    zerolog.Logger
}

// NewGrouper creates a grouper. various is the Various Artists sentinel.
func NewGrouper(tagmap tags.Tagmap, fallbacks tags.Fallbacks, various string) *Grouper {
	return &Grouper{
		tagmap:    tagmap,
		fallbacks: fallbacks,
		various:   various,
		logger:    logging.GetLogger("album.grouper"),
	}
}

// Group partitions songs into albums, preserving first-seen album order and
// song order within each album.
func (g *Grouper) Group(songs []types.Song) []*Album {
	var albums []*Album
	index := make(map[Key]*Album)

	for _, song := range songs {
		key := g.identity(song)
		a, ok := index[key]
		if !ok {
			a = &Album{Key: key}
			index[key] = a
			albums = append(albums, a)
		}
		a.Songs = append(a.Songs, song)
	}

	for _, a := range albums {
		g.decide(a)
	}

	g.logger.Info().
		Int("songs", len(songs)).
		Int("albums", len(albums)).
		Msg("Grouped songs into albums")

	return albums
}

// identity computes the grouping key from raw (no-fallback) values, so that
// fallback synthesis cannot split an album. Capitalization differences are
// folded away.
func (g *Grouper) identity(song types.Song) Key {
	look := &tags.Resolver{Attrs: song.Attrs, Tagmap: g.tagmap}

	albumArtist := look.GetRaw("ALBUMARTIST").Text()
	if albumArtist == "" {
		albumArtist = g.various
	}
	return Key{
		AlbumArtist: strings.ToLower(albumArtist),
		Album:       strings.ToLower(look.GetRaw("ALBUM").Text()),
		Year:        yearOf(look.GetRaw("DATE").Text()),
	}
}

// decide derives the album-level naming decisions and writes the first
// member's album tags back onto every member, so case drift between members
// cannot leak into expanded paths.
func (g *Grouper) decide(a *Album) {
	first := &tags.Resolver{Attrs: a.Songs[0].Attrs, Tagmap: g.tagmap}

	a.MultiArtist = !consistent(a.Songs, func(s types.Song) string {
		look := &tags.Resolver{Attrs: s.Attrs, Tagmap: g.tagmap}
		return strings.ToLower(look.GetRaw("ARTIST").Text())
	})
	a.MultiDisc = !consistent(a.Songs, func(s types.Song) string {
		look := &tags.Resolver{Attrs: s.Attrs, Tagmap: g.tagmap}
		return look.GetRaw("DISCNUMBER").Text()
	})
	a.Compilation = g.isCompilation(a, first)

	albumTags := map[string]tags.Value{
		"ALBUMARTIST": first.GetRaw("ALBUMARTIST"),
		"ALBUM":       first.GetRaw("ALBUM"),
		"DATE":        first.GetRaw("DATE"),
	}
	if a.Compilation {
		albumTags["ALBUMARTIST"] = tags.StringValue(g.various)
	}
	for i := range a.Songs {
		for name, v := range albumTags {
			if !v.IsEmpty() {
				a.Songs[i].Attrs[name] = v
			}
		}
	}
}

// isCompilation applies the explicit directive when the members that set it
// agree; otherwise an album is a compilation when its album artist resolves
// to the Various Artists sentinel: either tagged so explicitly, or absent
// while the members' artists disagree on a known album. The COMPILATION tag
// itself is never consulted.
func (g *Grouper) isCompilation(a *Album, first *tags.Resolver) bool {
	if explicit, ok := g.explicitDirective(a); ok {
		return explicit
	}

	if aa := first.GetRaw("ALBUMARTIST").Text(); aa != "" {
		return strings.EqualFold(aa, g.various)
	}
	if first.GetRaw("ALBUM").IsEmpty() {
		// Unknown album is probably just missing tags, not a compilation.
		return false
	}
	return a.MultiArtist
}

// explicitDirective returns the is_compilation directive when every member
// that carries one agrees.
func (g *Grouper) explicitDirective(a *Album) (value, ok bool) {
	seen := false
	for _, s := range a.Songs {
		d := s.Directives.IsCompilation
		if d == nil {
			continue
		}
		if seen && *d != value {
			g.logger.Warn().
				Str("album", a.Key.Album).
				Msg("Members disagree on is_compilation, ignoring the directive")
			return false, false
		}
		value, seen = *d, true
	}
	return value, seen
}

func consistent(songs []types.Song, get func(types.Song) string) bool {
	if len(songs) == 0 {
		return true
	}
	first := get(songs[0])
	for _, s := range songs[1:] {
		if get(s) != first {
			return false
		}
	}
	return true
}

// yearOf extracts the leading year digits from a date string.
func yearOf(date string) string {
	end := 0
	for end < len(date) && end < 4 && date[end] >= '0' && date[end] <= '9' {
		end++
	}
	return date[:end]
}
