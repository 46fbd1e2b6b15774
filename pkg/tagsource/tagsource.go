// Package tagsource reads embedded metadata from audio files.
package tagsource

import (
	"os"
	"strconv"
	"strings"

	"github.com/dhowden/tag"

	"github.com/arthur-debert/symfarm/pkg/errors"
)

// TagSource returns the raw tag mapping for a file. Implementations must
// return canonical uppercase tag names and trimmed, non-empty values.
type TagSource interface {
	Read(path string) (map[string]string, error)
}

// Reader is the production TagSource backed by dhowden/tag. It understands
// MP3 (ID3v1/v2), MP4/M4A, FLAC and OGG containers.
type Reader struct{}

// NewReader returns the file-backed TagSource.
func NewReader() *Reader {
	return &Reader{}
}

// Read parses the file's metadata. Failures are TAG_READ errors; callers
// report and skip the file.
func (r *Reader) Read(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTagRead, "opening %s", path)
	}
	defer func() { _ = f.Close() }()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTagRead, "reading tags from %s", path)
	}

	out := make(map[string]string)
	put := func(key, val string) {
		val = strings.TrimSpace(val)
		if val != "" {
			out[key] = val
		}
	}

	put("TITLE", m.Title())
	put("ARTIST", m.Artist())
	put("ALBUM", m.Album())
	put("ALBUMARTIST", m.AlbumArtist())
	put("COMPOSER", m.Composer())
	put("GENRE", m.Genre())
	if y := m.Year(); y > 0 {
		put("DATE", strconv.Itoa(y))
	}
	if n, total := m.Track(); n > 0 {
		if total > 0 {
			put("TRACKNUMBER", strconv.Itoa(n)+"/"+strconv.Itoa(total))
		} else {
			put("TRACKNUMBER", strconv.Itoa(n))
		}
	}
	if n, total := m.Disc(); n > 0 {
		if total > 0 {
			put("DISCNUMBER", strconv.Itoa(n)+"/"+strconv.Itoa(total))
		} else {
			put("DISCNUMBER", strconv.Itoa(n))
		}
	}
	if c, ok := m.Raw()["compilation"]; ok {
		put("COMPILATION", rawText(c))
	}

	return out, nil
}

func rawText(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "1"
		}
		return "0"
	case int:
		return strconv.Itoa(t)
	default:
		return ""
	}
}
