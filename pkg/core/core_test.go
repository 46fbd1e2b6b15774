package core_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/arthur-debert/symfarm/pkg/config"
	"github.com/arthur-debert/symfarm/pkg/core"
	"github.com/arthur-debert/symfarm/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSource serves canned tags keyed by absolute path.
type stubSource map[string]map[string]string

func (s stubSource) Read(path string) (map[string]string, error) {
	tags, ok := s[path]
	if !ok {
		return nil, errors.Newf(errors.ErrTagRead, "no tags for %s", path)
	}
	return tags, nil
}

func testConfig(t *testing.T) *config.Compiled {
	t.Helper()
	cfg := &config.Config{
		Options:    config.Options{Clean: true},
		ValidFiles: []string{`.*\.mp3`},
		Structure: config.Structure{
			Path:            "{ALBUMARTIST}/{ALBUM}",
			PathCompilation: "Various Artists/{ALBUM}",
			File:            "{TRACKNUMBER:>02} - {TITLE}.{ext}",
			FileMultiArtist: "{TRACKNUMBER:>02} - {ARTIST} - {TITLE}.{ext}",
			FileDiscPrefix:  "{DISCNUMBER}-",
		},
		VariousArtists: "Various Artists",
		Fallbacks: map[string]interface{}{
			"ALBUMARTIST": "{ARTIST}",
			"TRACKNUMBER": 0,
		},
	}
	compiled, err := cfg.Compile()
	require.NoError(t, err)
	return compiled
}

func track(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	return path
}

func TestRun_EndToEnd(t *testing.T) {
	musicDir := t.TempDir()
	linkDir := t.TempDir()

	a := track(t, musicDir, "a.mp3")
	b := track(t, musicDir, "sub/b.mp3")
	track(t, musicDir, "cover.jpg")

	source := stubSource{
		a: {"ARTIST": "Band", "ALBUM": "LP", "TITLE": "One", "TRACKNUMBER": "1"},
		b: {"ARTIST": "Band", "ALBUM": "LP", "TITLE": "Two", "TRACKNUMBER": "2"},
	}
	cfg := testConfig(t)
	opts := core.Options{
		MusicDirs: []string{musicDir},
		LinkDir:   linkDir,
		Source:    source,
	}

	report, err := core.Run(context.Background(), cfg, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.NonMusic)
	assert.Equal(t, 2, report.Created)

	dest, err := os.Readlink(filepath.Join(linkDir, "Band/LP/01 - One.mp3"))
	require.NoError(t, err)
	assert.Equal(t, a, dest)

	t.Run("second_run_skips_linked_sources", func(t *testing.T) {
		report, err := core.Run(context.Background(), cfg, opts)
		require.NoError(t, err)
		assert.Equal(t, 2, report.AlreadyLinked)
		assert.Zero(t, report.Created)
		assert.Zero(t, report.Scanned)
	})

	t.Run("clean_prunes_after_source_removal", func(t *testing.T) {
		require.NoError(t, os.Remove(b))
		report, err := core.Run(context.Background(), cfg, opts)
		require.NoError(t, err)
		assert.Equal(t, 1, report.RemovedLinks)
		_, err = os.Lstat(filepath.Join(linkDir, "Band/LP/02 - Two.mp3"))
		assert.True(t, os.IsNotExist(err))
	})
}

func TestRun_DryRun(t *testing.T) {
	musicDir := t.TempDir()
	linkDir := t.TempDir()
	a := track(t, musicDir, "a.mp3")

	cfg := testConfig(t)
	report, err := core.Run(context.Background(), cfg, core.Options{
		MusicDirs: []string{musicDir},
		LinkDir:   linkDir,
		DryRun:    true,
		Source:    stubSource{a: {"ARTIST": "Band", "ALBUM": "LP", "TITLE": "One"}},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	entries, err := os.ReadDir(linkDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_HostileTagCannotEscapeLinkDir(t *testing.T) {
	musicDir := t.TempDir()
	root := t.TempDir()
	linkDir := filepath.Join(root, "links")
	require.NoError(t, os.Mkdir(linkDir, 0o755))
	a := track(t, musicDir, "a.mp3")

	// ARTIST ".." reaches ALBUMARTIST through the fallback and would place
	// the link one level above the link directory.
	cfg := testConfig(t)
	report, err := core.Run(context.Background(), cfg, core.Options{
		MusicDirs: []string{musicDir},
		LinkDir:   linkDir,
		Source: stubSource{
			a: {"ARTIST": "..", "ALBUM": "X", "TITLE": "t", "TRACKNUMBER": "1"},
		},
	})

	require.NoError(t, err)
	assert.Zero(t, report.Created)
	assert.Equal(t, 1, report.Failed)
	_, err = os.Lstat(filepath.Join(root, "X", "01 - t.mp3"))
	assert.True(t, os.IsNotExist(err), "link must not be created outside the link directory")
}

func TestRun_UnreadableTagsCounted(t *testing.T) {
	musicDir := t.TempDir()
	linkDir := t.TempDir()
	track(t, musicDir, "bad.mp3")

	cfg := testConfig(t)
	report, err := core.Run(context.Background(), cfg, core.Options{
		MusicDirs: []string{musicDir},
		LinkDir:   linkDir,
		Source:    stubSource{},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Zero(t, report.Created)
}

func TestRun_PathValidation(t *testing.T) {
	musicDir := t.TempDir()

	cfg := testConfig(t)

	t.Run("link_dir_inside_music_dir", func(t *testing.T) {
		_, err := core.Run(context.Background(), cfg, core.Options{
			MusicDirs: []string{musicDir},
			LinkDir:   filepath.Join(musicDir, "links"),
			Source:    stubSource{},
		})
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))
	})

	t.Run("no_music_dirs", func(t *testing.T) {
		_, err := core.Run(context.Background(), cfg, core.Options{
			LinkDir: t.TempDir(),
			Source:  stubSource{},
		})
		require.Error(t, err)
	})

	t.Run("nested_music_dirs_pruned", func(t *testing.T) {
		linkDir := t.TempDir()
		a := track(t, musicDir, "a.mp3")
		report, err := core.Run(context.Background(), cfg, core.Options{
			MusicDirs: []string{musicDir, filepath.Join(musicDir, "sub")},
			LinkDir:   linkDir,
			Source: stubSource{
				a: {"ARTIST": "Band", "ALBUM": "LP", "TITLE": "One", "TRACKNUMBER": "1"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, report.Scanned, "nested dir must not be scanned twice")
	})
}
