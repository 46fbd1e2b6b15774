package farm_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/arthur-debert/symfarm/pkg/farm"
	"github.com/arthur-debert/symfarm/pkg/filesystem"
	"github.com/arthur-debert/symfarm/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func acceptAll(string) bool { return true }

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestSync_CreateAndIdempotence(t *testing.T) {
	musicDir := t.TempDir()
	linkDir := t.TempDir()
	src := filepath.Join(musicDir, "song.mp3")
	writeFile(t, src)

	f := farm.New(filesystem.NewOS(), linkDir, false, false)
	plans := []types.LinkPlan{{Target: "Band/Album/01 - Song.mp3", Source: src}}

	report := f.Sync(plans)
	assert.Equal(t, 1, report.Created)
	assert.Zero(t, report.Failed)

	dest, err := os.Readlink(filepath.Join(linkDir, "Band/Album/01 - Song.mp3"))
	require.NoError(t, err)
	assert.Equal(t, src, dest)

	// A second pass finds everything in place.
	report = f.Sync(plans)
	assert.Zero(t, report.Created)
	assert.Equal(t, 1, report.Unchanged)
}

func TestSync_UpdatesWrongLink(t *testing.T) {
	musicDir := t.TempDir()
	linkDir := t.TempDir()
	oldSrc := filepath.Join(musicDir, "old.mp3")
	newSrc := filepath.Join(musicDir, "new.mp3")
	writeFile(t, oldSrc)
	writeFile(t, newSrc)

	linkPath := filepath.Join(linkDir, "song.mp3")
	require.NoError(t, os.Symlink(oldSrc, linkPath))

	f := farm.New(filesystem.NewOS(), linkDir, false, false)
	report := f.Sync([]types.LinkPlan{{Target: "song.mp3", Source: newSrc}})

	assert.Equal(t, 1, report.Updated)
	dest, err := os.Readlink(linkPath)
	require.NoError(t, err)
	assert.Equal(t, newSrc, dest)
}

func TestSync_RefusesRegularFile(t *testing.T) {
	musicDir := t.TempDir()
	linkDir := t.TempDir()
	src := filepath.Join(musicDir, "song.mp3")
	writeFile(t, src)
	writeFile(t, filepath.Join(linkDir, "song.mp3"))

	f := farm.New(filesystem.NewOS(), linkDir, false, false)
	report := f.Sync([]types.LinkPlan{{Target: "song.mp3", Source: src}})

	assert.Equal(t, 1, report.Failed)
	info, err := os.Lstat(filepath.Join(linkDir, "song.mp3"))
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular(), "existing file must survive")
}

func TestSync_RelativeLinks(t *testing.T) {
	root := t.TempDir()
	musicDir := filepath.Join(root, "music")
	linkDir := filepath.Join(root, "links")
	src := filepath.Join(musicDir, "song.mp3")
	writeFile(t, src)

	f := farm.New(filesystem.NewOS(), linkDir, true, false)
	report := f.Sync([]types.LinkPlan{{Target: "Band/song.mp3", Source: src}})
	require.Equal(t, 1, report.Created)

	dest, err := os.Readlink(filepath.Join(linkDir, "Band/song.mp3"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("..", "..", "music", "song.mp3"), dest)

	// The relative destination must still resolve.
	_, err = os.Stat(filepath.Join(linkDir, "Band", dest))
	assert.NoError(t, err)
}

func TestSync_RejectsTargetEscapingLinkDir(t *testing.T) {
	musicDir := t.TempDir()
	root := t.TempDir()
	linkDir := filepath.Join(root, "links")
	require.NoError(t, os.Mkdir(linkDir, 0o755))
	src := filepath.Join(musicDir, "song.mp3")
	writeFile(t, src)

	f := farm.New(filesystem.NewOS(), linkDir, false, false)
	report := f.Sync([]types.LinkPlan{
		{Target: "../escape.mp3", Source: src},
		{Target: "..", Source: src},
		{Target: "ok/song.mp3", Source: src},
	})

	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 1, report.Created)
	_, err := os.Lstat(filepath.Join(root, "escape.mp3"))
	assert.True(t, os.IsNotExist(err), "nothing may be written outside the link directory")
	_, err = os.Lstat(filepath.Join(linkDir, "ok/song.mp3"))
	assert.NoError(t, err)
}

// failingFS errors ReadDir on one directory, standing in for an unreadable
// subtree.
type failingFS struct {
	types.FS
	failDir string
}

func (f *failingFS) ReadDir(name string) ([]fs.DirEntry, error) {
	if name == f.failDir {
		return nil, fs.ErrPermission
	}
	return f.FS.ReadDir(name)
}

func TestScan_UnreadableSubdirDoesNotAbort(t *testing.T) {
	musicDir := t.TempDir()
	linkDir := t.TempDir()
	src := filepath.Join(musicDir, "song.mp3")
	writeFile(t, src)
	require.NoError(t, os.Symlink(src, filepath.Join(linkDir, "song.mp3")))
	badDir := filepath.Join(linkDir, "bad")
	require.NoError(t, os.Mkdir(badDir, 0o755))

	f := farm.New(&failingFS{FS: filesystem.NewOS(), failDir: badDir}, linkDir, false, false)
	linked, report, err := f.Scan([]string{musicDir}, acceptAll, true)

	require.NoError(t, err, "an unreadable subdirectory must not abort the scan")
	assert.Equal(t, 1, report.Failed)
	assert.True(t, linked[src], "links outside the bad subtree are still collected")
}

func TestScan_UnreadableLinkDirIsFatal(t *testing.T) {
	linkDir := t.TempDir()
	f := farm.New(&failingFS{FS: filesystem.NewOS(), failDir: linkDir}, linkDir, false, false)
	_, _, err := f.Scan(nil, acceptAll, false)
	require.Error(t, err)
}

func TestSync_DryRunTouchesNothing(t *testing.T) {
	musicDir := t.TempDir()
	linkDir := t.TempDir()
	src := filepath.Join(musicDir, "song.mp3")
	writeFile(t, src)

	f := farm.New(filesystem.NewOS(), linkDir, false, true)
	report := f.Sync([]types.LinkPlan{{Target: "song.mp3", Source: src}})

	assert.Equal(t, 1, report.Created)
	_, err := os.Lstat(filepath.Join(linkDir, "song.mp3"))
	assert.True(t, os.IsNotExist(err))
}

func TestScan_ValidLinksFormSkipSet(t *testing.T) {
	musicDir := t.TempDir()
	linkDir := t.TempDir()
	src := filepath.Join(musicDir, "song.mp3")
	writeFile(t, src)

	linkPath := filepath.Join(linkDir, "Band", "song.mp3")
	require.NoError(t, os.MkdirAll(filepath.Dir(linkPath), 0o755))
	require.NoError(t, os.Symlink(src, linkPath))

	f := farm.New(filesystem.NewOS(), linkDir, false, false)
	linked, report, err := f.Scan([]string{musicDir}, acceptAll, true)

	require.NoError(t, err)
	assert.True(t, linked[src])
	assert.Zero(t, report.RemovedLinks)
}

func TestScan_OutsideMusicDirsNotClaimed(t *testing.T) {
	musicDir := t.TempDir()
	elsewhere := t.TempDir()
	linkDir := t.TempDir()
	src := filepath.Join(elsewhere, "song.mp3")
	writeFile(t, src)
	require.NoError(t, os.Symlink(src, filepath.Join(linkDir, "song.mp3")))

	f := farm.New(filesystem.NewOS(), linkDir, false, false)
	linked, report, err := f.Scan([]string{musicDir}, acceptAll, true)

	require.NoError(t, err)
	assert.Empty(t, linked)
	assert.Zero(t, report.RemovedLinks, "resolving links are never removed")
}

func TestScan_Clean(t *testing.T) {
	musicDir := t.TempDir()
	linkDir := t.TempDir()

	broken := filepath.Join(linkDir, "Band", "Album", "gone.mp3")
	require.NoError(t, os.MkdirAll(filepath.Dir(broken), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(musicDir, "missing.mp3"), broken))

	t.Run("disabled_leaves_broken_links", func(t *testing.T) {
		f := farm.New(filesystem.NewOS(), linkDir, false, false)
		_, report, err := f.Scan([]string{musicDir}, acceptAll, false)
		require.NoError(t, err)
		assert.Zero(t, report.RemovedLinks)
		_, err = os.Lstat(broken)
		assert.NoError(t, err)
	})

	t.Run("enabled_prunes_links_and_empty_dirs", func(t *testing.T) {
		f := farm.New(filesystem.NewOS(), linkDir, false, false)
		_, report, err := f.Scan([]string{musicDir}, acceptAll, true)
		require.NoError(t, err)
		assert.Equal(t, 1, report.RemovedLinks)
		assert.Equal(t, 2, report.RemovedDirs, "Band/Album and Band are both emptied")
		_, err = os.Lstat(filepath.Join(linkDir, "Band"))
		assert.True(t, os.IsNotExist(err))
	})
}

func TestScan_MissingLinkDir(t *testing.T) {
	f := farm.New(filesystem.NewOS(), filepath.Join(t.TempDir(), "nope"), false, false)
	linked, _, err := f.Scan(nil, acceptAll, true)
	require.NoError(t, err)
	assert.Empty(t, linked)
}

func TestScan_RelativityMismatchNotClaimed(t *testing.T) {
	musicDir := t.TempDir()
	linkDir := t.TempDir()
	src := filepath.Join(musicDir, "song.mp3")
	writeFile(t, src)
	// Absolute link while the farm is configured for relative ones.
	require.NoError(t, os.Symlink(src, filepath.Join(linkDir, "song.mp3")))

	f := farm.New(filesystem.NewOS(), linkDir, true, false)
	linked, _, err := f.Scan([]string{musicDir}, acceptAll, true)

	require.NoError(t, err)
	assert.Empty(t, linked, "mismatched links stay eligible for relinking")
}
