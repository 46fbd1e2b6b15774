package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/arthur-debert/symfarm/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "symfarm version")
}

func TestConfigCommand(t *testing.T) {
	out, err := execute(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "valid_files:")
	assert.Contains(t, out, "structure:")
}

func TestSyncCommandEmptyTree(t *testing.T) {
	musicDir := t.TempDir()
	linkDir := t.TempDir()

	out, err := execute(t, musicDir, linkDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Synchronized 0 files")
}

func TestSyncCommandRejectsNestedLinkDir(t *testing.T) {
	musicDir := t.TempDir()
	_, err := execute(t, musicDir, filepath.Join(musicDir, "links"))
	require.Error(t, err)
}

func TestOptionFlagsOverrideConfig(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("options:\n  clean: false\n"), 0o644))

	t.Run("unset_flag_keeps_config_value", func(t *testing.T) {
		configPath = cfgFile
		defer func() { configPath = "" }()

		cfg, err := loadConfig(rootCmd)
		require.NoError(t, err)
		assert.False(t, cfg.Options.Clean)
	})

	t.Run("set_flag_wins", func(t *testing.T) {
		configPath = cfgFile
		defer func() { configPath = "" }()
		require.NoError(t, rootCmd.Flags().Set("clean", "true"))
		defer func() {
			require.NoError(t, rootCmd.Flags().Set("clean", "false"))
			rootCmd.Flags().Lookup("clean").Changed = false
		}()

		cfg, err := loadConfig(rootCmd)
		require.NoError(t, err)
		assert.True(t, cfg.Options.Clean)
	})
}

func TestRenderReport(t *testing.T) {
	out := renderReport(types.Report{Scanned: 3, Created: 2, Unchanged: 1, Failed: 1}, false)
	assert.Contains(t, out, "Synchronized 3 files")
	assert.Contains(t, out, "2 links created")
	assert.Contains(t, out, "1 failures")

	dry := renderReport(types.Report{}, true)
	assert.Contains(t, dry, "Dry run")
}
