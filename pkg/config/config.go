// Package config loads, merges and compiles the symfarm configuration.
//
// Configuration is layered: embedded defaults, then an optional user file
// (YAML, or TOML by extension), then SYMFARM_* environment variables for the
// options block. A user file replaces entire top-level keys found in the
// defaults; there is no deep merge.
package config

import (
	_ "embed"
	"errors"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	symerr "github.com/arthur-debert/symfarm/pkg/errors"
)

//go:embed embedded/defaults.yaml
var defaultConfig []byte

type rawBytesProvider struct{ bytes []byte }

func (r *rawBytesProvider) ReadBytes() ([]byte, error) { return r.bytes, nil }
func (r *rawBytesProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New("not implemented")
}

// Options are the run toggles.
type Options struct {
	Clean          bool `koanf:"clean" yaml:"clean"`
	RescanExisting bool `koanf:"rescan_existing" yaml:"rescan_existing"`
	RelativeLinks  bool `koanf:"relative_links" yaml:"relative_links"`
}

// Structure holds the layout templates and path sanitizing rules.
type Structure struct {
	Path             string   `koanf:"path" yaml:"path"`
	PathCompilation  string   `koanf:"path_compilation" yaml:"path_compilation"`
	File             string   `koanf:"file" yaml:"file"`
	FileMultiArtist  string   `koanf:"file_multiartist" yaml:"file_multiartist"`
	FileDiscPrefix   string   `koanf:"file_disc_prefix" yaml:"file_disc_prefix"`
	CharacterStrip   string   `koanf:"character_strip" yaml:"character_strip"`
	CharacterReplace []string `koanf:"character_replace" yaml:"character_replace"`
}

// RawRule is an override rule as it appears in the config document, before
// selector and template compilation.
type RawRule struct {
	Match map[string]interface{} `koanf:"match" yaml:"match"`
	Set   map[string]interface{} `koanf:"set" yaml:"set"`
	Rules []RawRule              `koanf:"rules" yaml:"rules"`
}

// Config is the unmarshalled configuration document.
type Config struct {
	Options        Options             `koanf:"options" yaml:"options"`
	ValidFiles     []string            `koanf:"valid_files" yaml:"valid_files"`
	Structure      Structure           `koanf:"structure" yaml:"structure"`
	VariousArtists string              `koanf:"various_artists" yaml:"various_artists"`
	Tagmap         map[string][]string `koanf:"tagmap" yaml:"tagmap"`
	Fallbacks      map[string]interface{} `koanf:"fallbacks" yaml:"fallbacks"`
	Overrides      []RawRule           `koanf:"overrides" yaml:"overrides"`
}

// DefaultPath returns the default user config file location.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "symfarm", "config.yaml")
}

// Load reads the layered configuration. path is the user config file; when
// empty the default location is tried and silently skipped if absent.
func Load(path string) (*Config, error) {
	defaults, err := parseDocument(defaultConfig, yaml.Parser())
	if err != nil {
		return nil, symerr.Wrap(err, symerr.ErrConfigParse, "parsing embedded defaults")
	}

	explicit := path != ""
	if path == "" {
		path = DefaultPath()
	}

	if raw, err := file.Provider(path).ReadBytes(); err == nil {
		var parser koanf.Parser = yaml.Parser()
		if strings.EqualFold(filepath.Ext(path), ".toml") {
			parser = toml.Parser()
		}
		user, err := parseDocument(raw, parser)
		if err != nil {
			return nil, symerr.Wrapf(err, symerr.ErrConfigParse,
				"parsing config file %s", path)
		}
		// Replace top-level keys wholesale; no deep merge.
		for k, v := range user {
			defaults[k] = v
		}
	} else if explicit {
		return nil, symerr.Wrapf(err, symerr.ErrConfigLoad,
			"reading config file %s", path)
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, symerr.Wrap(err, symerr.ErrConfigLoad, "loading merged config")
	}

	// Environment variables override option toggles: SYMFARM_CLEAN=false etc.
	if err := k.Load(env.Provider("SYMFARM_", ".", func(s string) string {
		return "options." + strings.ToLower(strings.TrimPrefix(s, "SYMFARM_"))
	}), nil); err != nil {
		return nil, symerr.Wrap(err, symerr.ErrConfigLoad, "loading environment overrides")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, symerr.Wrap(err, symerr.ErrConfigParse, "unmarshalling config")
	}
	return &cfg, nil
}

func parseDocument(raw []byte, parser koanf.Parser) (map[string]interface{}, error) {
	k := koanf.New(".")
	if err := k.Load(&rawBytesProvider{bytes: raw}, parser); err != nil {
		return nil, err
	}
	return k.Raw(), nil
}
