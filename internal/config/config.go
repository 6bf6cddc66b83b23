// Package config loads seedhook's JSON configuration file on top of
// github.com/spf13/viper, filling in typed defaults for missing or
// malformed keys the way original_source/queersmission's makeconfig schema
// does, and managing the {HEX}-obfuscated rpc-password round trip.
package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/seedhook/seedhook/internal/apperr"
)

// Config mirrors the dash-cased keys spec.md §6 defines.
type Config struct {
	LogLevel string `mapstructure:"log-level" json:"log-level"`

	RPCPath     string `mapstructure:"rpc-path" json:"rpc-path"`
	RPCPort     int    `mapstructure:"rpc-port" json:"rpc-port"`
	RPCUsername string `mapstructure:"rpc-username" json:"rpc-username"`
	RPCPassword string `mapstructure:"rpc-password" json:"rpc-password"`

	SeedDir                string  `mapstructure:"seed-dir" json:"seed-dir"`
	SeedDirPurge           bool    `mapstructure:"seed-dir-purge" json:"seed-dir-purge"`
	SeedDirQuotaGiB        float64 `mapstructure:"seed-dir-quota-gib" json:"seed-dir-quota-gib"`
	SeedDirReserveSpaceGiB float64 `mapstructure:"seed-dir-reserve-space-gib" json:"seed-dir-reserve-space-gib"`
	WatchDir               string  `mapstructure:"watch-dir" json:"watch-dir"`

	RemovePublicOnComplete bool `mapstructure:"remove-public-on-complete" json:"remove-public-on-complete"`
	PublicUploadLimited    bool `mapstructure:"public-upload-limited" json:"public-upload-limited"`
	PublicUploadLimitKbps  int  `mapstructure:"public-upload-limit-kbps" json:"public-upload-limit-kbps"`

	DestDirDefault string `mapstructure:"dest-dir-default" json:"dest-dir-default"`
	DestDirMovies  string `mapstructure:"dest-dir-movies" json:"dest-dir-movies"`
	DestDirTVShows string `mapstructure:"dest-dir-tv-shows" json:"dest-dir-tv-shows"`
	DestDirMusic   string `mapstructure:"dest-dir-music" json:"dest-dir-music"`
	DestDirAV      string `mapstructure:"dest-dir-av" json:"dest-dir-av"`
}

// Default returns the schema's typed defaults, matching the document
// written out the first time seedhook runs against a missing config path.
func Default() Config {
	return Config{
		LogLevel:              "INFO",
		RPCPath:               "/transmission/rpc",
		RPCPort:               9091,
		PublicUploadLimitKbps: 50,
	}
}

const giB = 1 << 30

// SeedDirQuotaBytes converts the configured GiB quota to bytes; 0 means
// "derive from total capacity minus reserve" (spec.md §4.G.2).
func (c Config) SeedDirQuotaBytes() int64 { return int64(c.SeedDirQuotaGiB * giB) }

// SeedDirReserveBytes converts the configured GiB reserve to bytes.
func (c Config) SeedDirReserveBytes() int64 { return int64(c.SeedDirReserveSpaceGiB * giB) }

// fieldKind names the JSON type a schema key must decode as; any other
// JSON type (or a missing key) reverts that key to its schema default.
type fieldKind int

const (
	kindString fieldKind = iota
	kindBool
	kindNumber
)

// schemaDefaults and schemaKinds together describe the config schema:
// default value and required JSON type per dash-cased key, mirroring
// original_source/queersmission/config.py's SCHEMA table.
var schemaDefaults = map[string]interface{}{
	"log-level":                  "INFO",
	"rpc-path":                   "/transmission/rpc",
	"rpc-port":                   9091,
	"rpc-username":               "",
	"rpc-password":               "",
	"seed-dir":                   "",
	"seed-dir-purge":             false,
	"seed-dir-quota-gib":         float64(0),
	"seed-dir-reserve-space-gib": float64(0),
	"watch-dir":                  "",
	"remove-public-on-complete":  false,
	"public-upload-limited":      false,
	"public-upload-limit-kbps":   50,
	"dest-dir-default":           "",
	"dest-dir-movies":            "",
	"dest-dir-tv-shows":          "",
	"dest-dir-music":             "",
	"dest-dir-av":                "",
}

var schemaKinds = map[string]fieldKind{
	"log-level":                  kindString,
	"rpc-path":                   kindString,
	"rpc-port":                   kindNumber,
	"rpc-username":               kindString,
	"rpc-password":               kindString,
	"seed-dir":                   kindString,
	"seed-dir-purge":             kindBool,
	"seed-dir-quota-gib":         kindNumber,
	"seed-dir-reserve-space-gib": kindNumber,
	"watch-dir":                  kindString,
	"remove-public-on-complete":  kindBool,
	"public-upload-limited":      kindBool,
	"public-upload-limit-kbps":   kindNumber,
	"dest-dir-default":           kindString,
	"dest-dir-movies":            kindString,
	"dest-dir-tv-shows":          kindString,
	"dest-dir-music":             kindString,
	"dest-dir-av":                kindString,
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	for key, def := range schemaDefaults {
		v.SetDefault(key, def)
	}
	return v
}

// validateTypes reverts any key that is absent from the file, or present
// with the wrong JSON type, back to its schema default and reports whether
// anything was reverted. A reverted key is written back into v so the
// eventual Unmarshal sees only schema-clean values.
func validateTypes(v *viper.Viper) (changed bool) {
	for key, kind := range schemaKinds {
		if !v.InConfig(key) {
			changed = true
			continue
		}
		ok := false
		switch kind {
		case kindString:
			_, ok = v.Get(key).(string)
		case kindBool:
			_, ok = v.Get(key).(bool)
		case kindNumber:
			_, ok = v.Get(key).(float64)
		}
		if !ok {
			changed = true
			v.Set(key, schemaDefaults[key])
		}
	}
	return changed
}

// applyToViper pushes cfg's current field values into v, ahead of a rewrite,
// so the persisted file reflects the validated/obfuscated values actually
// in effect rather than whatever was last read from disk.
func applyToViper(v *viper.Viper, cfg Config) {
	v.Set("log-level", cfg.LogLevel)
	v.Set("rpc-path", cfg.RPCPath)
	v.Set("rpc-port", cfg.RPCPort)
	v.Set("rpc-username", cfg.RPCUsername)
	v.Set("rpc-password", cfg.RPCPassword)
	v.Set("seed-dir", cfg.SeedDir)
	v.Set("seed-dir-purge", cfg.SeedDirPurge)
	v.Set("seed-dir-quota-gib", cfg.SeedDirQuotaGiB)
	v.Set("seed-dir-reserve-space-gib", cfg.SeedDirReserveSpaceGiB)
	v.Set("watch-dir", cfg.WatchDir)
	v.Set("remove-public-on-complete", cfg.RemovePublicOnComplete)
	v.Set("public-upload-limited", cfg.PublicUploadLimited)
	v.Set("public-upload-limit-kbps", cfg.PublicUploadLimitKbps)
	v.Set("dest-dir-default", cfg.DestDirDefault)
	v.Set("dest-dir-movies", cfg.DestDirMovies)
	v.Set("dest-dir-tv-shows", cfg.DestDirTVShows)
	v.Set("dest-dir-music", cfg.DestDirMusic)
	v.Set("dest-dir-av", cfg.DestDirAV)
}

// normalizePath validates that p, if non-empty, is an absolute path, per
// original_source/queersmission's normalize_path. notEmpty rejects an empty
// value outright (dest-dir-default is mandatory).
func normalizePath(p, key string, notEmpty bool) (string, error) {
	if p == "" {
		if notEmpty {
			return "", apperr.Wrapf(apperr.ErrConfig, "%q must be set to an absolute path", key)
		}
		return "", nil
	}
	if !filepath.IsAbs(p) {
		return "", apperr.Wrapf(apperr.ErrConfig, "%q is not an absolute path: %q", key, p)
	}
	return filepath.Clean(p), nil
}

// Load reads and validates the configuration file at path. If the file does
// not exist, a default one is written and a non-nil ErrConfig-wrapped error
// is returned so the caller exits without running against an unreviewed
// configuration (original_source/queersmission/config.py's parse()).
func Load(path string) (*Config, error) {
	v := newViper(path)

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			if werr := v.WriteConfigAs(path); werr != nil {
				return nil, apperr.Wrapf(werr, "cannot create default configuration at %q", path)
			}
			return nil, apperr.Wrapf(apperr.ErrConfig,
				"a default configuration file was created at %q; edit it before running again", path)
		}
		return nil, apperr.Wrapf(apperr.ErrConfig, "cannot parse configuration file %q: %v", path, err)
	}

	changed := validateTypes(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperr.Wrapf(apperr.ErrConfig, "cannot decode configuration file %q: %v", path, err)
	}

	var perr error
	if cfg.SeedDir, perr = normalizePath(cfg.SeedDir, "seed-dir", false); perr != nil {
		return nil, perr
	}
	if cfg.WatchDir, perr = normalizePath(cfg.WatchDir, "watch-dir", false); perr != nil {
		return nil, perr
	}
	if cfg.DestDirDefault, perr = normalizePath(cfg.DestDirDefault, "dest-dir-default", true); perr != nil {
		return nil, perr
	}
	if cfg.DestDirMovies, perr = normalizePath(cfg.DestDirMovies, "dest-dir-movies", false); perr != nil {
		return nil, perr
	}
	if cfg.DestDirTVShows, perr = normalizePath(cfg.DestDirTVShows, "dest-dir-tv-shows", false); perr != nil {
		return nil, perr
	}
	if cfg.DestDirMusic, perr = normalizePath(cfg.DestDirMusic, "dest-dir-music", false); perr != nil {
		return nil, perr
	}
	if cfg.DestDirAV, perr = normalizePath(cfg.DestDirAV, "dest-dir-av", false); perr != nil {
		return nil, perr
	}

	cleartext, persisted, pwErr := resolvePassword(cfg.RPCPassword)
	if pwErr != nil {
		return nil, apperr.Wrapf(apperr.ErrConfig, "cannot decode rpc-password in %q: %v", path, pwErr)
	}
	if persisted != cfg.RPCPassword {
		changed = true
	}
	cfg.RPCPassword = persisted

	if changed {
		applyToViper(v, cfg)
		if werr := v.WriteConfigAs(path); werr != nil {
			return nil, apperr.Wrapf(werr, "cannot rewrite configuration at %q", path)
		}
	}
	cfg.RPCPassword = cleartext

	if cfg.DestDirMovies == "" {
		cfg.DestDirMovies = cfg.DestDirDefault
	}
	if cfg.DestDirTVShows == "" {
		cfg.DestDirTVShows = cfg.DestDirDefault
	}
	if cfg.DestDirMusic == "" {
		cfg.DestDirMusic = cfg.DestDirDefault
	}
	if cfg.DestDirAV == "" {
		cfg.DestDirAV = cfg.DestDirDefault
	}

	return &cfg, nil
}
