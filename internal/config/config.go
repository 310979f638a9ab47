/*
Copyright © 2025 Benny Powers

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package config is the viper-backed loader for the engine's own
// settings (where the database lives, a busy-timeout value, whether
// synchronisation logs verbosely). It mirrors the
// teacher's workspace/config shape: a plain struct with mapstructure
// and yaml tags, discovered from a project-local .config directory or
// TYPESTORE_-prefixed environment variables, with CLI flags bound on
// top via viper.BindPFlag.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full set of engine settings. The zero value is not
// meaningful on its own; use Load or Default.
type Config struct {
	// Path to the SQLite database file. ":memory:" is accepted for
	// tests and throwaway runs.
	DatabasePath string `mapstructure:"databasePath" yaml:"databasePath"`
	// Busy-timeout setting. It is loaded but not applied: store.Open
	// always sets a fixed 30s SQLite busy timeout.
	BusyTimeout time.Duration `mapstructure:"busyTimeout" yaml:"busyTimeout"`
	// Verbose synchroniser logging (one line per §4.6 phase at Debug).
	Verbose bool `mapstructure:"verbose" yaml:"verbose"`
	// Directory the config file was discovered in, or resolved from
	// --project-dir. Not itself persisted to the config file.
	ProjectDir string `mapstructure:"projectDir" yaml:"-"`
	// Path to the config file actually read, if any.
	ConfigFile string `mapstructure:"configFile" yaml:"-"`
}

// Clone deep-copies c; Config has no slice/map fields today but this
// keeps the shape consistent with the teacher's CemConfig.Clone.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Default returns the settings used when no config file, flag or
// environment variable overrides anything.
func Default() *Config {
	return &Config{
		DatabasePath: "typestore.db",
		BusyTimeout:  5 * time.Second,
	}
}

const envPrefix = "TYPESTORE"

// Load resolves the project directory the same way the teacher's
// initConfig does (an explicit --project-dir flag wins, otherwise the
// parent of the --config file's directory when that directory is named
// .config or config, otherwise the current working directory), reads
// .config/typestore.yaml from it if present, layers TYPESTORE_-prefixed environment variables on top,
// and unmarshals the result into a Config seeded with Default values.
func Load(v *viper.Viper, projectDirFlag string) (*Config, error) {
	cfg := Default()

	projectDir, changed, err := resolveProjectDir(v.GetString("configFile"), projectDirFlag)
	if err != nil {
		return nil, err
	}
	v.Set("projectDir", projectDir)
	if changed {
		if err := os.Chdir(projectDir); err != nil {
			return nil, errors.Join(err, errors.New("failed to change into project directory"))
		}
	}

	v.AddConfigPath(filepath.Join(projectDir, ".config"))
	v.SetConfigType("yaml")
	v.SetConfigName("typestore")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	cfgFile := v.GetString("configFile")
	if cfgFile == "" {
		cfgFile, err = expandPath(filepath.Join(projectDir, ".config", "typestore.yaml"))
		if err != nil {
			return nil, err
		}
	} else {
		cfgFile, err = expandPath(cfgFile)
		if err != nil {
			return nil, err
		}
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err == nil {
			cfg.ConfigFile = cfgFile
		}
	}
	v.Set("configFile", cfgFile)

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	cfg.ProjectDir = projectDir
	return cfg, nil
}

// resolveProjectDir mirrors the teacher's cmd/root.go helper of the
// same name: an explicit --project-dir flag always wins, otherwise,
// when the config file sits in a directory named .config or config,
// that directory's parent is used, otherwise the current working
// directory.
func resolveProjectDir(configPath, projectDirFlag string) (dir string, changed bool, err error) {
	if projectDirFlag != "" {
		abs, err := expandPath(projectDirFlag)
		if err != nil {
			return "", false, err
		}
		return abs, true, nil
	}
	if configPath != "" {
		configAbs, err := filepath.Abs(configPath)
		if err != nil {
			return "", false, err
		}
		configDir := filepath.Dir(configAbs)
		if base := filepath.Base(configDir); base == ".config" || base == "config" {
			return filepath.Dir(configDir), true, nil
		}
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, err
	}
	return cwd, false, nil
}

// expandPath expands a leading ~ or ~/ and returns an absolute path.
func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if path == "~" {
			path = home
		} else if strings.HasPrefix(path, "~/") {
			path = filepath.Join(home, path[2:])
		}
	}
	return filepath.Abs(path)
}
