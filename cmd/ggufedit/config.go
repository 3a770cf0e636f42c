package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/ggufedit/internal/backup"
)

const envConfig = "GGUFEDIT_CONFIG"

// Config represents the ggufedit configuration file
// (~/.config/ggufedit/config.yaml). Booleans are pointers so an absent key
// leaves the built-in default alone.
type Config struct {
	// Update defaults
	Backup       *bool  `yaml:"backup"`
	BackupSuffix string `yaml:"backup_suffix"`
	AllowInsert  *bool  `yaml:"allow_insert"`
	ForceRewrite *bool  `yaml:"force_rewrite"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
	RootDir       string `yaml:"root_dir"`
	Metrics       *bool  `yaml:"metrics"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "ggufedit", "config.yaml")
}

// LoadConfig reads the config file at path, or at the default location when
// path is empty. A missing default file yields a zero Config; a missing
// explicit file or a malformed one is an error.
func LoadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = configPath()
		if path == "" {
			return Config{}, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// applyLogConfig applies config file defaults to the logging flags when they
// were not set explicitly.
func applyLogConfig(c *cli.Command, cfg Config, level, format *string) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		*level = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		*format = cfg.LogFormat
	}
}

// updateSettings are the session switches shared by update and serve.
type updateSettings struct {
	backup       bool
	backupSuffix string
	noInsert     bool
	forceRewrite bool
}

// applyUpdateConfig applies config file defaults to the update switches.
func applyUpdateConfig(c *cli.Command, cfg Config, s *updateSettings) {
	if cfg.Backup != nil && !c.IsSet("backup") {
		s.backup = *cfg.Backup
	}
	if cfg.BackupSuffix != "" && !c.IsSet("backup-suffix") {
		s.backupSuffix = cfg.BackupSuffix
	}
	if cfg.AllowInsert != nil && !c.IsSet("no-insert") {
		s.noInsert = !*cfg.AllowInsert
	}
	if cfg.ForceRewrite != nil && !c.IsSet("force-rewrite") {
		s.forceRewrite = *cfg.ForceRewrite
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr, root *string, withMetrics *bool) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.RootDir != "" && !c.IsSet("root") {
		*root = cfg.RootDir
	}
	if cfg.Metrics != nil && !c.IsSet("metrics") {
		*withMetrics = *cfg.Metrics
	}
}

func updateFlags(s *updateSettings) []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "backup",
			Usage:       "copy the file to <file><suffix> before writing",
			Destination: &s.backup,
		},
		&cli.StringFlag{
			Name:        "backup-suffix",
			Usage:       "suffix of the backup copy",
			Value:       backup.DefaultSuffix,
			Destination: &s.backupSuffix,
		},
		&cli.BoolFlag{
			Name:        "no-insert",
			Usage:       "fail on keys the file does not have instead of adding them",
			Destination: &s.noInsert,
		},
		&cli.BoolFlag{
			Name:        "force-rewrite",
			Usage:       "always write a complete new file, even when the change fits in place",
			Destination: &s.forceRewrite,
		},
	}
}
