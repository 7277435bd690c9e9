// Copyright (c) 2025 Sqltunnel
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package config loads the connection configuration payload: a set of named
// database targets, each reachable through one SSH host. The payload is read
// once, validated eagerly and never mutated afterwards.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"

	apperrors "sqltunnel/cli/internal/errors"
	"sqltunnel/cli/internal/dsn"
	"sqltunnel/cli/internal/xdg"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// DefaultSSHPort is used when a target omits "port".
const DefaultSSHPort = 22

// LookupFunc resolves an environment variable.
type LookupFunc func(string) (string, bool)

// Config holds every target from the payload, keyed by lower-cased name.
type Config struct {
	DBs  map[string]Target
	Path string
}

// Target describes one database reachable through one SSH host.
type Target struct {
	Name string `mapstructure:"-"`

	// SSH side
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"pwd"`
	KeyFile    string `mapstructure:"key_file"`
	KnownHosts string `mapstructure:"known_hosts"`

	// Database side, as seen from the SSH host
	DBHost     string            `mapstructure:"dbhost"`
	DBPort     int               `mapstructure:"dbport"`
	DBUser     string            `mapstructure:"dbuser"`
	DBPassword string            `mapstructure:"dbpassword"`
	DBName     string            `mapstructure:"dbname"`
	Driver     string            `mapstructure:"driver"`
	DBParams   map[string]string `mapstructure:"dbparams"`
}

// SSHAddress returns host:port of the SSH server.
func (t Target) SSHAddress() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// DBAddress returns host:port of the database as dialed from the SSH server.
func (t Target) DBAddress() string {
	return fmt.Sprintf("%s:%d", t.DBHost, t.DBPort)
}

// DBType returns the database type the target's driver names.
func (t Target) DBType() dsn.DBType {
	return dsn.DetectDBType(t.Driver)
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads the payload at path from fs, resolving ${VAR} references from the
// process environment and an optional .env file beside the payload. Bare
// file names are also searched for with Locate.
func Load(fs afero.Fs, path string) (*Config, error) {
	return LoadWithEnv(fs, Locate(fs, path), os.LookupEnv)
}

// Locate returns path unchanged when it exists. A bare file name that does
// not exist in the working directory is looked up in the sqltunnel XDG
// config directory instead.
func Locate(fs afero.Fs, path string) string {
	if _, err := fs.Stat(path); err == nil || filepath.Base(path) != path {
		return path
	}
	dir, err := xdg.ConfigDir()
	if err != nil {
		return path
	}
	candidate := filepath.Join(dir, path)
	if _, err := fs.Stat(candidate); err == nil {
		return candidate
	}
	return path
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(fs afero.Fs, path string, lookup LookupFunc) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, apperrors.New(apperrors.InvalidInput, "config path is required")
	}
	info, err := fs.Stat(path)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.InvalidInput, err, "config file %s does not exist", path)
	}
	if info.IsDir() {
		return nil, apperrors.Newf(apperrors.InvalidInput, "config path %s is a directory", path)
	}

	// Target names may contain dots, so keep viper from treating them as nesting.
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetFs(fs)
	v.SetConfigFile(path)
	if ext := strings.TrimPrefix(filepath.Ext(path), "."); !slices.Contains(viper.SupportedExts, ext) {
		v.SetConfigType("json")
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, apperrors.Wrapf(apperrors.ConfigurationError, err, "parse config %s", path)
	}

	var raw struct {
		DBs map[string]Target `mapstructure:"dbs"`
	}
	if err := v.Unmarshal(&raw); err != nil {
		return nil, apperrors.Wrapf(apperrors.ConfigurationError, err, "decode config %s", path)
	}
	if len(raw.DBs) == 0 {
		return nil, apperrors.Newf(apperrors.ConfigurationError, "config %s defines no targets under \"DBs\"", path)
	}

	dotenv, err := readDotEnv(fs, filepath.Join(filepath.Dir(path), ".env"))
	if err != nil {
		return nil, err
	}
	expand := func(s string) (string, error) {
		var missing []string
		out := envRef.ReplaceAllStringFunc(s, func(ref string) string {
			name := envRef.FindStringSubmatch(ref)[1]
			if val, ok := lookup(name); ok {
				return val
			}
			if val, ok := dotenv[name]; ok {
				return val
			}
			missing = append(missing, name)
			return ref
		})
		if len(missing) > 0 {
			return "", fmt.Errorf("undefined variable(s) %s", strings.Join(missing, ", "))
		}
		return out, nil
	}

	cfg := &Config{DBs: make(map[string]Target, len(raw.DBs)), Path: path}
	for name, t := range raw.DBs {
		t.Name = name
		if err := t.expandEnv(expand); err != nil {
			return nil, apperrors.Wrapf(apperrors.ConfigurationError, err, "target %q", name)
		}
		t.applyDefaults()
		if err := t.validate(); err != nil {
			return nil, apperrors.Wrapf(apperrors.ConfigurationError, err, "target %q", name)
		}
		cfg.DBs[strings.ToLower(name)] = t
	}
	return cfg, nil
}

// Target returns the named target. Names match case-insensitively.
func (c *Config) Target(name string) (Target, error) {
	if c == nil {
		return Target{}, apperrors.New(apperrors.ConfigurationError, "no configuration loaded")
	}
	t, ok := c.DBs[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Target{}, apperrors.Newf(apperrors.ConfigurationError,
			"target %q not found in config (available: %s)", name, strings.Join(c.Names(), ", "))
	}
	return t, nil
}

// Names returns the configured target names, sorted.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.DBs))
	for _, t := range c.DBs {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names
}

func (t *Target) expandEnv(expand func(string) (string, error)) error {
	fields := []*string{
		&t.Host, &t.User, &t.Password, &t.KeyFile, &t.KnownHosts,
		&t.DBHost, &t.DBUser, &t.DBPassword, &t.DBName, &t.Driver,
	}
	for _, f := range fields {
		val, err := expand(*f)
		if err != nil {
			return err
		}
		*f = val
	}
	for k, v := range t.DBParams {
		val, err := expand(v)
		if err != nil {
			return err
		}
		t.DBParams[k] = val
	}
	return nil
}

func (t *Target) applyDefaults() {
	if t.Port == 0 {
		t.Port = DefaultSSHPort
	}
	if t.DBPort == 0 {
		t.DBPort = t.DBType().DefaultPort()
	}
}

func (t *Target) validate() error {
	required := []struct {
		key, val string
	}{
		{"host", t.Host},
		{"user", t.User},
		{"dbhost", t.DBHost},
		{"dbuser", t.DBUser},
		{"dbname", t.DBName},
	}
	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.val) == "" {
			missing = append(missing, r.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required key(s): %s", strings.Join(missing, ", "))
	}
	if t.Password == "" && t.KeyFile == "" {
		return fmt.Errorf("one of pwd or key_file is required for SSH authentication")
	}
	if t.Port < 1 || t.Port > 65535 {
		return fmt.Errorf("port %d out of range", t.Port)
	}
	if t.DBPort < 1 || t.DBPort > 65535 {
		return fmt.Errorf("dbport %d out of range", t.DBPort)
	}
	if t.DBType() == dsn.DBTypeUnknown {
		return fmt.Errorf("unsupported driver %q", t.Driver)
	}
	return nil
}

func readDotEnv(fs afero.Fs, path string) (map[string]string, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, apperrors.Wrapf(apperrors.ConfigurationError, err, "read %s", path)
	}
	env, err := godotenv.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ConfigurationError, err, "parse %s", path)
	}
	return env, nil
}
