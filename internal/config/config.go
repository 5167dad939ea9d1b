// Package config resolves lockvault settings.
//
// Sources are applied in order, later ones winning:
//  1. defaults
//  2. JSON or YAML file named by -config or LOCKVAULT_CONFIG
//  3. LOCKVAULT_* environment variables
//  4. global command-line flags
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/illarion/lockvault/internal/crypto"
	"github.com/illarion/lockvault/internal/storage"
)

// Environment variables.
const (
	EnvConfig    = "LOCKVAULT_CONFIG"
	EnvVault     = "LOCKVAULT_VAULT"
	EnvBackend   = "LOCKVAULT_BACKEND"
	EnvSyncDir   = "LOCKVAULT_SYNC_DIR"
	EnvLogLevel  = "LOCKVAULT_LOG_LEVEL"
	EnvLogFormat = "LOCKVAULT_LOG_FORMAT"
	EnvKDFTime   = "LOCKVAULT_KDF_TIME"
	EnvKDFMemory = "LOCKVAULT_KDF_MEMORY"
	EnvKDFThread = "LOCKVAULT_KDF_THREADS"
)

// DefaultVaultFile is the vault file name used when no path is configured.
const DefaultVaultFile = ".lockvault"

// Config holds runtime settings.
type Config struct {
	VaultPath    string
	Backend      string
	SyncDir      string
	LogLevel     string
	LogFormat    string
	KDF          crypto.Params
	SyncAttempts int
	SyncBackoff  time.Duration
}

// LoadDefaults populates c with defaults.
func (c *Config) LoadDefaults() {
	c.VaultPath = DefaultVaultFile
	c.Backend = storage.BackendBolt
	c.SyncDir = ""
	c.LogLevel = "warn"
	c.LogFormat = "console"
	c.KDF = crypto.DefaultParams
	c.SyncAttempts = 3
	c.SyncBackoff = 200 * time.Millisecond
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.VaultPath == "" {
		return errors.New("vault path must not be empty")
	}
	switch c.Backend {
	case storage.BackendBolt, storage.BackendBadger:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Backend)
	}
	if err := c.KDF.Validate(); err != nil {
		return fmt.Errorf("invalid kdf parameters: %w", err)
	}
	if c.SyncAttempts < 1 {
		return errors.New("sync attempts must be at least 1")
	}
	return nil
}

// fileConfig is the JSON file shape. Absent fields leave the current
// value alone.
type fileConfig struct {
	Vault        *string `json:"vault" yaml:"vault"`
	Backend      *string `json:"backend" yaml:"backend"`
	SyncDir      *string `json:"sync_dir" yaml:"sync_dir"`
	LogLevel     *string `json:"log_level" yaml:"log_level"`
	LogFormat    *string `json:"log_format" yaml:"log_format"`
	KDFTime      *uint32 `json:"kdf_time" yaml:"kdf_time"`
	KDFMemoryKiB *uint32 `json:"kdf_memory_kib" yaml:"kdf_memory_kib"`
	KDFThreads   *uint8  `json:"kdf_threads" yaml:"kdf_threads"`
	SyncAttempts *int    `json:"sync_attempts" yaml:"sync_attempts"`
	SyncBackoff  *string `json:"sync_backoff" yaml:"sync_backoff"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.UnmarshalStrict(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	setString(&c.VaultPath, fc.Vault)
	setString(&c.Backend, fc.Backend)
	setString(&c.SyncDir, fc.SyncDir)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.LogFormat, fc.LogFormat)
	if fc.KDFTime != nil {
		c.KDF.Time = *fc.KDFTime
	}
	if fc.KDFMemoryKiB != nil {
		c.KDF.MemoryKiB = *fc.KDFMemoryKiB
	}
	if fc.KDFThreads != nil {
		c.KDF.Threads = *fc.KDFThreads
	}
	if fc.SyncAttempts != nil {
		c.SyncAttempts = *fc.SyncAttempts
	}
	if fc.SyncBackoff != nil {
		d, err := time.ParseDuration(*fc.SyncBackoff)
		if err != nil {
			return fmt.Errorf("invalid sync_backoff: %w", err)
		}
		c.SyncBackoff = d
	}

	// relative paths in the file are relative to the file
	base := filepath.Dir(path)
	if fc.Vault != nil && !filepath.IsAbs(c.VaultPath) {
		c.VaultPath = filepath.Join(base, c.VaultPath)
	}
	if fc.SyncDir != nil && c.SyncDir != "" && !filepath.IsAbs(c.SyncDir) {
		c.SyncDir = filepath.Join(base, c.SyncDir)
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv(EnvVault); v != "" {
		c.VaultPath = v
	}
	if v := getenv(EnvBackend); v != "" {
		c.Backend = v
	}
	if v := getenv(EnvSyncDir); v != "" {
		c.SyncDir = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := getenv(EnvLogFormat); v != "" {
		c.LogFormat = v
	}
	if v := getenv(EnvKDFTime); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvKDFTime, err)
		}
		c.KDF.Time = uint32(n)
	}
	if v := getenv(EnvKDFMemory); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvKDFMemory, err)
		}
		c.KDF.MemoryKiB = uint32(n)
	}
	if v := getenv(EnvKDFThread); v != "" {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvKDFThread, err)
		}
		c.KDF.Threads = uint8(n)
	}
	return nil
}

// Load resolves the configuration from args (global flags, without the
// program name) and the environment. It returns the arguments left after
// the global flags, starting with the command name.
func Load(args []string, getenv func(string) string, stderr io.Writer) (*Config, []string, error) {
	fs := flag.NewFlagSet("lockvault", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		configPath = fs.String("config", "", "path to a JSON or YAML config file")
		vaultPath  = fs.String("vault", "", "path to the vault database")
		backend    = fs.String("backend", "", "storage backend: bolt or badger")
		syncDir    = fs.String("sync-dir", "", "directory used as the sync remote")
		logLevel   = fs.String("log-level", "", "log level: debug, info, warn, error")
		logFormat  = fs.String("log-format", "", "log format: console or json")
	)
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	cfg := &Config{}
	cfg.LoadDefaults()

	file := *configPath
	if file == "" {
		file = getenv(EnvConfig)
	}
	if file != "" {
		if err := cfg.applyFile(file); err != nil {
			return nil, nil, err
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return nil, nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "vault":
			cfg.VaultPath = *vaultPath
		case "backend":
			cfg.Backend = *backend
		case "sync-dir":
			cfg.SyncDir = *syncDir
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-format":
			cfg.LogFormat = *logFormat
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, fs.Args(), nil
}
