package core

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sliink/eventd/internal/model"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable that overrides a config key,
// e.g. EVENTD_METRICS_PORT or EVENTD_LOG_LEVEL.
const EnvPrefix = "EVENTD_"

const (
	defaultRecoveryBackoff = 5 * time.Second
	defaultShutdownTimeout = 5 * time.Second
	defaultNamespace       = "eventd"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Config is the validated process configuration. It is built once by
// LoadConfig and never modified afterwards.
type Config struct {
	Log             LogConfig
	ScanInterval    time.Duration
	SyncDelay       time.Duration
	TriggerDelay    time.Duration
	RecoveryBackoff time.Duration
	ShutdownTimeout time.Duration
	Plugins         PluginsConfig
	Metrics         MetricsConfig
	Identity        IdentityConfig
	Telemetry       TelemetryConfig
	Sources         []model.PluginSpec
	Sync            *model.PluginSpec
	Notifiers       []model.PluginSpec
	path            string
}

// LogConfig configures the console and rotating file sinks
type LogConfig struct {
	Level       string
	File        string
	MaxBytes    int64
	BackupCount int
	Console     bool
}

// PluginsConfig locates hook plugins
type PluginsConfig struct {
	Path    string
	Enabled bool
}

// MetricsConfig is the bind address of the scrape endpoint
type MetricsConfig struct {
	Host string
	Port int
}

// Address returns host:port for net.Listen
func (m MetricsConfig) Address() string {
	return net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
}

// IdentityConfig feeds the process identity signature
type IdentityConfig struct {
	Namespace string
	Version   string
}

// TelemetryConfig configures OTLP export. An empty endpoint disables it.
type TelemetryConfig struct {
	Endpoint    string
	ServiceName string
	Headers     string
	ExportLogs  bool
}

// Enabled reports whether OTLP export is configured
func (t TelemetryConfig) Enabled() bool {
	return t.Endpoint != ""
}

// Path returns the file the configuration was loaded from
func (c *Config) Path() string {
	return c.path
}

// fileConfig mirrors the YAML document. Scalars are pointers so a missing
// key can be told apart from a zero value.
type fileConfig struct {
	Settings  rawSettings        `yaml:",inline"`
	Sources   []model.PluginSpec `yaml:"sources"`
	Sync      *model.PluginSpec  `yaml:"sync"`
	Notifiers []model.PluginSpec `yaml:"notifiers"`
}

type rawSettings struct {
	Log               rawLog       `yaml:"log" envPrefix:"LOG_"`
	ScanIntervalMS    *int64       `yaml:"scan_interval_ms" env:"SCAN_INTERVAL_MS"`
	SyncDelayMS       *int64       `yaml:"sync_delay_ms" env:"SYNC_DELAY_MS"`
	TriggerDelayMS    *int64       `yaml:"trigger_delay_ms" env:"TRIGGER_DELAY_MS"`
	RecoveryBackoffMS *int64       `yaml:"recovery_backoff_ms" env:"RECOVERY_BACKOFF_MS"`
	ShutdownTimeoutMS *int64       `yaml:"shutdown_timeout_ms" env:"SHUTDOWN_TIMEOUT_MS"`
	Plugins           rawPlugins   `yaml:"plugins" envPrefix:"PLUGINS_"`
	Metrics           rawMetrics   `yaml:"metrics" envPrefix:"METRICS_"`
	Identity          rawIdentity  `yaml:"identity" envPrefix:"IDENTITY_"`
	Telemetry         rawTelemetry `yaml:"telemetry" envPrefix:"TELEMETRY_"`
}

type rawLog struct {
	Level       *string `yaml:"level" env:"LEVEL"`
	File        *string `yaml:"file" env:"FILE"`
	MaxBytes    *int64  `yaml:"max_bytes" env:"MAX_BYTES"`
	BackupCount *int    `yaml:"backup_count" env:"BACKUP_COUNT"`
	Console     *bool   `yaml:"console" env:"CONSOLE"`
}

type rawPlugins struct {
	Path    *string `yaml:"path" env:"PATH"`
	Enabled *bool   `yaml:"enabled" env:"ENABLED"`
}

type rawMetrics struct {
	Host *string `yaml:"host" env:"HOST"`
	Port *int    `yaml:"port" env:"PORT"`
}

type rawIdentity struct {
	Namespace *string `yaml:"namespace" env:"NAMESPACE"`
	Version   *string `yaml:"version" env:"VERSION"`
}

type rawTelemetry struct {
	Endpoint    *string `yaml:"endpoint" env:"ENDPOINT"`
	ServiceName *string `yaml:"service_name" env:"SERVICE_NAME"`
	Headers     *string `yaml:"headers" env:"HEADERS"`
	ExportLogs  *bool   `yaml:"export_logs" env:"EXPORT_LOGS"`
}

// LoadConfig reads, overrides from the environment and validates the
// configuration at path. It stops at the first invalid field and returns a
// *ConfigError naming it. Nothing is created on disk.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Reason: "error reading config file", Err: err}
	}

	var raw fileConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ConfigError{Reason: fmt.Sprintf("error parsing config file: %v", err), Err: err}
	}

	if err := env.ParseWithOptions(&raw.Settings, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("error applying environment overrides: %v", err), Err: err}
	}

	cfg, err := raw.validate()
	if err != nil {
		return nil, err
	}
	cfg.path = path
	return cfg, nil
}

func (raw *fileConfig) validate() (*Config, error) {
	s := raw.Settings
	cfg := &Config{
		RecoveryBackoff: defaultRecoveryBackoff,
		ShutdownTimeout: defaultShutdownTimeout,
		Identity:        IdentityConfig{Namespace: defaultNamespace},
		Log:             LogConfig{Console: true},
	}

	// log
	if s.Log.Level == nil {
		return nil, missing("log.level")
	}
	level := strings.ToLower(strings.TrimSpace(*s.Log.Level))
	if !slices.Contains(validLogLevels, level) {
		return nil, invalid("log.level", "must be one of "+strings.Join(validLogLevels, ", "))
	}
	cfg.Log.Level = level

	if s.Log.File == nil {
		return nil, missing("log.file")
	}
	if strings.TrimSpace(*s.Log.File) == "" {
		return nil, invalid("log.file", "must not be empty")
	}
	if err := checkCreatable(*s.Log.File, false); err != nil {
		return nil, &ConfigError{Field: "log.file", Reason: err.Error(), Err: err}
	}
	cfg.Log.File = *s.Log.File

	if s.Log.MaxBytes == nil {
		return nil, missing("log.max_bytes")
	}
	if *s.Log.MaxBytes <= 0 {
		return nil, invalid("log.max_bytes", "must be greater than 0")
	}
	cfg.Log.MaxBytes = *s.Log.MaxBytes

	if s.Log.BackupCount == nil {
		return nil, missing("log.backup_count")
	}
	if *s.Log.BackupCount < 0 {
		return nil, invalid("log.backup_count", "must be >= 0")
	}
	cfg.Log.BackupCount = *s.Log.BackupCount

	if s.Log.Console != nil {
		cfg.Log.Console = *s.Log.Console
	}

	// loop timing
	var err error
	if cfg.ScanInterval, err = requiredMillis("scan_interval_ms", s.ScanIntervalMS); err != nil {
		return nil, err
	}
	if cfg.SyncDelay, err = requiredMillis("sync_delay_ms", s.SyncDelayMS); err != nil {
		return nil, err
	}
	if cfg.TriggerDelay, err = requiredMillis("trigger_delay_ms", s.TriggerDelayMS); err != nil {
		return nil, err
	}
	if s.RecoveryBackoffMS != nil {
		if cfg.RecoveryBackoff, err = requiredMillis("recovery_backoff_ms", s.RecoveryBackoffMS); err != nil {
			return nil, err
		}
	}
	if s.ShutdownTimeoutMS != nil {
		if cfg.ShutdownTimeout, err = requiredMillis("shutdown_timeout_ms", s.ShutdownTimeoutMS); err != nil {
			return nil, err
		}
	}

	// plugins
	if s.Plugins.Path == nil {
		return nil, missing("plugins.path")
	}
	if s.Plugins.Enabled == nil {
		return nil, missing("plugins.enabled")
	}
	cfg.Plugins = PluginsConfig{Path: *s.Plugins.Path, Enabled: *s.Plugins.Enabled}
	if cfg.Plugins.Enabled {
		if strings.TrimSpace(cfg.Plugins.Path) == "" {
			return nil, invalid("plugins.path", "must not be empty when plugins are enabled")
		}
		if err := checkCreatable(cfg.Plugins.Path, true); err != nil {
			return nil, &ConfigError{Field: "plugins.path", Reason: err.Error(), Err: err}
		}
	}

	// metrics
	if s.Metrics.Host == nil {
		return nil, missing("metrics.host")
	}
	if s.Metrics.Port == nil {
		return nil, missing("metrics.port")
	}
	if *s.Metrics.Port < 0 || *s.Metrics.Port > 65535 {
		return nil, invalid("metrics.port", "must be between 0 and 65535")
	}
	cfg.Metrics = MetricsConfig{Host: *s.Metrics.Host, Port: *s.Metrics.Port}

	// identity
	if s.Identity.Namespace != nil {
		if strings.TrimSpace(*s.Identity.Namespace) == "" {
			return nil, invalid("identity.namespace", "must not be empty")
		}
		cfg.Identity.Namespace = *s.Identity.Namespace
	}
	if s.Identity.Version != nil {
		cfg.Identity.Version = *s.Identity.Version
	}

	// telemetry
	if s.Telemetry.Endpoint != nil {
		cfg.Telemetry.Endpoint = strings.TrimRight(*s.Telemetry.Endpoint, "/")
	}
	cfg.Telemetry.ServiceName = cfg.Identity.Namespace
	if s.Telemetry.ServiceName != nil && *s.Telemetry.ServiceName != "" {
		cfg.Telemetry.ServiceName = *s.Telemetry.ServiceName
	}
	if s.Telemetry.Headers != nil {
		cfg.Telemetry.Headers = *s.Telemetry.Headers
	}
	if s.Telemetry.ExportLogs != nil {
		cfg.Telemetry.ExportLogs = *s.Telemetry.ExportLogs
	}

	// plugin instances
	if cfg.Sources, err = normalizeSpecs("sources", raw.Sources); err != nil {
		return nil, err
	}
	if raw.Sync != nil {
		specs, err := normalizeSpecs("sync", []model.PluginSpec{*raw.Sync})
		if err != nil {
			return nil, err
		}
		cfg.Sync = &specs[0]
	}
	if cfg.Notifiers, err = normalizeSpecs("notifiers", raw.Notifiers); err != nil {
		return nil, err
	}

	return cfg, nil
}

func normalizeSpecs(field string, specs []model.PluginSpec) ([]model.PluginSpec, error) {
	seen := make(map[string]bool, len(specs))
	result := make([]model.PluginSpec, 0, len(specs))
	for i, spec := range specs {
		spec.Type = strings.ToLower(strings.TrimSpace(spec.Type))
		if spec.Type == "" {
			return nil, invalid(fmt.Sprintf("%s[%d].type", field, i), "is required")
		}
		if spec.ID == "" {
			spec.ID = fmt.Sprintf("%s_%d", spec.Type, i)
		}
		if seen[spec.ID] {
			return nil, invalid(fmt.Sprintf("%s[%d].id", field, i), "duplicate id "+spec.ID)
		}
		seen[spec.ID] = true
		if spec.Config == nil {
			spec.Config = make(map[string]interface{})
		}
		result = append(result, spec)
	}
	return result, nil
}

func requiredMillis(field string, value *int64) (time.Duration, error) {
	if value == nil {
		return 0, missing(field)
	}
	if *value < 0 {
		return 0, invalid(field, "must be >= 0")
	}
	return time.Duration(*value) * time.Millisecond, nil
}

// checkCreatable accepts a path that exists with the expected kind, or whose
// nearest existing ancestor is a directory.
func checkCreatable(path string, wantDir bool) error {
	clean := filepath.Clean(path)
	info, err := os.Stat(clean)
	switch {
	case err == nil:
		if wantDir && !info.IsDir() {
			return fmt.Errorf("%s is not a directory", clean)
		}
		if !wantDir && info.IsDir() {
			return fmt.Errorf("%s is a directory", clean)
		}
		return nil
	case !errors.Is(err, os.ErrNotExist):
		return err
	}

	for dir := filepath.Dir(clean); ; dir = filepath.Dir(dir) {
		info, err := os.Stat(dir)
		if err == nil {
			if !info.IsDir() {
				return fmt.Errorf("cannot create %s: %s is not a directory", clean, dir)
			}
			return nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if parent := filepath.Dir(dir); parent == dir {
			return fmt.Errorf("cannot create %s: no existing parent directory", clean)
		}
	}
}

func missing(field string) *ConfigError {
	return &ConfigError{Field: field, Reason: "is required"}
}

func invalid(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}
