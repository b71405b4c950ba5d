// Package config loads the vSPC daemon's Config (§6): defaults, then an
// optional YAML file, then environment variables, with an optional
// per-service env prefix taking precedence over the plain variable name.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoaderConfig configures how configuration is loaded.
type LoaderConfig struct {
	ConfigFile  string
	ServiceName string
}

// Loader loads a Config from defaults, an optional YAML file, and the
// environment.
type Loader struct {
	config LoaderConfig
}

// NewLoader creates a new configuration loader.
func NewLoader(cfg LoaderConfig) *Loader {
	return &Loader{config: cfg}
}

// Load populates cfg: defaults, then the YAML file if present, then
// environment overrides.
func (l *Loader) Load(cfg *Config) error {
	setDefaults(cfg)

	if l.config.ConfigFile != "" {
		if err := loadYAML(cfg, l.config.ConfigFile); err != nil {
			return fmt.Errorf("config: load file: %w", err)
		}
	}

	if err := l.applyEnv(cfg); err != nil {
		return fmt.Errorf("config: load environment: %w", err)
	}
	return nil
}

// setDefaults fills in Config's zero-value fields (§6).
func setDefaults(cfg *Config) {
	cfg.Listen.VMAddr = "0.0.0.0:13370"
	cfg.Listen.AdminAddr = "127.0.0.1:13371"
	cfg.Listen.DebugAddr = "127.0.0.1:13372"
	cfg.VMwareExtension.ServiceURI = "telnet://\x00"
	cfg.DiskBackend.RootDir = "var/run/vspc"
	cfg.Stats.Interval = "60s"
	cfg.WebConsole.Enabled = false
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.Log.Debug = false
}

func loadYAML(cfg *Config, filename string) error {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return nil // optional
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read %s: %w", filename, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", filename, err)
	}
	return nil
}

// applyEnv overrides each Config field from its environment variable, named
// explicitly below rather than derived from struct tags, so the mapping is
// the single place that has to change when a field is added or renamed.
func (l *Loader) applyEnv(cfg *Config) error {
	cfg.Listen.VMAddr = l.stringEnv("VM_ADDR", cfg.Listen.VMAddr)
	cfg.Listen.AdminAddr = l.stringEnv("ADMIN_ADDR", cfg.Listen.AdminAddr)
	cfg.Listen.DebugAddr = l.stringEnv("DEBUG_ADDR", cfg.Listen.DebugAddr)

	cfg.VMwareExtension.ServiceURI = l.stringEnv("SERVICE_URI", cfg.VMwareExtension.ServiceURI)

	cfg.DiskBackend.RootDir = l.stringEnv("DISK_ROOT_DIR", cfg.DiskBackend.RootDir)

	cfg.Stats.Interval = l.stringEnv("STATS_INTERVAL", cfg.Stats.Interval)

	webConsoleEnabled, err := l.boolEnv("WEBCONSOLE_ENABLED", cfg.WebConsole.Enabled)
	if err != nil {
		return err
	}
	cfg.WebConsole.Enabled = webConsoleEnabled

	cfg.TLS.CertFile = l.stringEnv("TLS_CERT_FILE", cfg.TLS.CertFile)
	cfg.TLS.KeyFile = l.stringEnv("TLS_KEY_FILE", cfg.TLS.KeyFile)

	cfg.Log.Level = l.stringEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = l.stringEnv("LOG_FORMAT", cfg.Log.Format)

	debug, err := l.boolEnv("DEBUG", cfg.Log.Debug)
	if err != nil {
		return err
	}
	cfg.Log.Debug = debug

	return nil
}

// lookupEnv checks the service-specific override (SERVICENAME_NAME) before
// the plain variable name.
func (l *Loader) lookupEnv(name string) (string, bool) {
	if l.config.ServiceName != "" {
		if v, ok := os.LookupEnv(strings.ToUpper(l.config.ServiceName) + "_" + name); ok {
			return v, true
		}
	}
	return os.LookupEnv(name)
}

func (l *Loader) stringEnv(name, fallback string) string {
	if v, ok := l.lookupEnv(name); ok {
		return v
	}
	return fallback
}

func (l *Loader) boolEnv(name string, fallback bool) (bool, error) {
	v, ok := l.lookupEnv(name)
	if !ok {
		return fallback, nil
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s: invalid boolean value: %s", name, v)
	}
}

// FindFile searches standard locations for serviceName's config file.
func FindFile(serviceName string) string {
	configName := serviceName + ".yaml"
	searchPaths := []string{
		configName,
		filepath.Join("config", configName),
		filepath.Join("configs", configName),
		filepath.Join("/etc", serviceName, configName),
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(homeDir, "."+serviceName, configName))
	}
	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
