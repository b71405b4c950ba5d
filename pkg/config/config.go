package config

import (
	"strings"

	"github.com/rs/zerolog"
)

// Config is the vSPC daemon's full configuration schema (§6).
type Config struct {
	Listen          ListenConfig          `yaml:"listen"`
	VMwareExtension VMwareExtensionConfig `yaml:"vmware_extension"`
	DiskBackend     DiskBackendConfig     `yaml:"disk_backend"`
	Stats           StatsConfig           `yaml:"stats"`
	WebConsole      WebConsoleConfig      `yaml:"webconsole"`
	TLS             TLSConfig             `yaml:"tls"`
	Log             LogConfig             `yaml:"log"`
}

type ListenConfig struct {
	VMAddr    string `yaml:"vm_addr"`
	AdminAddr string `yaml:"admin_addr"`
	DebugAddr string `yaml:"debug_addr"`
}

type VMwareExtensionConfig struct {
	ServiceURI string `yaml:"service_uri"`
}

type DiskBackendConfig struct {
	RootDir string `yaml:"root_dir"`
}

type StatsConfig struct {
	Interval string `yaml:"interval"`
}

type WebConsoleConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TLSConfig is used only when AUTHENTICATION's SSL trigger fires and no
// in-process TLS context was injected (§4.6).
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LogConfig configures zerolog, mirroring the teacher's core/config
// LogConfig.ConfigureZerolog exactly.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Debug  bool   `yaml:"debug"`
}

// ConfigureZerolog sets the global zerolog level from the configured level
// or debug flag.
func (c *LogConfig) ConfigureZerolog() {
	level := zerolog.InfoLevel
	if c.Debug {
		level = zerolog.DebugLevel
	} else {
		switch strings.ToLower(c.Level) {
		case "trace":
			level = zerolog.TraceLevel
		case "debug":
			level = zerolog.DebugLevel
		case "info":
			level = zerolog.InfoLevel
		case "warn", "warning":
			level = zerolog.WarnLevel
		case "error":
			level = zerolog.ErrorLevel
		case "fatal":
			level = zerolog.FatalLevel
		case "panic":
			level = zerolog.PanicLevel
		}
	}
	zerolog.SetGlobalLevel(level)
}

// Load builds a Config for serviceName: defaults, then serviceName.yaml if
// found via FindFile, then environment overrides.
func Load(serviceName string) (*Config, error) {
	cfg := &Config{}
	loader := NewLoader(LoaderConfig{
		ConfigFile:  FindFile(serviceName),
		ServiceName: serviceName,
	})
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
