package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := &Config{}
	loader := NewLoader(LoaderConfig{ServiceName: "vspcd"})
	require.NoError(t, loader.Load(cfg))

	require.Equal(t, "0.0.0.0:13370", cfg.Listen.VMAddr)
	require.Equal(t, "127.0.0.1:13371", cfg.Listen.AdminAddr)
	require.Equal(t, "127.0.0.1:13372", cfg.Listen.DebugAddr)
	require.Equal(t, "var/run/vspc", cfg.DiskBackend.RootDir)
	require.False(t, cfg.WebConsole.Enabled)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("VM_ADDR", "0.0.0.0:9999")
	t.Setenv("WEBCONSOLE_ENABLED", "true")

	cfg := &Config{}
	loader := NewLoader(LoaderConfig{ServiceName: "vspcd"})
	require.NoError(t, loader.Load(cfg))

	require.Equal(t, "0.0.0.0:9999", cfg.Listen.VMAddr)
	require.True(t, cfg.WebConsole.Enabled)
}

func TestLoad_ServiceSpecificEnvWins(t *testing.T) {
	t.Setenv("VM_ADDR", "0.0.0.0:1111")
	t.Setenv("VSPCD_VM_ADDR", "0.0.0.0:2222")

	cfg := &Config{}
	loader := NewLoader(LoaderConfig{ServiceName: "vspcd"})
	require.NoError(t, loader.Load(cfg))

	require.Equal(t, "0.0.0.0:2222", cfg.Listen.VMAddr)
}

func TestLoad_FromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/vspcd.yaml"
	require.NoError(t, os.WriteFile(path, []byte("listen:\n  vm_addr: 0.0.0.0:7000\n"), 0o644))

	cfg := &Config{}
	loader := NewLoader(LoaderConfig{ConfigFile: path, ServiceName: "vspcd"})
	require.NoError(t, loader.Load(cfg))

	require.Equal(t, "0.0.0.0:7000", cfg.Listen.VMAddr)
}
