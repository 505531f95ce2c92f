package config

import (
	"os"
	"path/filepath"
	"testing"

	cfg "github.com/cometbft/cometbft/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "./node-config/node0", c.CmtHome)
	assert.Equal(t, "5000", c.HTTPPort)
	assert.True(t, c.ProjectionEnabled)
	assert.False(t, c.LogAllTxs)
	assert.Equal(t, filepath.Join("node-config", "node0", "badger"), c.BadgerPath())
}

func TestLoadFlagsAndEnv(t *testing.T) {
	t.Setenv("REGISTRY_HTTP_PORT", "7000")
	t.Setenv("REGISTRY_PROJECTION_ENABLED", "false")

	c, err := Load([]string{"--cmt-home", "/var/lib/registry", "--log-all-txs"})
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/registry", c.CmtHome)
	assert.Equal(t, "7000", c.HTTPPort)
	assert.False(t, c.ProjectionEnabled)
	assert.True(t, c.LogAllTxs)

	c, err = Load([]string{"--http-port", "7100"})
	require.NoError(t, err)
	assert.Equal(t, "7100", c.HTTPPort)
}

func TestValidate(t *testing.T) {
	valid := NodeConfig{CmtHome: "home", HTTPPort: "5000", PostgresDSN: "postgres://x", ProjectionEnabled: true}
	assert.NoError(t, valid.Validate())

	noHome := valid
	noHome.CmtHome = ""
	assert.Error(t, noHome.Validate())

	badPort := valid
	badPort.HTTPPort = "http"
	assert.Error(t, badPort.Validate())

	noDSN := valid
	noDSN.PostgresDSN = ""
	assert.Error(t, noDSN.Validate())
	noDSN.ProjectionEnabled = false
	assert.NoError(t, noDSN.Validate())

	_, err := Load([]string{"--unknown-flag"})
	assert.Error(t, err)
}

func TestLoadCometConfig(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, "config"), 0o755))

	written := cfg.DefaultConfig()
	written.Moniker = "registry-node-3"
	cfg.WriteConfigFile(filepath.Join(home, "config", "config.toml"), written)

	loaded, err := LoadCometConfig(home)
	require.NoError(t, err)
	assert.Equal(t, "registry-node-3", loaded.Moniker)
	assert.Equal(t, home, loaded.RootDir)

	_, err = LoadCometConfig(t.TempDir())
	assert.Error(t, err)
}
