package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8050, cfg.Server.Port)
	assert.False(t, cfg.Drive.Enabled())
	assert.True(t, cfg.Drive.BootSync)
}

func TestLoad_BadPortFails(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_DriveConfig(t *testing.T) {
	t.Setenv("CPOR_DRIVE_FILE_ID", "abc123")
	t.Setenv("CPOR_DRIVE_BOOT_SYNC", "0")
	t.Setenv("CPOR_DRIVE_SYNC_TOKEN", "segredo")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Drive.Enabled())
	assert.False(t, cfg.Drive.BootSync)
	assert.Equal(t, "segredo", cfg.Drive.SyncToken)
}
