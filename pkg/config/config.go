// Package config loads process configuration for the analytics portal from
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	// Load environment variables from .env files when present.
	_ "github.com/joho/godotenv/autoload"
)

// Config holds all application configuration.
type Config struct {
	Server ServerConfig
	Drive  DriveConfig
}

// ServerConfig controls the HTTP bind address.
type ServerConfig struct {
	Port int
}

// DriveConfig controls the optional remote-workbook refresh integration:
// CPOR_DRIVE_FILE_ID, CPOR_DRIVE_BOOT_SYNC, CPOR_DRIVE_SYNC_TOKEN.
type DriveConfig struct {
	// FileID identifies the workbook on the remote file provider. Remote
	// refresh is disabled entirely when empty.
	FileID string
	// BootSync runs a refresh once at process start when true.
	BootSync bool
	// SyncToken, when set, must match the X-Portal-Token header byte-for-byte
	// on manual refresh requests.
	SyncToken string
}

// Enabled reports whether remote refresh is configured at all.
func (d DriveConfig) Enabled() bool {
	return d.FileID != ""
}

// Load reads configuration from environment variables. It never fails on
// missing optional values; a bad PORT is the only boot-time configuration
// error.
func Load() (*Config, error) {
	port, err := getEnvAsIntErr("PORT", 8050)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: port,
		},
		Drive: DriveConfig{
			FileID: getEnv("CPOR_DRIVE_FILE_ID", ""),
			// CPOR_DRIVE_BOOT_SYNC disables sync on startup when set to a
			// falsy value ("0", "false", ...); default is enabled.
			BootSync:  getEnvAsBool("CPOR_DRIVE_BOOT_SYNC", true),
			SyncToken: getEnv("CPOR_DRIVE_SYNC_TOKEN", ""),
		},
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntErr(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, err
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
