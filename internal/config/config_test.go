package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(t.TempDir()))

	assert.Equal(t, "info", LogLevel())
	assert.Equal(t, ":8780", ListenAddr())
	assert.Equal(t, 500*time.Millisecond, FireInterval())
	assert.Equal(t, 16*time.Millisecond, FlightStep())
	assert.Equal(t, 100.0, CastleMaxHP())
	assert.Equal(t, 1000.0, LayoutWidth())
	assert.Equal(t, 250.0, ZoneDepth())
	assert.Equal(t, 5, CellCount())
}

func TestLoadOverridesFromFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	contents := []byte(`{
		"logLevel": "debug",
		"battle": {"fireIntervalMs": 250, "castleMaxHp": 150},
		"layout": {"cells": 3}
	}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lane-siege.cfg.json"), contents, 0o644))

	require.NoError(t, Load(dir))

	assert.Equal(t, "debug", LogLevel())
	assert.Equal(t, 250*time.Millisecond, FireInterval())
	assert.Equal(t, 150.0, CastleMaxHP())
	assert.Equal(t, 3, CellCount())
	// Keys the file omits keep their defaults.
	assert.Equal(t, ":8780", ListenAddr())
	assert.Equal(t, 250.0, ZoneDepth())
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lane-siege.cfg.json"), []byte("{not json"), 0o644))

	assert.Error(t, Load(dir))
}
