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

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	cfg := `{
		"logLevel": "debug",
		"tracking": { "movementThresholdMeters": 10, "movingIntervalMs": 500 },
		"db": { "host": "10.0.0.1", "port": "5433" }
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "derive.cfg.json"), []byte(cfg), 0644))

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, 10.0, viper.GetFloat64("tracking.movementThresholdMeters"))
	assert.Equal(t, 500, viper.GetInt("tracking.movingIntervalMs"))
	assert.Equal(t, "10.0.0.1", viper.GetString("db.host"))
	assert.Equal(t, "5433", viper.GetString("db.port"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "derive.cfg.json"), []byte(`{}`), 0644))

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./derivelogs", viper.GetString("logsDir"))
	assert.Equal(t, 5.0, viper.GetFloat64("tracking.movementThresholdMeters"))
	assert.Equal(t, 0.5, viper.GetFloat64("tracking.speedThresholdMps"))
	assert.Equal(t, 3000, viper.GetInt("tracking.stationaryIntervalMs"))
	assert.Equal(t, 1000, viper.GetInt("tracking.movingIntervalMs"))
	assert.Equal(t, 1000, viper.GetInt("tracking.maxBreadcrumbs"))
	assert.Equal(t, 30000, viper.GetInt("session.persistIntervalMs"))
	assert.Equal(t, 5.0, viper.GetFloat64("session.periodicToleranceMeters"))
	assert.Equal(t, 3.0, viper.GetFloat64("session.finalToleranceMeters"))
	assert.Equal(t, 15.0, viper.GetFloat64("playback.nearbyRadiusMeters"))
	assert.Equal(t, 5.0, viper.GetFloat64("playback.proximityNearMeters"))
	assert.Equal(t, 15.0, viper.GetFloat64("playback.proximityFarMeters"))
	assert.Equal(t, 0.1, viper.GetFloat64("playback.proximityFloorVolume"))
	assert.Equal(t, 5.0, viper.GetFloat64("playback.overlapRadiusMeters"))
	assert.Equal(t, "sqlite", viper.GetString("storage.type"))
	assert.Equal(t, "derive", viper.GetString("db.database"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, false, viper.GetBool("influx.enabled"))
	assert.Equal(t, "walk_sessions", viper.GetString("influx.bucket"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestGetString(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	assert.Equal(t, "testValue", GetString("testKey"))
}

func TestGetInt(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testInt", 42)
	assert.Equal(t, 42, GetInt("testInt"))
}

func TestGetFloat(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testFloat", 2.5)
	assert.Equal(t, 2.5, GetFloat("testFloat"))
}

func TestGetBool(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testBool", true)
	assert.Equal(t, true, GetBool("testBool"))
}

func TestGetDurationMs(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testMs", 1500)
	assert.Equal(t, 1500*time.Millisecond, GetDurationMs("testMs"))
}

func TestSetDefaults_WithoutFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	SetDefaults()
	assert.Equal(t, 1000, viper.GetInt("tracking.maxBreadcrumbs"))
	assert.Equal(t, 0.1, viper.GetFloat64("playback.proximityFloorVolume"))
}
