package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName("derive.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// SetDefaults registers the default value of every tunable. Called by Load,
// and directly by tests and embedders that run without a config file.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./derivelogs")

	viper.SetDefault("tracking.movementThresholdMeters", 5.0)
	viper.SetDefault("tracking.speedThresholdMps", 0.5)
	viper.SetDefault("tracking.stationaryIntervalMs", 3000)
	viper.SetDefault("tracking.movingIntervalMs", 1000)
	viper.SetDefault("tracking.maxBreadcrumbs", 1000)

	viper.SetDefault("session.persistIntervalMs", 30000)
	viper.SetDefault("session.periodicToleranceMeters", 5.0)
	viper.SetDefault("session.finalToleranceMeters", 3.0)

	viper.SetDefault("playback.nearbyRadiusMeters", 15.0)
	viper.SetDefault("playback.proximityNearMeters", 5.0)
	viper.SetDefault("playback.proximityFarMeters", 15.0)
	viper.SetDefault("playback.proximityFloorVolume", 0.1)
	viper.SetDefault("playback.overlapRadiusMeters", 5.0)
	viper.SetDefault("playback.concatGapMs", 200)
	viper.SetDefault("playback.defaultVolume", 0.7)

	viper.SetDefault("export.audioFetchTimeoutMs", 10000)

	viper.SetDefault("storage.type", "sqlite")
	viper.SetDefault("storage.sqlitePath", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "derive")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "derive-metrics")
	viper.SetDefault("influx.bucket", "walk_sessions")
	viper.SetDefault("influx.backupPath", "./derivelogs/influx_backup.gz")
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetFloat returns a float config value.
func GetFloat(key string) float64 {
	return viper.GetFloat64(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDurationMs reads a millisecond-valued key as a time.Duration.
func GetDurationMs(key string) time.Duration {
	return time.Duration(viper.GetInt(key)) * time.Millisecond
}
