package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Load reads configuration from an optional JSON file in configDir and sets
// default values. A missing file keeps the defaults; a malformed one is an
// error.
func Load(configDir string) error {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("listenAddr", ":8780")

	viper.SetDefault("battle.fireIntervalMs", 500)
	viper.SetDefault("battle.flightStepMs", 16)
	viper.SetDefault("battle.castleMaxHp", 100)

	viper.SetDefault("layout.width", 1000.0)
	viper.SetDefault("layout.zoneDepth", 250.0)
	viper.SetDefault("layout.cells", 5)

	viper.SetConfigName("lane-siege.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// LogLevel returns the configured zerolog level name.
func LogLevel() string {
	return viper.GetString("logLevel")
}

// ListenAddr returns the HTTP listen address for the event feed.
func ListenAddr() string {
	return viper.GetString("listenAddr")
}

// FireInterval returns the attack queue pacing interval.
func FireInterval() time.Duration {
	return time.Duration(viper.GetInt("battle.fireIntervalMs")) * time.Millisecond
}

// FlightStep returns the projectile movement cadence.
func FlightStep() time.Duration {
	return time.Duration(viper.GetInt("battle.flightStepMs")) * time.Millisecond
}

// CastleMaxHP returns the HP castles start battles with.
func CastleMaxHP() float64 {
	return viper.GetFloat64("battle.castleMaxHp")
}

// LayoutWidth returns the lane length in world units.
func LayoutWidth() float64 {
	return viper.GetFloat64("layout.width")
}

// ZoneDepth returns the defense zone depth per side.
func ZoneDepth() float64 {
	return viper.GetFloat64("layout.zoneDepth")
}

// CellCount returns the defense cells per side and lane.
func CellCount() int {
	return viper.GetInt("layout.cells")
}
