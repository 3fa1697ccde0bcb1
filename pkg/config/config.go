// Package config loads the traffic overlay configuration.
//
// Configuration lives in a JSON file, or YAML when the file name ends in
// .yaml or .yml. Missing files fall back to DefaultConfig, missing keys keep
// their defaults, and TRAFFIC_OVERLAY_* environment variables override
// selected values so secrets stay out of config files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/unklstewy/traffic-overlay/pkg/coordinates"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TRAFFIC_OVERLAY_"

// Source types.
const (
	SourceAirplanesLive = "airplanes.live"
	SourceSimulator     = "simulator"
)

// Config represents the complete application configuration.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	ADSB     ADSBConfig     `json:"adsb" yaml:"adsb"`
	Ownship  OwnshipConfig  `json:"ownship" yaml:"ownship"`
	Overlay  OverlayConfig  `json:"overlay" yaml:"overlay"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Port is the HTTP server port (default: 8080)
	Port string `json:"port" yaml:"port" validate:"required,numeric"`

	// Host is the server bind address (default: "0.0.0.0")
	Host string `json:"host" yaml:"host"`

	// AllowedOrigins lists CORS origins; empty allows any
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
}

// DatabaseConfig contains the event log database connection settings.
type DatabaseConfig struct {
	// Enabled turns on the PostgreSQL event log
	Enabled bool `json:"enabled" yaml:"enabled"`

	Host string `json:"host" yaml:"host" validate:"required_if=Enabled true"`
	Port int    `json:"port" yaml:"port" validate:"gte=0,lte=65535"`

	// Database is the database name
	Database string `json:"database" yaml:"database" validate:"required_if=Enabled true"`

	Username string `json:"username" yaml:"username"`

	// Password for database authentication (should be loaded from environment)
	Password string `json:"password" yaml:"password"`

	// SSLMode for PostgreSQL connections (disable, require, verify-ca, verify-full)
	SSLMode string `json:"ssl_mode" yaml:"ssl_mode" validate:"omitempty,oneof=disable require verify-ca verify-full"`

	MaxOpenConns int `json:"max_open_conns" yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns int `json:"max_idle_conns" yaml:"max_idle_conns" validate:"gte=0"`
}

// ADSBConfig contains ADS-B data source configuration.
type ADSBConfig struct {
	// Sources is a list of configured ADS-B data sources; the first enabled
	// one is used
	Sources []ADSBSource `json:"sources" yaml:"sources" validate:"dive"`

	// SearchRadiusNM is how far around the ownship traffic is fetched
	SearchRadiusNM float64 `json:"search_radius_nm" yaml:"search_radius_nm" validate:"gt=0,lte=250"`

	// UpdateIntervalSeconds is how often to poll for traffic
	UpdateIntervalSeconds int `json:"update_interval_seconds" yaml:"update_interval_seconds" validate:"gte=1"`

	// Simulate replaces every source with the built-in simulator
	Simulate bool `json:"simulate" yaml:"simulate"`

	// SimulatedTargets is the number of simulated aircraft
	SimulatedTargets int `json:"simulated_targets" yaml:"simulated_targets" validate:"gte=0,lte=64"`
}

// ADSBSource represents a single ADS-B data source configuration.
type ADSBSource struct {
	// Name is a friendly name for this source
	Name string `json:"name" yaml:"name" validate:"required"`

	// Type is the source type: "airplanes.live" or "simulator"
	Type string `json:"type" yaml:"type" validate:"oneof=airplanes.live simulator"`

	// Enabled determines if this source should be used
	Enabled bool `json:"enabled" yaml:"enabled"`

	// BaseURL is the API base URL for online sources
	BaseURL string `json:"base_url" yaml:"base_url" validate:"omitempty,url"`

	// RateLimitSeconds is the minimum time between API calls in seconds
	RateLimitSeconds float64 `json:"rate_limit_seconds" yaml:"rate_limit_seconds" validate:"gte=0"`
}

// RateLimit returns the minimum time between API calls.
func (s ADSBSource) RateLimit() time.Duration {
	return time.Duration(s.RateLimitSeconds * float64(time.Second))
}

// OwnshipConfig is the position traffic is measured from.
type OwnshipConfig struct {
	Name string `json:"name" yaml:"name"`

	// Latitude in decimal degrees (-90 to +90)
	Latitude float64 `json:"latitude" yaml:"latitude" validate:"gte=-90,lte=90"`

	// Longitude in decimal degrees (-180 to +180)
	Longitude float64 `json:"longitude" yaml:"longitude" validate:"gte=-180,lte=180"`

	// AltitudeFt in feet MSL
	AltitudeFt float64 `json:"altitude_ft" yaml:"altitude_ft"`
}

// Position returns the ownship as a geographic position.
func (o OwnshipConfig) Position() coordinates.Geographic {
	return coordinates.Geographic{Latitude: o.Latitude, Longitude: o.Longitude, AltitudeFt: o.AltitudeFt}
}

// OverlayConfig tunes marker animation and alerting.
type OverlayConfig struct {
	// AnimationMillis is how long a marker glides to a new fix
	AnimationMillis int `json:"animation_ms" yaml:"animation_ms" validate:"gt=0"`

	// FrameMillis is the animation tick period
	FrameMillis int `json:"frame_ms" yaml:"frame_ms" validate:"gt=0"`

	// AnnouncementText is spoken or shown when alert traffic appears
	AnnouncementText string `json:"announcement_text" yaml:"announcement_text" validate:"required"`

	// AlertRadiusNM is the horizontal alert range
	AlertRadiusNM float64 `json:"alert_radius_nm" yaml:"alert_radius_nm" validate:"gt=0"`

	// AlertAltitudeBandFt is the vertical alert range above and below the ownship
	AlertAltitudeBandFt float64 `json:"alert_altitude_band_ft" yaml:"alert_altitude_band_ft" validate:"gte=0"`
}

// AnimationDuration returns AnimationMillis as a duration.
func (o OverlayConfig) AnimationDuration() time.Duration {
	return time.Duration(o.AnimationMillis) * time.Millisecond
}

// FrameInterval returns FrameMillis as a duration.
func (o OverlayConfig) FrameInterval() time.Duration {
	return time.Duration(o.FrameMillis) * time.Millisecond
}

// LoggingConfig configures zerolog and log file rotation.
type LoggingConfig struct {
	Level string `json:"level" yaml:"level" validate:"oneof=trace debug info warn error"`

	// File is the log file; empty logs to stderr
	File string `json:"file" yaml:"file"`

	MaxSizeMB  int `json:"max_size_mb" yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int `json:"max_backups" yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int `json:"max_age_days" yaml:"max_age_days" validate:"gte=0"`
}

// Load reads configuration from a JSON or YAML file.
// If the file doesn't exist, returns a default configuration.
// Keys missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	case isYAML(path):
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvironmentOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against its field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Save writes the configuration to a JSON or YAML file, chosen by extension.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Host: "0.0.0.0",
		},
		Database: DatabaseConfig{
			Enabled:      false,
			Host:         "localhost",
			Port:         5432,
			Database:     "traffic",
			Username:     "traffic",
			SSLMode:      "disable",
			MaxOpenConns: 10,
			MaxIdleConns: 2,
		},
		ADSB: ADSBConfig{
			Sources: []ADSBSource{
				{
					Name:             "airplanes.live",
					Type:             SourceAirplanesLive,
					Enabled:          true,
					BaseURL:          "https://api.airplanes.live/v2",
					RateLimitSeconds: 1.0,
				},
			},
			SearchRadiusNM:        25.0,
			UpdateIntervalSeconds: 5,
			SimulatedTargets:      8,
		},
		Ownship: OwnshipConfig{
			Name: "Ownship",
		},
		Overlay: OverlayConfig{
			AnimationMillis:     1000,
			FrameMillis:         33,
			AnnouncementText:    "Traffic",
			AlertRadiusNM:       3.0,
			AlertAltitudeBandFt: 1000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// ActiveSource returns the first enabled ADS-B source. The simulator is
// returned when Simulate is set or no source is enabled.
func (cfg *ADSBConfig) ActiveSource() ADSBSource {
	if !cfg.Simulate {
		for _, s := range cfg.Sources {
			if s.Enabled {
				return s
			}
		}
	}
	return ADSBSource{Name: "simulator", Type: SourceSimulator, Enabled: true}
}

// UpdateInterval returns UpdateIntervalSeconds as a duration.
func (cfg *ADSBConfig) UpdateInterval() time.Duration {
	return time.Duration(cfg.UpdateIntervalSeconds) * time.Second
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
func (c *Config) applyEnvironmentOverrides() {
	if port := os.Getenv(EnvPrefix + "PORT"); port != "" {
		c.Server.Port = port
	}
	if host := os.Getenv(EnvPrefix + "DB_HOST"); host != "" {
		c.Database.Host = host
	}
	if dbPassword := os.Getenv(EnvPrefix + "DB_PASSWORD"); dbPassword != "" {
		c.Database.Password = dbPassword
	}
	if level := os.Getenv(EnvPrefix + "LOG_LEVEL"); level != "" {
		c.Logging.Level = strings.ToLower(level)
	}
	if sim := os.Getenv(EnvPrefix + "SIMULATE"); sim != "" {
		if v, err := strconv.ParseBool(sim); err == nil {
			c.ADSB.Simulate = v
		}
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
