// config.go: configuration settings and loading for occupancy-go
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"github.com/tphakala/occupancy-go/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// MQTTPublishSettings controls the outbound totals feed.
type MQTTPublishSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"` // true to publish per-area totals after each transition
	Prefix  string `mapstructure:"prefix" yaml:"prefix"`   // topic prefix, e.g. occupancy/areas
	Delta   bool   `mapstructure:"delta" yaml:"delta"`     // also publish {"in":1} / {"out":1} deltas
	Retain  bool   `mapstructure:"retain" yaml:"retain"`   // retain flag on totals messages
	QoS     byte   `mapstructure:"qos" yaml:"qos"`         // 0, 1 or 2

	HomeAssistant HomeAssistantSettings `mapstructure:"homeassistant" yaml:"homeassistant"`
}

// HomeAssistantSettings controls MQTT auto-discovery of area sensors.
type HomeAssistantSettings struct {
	Enabled         bool   `mapstructure:"enabled" yaml:"enabled"`                   // publish discovery configs on connect
	DiscoveryPrefix string `mapstructure:"discovery_prefix" yaml:"discovery_prefix"` // usually homeassistant
	DeviceName      string `mapstructure:"device_name" yaml:"device_name"`           // base name of the HA device
}

// MQTTSettings contains settings for the NVR event feed.
type MQTTSettings struct {
	Broker            string              `mapstructure:"broker" yaml:"broker"`                         // tcp://host:port
	Username          string              `mapstructure:"username" yaml:"username"`                     // MQTT username
	Password          string              `mapstructure:"password" yaml:"password"`                     // MQTT password
	TopicPrefix       string              `mapstructure:"topic_prefix" yaml:"topic_prefix"`             // events are read from <prefix>/events
	QueueSize         int                 `mapstructure:"queue_size" yaml:"queue_size"`                 // bounded queue between callback and engine
	ReconnectInterval time.Duration       `mapstructure:"reconnect_interval" yaml:"reconnect_interval"` // fixed retry interval after disconnect
	ConnectTimeout    time.Duration       `mapstructure:"connect_timeout" yaml:"connect_timeout"`       // timeout for a single connect attempt
	Publish           MQTTPublishSettings `mapstructure:"publish" yaml:"publish"`
}

// RealtimeSettings contains all settings related to realtime processing.
type RealtimeSettings struct {
	MQTT MQTTSettings `mapstructure:"mqtt" yaml:"mqtt"`
}

// CountingSettings tunes the transition engine.
type CountingSettings struct {
	DebounceWindow      time.Duration `mapstructure:"debounce_window" yaml:"debounce_window"`           // repeated transitions inside this window are dropped
	InactivityTimeout   time.Duration `mapstructure:"inactivity_timeout" yaml:"inactivity_timeout"`     // tracked objects unseen this long are evicted
	WarningFraction     float64       `mapstructure:"warning_fraction" yaml:"warning_fraction"`         // fraction of capacity that raises a warning
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold" yaml:"confidence_threshold"` // detections below this score are ignored, 0 disables
	ActiveObjects       []string      `mapstructure:"active_objects" yaml:"active_objects"`             // object kinds to count: person, vehicle
	AllowNegative       bool          `mapstructure:"allow_negative" yaml:"allow_negative"`             // true disables the zero clamp on exit
	RetentionDays       int           `mapstructure:"retention_days" yaml:"retention_days"`             // events and measurements older than this are purged
	MeasurementInterval time.Duration `mapstructure:"measurement_interval" yaml:"measurement_interval"` // occupancy snapshot cadence, 0 disables
	CleanupInterval     time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`         // retention purge cadence, 0 disables
	SeedDefaults        bool          `mapstructure:"seed_defaults" yaml:"seed_defaults"`               // create the default areas on an empty database
}

// SQLiteSettings configures the embedded database.
type SQLiteSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// MySQLSettings configures an external MySQL database.
type MySQLSettings struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
}

// WebServerSettings configures the HTTP query API.
type WebServerSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    string `mapstructure:"port" yaml:"port"`
	Debug   bool   `mapstructure:"debug" yaml:"debug"`
}

// SentrySettings configures optional error telemetry.
type SentrySettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
}

// Settings is the root configuration object.
type Settings struct {
	Debug bool `mapstructure:"debug" yaml:"debug"`

	// Runtime values, not stored in config file
	Version   string `mapstructure:"-" yaml:"-"`
	BuildDate string `mapstructure:"-" yaml:"-"`

	Main struct {
		Name string `mapstructure:"name" yaml:"name"` // node name, used as the MQTT client id prefix
	} `mapstructure:"main" yaml:"main"`

	Logging logger.LoggingConfig `mapstructure:"logging" yaml:"logging"`

	Realtime RealtimeSettings `mapstructure:"realtime" yaml:"realtime"`

	Counting CountingSettings `mapstructure:"counting" yaml:"counting"`

	Output struct {
		SQLite SQLiteSettings `mapstructure:"sqlite" yaml:"sqlite"`
		MySQL  MySQLSettings  `mapstructure:"mysql" yaml:"mysql"`
	} `mapstructure:"output" yaml:"output"`

	WebServer WebServerSettings `mapstructure:"webserver" yaml:"webserver"`

	Sentry SentrySettings `mapstructure:"sentry" yaml:"sentry"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration from the default search paths,
// creating a default config file when none exists.
func Load() (*Settings, error) {
	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}
	return finishLoad()
}

// LoadFrom reads the configuration from an explicit file path.
func LoadFrom(path string) (*Settings, error) {
	setDefaultConfig()
	if err := bindEnvVars(); err != nil {
		return nil, err
	}

	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return finishLoad()
}

func finishLoad() (*Settings, error) {
	settings := &Settings{}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()

	return settings, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	if err := bindEnvVars(); err != nil {
		return err
	}

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded config.yaml to dir and reads it back
func createDefaultConfig(dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded config: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// GetSettings returns the most recently loaded settings, or nil.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}
