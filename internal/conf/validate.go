// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateMQTTSettings(&settings.Realtime.MQTT)...)
	ve.Errors = append(ve.Errors, validateCountingSettings(&settings.Counting)...)
	ve.Errors = append(ve.Errors, validateOutputSettings(settings)...)
	ve.Errors = append(ve.Errors, validateWebServerSettings(&settings.WebServer)...)

	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry is enabled but dsn is empty")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateMQTTSettings(s *MQTTSettings) []string {
	var errs []string

	if s.Broker == "" {
		errs = append(errs, "realtime.mqtt.broker is required")
	} else if u, err := url.Parse(s.Broker); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("invalid MQTT broker URL %q, expected scheme://host:port", s.Broker))
	}

	if strings.TrimSpace(s.TopicPrefix) == "" {
		errs = append(errs, "realtime.mqtt.topic_prefix must not be empty")
	}
	if s.QueueSize <= 0 {
		errs = append(errs, "realtime.mqtt.queue_size must be greater than 0")
	}
	if s.ReconnectInterval <= 0 {
		errs = append(errs, "realtime.mqtt.reconnect_interval must be positive")
	}
	if s.Publish.Enabled && strings.TrimSpace(s.Publish.Prefix) == "" {
		errs = append(errs, "realtime.mqtt.publish.prefix must not be empty when publishing is enabled")
	}
	if s.Publish.QoS > 2 {
		errs = append(errs, "realtime.mqtt.publish.qos must be 0, 1 or 2")
	}
	if s.Publish.HomeAssistant.Enabled {
		if !s.Publish.Enabled {
			errs = append(errs, "realtime.mqtt.publish.homeassistant requires realtime.mqtt.publish.enabled")
		}
		if strings.TrimSpace(s.Publish.HomeAssistant.DiscoveryPrefix) == "" {
			errs = append(errs, "realtime.mqtt.publish.homeassistant.discovery_prefix must not be empty")
		}
	}

	return errs
}

func validateCountingSettings(s *CountingSettings) []string {
	var errs []string

	if s.DebounceWindow < 0 {
		errs = append(errs, "counting.debounce_window must not be negative")
	}
	if s.InactivityTimeout <= 0 {
		errs = append(errs, "counting.inactivity_timeout must be positive")
	}
	if s.WarningFraction <= 0 || s.WarningFraction > 1 {
		errs = append(errs, "counting.warning_fraction must be in (0, 1]")
	}
	if s.ConfidenceThreshold < 0 || s.ConfidenceThreshold > 1 {
		errs = append(errs, "counting.confidence_threshold must be between 0 and 1")
	}
	for _, kind := range s.ActiveObjects {
		switch strings.ToLower(kind) {
		case "person", "vehicle":
		default:
			errs = append(errs, fmt.Sprintf("counting.active_objects: unknown object kind %q", kind))
		}
	}
	if s.RetentionDays < 0 {
		errs = append(errs, "counting.retention_days must not be negative")
	}
	if s.MeasurementInterval < 0 || s.CleanupInterval < 0 {
		errs = append(errs, "counting intervals must not be negative")
	}

	return errs
}

func validateOutputSettings(settings *Settings) []string {
	var errs []string

	sqlite := settings.Output.SQLite
	mysql := settings.Output.MySQL

	switch {
	case sqlite.Enabled && mysql.Enabled:
		errs = append(errs, "only one of output.sqlite and output.mysql can be enabled")
	case !sqlite.Enabled && !mysql.Enabled:
		errs = append(errs, "one of output.sqlite or output.mysql must be enabled")
	}

	if sqlite.Enabled && sqlite.Path == "" {
		errs = append(errs, "output.sqlite.path is required")
	}
	if mysql.Enabled {
		if mysql.Host == "" || mysql.Database == "" {
			errs = append(errs, "output.mysql.host and output.mysql.database are required")
		}
		if _, err := strconv.Atoi(mysql.Port); err != nil {
			errs = append(errs, fmt.Sprintf("invalid output.mysql.port %q", mysql.Port))
		}
	}

	return errs
}

func validateWebServerSettings(s *WebServerSettings) []string {
	if !s.Enabled {
		return nil
	}
	port, err := strconv.Atoi(s.Port)
	if err != nil || port < 1 || port > 65535 {
		return []string{fmt.Sprintf("invalid webserver.port %q, must be between 1 and 65535", s.Port)}
	}
	return nil
}
