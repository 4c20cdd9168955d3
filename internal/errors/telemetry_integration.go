// Package errors - telemetry integration (optional)
package errors

import (
	"fmt"
	"regexp"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryReporter implements TelemetryReporter for Sentry
type SentryReporter struct {
	enabled bool
}

// NewSentryReporter creates a new Sentry telemetry reporter
func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{enabled: enabled}
}

// InitSentry initializes the Sentry SDK and installs a SentryReporter.
// An empty DSN leaves reporting disabled.
func InitSentry(dsn, release string) error {
	if dsn == "" {
		return nil
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          release,
		AttachStacktrace: true,
		SendDefaultPII:   false,
	}); err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}

	SetTelemetryReporter(NewSentryReporter(true))
	return nil
}

// FlushSentry waits up to timeout for queued events to be delivered
func FlushSentry(timeout time.Duration) {
	if hasActiveReporting.Load() {
		sentry.Flush(timeout)
	}
}

// IsEnabled returns whether Sentry telemetry is enabled
func (sr *SentryReporter) IsEnabled() bool {
	return sr.enabled
}

// ReportError reports an enhanced error to Sentry with credentials scrubbed
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || ee.IsReported() {
		return
	}
	// low priority errors are per-message noise such as malformed payloads
	if ee.Priority == PriorityLow {
		return
	}

	message := scrubMessage(fmt.Sprintf("[%s] %s", ee.Category, ee.Err.Error()))

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.GetComponent())
		scope.SetTag("category", string(ee.Category))
		if ee.Priority != "" {
			scope.SetTag("priority", ee.Priority)
		}

		for key, value := range ee.GetContext() {
			if s, ok := value.(string); ok {
				value = scrubMessage(s)
			}
			scope.SetContext(key, map[string]any{"value": value})
		}

		level := getErrorLevel(ee.Category)
		scope.SetLevel(level)
		scope.SetFingerprint([]string{ee.GetComponent(), string(ee.Category)})

		event := sentry.NewEvent()
		event.Message = message
		event.Level = level
		event.Exception = []sentry.Exception{{
			Type:  fmt.Sprintf("%s %s", ee.GetComponent(), ee.Category),
			Value: message,
		}}
		sentry.CaptureEvent(event)
	})

	ee.MarkReported()
}

// getErrorLevel returns the Sentry level for a category
func getErrorLevel(category ErrorCategory) sentry.Level {
	switch category {
	case CategoryNetwork, CategoryMQTTConnection, CategoryMQTTPublish, CategoryTimeout:
		return sentry.LevelWarning
	case CategoryMessageParsing, CategoryValidation:
		return sentry.LevelInfo
	default:
		return sentry.LevelError
	}
}

var (
	urlCredentialsRegex = regexp.MustCompile(`(\w+://)[^:@/\s]+:[^@/\s]+@`)
	secretParamRegex    = regexp.MustCompile(`(?i)(password|passwd|token|api[_-]?key|dsn)[=:]\S+`)
)

// scrubMessage removes broker/database credentials from messages
func scrubMessage(message string) string {
	scrubbed := urlCredentialsRegex.ReplaceAllString(message, "${1}[REDACTED]@")
	return secretParamRegex.ReplaceAllString(scrubbed, "${1}=[REDACTED]")
}
