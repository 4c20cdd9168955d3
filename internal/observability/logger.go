// Package observability provides Prometheus metrics functionality for monitoring occupancy-go.
package observability

import (
	"fmt"

	"github.com/tphakala/occupancy-go/internal/logger"
)

// GetLogger returns the observability module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("observability")
}

// promErrorLogger routes promhttp handler errors into the module logger
type promErrorLogger struct{}

func (promErrorLogger) Println(v ...any) {
	GetLogger().Error("metrics handler error", logger.String("detail", fmt.Sprint(v...)))
}
