// Package metrics provides constants used across metric definitions.
package metrics

import "time"

// Operation label values for datastore metrics.
const (
	OpCommit          = "commit"
	OpRecordAlert     = "record_alert"
	OpResetOccupancy  = "reset_occupancy"
	OpSaveMeasurement = "save_measurement"
	OpLoadBindings    = "load_bindings"
	OpPurge           = "purge"
	OpAnalytics       = "analytics"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Reasons a message is discarded before it reaches the tracking cache.
const (
	DropMalformed     = "malformed"
	DropMissingBefore = "missing_before"
	DropLabel         = "label"
	DropConfidence    = "confidence"
	DropQueueFull     = "queue_full"
)

// Reasons a transition candidate is not committed.
const (
	RejectDebounced  = "debounced"
	RejectKind       = "kind_mismatch"
	RejectWriteError = "write_error"
)

// Histogram bucket configuration constants.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms.
	BucketStart1ms = 0.001
	// BucketStart64B is the starting bucket for 64 byte histograms.
	BucketStart64B = 64.0
	// BucketFactor2 is the common exponential growth factor for histogram buckets.
	BucketFactor2 = 2
	// BucketCount10 covers 1ms to ~0.5s or 64B to 32KB.
	BucketCount10 = 10
	// BucketCount15 covers 1ms to ~16s.
	BucketCount15 = 15
)

// ShutdownTimeout bounds graceful shutdown of the metrics HTTP listener.
const ShutdownTimeout = 5 * time.Second
