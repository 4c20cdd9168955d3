// Package mqtt provides MQTT client functionality and data transfer objects.
package mqtt

import "time"

// Field names of the DTOs below are consumed by dashboards and Home
// Assistant value templates. Do not rename existing fields.

// Totals is the running count of one area since the engine started.
type Totals struct {
	In        int64     `json:"in"`
	Out       int64     `json:"out"`
	Occupancy int       `json:"occupancy"`
	Timestamp time.Time `json:"ts"`
}

// TotalsDTO is published to <prefix>/<area_id>/totals.
type TotalsDTO struct {
	AreaID   uint   `json:"area_id"`
	AreaName string `json:"area"`
	Capacity int    `json:"capacity,omitempty"`
	Totals
}

// DeltaDTO is published to <prefix>/<area_id>/delta, with exactly one of
// In or Out set.
type DeltaDTO struct {
	In  int `json:"in,omitempty"`
	Out int `json:"out,omitempty"`
}

// AlertDTO is published to <prefix>/<area_id>/alert on capacity edges.
type AlertDTO struct {
	AreaID    uint      `json:"area_id"`
	AreaName  string    `json:"area"`
	Type      string    `json:"type"`
	Occupancy int       `json:"occupancy"`
	Capacity  int       `json:"capacity"`
	LimitMode string    `json:"limit_mode"`
	Timestamp time.Time `json:"ts"`
}
