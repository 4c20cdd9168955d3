package datastore

import (
	"strings"
	"time"
)

// AreaKind is the object kind an area counts.
type AreaKind string

const (
	KindPerson  AreaKind = "person"
	KindVehicle AreaKind = "vehicle"
)

// LimitMode is advisory: the engine never blocks entry.
type LimitMode string

const (
	LimitSoft LimitMode = "soft"
	LimitHard LimitMode = "hard"
)

// EventType is the type column of the counting_events log.
type EventType string

const (
	EventEnter    EventType = "enter"
	EventExit     EventType = "exit"
	EventWarning  EventType = "warning"
	EventExceeded EventType = "exceeded"
)

// SourceAlert is the Source value of alert rows.
const SourceAlert = "alert"

// Area is a monitored space with an occupancy counter and optional capacity.
type Area struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Name             string    `gorm:"size:120;uniqueIndex;not null" json:"name"`
	Kind             AreaKind  `gorm:"size:16;not null;default:person" json:"kind"`
	Capacity         *int      `json:"capacity,omitempty"`
	LimitMode        LimitMode `gorm:"size:8;not null;default:soft" json:"limit_mode"`
	CurrentOccupancy int       `gorm:"not null;default:0" json:"current_occupancy"`
	Enabled          bool      `gorm:"not null" json:"enabled"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CapacityValue returns the capacity, 0 when none is configured.
func (a *Area) CapacityValue() int {
	if a.Capacity == nil || *a.Capacity < 0 {
		return 0
	}
	return *a.Capacity
}

// ZoneBinding maps one camera's entry and exit zones to an area.
type ZoneBinding struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	AreaID     uint   `gorm:"index;not null" json:"area_id"`
	Area       Area   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Title      string `gorm:"size:120" json:"title"`
	CameraName string `gorm:"size:120;not null;uniqueIndex:idx_binding_zones" json:"camera_name"`
	ZoneIn     string `gorm:"size:120;not null;uniqueIndex:idx_binding_zones" json:"zone_in"`
	ZoneOut    string `gorm:"size:120;not null;uniqueIndex:idx_binding_zones" json:"zone_out"`
	Enabled    bool   `gorm:"not null" json:"enabled"`
}

// EventMetadata is stored as JSON next to each transition.
type EventMetadata struct {
	BindingID uint   `json:"binding_id,omitempty"`
	ObjectID  string `json:"object_id,omitempty"`
	Label     string `json:"label,omitempty"`
	Camera    string `json:"camera,omitempty"`
	Zone      string `json:"zone,omitempty"`
	Clamped   bool   `json:"clamped,omitempty"`
}

// CountingEvent is one row of the append-only transition log. Alert rows
// carry the triggering occupancy in Value.
type CountingEvent struct {
	ID         uint          `gorm:"primaryKey" json:"id"`
	AreaID     uint          `gorm:"not null;index:idx_events_area_ts,priority:1" json:"area_id"`
	Type       EventType     `gorm:"size:16;not null;index:idx_events_type_ts,priority:1" json:"type"`
	Value      int           `gorm:"not null" json:"value"`
	Source     string        `gorm:"size:120" json:"source"`
	ObjectKind string        `gorm:"size:16" json:"object_kind,omitempty"`
	Confidence float64       `json:"confidence,omitempty"`
	Timestamp  time.Time     `gorm:"column:ts;not null;index:idx_events_area_ts,priority:2;index:idx_events_type_ts,priority:2" json:"ts"`
	Metadata   EventMetadata `gorm:"serializer:json;type:text" json:"metadata"`
}

// Measurement is a periodic occupancy snapshot used for trend charts.
type Measurement struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AreaID    uint      `gorm:"not null;index:idx_measurements_area_ts,priority:1" json:"area_id"`
	Occupancy int       `gorm:"not null" json:"occupancy"`
	Density   float64   `json:"density"`
	Timestamp time.Time `gorm:"column:ts;not null;index:idx_measurements_area_ts,priority:2" json:"ts"`
}

// Transition is an accepted enter or exit handed to the ledger.
type Transition struct {
	AreaID     uint
	BindingID  uint
	Direction  EventType
	ObjectID   string
	ObjectKind string
	Label      string
	Camera     string
	Zone       string
	Confidence float64
	Timestamp  time.Time
}

// ParseAreaKind accepts the canonical kinds and their Spanish aliases.
func ParseAreaKind(s string) (AreaKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "person", "persons", "people", "persona", "personas":
		return KindPerson, nil
	case "vehicle", "vehicles", "vehiculo", "vehiculos", "vehículo", "vehículos":
		return KindVehicle, nil
	}
	return "", validationError("unknown area kind", "kind", s)
}

// ParseLimitMode accepts soft or hard, defaulting to soft when empty.
func ParseLimitMode(s string) (LimitMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "soft":
		return LimitSoft, nil
	case "hard":
		return LimitHard, nil
	}
	return "", validationError("unknown limit mode", "limit_mode", s)
}
