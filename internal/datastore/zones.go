package datastore

import (
	"context"
	"strings"
	"time"

	"github.com/tphakala/occupancy-go/internal/errors"
	"github.com/tphakala/occupancy-go/internal/logger"
	"github.com/tphakala/occupancy-go/internal/observability/metrics"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetAreas returns all areas ordered by id.
func (ds *DataStore) GetAreas(ctx context.Context) ([]Area, error) {
	var areas []Area
	if err := ds.DB.WithContext(ctx).Order("id").Find(&areas).Error; err != nil {
		return nil, dbError(err, "get_areas", errors.PriorityLow)
	}
	return areas, nil
}

// GetArea returns one area or a not-found error.
func (ds *DataStore) GetArea(ctx context.Context, id uint) (*Area, error) {
	var area Area
	if err := ds.DB.WithContext(ctx).First(&area, id).Error; err != nil {
		return nil, lookupError(err, "area", id, "get_area")
	}
	return &area, nil
}

// SaveArea inserts an area, or updates the existing area with the same name.
// CurrentOccupancy of an existing area is left untouched.
func (ds *DataStore) SaveArea(ctx context.Context, area *Area) error {
	area.Name = strings.TrimSpace(area.Name)
	if area.Name == "" {
		return validationError("area name is required", "name", area.Name)
	}
	if area.Kind == "" {
		area.Kind = KindPerson
	}
	if area.LimitMode == "" {
		area.LimitMode = LimitSoft
	}

	err := ds.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"kind", "capacity", "limit_mode", "enabled", "updated_at"}),
	}).Create(area).Error
	if err != nil {
		return dbError(err, "save_area", errors.PriorityMedium, "name", area.Name)
	}

	// the upsert does not return the id of an existing row on every dialect
	var stored Area
	if err := ds.DB.WithContext(ctx).Where("name = ?", area.Name).First(&stored).Error; err != nil {
		return dbError(err, "save_area", errors.PriorityMedium, "name", area.Name)
	}
	*area = stored
	return nil
}

// GetZoneBindings returns every binding with its area.
func (ds *DataStore) GetZoneBindings(ctx context.Context) ([]ZoneBinding, error) {
	var bindings []ZoneBinding
	if err := ds.DB.WithContext(ctx).Preload("Area").Order("id").Find(&bindings).Error; err != nil {
		return nil, dbError(err, "get_zone_bindings", errors.PriorityLow)
	}
	return bindings, nil
}

// GetActiveBindings returns enabled bindings of enabled areas, with the area preloaded.
// This is the snapshot the counting engine loads at start and on reload.
func (ds *DataStore) GetActiveBindings(ctx context.Context) (bindings []ZoneBinding, err error) {
	start := time.Now()
	defer func() { ds.observe(metrics.OpLoadBindings, start, err) }()

	err = ds.DB.WithContext(ctx).
		Joins("Area").
		Where("zone_bindings.enabled = ? AND Area.enabled = ?", true, true).
		Order("zone_bindings.id").
		Find(&bindings).Error
	if err != nil {
		return nil, dbError(err, "load_bindings", errors.PriorityHigh)
	}
	return bindings, nil
}

// SaveZoneBinding inserts a binding, or updates the one with the same camera and zones.
func (ds *DataStore) SaveZoneBinding(ctx context.Context, binding *ZoneBinding) error {
	binding.CameraName = strings.TrimSpace(binding.CameraName)
	binding.ZoneIn = strings.TrimSpace(binding.ZoneIn)
	binding.ZoneOut = strings.TrimSpace(binding.ZoneOut)

	switch {
	case binding.AreaID == 0:
		return validationError("binding must reference an area", "area_id", binding.AreaID)
	case binding.CameraName == "":
		return validationError("camera name is required", "camera_name", binding.CameraName)
	case binding.ZoneIn == "" || binding.ZoneOut == "":
		return validationError("both zone_in and zone_out are required", "zones", binding.ZoneIn+"/"+binding.ZoneOut)
	case binding.ZoneIn == binding.ZoneOut:
		return validationError("zone_in and zone_out must differ", "zones", binding.ZoneIn)
	}

	err := ds.DB.WithContext(ctx).Omit("Area").Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "camera_name"}, {Name: "zone_in"}, {Name: "zone_out"}},
		DoUpdates: clause.AssignmentColumns([]string{"area_id", "title", "enabled"}),
	}).Create(binding).Error
	if err != nil {
		return dbError(err, "save_zone_binding", errors.PriorityMedium, "camera", binding.CameraName)
	}

	var stored ZoneBinding
	if err := ds.DB.WithContext(ctx).
		Where("camera_name = ? AND zone_in = ? AND zone_out = ?", binding.CameraName, binding.ZoneIn, binding.ZoneOut).
		First(&stored).Error; err != nil {
		return dbError(err, "save_zone_binding", errors.PriorityMedium, "camera", binding.CameraName)
	}
	*binding = stored
	return nil
}

// defaultAreas are created on an empty database when seeding is enabled.
func defaultAreas() []Area {
	capacity := func(n int) *int { return &n }
	return []Area{
		{Name: "Hall Principal", Kind: KindPerson, Capacity: capacity(50), LimitMode: LimitSoft, Enabled: true},
		{Name: "Estacionamiento A", Kind: KindVehicle, Capacity: capacity(25), LimitMode: LimitHard, Enabled: true},
		{Name: "Sala de Reuniones", Kind: KindPerson, Capacity: capacity(12), LimitMode: LimitSoft, Enabled: true},
	}
}

// SeedDefaultAreas creates the default areas when the areas table is empty.
// It returns the number of areas created.
func (ds *DataStore) SeedDefaultAreas(ctx context.Context) (int, error) {
	created := 0
	err := ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Area{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		areas := defaultAreas()
		if err := tx.Create(&areas).Error; err != nil {
			return err
		}
		created = len(areas)
		return nil
	})
	if err != nil {
		return 0, dbError(err, "seed_default_areas", errors.PriorityMedium)
	}

	if created > 0 {
		GetLogger().Info("seeded default areas", logger.Int("count", created))
	}
	return created, nil
}
