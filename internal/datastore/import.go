package datastore

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/tphakala/occupancy-go/internal/errors"
	"github.com/tphakala/occupancy-go/internal/logger"
	"gopkg.in/yaml.v3"
)

// AreaFile is the YAML document accepted by the areas import command.
type AreaFile struct {
	Areas []AreaSpec `yaml:"areas"`
}

// AreaSpec describes one area and its zone bindings. Enabled defaults to true.
type AreaSpec struct {
	Name      string        `yaml:"name"`
	Kind      string        `yaml:"kind"`
	Capacity  int           `yaml:"capacity"`
	LimitMode string        `yaml:"limit_mode"`
	Enabled   *bool         `yaml:"enabled"`
	Bindings  []BindingSpec `yaml:"bindings"`
}

// BindingSpec describes one camera's entry and exit zones.
type BindingSpec struct {
	Title   string `yaml:"title"`
	Camera  string `yaml:"camera"`
	ZoneIn  string `yaml:"zone_in"`
	ZoneOut string `yaml:"zone_out"`
	Enabled *bool  `yaml:"enabled"`
}

// AreaWriter is the part of the store an import needs.
type AreaWriter interface {
	SaveArea(ctx context.Context, area *Area) error
	SaveZoneBinding(ctx context.Context, binding *ZoneBinding) error
}

// ImportResult counts what an import wrote.
type ImportResult struct {
	Areas    int
	Bindings int
}

// LoadAreaFile reads an area file from path.
func LoadAreaFile(path string) (*AreaFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer f.Close()

	return ParseAreaFile(f)
}

// ParseAreaFile decodes an area file, rejecting unknown keys.
func ParseAreaFile(r io.Reader) (*AreaFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file AreaFile
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.New(fmt.Errorf("invalid area file: %w", err)).
			Component("datastore").
			Category(errors.CategoryFileParsing).
			Build()
	}
	return &file, nil
}

// ImportAreas upserts every area and binding of file in order. Areas are
// matched by name and bindings by camera and zones, so importing the same
// file twice changes nothing. The first invalid entry stops the import.
func ImportAreas(ctx context.Context, ds AreaWriter, file *AreaFile) (ImportResult, error) {
	var result ImportResult

	for i := range file.Areas {
		spec := &file.Areas[i]

		area, err := spec.toArea()
		if err != nil {
			return result, err
		}
		if err := ds.SaveArea(ctx, area); err != nil {
			return result, err
		}
		result.Areas++

		for j := range spec.Bindings {
			b := &spec.Bindings[j]
			binding := &ZoneBinding{
				AreaID:     area.ID,
				Title:      b.Title,
				CameraName: b.Camera,
				ZoneIn:     b.ZoneIn,
				ZoneOut:    b.ZoneOut,
				Enabled:    enabledOrDefault(b.Enabled),
			}
			if err := ds.SaveZoneBinding(ctx, binding); err != nil {
				return result, err
			}
			result.Bindings++
		}
	}

	GetLogger().Info("Areas imported",
		logger.Int("areas", result.Areas),
		logger.Int("bindings", result.Bindings))
	return result, nil
}

func (s *AreaSpec) toArea() (*Area, error) {
	kind, err := ParseAreaKind(s.Kind)
	if err != nil {
		return nil, err
	}
	mode, err := ParseLimitMode(s.LimitMode)
	if err != nil {
		return nil, err
	}
	if s.Capacity < 0 {
		return nil, validationError("capacity must not be negative", "capacity", s.Capacity)
	}

	area := &Area{
		Name:      s.Name,
		Kind:      kind,
		LimitMode: mode,
		Enabled:   enabledOrDefault(s.Enabled),
	}
	if s.Capacity > 0 {
		capacity := s.Capacity
		area.Capacity = &capacity
	}
	return area, nil
}

func enabledOrDefault(v *bool) bool {
	return v == nil || *v
}
