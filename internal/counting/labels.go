package counting

import (
	"strings"

	"github.com/tphakala/occupancy-go/internal/datastore"
	"github.com/tphakala/occupancy-go/internal/errors"
)

var (
	// ErrInactiveLabel marks detections whose label is not counted.
	ErrInactiveLabel = errors.NewStd("label is not an active object kind")
	// ErrLowConfidence marks detections scored below the threshold.
	ErrLowConfidence = errors.NewStd("detection confidence below threshold")
)

// labelKinds maps NVR detector labels to counted object kinds.
var labelKinds = map[string]datastore.AreaKind{
	"person":     datastore.KindPerson,
	"car":        datastore.KindVehicle,
	"truck":      datastore.KindVehicle,
	"bus":        datastore.KindVehicle,
	"motorcycle": datastore.KindVehicle,
	"motorbike":  datastore.KindVehicle,
	"bicycle":    datastore.KindVehicle,
	"bike":       datastore.KindVehicle,
	"vehicle":    datastore.KindVehicle,
}

// KindForLabel returns the object kind for a detector label.
func KindForLabel(label string) (datastore.AreaKind, bool) {
	kind, ok := labelKinds[strings.ToLower(strings.TrimSpace(label))]
	return kind, ok
}

// LabelFilter decides which detections reach the tracking cache.
type LabelFilter struct {
	active    map[datastore.AreaKind]struct{}
	threshold float64
}

// NewLabelFilter builds a filter for the given kinds. Unknown kinds in the
// list are ignored; validation happens at config load.
func NewLabelFilter(activeObjects []string, threshold float64) *LabelFilter {
	f := &LabelFilter{
		active:    make(map[datastore.AreaKind]struct{}, len(activeObjects)),
		threshold: threshold,
	}
	for _, name := range activeObjects {
		if kind, err := datastore.ParseAreaKind(name); err == nil {
			f.active[kind] = struct{}{}
		}
	}
	return f
}

// Classify returns the object kind of a detection or ErrInactiveLabel /
// ErrLowConfidence when it must be discarded.
func (f *LabelFilter) Classify(label string, score float64) (datastore.AreaKind, error) {
	kind, ok := KindForLabel(label)
	if !ok {
		return "", ErrInactiveLabel
	}
	if _, active := f.active[kind]; !active {
		return "", ErrInactiveLabel
	}
	if f.threshold > 0 && score < f.threshold {
		return "", ErrLowConfidence
	}
	return kind, nil
}
