package counting

import "github.com/tphakala/occupancy-go/internal/datastore"

// Candidate is a transition suggested by a zone change, before debouncing.
type Candidate struct {
	Binding   *datastore.ZoneBinding
	Direction datastore.EventType
	Zone      string
}

// Detect compares previous and next zone sets against every enabled binding
// of the camera. Only entering a binding's entry or exit zone counts; both
// may fire for the same message.
func Detect(bindings []datastore.ZoneBinding, camera string, prev, next ZoneSet) []Candidate {
	var candidates []Candidate
	for i := range bindings {
		b := &bindings[i]
		if !b.Enabled || b.CameraName != camera {
			continue
		}
		if entered(b.ZoneIn, prev, next) {
			candidates = append(candidates, Candidate{Binding: b, Direction: datastore.EventEnter, Zone: b.ZoneIn})
		}
		if entered(b.ZoneOut, prev, next) {
			candidates = append(candidates, Candidate{Binding: b, Direction: datastore.EventExit, Zone: b.ZoneOut})
		}
	}
	return candidates
}

func entered(zone string, prev, next ZoneSet) bool {
	return !prev.Has(zone) && next.Has(zone)
}
