package counting

import (
	"time"

	"github.com/tphakala/occupancy-go/internal/datastore"
)

// ZoneSet is the set of zones an object currently occupies.
type ZoneSet map[string]struct{}

// NewZoneSet builds a set from a zone list.
func NewZoneSet(zones []string) ZoneSet {
	set := make(ZoneSet, len(zones))
	for _, z := range zones {
		set[z] = struct{}{}
	}
	return set
}

// Has reports whether the zone is in the set.
func (s ZoneSet) Has(zone string) bool {
	_, ok := s[zone]
	return ok
}

// TrackedObject is the cached state of one external object id.
type TrackedObject struct {
	Camera   string
	Kind     datastore.AreaKind
	Zones    ZoneSet
	LastSeen time.Time
}

// Tracker remembers the last known zones of each tracked object so the
// detector has a previous state even when the feed omits it. It is owned by
// the engine loop and is not safe for concurrent use.
type Tracker struct {
	timeout time.Duration
	objects map[string]*TrackedObject
}

// NewTracker creates a tracker that forgets objects unseen for timeout.
func NewTracker(timeout time.Duration) *Tracker {
	return &Tracker{
		timeout: timeout,
		objects: make(map[string]*TrackedObject),
	}
}

// Observe records the current zones of an object and returns its previous
// zones. Unknown, expired, or camera-switched ids get an empty previous set.
func (t *Tracker) Observe(camera, objectID string, kind datastore.AreaKind, zones ZoneSet, now time.Time) ZoneSet {
	prev := ZoneSet{}
	obj, ok := t.objects[objectID]
	if ok && obj.Camera == camera && !t.expired(obj, now) {
		prev = obj.Zones
	}

	if !ok {
		obj = &TrackedObject{}
		t.objects[objectID] = obj
	}
	obj.Camera = camera
	obj.Kind = kind
	obj.Zones = zones
	obj.LastSeen = now

	return prev
}

// Sweep evicts expired objects and returns how many were removed.
func (t *Tracker) Sweep(now time.Time) int {
	removed := 0
	for id, obj := range t.objects {
		if t.expired(obj, now) {
			delete(t.objects, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached objects.
func (t *Tracker) Len() int {
	return len(t.objects)
}

func (t *Tracker) expired(obj *TrackedObject, now time.Time) bool {
	return now.Sub(obj.LastSeen) > t.timeout
}
