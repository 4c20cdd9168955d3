package counting

import (
	"time"

	"github.com/tphakala/occupancy-go/internal/datastore"
)

type debounceKey struct {
	bindingID uint
	objectID  string
	direction datastore.EventType
}

// Debouncer suppresses repeated transitions of one object through one
// binding in the same direction. Not safe for concurrent use.
type Debouncer struct {
	window  time.Duration
	entries map[debounceKey]time.Time
}

// NewDebouncer creates a debouncer with the given window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		entries: make(map[debounceKey]time.Time),
	}
}

// Accept returns false when the same key was accepted less than one window
// ago, otherwise it records now and returns true. A clock that moves
// backwards is rejected so stored timestamps only increase.
func (d *Debouncer) Accept(bindingID uint, objectID string, direction datastore.EventType, now time.Time) bool {
	key := debounceKey{bindingID: bindingID, objectID: objectID, direction: direction}
	if last, ok := d.entries[key]; ok {
		if now.Before(last) || now.Sub(last) < d.window {
			return false
		}
	}
	d.entries[key] = now
	return true
}

// Sweep drops entries older than twice the window.
func (d *Debouncer) Sweep(now time.Time) int {
	removed := 0
	for key, last := range d.entries {
		if now.Sub(last) > 2*d.window {
			delete(d.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live entries.
func (d *Debouncer) Len() int {
	return len(d.entries)
}
