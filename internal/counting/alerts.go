package counting

import "github.com/tphakala/occupancy-go/internal/datastore"

// AlertState is the capacity state of one area.
type AlertState int

const (
	StateNormal AlertState = iota
	StateWarning
	StateExceeded
)

func (s AlertState) String() string {
	switch s {
	case StateWarning:
		return "warning"
	case StateExceeded:
		return "exceeded"
	default:
		return "normal"
	}
}

// AlertEvaluator tracks per-area capacity state and reports state edges.
// Owned by the engine loop.
type AlertEvaluator struct {
	fraction float64
	states   map[uint]AlertState
}

// NewAlertEvaluator creates an evaluator with the given warning fraction.
func NewAlertEvaluator(warningFraction float64) *AlertEvaluator {
	return &AlertEvaluator{
		fraction: warningFraction,
		states:   make(map[uint]AlertState),
	}
}

// Seed sets the state of an area from stored occupancy without alerting.
// A reseed inside the warning band keeps an exceeded area exceeded.
func (a *AlertEvaluator) Seed(areaID uint, occupancy, capacity int) {
	next := a.classify(occupancy, capacity)
	if a.states[areaID] == StateExceeded && next == StateWarning {
		next = StateExceeded
	}
	a.states[areaID] = next
}

// Evaluate updates the area state and returns the alert type to emit, if any.
// exceeded fires on entering the exceeded state, warning only when coming up
// from normal. An exceeded area stays exceeded until occupancy drops below the
// warning threshold, so hovering at capacity alerts once. Falling back is silent.
func (a *AlertEvaluator) Evaluate(areaID uint, occupancy, capacity int) (datastore.EventType, bool) {
	prev := a.states[areaID]
	next := a.classify(occupancy, capacity)
	if prev == StateExceeded && next == StateWarning {
		next = StateExceeded
	}
	a.states[areaID] = next

	switch {
	case next == StateExceeded && prev != StateExceeded:
		return datastore.EventExceeded, true
	case next == StateWarning && prev == StateNormal:
		return datastore.EventWarning, true
	default:
		return "", false
	}
}

// State returns the current state of an area.
func (a *AlertEvaluator) State(areaID uint) AlertState {
	return a.states[areaID]
}

func (a *AlertEvaluator) classify(occupancy, capacity int) AlertState {
	if capacity <= 0 {
		return StateNormal
	}
	switch {
	case occupancy >= capacity:
		return StateExceeded
	case float64(occupancy) >= a.fraction*float64(capacity):
		return StateWarning
	default:
		return StateNormal
	}
}
