// event.go: decoding of tracked-object events received from the NVR feed
package counting

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tphakala/occupancy-go/internal/errors"
)

var (
	// ErrMalformedEvent marks payloads that cannot be used at all.
	ErrMalformedEvent = errors.NewStd("malformed event payload")
	// ErrMissingBefore marks events without a before block. They are
	// ignored rather than treated as errors.
	ErrMissingBefore = errors.NewStd("event has no before state")
)

// ObjectState is one side (before or after) of a tracked-object update.
type ObjectState struct {
	ID           string   `json:"id"`
	Label        string   `json:"label"`
	Camera       string   `json:"camera,omitempty"`
	CurrentZones []string `json:"current_zones"`
	EnteredZones []string `json:"entered_zones"`
	Score        float64  `json:"score"`
}

// Event is a tracked-object lifecycle message.
type Event struct {
	Type   string       `json:"type"`
	Camera string       `json:"camera"`
	Before *ObjectState `json:"before,omitempty"`
	After  *ObjectState `json:"after,omitempty"`
}

// CameraName returns the top level camera, falling back to the one carried
// in the after block.
func (e *Event) CameraName() string {
	if e.Camera != "" {
		return e.Camera
	}
	if e.After != nil {
		return e.After.Camera
	}
	return ""
}

// DecodeEvent parses a raw payload. Unparseable payloads and payloads without
// an after block, an object id or a camera wrap ErrMalformedEvent; payloads
// without a before block wrap ErrMissingBefore.
func DecodeEvent(payload []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, malformed(err.Error(), len(payload))
	}

	switch {
	case event.After == nil:
		return nil, malformed("missing after", len(payload))
	case strings.TrimSpace(event.After.ID) == "":
		return nil, malformed("missing after.id", len(payload))
	case event.CameraName() == "":
		return nil, malformed("missing camera", len(payload))
	case event.Before == nil:
		return &event, errors.New(ErrMissingBefore).
			Category(errors.CategoryMessageParsing).
			Priority(errors.PriorityLow).
			Context("object_id", event.After.ID).
			Build()
	}

	return &event, nil
}

func malformed(reason string, size int) error {
	return errors.New(fmt.Errorf("%w: %s", ErrMalformedEvent, reason)).
		Category(errors.CategoryMessageParsing).
		Priority(errors.PriorityLow).
		Context("payload_size", size).
		Build()
}
