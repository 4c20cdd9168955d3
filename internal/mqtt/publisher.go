// publisher.go: outbound per-area totals, deltas and alerts.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tphakala/occupancy-go/internal/conf"
	"github.com/tphakala/occupancy-go/internal/datastore"
	"github.com/tphakala/occupancy-go/internal/errors"
)

// OccupancyPublisher publishes counting results for other consumers.
type OccupancyPublisher struct {
	client   Publisher
	settings conf.MQTTPublishSettings
}

// NewOccupancyPublisher creates a publisher on top of an MQTT client.
func NewOccupancyPublisher(client Publisher, settings conf.MQTTPublishSettings) *OccupancyPublisher {
	settings.Prefix = strings.TrimSuffix(settings.Prefix, "/")
	return &OccupancyPublisher{client: client, settings: settings}
}

// TotalsTopic returns the totals topic of an area.
func (p *OccupancyPublisher) TotalsTopic(areaID uint) string {
	return fmt.Sprintf("%s/%d/totals", p.settings.Prefix, areaID)
}

func (p *OccupancyPublisher) deltaTopic(areaID uint) string {
	return fmt.Sprintf("%s/%d/delta", p.settings.Prefix, areaID)
}

func (p *OccupancyPublisher) alertTopic(areaID uint) string {
	return fmt.Sprintf("%s/%d/alert", p.settings.Prefix, areaID)
}

// PublishTransition publishes the area totals and, when enabled, the delta
// of one committed transition. Clamped exits publish totals only.
func (p *OccupancyPublisher) PublishTransition(ctx context.Context, area *datastore.Area, event *datastore.CountingEvent, totals Totals) error {
	if !p.client.IsConnected() {
		return errNotConnected()
	}

	if err := p.publishJSON(ctx, p.TotalsTopic(area.ID), TotalsDTO{
		AreaID:   area.ID,
		AreaName: area.Name,
		Capacity: area.CapacityValue(),
		Totals:   totals,
	}, p.settings.Retain); err != nil {
		return err
	}

	if !p.settings.Delta || event.Value == 0 {
		return nil
	}
	delta := DeltaDTO{In: 1}
	if event.Type == datastore.EventExit {
		delta = DeltaDTO{Out: 1}
	}
	return p.publishJSON(ctx, p.deltaTopic(area.ID), delta, false)
}

// PublishAlert publishes one capacity alert edge.
func (p *OccupancyPublisher) PublishAlert(ctx context.Context, area *datastore.Area, alert *datastore.CountingEvent) error {
	if !p.client.IsConnected() {
		return errNotConnected()
	}
	return p.publishJSON(ctx, p.alertTopic(area.ID), AlertDTO{
		AreaID:    area.ID,
		AreaName:  area.Name,
		Type:      string(alert.Type),
		Occupancy: alert.Value,
		Capacity:  area.CapacityValue(),
		LimitMode: string(area.LimitMode),
		Timestamp: alert.Timestamp,
	}, false)
}

func (p *OccupancyPublisher) publishJSON(ctx context.Context, topic string, v any, retain bool) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}
	return p.client.Publish(ctx, topic, data, p.settings.QoS, retain)
}

func errNotConnected() error {
	return errors.Newf("not connected to MQTT broker").
		Category(errors.CategoryMQTTPublish).
		Priority(errors.PriorityLow).
		Build()
}
