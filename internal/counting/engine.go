// engine.go: the single-consumer counting loop
package counting

import (
	"context"
	"sync"
	"time"

	"github.com/tphakala/occupancy-go/internal/conf"
	"github.com/tphakala/occupancy-go/internal/datastore"
	"github.com/tphakala/occupancy-go/internal/errors"
	"github.com/tphakala/occupancy-go/internal/logger"
	"github.com/tphakala/occupancy-go/internal/mqtt"
	"github.com/tphakala/occupancy-go/internal/observability/metrics"
	"golang.org/x/time/rate"
)

const (
	recentTransitionsSize = 20

	// publishQueueSize bounds publishes waiting on a slow broker
	publishQueueSize = 64
)

// ConfigLoader supplies the enabled zone bindings with their areas.
type ConfigLoader interface {
	GetActiveBindings(ctx context.Context) ([]datastore.ZoneBinding, error)
}

// Ledger persists transitions and alerts.
type Ledger interface {
	Commit(ctx context.Context, t datastore.Transition) (*datastore.CountingEvent, *datastore.Area, error)
	RecordAlert(ctx context.Context, areaID uint, alertType datastore.EventType, occupancy int, ts time.Time) (*datastore.CountingEvent, error)
}

// Publisher forwards committed transitions and alerts, typically over MQTT.
type Publisher interface {
	PublishTransition(ctx context.Context, area *datastore.Area, event *datastore.CountingEvent, totals mqtt.Totals) error
	PublishAlert(ctx context.Context, area *datastore.Area, alert *datastore.CountingEvent) error
}

// Options configures an Engine. Clock, Loader and Ledger are required.
type Options struct {
	Clock     Clock
	Loader    ConfigLoader
	Ledger    Ledger
	Publisher Publisher
	Metrics   *metrics.CountingMetrics
	Connected func() bool
	Settings  conf.CountingSettings
}

// Engine turns tracked-object events into committed transitions. Tracker,
// debouncer, alert state and bindings are owned by the Run goroutine.
type Engine struct {
	clock     Clock
	loader    ConfigLoader
	ledger    Ledger
	publisher Publisher
	metrics   *metrics.CountingMetrics
	connected func() bool

	filter    *LabelFilter
	tracker   *Tracker
	debouncer *Debouncer
	alerts    *AlertEvaluator

	bindings map[string][]datastore.ZoneBinding
	totals   map[uint]*mqtt.Totals

	reloadCh chan chan error
	outbox   chan func(context.Context)
	warn     *rate.Limiter
	warnMu   sync.Mutex
	muted    int

	statusMu sync.RWMutex
	status   Status
}

// Status is a point-in-time view of the engine for the API.
type Status struct {
	Running             bool               `json:"running"`
	Connected           bool               `json:"connected"`
	ZoneConfigsLoaded   int                `json:"zone_configs_loaded"`
	LastReload          time.Time          `json:"last_reload"`
	TrackedObjects      int                `json:"tracked_objects"`
	DebounceEntries     int                `json:"debounce_entries"`
	MessagesProcessed   uint64             `json:"messages_processed"`
	MessagesDiscarded   uint64             `json:"messages_discarded"`
	TransitionsAccepted uint64             `json:"transitions_accepted"`
	TransitionsRejected uint64             `json:"transitions_rejected"`
	AcceptedByCamera    map[string]uint64  `json:"accepted_by_camera"`
	RecentTransitions   []RecentTransition `json:"recent_transitions"`
}

// RecentTransition is a committed transition kept for the status view.
type RecentTransition struct {
	AreaID    uint                `json:"area_id"`
	AreaName  string              `json:"area_name"`
	Direction datastore.EventType `json:"direction"`
	ObjectID  string              `json:"object_id"`
	Camera    string              `json:"camera"`
	Occupancy int                 `json:"occupancy"`
	Timestamp time.Time           `json:"timestamp"`
}

// NewEngine validates options and builds an engine.
func NewEngine(opts *Options) (*Engine, error) {
	switch {
	case opts.Loader == nil:
		return nil, errors.Newf("counting engine requires a config loader").Category(errors.CategoryConfiguration).Build()
	case opts.Ledger == nil:
		return nil, errors.Newf("counting engine requires a ledger").Category(errors.CategoryConfiguration).Build()
	}

	clock := opts.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	s := opts.Settings

	return &Engine{
		clock:     clock,
		loader:    opts.Loader,
		ledger:    opts.Ledger,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		connected: opts.Connected,
		filter:    NewLabelFilter(s.ActiveObjects, s.ConfidenceThreshold),
		tracker:   NewTracker(s.InactivityTimeout),
		debouncer: NewDebouncer(s.DebounceWindow),
		alerts:    NewAlertEvaluator(s.WarningFraction),
		bindings:  make(map[string][]datastore.ZoneBinding),
		totals:    make(map[uint]*mqtt.Totals),
		reloadCh:  make(chan chan error),
		warn:      rate.NewLimiter(rate.Every(10*time.Second), 3),
		status:    Status{AcceptedByCamera: make(map[string]uint64)},
	}, nil
}

// Run loads the bindings and processes messages in arrival order until ctx
// is cancelled or messages is closed. The message in flight when ctx ends is
// finished before Run returns.
func (e *Engine) Run(ctx context.Context, messages <-chan mqtt.Message) error {
	if err := e.loadBindings(ctx); err != nil {
		return err
	}

	e.setRunning(true)
	defer e.setRunning(false)

	log := GetLogger()
	log.Info("counting engine started", logger.Int("bindings", e.bindingCount()))

	work := context.WithoutCancel(ctx)
	if e.publisher != nil {
		stop := e.startOutbox(work)
		defer stop()
	}
	for {
		select {
		case <-ctx.Done():
			log.Info("counting engine stopped")
			return nil
		case reply := <-e.reloadCh:
			reply <- e.loadBindings(work)
		case msg, ok := <-messages:
			if !ok {
				log.Info("message queue closed, counting engine stopped")
				return nil
			}
			e.HandleMessage(work, msg.Payload)
		}
	}
}

// Reload asks the running loop to reload bindings between two messages.
func (e *Engine) Reload(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case e.reloadCh <- reply:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// loadBindings replaces the binding snapshot and reseeds alert states from
// the stored occupancy of each bound area.
func (e *Engine) loadBindings(ctx context.Context) error {
	bindings, err := e.loader.GetActiveBindings(ctx)
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "load_bindings").
			Build()
	}

	byCamera := make(map[string][]datastore.ZoneBinding)
	for i := range bindings {
		b := bindings[i]
		byCamera[b.CameraName] = append(byCamera[b.CameraName], b)
		e.alerts.Seed(b.AreaID, b.Area.CurrentOccupancy, b.Area.CapacityValue())
		if e.metrics != nil {
			e.metrics.SetOccupancy(b.Area.Name, b.Area.CurrentOccupancy)
		}
	}
	e.bindings = byCamera

	e.statusMu.Lock()
	e.status.ZoneConfigsLoaded = len(bindings)
	e.status.LastReload = e.clock.Now()
	e.statusMu.Unlock()

	GetLogger().Info("zone bindings loaded",
		logger.Int("bindings", len(bindings)),
		logger.Int("cameras", len(byCamera)))
	return nil
}

// HandleMessage processes one raw payload. Exported for the loop and tests;
// it must not be called concurrently with Run.
func (e *Engine) HandleMessage(ctx context.Context, payload []byte) {
	now := e.clock.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.RecordProcessed(e.clock.Now().Sub(now).Seconds())
		}
	}()

	evicted := e.tracker.Sweep(now)
	e.debouncer.Sweep(now)

	event, err := DecodeEvent(payload)
	switch {
	case errors.Is(err, ErrMissingBefore):
		GetLogger().Debug("ignoring event without before state", logger.String("camera", event.CameraName()))
		e.discard(metrics.DropMissingBefore)
		return
	case err != nil:
		e.warnf("dropping malformed event", logger.Error(err), logger.Int("payload_size", len(payload)))
		e.discard(metrics.DropMalformed)
		return
	}

	after := event.After
	kind, err := e.filter.Classify(after.Label, after.Score)
	if err != nil {
		reason := metrics.DropLabel
		if errors.Is(err, ErrLowConfidence) {
			reason = metrics.DropConfidence
		}
		e.discard(reason)
		return
	}

	camera := event.CameraName()
	next := NewZoneSet(after.CurrentZones)
	prev := e.tracker.Observe(camera, after.ID, kind, next, now)
	e.updateTracking(evicted)

	for _, c := range Detect(e.bindings[camera], camera, prev, next) {
		e.apply(ctx, c, event, kind, now)
	}
}

// apply runs one candidate through the kind check, debounce, ledger, alerts
// and publisher.
func (e *Engine) apply(ctx context.Context, c Candidate, event *Event, kind datastore.AreaKind, now time.Time) {
	log := GetLogger()
	after := event.After
	area := &c.Binding.Area

	if area.Kind != kind {
		e.reject(metrics.RejectKind)
		return
	}
	if !e.debouncer.Accept(c.Binding.ID, after.ID, c.Direction, now) {
		log.Debug("transition debounced",
			logger.String("object_id", after.ID),
			logger.String("direction", string(c.Direction)),
			logger.Int("binding_id", int(c.Binding.ID)))
		e.reject(metrics.RejectDebounced)
		return
	}

	committed, updated, err := e.ledger.Commit(ctx, datastore.Transition{
		AreaID:     c.Binding.AreaID,
		BindingID:  c.Binding.ID,
		Direction:  c.Direction,
		ObjectID:   after.ID,
		ObjectKind: string(kind),
		Label:      after.Label,
		Camera:     event.CameraName(),
		Zone:       c.Zone,
		Confidence: after.Score,
		Timestamp:  now,
	})
	if err != nil {
		log.Error("failed to commit transition, dropping it",
			logger.Int("area_id", int(c.Binding.AreaID)),
			logger.String("direction", string(c.Direction)),
			logger.String("object_id", after.ID),
			logger.Error(err))
		e.reject(metrics.RejectWriteError)
		return
	}

	log.Info("transition committed",
		logger.String("area", updated.Name),
		logger.String("direction", string(c.Direction)),
		logger.String("object_id", after.ID),
		logger.String("camera", event.CameraName()),
		logger.Int("occupancy", updated.CurrentOccupancy))

	totals := e.recordTotals(updated, committed)
	if e.metrics != nil {
		e.metrics.RecordTransition(updated.Name, string(c.Direction), updated.CurrentOccupancy)
	}
	e.recordAccepted(event.CameraName(), RecentTransition{
		AreaID:    updated.ID,
		AreaName:  updated.Name,
		Direction: c.Direction,
		ObjectID:  after.ID,
		Camera:    event.CameraName(),
		Occupancy: updated.CurrentOccupancy,
		Timestamp: now,
	})

	if e.publisher != nil {
		e.publish(ctx, func(ctx context.Context) {
			if err := e.publisher.PublishTransition(ctx, updated, committed, totals); err != nil {
				e.warnf("failed to publish totals", logger.Int("area_id", int(updated.ID)), logger.Error(err))
			}
		})
	}

	e.evaluateAlert(ctx, updated, now)
}

// evaluateAlert records an alert row on a capacity state edge.
func (e *Engine) evaluateAlert(ctx context.Context, area *datastore.Area, now time.Time) {
	alertType, fire := e.alerts.Evaluate(area.ID, area.CurrentOccupancy, area.CapacityValue())
	if !fire {
		return
	}

	log := GetLogger()
	alert, err := e.ledger.RecordAlert(ctx, area.ID, alertType, area.CurrentOccupancy, now)
	if err != nil {
		log.Error("failed to record alert",
			logger.Int("area_id", int(area.ID)),
			logger.String("type", string(alertType)),
			logger.Error(err))
		return
	}

	log.Warn("area capacity alert",
		logger.String("area", area.Name),
		logger.String("type", string(alertType)),
		logger.Int("occupancy", area.CurrentOccupancy),
		logger.Int("capacity", area.CapacityValue()),
		logger.String("limit_mode", string(area.LimitMode)))
	if e.metrics != nil {
		e.metrics.RecordAlert(area.Name, string(alertType))
	}
	if e.publisher != nil {
		e.publish(ctx, func(ctx context.Context) {
			if err := e.publisher.PublishAlert(ctx, area, alert); err != nil {
				e.warnf("failed to publish alert", logger.Int("area_id", int(area.ID)), logger.Error(err))
			}
		})
	}
}

// startOutbox runs publishes on their own goroutine so a slow broker does not
// hold up ingestion. The returned stop drains queued publishes and waits.
func (e *Engine) startOutbox(ctx context.Context) (stop func()) {
	e.outbox = make(chan func(context.Context), publishQueueSize)
	done := make(chan struct{})
	go func(outbox <-chan func(context.Context)) {
		defer close(done)
		for fn := range outbox {
			fn(ctx)
		}
	}(e.outbox)

	return func() {
		close(e.outbox)
		e.outbox = nil
		<-done
	}
}

// publish queues fn on the outbox, or runs it inline when the loop is not
// running. A full outbox drops the message.
func (e *Engine) publish(ctx context.Context, fn func(context.Context)) {
	if e.outbox == nil {
		fn(ctx)
		return
	}
	select {
	case e.outbox <- fn:
	default:
		e.warnf("publish queue full, dropping message", logger.Int("capacity", publishQueueSize))
	}
}

// recordTotals updates the running in/out counts of an area.
func (e *Engine) recordTotals(area *datastore.Area, event *datastore.CountingEvent) mqtt.Totals {
	t, ok := e.totals[area.ID]
	if !ok {
		t = &mqtt.Totals{}
		e.totals[area.ID] = t
	}
	if event.Type == datastore.EventEnter {
		t.In++
	} else {
		t.Out++
	}
	t.Occupancy = area.CurrentOccupancy
	t.Timestamp = event.Timestamp
	return *t
}

// Status returns a copy of the current engine status.
func (e *Engine) Status() Status {
	e.statusMu.RLock()
	s := e.status
	s.AcceptedByCamera = make(map[string]uint64, len(e.status.AcceptedByCamera))
	for k, v := range e.status.AcceptedByCamera {
		s.AcceptedByCamera[k] = v
	}
	s.RecentTransitions = append([]RecentTransition(nil), e.status.RecentTransitions...)
	e.statusMu.RUnlock()

	if e.connected != nil {
		s.Connected = e.connected()
	}
	return s
}

func (e *Engine) setRunning(running bool) {
	e.statusMu.Lock()
	e.status.Running = running
	e.statusMu.Unlock()
}

func (e *Engine) bindingCount() int {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return e.status.ZoneConfigsLoaded
}

func (e *Engine) updateTracking(evicted int) {
	size, entries := e.tracker.Len(), e.debouncer.Len()
	if e.metrics != nil {
		e.metrics.SetTrackedObjects(size, evicted)
	}
	e.statusMu.Lock()
	e.status.MessagesProcessed++
	e.status.TrackedObjects = size
	e.status.DebounceEntries = entries
	e.statusMu.Unlock()
}

func (e *Engine) recordAccepted(camera string, rt RecentTransition) {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	e.status.TransitionsAccepted++
	e.status.AcceptedByCamera[camera]++
	e.status.RecentTransitions = append(e.status.RecentTransitions, rt)
	if n := len(e.status.RecentTransitions); n > recentTransitionsSize {
		e.status.RecentTransitions = e.status.RecentTransitions[n-recentTransitionsSize:]
	}
}

func (e *Engine) discard(reason string) {
	if e.metrics != nil {
		e.metrics.RecordDiscarded(reason)
	}
	e.statusMu.Lock()
	e.status.MessagesDiscarded++
	e.statusMu.Unlock()
}

func (e *Engine) reject(reason string) {
	if e.metrics != nil {
		e.metrics.RecordRejected(reason)
	}
	e.statusMu.Lock()
	e.status.TransitionsRejected++
	e.statusMu.Unlock()
}

// warnf logs at warn level through a rate limiter so a misbehaving feed
// cannot flood the log. Suppressed lines are counted and reported with the
// next one that passes.
func (e *Engine) warnf(msg string, fields ...logger.Field) {
	e.warnMu.Lock()
	defer e.warnMu.Unlock()
	if !e.warn.Allow() {
		e.muted++
		return
	}
	if e.muted > 0 {
		fields = append(fields, logger.Int("suppressed", e.muted))
		e.muted = 0
	}
	GetLogger().Warn(msg, fields...)
}

// GetLogger returns the counting module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("counting")
}
