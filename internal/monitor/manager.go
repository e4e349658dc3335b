// Package monitor polls Ring for active dings and forwards new ones to the
// configured sinks.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"ringbridge/internal/clock"
	"ringbridge/internal/ring"

	"go.uber.org/zap"
)

const (
	// DefaultPollInterval is how often active dings are fetched
	DefaultPollInterval = 5 * time.Second

	// DingRateLimit is the minimum time between events for one device
	DingRateLimit = 20 * time.Second

	// maxRecent bounds the event history kept for the status API
	maxRecent = 50
)

// DingEvent is a new ding resolved to a device
type DingEvent struct {
	DingID     int64         `json:"ding_id"`
	UniqueID   ring.UniqueID `json:"unique_id"`
	DeviceName string        `json:"device_name"`
	Kind       string        `json:"kind"`
	At         time.Time     `json:"at"`
}

// Sink receives ding events
type Sink interface {
	Name() string
	PublishDing(ctx context.Context, event DingEvent) error
}

// Source provides active dings and the devices they belong to
type Source interface {
	ActiveDings(ctx context.Context) ([]ring.Ding, error)
	Devices() *ring.DeviceIndex
}

// Manager polls a Source and publishes each ding once
type Manager struct {
	source   Source
	sinks    []Sink
	logger   *zap.Logger
	readOnly bool
	clock    clock.Clock
	interval time.Duration

	mu           sync.Mutex
	seen         map[int64]bool
	lastNotified map[ring.UniqueID]time.Time
	recent       []DingEvent

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a ding monitor. In read-only mode events are logged
// and recorded but not sent to sinks.
func NewManager(source Source, sinks []Sink, logger *zap.Logger, readOnly bool) *Manager {
	return &Manager{
		source:       source,
		sinks:        sinks,
		logger:       logger.Named("monitor"),
		readOnly:     readOnly,
		clock:        clock.NewRealClock(),
		interval:     DefaultPollInterval,
		seen:         make(map[int64]bool),
		lastNotified: make(map[ring.UniqueID]time.Time),
	}
}

// SetClock sets the clock implementation (useful for testing)
func (m *Manager) SetClock(c clock.Clock) {
	m.clock = c
}

// SetInterval sets the poll interval
func (m *Manager) SetInterval(d time.Duration) {
	if d > 0 {
		m.interval = d
	}
}

// Start begins polling in the background
func (m *Manager) Start() error {
	if m.cancel != nil {
		return errors.New("monitor already started")
	}

	m.logger.Info("Starting ding monitor",
		zap.Duration("interval", m.interval),
		zap.Int("sinks", len(m.sinks)),
		zap.Bool("read_only", m.readOnly))

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.run(ctx)
	return nil
}

// Stop ends polling and waits for the poll loop to exit
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}

	m.logger.Info("Stopping ding monitor")
	m.cancel()
	<-m.done
	m.cancel = nil
	m.logger.Info("Ding monitor stopped")
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	for {
		if _, err := m.Poll(ctx); err != nil && ctx.Err() == nil {
			m.logger.Warn("Failed to poll active dings", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-m.clock.After(m.interval):
		}
	}
}

// Poll fetches the active dings once and publishes the ones not seen
// before. It returns the events created by this poll.
func (m *Manager) Poll(ctx context.Context) ([]DingEvent, error) {
	dings, err := m.source.ActiveDings(ctx)
	if err != nil {
		return nil, err
	}

	devices := m.source.Devices()
	now := m.clock.Now()

	var events []DingEvent
	m.mu.Lock()
	active := make(map[int64]bool, len(dings))
	for _, ding := range dings {
		active[ding.ID] = true
		if m.seen[ding.ID] {
			continue
		}
		m.seen[ding.ID] = true
		events = append(events, m.resolve(devices, ding, now)...)
	}

	// Dings leave the snapshot when they expire; forget them so the set
	// does not grow forever
	for id := range m.seen {
		if !active[id] {
			delete(m.seen, id)
		}
	}

	for _, event := range events {
		m.recent = append([]DingEvent{event}, m.recent...)
	}
	if len(m.recent) > maxRecent {
		m.recent = m.recent[:maxRecent]
	}
	m.mu.Unlock()

	for _, event := range events {
		m.publish(ctx, event)
	}
	return events, nil
}

// resolve maps a ding onto its devices, applying the per-device rate
// limit. Must be called with mu held.
func (m *Manager) resolve(devices *ring.DeviceIndex, ding ring.Ding, now time.Time) []DingEvent {
	if devices == nil {
		m.logger.Warn("Ding received before devices were indexed", zap.Int64("ding_id", ding.ID))
		return nil
	}

	matches := devices.ForDing(ding)
	if len(matches) == 0 {
		m.logger.Warn("Ding for unknown device",
			zap.Int64("ding_id", ding.ID),
			zap.Stringer("doorbot_id", ding.DoorbotID),
			zap.String("description", ding.DoorbotDescription))
		return nil
	}

	var events []DingEvent
	for _, device := range matches {
		unique := device.UniqueID()
		if last, ok := m.lastNotified[unique]; ok && now.Sub(last) < DingRateLimit {
			m.logger.Info("Ding rate limited",
				zap.String("unique_id", string(unique)),
				zap.Int64("ding_id", ding.ID))
			continue
		}
		m.lastNotified[unique] = now

		events = append(events, DingEvent{
			DingID:     ding.ID,
			UniqueID:   unique,
			DeviceName: device.Description,
			Kind:       ding.Kind,
			At:         now,
		})
	}
	return events
}

func (m *Manager) publish(ctx context.Context, event DingEvent) {
	m.logger.Info("New ding",
		zap.Int64("ding_id", event.DingID),
		zap.String("unique_id", string(event.UniqueID)),
		zap.String("device", event.DeviceName),
		zap.String("kind", event.Kind))

	if m.readOnly {
		m.logger.Info("READ-ONLY: Would publish ding", zap.Int64("ding_id", event.DingID))
		return
	}

	for _, sink := range m.sinks {
		if err := sink.PublishDing(ctx, event); err != nil {
			m.logger.Error("Failed to publish ding",
				zap.String("sink", sink.Name()),
				zap.Int64("ding_id", event.DingID),
				zap.Error(err))
		}
	}
}

// Recent returns the latest events, newest first
func (m *Manager) Recent() []DingEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	recent := make([]DingEvent, len(m.recent))
	copy(recent, m.recent)
	return recent
}
