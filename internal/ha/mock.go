package ha

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockClient implements HAClient for testing. Service calls update an
// in-memory entity state so tests can assert on the result.
type MockClient struct {
	connMu    sync.RWMutex
	connected bool
	failWith  error

	statesMu sync.RWMutex
	states   map[string]string

	callsMu      sync.Mutex
	serviceCalls []ServiceCall
	events       []FiredEvent
}

// ServiceCall records a service call for testing
type ServiceCall struct {
	Domain  string
	Service string
	Data    map[string]any
	Time    time.Time
}

// FiredEvent records a fire_event request for testing
type FiredEvent struct {
	EventType string
	Data      map[string]any
	Time      time.Time
}

// NewMockClient creates a new mock HA client
func NewMockClient() *MockClient {
	return &MockClient{
		states: make(map[string]string),
	}
}

// Connect simulates connecting to Home Assistant
func (m *MockClient) Connect() error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}
	m.connected = true
	return nil
}

// Disconnect simulates disconnecting
func (m *MockClient) Disconnect() error {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	m.connected = false
	return nil
}

// IsConnected returns the simulated connection state
func (m *MockClient) IsConnected() bool {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	return m.connected
}

// FailWith makes every request return err. Pass nil to recover.
func (m *MockClient) FailWith(err error) {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	m.failWith = err
}

func (m *MockClient) failure() error {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	return m.failWith
}

// CallService records a service call and applies it to the mock state
func (m *MockClient) CallService(ctx context.Context, domain, service string, data map[string]any) error {
	if err := m.failure(); err != nil {
		return err
	}

	m.callsMu.Lock()
	m.serviceCalls = append(m.serviceCalls, ServiceCall{
		Domain:  domain,
		Service: service,
		Data:    data,
		Time:    time.Now(),
	})
	m.callsMu.Unlock()

	entityID, ok := data["entity_id"].(string)
	if !ok {
		return nil
	}

	m.statesMu.Lock()
	defer m.statesMu.Unlock()
	switch service {
	case "turn_on":
		m.states[entityID] = "on"
	case "turn_off":
		m.states[entityID] = "off"
	case "set_value":
		m.states[entityID] = fmt.Sprint(data["value"])
	}
	return nil
}

// FireEvent records the event
func (m *MockClient) FireEvent(ctx context.Context, eventType string, data map[string]any) error {
	if err := m.failure(); err != nil {
		return err
	}

	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	m.events = append(m.events, FiredEvent{EventType: eventType, Data: data, Time: time.Now()})
	return nil
}

// SetInputBoolean sets an input_boolean through CallService
func (m *MockClient) SetInputBoolean(ctx context.Context, name string, value bool) error {
	service := "turn_off"
	if value {
		service = "turn_on"
	}
	return m.CallService(ctx, "input_boolean", service, map[string]any{
		"entity_id": "input_boolean." + name,
	})
}

// SetInputText sets an input_text through CallService
func (m *MockClient) SetInputText(ctx context.Context, name string, value string) error {
	return m.CallService(ctx, "input_text", "set_value", map[string]any{
		"entity_id": "input_text." + name,
		"value":     value,
	})
}

// GetState returns the mock state of an entity
func (m *MockClient) GetState(entityID string) (string, bool) {
	m.statesMu.RLock()
	defer m.statesMu.RUnlock()
	state, ok := m.states[entityID]
	return state, ok
}

// GetServiceCalls returns all recorded service calls
func (m *MockClient) GetServiceCalls() []ServiceCall {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()

	calls := make([]ServiceCall, len(m.serviceCalls))
	copy(calls, m.serviceCalls)
	return calls
}

// GetEvents returns all fired events
func (m *MockClient) GetEvents() []FiredEvent {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()

	events := make([]FiredEvent, len(m.events))
	copy(events, m.events)
	return events
}

// ClearServiceCalls clears the recorded calls and events
func (m *MockClient) ClearServiceCalls() {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	m.serviceCalls = nil
	m.events = nil
}

var (
	_ HAClient = (*Client)(nil)
	_ HAClient = (*MockClient)(nil)
)
