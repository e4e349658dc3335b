package ring

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockClient implements RingAPI in memory for testing
type MockClient struct {
	mu       sync.RWMutex
	devices  DeviceList
	dings    []Ding
	history  map[DeviceID][]HistoryEntry
	health   map[DeviceID]*Health
	groups   map[string][]Group
	failWith error

	callsMu sync.Mutex
	calls   []MockCall
}

// MockCall records a call made to the MockClient
type MockCall struct {
	Method string
	ID     DeviceID
	Args   map[string]any
	Time   time.Time
}

// NewMockClient creates an empty mock Ring client
func NewMockClient() *MockClient {
	return &MockClient{
		history: make(map[DeviceID][]HistoryEntry),
		health:  make(map[DeviceID]*Health),
		groups:  make(map[string][]Group),
	}
}

// SetDevices replaces the device list
func (m *MockClient) SetDevices(list DeviceList) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices = list
}

// SetActiveDings replaces the active ding snapshot
func (m *MockClient) SetActiveDings(dings []Ding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dings = append([]Ding(nil), dings...)
}

// SetHistory sets the history of a device
func (m *MockClient) SetHistory(id DeviceID, entries []HistoryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[id] = entries
}

// SetHealth sets the health of a device
func (m *MockClient) SetHealth(id DeviceID, health *Health) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.health[id] = health
}

// SetGroups sets the groups of a location
func (m *MockClient) SetGroups(locationID string, groups []Group) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[locationID] = groups
}

// FailWith makes every subsequent call return err. Pass nil to recover.
func (m *MockClient) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// GetCalls returns all recorded calls
func (m *MockClient) GetCalls() []MockCall {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()

	calls := make([]MockCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// ClearCalls clears the call history
func (m *MockClient) ClearCalls() {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	m.calls = nil
}

func (m *MockClient) record(method string, id DeviceID, args map[string]any) error {
	m.callsMu.Lock()
	m.calls = append(m.calls, MockCall{
		Method: method,
		ID:     id,
		Args:   args,
		Time:   time.Now(),
	})
	m.callsMu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failWith
}

func (m *MockClient) knownDevice(id DeviceID) bool {
	for _, device := range m.devices.All() {
		if device.ID == id {
			return true
		}
	}
	return false
}

// CreateSession returns a fixed profile
func (m *MockClient) CreateSession(ctx context.Context) (*Session, error) {
	if err := m.record("CreateSession", 0, nil); err != nil {
		return nil, err
	}
	return &Session{Profile: Profile{ID: 1, Email: "foo@bar.com"}}, nil
}

// Devices returns the configured device list
func (m *MockClient) Devices(ctx context.Context) (*DeviceList, error) {
	if err := m.record("Devices", 0, nil); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.devices
	return &list, nil
}

// ActiveDings returns the configured ding snapshot
func (m *MockClient) ActiveDings(ctx context.Context) ([]Ding, error) {
	if err := m.record("ActiveDings", 0, nil); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Ding(nil), m.dings...), nil
}

// Health returns the configured health or ErrNotFound
func (m *MockClient) Health(ctx context.Context, device Device) (*Health, error) {
	if err := m.record("Health", device.ID, nil); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	health, ok := m.health[device.ID]
	if !ok {
		return nil, fmt.Errorf("%w: health for device %s", ErrNotFound, device.ID)
	}
	return health, nil
}

// History returns the configured history or ErrNotFound
func (m *MockClient) History(ctx context.Context, id DeviceID, opts HistoryOptions) ([]HistoryEntry, error) {
	if err := m.record("History", id, map[string]any{"limit": opts.Limit}); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries, ok := m.history[id]
	if !ok {
		return nil, fmt.Errorf("%w: history for device %s", ErrNotFound, id)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var result []HistoryEntry
	for _, entry := range entries {
		if opts.Kind != "" && entry.Kind != opts.Kind {
			continue
		}
		result = append(result, entry)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

// RecordingURL returns a local URL for any ding
func (m *MockClient) RecordingURL(ctx context.Context, dingID int64) (string, error) {
	if err := m.record("RecordingURL", 0, map[string]any{"ding_id": dingID}); err != nil {
		return "", err
	}
	return "http://127.0.0.1/foo", nil
}

// Groups returns the configured groups of a location
func (m *MockClient) Groups(ctx context.Context, locationID string) ([]Group, error) {
	if err := m.record("Groups", 0, map[string]any{"location_id": locationID}); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.groups[locationID], nil
}

// UpdateSettings acknowledges with "ok" for known devices
func (m *MockClient) UpdateSettings(ctx context.Context, id DeviceID, settings DeviceSettings) (string, error) {
	if err := m.record("UpdateSettings", id, map[string]any{"settings": settings}); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.knownDevice(id) {
		return "", fmt.Errorf("%w: device %s", ErrNotFound, id)
	}
	return "ok", nil
}

// SetMotionDetection records the toggle
func (m *MockClient) SetMotionDetection(ctx context.Context, id DeviceID, enabled bool) error {
	_, err := m.UpdateSettings(ctx, id, DeviceSettings{
		MotionSettings: &MotionSettings{MotionDetectionEnabled: &enabled},
	})
	return err
}

// DeviceRPC records the command for known devices
func (m *MockClient) DeviceRPC(ctx context.Context, id DeviceID, method string, params map[string]any) error {
	if err := m.record("DeviceRPC", id, map[string]any{"method": method, "params": params}); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.knownDevice(id) {
		return fmt.Errorf("%w: device %s", ErrNotFound, id)
	}
	return nil
}

// OpenDoor records an unlock_door command
func (m *MockClient) OpenDoor(ctx context.Context, id DeviceID) error {
	return m.DeviceRPC(ctx, id, RPCMethodUnlockDoor, map[string]any{"door_id": 0, "user_id": 0})
}

// SetFloodlight records the floodlight switch
func (m *MockClient) SetFloodlight(ctx context.Context, id DeviceID, on bool) error {
	return m.record("SetFloodlight", id, map[string]any{"on": on})
}

// SetSiren records the siren switch
func (m *MockClient) SetSiren(ctx context.Context, id DeviceID, on bool) error {
	return m.record("SetSiren", id, map[string]any{"on": on})
}

// TestSound records the chime test
func (m *MockClient) TestSound(ctx context.Context, chimeID DeviceID, kind string) error {
	return m.record("TestSound", chimeID, map[string]any{"kind": kind})
}

var (
	_ RingAPI = (*Client)(nil)
	_ RingAPI = (*MockClient)(nil)
)
