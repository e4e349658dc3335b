package testutil

import (
	"context"
	"testing"
	"time"

	"ringbridge/internal/clock"
	"ringbridge/internal/entry"
	"ringbridge/internal/integration"
	"ringbridge/internal/ring"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockHardwareID is the hardware id the test environment registers with
const MockHardwareID = "mock-hardware-id"

// TestEnv wires the mock Ring cloud into an entry manager and the Ring
// integration, the way the bridge wires the real cloud at startup
type TestEnv struct {
	API         *MockRingAPI
	Manager     *entry.Manager
	Integration *integration.Integration
	Clock       *clock.MockClock
	Logger      *zap.Logger
}

// NewTestEnv creates a test environment with in-memory entries
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	logger := zap.NewNop()
	api := NewMockRingAPI()
	manager := entry.NewManager(nil, logger)
	mockClock := clock.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	ringIntegration := integration.New(manager, api, MockHardwareID, logger)
	ringIntegration.SetClock(mockClock)
	ringIntegration.Register()

	return &TestEnv{
		API:         api,
		Manager:     manager,
		Integration: ringIntegration,
		Clock:       mockClock,
		Logger:      logger,
	}
}

// MockConfigEntry returns the standard Ring entry for foo@bar.com
func MockConfigEntry() entry.ConfigEntry {
	return entry.ConfigEntry{
		Domain:   integration.Domain,
		Title:    integration.EntryTitle,
		UniqueID: MockUsername,
		Data: entry.Data{
			Username: MockUsername,
			Token:    MockToken(),
		},
	}
}

// AddConfigEntry adds e (MockConfigEntry when nil) without setting it up
func (env *TestEnv) AddConfigEntry(t *testing.T, e *entry.ConfigEntry) entry.ConfigEntry {
	t.Helper()

	toAdd := MockConfigEntry()
	if e != nil {
		toAdd = *e
	}

	added, err := env.Manager.Add(toAdd)
	require.NoError(t, err)
	return added
}

// SetupConfigEntry adds the mock entry, sets it up and requires the ring
// domain to be loaded
func (env *TestEnv) SetupConfigEntry(t *testing.T) (entry.ConfigEntry, *integration.Runtime) {
	t.Helper()

	added := env.AddConfigEntry(t, nil)
	require.NoError(t, env.Manager.Setup(context.Background(), added.EntryID))
	require.Contains(t, env.Manager.Domains(), integration.Domain)

	runtime, ok := env.Integration.Runtime(added.EntryID)
	require.True(t, ok)

	loaded, _ := env.Manager.Get(added.EntryID)
	return loaded, runtime
}

// ExpiringToken returns a refreshable token that expires after d
func (env *TestEnv) ExpiringToken(d time.Duration) *ring.Token {
	return &ring.Token{
		AccessToken:  MockAccessToken,
		RefreshToken: MockRefreshToken,
		ExpiresAt:    env.Clock.Now().Add(d),
	}
}
