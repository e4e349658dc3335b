// Package integration sets up Ring config entries: it turns stored
// credentials into an authenticated client, a session and a device index.
package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ringbridge/internal/clock"
	"ringbridge/internal/entry"
	"ringbridge/internal/ring"

	"go.uber.org/zap"
)

// Domain and title of Ring config entries
const (
	Domain     = "ring"
	EntryTitle = "Ring"
)

// Runtime is what a loaded entry holds on to
type Runtime struct {
	EntryID  string
	Username string
	Auth     *ring.Auth
	Client   ring.RingAPI
	Session  *ring.Session

	mu      sync.RWMutex
	devices *ring.DeviceIndex
}

// NewRuntime creates a runtime around an already authenticated client
func NewRuntime(entryID string, client ring.RingAPI, devices *ring.DeviceIndex) *Runtime {
	return &Runtime{
		EntryID: entryID,
		Client:  client,
		devices: devices,
	}
}

// Devices returns the current device index
func (r *Runtime) Devices() *ring.DeviceIndex {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.devices
}

// ActiveDings returns the account's active dings
func (r *Runtime) ActiveDings(ctx context.Context) ([]ring.Ding, error) {
	return r.Client.ActiveDings(ctx)
}

// RefreshDevices lists the devices again and swaps in a new index
func (r *Runtime) RefreshDevices(ctx context.Context) error {
	list, err := r.Client.Devices(ctx)
	if err != nil {
		return err
	}

	index, err := ring.NewDeviceIndex(list.All())
	if err != nil {
		return fmt.Errorf("failed to index devices: %w", err)
	}

	r.mu.Lock()
	r.devices = index
	r.mu.Unlock()
	return nil
}

// Integration implements setup and unload of Ring entries
type Integration struct {
	manager    *entry.Manager
	transport  ring.Transport
	endpoints  ring.Endpoints
	hardwareID string
	clock      clock.Clock
	logger     *zap.Logger

	mu       sync.RWMutex
	runtimes map[string]*Runtime
}

// New creates the integration. Call Register to attach it to the manager.
func New(manager *entry.Manager, transport ring.Transport, hardwareID string, logger *zap.Logger) *Integration {
	return &Integration{
		manager:    manager,
		transport:  transport,
		endpoints:  ring.DefaultEndpoints(),
		hardwareID: hardwareID,
		clock:      clock.NewRealClock(),
		logger:     logger.Named("integration"),
		runtimes:   make(map[string]*Runtime),
	}
}

// SetEndpoints overrides the Ring hosts
func (i *Integration) SetEndpoints(endpoints ring.Endpoints) {
	i.endpoints = endpoints
}

// SetClock sets the clock implementation (useful for testing)
func (i *Integration) SetClock(c clock.Clock) {
	i.clock = c
}

// Register attaches the integration to the entry manager
func (i *Integration) Register() {
	i.manager.Register(Domain, i.SetupEntry, i.UnloadEntry)
}

// NewAuth creates an authenticator pointed at the configured endpoints
func (i *Integration) NewAuth(token *ring.Token) *ring.Auth {
	auth := ring.NewAuth(i.transport, token, i.logger)
	auth.SetEndpoints(i.endpoints)
	auth.SetClock(i.clock)
	return auth
}

// SetupEntry authenticates with the entry's token, creates a session and
// indexes the account's devices. Refreshed tokens are written back into
// the entry.
func (i *Integration) SetupEntry(ctx context.Context, e entry.ConfigEntry) error {
	if e.Data.Token == nil || e.Data.Token.AccessToken == "" {
		return fmt.Errorf("%w: entry has no token", ring.ErrAuthentication)
	}

	auth := i.NewAuth(e.Data.Token)
	auth.SetTokenUpdater(func(token *ring.Token) {
		err := i.manager.UpdateData(e.EntryID, func(d *entry.Data) {
			d.Token = token
		})
		if err != nil {
			i.logger.Error("Failed to store refreshed token",
				zap.String("entry_id", e.EntryID),
				zap.Error(err))
		}
	})

	client := ring.NewClient(i.transport, auth, i.hardwareID, i.logger)
	client.SetEndpoints(i.endpoints)

	session, err := client.CreateSession(ctx)
	if err != nil {
		return setupError(err)
	}

	runtime := NewRuntime(e.EntryID, client, nil)
	runtime.Username = e.Data.Username
	runtime.Auth = auth
	runtime.Session = session

	if err := runtime.RefreshDevices(ctx); err != nil {
		return setupError(err)
	}

	i.mu.Lock()
	i.runtimes[e.EntryID] = runtime
	i.mu.Unlock()

	i.logger.Info("Ring entry set up",
		zap.String("entry_id", e.EntryID),
		zap.String("username", e.Data.Username),
		zap.Int("devices", runtime.Devices().Len()))
	return nil
}

// UnloadEntry drops the entry's runtime
func (i *Integration) UnloadEntry(ctx context.Context, e entry.ConfigEntry) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	delete(i.runtimes, e.EntryID)
	return nil
}

// Runtime returns the runtime of a loaded entry
func (i *Integration) Runtime(entryID string) (*Runtime, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	runtime, ok := i.runtimes[entryID]
	return runtime, ok
}

// Runtimes returns every loaded runtime ordered by entry id
func (i *Integration) Runtimes() []*Runtime {
	i.mu.RLock()
	defer i.mu.RUnlock()

	runtimes := make([]*Runtime, 0, len(i.runtimes))
	for _, runtime := range i.runtimes {
		runtimes = append(runtimes, runtime)
	}
	sort.Slice(runtimes, func(a, b int) bool {
		return runtimes[a].EntryID < runtimes[b].EntryID
	})
	return runtimes
}

// setupError marks transient failures so the entry is retried
func setupError(err error) error {
	if ring.IsTransient(err) {
		return fmt.Errorf("%w: %w", entry.ErrNotReady, err)
	}
	return err
}
