package entry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SetupFunc sets up an entry. Returning an error wrapping ErrNotReady
// leaves the entry in StateSetupRetry, any other error in StateSetupError.
type SetupFunc func(ctx context.Context, entry ConfigEntry) error

// UnloadFunc releases whatever SetupFunc created for the entry
type UnloadFunc func(ctx context.Context, entry ConfigEntry) error

type handler struct {
	setup  SetupFunc
	unload UnloadFunc
}

// Manager owns the config entries and drives their lifecycle
type Manager struct {
	logger *zap.Logger
	store  *Store

	persistMu sync.Mutex

	mu       sync.RWMutex
	handlers map[string]handler
	entries  map[string]*ConfigEntry
	order    []string
}

// NewManager creates a manager. store may be nil to keep entries in memory.
func NewManager(store *Store, logger *zap.Logger) *Manager {
	return &Manager{
		logger:   logger.Named("entry"),
		store:    store,
		handlers: make(map[string]handler),
		entries:  make(map[string]*ConfigEntry),
	}
}

// Register installs the setup and unload functions of a domain
func (m *Manager) Register(domain string, setup SetupFunc, unload UnloadFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[domain] = handler{setup: setup, unload: unload}
}

// Load reads the persisted entries. Entries already held are kept.
func (m *Manager) Load() error {
	if m.store == nil {
		return nil
	}

	entries, err := m.store.Load()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if _, exists := m.entries[e.EntryID]; exists {
			continue
		}
		stored := e.clone()
		m.entries[e.EntryID] = &stored
		m.order = append(m.order, e.EntryID)
	}

	m.logger.Info("Loaded config entries", zap.Int("count", len(entries)))
	return nil
}

// Add stores a new entry in StateNotLoaded and returns it with its EntryID
// assigned. A domain holds at most one entry per unique id.
func (m *Manager) Add(e ConfigEntry) (ConfigEntry, error) {
	if e.Domain == "" {
		return ConfigEntry{}, fmt.Errorf("config entry has no domain")
	}

	m.mu.Lock()
	if e.UniqueID != "" {
		for _, existing := range m.entries {
			if existing.Domain == e.Domain && existing.UniqueID == e.UniqueID {
				m.mu.Unlock()
				return ConfigEntry{}, fmt.Errorf("%w: %s/%s", ErrDuplicateUniqueID, e.Domain, e.UniqueID)
			}
		}
	}

	if e.EntryID == "" {
		e.EntryID = uuid.NewString()
	}
	if _, exists := m.entries[e.EntryID]; exists {
		m.mu.Unlock()
		return ConfigEntry{}, fmt.Errorf("config entry %s already exists", e.EntryID)
	}

	e.State = StateNotLoaded
	e.Reason = ""
	stored := e.clone()
	m.entries[e.EntryID] = &stored
	m.order = append(m.order, e.EntryID)
	m.mu.Unlock()

	m.logger.Info("Added config entry",
		zap.String("entry_id", e.EntryID),
		zap.String("domain", e.Domain),
		zap.String("title", e.Title))

	if err := m.persist(); err != nil {
		return ConfigEntry{}, err
	}
	return e.clone(), nil
}

// Get returns a copy of an entry
func (m *Manager) Get(entryID string) (ConfigEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[entryID]
	if !ok {
		return ConfigEntry{}, false
	}
	return e.clone(), true
}

// Entries returns the entries of a domain in insertion order. An empty
// domain returns every entry.
func (m *Manager) Entries(domain string) []ConfigEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ConfigEntry
	for _, id := range m.order {
		e := m.entries[id]
		if domain == "" || e.Domain == domain {
			result = append(result, e.clone())
		}
	}
	return result
}

// Domains returns the sorted domains that have at least one loaded entry
func (m *Manager) Domains() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	for _, e := range m.entries {
		if e.State == StateLoaded {
			seen[e.Domain] = true
		}
	}

	domains := make([]string, 0, len(seen))
	for domain := range seen {
		domains = append(domains, domain)
	}
	sort.Strings(domains)
	return domains
}

// Setup runs the domain's setup function for an entry. The resulting state
// is recorded on the entry; the setup error is returned as well.
func (m *Manager) Setup(ctx context.Context, entryID string) error {
	e, h, err := m.lookup(entryID)
	if err != nil {
		return err
	}
	if e.State == StateLoaded {
		return nil
	}

	// The lock is not held while the handler runs: setup may call UpdateData
	setupErr := h.setup(ctx, e)

	state := StateLoaded
	reason := ""
	switch {
	case setupErr == nil:
	case errors.Is(setupErr, ErrNotReady):
		state = StateSetupRetry
		reason = setupErr.Error()
	default:
		state = StateSetupError
		reason = setupErr.Error()
	}
	m.setState(entryID, state, reason)

	if setupErr != nil {
		m.logger.Warn("Config entry setup failed",
			zap.String("entry_id", entryID),
			zap.String("domain", e.Domain),
			zap.String("state", string(state)),
			zap.Error(setupErr))
		return fmt.Errorf("failed to set up entry %s: %w", entryID, setupErr)
	}

	m.logger.Info("Config entry loaded",
		zap.String("entry_id", entryID),
		zap.String("domain", e.Domain))
	return nil
}

// SetupAll sets up every entry that is not loaded and returns the first error
func (m *Manager) SetupAll(ctx context.Context) error {
	var first error
	for _, e := range m.Entries("") {
		if e.State == StateLoaded {
			continue
		}
		if err := m.Setup(ctx, e.EntryID); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Unload runs the domain's unload function and returns the entry to
// StateNotLoaded. Entries that are not loaded are left alone.
func (m *Manager) Unload(ctx context.Context, entryID string) error {
	e, h, err := m.lookup(entryID)
	if err != nil {
		return err
	}
	if e.State != StateLoaded {
		m.setState(entryID, StateNotLoaded, "")
		return nil
	}

	if h.unload != nil {
		if err := h.unload(ctx, e); err != nil {
			return fmt.Errorf("failed to unload entry %s: %w", entryID, err)
		}
	}

	m.setState(entryID, StateNotLoaded, "")
	m.logger.Info("Config entry unloaded", zap.String("entry_id", entryID))
	return nil
}

// Remove unloads and deletes an entry
func (m *Manager) Remove(ctx context.Context, entryID string) error {
	if err := m.Unload(ctx, entryID); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.entries, entryID)
	for i, id := range m.order {
		if id == entryID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	return m.persist()
}

// UpdateData mutates an entry's data and persists the result
func (m *Manager) UpdateData(entryID string, update func(*Data)) error {
	m.mu.Lock()
	e, ok := m.entries[entryID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownEntry, entryID)
	}
	update(&e.Data)
	m.mu.Unlock()

	return m.persist()
}

func (m *Manager) lookup(entryID string) (ConfigEntry, handler, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[entryID]
	if !ok {
		return ConfigEntry{}, handler{}, fmt.Errorf("%w: %s", ErrUnknownEntry, entryID)
	}
	h, ok := m.handlers[e.Domain]
	if !ok {
		return ConfigEntry{}, handler{}, fmt.Errorf("%w: %s", ErrUnknownDomain, e.Domain)
	}
	return e.clone(), h, nil
}

func (m *Manager) setState(entryID string, state State, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[entryID]; ok {
		e.State = state
		e.Reason = reason
	}
}

func (m *Manager) persist() error {
	if m.store == nil {
		return nil
	}

	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	entries := m.Entries("")
	if err := m.store.Save(entries); err != nil {
		m.logger.Error("Failed to persist config entries", zap.Error(err))
		return err
	}
	return nil
}
