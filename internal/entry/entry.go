// Package entry models config entries: one configured account of an
// integration, its persisted data, and its setup lifecycle.
package entry

import (
	"errors"

	"ringbridge/internal/ring"
)

// State is the lifecycle state of a config entry
type State string

const (
	StateNotLoaded  State = "not_loaded"
	StateLoaded     State = "loaded"
	StateSetupError State = "setup_error"
	StateSetupRetry State = "setup_retry"
)

var (
	// ErrNotReady marks a setup failure that is expected to clear on its own.
	// Setup functions wrap it to put the entry into StateSetupRetry.
	ErrNotReady = errors.New("entry: not ready")

	// ErrUnknownEntry is returned for entry ids the manager does not hold
	ErrUnknownEntry = errors.New("entry: unknown entry")

	// ErrUnknownDomain is returned when no handler is registered for a domain
	ErrUnknownDomain = errors.New("entry: no handler registered for domain")

	// ErrDuplicateUniqueID is returned when a domain already has an entry
	// with the same unique id
	ErrDuplicateUniqueID = errors.New("entry: unique id already configured")
)

// Data is the persisted payload of a Ring config entry
type Data struct {
	Username string      `yaml:"username" json:"username"`
	Token    *ring.Token `yaml:"token,omitempty" json:"token,omitempty"`
}

// ConfigEntry is one configured account
type ConfigEntry struct {
	EntryID  string `yaml:"entry_id" json:"entry_id"`
	Domain   string `yaml:"domain" json:"domain"`
	Title    string `yaml:"title" json:"title"`
	Data     Data   `yaml:"data" json:"data"`
	UniqueID string `yaml:"unique_id,omitempty" json:"unique_id,omitempty"`

	// State and Reason describe the last setup attempt and are not persisted
	State  State  `yaml:"-" json:"state"`
	Reason string `yaml:"-" json:"reason,omitempty"`
}

// clone returns a deep copy so callers never share the token pointer
func (e ConfigEntry) clone() ConfigEntry {
	if e.Data.Token != nil {
		token := *e.Data.Token
		e.Data.Token = &token
	}
	return e
}
