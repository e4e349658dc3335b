package integration

import (
	"context"
	"errors"
	"fmt"

	"ringbridge/internal/entry"
	"ringbridge/internal/ring"

	"go.uber.org/zap"
)

// ErrAlreadyConfigured aborts a flow for an account that already has an entry
var ErrAlreadyConfigured = errors.New("integration: account already configured")

// Flow steps
const (
	StepUser = "user"
	Step2FA  = "2fa"
)

// Flow error keys
const (
	ErrorInvalidAuth   = "invalid_auth"
	ErrorCannotConnect = "cannot_connect"
	ErrorUnknown       = "unknown"
)

// FlowResult is the outcome of one submission. Entry is set once the entry
// has been created; otherwise Step names the form to show next.
type FlowResult struct {
	Step   string
	Errors map[string]string
	Entry  *entry.ConfigEntry
}

// Created reports whether the flow finished with a new entry
func (r *FlowResult) Created() bool {
	return r != nil && r.Entry != nil
}

// ConfigFlow turns user credentials into a Ring config entry
type ConfigFlow struct {
	auth    ring.Authenticator
	manager *entry.Manager
	logger  *zap.Logger
}

// NewConfigFlow creates a config flow
func NewConfigFlow(auth ring.Authenticator, manager *entry.Manager, logger *zap.Logger) *ConfigFlow {
	return &ConfigFlow{
		auth:    auth,
		manager: manager,
		logger:  logger.Named("flow"),
	}
}

// Submit handles the user step, or the 2fa step when otp is set
func (f *ConfigFlow) Submit(ctx context.Context, username, password, otp string) (*FlowResult, error) {
	for _, existing := range f.manager.Entries(Domain) {
		if existing.UniqueID == username {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyConfigured, username)
		}
	}

	step := StepUser
	if otp != "" {
		step = Step2FA
	}

	token, err := f.auth.FetchToken(ctx, username, password, otp)
	switch {
	case err == nil:
	case errors.Is(err, ring.ErrTwoFactorRequired):
		f.logger.Info("Two-factor code required", zap.String("username", username))
		return &FlowResult{Step: Step2FA}, nil
	case errors.Is(err, ring.ErrAuthentication):
		return &FlowResult{Step: step, Errors: map[string]string{"base": ErrorInvalidAuth}}, nil
	case errors.Is(err, ring.ErrTransient):
		return &FlowResult{Step: step, Errors: map[string]string{"base": ErrorCannotConnect}}, nil
	default:
		f.logger.Error("Unexpected error during login", zap.Error(err))
		return &FlowResult{Step: step, Errors: map[string]string{"base": ErrorUnknown}}, nil
	}

	created, err := f.manager.Add(entry.ConfigEntry{
		Domain:   Domain,
		Title:    EntryTitle,
		UniqueID: username,
		Data: entry.Data{
			Username: username,
			Token:    token,
		},
	})
	if errors.Is(err, entry.ErrDuplicateUniqueID) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyConfigured, username)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create entry: %w", err)
	}

	f.logger.Info("Created Ring entry",
		zap.String("entry_id", created.EntryID),
		zap.String("username", username))
	return &FlowResult{Entry: &created}, nil
}
