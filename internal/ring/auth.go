package ring

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"ringbridge/internal/clock"

	"go.uber.org/zap"
)

// TokenUpdater is called with the new token after every fetch or refresh
type TokenUpdater func(token *Token)

// Authenticator exchanges credentials for a token
type Authenticator interface {
	FetchToken(ctx context.Context, username, password, otp string) (*Token, error)
}

// TokenSource hands out the current bearer token
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Auth talks to oauth.ring.com. It holds the only mutable state shared by
// the client: the token, written here and read by every API call.
type Auth struct {
	transport Transport
	endpoints Endpoints
	logger    *zap.Logger
	clock     clock.Clock
	updater   TokenUpdater

	mu    sync.RWMutex
	token *Token
}

// NewAuth creates an authenticator. token may be nil when credentials will
// be exchanged with FetchToken.
func NewAuth(transport Transport, token *Token, logger *zap.Logger) *Auth {
	return &Auth{
		transport: transport,
		endpoints: DefaultEndpoints(),
		logger:    logger.Named("ring.auth"),
		clock:     clock.NewRealClock(),
		token:     token,
	}
}

// SetEndpoints overrides the Ring hosts
func (a *Auth) SetEndpoints(endpoints Endpoints) {
	a.endpoints = endpoints.withDefaults()
}

// SetClock sets the clock implementation (useful for testing)
func (a *Auth) SetClock(c clock.Clock) {
	a.clock = c
}

// SetTokenUpdater registers the callback notified of new tokens
func (a *Auth) SetTokenUpdater(updater TokenUpdater) {
	a.updater = updater
}

// Token returns a copy of the current token, or nil
func (a *Auth) Token() *Token {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.token == nil {
		return nil
	}
	token := *a.token
	return &token
}

// FetchToken exchanges username and password (and an optional 2FA code) for
// a token. A single round trip either succeeds or fails; nothing is retried.
func (a *Auth) FetchToken(ctx context.Context, username, password, otp string) (*Token, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrAuthentication)
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", username)
	form.Set("password", password)

	headers := map[string]string{header2FA: "true"}
	if otp != "" {
		headers[header2FACode] = otp
	}

	token, err := a.requestToken(ctx, form, headers)
	if err != nil {
		return nil, err
	}

	a.logger.Info("Fetched Ring token", zap.String("username", username))
	return token, nil
}

// RefreshToken exchanges the refresh token for a new access token
func (a *Auth) RefreshToken(ctx context.Context) (*Token, error) {
	current := a.Token()
	if current == nil || current.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token available", ErrAuthentication)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", current.RefreshToken)

	token, err := a.requestToken(ctx, form, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	a.logger.Info("Refreshed Ring token")
	return token, nil
}

// AccessToken returns the bearer token, refreshing it first when it has
// expired according to the clock
func (a *Auth) AccessToken(ctx context.Context) (string, error) {
	current := a.Token()
	if current == nil || current.AccessToken == "" {
		return "", fmt.Errorf("%w: not authenticated", ErrAuthentication)
	}

	if !current.Expired(a.clock.Now()) {
		return current.AccessToken, nil
	}

	a.logger.Debug("Access token expired, refreshing",
		zap.Time("expires_at", current.ExpiresAt))

	refreshed, err := a.RefreshToken(ctx)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// requestToken posts the grant to the OAuth endpoint and stores the result
func (a *Auth) requestToken(ctx context.Context, form url.Values, extra map[string]string) (*Token, error) {
	form.Set("client_id", clientID)
	form.Set("scope", oauthScope)

	headers := map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
		"Accept":       "application/json",
		"User-Agent":   userAgent,
	}
	for key, value := range extra {
		headers[key] = value
	}

	_, body, err := roundTrip(ctx, a.transport, a.logger, request{
		method:  http.MethodPost,
		url:     a.endpoints.withDefaults().OAuthURL + pathOAuthToken,
		body:    strings.NewReader(form.Encode()),
		headers: headers,
	})
	if err != nil {
		return nil, oauthError(err)
	}

	var token Token
	if err := decode(body, &token); err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response has no access_token", ErrUnexpectedResponse)
	}
	if token.ExpiresIn > 0 {
		token.ExpiresAt = a.clock.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	}

	a.mu.Lock()
	a.token = &token
	a.mu.Unlock()

	if a.updater != nil {
		stored := token
		a.updater(&stored)
	}

	result := token
	return &result, nil
}

// oauthError maps OAuth failures. The OAuth host answers 400 for a bad
// grant, which the API hosts never do.
func oauthError(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest {
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	return err
}
