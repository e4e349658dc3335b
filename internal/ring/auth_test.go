package ring_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"ringbridge/internal/clock"
	"ringbridge/internal/ring"
	"ringbridge/pkg/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAuth_FetchToken(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	t.Run("valid credentials yield a token", func(t *testing.T) {
		api := testutil.NewMockRingAPI()
		start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		auth := ring.NewAuth(api, nil, logger)
		auth.SetClock(clock.NewMockClock(start))

		token, err := auth.FetchToken(ctx, testutil.MockUsername, "foobar", "")
		require.NoError(t, err)
		assert.NotEmpty(t, token.AccessToken)
		assert.Equal(t, testutil.MockAccessToken, token.AccessToken)
		assert.Equal(t, testutil.MockRefreshToken, token.RefreshToken)
		assert.Equal(t, start.Add(time.Hour), token.ExpiresAt)

		call := testutil.FindCall(api.GetCalls(), http.MethodPost, "/oauth/token")
		require.NotNil(t, call)
		assert.Equal(t, testutil.OAuthHost, call.Host)
		assert.Equal(t, "true", call.Header.Get("2fa-support"))
		assert.Empty(t, call.Header.Get("2fa-code"))
		assert.Contains(t, string(call.Body), "grant_type=password")
		assert.Contains(t, string(call.Body), "client_id=ring_official_android")
	})

	t.Run("missing password is rejected locally", func(t *testing.T) {
		api := testutil.NewMockRingAPI()
		auth := ring.NewAuth(api, nil, logger)

		_, err := auth.FetchToken(ctx, testutil.MockUsername, "", "")
		assert.ErrorIs(t, err, ring.ErrAuthentication)
		assert.Empty(t, api.GetCalls())
	})

	t.Run("wrong password", func(t *testing.T) {
		api := testutil.NewMockRingAPI()
		api.SetCredentials(testutil.MockUsername, "foobar")
		auth := ring.NewAuth(api, nil, logger)

		_, err := auth.FetchToken(ctx, testutil.MockUsername, "wrong", "")
		assert.ErrorIs(t, err, ring.ErrAuthentication)
		assert.Nil(t, auth.Token())

		var apiErr *ring.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	})

	t.Run("bad request from oauth host is an auth failure", func(t *testing.T) {
		api := testutil.NewMockRingAPI()
		api.Override(http.MethodPost, "/oauth/token", http.StatusBadRequest, `{"error":"invalid_grant"}`)
		auth := ring.NewAuth(api, nil, logger)

		_, err := auth.FetchToken(ctx, testutil.MockUsername, "foobar", "")
		assert.ErrorIs(t, err, ring.ErrAuthentication)
	})

	t.Run("two factor code required", func(t *testing.T) {
		api := testutil.NewMockRingAPI()
		api.RequireOTP("123456")
		auth := ring.NewAuth(api, nil, logger)

		_, err := auth.FetchToken(ctx, testutil.MockUsername, "foobar", "")
		assert.ErrorIs(t, err, ring.ErrTwoFactorRequired)

		token, err := auth.FetchToken(ctx, testutil.MockUsername, "foobar", "123456")
		require.NoError(t, err)
		assert.Equal(t, testutil.MockAccessToken, token.AccessToken)

		call := testutil.FindCall(api.GetCalls(), http.MethodPost, "/oauth/token")
		require.NotNil(t, call)
		assert.Equal(t, "123456", call.Header.Get("2fa-code"))
	})

	t.Run("connection failure is transient", func(t *testing.T) {
		api := testutil.NewMockRingAPI()
		api.FailTransport(errors.New("connection refused"))
		auth := ring.NewAuth(api, nil, logger)

		_, err := auth.FetchToken(ctx, testutil.MockUsername, "foobar", "")
		assert.ErrorIs(t, err, ring.ErrTransient)
		assert.True(t, ring.IsTransient(err))
	})

	t.Run("malformed token response", func(t *testing.T) {
		api := testutil.NewMockRingAPI()
		api.Override(http.MethodPost, "/oauth/token", http.StatusOK, `{"access_token":`)
		auth := ring.NewAuth(api, nil, logger)

		_, err := auth.FetchToken(ctx, testutil.MockUsername, "foobar", "")
		assert.ErrorIs(t, err, ring.ErrUnexpectedResponse)
	})
}

func TestAuth_AccessToken(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("not authenticated", func(t *testing.T) {
		auth := ring.NewAuth(testutil.NewMockRingAPI(), nil, logger)

		_, err := auth.AccessToken(ctx)
		assert.ErrorIs(t, err, ring.ErrAuthentication)
	})

	t.Run("existing token without expiry is used as-is", func(t *testing.T) {
		api := testutil.NewMockRingAPI()
		auth := ring.NewAuth(api, testutil.MockToken(), logger)

		token, err := auth.AccessToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "mock-token", token)
		assert.Empty(t, api.GetCalls())
	})

	t.Run("expired token is refreshed and the updater notified", func(t *testing.T) {
		api := testutil.NewMockRingAPI()
		mockClock := clock.NewMockClock(start)
		auth := ring.NewAuth(api, nil, logger)
		auth.SetClock(mockClock)

		var updates []*ring.Token
		auth.SetTokenUpdater(func(token *ring.Token) {
			updates = append(updates, token)
		})

		_, err := auth.FetchToken(ctx, testutil.MockUsername, "foobar", "")
		require.NoError(t, err)
		require.Len(t, updates, 1)

		token, err := auth.AccessToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, testutil.MockAccessToken, token)

		mockClock.Advance(2 * time.Hour)

		token, err = auth.AccessToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, testutil.MockAccessToken+"-refreshed-1", token)

		require.Len(t, updates, 2)
		assert.Equal(t, token, updates[1].AccessToken)
		assert.Equal(t, mockClock.Now().Add(time.Hour), updates[1].ExpiresAt)

		refreshCalls := api.CountCalls(http.MethodPost, "/oauth/token")
		assert.Equal(t, 2, refreshCalls)
		call := testutil.FindCall(api.GetCalls(), http.MethodPost, "/oauth/token")
		assert.Contains(t, string(call.Body), "grant_type=refresh_token")
	})

	t.Run("refresh without refresh token", func(t *testing.T) {
		auth := ring.NewAuth(testutil.NewMockRingAPI(), testutil.MockToken(), logger)

		_, err := auth.RefreshToken(ctx)
		assert.ErrorIs(t, err, ring.ErrAuthentication)
	})

	t.Run("rejected refresh token", func(t *testing.T) {
		api := testutil.NewMockRingAPI()
		mockClock := clock.NewMockClock(start)
		auth := ring.NewAuth(api, &ring.Token{
			AccessToken:  "stale",
			RefreshToken: "unknown-refresh-token",
			ExpiresAt:    start.Add(-time.Minute),
		}, logger)
		auth.SetClock(mockClock)

		_, err := auth.AccessToken(ctx)
		assert.ErrorIs(t, err, ring.ErrAuthentication)
		assert.Equal(t, "stale", auth.Token().AccessToken)
	})
}

func TestToken_Expired(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		token *ring.Token
		want  bool
	}{
		{"nil token", nil, false},
		{"no expiry", &ring.Token{AccessToken: "a"}, false},
		{"future expiry", &ring.Token{ExpiresAt: now.Add(time.Second)}, false},
		{"exact expiry", &ring.Token{ExpiresAt: now}, true},
		{"past expiry", &ring.Token{ExpiresAt: now.Add(-time.Second)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.token.Expired(now))
		})
	}
}
