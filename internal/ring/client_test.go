package ring_test

import (
	"context"
	"net/http"
	"testing"

	"ringbridge/internal/ring"
	"ringbridge/pkg/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const hardwareID = "mock-hardware-id"

// newTestClient authenticates against a fresh mock Ring cloud
func newTestClient(t *testing.T) (*ring.Client, *testutil.MockRingAPI) {
	t.Helper()

	api := testutil.NewMockRingAPI()
	logger := zap.NewNop()

	auth := ring.NewAuth(api, nil, logger)
	_, err := auth.FetchToken(context.Background(), testutil.MockUsername, "foobar", "")
	require.NoError(t, err)

	api.ClearCalls()
	return ring.NewClient(api, auth, hardwareID, logger), api
}

func TestClient_CreateSession(t *testing.T) {
	client, api := newTestClient(t)

	session, err := client.CreateSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(999999), session.Profile.ID)
	assert.Equal(t, testutil.MockUsername, session.Profile.Email)

	call := testutil.FindCall(api.GetCalls(), http.MethodPost, "/clients_api/session")
	require.NotNil(t, call)
	assert.Equal(t, "Bearer "+testutil.MockAccessToken, call.Header.Get("Authorization"))
	assert.Equal(t, hardwareID, call.Header.Get("hardware_id"))
	assert.Contains(t, string(call.Body), `"hardware_id":"mock-hardware-id"`)
}

func TestClient_Devices(t *testing.T) {
	client, api := newTestClient(t)

	list, err := client.Devices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testutil.MockFixtureDeviceLen, list.Len())

	all := list.All()
	require.Len(t, all, testutil.MockFixtureDeviceLen)

	var names []string
	for _, device := range all {
		names = append(names, device.Description)
	}
	assert.Equal(t, []string{"Front Door", "Downstairs", "Front", "Internal", "Ingress"}, names)

	assert.Equal(t, ring.FamilyDoorbots, all[0].Family)
	assert.True(t, all[0].IsDoorbell())
	assert.Equal(t, ring.FamilyChimes, all[1].Family)
	assert.True(t, all[2].HasFloodlight())
	assert.True(t, all[2].HasSiren())
	assert.False(t, all[3].HasSiren())
	assert.True(t, all[4].IsIntercom())
	assert.Equal(t, testutil.MockIntercomID, all[4].ID)

	for _, device := range all {
		assert.NotEqual(t, device.ID.String(), string(device.UniqueID()))
	}

	assert.Equal(t, 1, api.CountCalls(http.MethodGet, "/clients_api/ring_devices"))
}

func TestClient_ActiveDings(t *testing.T) {
	client, _ := newTestClient(t)

	dings, err := client.ActiveDings(context.Background())
	require.NoError(t, err)
	require.Len(t, dings, 2)
	assert.Equal(t, int64(12345678), dings[0].ID)
	assert.Equal(t, ring.DingKindDing, dings[0].Kind)
	assert.Equal(t, testutil.MockDeviceID, dings[0].DoorbotID)
	assert.True(t, dings[1].Motion)
}

func TestClient_History(t *testing.T) {
	ctx := context.Background()

	t.Run("known device most recent first", func(t *testing.T) {
		client, api := newTestClient(t)

		entries, err := client.History(ctx, testutil.MockDeviceID, ring.HistoryOptions{})
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, int64(987654323), entries[0].ID)
		assert.True(t, entries[0].CreatedAt.After(entries[1].CreatedAt))
		assert.Equal(t, "ready", entries[0].Recording.Status)

		call := testutil.FindCall(api.GetCalls(), http.MethodGet, "/clients_api/doorbots/987652/history")
		require.NotNil(t, call)
		assert.Equal(t, "30", call.Query.Get("limit"))
	})

	t.Run("limit and kind filter", func(t *testing.T) {
		client, api := newTestClient(t)

		entries, err := client.History(ctx, testutil.MockDeviceID, ring.HistoryOptions{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, entries, 2)

		entries, err = client.History(ctx, testutil.MockDeviceID, ring.HistoryOptions{
			Kind:      ring.DingKindMotion,
			OlderThan: 987654323,
		})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, ring.DingKindMotion, entries[0].Kind)

		call := testutil.FindCall(api.GetCalls(), http.MethodGet, "/clients_api/doorbots/987652/history")
		require.NotNil(t, call)
		assert.Equal(t, "987654323", call.Query.Get("older_than"))
	})

	t.Run("intercom history", func(t *testing.T) {
		client, _ := newTestClient(t)

		entries, err := client.History(ctx, testutil.MockIntercomID, ring.HistoryOptions{})
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("unknown device", func(t *testing.T) {
		client, _ := newTestClient(t)

		_, err := client.History(ctx, 999999, ring.HistoryOptions{})
		assert.ErrorIs(t, err, ring.ErrNotFound)
		assert.True(t, ring.IsNotFound(err))
	})
}

func TestClient_Health(t *testing.T) {
	ctx := context.Background()
	client, api := newTestClient(t)

	devices := testutil.MockDevices()

	health, err := client.Health(ctx, devices.All()[0])
	require.NoError(t, err)
	assert.Equal(t, "ring_mock_wifi", health.WifiName)
	assert.Equal(t, "1.9.2", health.Firmware)
	assert.Equal(t, -39, health.LatestSignalStrength)

	chime := devices.All()[1]
	require.Equal(t, ring.FamilyChimes, chime.Family)
	health, err = client.Health(ctx, chime)
	require.NoError(t, err)
	assert.Equal(t, -58, health.LatestSignalStrength)
	assert.Equal(t, 1, api.CountCalls(http.MethodGet, "/clients_api/chimes/987652/health"))

	_, err = client.DoorbotHealth(ctx, 12345)
	assert.ErrorIs(t, err, ring.ErrNotFound)
}

func TestClient_RecordingURL(t *testing.T) {
	client, api := newTestClient(t)

	url, err := client.RecordingURL(context.Background(), 12345678)
	require.NoError(t, err)
	assert.Equal(t, testutil.MockRecordingURL, url)

	call := testutil.FindCall(api.GetCalls(), http.MethodGet, "/clients_api/dings/12345678/share/play")
	require.NotNil(t, call)
	assert.Equal(t, "true", call.Query.Get("disable_redirect"))
}

func TestClient_Groups(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)

	groups, err := client.Groups(ctx, testutil.MockLocationID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, testutil.MockGroupID, groups[0].DeviceGroupID)
	assert.Equal(t, "Landscape", groups[0].Name)
	assert.False(t, groups[0].LightsOn)

	_, err = client.Groups(ctx, "other-location")
	assert.ErrorIs(t, err, ring.ErrNotFound)
}

func TestClient_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("revoked token", func(t *testing.T) {
		client, api := newTestClient(t)
		api.RevokeToken(testutil.MockAccessToken)

		_, err := client.Devices(ctx)
		assert.ErrorIs(t, err, ring.ErrAuthentication)
		assert.True(t, ring.IsAuthError(err))
	})

	t.Run("malformed json", func(t *testing.T) {
		client, api := newTestClient(t)
		api.Override(http.MethodGet, "/clients_api/ring_devices", http.StatusOK, `{"doorbots": [`)

		_, err := client.Devices(ctx)
		assert.ErrorIs(t, err, ring.ErrUnexpectedResponse)
	})

	t.Run("server error is transient", func(t *testing.T) {
		client, api := newTestClient(t)
		api.Override(http.MethodGet, "/clients_api/dings/active", http.StatusServiceUnavailable, "")

		_, err := client.ActiveDings(ctx)
		assert.ErrorIs(t, err, ring.ErrTransient)
	})

	t.Run("unexpected status", func(t *testing.T) {
		client, api := newTestClient(t)
		api.Override(http.MethodGet, "/clients_api/dings/active", http.StatusTeapot, "short and stout")

		_, err := client.ActiveDings(ctx)
		assert.ErrorIs(t, err, ring.ErrUnexpectedResponse)
		assert.Contains(t, err.Error(), "HTTP 418")
	})

	t.Run("not authenticated", func(t *testing.T) {
		api := testutil.NewMockRingAPI()
		auth := ring.NewAuth(api, nil, zap.NewNop())
		client := ring.NewClient(api, auth, hardwareID, zap.NewNop())

		_, err := client.Devices(ctx)
		assert.ErrorIs(t, err, ring.ErrAuthentication)
		assert.Empty(t, api.GetCalls())
	})
}

func TestClient_OverHTTP(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	api := testutil.NewMockRingAPI()
	server := api.StartServer()
	defer server.Close()

	auth := ring.NewAuth(server.Client(), nil, logger)
	auth.SetEndpoints(testutil.Endpoints(server))
	_, err := auth.FetchToken(ctx, testutil.MockUsername, "foobar", "")
	require.NoError(t, err)

	client := ring.NewClient(server.Client(), auth, hardwareID, logger)
	client.SetEndpoints(testutil.Endpoints(server))

	list, err := client.Devices(ctx)
	require.NoError(t, err)
	assert.Equal(t, testutil.MockFixtureDeviceLen, list.Len())

	ack, err := client.UpdateSettings(ctx, testutil.MockDeviceID, ring.DeviceSettings{})
	require.NoError(t, err)
	assert.Equal(t, "ok", ack)
}
