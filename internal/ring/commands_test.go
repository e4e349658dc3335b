package ring_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"ringbridge/internal/ring"
	"ringbridge/pkg/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_UpdateSettings(t *testing.T) {
	ctx := context.Background()

	t.Run("known device acknowledges with ok", func(t *testing.T) {
		client, api := newTestClient(t)

		volume := 5
		ack, err := client.UpdateSettings(ctx, testutil.MockDeviceID, ring.DeviceSettings{Volume: &volume})
		require.NoError(t, err)
		assert.Equal(t, "ok", ack)

		call := testutil.FindCall(api.GetCalls(), http.MethodPatch, "/devices/v1/devices/987652/settings")
		require.NotNil(t, call)
		assert.JSONEq(t, `{"volume":5}`, string(call.Body))
		assert.Equal(t, "application/json", call.Header.Get("Content-Type"))
	})

	t.Run("motion detection toggle", func(t *testing.T) {
		client, api := newTestClient(t)

		err := client.SetMotionDetection(ctx, testutil.MockDeviceID, false)
		require.NoError(t, err)

		call := testutil.FindCall(api.GetCalls(), http.MethodPatch, "/devices/v1/devices/987652/settings")
		require.NotNil(t, call)
		assert.JSONEq(t, `{"motion_settings":{"motion_detection_enabled":false}}`, string(call.Body))
	})

	t.Run("unknown device", func(t *testing.T) {
		client, _ := newTestClient(t)

		_, err := client.UpdateSettings(ctx, 42, ring.DeviceSettings{})
		assert.ErrorIs(t, err, ring.ErrNotFound)
	})
}

func TestClient_DeviceRPC(t *testing.T) {
	ctx := context.Background()
	rpcPath := "/commands/v1/devices/185036587/device_rpc"

	t.Run("open door on a known intercom", func(t *testing.T) {
		client, api := newTestClient(t)

		err := client.OpenDoor(ctx, testutil.MockIntercomID)
		require.NoError(t, err)

		call := testutil.FindCall(api.GetCalls(), http.MethodPut, rpcPath)
		require.NotNil(t, call)
		assert.Equal(t, http.StatusOK, call.Status)

		var body ring.RPCRequest
		require.NoError(t, json.Unmarshal(call.Body, &body))
		assert.Equal(t, "2.0", body.Request.JSONRPC)
		assert.Equal(t, ring.RPCMethodUnlockDoor, body.Request.Method)
		assert.Positive(t, body.Request.ID)
		assert.Equal(t, map[string]any{"door_id": float64(0), "user_id": float64(0)}, body.Request.Params)
	})

	t.Run("empty body is success", func(t *testing.T) {
		client, api := newTestClient(t)
		api.Override(http.MethodPut, rpcPath, http.StatusOK, "")

		assert.NoError(t, client.DeviceRPC(ctx, testutil.MockIntercomID, "ping", nil))
	})

	t.Run("request ids increase", func(t *testing.T) {
		client, api := newTestClient(t)

		require.NoError(t, client.OpenDoor(ctx, testutil.MockIntercomID))
		require.NoError(t, client.OpenDoor(ctx, testutil.MockIntercomID))

		calls := testutil.FilterCalls(api.GetCalls(), http.MethodPut, rpcPath)
		require.Len(t, calls, 2)

		var first, second ring.RPCRequest
		require.NoError(t, json.Unmarshal(calls[0].Body, &first))
		require.NoError(t, json.Unmarshal(calls[1].Body, &second))
		assert.Greater(t, second.Request.ID, first.Request.ID)
	})

	t.Run("unknown device", func(t *testing.T) {
		client, _ := newTestClient(t)

		err := client.OpenDoor(ctx, 1)
		assert.ErrorIs(t, err, ring.ErrNotFound)
	})

	rejected := []struct {
		name   string
		status int
		body   string
	}{
		{"accepted but not done", http.StatusAccepted, "{}"},
		{"no content", http.StatusNoContent, ""},
		{"non-empty result", http.StatusOK, `{"result":{"code":5,"message":"door jammed"}}`},
		{"rpc error", http.StatusOK, `{"error":{"code":-32601,"message":"method not found"}}`},
		{"null", http.StatusOK, "null"},
		{"array", http.StatusOK, "[]"},
		{"malformed", http.StatusOK, "<html>"},
	}

	for _, tc := range rejected {
		t.Run(tc.name, func(t *testing.T) {
			client, api := newTestClient(t)
			api.Override(http.MethodPut, rpcPath, tc.status, tc.body)

			err := client.OpenDoor(ctx, testutil.MockIntercomID)
			assert.ErrorIs(t, err, ring.ErrUnexpectedResponse)
		})
	}

	t.Run("cleared override restores success", func(t *testing.T) {
		client, api := newTestClient(t)
		api.Override(http.MethodPut, rpcPath, http.StatusAccepted, "{}")
		require.Error(t, client.OpenDoor(ctx, testutil.MockIntercomID))

		api.ClearOverrides()
		assert.NoError(t, client.OpenDoor(ctx, testutil.MockIntercomID))
	})
}

func TestClient_Actuators(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		call func(*ring.Client) error
		path string
	}{
		{"floodlight on", func(c *ring.Client) error { return c.SetFloodlight(ctx, testutil.MockDeviceID, true) },
			"/clients_api/doorbots/987652/floodlight_light_on"},
		{"floodlight off", func(c *ring.Client) error { return c.SetFloodlight(ctx, testutil.MockDeviceID, false) },
			"/clients_api/doorbots/987652/floodlight_light_off"},
		{"siren on", func(c *ring.Client) error { return c.SetSiren(ctx, testutil.MockDeviceID, true) },
			"/clients_api/doorbots/987652/siren_on"},
		{"siren off", func(c *ring.Client) error { return c.SetSiren(ctx, testutil.MockDeviceID, false) },
			"/clients_api/doorbots/987652/siren_off"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, api := newTestClient(t)

			require.NoError(t, tt.call(client))
			assert.Equal(t, 1, api.CountCalls(http.MethodPut, tt.path))
		})
	}

	t.Run("unknown device", func(t *testing.T) {
		client, _ := newTestClient(t)

		err := client.SetSiren(ctx, 7, true)
		assert.ErrorIs(t, err, ring.ErrNotFound)
	})
}

func TestClient_TestSound(t *testing.T) {
	ctx := context.Background()
	client, api := newTestClient(t)

	require.NoError(t, client.TestSound(ctx, testutil.MockDeviceID, ring.SoundDing))

	call := testutil.FindCall(api.GetCalls(), http.MethodPost, "/clients_api/chimes/987652/play_sound")
	require.NotNil(t, call)
	assert.JSONEq(t, `{"kind":"ding"}`, string(call.Body))

	err := client.TestSound(ctx, testutil.MockDeviceID, "doorbell")
	assert.Error(t, err)
	assert.Equal(t, 1, api.CountCalls(http.MethodPost, "/clients_api/chimes/987652/play_sound"))
}
