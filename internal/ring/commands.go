package ring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"go.uber.org/zap"
)

var rpcRequestID atomic.Int64

// UpdateSettings patches a partial settings object. Ring acknowledges with
// an opaque body ("ok") rather than the updated settings, which is returned
// as-is.
func (c *Client) UpdateSettings(ctx context.Context, id DeviceID, settings DeviceSettings) (string, error) {
	_, body, err := c.do(ctx, http.MethodPatch, fmt.Sprintf(pathSettingsFmt, id), nil, settings)
	if err != nil {
		return "", fmt.Errorf("failed to update settings for device %s: %w", id, err)
	}

	ack := string(bytes.TrimSpace(body))
	c.logger.Debug("Updated device settings",
		zap.Stringer("device_id", id),
		zap.String("ack", ack))
	return ack, nil
}

// SetMotionDetection toggles motion detection on a device
func (c *Client) SetMotionDetection(ctx context.Context, id DeviceID, enabled bool) error {
	_, err := c.UpdateSettings(ctx, id, DeviceSettings{
		MotionSettings: &MotionSettings{MotionDetectionEnabled: &enabled},
	})
	return err
}

// DeviceRPC sends a JSON-RPC command to a device. The only success signal
// is HTTP 200 with an empty JSON object.
func (c *Client) DeviceRPC(ctx context.Context, id DeviceID, method string, params map[string]any) error {
	if params == nil {
		params = map[string]any{}
	}

	payload := RPCRequest{
		Request: RPCCall{
			ID:      rpcRequestID.Add(1),
			JSONRPC: "2.0",
			Method:  method,
			Params:  params,
		},
	}

	status, body, err := c.do(ctx, http.MethodPut, fmt.Sprintf(pathDeviceRPCFmt, id), nil, payload)
	if err != nil {
		return fmt.Errorf("failed to send %s to device %s: %w", method, id, err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: %s answered with status %d", ErrUnexpectedResponse, method, status)
	}

	body = bytes.TrimSpace(body)
	if len(body) > 0 {
		var result map[string]json.RawMessage
		if err := decode(body, &result); err != nil {
			return err
		}
		if result == nil || len(result) > 0 {
			return fmt.Errorf("%w: %s answered with %s", ErrUnexpectedResponse, method, truncateUTF8(string(body), maxErrorBody))
		}
	}

	c.logger.Info("Device command sent",
		zap.Stringer("device_id", id),
		zap.String("method", method))
	return nil
}

// OpenDoor unlocks the door attached to an intercom
func (c *Client) OpenDoor(ctx context.Context, id DeviceID) error {
	return c.DeviceRPC(ctx, id, RPCMethodUnlockDoor, map[string]any{
		"door_id": 0,
		"user_id": 0,
	})
}

// SetFloodlight switches the floodlight of a stickup cam
func (c *Client) SetFloodlight(ctx context.Context, id DeviceID, on bool) error {
	action := "floodlight_light_off"
	if on {
		action = "floodlight_light_on"
	}
	return c.doorbotAction(ctx, id, action)
}

// SetSiren switches the siren of a stickup cam
func (c *Client) SetSiren(ctx context.Context, id DeviceID, on bool) error {
	action := "siren_off"
	if on {
		action = "siren_on"
	}
	return c.doorbotAction(ctx, id, action)
}

func (c *Client) doorbotAction(ctx context.Context, id DeviceID, action string) error {
	path := fmt.Sprintf(pathDoorbotFmt, id) + "/" + action
	if _, _, err := c.do(ctx, http.MethodPut, path, nil, nil); err != nil {
		return fmt.Errorf("failed to %s on device %s: %w", action, id, err)
	}
	return nil
}

// Chime test sound kinds
const (
	SoundDing   = "ding"
	SoundMotion = "motion"
)

// TestSound plays a test sound on a chime
func (c *Client) TestSound(ctx context.Context, chimeID DeviceID, kind string) error {
	if kind != SoundDing && kind != SoundMotion {
		return fmt.Errorf("unsupported test sound %q", kind)
	}

	path := fmt.Sprintf(pathChimeFmt, chimeID) + "/play_sound"
	if _, _, err := c.do(ctx, http.MethodPost, path, nil, map[string]string{"kind": kind}); err != nil {
		return fmt.Errorf("failed to play %s sound on chime %s: %w", kind, chimeID, err)
	}
	return nil
}
