package ring

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"
)

// RingAPI is the device registry and command surface of the Ring cloud
type RingAPI interface {
	CreateSession(ctx context.Context) (*Session, error)
	Devices(ctx context.Context) (*DeviceList, error)
	ActiveDings(ctx context.Context) ([]Ding, error)
	Health(ctx context.Context, device Device) (*Health, error)
	History(ctx context.Context, id DeviceID, opts HistoryOptions) ([]HistoryEntry, error)
	RecordingURL(ctx context.Context, dingID int64) (string, error)
	Groups(ctx context.Context, locationID string) ([]Group, error)
	UpdateSettings(ctx context.Context, id DeviceID, settings DeviceSettings) (string, error)
	SetMotionDetection(ctx context.Context, id DeviceID, enabled bool) error
	DeviceRPC(ctx context.Context, id DeviceID, method string, params map[string]any) error
	OpenDoor(ctx context.Context, id DeviceID) error
	SetFloodlight(ctx context.Context, id DeviceID, on bool) error
	SetSiren(ctx context.Context, id DeviceID, on bool) error
	TestSound(ctx context.Context, chimeID DeviceID, kind string) error
}

// Client implements RingAPI against api.ring.com. Every call is a single
// stateless request authorized by the current token.
type Client struct {
	transport  Transport
	tokens     TokenSource
	endpoints  Endpoints
	hardwareID string
	logger     *zap.Logger
}

// NewClient creates a new Ring API client
func NewClient(transport Transport, tokens TokenSource, hardwareID string, logger *zap.Logger) *Client {
	return &Client{
		transport:  transport,
		tokens:     tokens,
		endpoints:  DefaultEndpoints(),
		hardwareID: hardwareID,
		logger:     logger.Named("ring.client"),
	}
}

// SetEndpoints overrides the Ring hosts
func (c *Client) SetEndpoints(endpoints Endpoints) {
	c.endpoints = endpoints.withDefaults()
}

// do sends an authorized API request and returns the status and body
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) (int, []byte, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return 0, nil, err
	}

	body, err := jsonBody(payload)
	if err != nil {
		return 0, nil, err
	}

	target := c.endpoints.withDefaults().APIURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	headers := map[string]string{
		"Authorization": "Bearer " + token,
		"User-Agent":    userAgent,
		"Accept":        "application/json",
	}
	if c.hardwareID != "" {
		headers[headerHWID] = c.hardwareID
	}
	if payload != nil {
		headers["Content-Type"] = "application/json"
	}

	return roundTrip(ctx, c.transport, c.logger, request{
		method:  method,
		url:     target,
		body:    body,
		headers: headers,
	})
}

// getJSON issues a GET and decodes the JSON response into v
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, v any) error {
	_, body, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return decode(body, v)
}

// CreateSession registers this client's hardware id and returns the profile
func (c *Client) CreateSession(ctx context.Context) (*Session, error) {
	payload := map[string]any{
		"device": map[string]any{
			"hardware_id": c.hardwareID,
			"os":          "android",
			"metadata": map[string]any{
				"api_version":  apiVersion,
				"device_model": "ringbridge",
			},
		},
	}

	_, body, err := c.do(ctx, http.MethodPost, pathSession, nil, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	var session Session
	if err := decode(body, &session); err != nil {
		return nil, err
	}

	c.logger.Info("Created Ring session", zap.Int64("profile_id", session.Profile.ID))
	return &session, nil
}

// Devices lists every device on the account
func (c *Client) Devices(ctx context.Context) (*DeviceList, error) {
	var list DeviceList
	if err := c.getJSON(ctx, pathDevices, nil, &list); err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	c.logger.Debug("Listed devices", zap.Int("count", list.Len()))
	return &list, nil
}

// ActiveDings returns the current snapshot of active alerts
func (c *Client) ActiveDings(ctx context.Context) ([]Ding, error) {
	var dings []Ding
	if err := c.getJSON(ctx, pathActiveDings, nil, &dings); err != nil {
		return nil, fmt.Errorf("failed to get active dings: %w", err)
	}
	return dings, nil
}

// DoorbotHealth returns the health of a doorbell, camera or intercom
func (c *Client) DoorbotHealth(ctx context.Context, id DeviceID) (*Health, error) {
	return c.health(ctx, fmt.Sprintf(pathDoorbotFmt, id)+"/health")
}

// ChimeHealth returns the health of a chime
func (c *Client) ChimeHealth(ctx context.Context, id DeviceID) (*Health, error) {
	return c.health(ctx, fmt.Sprintf(pathChimeFmt, id)+"/health")
}

// Health picks the health endpoint matching the device family
func (c *Client) Health(ctx context.Context, device Device) (*Health, error) {
	if device.Family == FamilyChimes {
		return c.ChimeHealth(ctx, device.ID)
	}
	return c.DoorbotHealth(ctx, device.ID)
}

func (c *Client) health(ctx context.Context, path string) (*Health, error) {
	var resp healthResponse
	if err := c.getJSON(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get health: %w", err)
	}
	return &resp.DeviceHealth, nil
}

// History returns past events of a device, most recent first, bounded by
// opts.Limit
func (c *Client) History(ctx context.Context, id DeviceID, opts HistoryOptions) ([]HistoryEntry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	if opts.OlderThan > 0 {
		query.Set("older_than", strconv.FormatInt(opts.OlderThan, 10))
	}

	var entries []HistoryEntry
	if err := c.getJSON(ctx, fmt.Sprintf(pathDoorbotFmt, id)+"/history", query, &entries); err != nil {
		return nil, fmt.Errorf("failed to get history for device %s: %w", id, err)
	}

	filtered := entries[:0]
	for _, entry := range entries {
		if opts.Kind != "" && entry.Kind != opts.Kind {
			continue
		}
		filtered = append(filtered, entry)
		if len(filtered) == limit {
			break
		}
	}
	return filtered, nil
}

// RecordingURL returns a shareable URL for the recording of a ding
func (c *Client) RecordingURL(ctx context.Context, dingID int64) (string, error) {
	query := url.Values{}
	query.Set("disable_redirect", "true")

	var resp shareResponse
	if err := c.getJSON(ctx, fmt.Sprintf(pathDingShareFmt, dingID), query, &resp); err != nil {
		return "", fmt.Errorf("failed to get recording url for ding %d: %w", dingID, err)
	}
	if resp.URL == "" {
		return "", fmt.Errorf("%w: share response has no url", ErrUnexpectedResponse)
	}
	return resp.URL, nil
}

// Groups lists the device groups of a location
func (c *Client) Groups(ctx context.Context, locationID string) ([]Group, error) {
	var resp groupsResponse
	path := fmt.Sprintf(pathGroupsFmt, url.PathEscape(locationID))
	if err := c.getJSON(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list groups for location %s: %w", locationID, err)
	}
	return resp.DeviceGroups, nil
}
