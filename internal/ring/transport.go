package ring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Transport executes HTTP requests. *http.Client satisfies it; tests inject a
// fixture-backed implementation instead of patching global state.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
}

// Endpoints holds the base URLs of the two Ring hosts
type Endpoints struct {
	OAuthURL string `yaml:"oauth_url"`
	APIURL   string `yaml:"api_url"`
}

// Default Ring hosts
const (
	DefaultOAuthURL = "https://oauth.ring.com"
	DefaultAPIURL   = "https://api.ring.com"
)

// DefaultEndpoints returns the production Ring hosts
func DefaultEndpoints() Endpoints {
	return Endpoints{
		OAuthURL: DefaultOAuthURL,
		APIURL:   DefaultAPIURL,
	}
}

func (e Endpoints) withDefaults() Endpoints {
	if e.OAuthURL == "" {
		e.OAuthURL = DefaultOAuthURL
	}
	if e.APIURL == "" {
		e.APIURL = DefaultAPIURL
	}
	e.OAuthURL = strings.TrimRight(e.OAuthURL, "/")
	e.APIURL = strings.TrimRight(e.APIURL, "/")
	return e
}

// API paths
const (
	pathOAuthToken   = "/oauth/token"
	pathSession      = "/clients_api/session"
	pathDevices      = "/clients_api/ring_devices"
	pathActiveDings  = "/clients_api/dings/active"
	pathDoorbotFmt   = "/clients_api/doorbots/%s"
	pathChimeFmt     = "/clients_api/chimes/%s"
	pathDingShareFmt = "/clients_api/dings/%d/share/play"
	pathSettingsFmt  = "/devices/v1/devices/%s/settings"
	pathDeviceRPCFmt = "/commands/v1/devices/%s/device_rpc"
	pathGroupsFmt    = "/groups/v1/locations/%s/groups"
)

// Headers sent to the Ring API
const (
	userAgent     = "android:com.ringapp"
	clientID      = "ring_official_android"
	oauthScope    = "client"
	apiVersion    = 11
	headerHWID    = "hardware_id"
	header2FA     = "2fa-support"
	header2FACode = "2fa-code"
)

// maxErrorBody bounds how much of an error body ends up in APIError
const maxErrorBody = 512

// request describes a single round trip
type request struct {
	method  string
	url     string
	body    io.Reader
	headers map[string]string
}

// jsonBody encodes v for use as a request body
func jsonBody(v any) (io.Reader, error) {
	if v == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return bytes.NewReader(encoded), nil
}

// roundTrip performs the request and returns the status and body. Non-2xx
// responses become *APIError, transport failures wrap ErrTransient.
func roundTrip(ctx context.Context, transport Transport, logger *zap.Logger, r request) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, r.method, r.url, r.body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range r.headers {
		req.Header.Set(key, value)
	}

	logger.Debug("Sending request",
		zap.String("method", r.method),
		zap.String("url", r.url))

	resp, err := transport.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s %s: %w", ErrTransient, r.method, r.url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: failed to read response body: %w", ErrTransient, err)
	}

	logger.Debug("Received response",
		zap.String("method", r.method),
		zap.String("url", r.url),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := truncateUTF8(string(body), maxErrorBody)
		return resp.StatusCode, nil, &APIError{
			Method:     r.method,
			URL:        r.url,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(text),
		}
	}

	return resp.StatusCode, body, nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a character
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// decode unmarshals a response body, mapping failures to ErrUnexpectedResponse
func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: failed to decode response: %w", ErrUnexpectedResponse, err)
	}
	return nil
}
