// Package testutil provides testing utilities for the Ring bridge.
// It contains a fixture-backed fake of the Ring cloud that can be injected as
// a ring.Transport or served over HTTP, plus a ready-made test environment.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"sync"
	"time"

	"ringbridge/internal/ring"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Hosts answered by the mock when used as a transport
const (
	OAuthHost = "oauth.ring.com"
	APIHost   = "api.ring.com"
)

// override replaces the response of every request matching a route
type override struct {
	method  string
	pattern *regexp.Regexp
	status  int
	body    string
}

// MockRingAPI simulates the Ring cloud. Each test constructs its own
// instance; nothing is registered globally.
type MockRingAPI struct {
	oauth chi.Router
	api   chi.Router

	knownIDs map[string]bool

	mu            sync.RWMutex
	username      string
	password      string
	otp           string
	revoked       map[string]bool
	refreshToken  string
	refreshes     int
	overrides     []override
	transportFail error

	callsMu sync.Mutex
	calls   []RequestCall
}

// NewMockRingAPI creates a mock Ring cloud serving the embedded fixtures.
// Any non-empty credentials are accepted until SetCredentials is called.
func NewMockRingAPI() *MockRingAPI {
	m := &MockRingAPI{
		knownIDs:     make(map[string]bool),
		revoked:      make(map[string]bool),
		refreshToken: MockRefreshToken,
	}

	for _, device := range MockDevices().All() {
		m.knownIDs[device.ID.String()] = true
	}

	m.oauth = m.oauthRouter()
	m.api = m.apiRouter()
	return m
}

// SetCredentials restricts the password grant to one username and password
func (m *MockRingAPI) SetCredentials(username, password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.username = username
	m.password = password
}

// RequireOTP makes the password grant answer 412 until the code is sent
func (m *MockRingAPI) RequireOTP(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.otp = code
}

// RevokeToken makes API calls carrying token answer 401
func (m *MockRingAPI) RevokeToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[token] = true
}

// Override makes requests whose method and path match answer with status
// and body instead of the fixture. pathPattern is a regular expression.
func (m *MockRingAPI) Override(method, pathPattern string, status int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides = append(m.overrides, override{
		method:  method,
		pattern: regexp.MustCompile("^" + pathPattern + "$"),
		status:  status,
		body:    body,
	})
}

// ClearOverrides removes every override
func (m *MockRingAPI) ClearOverrides() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides = nil
}

// FailTransport makes Do return err without serving the request, the way a
// connection failure would. Pass nil to recover.
func (m *MockRingAPI) FailTransport(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transportFail = err
}

// Do implements ring.Transport by routing on the request host
func (m *MockRingAPI) Do(req *http.Request) (*http.Response, error) {
	m.mu.RLock()
	fail := m.transportFail
	m.mu.RUnlock()
	if fail != nil {
		return nil, fail
	}

	var handler http.Handler
	switch req.URL.Host {
	case OAuthHost:
		handler = m.serve(m.oauth)
	case APIHost:
		handler = m.serve(m.api)
	default:
		handler = m.Handler()
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	resp := rec.Result()
	resp.Request = req
	return resp, nil
}

// Handler serves both hosts from one listener, routing by path
func (m *MockRingAPI) Handler() http.Handler {
	oauth := m.serve(m.oauth)
	api := m.serve(m.api)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			oauth.ServeHTTP(w, r)
			return
		}
		api.ServeHTTP(w, r)
	})
}

// StartServer serves the mock over real HTTP. The caller closes the server.
func (m *MockRingAPI) StartServer() *httptest.Server {
	return httptest.NewServer(m.Handler())
}

// Endpoints points a client at a server started with StartServer
func Endpoints(server *httptest.Server) ring.Endpoints {
	return ring.Endpoints{OAuthURL: server.URL, APIURL: server.URL}
}

// GetCalls returns all requests served so far
func (m *MockRingAPI) GetCalls() []RequestCall {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()

	calls := make([]RequestCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// ClearCalls resets the request log
func (m *MockRingAPI) ClearCalls() {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	m.calls = nil
}

// CountCalls counts requests with the exact method and path
func (m *MockRingAPI) CountCalls(method, path string) int {
	count := 0
	for _, call := range m.GetCalls() {
		if call.Method == method && call.Path == path {
			count++
		}
	}
	return count
}

// serve wraps a router with request recording and overrides
func (m *MockRingAPI) serve(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(r.Body)
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		if o, ok := m.matchOverride(r); ok {
			ww.WriteHeader(o.status)
			io.WriteString(ww, o.body)
		} else {
			next.ServeHTTP(ww, r)
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.callsMu.Lock()
		m.calls = append(m.calls, RequestCall{
			Timestamp: time.Now(),
			Method:    r.Method,
			Host:      r.URL.Host,
			Path:      r.URL.Path,
			Query:     r.URL.Query(),
			Header:    r.Header.Clone(),
			Body:      body,
			Status:    status,
		})
		m.callsMu.Unlock()
	})
}

func (m *MockRingAPI) matchOverride(r *http.Request) (override, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.overrides) - 1; i >= 0; i-- {
		o := m.overrides[i]
		if o.method == r.Method && o.pattern.MatchString(r.URL.Path) {
			return o, true
		}
	}
	return override{}, false
}

// oauthRouter answers the token endpoint
func (m *MockRingAPI) oauthRouter() chi.Router {
	r := chi.NewRouter()
	r.Post("/oauth/token", m.handleToken)
	return r
}

// apiRouter registers every API endpoint the client uses
func (m *MockRingAPI) apiRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(m.requireBearer)

	r.Post("/clients_api/session", m.fixture(FixtureSession))
	r.Get("/clients_api/ring_devices", m.fixture(FixtureDevices))
	r.Get("/clients_api/dings/active", m.fixture(FixtureDingActive))
	r.Get("/clients_api/dings/{dingID:[0-9]+}/share/play", m.handleSharePlay)

	r.Get("/clients_api/doorbots/{id:[0-9]+}/history", m.handleHistory)
	r.Get("/clients_api/doorbots/{id:[0-9]+}/health", m.knownDevice(m.fixture(FixtureDoorbotHealth)))
	r.Get("/clients_api/chimes/{id:[0-9]+}/health", m.knownDevice(m.fixture(FixtureChimeHealth)))
	r.Put("/clients_api/doorbots/{id:[0-9]+}/{action:(floodlight_light_on|floodlight_light_off|siren_on|siren_off)}",
		m.knownDevice(m.empty))
	r.Post("/clients_api/chimes/{id:[0-9]+}/play_sound", m.knownDevice(m.empty))

	r.Patch("/devices/v1/devices/{id:[0-9]+}/settings", m.knownDevice(m.text("ok")))
	r.Put("/commands/v1/devices/{id:[0-9]+}/device_rpc", m.knownDevice(m.text("{}")))

	r.Get("/groups/v1/locations/{locationID}/groups", m.handleGroups)

	return r
}

// requireBearer rejects API calls without a usable bearer token
func (m *MockRingAPI) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "
		header := r.Header.Get("Authorization")
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		m.mu.RLock()
		revoked := m.revoked[header[len(prefix):]]
		m.mu.RUnlock()
		if revoked {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// knownDevice answers 404 for device ids that are not in the fixtures
func (m *MockRingAPI) knownDevice(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.knownIDs[chi.URLParam(r, "id")] {
			http.NotFound(w, r)
			return
		}
		next(w, r)
	}
}

func (m *MockRingAPI) fixture(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, LoadFixture(name))
	}
}

func (m *MockRingAPI) text(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, body)
	}
}

func (m *MockRingAPI) empty(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (m *MockRingAPI) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	switch {
	case id == MockIntercomID.String():
		writeJSON(w, http.StatusOK, LoadFixture(FixtureIntercomHistory))
	case m.knownIDs[id]:
		writeJSON(w, http.StatusOK, LoadFixture(FixtureDoorbotHistory))
	default:
		http.NotFound(w, r)
	}
}

func (m *MockRingAPI) handleSharePlay(w http.ResponseWriter, r *http.Request) {
	body, _ := json.Marshal(map[string]string{"url": MockRecordingURL})
	writeJSON(w, http.StatusOK, string(body))
}

func (m *MockRingAPI) handleGroups(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "locationID") != MockLocationID {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, LoadFixture(FixtureGroups))
}

// handleToken implements the password and refresh_token grants
func (m *MockRingAPI) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, `{"error":"invalid_request"}`)
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "password":
		m.handlePasswordGrant(w, r)
	case "refresh_token":
		m.handleRefreshGrant(w, r)
	default:
		writeJSON(w, http.StatusBadRequest, `{"error":"unsupported_grant_type"}`)
	}
}

func (m *MockRingAPI) handlePasswordGrant(w http.ResponseWriter, r *http.Request) {
	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")

	m.mu.RLock()
	wantUser, wantPass, otp := m.username, m.password, m.otp
	m.mu.RUnlock()

	if username == "" || password == "" || (wantUser != "" && (username != wantUser || password != wantPass)) {
		writeJSON(w, http.StatusUnauthorized, `{"error":"invalid_grant","error_description":"invalid user credentials"}`)
		return
	}

	if otp != "" && r.Header.Get("2fa-code") != otp {
		writeJSON(w, http.StatusPreconditionFailed, `{"next_time_in_secs":60,"phone":"+1xxxxxx1234"}`)
		return
	}

	writeJSON(w, http.StatusOK, LoadFixture(FixtureOAuth))
}

func (m *MockRingAPI) handleRefreshGrant(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	if r.PostForm.Get("refresh_token") != m.refreshToken {
		m.mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, `{"error":"invalid_grant"}`)
		return
	}
	m.refreshes++
	n := m.refreshes
	m.mu.Unlock()

	var token map[string]any
	if err := json.Unmarshal([]byte(LoadFixture(FixtureOAuth)), &token); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	token["access_token"] = fmt.Sprintf("%s-refreshed-%d", MockAccessToken, n)

	body, _ := json.Marshal(token)
	writeJSON(w, http.StatusOK, string(body))
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

// URL builds an absolute URL on one of the mock hosts
func URL(host, path string) string {
	return (&url.URL{Scheme: "https", Host: host, Path: path}).String()
}
