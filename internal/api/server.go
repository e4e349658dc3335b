// Package api serves a read-only status view of the bridge over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"ringbridge/internal/entry"
	"ringbridge/internal/integration"
	"ringbridge/internal/monitor"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RuntimeProvider lists the loaded Ring accounts
type RuntimeProvider interface {
	Runtimes() []*integration.Runtime
}

// EntryLister lists config entries
type EntryLister interface {
	Entries(domain string) []entry.ConfigEntry
}

// DingHistory returns the latest ding events, newest first
type DingHistory interface {
	Recent() []monitor.DingEvent
}

// Server provides HTTP API endpoints for the bridge
type Server struct {
	runtimes RuntimeProvider
	entries  EntryLister
	logger   *zap.Logger
	server   *http.Server

	historyMu sync.RWMutex
	history   []DingHistory
}

// NewServer creates a new API server
func NewServer(runtimes RuntimeProvider, entries EntryLister, logger *zap.Logger, port int) *Server {
	s := &Server{
		runtimes: runtimes,
		entries:  entries,
		logger:   logger.Named("api"),
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// AddDingHistory adds a monitor whose events are served on /api/dings
func (s *Server) AddDingHistory(h DingHistory) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	s.history = append(s.history, h)
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleSitemap)
	r.Get("/health", s.handleHealth)
	r.Get("/api/devices", s.handleDevices)
	r.Get("/api/entries", s.handleEntries)
	r.Get("/api/dings", s.handleDings)

	r.NotFound(s.handleSitemap)
	return r
}

// DeviceResponse is one device of one loaded account
type DeviceResponse struct {
	EntryID  string `json:"entry_id"`
	UniqueID string `json:"unique_id"`
	APIID    int64  `json:"api_id"`
	Family   string `json:"family"`
	Kind     string `json:"kind"`
	Name     string `json:"name"`
}

// EntryResponse is the public view of a config entry; credentials are omitted
type EntryResponse struct {
	EntryID  string `json:"entry_id"`
	Domain   string `json:"domain"`
	Title    string `json:"title"`
	UniqueID string `json:"unique_id"`
	State    string `json:"state"`
	Reason   string `json:"reason,omitempty"`
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices := []DeviceResponse{}
	for _, runtime := range s.runtimes.Runtimes() {
		index := runtime.Devices()
		if index == nil {
			continue
		}
		for _, device := range index.Devices() {
			devices = append(devices, DeviceResponse{
				EntryID:  runtime.EntryID,
				UniqueID: string(device.UniqueID()),
				APIID:    int64(device.ID),
				Family:   string(device.Family),
				Kind:     device.Kind,
				Name:     device.Description,
			})
		}
	}

	s.writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	entries := []EntryResponse{}
	for _, e := range s.entries.Entries("") {
		entries = append(entries, EntryResponse{
			EntryID:  e.EntryID,
			Domain:   e.Domain,
			Title:    e.Title,
			UniqueID: e.UniqueID,
			State:    string(e.State),
			Reason:   e.Reason,
		})
	}

	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleDings(w http.ResponseWriter, r *http.Request) {
	s.historyMu.RLock()
	dings := []monitor.DingEvent{}
	for _, h := range s.history {
		dings = append(dings, h.Recent()...)
	}
	s.historyMu.RUnlock()

	sort.SliceStable(dings, func(i, j int) bool {
		return dings[i].At.After(dings[j].At)
	})

	s.writeJSON(w, http.StatusOK, dings)
}

// handleHealth returns a simple health check response
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Endpoint represents an API endpoint with its documentation
type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

var endpoints = []Endpoint{
	{Path: "/", Method: "GET", Description: "This sitemap"},
	{Path: "/health", Method: "GET", Description: "Health check, returns {\"status\": \"ok\"}"},
	{Path: "/api/devices", Method: "GET", Description: "Devices of every loaded Ring account"},
	{Path: "/api/entries", Method: "GET", Description: "Config entries and their setup state"},
	{Path: "/api/dings", Method: "GET", Description: "Recent dings, newest first"},
}

// handleSitemap lists the endpoints. It answers 404 so that scripts probing
// unknown paths fail, with a body that is still useful to a human.
func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	preferHTML := strings.Contains(r.Header.Get("Accept"), "text/html")

	if preferHTML {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "<!DOCTYPE html>\n<html>\n<head><title>Ring Bridge API</title></head>\n<body>\n<h1>Ring Bridge API</h1>\n<ul>\n")
		for _, ep := range endpoints {
			fmt.Fprintf(w, "  <li><b>%s</b> <a href=\"%s\">%s</a> %s</li>\n", ep.Method, ep.Path, ep.Path, ep.Description)
		}
		fmt.Fprint(w, "</ul>\n</body>\n</html>\n")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, "Ring Bridge API\n")
		fmt.Fprintf(w, "===============\n\n")
		fmt.Fprintf(w, "Available endpoints:\n\n")
		for _, ep := range endpoints {
			fmt.Fprintf(w, "  %-6s %-14s %s\n", ep.Method, ep.Path, ep.Description)
		}
	}

	s.logger.Debug("Sitemap request served",
		zap.String("path", r.URL.Path),
		zap.Bool("html_format", preferHTML))
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
