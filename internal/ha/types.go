package ha

import (
	"encoding/json"
)

// Message represents a base WebSocket message to/from Home Assistant
type Message struct {
	ID      int             `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error represents an error response from Home Assistant
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AuthMessage represents authentication request
type AuthMessage struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token,omitempty"`
}

// CallServiceRequest represents a call_service request
type CallServiceRequest struct {
	ID          int            `json:"id"`
	Type        string         `json:"type"`
	Domain      string         `json:"domain"`
	Service     string         `json:"service"`
	ServiceData map[string]any `json:"service_data,omitempty"`
}

// FireEventRequest represents a fire_event request
type FireEventRequest struct {
	ID        int            `json:"id"`
	Type      string         `json:"type"`
	EventType string         `json:"event_type"`
	EventData map[string]any `json:"event_data,omitempty"`
}

// request is implemented by every message that expects a result
type request interface {
	messageID() int
}

func (r *CallServiceRequest) messageID() int { return r.ID }
func (r *FireEventRequest) messageID() int   { return r.ID }
