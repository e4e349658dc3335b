package ring

import (
	"encoding/json"
	"strconv"
	"time"
)

// DeviceID is the numeric identifier Ring uses in every API path.
type DeviceID int64

// String renders the id the way it appears in URL paths
func (id DeviceID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// UniqueID is the stable identifier the host platform uses to deduplicate
// devices. It is never the same value as the DeviceID.
type UniqueID string

// Family is the top-level bucket a device is listed under in ring_devices
type Family string

const (
	FamilyDoorbots           Family = "doorbots"
	FamilyAuthorizedDoorbots Family = "authorized_doorbots"
	FamilyChimes             Family = "chimes"
	FamilyStickupCams        Family = "stickup_cams"
	FamilyOther              Family = "other"
)

// Intercom kinds reported under the "other" family
const (
	KindIntercomHandsetAudio = "intercom_handset_audio"
	KindIntercomHandsetVideo = "intercom_handset_video"
)

// Token represents an OAuth token issued by oauth.ring.com
type Token struct {
	AccessToken  string    `json:"access_token" yaml:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty" yaml:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty" yaml:"token_type,omitempty"`
	Scope        string    `json:"scope,omitempty" yaml:"scope,omitempty"`
	ExpiresIn    int64     `json:"expires_in,omitempty" yaml:"expires_in,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

// Expired reports whether the token is past its expiry. A token without an
// expiry never expires.
func (t *Token) Expired(now time.Time) bool {
	if t == nil || t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(t.ExpiresAt)
}

// Session is the response of POST /clients_api/session
type Session struct {
	Profile Profile `json:"profile"`
}

// Profile describes the account that owns the session
type Profile struct {
	ID                  int64  `json:"id"`
	Email               string `json:"email"`
	FirstName           string `json:"first_name"`
	LastName            string `json:"last_name"`
	PhoneNumber         string `json:"phone_number,omitempty"`
	HardwareID          string `json:"hardware_id"`
	AuthenticationToken string `json:"authentication_token,omitempty"`
}

// Device is a single Ring device as returned by ring_devices
type Device struct {
	ID              DeviceID        `json:"id"`
	DeviceID        UniqueID        `json:"device_id"`
	Description     string          `json:"description"`
	Kind            string          `json:"kind"`
	LocationID      string          `json:"location_id"`
	FirmwareVersion string          `json:"firmware_version,omitempty"`
	BatteryLife     json.RawMessage `json:"battery_life,omitempty"`
	TimeZone        string          `json:"time_zone,omitempty"`
	Address         string          `json:"address,omitempty"`
	Owned           bool            `json:"owned"`
	Alerts          DeviceAlerts    `json:"alerts"`
	Features        DeviceFeatures  `json:"features"`
	Settings        DeviceSettings  `json:"settings"`
	LedStatus       string          `json:"led_status,omitempty"`
	SirenStatus     *SirenStatus    `json:"siren_status,omitempty"`

	// Family is filled in from the ring_devices bucket, not from the payload
	Family Family `json:"-"`
}

// UniqueID returns the platform-facing identifier of the device
func (d Device) UniqueID() UniqueID {
	return d.DeviceID
}

// IsIntercom reports whether the device is an intercom handset
func (d Device) IsIntercom() bool {
	return d.Kind == KindIntercomHandsetAudio || d.Kind == KindIntercomHandsetVideo
}

// IsDoorbell reports whether the device is a doorbell-class device
func (d Device) IsDoorbell() bool {
	return d.Family == FamilyDoorbots || d.Family == FamilyAuthorizedDoorbots
}

// HasFloodlight reports whether the device exposes a floodlight
func (d Device) HasFloodlight() bool {
	return d.Family == FamilyStickupCams && d.LedStatus != ""
}

// HasSiren reports whether the device exposes a siren
func (d Device) HasSiren() bool {
	return d.Family == FamilyStickupCams && d.SirenStatus != nil
}

// DeviceAlerts carries connectivity status
type DeviceAlerts struct {
	Connection string `json:"connection,omitempty"`
}

// DeviceFeatures lists feature flags relevant to the integration
type DeviceFeatures struct {
	MotionsEnabled     bool `json:"motions_enabled"`
	ShowRecordings     bool `json:"show_recordings"`
	AdvancedMotion     bool `json:"advanced_motion_enabled"`
	PeopleOnlyEnabled  bool `json:"people_only_enabled"`
	ShadowCorrection   bool `json:"shadow_correction_enabled"`
	ShowVODSettings    bool `json:"show_vod_settings"`
	NightVisionEnabled bool `json:"night_vision_enabled"`
}

// DeviceSettings is a partial settings object. Nil pointers are omitted so
// that it can be sent as a PATCH body.
type DeviceSettings struct {
	MotionSettings *MotionSettings `json:"motion_settings,omitempty"`
	ChimeSettings  *ChimeSettings  `json:"chime_settings,omitempty"`
	VolumeSettings *VolumeSettings `json:"volume_settings,omitempty"`
	DoorbellVolume *int            `json:"doorbell_volume,omitempty"`
	Volume         *int            `json:"volume,omitempty"`
}

// MotionSettings controls motion detection
type MotionSettings struct {
	MotionDetectionEnabled *bool `json:"motion_detection_enabled,omitempty"`
}

// ChimeSettings controls the in-home chime of a doorbell
type ChimeSettings struct {
	Type     *int  `json:"type,omitempty"`
	Enable   *bool `json:"enable,omitempty"`
	Duration *int  `json:"duration,omitempty"`
}

// VolumeSettings controls intercom audio levels
type VolumeSettings struct {
	DoorbellVolume *int `json:"doorbell_volume,omitempty"`
	MicVolume      *int `json:"mic_volume,omitempty"`
	VoiceVolume    *int `json:"voice_volume,omitempty"`
}

// SirenStatus is reported by stickup cams with a siren
type SirenStatus struct {
	SecondsRemaining int `json:"seconds_remaining"`
}

// DeviceList groups devices by the family they were listed under, in vendor
// order. The order is not guaranteed to be stable between calls.
type DeviceList struct {
	Doorbots           []Device `json:"doorbots"`
	AuthorizedDoorbots []Device `json:"authorized_doorbots"`
	Chimes             []Device `json:"chimes"`
	StickupCams        []Device `json:"stickup_cams"`
	Other              []Device `json:"other"`
}

// All flattens the list in vendor order with Family populated
func (l DeviceList) All() []Device {
	buckets := []struct {
		family  Family
		devices []Device
	}{
		{FamilyDoorbots, l.Doorbots},
		{FamilyAuthorizedDoorbots, l.AuthorizedDoorbots},
		{FamilyChimes, l.Chimes},
		{FamilyStickupCams, l.StickupCams},
		{FamilyOther, l.Other},
	}

	var all []Device
	for _, bucket := range buckets {
		for _, device := range bucket.devices {
			device.Family = bucket.family
			all = append(all, device)
		}
	}
	return all
}

// Len returns the total number of devices across all families
func (l DeviceList) Len() int {
	return len(l.Doorbots) + len(l.AuthorizedDoorbots) + len(l.Chimes) + len(l.StickupCams) + len(l.Other)
}

// Ding is an active alert from /clients_api/dings/active
type Ding struct {
	ID                 int64    `json:"id"`
	IDStr              string   `json:"id_str"`
	State              string   `json:"state"`
	Protocol           string   `json:"protocol,omitempty"`
	DoorbotID          DeviceID `json:"doorbot_id"`
	DoorbotDescription string   `json:"doorbot_description"`
	DeviceKind         string   `json:"device_kind"`
	Motion             bool     `json:"motion"`
	SnapshotURL        string   `json:"snapshot_url,omitempty"`
	Kind               string   `json:"kind"`
	ExpiresIn          int      `json:"expires_in"`
	Now                float64  `json:"now"`
	Optimization       int      `json:"optimization_level,omitempty"`
}

// Ding kinds
const (
	DingKindDing     = "ding"
	DingKindMotion   = "motion"
	DingKindOnDemand = "on_demand"
	DingKindIntercom = "intercom_unlock"
)

// HistoryEntry is a past event recorded for a single device
type HistoryEntry struct {
	ID        int64          `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Answered  bool           `json:"answered"`
	Kind      string         `json:"kind"`
	Favorite  bool           `json:"favorite"`
	Events    []HistoryEvent `json:"events,omitempty"`
	Recording Recording      `json:"recording"`
	Doorbot   DoorbotRef     `json:"doorbot"`
	CVProps   map[string]any `json:"cv_properties,omitempty"`
}

// HistoryEvent is a sub-event of an intercom history entry
type HistoryEvent struct {
	EventID string `json:"event_id,omitempty"`
	Kind    string `json:"kind"`
}

// Recording describes the recording attached to a history entry
type Recording struct {
	Status string `json:"status"`
}

// DoorbotRef identifies the device a history entry belongs to
type DoorbotRef struct {
	ID          DeviceID `json:"id"`
	Description string   `json:"description"`
}

// HistoryOptions bounds a history query
type HistoryOptions struct {
	// Limit caps the number of entries returned. Zero means DefaultHistoryLimit.
	Limit int
	// OlderThan returns only entries with an id lower than this one
	OlderThan int64
	// Kind filters the returned entries client-side when set
	Kind string
}

// DefaultHistoryLimit matches the vendor app's page size
const DefaultHistoryLimit = 30

// Health is the device_health object returned by the health endpoints
type Health struct {
	ID                   DeviceID `json:"id"`
	WifiName             string   `json:"wifi_name"`
	BatteryPercentage    string   `json:"battery_percentage,omitempty"`
	BatteryPercentageCat string   `json:"battery_percentage_category,omitempty"`
	BatteryVoltage       *float64 `json:"battery_voltage,omitempty"`
	LatestSignalStrength int      `json:"latest_signal_strength"`
	LatestSignalCategory string   `json:"latest_signal_category"`
	AverageSignal        int      `json:"average_signal_strength,omitempty"`
	Firmware             string   `json:"firmware"`
	UpdatedAt            string   `json:"updated_at,omitempty"`
	WifiIsRingNetwork    bool     `json:"wifi_is_ring_network"`
	PacketLossCategory   string   `json:"packet_loss_category,omitempty"`
	PacketLossStrength   int      `json:"packet_loss_strength,omitempty"`
}

type healthResponse struct {
	DeviceHealth Health `json:"device_health"`
}

// Group is a device group of a location (e.g. a set of lights)
type Group struct {
	DeviceGroupID string `json:"device_group_id"`
	LocationID    string `json:"location_id"`
	Name          string `json:"name"`
	LightsOn      bool   `json:"lights_on"`
	LightsOnEnd   string `json:"lights_on_end,omitempty"`
	HasMotion     bool   `json:"has_motion"`
	HasLight      bool   `json:"has_light"`
}

type groupsResponse struct {
	DeviceGroups []Group `json:"device_groups"`
}

type shareResponse struct {
	URL string `json:"url"`
}

// RPCRequest is the body of a device_rpc command
type RPCRequest struct {
	Request RPCCall `json:"request"`
}

// RPCCall is a JSON-RPC 2.0 call addressed to the device
type RPCCall struct {
	ID      int64          `json:"id"`
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
}

// RPC methods understood by intercoms
const (
	RPCMethodUnlockDoor = "unlock_door"
)
