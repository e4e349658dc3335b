package testutil

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"

	"ringbridge/internal/ring"
)

//go:embed fixtures/*.json
var fixturesFS embed.FS

// Fixture file names
const (
	FixtureOAuth           = "oauth.json"
	FixtureSession         = "session.json"
	FixtureDevices         = "devices.json"
	FixtureDingActive      = "ding_active.json"
	FixtureDoorbotHistory  = "doorbot_history.json"
	FixtureIntercomHistory = "intercom_history.json"
	FixtureDoorbotHealth   = "doorbot_health_attrs.json"
	FixtureChimeHealth     = "chime_health_attrs.json"
	FixtureGroups          = "groups.json"
)

// Identifiers used throughout the fixtures. Every device shares the API id
// MockDeviceID except the intercom; the stable device_id differs per device.
const (
	MockDeviceID         ring.DeviceID = 987652
	MockIntercomID       ring.DeviceID = 185036587
	MockLocationID                     = "mock-location-id"
	MockGroupID                        = "mock-group-id"
	MockUsername                       = "foo@bar.com"
	MockAccessToken                    = "eyJ0eWfvEQwqfJNKyQ9999"
	MockRefreshToken                   = "67695a26bdefc1ac8999"
	MockRecordingURL                   = "http://127.0.0.1/foo"
	MockFrontDoorUnique  ring.UniqueID = "aacdef123"
	MockChimeUnique      ring.UniqueID = "abcdef123"
	MockFrontCamUnique   ring.UniqueID = "aacdef124"
	MockInternalUnique   ring.UniqueID = "aacdef125"
	MockIntercomUnique   ring.UniqueID = "124ba1b3fe1a"
	MockFixtureDeviceLen               = 5
)

// LoadFixture returns the contents of an embedded fixture. It panics on an
// unknown name, which is always a bug in the test.
func LoadFixture(name string) string {
	data, err := fixturesFS.ReadFile(path.Join("fixtures", name))
	if err != nil {
		panic(fmt.Sprintf("testutil: unknown fixture %q: %v", name, err))
	}
	return string(data)
}

// LoadFixtureJSON decodes an embedded fixture into v
func LoadFixtureJSON(name string, v any) error {
	if err := json.Unmarshal([]byte(LoadFixture(name)), v); err != nil {
		return fmt.Errorf("failed to decode fixture %s: %w", name, err)
	}
	return nil
}

// MockDevices returns the fixture device list
func MockDevices() ring.DeviceList {
	var list ring.DeviceList
	if err := LoadFixtureJSON(FixtureDevices, &list); err != nil {
		panic(err)
	}
	return list
}

// MockDings returns the fixture active dings
func MockDings() []ring.Ding {
	var dings []ring.Ding
	if err := LoadFixtureJSON(FixtureDingActive, &dings); err != nil {
		panic(err)
	}
	return dings
}

// MockToken returns the token carried by the mock config entry
func MockToken() *ring.Token {
	return &ring.Token{AccessToken: "mock-token"}
}
