package ha

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"ringbridge/internal/monitor"

	"go.uber.org/zap"
)

// Entities and events written for every ding
const (
	LastDingText  = "ring_last_ding"
	DingEventType = "ring_ding"
)

// DingSink mirrors dings into Home Assistant helpers and fires a bus event
type DingSink struct {
	client HAClient
	logger *zap.Logger
}

// NewDingSink creates a sink publishing through client
func NewDingSink(client HAClient, logger *zap.Logger) *DingSink {
	return &DingSink{
		client: client,
		logger: logger.Named("ha.sink"),
	}
}

// Name identifies the sink in logs
func (s *DingSink) Name() string {
	return "home_assistant"
}

// PublishDing turns on input_boolean.ring_<device>_ding, records the ding in
// input_text.ring_last_ding and fires a ring_ding event
func (s *DingSink) PublishDing(ctx context.Context, event monitor.DingEvent) error {
	flag := DingBooleanName(event.DeviceName)
	if err := s.client.SetInputBoolean(ctx, flag, true); err != nil {
		return fmt.Errorf("failed to set input_boolean.%s: %w", flag, err)
	}

	text := fmt.Sprintf("%s: %s at %s", event.DeviceName, event.Kind, event.At.Format("15:04:05"))
	if err := s.client.SetInputText(ctx, LastDingText, text); err != nil {
		return fmt.Errorf("failed to set input_text.%s: %w", LastDingText, err)
	}

	if err := s.client.FireEvent(ctx, DingEventType, map[string]any{
		"ding_id":     event.DingID,
		"unique_id":   string(event.UniqueID),
		"device_name": event.DeviceName,
		"kind":        event.Kind,
		"at":          event.At,
	}); err != nil {
		return fmt.Errorf("failed to fire %s: %w", DingEventType, err)
	}

	s.logger.Debug("Published ding to Home Assistant",
		zap.String("entity", "input_boolean."+flag),
		zap.Int64("ding_id", event.DingID))
	return nil
}

// DingBooleanName returns the input_boolean object id for a device name,
// e.g. "Front Door" becomes ring_front_door_ding
func DingBooleanName(deviceName string) string {
	return "ring_" + Slugify(deviceName) + "_ding"
}

// Slugify lowercases name and collapses everything that is not a letter or
// digit into single underscores
func Slugify(name string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "_")
	if slug == "" {
		return "unknown"
	}
	return slug
}

var _ monitor.Sink = (*DingSink)(nil)
