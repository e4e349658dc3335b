package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"ringbridge/internal/monitor"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeToken is a completed paho token
type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                       { return !t.timeout }
func (t *fakeToken) WaitTimeout(_ time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                     { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.timeout {
		close(ch)
	}
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	connected    bool
	token        *fakeToken
	messages     []published
	disconnected bool
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic, qos, retained, payload.([]byte)})
	if c.token != nil {
		return c.token
	}
	return &fakeToken{}
}

func (c *fakeClient) Disconnect(quiesce uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnected = true
}

func TestPublisher_PublishDing(t *testing.T) {
	ctx := context.Background()
	event := monitor.DingEvent{
		DingID:     12345679,
		UniqueID:   "aacdef124",
		DeviceName: "Front",
		Kind:       "motion",
		At:         time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}

	t.Run("publishes json on the device topic", func(t *testing.T) {
		client := &fakeClient{connected: true}
		publisher := NewPublisher(client, Config{QoS: 1}, zap.NewNop())
		assert.Equal(t, "mqtt", publisher.Name())

		require.NoError(t, publisher.PublishDing(ctx, event))
		require.Len(t, client.messages, 1)

		msg := client.messages[0]
		assert.Equal(t, "ring/aacdef124/motion", msg.topic)
		assert.Equal(t, byte(1), msg.qos)
		assert.False(t, msg.retained)

		var decoded monitor.DingEvent
		require.NoError(t, json.Unmarshal(msg.payload, &decoded))
		assert.Equal(t, event.DingID, decoded.DingID)
		assert.Equal(t, event.UniqueID, decoded.UniqueID)
		assert.True(t, event.At.Equal(decoded.At))
	})

	t.Run("custom prefix", func(t *testing.T) {
		client := &fakeClient{connected: true}
		publisher := NewPublisher(client, Config{TopicPrefix: "home/ring"}, zap.NewNop())

		require.NoError(t, publisher.PublishDing(ctx, event))
		assert.Equal(t, "home/ring/aacdef124/motion", client.messages[0].topic)
	})

	t.Run("disconnected", func(t *testing.T) {
		publisher := NewPublisher(&fakeClient{}, Config{}, zap.NewNop())
		assert.ErrorIs(t, publisher.PublishDing(ctx, event), ErrNotConnected)
	})

	t.Run("broker error", func(t *testing.T) {
		client := &fakeClient{connected: true, token: &fakeToken{err: errors.New("denied")}}
		publisher := NewPublisher(client, Config{}, zap.NewNop())
		assert.ErrorIs(t, publisher.PublishDing(ctx, event), ErrPublishFailed)
	})

	t.Run("timeout", func(t *testing.T) {
		client := &fakeClient{connected: true, token: &fakeToken{timeout: true}}
		publisher := NewPublisher(client, Config{}, zap.NewNop())
		err := publisher.PublishDing(ctx, event)
		assert.ErrorIs(t, err, ErrPublishFailed)
		assert.Contains(t, err.Error(), "timeout")
	})
}

func TestDingTopic(t *testing.T) {
	topic, err := DingTopic("ring", "aacdef124", "motion")
	require.NoError(t, err)
	assert.Equal(t, "ring/aacdef124/motion", topic)

	invalid := []struct {
		name     string
		uniqueID string
		kind     string
	}{
		{"empty kind", "aacdef124", ""},
		{"empty unique id", "", "ding"},
		{"single level wildcard", "aacdef124", "+"},
		{"multi level wildcard", "aac#def", "ding"},
		{"extra level", "aacdef124", "ding/extra"},
	}

	for _, tc := range invalid {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DingTopic("ring", tc.uniqueID, tc.kind)
			assert.ErrorIs(t, err, ErrInvalidTopic)
		})
	}

	t.Run("invalid ding is not published", func(t *testing.T) {
		client := &fakeClient{connected: true}
		publisher := NewPublisher(client, Config{}, zap.NewNop())

		err := publisher.PublishDing(context.Background(), monitor.DingEvent{UniqueID: "aacdef124", Kind: "ding/#"})
		assert.ErrorIs(t, err, ErrInvalidTopic)
		assert.Empty(t, client.messages)
	})
}

func TestPublisher_Close(t *testing.T) {
	client := &fakeClient{connected: true}
	publisher := NewPublisher(client, Config{}, zap.NewNop())

	require.NoError(t, publisher.Close())
	assert.True(t, client.disconnected)
	require.Len(t, client.messages, 1)
	assert.Equal(t, "ring/bridge/status", client.messages[0].topic)
	assert.Equal(t, "offline", string(client.messages[0].payload))
	assert.True(t, client.messages[0].retained)
}

func TestConnect_InvalidQoS(t *testing.T) {
	_, err := Connect(Config{Broker: "tcp://127.0.0.1:1883", QoS: 3}, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidQoS)
}
