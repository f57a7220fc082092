package publish

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// mockToken implements mqtt.Token
type mockToken struct {
	err error
}

func (t *mockToken) Wait() bool                     { return true }
func (t *mockToken) WaitTimeout(time.Duration) bool { return true }
func (t *mockToken) Error() error                   { return t.err }

func (t *mockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type mockMessage struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// mockClient implements mqtt.Client and records published messages
type mockClient struct {
	mu           sync.Mutex
	connected    bool
	publishError error
	published    []mockMessage
}

func (c *mockClient) messages() []mockMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]mockMessage(nil), c.published...)
}

func (c *mockClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *mockClient) IsConnectionOpen() bool { return c.IsConnected() }

func (c *mockClient) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return &mockToken{}
}

func (c *mockClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return &mockToken{err: mqtt.ErrNotConnected}
	}
	if c.publishError != nil {
		return &mockToken{err: c.publishError}
	}
	b, _ := payload.([]byte)
	c.published = append(c.published, mockMessage{Topic: topic, Payload: b, QoS: qos, Retain: retained})
	return &mockToken{}
}

func (c *mockClient) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token {
	return &mockToken{}
}

func (c *mockClient) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return &mockToken{}
}

func (c *mockClient) Unsubscribe(...string) mqtt.Token { return &mockToken{} }

func (c *mockClient) AddRoute(string, mqtt.MessageHandler) {}

func (c *mockClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}
