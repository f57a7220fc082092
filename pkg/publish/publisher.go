// Package publish streams atlas removal progress to an MQTT broker.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"atlasqc/pkg/iar"
)

// ErrNotConnected is returned when publishing without a live client
var ErrNotConnected = errors.New("MQTT client not connected")

const publishTimeout = 2 * time.Second

// Options configure the broker connection
type Options struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// AtlasScore is the published form of one atlas evaluation
type AtlasScore struct {
	ID      string  `json:"id"`
	Q       float64 `json:"q"`
	Removed bool    `json:"removed"`
}

// IterationMessage is published after every evaluation round
type IterationMessage struct {
	RunID      string       `json:"runId"`
	Structure  string       `json:"structure"`
	Iteration  int          `json:"iteration"`
	Resolution float64      `json:"resolution"`
	Threshold  float64      `json:"threshold"`
	Atlases    []AtlasScore `json:"atlases"`
	Removed    []string     `json:"removed"`
	Timestamp  int64        `json:"timestamp"`
}

// ResultMessage is published once a run reaches its end point
type ResultMessage struct {
	RunID      string   `json:"runId"`
	Structure  string   `json:"structure"`
	Iterations int      `json:"iterations"`
	Survivors  []string `json:"survivors"`
	LogFile    string   `json:"logFile,omitempty"`
	Timestamp  int64    `json:"timestamp"`
}

// Publisher implements iar.Observer on top of an MQTT client
type Publisher struct {
	client mqtt.Client
	prefix string
	qos    byte
	retain bool
	logger *log.Logger
	now    func() time.Time
}

var _ iar.Observer = (*Publisher)(nil)

// NewPublisher creates a publisher writing below prefix. A nil client
// disables publishing.
func NewPublisher(client mqtt.Client, prefix string, logger *log.Logger) *Publisher {
	if prefix == "" {
		prefix = "atlasqc"
	}
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &Publisher{
		client: client,
		prefix: prefix,
		qos:    1,
		retain: true,
		logger: logger,
		now:    time.Now,
	}
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}

// IterationTopic is the topic for per-iteration records of structure
func (p *Publisher) IterationTopic(structure string) string {
	return fmt.Sprintf("%s/%s/iteration", p.prefix, structure)
}

// ResultTopic is the topic for the final survivors of structure
func (p *Publisher) ResultTopic(structure string) string {
	return fmt.Sprintf("%s/%s/result", p.prefix, structure)
}

// IterationCompleted publishes the scores and decisions of one round
func (p *Publisher) IterationCompleted(ctx context.Context, runID, structure string, rec *iar.IterationRecord) error {
	removed := make(map[string]bool, len(rec.Removed))
	for _, id := range rec.Removed {
		removed[id] = true
	}
	msg := IterationMessage{
		RunID:      runID,
		Structure:  structure,
		Iteration:  rec.Iteration,
		Resolution: rec.Resolution,
		Threshold:  rec.Threshold,
		Atlases:    make([]AtlasScore, len(rec.AtlasIDs)),
		Removed:    append([]string{}, rec.Removed...),
		Timestamp:  p.now().Unix(),
	}
	for i, id := range rec.AtlasIDs {
		msg.Atlases[i] = AtlasScore{ID: id, Q: rec.Scores[i], Removed: removed[id]}
	}
	return p.publish(ctx, p.IterationTopic(structure), msg)
}

// RunCompleted publishes the surviving atlas ids
func (p *Publisher) RunCompleted(ctx context.Context, res *iar.Result) error {
	msg := ResultMessage{
		RunID:      res.RunID,
		Structure:  res.Structure,
		Iterations: len(res.Iterations),
		Survivors:  res.Atlases.IDs(),
		LogFile:    res.LogFile,
		Timestamp:  p.now().Unix(),
	}
	if msg.Survivors == nil {
		msg.Survivors = []string{}
	}
	if err := p.publish(ctx, p.ResultTopic(res.Structure), msg); err != nil {
		return err
	}
	p.logger.Printf("Published %d surviving atlases for %s", len(msg.Survivors), res.Structure)
	return nil
}

func (p *Publisher) publish(ctx context.Context, topic string, msg any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.client == nil || !p.client.IsConnected() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling message for %s: %w", topic, err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publishing to %s: timed out after %v", topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Connect builds a client for opts and waits for the first connection.
// With an empty broker MQTT is disabled and Connect returns a nil client.
func Connect(ctx context.Context, opts Options, logger *log.Logger) (mqtt.Client, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	if opts.Broker == "" {
		logger.Println("MQTT disabled: no broker configured")
		return nil, nil
	}

	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	clientID := opts.ClientID
	if clientID == "" {
		clientID = "atlasqc"
	}
	co.SetClientID(clientID)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}

	co.SetAutoReconnect(true)
	co.SetMaxReconnectInterval(60 * time.Second)
	co.SetKeepAlive(60 * time.Second)
	co.SetPingTimeout(10 * time.Second)
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Printf("MQTT connection interrupted (%v), auto-reconnect will retry", err)
	})

	client := mqtt.NewClient(co)
	logger.Println("Connecting to MQTT broker...")
	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", opts.Broker, err)
	}
	logger.Println("Successfully connected to MQTT broker")
	return client, nil
}
