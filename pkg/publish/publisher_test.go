package publish

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlasqc/internal/models"
	"atlasqc/pkg/iar"
)

func newTestPublisher(client *mockClient) *Publisher {
	p := NewPublisher(client, "qc", log.New(io.Discard, "", 0))
	p.now = func() time.Time { return time.Unix(1700000000, 0) }
	return p
}

func sampleRecord() *iar.IterationRecord {
	return &iar.IterationRecord{
		Iteration:  1,
		Resolution: 3,
		AtlasIDs:   []string{"a", "b", "c"},
		Scores:     []float64{0.1, 2.5, 0.2},
		Threshold:  0.4,
		Removed:    []string{"b"},
		Kept:       []string{"a", "c"},
	}
}

func TestIterationCompleted(t *testing.T) {
	client := &mockClient{connected: true}
	p := newTestPublisher(client)

	require.NoError(t, p.IterationCompleted(context.Background(), "run-1", "heart", sampleRecord()))

	msgs := client.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "qc/heart/iteration", msgs[0].Topic)
	assert.Equal(t, byte(1), msgs[0].QoS)
	assert.True(t, msgs[0].Retain)

	var got IterationMessage
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 1, got.Iteration)
	assert.Equal(t, 0.4, got.Threshold)
	assert.Equal(t, []string{"b"}, got.Removed)
	assert.Equal(t, int64(1700000000), got.Timestamp)
	require.Len(t, got.Atlases, 3)
	assert.Equal(t, AtlasScore{ID: "b", Q: 2.5, Removed: true}, got.Atlases[1])
	assert.False(t, got.Atlases[0].Removed)
}

func TestRunCompleted(t *testing.T) {
	client := &mockClient{connected: true}
	p := newTestPublisher(client)

	set, err := models.NewAtlasSet(&models.Atlas{ID: "a"}, &models.Atlas{ID: "c"})
	require.NoError(t, err)
	res := &iar.Result{RunID: "run-1", Structure: "heart", Atlases: set, Iterations: make([]iar.IterationRecord, 2)}
	require.NoError(t, p.RunCompleted(context.Background(), res))

	msgs := client.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "qc/heart/result", msgs[0].Topic)

	var got ResultMessage
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &got))
	assert.Equal(t, []string{"a", "c"}, got.Survivors)
	assert.Equal(t, 2, got.Iterations)
}

func TestPublishWithoutClient(t *testing.T) {
	p := NewPublisher(nil, "", log.New(io.Discard, "", 0))
	err := p.IterationCompleted(context.Background(), "r", "heart", sampleRecord())
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, "atlasqc/heart/result", p.ResultTopic("heart"))

	disconnected := newTestPublisher(&mockClient{})
	err = disconnected.IterationCompleted(context.Background(), "r", "heart", sampleRecord())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestPublishError(t *testing.T) {
	boom := errors.New("broker rejected")
	client := &mockClient{connected: true, publishError: boom}
	err := newTestPublisher(client).IterationCompleted(context.Background(), "r", "heart", sampleRecord())
	assert.ErrorIs(t, err, boom)
}

func TestCancelledContextSkipsPublish(t *testing.T) {
	client := &mockClient{connected: true}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := newTestPublisher(client).IterationCompleted(ctx, "r", "heart", sampleRecord())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, client.messages())
}

func TestSetQoSAndRetain(t *testing.T) {
	client := &mockClient{connected: true}
	p := newTestPublisher(client)
	p.SetQoS(2)
	p.SetQoS(7)
	p.SetRetain(false)
	require.NoError(t, p.IterationCompleted(context.Background(), "r", "heart", sampleRecord()))

	msg := client.messages()[0]
	assert.Equal(t, byte(2), msg.QoS)
	assert.False(t, msg.Retain)
}

func TestConnectDisabled(t *testing.T) {
	client, err := Connect(context.Background(), Options{}, log.New(io.Discard, "", 0))
	assert.NoError(t, err)
	assert.Nil(t, client)
}
