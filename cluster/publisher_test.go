package cluster

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPublisher(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")

	p := NewPublisher(nil, "")
	assert.Equal(t, "bencana", p.Prefix())
	assert.Equal(t, byte(0), p.qos)
	assert.True(t, p.retain)

	assert.Equal(t, "custom", NewPublisher(nil, "custom").Prefix())

	t.Setenv("MQTT_PUBLISH_PREFIX", "from-env")
	assert.Equal(t, "from-env", NewPublisher(nil, "custom").Prefix())
}

func TestPublisher_NotConnected(t *testing.T) {
	res := &Result{K: 2, Labels: []int{0, 1}, Sizes: []int{1, 1}}

	_, err := NewPublisher(nil, "x").PublishClustering(res)
	assert.EqualError(t, err, "MQTT client not connected")

	client := NewMockClient()
	_, err = NewPublisher(client, "x").PublishPrediction(nil, []float64{1}, 0)
	assert.EqualError(t, err, "MQTT client not connected")
	assert.Empty(t, client.GetPublishedMessages())
}

func TestPublisher_PublishClustering(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")
	client := NewMockClient()
	client.SetConnected(true)
	p := NewPublisher(client, "bencana")

	res := &Result{
		Features: []string{"Jumlah_Kejadian"},
		K:        2,
		Labels:   []int{0, 1, 1},
		Sizes:    []int{1, 2},
		Scores:   &Scores{Cohesion: 0.2, Separation: 0.4, Silhouette: 0.8, Clusters: 2},
	}
	runID, err := p.PublishClustering(res)
	require.NoError(t, err)
	_, err = uuid.Parse(runID)
	assert.NoError(t, err)

	msgs := client.GetPublishedMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "bencana/clustering", msgs[0].Topic)
	assert.True(t, msgs[0].Retain)

	var got ClusteringMessage
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &got))
	assert.Equal(t, runID, got.RunID)
	assert.Equal(t, 2, got.K)
	assert.Equal(t, 3, got.Rows)
	assert.Equal(t, []int{1, 2}, got.Sizes)
	require.NotNil(t, got.Scores)
	assert.Equal(t, 0.8, got.Scores.Silhouette)
}

func TestPublisher_PublishPrediction(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")
	client := NewMockClient()
	client.SetConnected(true)
	p := NewPublisher(client, "bencana")

	_, err := p.PublishPrediction([]string{"a", "b"}, []float64{1.5, 2}, 1)
	require.NoError(t, err)

	msgs := client.GetPublishedMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "bencana/prediction", msgs[0].Topic)

	var got PredictionMessage
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &got))
	assert.Equal(t, 1, got.Cluster)
	assert.Equal(t, []float64{1.5, 2}, got.Values)
}

func TestPublisher_PublishError(t *testing.T) {
	client := NewMockClient()
	client.SetConnected(true)
	client.SetPublishError(errors.New("broker full"))

	_, err := NewPublisher(client, "bencana").PublishPrediction(nil, []float64{1}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker full")
}

func TestInitMQTT_Disabled(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")

	client, err := InitMQTT(&MQTTConfig{})
	assert.NoError(t, err)
	assert.Nil(t, client)

	client, err = InitMQTT(nil)
	assert.NoError(t, err)
	assert.Nil(t, client)
}

func TestConnectWithRetry(t *testing.T) {
	client := NewMockClient()
	client.SetConnectErrors(errors.New("refused"), errors.New("refused"))

	done := make(chan struct{})
	go func() {
		connectWithRetry(client, time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("connectWithRetry did not return after connecting")
	}
	assert.True(t, client.IsConnected())
	assert.Equal(t, 3, client.ConnectCalls(), "two failures, then one successful connect")
}
