package cluster

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// ClusteringMessage is published after every clustering run
type ClusteringMessage struct {
	RunID      string   `json:"runId"`
	K          int      `json:"k"`
	Rows       int      `json:"rows"`
	Features   []string `json:"features"`
	Sizes      []int    `json:"sizes"`
	Scores     *Scores  `json:"scores,omitempty"`
	Pretrained bool     `json:"pretrained"`
	Warnings   []string `json:"warnings,omitempty"`
	Timestamp  int64    `json:"timestamp"`
}

// PredictionMessage is published for every single-record prediction
type PredictionMessage struct {
	RunID     string    `json:"runId"`
	Features  []string  `json:"features,omitempty"`
	Values    []float64 `json:"values"`
	Cluster   int       `json:"cluster"`
	Timestamp int64     `json:"timestamp"`
}

// Publisher sends clustering and prediction results to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
}

// NewPublisher creates a result publisher. If client is nil, publishing is
// disabled and every call returns an error the caller may log and ignore.
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if env := os.Getenv("MQTT_PUBLISH_PREFIX"); env != "" {
		prefix = env
	}
	if prefix == "" {
		prefix = "bencana"
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,
		retain:        true, // latest result stays available to late subscribers
	}
}

// Prefix returns the topic prefix in use
func (p *Publisher) Prefix() string { return p.publishPrefix }

// PublishClustering publishes a run summary to {prefix}/clustering and returns
// the generated run id.
func (p *Publisher) PublishClustering(r *Result) (string, error) {
	if p == nil || p.client == nil || !p.client.IsConnected() {
		return "", fmt.Errorf("MQTT client not connected")
	}

	msg := ClusteringMessage{
		RunID:      uuid.NewString(),
		K:          r.K,
		Rows:       len(r.Labels),
		Features:   r.Features,
		Sizes:      r.Sizes,
		Scores:     r.Scores,
		Pretrained: r.Pretrained,
		Warnings:   r.Warnings,
		Timestamp:  time.Now().Unix(),
	}
	if err := p.publish("clustering", msg); err != nil {
		return "", err
	}

	log.Printf("[MQTT] Published clustering run %s: k=%d sizes=%v", msg.RunID, msg.K, msg.Sizes)
	return msg.RunID, nil
}

// PublishPrediction publishes one prediction to {prefix}/prediction
func (p *Publisher) PublishPrediction(features []string, values []float64, label int) (string, error) {
	if p == nil || p.client == nil || !p.client.IsConnected() {
		return "", fmt.Errorf("MQTT client not connected")
	}

	msg := PredictionMessage{
		RunID:     uuid.NewString(),
		Features:  features,
		Values:    values,
		Cluster:   label,
		Timestamp: time.Now().Unix(),
	}
	if err := p.publish("prediction", msg); err != nil {
		return "", err
	}

	log.Printf("[MQTT] Published prediction %s: cluster=%d", msg.RunID, label)
	return msg.RunID, nil
}

func (p *Publisher) publish(subtopic string, v any) error {
	topic := fmt.Sprintf("%s/%s", p.publishPrefix, subtopic)

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s message: %w", subtopic, err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// InitMQTT builds and starts connecting an MQTT client for the publisher.
// MQTT_BROKER and friends override the config. With no broker configured MQTT
// is disabled and this returns nil, nil.
func InitMQTT(config *MQTTConfig) (mqtt.Client, error) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" && config != nil {
		broker = config.Broker
	}
	if broker == "" {
		log.Println("[MQTT] disabled: MQTT_BROKER not set")
		return nil, nil
	}
	if config == nil {
		config = &MQTTConfig{}
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" {
		clientID = config.ClientID
	}
	if clientID == "" {
		clientID = "bencana-dashboard"
	}
	opts.SetClientID(clientID)

	username := os.Getenv("MQTT_USERNAME")
	if username == "" {
		username = config.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" {
			password = config.Password
		}
		opts.SetPassword(password)
	}

	// Initial connection is retried by connectWithRetry; auto-reconnect only
	// covers connections lost later
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Printf("[MQTT] connected to %s", broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("[MQTT] connection interrupted (%v), auto-reconnect will retry", err)
	})

	client := mqtt.NewClient(opts)
	go connectWithRetry(client, time.Second)
	return client, nil
}

// connectWithRetry attempts to connect to the broker with exponential backoff,
// starting at retryDelay. It returns after the first successful connect.
func connectWithRetry(client mqtt.Client, retryDelay time.Duration) {
	maxRetryDelay := 60 * time.Second

	for {
		token := client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				return
			}
			log.Printf("[MQTT] connection failed: %v", token.Error())
		} else {
			log.Println("[MQTT] connection timeout")
		}

		log.Printf("[MQTT] retrying in %v...", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}
