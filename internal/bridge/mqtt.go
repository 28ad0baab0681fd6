// Package bridge republishes connection notifications on an MQTT broker.
package bridge

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/zyxar/sioclient"
)

// DefaultPublishTimeout bounds how long Forward waits for the broker.
const DefaultPublishTimeout = 5 * time.Second

// ErrPublishTimeout is returned when the broker did not acknowledge in time.
var ErrPublishTimeout = errors.New("mqtt publish timeout")

// Publisher is the part of mqtt.Client the bridge needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Bridge publishes each notification as JSON on <prefix>/<handle>/<event>.
type Bridge struct {
	pub     Publisher
	prefix  string
	qos     byte
	timeout time.Duration
	log     zerolog.Logger
}

// New creates a Bridge publishing through pub with QoS 1.
func New(pub Publisher, prefix string, logger zerolog.Logger) *Bridge {
	return &Bridge{
		pub:     pub,
		prefix:  strings.TrimSuffix(prefix, "/"),
		qos:     1,
		timeout: DefaultPublishTimeout,
		log:     logger,
	}
}

type message struct {
	Handle    int      `json:"handle"`
	Event     string   `json:"event"`
	Count     int      `json:"count,omitempty"`
	Packets   []string `json:"packets,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// Topic returns the topic e is published on.
func (b *Bridge) Topic(e sioclient.Event) string {
	return b.prefix + "/" + strconv.Itoa(int(e.Handle)) + "/" + e.Type.String()
}

// Forward publishes e and waits for the broker.
func (b *Bridge) Forward(e sioclient.Event) error {
	msg := message{
		Handle:    int(e.Handle),
		Event:     e.Type.String(),
		Count:     e.Count,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	for _, p := range e.Packets {
		if p.IsBinary() {
			msg.Packets = append(msg.Packets, "b"+base64.StdEncoding.EncodeToString(p.Bytes()))
			continue
		}
		msg.Packets = append(msg.Packets, string(p.Bytes()))
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	topic := b.Topic(e)
	token := b.pub.Publish(topic, b.qos, false, data)
	if !token.WaitTimeout(b.timeout) {
		b.log.Warn().Str("topic", topic).Msg("mqtt publish timed out")
		return ErrPublishTimeout
	}
	if err := token.Error(); err != nil {
		b.log.Warn().Err(err).Str("topic", topic).Msg("mqtt publish failed")
		return err
	}
	return nil
}

// Dial connects to broker, e.g. "tcp://localhost:1883".
func Dial(broker, clientID string, logger zerolog.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info().Str("broker", broker).Msg("mqtt connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("mqtt connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return client, nil
}
