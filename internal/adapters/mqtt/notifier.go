// Package mqtt publishes beacon events to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/bft-labs/beacons/internal/domain"
	"github.com/bft-labs/beacons/pkg/log"
)

// DefaultTopic is the topic prefix events are published under.
const DefaultTopic = "beacons"

const publishTimeout = 5 * time.Second

// Publisher is the subset of paho.Client the notifier needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// Notifier implements ports.Notifier. Each event goes to
// <prefix>/<beacon key>/<event type> at QoS 1.
type Notifier struct {
	pub    Publisher
	prefix string
	logger log.Logger
}

// NewNotifier wraps an already connected publisher.
func NewNotifier(pub Publisher, prefix string, logger log.Logger) *Notifier {
	if prefix == "" {
		prefix = DefaultTopic
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Notifier{pub: pub, prefix: strings.TrimSuffix(prefix, "/"), logger: logger}
}

// Dial connects to broker and returns a notifier plus a function that
// disconnects the client.
func Dial(broker, clientID, prefix string, logger log.Logger) (*Notifier, func(), error) {
	if clientID == "" {
		clientID = fmt.Sprintf("beacond-%d", time.Now().UnixNano())
	}
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)
	opts = opts.SetOrderMatters(false)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(publishTimeout) {
		return nil, nil, fmt.Errorf("connect to %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", broker, err)
	}
	return NewNotifier(client, prefix, logger), func() { client.Disconnect(250) }, nil
}

// Topic returns the topic an event is published to.
func (n *Notifier) Topic(e domain.Event) string {
	return n.prefix + "/" + e.Identity.Key() + "/" + e.Type.String()
}

// Notify implements ports.Notifier. Publishing is confirmed in the
// background; failures are logged.
func (n *Notifier) Notify(_ context.Context, e domain.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		n.logger.Error("failed to encode event", log.Err(err))
		return
	}

	topic := n.Topic(e)
	token := n.pub.Publish(topic, 1, false, data)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			n.logger.Warn("event publish timed out", log.String("topic", topic))
			return
		}
		if err := token.Error(); err != nil {
			n.logger.Warn("event publish failed", log.String("topic", topic), log.Err(err))
			return
		}
		n.logger.Debug("event published", log.String("topic", topic))
	}()
}
