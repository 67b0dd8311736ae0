package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stanstork/beacon/internal/config"
	"github.com/stanstork/beacon/internal/models"
)

type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// PushSender publishes push payloads to an MQTT broker, one topic per device group.
type PushSender struct {
	client      mqttPublisher
	topicPrefix string
	qos         byte
}

// NewPushSender connects to the broker configured in cfg.
func NewPushSender(cfg config.PushConfig) (*PushSender, error) {
	if strings.TrimSpace(cfg.BrokerURL) == "" {
		return nil, fmt.Errorf("push.broker_url is required for push delivery")
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return newPushSender(client, cfg.TopicPrefix, cfg.QoS), nil
}

func newPushSender(client mqttPublisher, topicPrefix string, qos byte) *PushSender {
	return &PushSender{
		client:      client,
		topicPrefix: strings.TrimSuffix(strings.TrimSpace(topicPrefix), "/"),
		qos:         qos,
	}
}

func (s *PushSender) Channel() models.Channel {
	return models.ChannelPush
}

func (s *PushSender) topic(pushTopic string) string {
	if s.topicPrefix == "" {
		return pushTopic
	}
	return s.topicPrefix + "/" + pushTopic
}

func (s *PushSender) Send(ctx context.Context, msg Message) error {
	if strings.ContainsAny(msg.To, "+#") {
		return Permanent(fmt.Errorf("push topic %q contains wildcards", msg.To))
	}
	payload, err := json.Marshal(map[string]string{
		"notification_id": msg.NotificationID,
		"title":           msg.Title,
		"body":            msg.Body,
		"priority":        string(msg.Priority),
		"category":        msg.Category,
	})
	if err != nil {
		return Permanent(fmt.Errorf("marshal push payload: %w", err))
	}

	token := s.client.Publish(s.topic(msg.To), s.qos, false, payload)
	timeout := 10 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("publish to %s timed out", s.topic(msg.To))
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", s.topic(msg.To), err)
	}
	return nil
}

// Close disconnects from the broker, waiting up to 250ms for in-flight work.
func (s *PushSender) Close() {
	s.client.Disconnect(250)
}

func (s *PushSender) String() string {
	return fmt.Sprintf("PushSender(prefix=%s)", s.topicPrefix)
}
