// Package mqttbridge republishes XBee device state onto an MQTT broker.
package mqttbridge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"xbeelink/internal/xbee"
)

// Config holds MQTT bridge connection settings.
type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
}

// Bridge republishes a device's identity and IO-sample events as retained
// MQTT messages under <prefix>/<addr64>/..., with a bridge-availability
// topic set on connect and on Stop.
type Bridge struct {
	client pahomqtt.Client
	prefix string
	logger *slog.Logger
	unsub  func()
}

// stateMessage is the payload published to <prefix>/<addr64>/state.
type stateMessage struct {
	NodeID          string `json:"node_id"`
	HardwareVersion string `json:"hardware_version"`
	FirmwareVersion string `json:"firmware_version"`
	Protocol        string `json:"protocol"`
}

// NewBridge connects to the broker and configures its will topic, but
// does not yet subscribe to device events; call Start for that.
func NewBridge(cfg Config, logger *slog.Logger) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{prefix: cfg.TopicPrefix, logger: logger.With("component", "mqttbridge")}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID("xbeelink").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(cfg.TopicPrefix+"/bridge/state", "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("mqtt connected")
			b.publish(cfg.TopicPrefix+"/bridge/state", []byte("online"), true)
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("mqtt connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	b.client = client
	return b, nil
}

// Start subscribes to bus's device events and begins publishing. Stop
// removes the subscription.
func (b *Bridge) Start(bus *xbee.EventBus) {
	b.unsub = bus.OnAll(b.handleEvent)
	b.logger.Info("mqtt bridge started", "prefix", b.prefix)
}

// Stop publishes the offline availability state, unsubscribes from the
// event bus, and disconnects from the broker.
func (b *Bridge) Stop() {
	if b.unsub != nil {
		b.unsub()
	}
	b.publish(b.prefix+"/bridge/state", []byte("offline"), true)
	b.client.Disconnect(1000)
	b.logger.Info("mqtt bridge stopped")
}

func (b *Bridge) handleEvent(event xbee.DeviceEvent) {
	switch event.Type {
	case xbee.EventIdentityUpdated:
		b.publishState(event)
	case xbee.EventIOSample:
		b.publishSample(event)
	}
}

func (b *Bridge) publishState(event xbee.DeviceEvent) {
	payload, err := json.Marshal(buildStateMessage(event.Identity))
	if err != nil {
		b.logger.Error("marshal state", "err", err)
		return
	}
	b.publish(stateTopic(b.prefix, event.Addr64), payload, true)
}

func (b *Bridge) publishSample(event xbee.DeviceEvent) {
	if event.Sample == nil {
		return
	}
	for line, v := range event.Sample.Digital {
		topic := ioTopic(b.prefix, event.Addr64, line.String())
		b.publish(topic, []byte(v.String()), true)
	}
	for line, v := range event.Sample.Analog {
		topic := ioTopic(b.prefix, event.Addr64, line.String())
		b.publish(topic, []byte(fmt.Sprintf("%d", v)), true)
	}
}

// buildStateMessage projects a DeviceIdentity into the JSON shape
// published on the state topic.
func buildStateMessage(identity xbee.DeviceIdentity) stateMessage {
	return stateMessage{
		NodeID:          identity.NodeID,
		HardwareVersion: identity.HardwareVersion.String(),
		FirmwareVersion: identity.FirmwareVersion,
		Protocol:        identity.Protocol.String(),
	}
}

func stateTopic(prefix string, addr xbee.Addr64) string {
	return fmt.Sprintf("%s/%s/state", prefix, addr.String())
}

func ioTopic(prefix string, addr xbee.Addr64, line string) string {
	return fmt.Sprintf("%s/%s/io/%s", prefix, addr.String(), line)
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	token := b.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("mqtt publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("mqtt publish error", "topic", topic, "err", err)
		}
	}()
}
