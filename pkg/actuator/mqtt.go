package actuator

import (
	"context"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Payloads published by MQTTActuator.
const (
	PayloadOn  = "ON"
	PayloadOff = "OFF"
)

// MQTTConfig configures an MQTTActuator.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
	Retained bool
}

// MQTTActuator publishes the lamp state to a broker topic.
type MQTTActuator struct {
	client mqtt.Client
	cfg    MQTTConfig
}

// NewMQTTActuator connects to the broker.
func NewMQTTActuator(cfg MQTTConfig) (*MQTTActuator, error) {
	if cfg.Topic == "" {
		return nil, fmt.Errorf("mqtt actuator: topic is required")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
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

	return NewMQTTActuatorWithClient(client, cfg), nil
}

// NewMQTTActuatorWithClient uses an already connected client.
func NewMQTTActuatorWithClient(client mqtt.Client, cfg MQTTConfig) *MQTTActuator {
	return &MQTTActuator{client: client, cfg: cfg}
}

// Switch publishes ON or OFF and waits for the broker to accept it.
func (a *MQTTActuator) Switch(ctx context.Context, on bool) error {
	payload := PayloadOff
	if on {
		payload = PayloadOn
	}

	token := a.client.Publish(a.cfg.Topic, a.cfg.QoS, a.cfg.Retained, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", a.cfg.Topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (a *MQTTActuator) Close() {
	a.client.Disconnect(250)
}
