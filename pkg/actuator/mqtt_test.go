package actuator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaswatch/gaswatch-go/pkg/actuator"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func newFakeToken(err error, complete bool) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

// fakeClient records publishes. Methods other than Publish and Disconnect
// are not used by the actuator.
type fakeClient struct {
	mqtt.Client

	token        *fakeToken
	topic        string
	qos          byte
	retained     bool
	payload      any
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.topic, c.qos, c.retained, c.payload = topic, qos, retained, payload
	return c.token
}

func (c *fakeClient) Disconnect(uint) {
	c.disconnected = true
}

func TestMQTTActuatorPublishes(t *testing.T) {
	client := &fakeClient{token: newFakeToken(nil, true)}
	a := actuator.NewMQTTActuatorWithClient(client, actuator.MQTTConfig{Topic: "site/lamp", QoS: 1, Retained: true})

	require.NoError(t, a.Switch(context.Background(), true))
	assert.Equal(t, "site/lamp", client.topic)
	assert.Equal(t, byte(1), client.qos)
	assert.True(t, client.retained)
	assert.Equal(t, actuator.PayloadOn, client.payload)

	require.NoError(t, a.Switch(context.Background(), false))
	assert.Equal(t, actuator.PayloadOff, client.payload)

	a.Close()
	assert.True(t, client.disconnected)
}

func TestMQTTActuatorPublishError(t *testing.T) {
	boom := errors.New("not connected")
	client := &fakeClient{token: newFakeToken(boom, true)}
	a := actuator.NewMQTTActuatorWithClient(client, actuator.MQTTConfig{Topic: "site/lamp"})

	err := a.Switch(context.Background(), true)
	assert.ErrorIs(t, err, boom)
}

func TestMQTTActuatorContextCancel(t *testing.T) {
	client := &fakeClient{token: newFakeToken(nil, false)}
	a := actuator.NewMQTTActuatorWithClient(client, actuator.MQTTConfig{Topic: "site/lamp"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, a.Switch(ctx, true), context.DeadlineExceeded)
}

func TestNewMQTTActuatorRequiresTopic(t *testing.T) {
	_, err := actuator.NewMQTTActuator(actuator.MQTTConfig{Broker: "tcp://localhost:1883"})
	assert.Error(t, err)
}
