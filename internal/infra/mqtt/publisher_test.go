package mqtt

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spider-home/internal/application"
	"spider-home/internal/domain"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

type fakeClient struct {
	messages []published
	failOn   string
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	f.messages = append(f.messages, published{topic, qos, retained, string(payload.([]byte))})
	if topic == f.failOn {
		return &fakeToken{err: errors.New("not connected")}
	}
	return &fakeToken{}
}

func newTestSink(client *fakeClient) *Sink {
	return NewSink(client, "home/spider", 1, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testSnapshot() application.Snapshot {
	return application.Snapshot{
		Time: time.Date(2024, 3, 14, 15, 9, 26, 0, time.UTC),
		Thermostats: []domain.Device{{
			ID:       "t1",
			Name:     "Living room",
			IsOnline: true,
			Properties: []domain.Property{
				{ID: domain.PropertyAmbientTemperature, Status: "20.5"},
				{ID: domain.PropertySetpointTemperature, Status: "21"},
				{ID: domain.PropertyOperationMode, Status: "Heat"},
			},
		}},
		PowerPlugs: []domain.Device{{
			ID:           "p1",
			Name:         "Washer",
			IsOnline:     true,
			IsSwitch:     true,
			IsSwitchedOn: true,
			CurrentUsage: 12.5,
		}},
	}
}

func TestSink_PublishesRetainedState(t *testing.T) {
	client := &fakeClient{}
	sink := newTestSink(client)

	require.NoError(t, sink.Write(context.Background(), testSnapshot()))
	require.Len(t, client.messages, 2)

	thermostat := client.messages[0]
	assert.Equal(t, "home/spider/thermostat/t1/state", thermostat.topic)
	assert.Equal(t, byte(1), thermostat.qos)
	assert.True(t, thermostat.retained)
	assert.JSONEq(t, `{
		"id": "t1",
		"name": "Living room",
		"online": true,
		"updated_at": "2024-03-14T15:09:26Z",
		"current_temperature": 20.5,
		"target_temperature": 21,
		"operation_mode": "Heat"
	}`, thermostat.payload)

	plug := client.messages[1]
	assert.Equal(t, "home/spider/power_plug/p1/state", plug.topic)
	assert.JSONEq(t, `{
		"id": "p1",
		"name": "Washer",
		"online": true,
		"updated_at": "2024-03-14T15:09:26Z",
		"switched_on": true,
		"current_usage": 12.5
	}`, plug.payload)
}

func TestSink_PublishFailureDoesNotStopOthers(t *testing.T) {
	client := &fakeClient{failOn: "home/spider/thermostat/t1/state"}
	sink := newTestSink(client)

	err := sink.Write(context.Background(), testSnapshot())

	assert.ErrorIs(t, err, ErrPublishFailed)
	assert.Len(t, client.messages, 2)
}

func TestConnect_RejectsInvalidQoS(t *testing.T) {
	_, err := Connect(Config{Broker: "tcp://127.0.0.1:1", QoS: 3}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorIs(t, err, ErrInvalidQoS)
}
