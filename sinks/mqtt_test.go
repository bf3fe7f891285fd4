package sinks

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/weltenwort/go-power-meter-monitor/config"
	"github.com/weltenwort/go-power-meter-monitor/obis"
)

type publishedMessage struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeToken struct{}

func (fakeToken) Wait() bool                       { return true }
func (fakeToken) WaitTimeout(time.Duration) bool   { return true }
func (fakeToken) Done() <-chan struct{}            { ch := make(chan struct{}); close(ch); return ch }
func (fakeToken) Error() error                     { return nil }

type fakeMqttClient struct {
	published []publishedMessage
}

func (c *fakeMqttClient) IsConnected() bool      { return true }
func (c *fakeMqttClient) IsConnectionOpen() bool { return true }
func (c *fakeMqttClient) Connect() mqtt.Token    { return fakeToken{} }
func (c *fakeMqttClient) Disconnect(uint)        {}
func (c *fakeMqttClient) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	body, _ := payload.([]byte)
	c.published = append(c.published, publishedMessage{topic: topic, retained: retained, payload: body})
	return fakeToken{}
}
func (c *fakeMqttClient) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token { return fakeToken{} }
func (c *fakeMqttClient) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return fakeToken{}
}
func (c *fakeMqttClient) Unsubscribe(...string) mqtt.Token          { return fakeToken{} }
func (c *fakeMqttClient) AddRoute(string, mqtt.MessageHandler)      {}
func (c *fakeMqttClient) OptionsReader() mqtt.ClientOptionsReader   { return mqtt.ClientOptionsReader{} }

func testMqttConfig() config.MqttConfig {
	return config.MqttConfig{
		Enabled:                    true,
		ConfigurationTopicTemplate: "homeassistant/sensor/{entity_id}/config",
		StateTopicTemplate:         "homeassistant/sensor/{entity_id}/state",
		Device: config.MqttDeviceConfig{
			ID:           "power-meter-0",
			Name:         "Power Meter",
			Manufacturer: "ACME",
			Model:        "Unknown Model",
		},
	}
}

func testObisConfigSet() obis.ConfigSet {
	return obis.NewConfigSet([]obis.DataSetConfig{
		{ID: obis.ID{A: 1, B: 0, C: 1, D: 8, E: 0, F: 255}, Name: "total_active_energy", ValueType: obis.ValueTypeFloat},
		{ID: obis.MeteringPointIDObisID, Name: "metering_point_id", ValueType: obis.ValueTypeString},
	})
}

func newTestLogger() *logrus.Entry {
	l := logrus.New()
	return logrus.NewEntry(l)
}

func TestMqttSinkPublishesConfigurationOnFirstSightingThenState(t *testing.T) {
	unit := "kWh" // exercises device_class/state_class lookup by unit
	block := &obis.TypedDataBlock{
		ManufacturerIdentification: "LK13BE",
		DataSets: []*obis.TypedDataSet{
			{Timestamp: fixedTestTime, ID: obis.ID{A: 1, B: 0, C: 1, D: 8, E: 0, F: 255}, Kind: obis.KindFloat, FloatValue: 15882.6927, Unit: &unit},
			{Timestamp: fixedTestTime, ID: obis.MeteringPointIDObisID, Kind: obis.KindString, StringValue: "ID12345"},
		},
	}

	client := &fakeMqttClient{}
	sink := NewMqttSink(client, testMqttConfig(), testObisConfigSet(), newTestLogger())

	require.NoError(t, sink.publishBlock(block))

	require.Len(t, client.published, 4) // config+state per data set
	configMsg := client.published[0]
	require.Equal(t, "homeassistant/sensor/Power-Meter-total_active_energy/config", configMsg.topic)
	require.True(t, configMsg.retained)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(configMsg.payload, &payload))
	require.Equal(t, "Power Meter total_active_energy", payload["name"])
	require.Equal(t, "kWh", payload["unit_of_measurement"])
	require.Equal(t, "energy", payload["device_class"])

	stateMsg := client.published[1]
	require.Equal(t, "homeassistant/sensor/Power-Meter-total_active_energy/state", stateMsg.topic)
}

func TestMqttSinkConfiguresEachSensorOnlyOnce(t *testing.T) {
	block := &obis.TypedDataBlock{
		DataSets: []*obis.TypedDataSet{
			{Timestamp: fixedTestTime, ID: obis.ID{A: 1, B: 0, C: 1, D: 8, E: 0, F: 255}, Kind: obis.KindFloat, FloatValue: 1},
		},
	}

	client := &fakeMqttClient{}
	sink := NewMqttSink(client, testMqttConfig(), testObisConfigSet(), newTestLogger())

	require.NoError(t, sink.publishBlock(block))
	require.NoError(t, sink.publishBlock(block))

	var configCount int
	for _, m := range client.published {
		if m.topic == "homeassistant/sensor/Power-Meter-total_active_energy/config" {
			configCount++
		}
	}
	require.Equal(t, 1, configCount)
}

func TestMqttSinkSkipsUnconfiguredDataSets(t *testing.T) {
	block := &obis.TypedDataBlock{
		DataSets: []*obis.TypedDataSet{
			{Timestamp: fixedTestTime, ID: obis.ID{A: 1, B: 0, C: 99, D: 99, E: 0, F: 255}, Kind: obis.KindUnknown},
		},
	}

	client := &fakeMqttClient{}
	sink := NewMqttSink(client, testMqttConfig(), testObisConfigSet(), newTestLogger())
	require.NoError(t, sink.publishBlock(block))
	require.Empty(t, client.published)
}

func TestMqttSinkRunStopsOnContextCancel(t *testing.T) {
	client := &fakeMqttClient{}
	sink := NewMqttSink(client, testMqttConfig(), testObisConfigSet(), newTestLogger())

	readouts := make(chan *obis.TypedDataBlock)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sink.Run(ctx, readouts)
	require.ErrorIs(t, err, context.Canceled)
}

var fixedTestTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
