package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/weltenwort/go-power-meter-monitor/config"
	"github.com/weltenwort/go-power-meter-monitor/obis"
)

// deviceClassByUnit and stateClassByUnit restore the Home Assistant sensor
// metadata the original MQTT logger attached per unit, dropped from the
// distilled spec.
var deviceClassByUnit = map[string]string{
	"°C":  "temperature",
	"W":   "power",
	"kW":  "power",
	"Wh":  "energy",
	"kWh": "energy",
	"A":   "current",
	"V":   "voltage",
}

var stateClassByUnit = map[string]string{
	"°C":  "measurement",
	"W":   "measurement",
	"kW":  "measurement",
	"Wh":  "total_increasing",
	"kWh": "total_increasing",
	"A":   "measurement",
	"V":   "measurement",
}

var slugReplacementExpression = regexp.MustCompile(`\W`)

func slugify(name string) string {
	return slugReplacementExpression.ReplaceAllString(name, "-")
}

// MqttSink republishes every typed data set in a readout as a retained
// Home Assistant MQTT discovery config (once per sensor) followed by a
// retained state update.
type MqttSink struct {
	client     mqtt.Client
	cfg        config.MqttConfig
	obisCfg    obis.ConfigSet
	logger     *logrus.Entry
	configured map[obis.ID]bool
}

func NewMqttSink(client mqtt.Client, cfg config.MqttConfig, obisCfg obis.ConfigSet, logger *logrus.Entry) *MqttSink {
	return &MqttSink{
		client:     client,
		cfg:        cfg,
		obisCfg:    obisCfg,
		logger:     logger,
		configured: make(map[obis.ID]bool),
	}
}

// Run drains readouts until ctx is cancelled or the channel is closed,
// publishing each one's typed data sets to MQTT.
func (s *MqttSink) Run(ctx context.Context, readouts <-chan *obis.TypedDataBlock) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case block, ok := <-readouts:
			if !ok {
				return nil
			}
			if err := s.publishBlock(block); err != nil {
				s.logger.WithError(err).Error("failed to publish readout to mqtt")
			}
		}
	}
}

func (s *MqttSink) publishBlock(block *obis.TypedDataBlock) error {
	deviceID, _ := block.DeviceID()

	for _, ds := range block.DataSets {
		entry, ok := s.obisCfg[ds.ID]
		if !ok || ds.Kind == obis.KindUnknown {
			s.logger.WithField("id", ds.ID.String()).Error("unknown obis data set config for id")
			continue
		}

		if !s.configured[ds.ID] {
			if err := s.publishConfiguration(entry, block, ds, deviceID); err != nil {
				return err
			}
			s.configured[ds.ID] = true
		}

		if err := s.publishState(entry, ds); err != nil {
			return err
		}
	}
	return nil
}

func (s *MqttSink) sensorName(entry obis.DataSetConfig) string {
	return fmt.Sprintf("%s %s", s.cfg.Device.Name, entry.Name)
}

func (s *MqttSink) configurationTopic(entry obis.DataSetConfig) string {
	return strings.ReplaceAll(s.cfg.ConfigurationTopicTemplate, "{entity_id}", slugify(s.sensorName(entry)))
}

func (s *MqttSink) stateTopic(entry obis.DataSetConfig) string {
	return strings.ReplaceAll(s.cfg.StateTopicTemplate, "{entity_id}", slugify(s.sensorName(entry)))
}

type discoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	Name         string   `json:"name"`
}

type discoveryPayload struct {
	Name              string          `json:"name"`
	StateTopic        string          `json:"state_topic"`
	ValueTemplate     string          `json:"value_template"`
	Device            discoveryDevice `json:"device"`
	UniqueID          string          `json:"unique_id"`
	UnitOfMeasurement string          `json:"unit_of_measurement,omitempty"`
	DeviceClass       string          `json:"device_class,omitempty"`
	StateClass        string          `json:"state_class,omitempty"`
}

func (s *MqttSink) publishConfiguration(entry obis.DataSetConfig, block *obis.TypedDataBlock, ds *obis.TypedDataSet, deviceID string) error {
	name := s.sensorName(entry)
	model := s.cfg.Device.Model
	if block.ManufacturerIdentification != "" {
		model = block.ManufacturerIdentification
	}

	payload := discoveryPayload{
		Name:          name,
		StateTopic:    s.stateTopic(entry),
		ValueTemplate: "{{ value_json.value }}",
		Device: discoveryDevice{
			Identifiers:  []string{deviceID},
			Manufacturer: s.cfg.Device.Manufacturer,
			Model:        model,
			Name:         s.cfg.Device.Name,
		},
		UniqueID: name,
	}
	if ds.Unit != nil {
		payload.UnitOfMeasurement = *ds.Unit
		payload.DeviceClass = deviceClassByUnit[*ds.Unit]
		payload.StateClass = stateClassByUnit[*ds.Unit]
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.publish(s.configurationTopic(entry), body)
}

func (s *MqttSink) publishState(entry obis.DataSetConfig, ds *obis.TypedDataSet) error {
	var value interface{}
	switch ds.Kind {
	case obis.KindInteger:
		value = ds.IntegerValue
	case obis.KindFloat:
		value = ds.FloatValue
	case obis.KindString:
		value = ds.StringValue
	}

	body, err := json.Marshal(struct {
		Timestamp int64       `json:"timestamp"`
		Value     interface{} `json:"value"`
	}{Timestamp: ds.Timestamp.Unix(), Value: value})
	if err != nil {
		return err
	}
	return s.publish(s.stateTopic(entry), body)
}

func (s *MqttSink) publish(topic string, payload []byte) error {
	token := s.client.Publish(topic, 1, true, payload)
	token.Wait()
	return token.Error()
}
