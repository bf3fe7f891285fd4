// Package config loads meterbridge's YAML configuration file and supplies
// the defaults every section falls back to when a value is omitted.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/weltenwort/go-power-meter-monitor/obis"
)

// Parity is the serial port parity mode. Values mirror the IEC 62056-21
// host's request frame, not the transport library's enum.
type Parity string

const (
	ParityNone  Parity = "N"
	ParityEven  Parity = "E"
	ParityOdd   Parity = "O"
	ParityMark  Parity = "M"
	ParitySpace Parity = "S"
)

// StopBits is the serial port stop-bit count. 1.5 is accepted for parsing
// fidelity with the original configuration shape; the serial transport
// rounds it down to one stop bit, since most UART hardware (and the
// go-serial library) has no 1.5 stop-bit mode.
type StopBits float64

const (
	StopBitsOne         StopBits = 1
	StopBitsOneAndHalf  StopBits = 1.5
	StopBitsTwo         StopBits = 2
)

// SerialConfig describes the serial port the meter is attached to and the
// driver's timing parameters.
type SerialConfig struct {
	PortURL        string   `yaml:"port_url"`
	BaudRate       int      `yaml:"baud_rate"`
	ByteSize       int      `yaml:"byte_size"`
	Parity         Parity   `yaml:"parity"`
	StopBits       StopBits `yaml:"stop_bits"`
	PollingDelay   float64  `yaml:"polling_delay"`
	ResponseDelay  float64  `yaml:"response_delay"`
	ReadTimeout    float64  `yaml:"read_timeout"`
	WriteTimeout   float64  `yaml:"write_timeout"`
}

func defaultSerialConfig() SerialConfig {
	return SerialConfig{
		PortURL:       "/dev/ttyUSB0",
		BaudRate:      9600,
		ByteSize:      8,
		Parity:        ParityNone,
		StopBits:      StopBitsOne,
		PollingDelay:  30.0,
		ResponseDelay: 0.5,
		ReadTimeout:   10.0,
		WriteTimeout:  10.0,
	}
}

// LoggingLevel names a logrus level by the same vocabulary the original
// configuration file used.
type LoggingLevel string

const (
	LoggingLevelCritical LoggingLevel = "critical"
	LoggingLevelError    LoggingLevel = "error"
	LoggingLevelWarning  LoggingLevel = "warning"
	LoggingLevelInfo     LoggingLevel = "info"
	LoggingLevelDebug    LoggingLevel = "debug"
)

type LoggingConfig struct {
	Level LoggingLevel `yaml:"level"`
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{Level: LoggingLevelError}
}

// MqttBrokerConfig addresses the MQTT broker the meter sink publishes to.
type MqttBrokerConfig struct {
	Hostname string `yaml:"hostname"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

func defaultMqttBrokerConfig() MqttBrokerConfig {
	return MqttBrokerConfig{Hostname: "localhost", Port: 1883}
}

// MqttDeviceConfig identifies the meter as a Home Assistant device.
type MqttDeviceConfig struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Manufacturer string `yaml:"manufacturer"`
	Model        string `yaml:"model"`
}

func defaultMqttDeviceConfig() MqttDeviceConfig {
	return MqttDeviceConfig{
		ID:           "power-meter-0",
		Name:         "Power Meter 0",
		Manufacturer: "Unknown Manufacturer",
		Model:        "Unknown Model",
	}
}

// MqttConfig controls whether and how readouts are republished as Home
// Assistant MQTT discovery/state messages.
type MqttConfig struct {
	Enabled                    bool             `yaml:"enabled"`
	ConfigurationTopicTemplate string           `yaml:"configuration_topic_template"`
	StateTopicTemplate         string           `yaml:"state_topic_template"`
	Broker                     MqttBrokerConfig `yaml:"broker"`
	Device                     MqttDeviceConfig `yaml:"device"`
}

func defaultMqttConfig() MqttConfig {
	return MqttConfig{
		Enabled:                    true,
		ConfigurationTopicTemplate: "homeassistant/sensor/{entity_id}/config",
		StateTopicTemplate:         "homeassistant/sensor/{entity_id}/state",
		Broker:                     defaultMqttBrokerConfig(),
		Device:                     defaultMqttDeviceConfig(),
	}
}

// ObisDataSetConfig names one OBIS id the configuration understands and
// the Go type its value decodes into.
type ObisDataSetConfig struct {
	ID        [6]int `yaml:"id"`
	Name      string `yaml:"name"`
	ValueType string `yaml:"value_type"`
}

type ObisConfig struct {
	DataSets []ObisDataSetConfig `yaml:"data_sets"`
}

// ToConfigSet converts the loaded OBIS configuration into the lookup table
// the obis package's typed conversion consumes.
func (c ObisConfig) ToConfigSet() (obis.ConfigSet, error) {
	entries := make([]obis.DataSetConfig, 0, len(c.DataSets))
	for _, ds := range c.DataSets {
		var vt obis.ValueType
		switch ds.ValueType {
		case "integer":
			vt = obis.ValueTypeInteger
		case "float":
			vt = obis.ValueTypeFloat
		case "string":
			vt = obis.ValueTypeString
		default:
			return nil, &InvalidValueTypeError{Name: ds.Name, ValueType: ds.ValueType}
		}
		entries = append(entries, obis.DataSetConfig{
			ID: obis.ID{
				A: ds.ID[0], B: ds.ID[1], C: ds.ID[2],
				D: ds.ID[3], E: ds.ID[4], F: ds.ID[5],
			},
			Name:      ds.Name,
			ValueType: vt,
		})
	}
	return obis.NewConfigSet(entries), nil
}

// InvalidValueTypeError reports an ObisDataSetConfig entry naming a
// value_type other than integer, float, or string.
type InvalidValueTypeError struct {
	Name      string
	ValueType string
}

func (e *InvalidValueTypeError) Error() string {
	return "config: obis data set " + e.Name + " has unknown value_type " + e.ValueType
}

// Config is the top-level meterbridge configuration document.
type Config struct {
	Logging    LoggingConfig `yaml:"logging"`
	SerialPort SerialConfig  `yaml:"serial_port"`
	Mqtt       MqttConfig    `yaml:"mqtt"`
	Obis       ObisConfig    `yaml:"obis"`
}

// Default returns the configuration used when no file is present, matching
// every field a freshly constructed file would default to.
func Default() Config {
	return Config{
		Logging:    defaultLoggingConfig(),
		SerialPort: defaultSerialConfig(),
		Mqtt:       defaultMqttConfig(),
		Obis:       ObisConfig{},
	}
}

// LoadFile reads and parses the YAML configuration at path, starting from
// Default() so any field the file omits keeps its default value.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
