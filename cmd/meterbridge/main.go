// Command meterbridge reads IEC 62056-21 Mode C readouts off a serial
// meter and republishes them as Home Assistant MQTT discovery/state
// messages.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/weltenwort/go-power-meter-monitor/config"
	"github.com/weltenwort/go-power-meter-monitor/meter"
	"github.com/weltenwort/go-power-meter-monitor/sinks"
	"github.com/weltenwort/go-power-meter-monitor/transport"
)

var (
	configPath = kingpin.Flag("config", "Path to the YAML configuration file").Default("meterbridge.yaml").String()
	devicePath = kingpin.Flag("device", "Override the configured serial port path").String()
)

func main() {
	kingpin.Version("0.1")
	kingpin.Parse()

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if *devicePath != "" {
		cfg.SerialPort.PortURL = *devicePath
	}

	logger := newLogger(cfg.Logging.Level)

	obisCfg, err := cfg.Obis.ToConfigSet()
	if err != nil {
		logger.WithError(err).Fatal("invalid obis configuration")
	}

	serialTransport, err := transport.OpenSerial(transport.SerialOptions{
		PortURL:  cfg.SerialPort.PortURL,
		BaudRate: cfg.SerialPort.BaudRate,
		ByteSize: cfg.SerialPort.ByteSize,
		Parity:   string(cfg.SerialPort.Parity),
		StopBits: float64(cfg.SerialPort.StopBits),
	})
	if err != nil {
		logger.WithError(err).Fatal("error opening serial port")
	}
	defer serialTransport.Close()

	topic := meter.NewTopic()
	driver := meter.NewDriver(serialTransport, topic, obisCfg, meter.DriverConfig{
		DefaultBaudRate: cfg.SerialPort.BaudRate,
		PollingDelay:    secondsToDuration(cfg.SerialPort.PollingDelay),
		ResponseDelay:   secondsToDuration(cfg.SerialPort.ResponseDelay),
		ReadTimeout:     secondsToDuration(cfg.SerialPort.ReadTimeout),
		WriteTimeout:    secondsToDuration(cfg.SerialPort.WriteTimeout),
	}, logger.WithField("component", "driver"))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	debugReadouts, unsubscribeDebug := topic.Subscribe()
	defer unsubscribeDebug()
	debugSink := sinks.NewDebugSink(logger.WithField("component", "debug_sink"))

	done := make(chan struct{}, 2)
	go func() {
		if err := debugSink.Run(ctx, debugReadouts); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("debug sink stopped")
		}
		done <- struct{}{}
	}()

	if cfg.Mqtt.Enabled {
		mqttClient := newMqttClient(cfg.Mqtt)
		if token := mqttClient.Connect(); token.Wait() && token.Error() != nil {
			logger.WithError(token.Error()).Fatal("error connecting to mqtt broker")
		}
		defer mqttClient.Disconnect(250)

		mqttReadouts, unsubscribeMqtt := topic.Subscribe()
		defer unsubscribeMqtt()
		mqttSink := sinks.NewMqttSink(mqttClient, cfg.Mqtt, obisCfg, logger.WithField("component", "mqtt_sink"))

		go func() {
			if err := mqttSink.Run(ctx, mqttReadouts); err != nil && ctx.Err() == nil {
				logger.WithError(err).Error("mqtt sink stopped")
			}
			done <- struct{}{}
		}()
	} else {
		done <- struct{}{}
	}

	logger.Info("meterbridge starting")
	if err := driver.Run(ctx); err != nil && ctx.Err() == nil {
		logger.WithError(err).Fatal("driver stopped unexpectedly")
	}

	cancel()
	<-done
	<-done
}

func newLogger(level config.LoggingLevel) *logrus.Entry {
	l := logrus.New()
	parsed, err := logrus.ParseLevel(string(level))
	if err != nil {
		parsed = logrus.ErrorLevel
	}
	l.SetLevel(parsed)
	return logrus.NewEntry(l)
}

func newMqttClient(cfg config.MqttConfig) mqtt.Client {
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker.Hostname, cfg.Broker.Port)).
		SetClientID(cfg.Device.ID).
		SetAutoReconnect(true)
	if cfg.Broker.Username != "" {
		opts.SetUsername(cfg.Broker.Username)
		opts.SetPassword(cfg.Broker.Password)
	}
	return mqtt.NewClient(opts)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
