// Command meterctl performs a single IEC 62056-21 Mode C readout dialogue
// against a serial meter and prints the result, for wiring checks and
// manual diagnosis.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/weltenwort/go-power-meter-monitor/config"
	"github.com/weltenwort/go-power-meter-monitor/meter"
	"github.com/weltenwort/go-power-meter-monitor/obis"
	"github.com/weltenwort/go-power-meter-monitor/transport"
)

var (
	devicePath    = kingpin.Flag("device", "Path to the serial port device").Required().String()
	baudRate      = kingpin.Flag("baud", "Initial handshake baud rate").Default("300").Int()
	readTimeout   = kingpin.Flag("read-timeout", "Read deadline in seconds").Default("10").Float64()
	writeTimeout  = kingpin.Flag("write-timeout", "Write deadline in seconds").Default("10").Float64()
	probeDeadline = kingpin.Flag("deadline", "Overall probe deadline in seconds").Default("30").Float64()
	configPath    = kingpin.Flag("config", "Path to the YAML configuration file, for the OBIS id table").Default("meterbridge.yaml").String()
)

type dataSetView struct {
	Address string      `json:"address"`
	Value   interface{} `json:"value,omitempty"`
	Unit    *string     `json:"unit,omitempty"`
}

func main() {
	kingpin.Version("0.1")
	kingpin.Parse()

	logger := logrus.NewEntry(logrus.New())

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		fmt.Printf("error loading configuration: %v\n", err)
		os.Exit(1)
	}
	obisCfg, err := cfg.Obis.ToConfigSet()
	if err != nil {
		fmt.Printf("invalid obis configuration: %v\n", err)
		os.Exit(1)
	}

	port, err := transport.OpenSerial(transport.SerialOptions{
		PortURL:  *devicePath,
		BaudRate: *baudRate,
		ByteSize: 8,
		Parity:   "N",
		StopBits: 1,
	})
	if err != nil {
		fmt.Printf("error opening serial port: %v\n", err)
		os.Exit(1)
	}
	defer port.Close()

	driver := meter.NewDriver(port, meter.NewTopic(), obisCfg, meter.DriverConfig{
		DefaultBaudRate: *baudRate,
		ReadTimeout:     time.Duration(*readTimeout * float64(time.Second)),
		WriteTimeout:    time.Duration(*writeTimeout * float64(time.Second)),
	}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*probeDeadline*float64(time.Second)))
	defer cancel()

	block, err := driver.RunOnce(ctx)
	if err != nil {
		fmt.Printf("probe failed: %v\n", err)
		os.Exit(1)
	}

	views := make([]dataSetView, 0, len(block.DataSets))
	for _, ds := range block.DataSets {
		var value interface{}
		switch ds.Kind {
		case obis.KindInteger:
			value = ds.IntegerValue
		case obis.KindFloat:
			value = ds.FloatValue
		case obis.KindString:
			value = ds.StringValue
		}
		views = append(views, dataSetView{Address: ds.ID.String(), Value: value, Unit: ds.Unit})
	}

	output, err := json.MarshalIndent(struct {
		ManufacturerIdentification string        `json:"manufacturer_identification"`
		DataSets                   []dataSetView `json:"data_sets"`
	}{ManufacturerIdentification: block.ManufacturerIdentification, DataSets: views}, "", "  ")
	if err != nil {
		fmt.Printf("error encoding result: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(output))
}
