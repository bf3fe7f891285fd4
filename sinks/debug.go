// Package sinks republishes successful meter readouts to a debug log and
// to MQTT using Home Assistant's discovery convention.
package sinks

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/weltenwort/go-power-meter-monitor/obis"
)

// DebugSink logs every readout it receives, the way smacbase's
// FrameStdout/GenericStdout pair dumps every received radio frame, but
// through the structured logger instead of fmt.Printf.
type DebugSink struct {
	logger *logrus.Entry
}

func NewDebugSink(logger *logrus.Entry) *DebugSink {
	return &DebugSink{logger: logger}
}

// Run drains readouts until ctx is cancelled or the channel is closed.
func (s *DebugSink) Run(ctx context.Context, readouts <-chan *obis.TypedDataBlock) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case block, ok := <-readouts:
			if !ok {
				return nil
			}
			entry := s.logger.WithField("manufacturer_identification", block.ManufacturerIdentification)
			for _, ds := range block.DataSets {
				fields := logrus.Fields{"address": ds.ID.String()}
				switch ds.Kind {
				case obis.KindInteger:
					fields["value"] = ds.IntegerValue
				case obis.KindFloat:
					fields["value"] = ds.FloatValue
				case obis.KindString:
					fields["value"] = ds.StringValue
				}
				if ds.Unit != nil {
					fields["unit"] = *ds.Unit
				}
				entry.WithFields(fields).Info("received data set")
			}
		}
	}
}
