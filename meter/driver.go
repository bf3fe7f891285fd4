package meter

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/weltenwort/go-power-meter-monitor/obis"
)

// Transmission speed table from spec §4.5: the Mode C baud rate id carried
// in identification/acknowledgement messages, keyed on the single ASCII
// character the meter sends.
var TransmissionSpeeds = map[string]int{
	"0": 300,
	"1": 600,
	"2": 1200,
	"3": 2400,
	"4": 4800,
	"5": 9600,
	"6": 19200,
}

// Transport is the duplex the driver reads and writes wire frames on. It
// is expressed structurally, as FrameReader is, so this package never
// imports the transport package.
type Transport interface {
	FrameReader
	Write(ctx context.Context, buf []byte) error
	SetBaudRate(baud int) error
}

// DriverConfig carries the timing parameters and default baud rate the
// driver's effect interpreter is constructed with.
type DriverConfig struct {
	DefaultBaudRate int
	PollingDelay    time.Duration
	ResponseDelay   time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
}

// Driver is the Mode C dialogue effect interpreter: it feeds Step a
// ResetEvent, then loops executing the effects Step returns and feeding
// the outcome back in, forever, publishing every successful readout to
// topic after typed OBIS conversion. One Driver owns one Transport
// exclusively.
type Driver struct {
	transport Transport
	topic     *Topic
	obisCfg   obis.ConfigSet
	cfg       DriverConfig
	logger    *logrus.Entry
}

// NewDriver constructs a driver bound to transport and publishing onto
// topic, converting every readout through obisCfg before publishing.
// logger may be nil, in which case a disabled logger is used.
func NewDriver(transport Transport, topic *Topic, obisCfg obis.ConfigSet, cfg DriverConfig, logger *logrus.Entry) *Driver {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = logrus.NewEntry(l)
	}
	return &Driver{transport: transport, topic: topic, obisCfg: obisCfg, cfg: cfg, logger: logger}
}

// RunOnce drives a single Mode C dialogue to completion and returns its
// typed readout, without entering the reset-and-repeat loop Run uses.
// Intended for one-shot probe tooling; it does not publish to the topic.
func (d *Driver) RunOnce(ctx context.Context) (*obis.TypedDataBlock, error) {
	var state State = InitialState{}
	var event Event = ResetEvent{}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var effects []Effect
		state, effects = Step(state, event, time.Now())
		d.logger.WithField("state", state).Debug("mode c state machine transitioned")

		if s, ok := state.(DataReadoutSuccessState); ok {
			return obis.ConvertBlock(s.Data, d.obisCfg)
		}
		if s, ok := state.(ProtocolErrorState); ok {
			return nil, &ProtocolError{Message: "meter: " + s.Message}
		}

		for _, effect := range effects {
			nextEvent, err := d.runEffect(ctx, effect)
			if err != nil {
				return nil, err
			}
			if nextEvent != nil {
				event = nextEvent
			}
		}
	}
}

// Run executes the driver's effect-interpreter loop until ctx is
// cancelled, at which point it returns ctx.Err() after the in-flight
// suspension point unwinds.
func (d *Driver) Run(ctx context.Context) error {
	var state State = InitialState{}
	var event Event = ResetEvent{}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var effects []Effect
		state, effects = Step(state, event, time.Now())
		d.logger.WithField("state", state).Debug("mode c state machine transitioned")

		switch s := state.(type) {
		case DataReadoutSuccessState:
			typed, err := obis.ConvertBlock(s.Data, d.obisCfg)
			if err != nil {
				d.logger.WithError(err).Warn("failed to convert readout to typed data sets")
				break
			}
			d.topic.Publish(typed)
		case ProtocolErrorState:
			d.logger.WithField("message", s.Message).Warn("mode c protocol error")
		}

		var stepErr error
		for _, effect := range effects {
			if _, ok := effect.(ResetEffect); ok {
				event = ResetEvent{}
				if err := sleepCtx(ctx, d.cfg.PollingDelay); err != nil {
					return err
				}
				continue
			}

			nextEvent, err := d.runEffect(ctx, effect)
			if err != nil {
				stepErr = err
				break
			}
			if nextEvent != nil {
				event = nextEvent
			}
		}

		if stepErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.WithError(stepErr).Warn("recoverable error, resetting dialogue")
			event = ResetEvent{}
			if err := sleepCtx(ctx, d.cfg.PollingDelay); err != nil {
				return err
			}
			continue
		}

		if err := sleepCtx(ctx, d.cfg.ResponseDelay); err != nil {
			return err
		}
	}
}

// runEffect performs one effect and, for AwaitMessageEffect, returns the
// ReceiveMessageEvent to feed back into Step. Every other effect leaves
// the current event unchanged for the step loop to keep using. ResetEffect
// is handled by the caller directly, since it also owns the polling_delay
// sleep.
func (d *Driver) runEffect(ctx context.Context, effect Effect) (Event, error) {
	switch e := effect.(type) {
	case SendMessageEffect:
		writeCtx, cancel := context.WithTimeout(ctx, d.cfg.WriteTimeout)
		defer cancel()
		if err := d.transport.Write(writeCtx, e.Message.Encode()); err != nil {
			if writeCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
				return nil, &TimeoutError{Op: "write"}
			}
			return nil, err
		}
		return nil, nil

	case AwaitMessageEffect:
		readCtx, cancel := context.WithTimeout(ctx, d.cfg.ReadTimeout)
		defer cancel()
		frame, err := ReadFrame(readCtx, d.transport, e.Kind)
		if err != nil {
			if readCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
				return nil, &TimeoutError{Op: "read"}
			}
			return nil, err
		}
		message, err := Parse(e.Kind, frame, time.Now())
		if err != nil {
			return nil, err
		}
		return ReceiveMessageEvent{Message: message}, nil

	case ResetSpeedEffect:
		if err := d.transport.SetBaudRate(d.cfg.DefaultBaudRate); err != nil {
			return nil, err
		}
		return nil, nil

	case ChangeSpeedEffect:
		speed, ok := TransmissionSpeeds[e.BaudRateID]
		if !ok {
			d.logger.WithField("baud_rate_id", e.BaudRateID).Warn("unrecognised baud rate id, proceeding at current speed")
			return nil, nil
		}
		if err := d.transport.SetBaudRate(speed); err != nil {
			return nil, err
		}
		return nil, nil

	default:
		return nil, errors.New("meter: unknown effect")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
