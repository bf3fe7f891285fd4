package meter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weltenwort/go-power-meter-monitor/obis"
)

func TestStepResetAlwaysReturnsToInitial(t *testing.T) {
	next, effects := Step(IdentifiedState{ManufacturerID: "LGZ"}, ResetEvent{}, fixedTime)

	require.Equal(t, InitialState{}, next)
	require.Len(t, effects, 3)
	send, ok := effects[0].(SendMessageEffect)
	require.True(t, ok)
	require.Equal(t, KindRequest, send.Message.Kind())
	require.IsType(t, ResetSpeedEffect{}, effects[1])
	await, ok := effects[2].(AwaitMessageEffect)
	require.True(t, ok)
	require.Equal(t, KindIdentification, await.Kind)
}

func TestStepInitialReceivesIdentification(t *testing.T) {
	id := NewIdentificationMessage(fixedTime, "LGZ", "5", "", "ZMD3104107.B40")
	next, effects := Step(InitialState{}, ReceiveMessageEvent{Message: id}, fixedTime)

	identified, ok := next.(IdentifiedState)
	require.True(t, ok)
	require.Equal(t, "LGZ", identified.ManufacturerID)
	require.Equal(t, "5", identified.BaudRateID)
	require.Equal(t, "ZMD3104107.B40", identified.Identification)

	require.Len(t, effects, 3)
	send, ok := effects[0].(SendMessageEffect)
	require.True(t, ok)
	ack, ok := send.Message.(*AcknowledgementMessage)
	require.True(t, ok)
	require.Equal(t, "0", ack.ProtocolControl)
	require.Equal(t, "5", ack.BaudRateID)
	require.Equal(t, "0", ack.ModeControl)

	change, ok := effects[1].(ChangeSpeedEffect)
	require.True(t, ok)
	require.Equal(t, "5", change.BaudRateID)

	await, ok := effects[2].(AwaitMessageEffect)
	require.True(t, ok)
	require.Equal(t, KindData, await.Kind)
}

func TestStepInitialUnexpectedMessageIsProtocolError(t *testing.T) {
	ack := NewAcknowledgementMessage(fixedTime, "0", "5", "0")
	next, effects := Step(InitialState{}, ReceiveMessageEvent{Message: ack}, fixedTime)

	protoErr, ok := next.(ProtocolErrorState)
	require.True(t, ok)
	require.Contains(t, protoErr.Message, "identification")
	require.Equal(t, []Effect{ResetEffect{}}, effects)
}

func TestStepIdentifiedReceivesData(t *testing.T) {
	value := "015882.6927"
	unit := "kWh"
	block := &obis.DataBlock{
		DataSets: []*obis.DataSet{{Timestamp: fixedTime, Address: "1-0:1.8.0*255", Value: &value, Unit: &unit}},
	}
	data := NewDataMessage(fixedTime, block)

	state := IdentifiedState{ManufacturerID: "LGZ", BaudRateID: "5", Identification: "ZMD3104107.B40"}
	next, effects := Step(state, ReceiveMessageEvent{Message: data}, fixedTime)

	success, ok := next.(DataReadoutSuccessState)
	require.True(t, ok)
	require.Equal(t, "ZMD3104107.B40", success.Data.ManufacturerIdentification)
	require.Len(t, success.Data.DataSets, 1)
	require.Equal(t, []Effect{ResetEffect{}}, effects)
}

func TestStepIdentifiedUnexpectedMessageIsProtocolError(t *testing.T) {
	id := NewIdentificationMessage(fixedTime, "LGZ", "5", "", "ZMD3104107.B40")
	state := IdentifiedState{ManufacturerID: "LGZ", BaudRateID: "5", Identification: "ZMD3104107.B40"}
	next, effects := Step(state, ReceiveMessageEvent{Message: id}, fixedTime)

	protoErr, ok := next.(ProtocolErrorState)
	require.True(t, ok)
	require.Contains(t, protoErr.Message, "data")
	require.Equal(t, []Effect{ResetEffect{}}, effects)
}

func TestStepProtocolErrorStateReceivingMessageEmitsReset(t *testing.T) {
	state := ProtocolErrorState{Message: "boom"}
	id := NewIdentificationMessage(fixedTime, "LGZ", "5", "", "ZMD3104107.B40")
	next, effects := Step(state, ReceiveMessageEvent{Message: id}, fixedTime)

	_, ok := next.(ProtocolErrorState)
	require.True(t, ok)
	require.Equal(t, []Effect{ResetEffect{}}, effects)
}

type unknownEvent struct{}

func (unknownEvent) isEvent() {}

func TestStepUnrecognisedEventIsProtocolError(t *testing.T) {
	next, effects := Step(InitialState{}, unknownEvent{}, fixedTime)

	_, ok := next.(ProtocolErrorState)
	require.True(t, ok)
	require.Equal(t, []Effect{ResetEffect{}}, effects)
}
