package meter

import (
	"fmt"
	"time"

	"github.com/weltenwort/go-power-meter-monitor/obis"
)

// State is the Mode C dialogue state.
type State interface {
	isState()
}

type InitialState struct{}

type IdentifiedState struct {
	ManufacturerID string
	BaudRateID     string
	Identification string
}

type DataReadoutSuccessState struct {
	Data *obis.DataBlock
}

type ProtocolErrorState struct {
	Message string
}

func (InitialState) isState()             {}
func (IdentifiedState) isState()          {}
func (DataReadoutSuccessState) isState()  {}
func (ProtocolErrorState) isState()       {}

// Event is the Mode C dialogue event.
type Event interface {
	isEvent()
}

type ResetEvent struct{}

type ReceiveMessageEvent struct {
	Message Message
}

func (ResetEvent) isEvent()          {}
func (ReceiveMessageEvent) isEvent() {}

// Effect is one action the driver must carry out in response to a
// transition. Effects are returned in the order they must be executed.
type Effect interface {
	isEffect()
}

type SendMessageEffect struct {
	Message Message
}

type AwaitMessageEffect struct {
	Kind MessageKind
}

type ResetEffect struct{}

type ResetSpeedEffect struct{}

type ChangeSpeedEffect struct {
	BaudRateID string
}

func (SendMessageEffect) isEffect()  {}
func (AwaitMessageEffect) isEffect() {}
func (ResetEffect) isEffect()        {}
func (ResetSpeedEffect) isEffect()   {}
func (ChangeSpeedEffect) isEffect()  {}

// Step is the pure Mode C transition function: given the current state and
// an incoming event, it returns the next state and the effects the driver
// must perform to reach it. Step never touches a clock, a transport, or a
// log; every side effect is described, not performed.
func Step(state State, event Event, now time.Time) (State, []Effect) {
	if _, ok := event.(ResetEvent); ok {
		return InitialState{}, []Effect{
			SendMessageEffect{Message: NewRequestMessage(now, "")},
			ResetSpeedEffect{},
			AwaitMessageEffect{Kind: KindIdentification},
		}
	}

	receive, ok := event.(ReceiveMessageEvent)
	if !ok {
		return ProtocolErrorState{Message: fmt.Sprintf("unrecognised event %T", event)}, []Effect{ResetEffect{}}
	}

	switch s := state.(type) {
	case InitialState:
		id, ok := receive.Message.(*IdentificationMessage)
		if !ok {
			return ProtocolErrorState{
				Message: fmt.Sprintf("expected identification message, but received %s", receive.Message.Kind()),
			}, []Effect{ResetEffect{}}
		}
		return IdentifiedState{
				ManufacturerID: id.ManufacturerID,
				BaudRateID:     id.BaudRateID,
				Identification: id.Identification,
			}, []Effect{
				SendMessageEffect{Message: NewAcknowledgementMessage(now, "0", id.BaudRateID, "0")},
				ChangeSpeedEffect{BaudRateID: id.BaudRateID},
				AwaitMessageEffect{Kind: KindData},
			}

	case IdentifiedState:
		data, ok := receive.Message.(*DataMessage)
		if !ok {
			return ProtocolErrorState{
				Message: fmt.Sprintf("expected data message, but received %s", receive.Message.Kind()),
			}, []Effect{ResetEffect{}}
		}
		return DataReadoutSuccessState{
			Data: data.Data.WithManufacturerIdentification(s.Identification),
		}, []Effect{ResetEffect{}}

	default:
		return ProtocolErrorState{
			Message: fmt.Sprintf("invalid state and event: %T, %T", state, event),
		}, []Effect{ResetEffect{}}
	}
}
