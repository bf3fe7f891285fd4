package meter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weltenwort/go-power-meter-monitor/obis"
)

var fixedTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestRequestMessageRoundTrip(t *testing.T) {
	m := NewRequestMessage(fixedTime, "")
	encoded := m.Encode()
	require.Equal(t, "/?!\r\n", string(encoded))

	parsed, err := Parse(KindRequest, encoded, fixedTime)
	require.NoError(t, err)
	require.Equal(t, m, parsed)
}

func TestRequestMessageRoundTripWithDeviceAddress(t *testing.T) {
	m := NewRequestMessage(fixedTime, "12345678")
	parsed, err := Parse(KindRequest, m.Encode(), fixedTime)
	require.NoError(t, err)
	require.Equal(t, m, parsed)
}

func TestIdentificationMessageRoundTripWithModeEscape(t *testing.T) {
	// S2: /LGZ5\2ZMD3104107.B40\r\n
	frame := []byte("/LGZ5\\2ZMD3104107.B40\r\n")
	parsed, err := Parse(KindIdentification, frame, fixedTime)
	require.NoError(t, err)

	id, ok := parsed.(*IdentificationMessage)
	require.True(t, ok)
	require.Equal(t, "LGZ", id.ManufacturerID)
	require.Equal(t, "5", id.BaudRateID)
	require.Equal(t, "\\2", id.ModeIDs)
	require.Equal(t, "ZMD3104107.B40", id.Identification)

	require.Equal(t, frame, id.Encode())
}

func TestIdentificationMessageRoundTripNoModeEscape(t *testing.T) {
	m := NewIdentificationMessage(fixedTime, "LOG", "5", "", "LK13BE")
	parsed, err := Parse(KindIdentification, m.Encode(), fixedTime)
	require.NoError(t, err)
	require.Equal(t, m, parsed)
}

func TestAcknowledgementMessageRoundTrip(t *testing.T) {
	m := NewAcknowledgementMessage(fixedTime, "0", "5", "0")
	encoded := m.Encode()
	require.Equal(t, "\x06050\r\n", string(encoded))

	parsed, err := Parse(KindAcknowledgement, encoded, fixedTime)
	require.NoError(t, err)
	require.Equal(t, m, parsed)
}

func TestDataMessageRoundTrip(t *testing.T) {
	value := "015882.6927"
	unit := "kWh"
	block := &obis.DataBlock{
		DataSets: []*obis.DataSet{
			{Timestamp: fixedTime, Address: "1-0:1.8.0*255", Value: &value, Unit: &unit},
		},
	}
	m := NewDataMessage(fixedTime, block)
	encoded := m.Encode()

	require.Equal(t, []byte("\x021-0:1.8.0*255(015882.6927*kWh)\r\n!\r\n\x03H"), encoded)

	parsed, err := Parse(KindData, encoded, fixedTime)
	require.NoError(t, err)
	parsedData, ok := parsed.(*DataMessage)
	require.True(t, ok)
	require.Len(t, parsedData.Data.DataSets, 1)
	require.Equal(t, "1-0:1.8.0*255", parsedData.Data.DataSets[0].Address)
	require.Equal(t, value, *parsedData.Data.DataSets[0].Value)
	require.Equal(t, unit, *parsedData.Data.DataSets[0].Unit)
}

func TestDataMessageEmptyBlock(t *testing.T) {
	m := NewDataMessage(fixedTime, &obis.DataBlock{})
	parsed, err := Parse(KindData, m.Encode(), fixedTime)
	require.NoError(t, err)
	parsedData := parsed.(*DataMessage)
	require.Empty(t, parsedData.Data.DataSets)
	require.Equal(t, "", parsedData.Data.ManufacturerIdentification)
}

func TestDataMessageWrongBlockCheckCharacter(t *testing.T) {
	frame := []byte("\x021-0:1.8.0*255(015882.6927*kWh)\r\n!\r\n\x03\x00")
	_, err := Parse(KindData, frame, fixedTime)
	require.Error(t, err)

	var parseErr *ParsingError
	require.ErrorAs(t, err, &parseErr)
	require.Equal(t, KindData, parseErr.Kind)
}

func TestParseRejectsMalformedFrames(t *testing.T) {
	_, err := Parse(KindIdentification, []byte("garbage"), fixedTime)
	require.Error(t, err)

	_, err = Parse(KindAcknowledgement, []byte("\x06\r\n"), fixedTime)
	require.Error(t, err)
}
