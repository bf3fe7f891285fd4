package meter

import (
	"bytes"
	"fmt"
	"regexp"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/weltenwort/go-power-meter-monitor/obis"
)

// MessageKind identifies one of the four IEC 62056-21 Mode C wire messages.
type MessageKind int

const (
	KindRequest MessageKind = iota
	KindIdentification
	KindAcknowledgement
	KindData
)

func (k MessageKind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindIdentification:
		return "identification"
	case KindAcknowledgement:
		return "acknowledgement"
	case KindData:
		return "data"
	default:
		return "unknown"
	}
}

// Message is the common interface satisfied by every Mode C wire message.
// Encode is the byte-exact inverse of the parse function for its Kind.
type Message interface {
	Kind() MessageKind
	Timestamp() time.Time
	Encode() []byte
}

// frame shape constants, see spec §4.2.
var (
	requestTerminator         = []byte("\r\n")
	identificationTerminator  = []byte("\r\n")
	acknowledgementTerminator = []byte("\r\n")
	dataTerminator            = []byte("!\r\n\x03")
)

const dataExtraBytes = 1 // trailing BCC byte

// The grammars are matched against the frame after it has been decoded from
// ISO-8859-1 into a Go string: every wire byte maps 1:1 onto a Unicode code
// point U+0000-U+00FF, so the byte-oriented grammar in spec §4.2 survives
// unchanged as a rune-oriented regular expression, including bytes the
// standard library's regexp package would otherwise treat as invalid UTF-8
// if matched directly against the raw frame.
var (
	requestExpression         = regexp.MustCompile(`^/\?(?P<device_address>[^!]*)!\r\n$`)
	identificationExpression  = regexp.MustCompile(`^/(?P<manufacturer_id>\w{3})(?P<baud_rate_id>[0-9A-Z])(?P<mode_ids>(?:\\[^\\/!])*)(?P<identification>[^\\/!\r\n]+)\r\n$`)
	acknowledgementExpression = regexp.MustCompile(`^\x06(?P<protocol_control>[0-9])(?P<baud_rate_id>[0-9A-Z])(?P<mode_control>[0-9A-Z])\r\n$`)
	dataExpression            = regexp.MustCompile(`(?s)^\x02(?P<data>[^!]*)!\r\n\x03(?P<block_check>.)$`)
)

var iso88591 = charmap.ISO8859_1

// encodeISO88591 maps each Unicode code point of s (which must be within
// U+0000-U+00FF) back onto the matching wire byte.
func encodeISO88591(s string) []byte {
	b, err := iso88591.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return b
}

// decodeISO88591 maps each wire byte of b onto the Unicode code point of the
// same ordinal value, yielding a string regexp.Regexp can match safely
// regardless of which bytes 0x80-0xFF appear in b.
func decodeISO88591(b []byte) string {
	s, err := iso88591.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}

func namedGroup(re *regexp.Regexp, match []string, name string) string {
	idx := re.SubexpIndex(name)
	if idx < 0 || idx >= len(match) {
		return ""
	}
	return match[idx]
}

// RequestMessage is the "/?<device_address>!\r\n" request sent to the meter.
type RequestMessage struct {
	ts            time.Time
	DeviceAddress string
}

func NewRequestMessage(ts time.Time, deviceAddress string) *RequestMessage {
	return &RequestMessage{ts: ts, DeviceAddress: deviceAddress}
}

func (m *RequestMessage) Kind() MessageKind    { return KindRequest }
func (m *RequestMessage) Timestamp() time.Time { return m.ts }

func (m *RequestMessage) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteString("/?")
	buf.Write(encodeISO88591(m.DeviceAddress))
	buf.WriteByte('!')
	buf.Write(requestTerminator)
	return buf.Bytes()
}

func parseRequestMessage(ts time.Time, frame []byte) (*RequestMessage, error) {
	text := decodeISO88591(frame)
	match := requestExpression.FindStringSubmatch(text)
	if match == nil {
		return nil, &ParsingError{Kind: KindRequest, Frame: frame}
	}
	return &RequestMessage{
		ts:            ts,
		DeviceAddress: namedGroup(requestExpression, match, "device_address"),
	}, nil
}

// IdentificationMessage is the meter's "/MMMB[modes]identification\r\n" reply.
type IdentificationMessage struct {
	ts             time.Time
	ManufacturerID string
	BaudRateID     string
	ModeIDs        string
	Identification string
}

func NewIdentificationMessage(ts time.Time, manufacturerID, baudRateID, modeIDs, identification string) *IdentificationMessage {
	return &IdentificationMessage{
		ts:             ts,
		ManufacturerID: manufacturerID,
		BaudRateID:     baudRateID,
		ModeIDs:        modeIDs,
		Identification: identification,
	}
}

func (m *IdentificationMessage) Kind() MessageKind    { return KindIdentification }
func (m *IdentificationMessage) Timestamp() time.Time { return m.ts }

func (m *IdentificationMessage) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteByte('/')
	manufacturer := encodeISO88591(m.ManufacturerID)
	buf.Write(truncate(manufacturer, 3))
	buf.Write(truncate(encodeISO88591(m.BaudRateID), 1))
	buf.Write(encodeISO88591(m.ModeIDs))
	buf.Write(encodeISO88591(m.Identification))
	buf.Write(identificationTerminator)
	return buf.Bytes()
}

func parseIdentificationMessage(ts time.Time, frame []byte) (*IdentificationMessage, error) {
	text := decodeISO88591(frame)
	match := identificationExpression.FindStringSubmatch(text)
	if match == nil {
		return nil, &ParsingError{Kind: KindIdentification, Frame: frame}
	}
	return &IdentificationMessage{
		ts:             ts,
		ManufacturerID: namedGroup(identificationExpression, match, "manufacturer_id"),
		BaudRateID:     namedGroup(identificationExpression, match, "baud_rate_id"),
		ModeIDs:        namedGroup(identificationExpression, match, "mode_ids"),
		Identification: namedGroup(identificationExpression, match, "identification"),
	}, nil
}

// AcknowledgementMessage is the host's "\x06PCB MC\r\n" acknowledgement.
type AcknowledgementMessage struct {
	ts              time.Time
	ProtocolControl string
	BaudRateID      string
	ModeControl     string
}

func NewAcknowledgementMessage(ts time.Time, protocolControl, baudRateID, modeControl string) *AcknowledgementMessage {
	return &AcknowledgementMessage{ts: ts, ProtocolControl: protocolControl, BaudRateID: baudRateID, ModeControl: modeControl}
}

func (m *AcknowledgementMessage) Kind() MessageKind    { return KindAcknowledgement }
func (m *AcknowledgementMessage) Timestamp() time.Time { return m.ts }

func (m *AcknowledgementMessage) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteByte(0x06)
	buf.Write(truncate(encodeISO88591(m.ProtocolControl), 1))
	buf.Write(truncate(encodeISO88591(m.BaudRateID), 1))
	buf.Write(truncate(encodeISO88591(m.ModeControl), 1))
	buf.Write(acknowledgementTerminator)
	return buf.Bytes()
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

func parseAcknowledgementMessage(ts time.Time, frame []byte) (*AcknowledgementMessage, error) {
	text := decodeISO88591(frame)
	match := acknowledgementExpression.FindStringSubmatch(text)
	if match == nil {
		return nil, &ParsingError{Kind: KindAcknowledgement, Frame: frame}
	}
	return &AcknowledgementMessage{
		ts:              ts,
		ProtocolControl: namedGroup(acknowledgementExpression, match, "protocol_control"),
		BaudRateID:      namedGroup(acknowledgementExpression, match, "baud_rate_id"),
		ModeControl:     namedGroup(acknowledgementExpression, match, "mode_control"),
	}, nil
}

// DataMessage is the "\x02<body>!\r\n\x03<bcc>" readout payload.
type DataMessage struct {
	ts   time.Time
	Data *obis.DataBlock
}

func NewDataMessage(ts time.Time, data *obis.DataBlock) *DataMessage {
	return &DataMessage{ts: ts, Data: data}
}

func (m *DataMessage) Kind() MessageKind    { return KindData }
func (m *DataMessage) Timestamp() time.Time { return m.ts }

func (m *DataMessage) Encode() []byte {
	var body bytes.Buffer
	body.Write(m.Data.Encode())
	body.Write(dataTerminator)

	bcc := BlockCheckCharacter(body.Bytes())

	var buf bytes.Buffer
	buf.WriteByte(0x02)
	buf.Write(body.Bytes())
	buf.WriteByte(bcc)
	return buf.Bytes()
}

func parseDataMessage(ts time.Time, frame []byte) (*DataMessage, error) {
	text := decodeISO88591(frame)
	match := dataExpression.FindStringSubmatch(text)
	if match == nil {
		return nil, &ParsingError{Kind: KindData, Frame: frame}
	}
	data := namedGroup(dataExpression, match, "data")
	blockCheck := namedGroup(dataExpression, match, "block_check")
	if len([]rune(blockCheck)) != 1 {
		return nil, &ParsingError{Kind: KindData, Frame: frame}
	}

	dataBytes := encodeISO88591(data)
	expected := BlockCheckCharacter(append(append([]byte{}, dataBytes...), dataTerminator...))
	if byte([]rune(blockCheck)[0]) != expected {
		return nil, &ParsingError{Kind: KindData, Frame: frame}
	}

	block, err := obis.ParseDataBlock(ts, dataBytes)
	if err != nil {
		return nil, &ParsingError{Kind: KindData, Frame: frame}
	}

	return &DataMessage{ts: ts, Data: block}, nil
}

// Parse decodes frame as a message of the given kind, validating the full
// grammar (and, for data messages, the block check character). It returns
// a *ParsingError if frame does not match kind's grammar end to end.
func Parse(kind MessageKind, frame []byte, ts time.Time) (Message, error) {
	switch kind {
	case KindRequest:
		return parseRequestMessage(ts, frame)
	case KindIdentification:
		return parseIdentificationMessage(ts, frame)
	case KindAcknowledgement:
		return parseAcknowledgementMessage(ts, frame)
	case KindData:
		return parseDataMessage(ts, frame)
	default:
		return nil, fmt.Errorf("meter: unknown message kind %v", kind)
	}
}

// terminatorFor and extraBytesFor describe the frame shape read by ReadFrame.
func terminatorFor(kind MessageKind) []byte {
	switch kind {
	case KindRequest:
		return requestTerminator
	case KindIdentification:
		return identificationTerminator
	case KindAcknowledgement:
		return acknowledgementTerminator
	case KindData:
		return dataTerminator
	default:
		return nil
	}
}

func extraBytesFor(kind MessageKind) int {
	if kind == KindData {
		return dataExtraBytes
	}
	return 0
}

// initiatorFor returns the leading byte(s) ReadFrame drains the transport up
// to and including, before it starts collecting the frame body. Only
// meter-originated messages (identification, data) have one; host-originated
// messages are written by us, never drained for.
func initiatorFor(kind MessageKind) []byte {
	switch kind {
	case KindIdentification:
		return []byte("/")
	case KindData:
		return []byte{0x02}
	default:
		return nil
	}
}
