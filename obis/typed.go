package obis

import (
	"strconv"
	"time"
)

// ValueType tags the variant an ObisDataSetConfig entry assigns to an id.
// This is the explicit-tag rewrite of the original source's reflection
// trick of storing the Python class object itself in the config (see
// DESIGN.md) — no semantics are lost, the dispatch just switches on a tag
// instead of a type.
type ValueType int

const (
	ValueTypeInteger ValueType = iota
	ValueTypeFloat
	ValueTypeString
)

// DataSetConfig names one OBIS id the system understands, and the Go type
// its value should be decoded into.
type DataSetConfig struct {
	ID        ID
	Name      string
	ValueType ValueType
}

// ConfigSet is an immutable lookup table from OBIS id to its configuration,
// shared freely across the life of a run.
type ConfigSet map[ID]DataSetConfig

// NewConfigSet indexes a list of data-set configs by id.
func NewConfigSet(entries []DataSetConfig) ConfigSet {
	set := make(ConfigSet, len(entries))
	for _, e := range entries {
		set[e.ID] = e
	}
	return set
}

// Kind discriminates the ObisDataSet tagged union.
type Kind int

const (
	KindInteger Kind = iota
	KindFloat
	KindString
	KindUnknown
)

// TypedDataSet is one OBIS data set after per-id typed conversion: exactly
// one of IntegerValue, FloatValue, StringValue is meaningful, selected by
// Kind. Unknown ids carry no value, only their unit.
type TypedDataSet struct {
	Timestamp    time.Time
	ID           ID
	Kind         Kind
	IntegerValue int64
	FloatValue   float64
	StringValue  string
	Unit         *string
}

// MeteringPointIDObisID is the OBIS id the device's metering-point
// identifier is conventionally published under.
var MeteringPointIDObisID = ID{A: 1, B: 0, C: 96, D: 1, E: 0, F: 255}

// Convert applies per-id typed conversion to a raw DataSet, looking up its
// config by the OBIS id parsed from its address. An id absent from cfg
// becomes Unknown, preserving its unit.
func Convert(ds *DataSet, cfg ConfigSet) (*TypedDataSet, error) {
	id, err := ParseID(ds.Address)
	if err != nil {
		return nil, err
	}

	entry, ok := cfg[id]
	if !ok {
		return &TypedDataSet{Timestamp: ds.Timestamp, ID: id, Kind: KindUnknown, Unit: ds.Unit}, nil
	}

	value := ""
	if ds.Value != nil {
		value = *ds.Value
	}

	switch entry.ValueType {
	case ValueTypeInteger:
		n := int64(0)
		if value != "" {
			n, err = strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, err
			}
		}
		return &TypedDataSet{Timestamp: ds.Timestamp, ID: id, Kind: KindInteger, IntegerValue: n, Unit: ds.Unit}, nil
	case ValueTypeFloat:
		f := 0.0
		if value != "" {
			f, err = strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, err
			}
		}
		return &TypedDataSet{Timestamp: ds.Timestamp, ID: id, Kind: KindFloat, FloatValue: f, Unit: ds.Unit}, nil
	case ValueTypeString:
		return &TypedDataSet{Timestamp: ds.Timestamp, ID: id, Kind: KindString, StringValue: value, Unit: nil}, nil
	default:
		return &TypedDataSet{Timestamp: ds.Timestamp, ID: id, Kind: KindUnknown, Unit: ds.Unit}, nil
	}
}

// TypedDataBlock is a DataBlock after typed conversion of every data set.
type TypedDataBlock struct {
	DataSets                   []*TypedDataSet
	ManufacturerIdentification string
}

// ConvertBlock applies Convert to every data set in block.
func ConvertBlock(block *DataBlock, cfg ConfigSet) (*TypedDataBlock, error) {
	out := &TypedDataBlock{ManufacturerIdentification: block.ManufacturerIdentification}
	for _, ds := range block.DataSets {
		typed, err := Convert(ds, cfg)
		if err != nil {
			return nil, err
		}
		out.DataSets = append(out.DataSets, typed)
	}
	return out, nil
}

// DeviceID returns the typed string data set for MeteringPointIDObisID, if
// present, exposing the meter's metering-point identifier.
func (b *TypedDataBlock) DeviceID() (string, bool) {
	for _, ds := range b.DataSets {
		if ds.Kind == KindString && ds.ID == MeteringPointIDObisID {
			return ds.StringValue, true
		}
	}
	return "", false
}
