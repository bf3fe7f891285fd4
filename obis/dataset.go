package obis

import (
	"bytes"
	"fmt"
	"regexp"
	"time"
)

// DataSet is one address(value*unit) line of a Mode C readout body.
// Immutable once constructed: Address is always non-empty, and Value/Unit
// never contain the wire's reserved bytes.
type DataSet struct {
	Timestamp time.Time
	Address   string
	Value     *string
	Unit      *string
}

// dataSetExpression implements spec §4.3's data-set line grammar. Only the
// first (value, unit) group is captured; any further groups are consumed
// by the trailing non-capturing repetition and discarded.
var dataSetExpression = regexp.MustCompile(
	`^(?P<address>[^(]+)` +
		`\((?P<value>[^()*/!]{1,32})?(?:\*(?P<unit>[^()/!]{1,16}))?\)` +
		`(?:\((?:[^()*/!]{1,32})?(?:\*[^()/!]{1,16})?\))*$`,
)

// ParseDataSet parses a single CRLF-free readout line.
func ParseDataSet(ts time.Time, line string) (*DataSet, error) {
	match := dataSetExpression.FindStringSubmatch(line)
	if match == nil {
		return nil, fmt.Errorf("obis: failed to parse data set line %q", line)
	}

	ds := &DataSet{Timestamp: ts, Address: match[dataSetExpression.SubexpIndex("address")]}
	if value := match[dataSetExpression.SubexpIndex("value")]; value != "" {
		v := value
		ds.Value = &v
	}
	if unit := match[dataSetExpression.SubexpIndex("unit")]; unit != "" {
		u := unit
		ds.Unit = &u
	}
	return ds, nil
}

// Encode renders the data set back onto the wire in unit-less or with-unit
// form depending on which fields are set.
func (d *DataSet) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteString(d.Address)
	buf.WriteByte('(')
	if d.Value != nil {
		buf.WriteString(*d.Value)
	}
	if d.Unit != nil {
		buf.WriteByte('*')
		buf.WriteString(*d.Unit)
	}
	buf.WriteByte(')')
	return buf.Bytes()
}

// DataBlock is the ordered sequence of data sets inside one Mode C data
// message, plus the manufacturer identification string the state machine
// attaches once the dialogue completes.
type DataBlock struct {
	DataSets                   []*DataSet
	ManufacturerIdentification string
}

// ParseDataBlock parses a CRLF-separated readout body. Empty lines are
// skipped; an empty body yields a DataBlock with zero data sets.
func ParseDataBlock(ts time.Time, data []byte) (*DataBlock, error) {
	var sets []*DataSet
	for _, line := range bytes.Split(data, []byte("\r\n")) {
		if len(line) == 0 {
			continue
		}
		ds, err := ParseDataSet(ts, string(line))
		if err != nil {
			return nil, err
		}
		sets = append(sets, ds)
	}
	return &DataBlock{DataSets: sets}, nil
}

// Encode renders the block back into its CRLF-separated wire form.
func (b *DataBlock) Encode() []byte {
	var buf bytes.Buffer
	for _, ds := range b.DataSets {
		buf.Write(ds.Encode())
		buf.WriteString("\r\n")
	}
	return buf.Bytes()
}

// WithManufacturerIdentification returns a copy of b carrying identification
// as the manufacturer identification string.
func (b *DataBlock) WithManufacturerIdentification(identification string) *DataBlock {
	return &DataBlock{DataSets: b.DataSets, ManufacturerIdentification: identification}
}
