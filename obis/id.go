// Package obis implements the IEC 62056-61 Object Identification System
// layer: parsing a readout payload into data sets, parsing OBIS addresses
// into typed 6-tuples, and applying per-id typed conversion.
package obis

import (
	"fmt"
	"regexp"
	"strconv"
)

// ID is the six-group OBIS object identifier (A-B:C.D.E*F).
type ID struct {
	A, B, C, D, E, F int
}

func (id ID) String() string {
	return fmt.Sprintf("%d-%d:%d.%d.%d.%d", id.A, id.B, id.C, id.D, id.E, id.F)
}

// mnemonicCodes maps the single-letter display codes spec §4.3 allows in
// the C and D groups onto their numeric equivalents.
var mnemonicCodes = map[string]int{
	"C": 96,
	"F": 97,
	"L": 98,
	"P": 99,
}

var idExpression = regexp.MustCompile(`^(?:(?P<A>\d+)-(?P<B>\d+):)?(?P<C>\d+|[CFLP])\.(?P<D>\d+|[CFLP])(?:\.(?P<E>\d+)(?:[*&.](?P<F>\d+))?)?$`)

// ParseID parses address per the OBIS grammar in spec §4.3. Missing A, B, E,
// F groups default to 0; the C and D groups additionally accept the
// mnemonic display codes C, F, L, P.
func ParseID(address string) (ID, error) {
	match := idExpression.FindStringSubmatch(address)
	if match == nil {
		return ID{}, fmt.Errorf("obis: %q is not a valid OBIS address", address)
	}

	groupValue := func(name string) (int, error) {
		idx := idExpression.SubexpIndex(name)
		text := match[idx]
		if text == "" {
			return 0, nil
		}
		if code, ok := mnemonicCodes[text]; ok {
			return code, nil
		}
		return strconv.Atoi(text)
	}

	a, err := groupValue("A")
	if err != nil {
		return ID{}, err
	}
	b, err := groupValue("B")
	if err != nil {
		return ID{}, err
	}
	c, err := groupValue("C")
	if err != nil {
		return ID{}, err
	}
	d, err := groupValue("D")
	if err != nil {
		return ID{}, err
	}
	e, err := groupValue("E")
	if err != nil {
		return ID{}, err
	}
	f, err := groupValue("F")
	if err != nil {
		return ID{}, err
	}

	return ID{A: a, B: b, C: c, D: d, E: e, F: f}, nil
}

// Encode renders id back into an OBIS address using plain decimal groups
// (never the mnemonic display codes), the canonical form ParseID accepts.
func (id ID) Encode() string {
	return fmt.Sprintf("%d-%d:%d.%d.%d.%d", id.A, id.B, id.C, id.D, id.E, id.F)
}
