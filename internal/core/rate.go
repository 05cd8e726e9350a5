package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Rate is a percentage that may be undefined, e.g. a savings rate for a month
// without positive effective income. The zero value is undefined.
type Rate struct {
	value   float64
	defined bool
}

// Undefined is the sentinel for a rate that cannot be computed.
var Undefined = Rate{}

// DefinedRate wraps a computed percentage.
func DefinedRate(v float64) Rate {
	return Rate{value: v, defined: true}
}

// Value returns the percentage and whether it is defined.
func (r Rate) Value() (float64, bool) {
	return r.value, r.defined
}

func (r Rate) IsDefined() bool { return r.defined }

func (r Rate) String() string {
	if !r.defined {
		return "undefined"
	}
	return fmt.Sprintf("%.2f", r.value)
}

// MarshalJSON encodes an undefined rate as null.
func (r Rate) MarshalJSON() ([]byte, error) {
	if !r.defined {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(r.value, 'f', -1, 64)), nil
}

func (r *Rate) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*r = Undefined
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("decode rate: %w", err)
	}
	*r = DefinedRate(v)
	return nil
}
