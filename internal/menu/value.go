package menu

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// NotAvailable is the sentinel the upstream menu uses for unknown nutrient values.
const NotAvailable = "N/A"

type valueKind uint8

const (
	kindUnset valueKind = iota
	kindNumber
	kindText
)

// Value is a nutrient value that is either a JSON number or a string such as
// "140mg" or "N/A". The zero Value encodes as "N/A".
type Value struct {
	kind valueKind
	num  float64
	text string
}

// Number returns a numeric Value.
func Number(f float64) Value {
	return Value{kind: kindNumber, num: f}
}

// Text returns a string Value.
func Text(s string) Value {
	return Value{kind: kindText, text: s}
}

// Float returns the numeric value when the Value was encoded as a number.
func (v Value) Float() (float64, bool) {
	return v.num, v.kind == kindNumber
}

// Raw returns the string form of the value as it would be displayed.
func (v Value) Raw() string {
	switch v.kind {
	case kindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case kindText:
		return v.text
	default:
		return NotAvailable
	}
}

// IsNumber reports whether the value was encoded as a JSON number.
func (v Value) IsNumber() bool {
	return v.kind == kindNumber
}

func (v Value) String() string {
	return v.Raw()
}

// MarshalJSON keeps the original encoding: numbers stay numbers, strings stay strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case kindNumber:
		return json.Marshal(v.num)
	case kindText:
		return json.Marshal(v.text)
	default:
		return json.Marshal(NotAvailable)
	}
}

// UnmarshalJSON accepts a number, a string or null.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Value{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("failed to decode nutrient string: %w", err)
		}
		*v = Text(s)
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("nutrient value must be a number or string, got %s", string(data))
	}
	*v = Number(f)
	return nil
}
