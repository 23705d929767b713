package erp

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Flag is a boolean that ERP payloads spell as true/false, 0/1 or a string token.
type Flag bool

var truthyTokens = map[string]bool{
	"1":    true,
	"true": true,
	"yes":  true,
	"y":    true,
	"t":    true,
	"on":   true,
}

// UnmarshalJSON accepts booleans, numbers and strings. Unknown tokens are false.
func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = false
		return nil
	}

	switch data[0] {
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*f = Flag(b)
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = Flag(truthyTokens[strings.ToLower(strings.TrimSpace(s))])
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*f = n != 0
	}
	return nil
}

// MarshalJSON always writes a plain JSON boolean.
func (f Flag) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(f))
}
