package entry

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Slot is a nullable answer. The zero value is null.
type Slot struct {
	value string
	valid bool
}

// Null is the empty answer.
var Null Slot

// Str wraps s as an answer. An empty string carries no answer, so it is null.
func Str(s string) Slot {
	if s == "" {
		return Null
	}
	return Slot{value: s, valid: true}
}

// IsNull reports whether the slot holds no answer.
func (s Slot) IsNull() bool { return !s.valid }

// Get returns the answer and whether one is present.
func (s Slot) Get() (string, bool) { return s.value, s.valid }

// String returns the answer, or "<null>".
func (s Slot) String() string {
	if !s.valid {
		return "<null>"
	}
	return s.value
}

// MarshalJSON encodes null slots as JSON null.
func (s Slot) MarshalJSON() ([]byte, error) {
	if !s.valid {
		return []byte("null"), nil
	}
	return json.Marshal(s.value)
}

// UnmarshalJSON accepts a string or null.
func (s *Slot) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = Null
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decoding slot: %w", err)
	}
	*s = Str(v)
	return nil
}

// Value implements driver.Valuer so slots store as TEXT or NULL.
func (s Slot) Value() (driver.Value, error) {
	if !s.valid {
		return nil, nil
	}
	return s.value, nil
}

// Scan implements sql.Scanner.
func (s *Slot) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = Null
	case string:
		*s = Str(v)
	case []byte:
		*s = Str(string(v))
	default:
		return fmt.Errorf("scanning slot: unsupported type %T", src)
	}
	return nil
}
