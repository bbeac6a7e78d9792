package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Int64Slice stores a list of ids as a JSON text column
type Int64Slice []int64

// Value implements the driver.Valuer interface for Int64Slice
func (s Int64Slice) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements the sql.Scanner interface for Int64Slice
func (s *Int64Slice) Scan(value any) error {
	if value == nil {
		*s = Int64Slice{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("cannot scan %T into Int64Slice", value)
	}

	if len(data) == 0 {
		*s = Int64Slice{}
		return nil
	}

	return json.Unmarshal(data, s)
}
