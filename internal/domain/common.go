package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB stores an opaque JSON document, e.g. the raw provider payload of a
// message. Backed by jsonb on PostgreSQL and a text column on SQLite.
type JSONB map[string]interface{}

// Value implements driver.Valuer.
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner. SQLite hands back string, PostgreSQL []byte.
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return fmt.Errorf("cannot scan %T into JSONB", value)
	}
}
