package models

import (
	"database/sql/driver"
	"encoding/json"
)

// JSONBMap is a custom type for PostgreSQL JSONB columns that maps to map[string]interface{}
type JSONBMap map[string]interface{}

// Value implements driver.Valuer interface
func (j JSONBMap) Value() (driver.Value, error) {
	if j == nil {
		return json.Marshal(JSONBMap{})
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner interface. Unparseable payloads degrade to an
// empty map instead of failing the read.
func (j *JSONBMap) Scan(value interface{}) error {
	*j = make(JSONBMap)
	if value == nil {
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}
	if len(bytes) == 0 {
		return nil
	}

	result := make(JSONBMap)
	if err := json.Unmarshal(bytes, &result); err != nil {
		return nil
	}
	*j = result
	return nil
}

// JSONBStrings is a custom type for JSONB columns holding a list of strings
// (experiment tags). Unparseable payloads degrade to an empty list.
type JSONBStrings []string

// Value implements driver.Valuer interface
func (j JSONBStrings) Value() (driver.Value, error) {
	if j == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner interface
func (j *JSONBStrings) Scan(value interface{}) error {
	*j = JSONBStrings{}
	if value == nil {
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}
	if len(bytes) == 0 {
		return nil
	}

	var result []string
	if err := json.Unmarshal(bytes, &result); err != nil {
		return nil
	}
	*j = result
	return nil
}
