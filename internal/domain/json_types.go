package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// StringArray is a custom type for storing string arrays as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, err := coerceBytes(value)
	if err != nil {
		return errors.New("failed to scan StringArray")
	}
	return json.Unmarshal(bytes, a)
}

// JSONMap stores an arbitrary JSON object in a text column.
type JSONMap map[string]interface{}

// Value implements the driver.Valuer interface for database serialization.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	bytes, err := coerceBytes(value)
	if err != nil {
		return errors.New("failed to scan JSONMap")
	}
	return json.Unmarshal(bytes, m)
}

// IterationList stores the per-iteration research records as a JSON array.
type IterationList []Iteration

// Value implements the driver.Valuer interface for database serialization.
func (l IterationList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (l *IterationList) Scan(value interface{}) error {
	if value == nil {
		*l = IterationList{}
		return nil
	}
	bytes, err := coerceBytes(value)
	if err != nil {
		return errors.New("failed to scan IterationList")
	}
	return json.Unmarshal(bytes, l)
}

// SourceList stores cited web sources as a JSON array.
type SourceList []Source

// Value implements the driver.Valuer interface for database serialization.
func (s SourceList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (s *SourceList) Scan(value interface{}) error {
	if value == nil {
		*s = SourceList{}
		return nil
	}
	bytes, err := coerceBytes(value)
	if err != nil {
		return errors.New("failed to scan SourceList")
	}
	return json.Unmarshal(bytes, s)
}

func coerceBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errors.New("unsupported column type")
	}
}
