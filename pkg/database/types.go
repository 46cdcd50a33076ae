package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// StringArray persists a []string in a text column. Values are written as a
// JSON array; reads also accept a PostgreSQL {a,"b c"} array literal so the
// column can be migrated from a native text[].
type StringArray []string

// Scan implements sql.Scanner.
func (a *StringArray) Scan(value interface{}) error {
	var raw string
	switch v := value.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		raw = string(v)
	case string:
		raw = v
	default:
		return fmt.Errorf("StringArray: unsupported scan type %T", value)
	}

	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		*a = StringArray{}
	case strings.HasPrefix(raw, "["):
		return json.Unmarshal([]byte(raw), (*[]string)(a))
	case strings.HasPrefix(raw, "{") && strings.HasSuffix(raw, "}"):
		*a = parseArrayLiteral(raw[1 : len(raw)-1])
	default:
		*a = StringArray{raw}
	}
	return nil
}

// Value implements driver.Valuer.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	data, err := json.Marshal([]string(a))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// GormDataType returns the GORM data type hint.
func (StringArray) GormDataType() string {
	return "text"
}

func parseArrayLiteral(body string) StringArray {
	out := StringArray{}
	if body == "" {
		return out
	}

	var (
		cur     strings.Builder
		quoted  bool
		escaped bool
	)
	for _, r := range body {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			quoted = !quoted
		case r == ',' && !quoted:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(out, cur.String())
}
