package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Column is one column name and its data type.
type Column struct {
	Name string
	Type string
}

// Columns is an ordered column-name to data-type mapping. It encodes as a JSON
// object and keeps the order the keys appear in, which is the warehouse
// ordinal position.
type Columns []Column

// Get returns the data type of the named column, ignoring case.
func (c Columns) Get(name string) (string, bool) {
	for _, col := range c {
		if strings.EqualFold(col.Name, name) {
			return col.Type, true
		}
	}
	return "", false
}

// Names lists the column names in order.
func (c Columns) Names() []string {
	names := make([]string, len(c))
	for i, col := range c {
		names[i] = col.Name
	}
	return names
}

// ParseColumns reads "name:type" pairs. A pair without a type is rejected.
func ParseColumns(pairs []string) (Columns, error) {
	cols := make(Columns, 0, len(pairs))
	for _, pair := range pairs {
		name, typ, ok := strings.Cut(pair, ":")
		name, typ = strings.TrimSpace(name), strings.TrimSpace(typ)
		if !ok || name == "" || typ == "" {
			return nil, fmt.Errorf("invalid column definition %q: expected name:type", pair)
		}
		cols = cols.with(name, typ)
	}
	return cols, nil
}

func (c Columns) with(name, typ string) Columns {
	for i := range c {
		if c[i].Name == name {
			c[i].Type = typ
			return c
		}
	}
	return append(c, Column{Name: name, Type: typ})
}

// MarshalJSON writes the columns as an object in order.
func (c Columns) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSONValue(&buf, col.Name); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := writeJSONValue(&buf, col.Type); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object, keeping key order. Duplicate keys keep the
// position of the first occurrence and the value of the last, as a map would.
func (c *Columns) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*c = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("columns: expected object, got %v", tok)
	}

	cols := Columns{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := keyTok.(string)

		var value interface{}
		if err := dec.Decode(&value); err != nil {
			return err
		}

		typ, ok := value.(string)
		if !ok && value != nil {
			typ = fmt.Sprint(value)
		}
		cols = cols.with(name, typ)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	*c = cols
	return nil
}

func writeJSONValue(buf *bytes.Buffer, v string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	// Encode terminates with a newline
	buf.Truncate(buf.Len() - 1)
	return nil
}
