package schema

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a schema file. JSON files are accepted since JSON is valid YAML.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and structurally validates a schema document. Unknown keys
// are rejected so that misspelled permissions never silently deny.
func Parse(data []byte) (*Schema, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Schema
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}
	s.applyDefaults()

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Schema) applyDefaults() {
	for i := range s.Tables {
		if s.Tables[i].PrimaryKey == "" {
			s.Tables[i].PrimaryKey = ColumnID
		}
		for j := range s.Tables[i].Fields {
			if s.Tables[i].Fields[j].Type == "" {
				s.Tables[i].Fields[j].Type = TypeText
			}
		}
	}
}

// Table looks up a table by name
func (s *Schema) Table(name string) (*Table, bool) {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i], true
		}
	}
	return nil, false
}
