package collection

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

type FieldType string

const (
	FieldString FieldType = "string"
	FieldText   FieldType = "text"
	FieldURL    FieldType = "url"
	FieldBool   FieldType = "bool"
	FieldInt    FieldType = "int"
)

type Field struct {
	Name     string    `json:"name" yaml:"name"`
	Type     FieldType `json:"type" yaml:"type"`
	Required bool      `json:"required" yaml:"required"`
}

// Schema describes the record shape of one collection.
type Schema struct {
	Key         string  `json:"key" yaml:"key"`
	Title       string  `json:"title" yaml:"title"`
	Fields      []Field `json:"fields" yaml:"fields"`
	AllowAsset  bool    `json:"allowAsset" yaml:"allow_asset"`
	AssetBucket string  `json:"-" yaml:"asset_bucket"`
	AssetPrefix string  `json:"-" yaml:"asset_prefix"`
}

func (s Schema) field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Check verifies the schema definition itself.
func (s Schema) Check() error {
	if strings.TrimSpace(s.Key) == "" {
		return fmt.Errorf("schema key is required")
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema %s: at least one field is required", s.Key)
	}
	seen := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema %s: field name is required", s.Key)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("schema %s: duplicate field %q", s.Key, f.Name)
		}
		seen[f.Name] = struct{}{}
		switch f.Type {
		case FieldString, FieldText, FieldURL, FieldBool, FieldInt:
		default:
			return fmt.Errorf("schema %s: field %q has unknown type %q", s.Key, f.Name, f.Type)
		}
	}
	return nil
}

// ValidateCreate checks a full field set and returns it normalised.
func (s Schema) ValidateCreate(fields map[string]any) (map[string]any, error) {
	out, err := s.normalize(fields)
	if err != nil {
		return nil, err
	}
	for _, f := range s.Fields {
		if !f.Required {
			continue
		}
		if isBlank(out[f.Name]) {
			return nil, &ValidationError{Field: f.Name, Message: "is required"}
		}
	}
	return out, nil
}

// ValidatePatch checks a partial field set. Required fields may be omitted
// but not blanked.
func (s Schema) ValidatePatch(fields map[string]any) (map[string]any, error) {
	out, err := s.normalize(fields)
	if err != nil {
		return nil, err
	}
	for name, value := range out {
		f, _ := s.field(name)
		if f.Required && isBlank(value) {
			return nil, &ValidationError{Field: name, Message: "is required"}
		}
	}
	return out, nil
}

func (s Schema) normalize(fields map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f, ok := s.field(name)
		if !ok {
			return nil, &ValidationError{Field: name, Message: "unknown field"}
		}
		value, err := coerce(f, fields[name])
		if err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, nil
}

func coerce(f Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch f.Type {
	case FieldString, FieldText, FieldURL:
		str, ok := value.(string)
		if !ok {
			return nil, &ValidationError{Field: f.Name, Message: "must be a string"}
		}
		str = strings.TrimSpace(str)
		if f.Type == FieldURL && str != "" && !strings.HasPrefix(str, "http://") && !strings.HasPrefix(str, "https://") && !strings.HasPrefix(str, "/") {
			return nil, &ValidationError{Field: f.Name, Message: "must be an absolute http(s) url or a site path"}
		}
		return str, nil
	case FieldBool:
		b, ok := value.(bool)
		if !ok {
			return nil, &ValidationError{Field: f.Name, Message: "must be a boolean"}
		}
		return b, nil
	case FieldInt:
		switch n := value.(type) {
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			if n != math.Trunc(n) || math.IsInf(n, 0) {
				return nil, &ValidationError{Field: f.Name, Message: "must be a whole number"}
			}
			return int64(n), nil
		default:
			return nil, &ValidationError{Field: f.Name, Message: "must be a whole number"}
		}
	}
	return nil, &ValidationError{Field: f.Name, Message: "unsupported field type"}
}

func isBlank(value any) bool {
	if value == nil {
		return true
	}
	if str, ok := value.(string); ok {
		return str == ""
	}
	return false
}
