package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"siteadmin/api/internal/collection"
)

type schemasFile struct {
	Collections []collection.Schema `yaml:"collections"`
}

// LoadSchemas returns the built-in collection schemas overlaid with the ones
// declared in path (matched by key; unknown keys are appended). Schemas
// without their own bucket get defaultBucket.
func LoadSchemas(path, defaultBucket string) ([]collection.Schema, error) {
	schemas := collection.BuiltinSchemas()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read schemas file: %w", err)
		}
		overrides, err := ParseSchemas(raw)
		if err != nil {
			return nil, err
		}
		schemas = merge(schemas, overrides)
	}

	for i := range schemas {
		if schemas[i].AssetBucket == "" {
			schemas[i].AssetBucket = defaultBucket
		}
		if err := schemas[i].Check(); err != nil {
			return nil, err
		}
	}
	return schemas, nil
}

func ParseSchemas(raw []byte) ([]collection.Schema, error) {
	var file schemasFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse schemas file: %w", err)
	}
	for i, schema := range file.Collections {
		if err := schema.Check(); err != nil {
			return nil, fmt.Errorf("collection %d: %w", i, err)
		}
	}
	return file.Collections, nil
}

func merge(base, overrides []collection.Schema) []collection.Schema {
	out := append([]collection.Schema(nil), base...)
	for _, override := range overrides {
		replaced := false
		for i := range out {
			if out[i].Key == override.Key {
				out[i] = override
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, override)
		}
	}
	return out
}
