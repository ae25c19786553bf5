// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// SchemaID is the $id of the config file schema.
const SchemaID = "https://holomush.dev/schemas/gatekeeper-config.schema.json"

// durationPattern matches time.ParseDuration input.
const durationPattern = `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`

var (
	schemaOnce     sync.Once
	compiledSchema *jschema.Schema
	errCompile     error
)

// GenerateSchema reflects the JSON Schema of the config file from Config.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference:             true,
		FieldNameTag:               "koanf",
		RequiredFromJSONSchemaTags: true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == reflect.TypeOf(time.Duration(0)) {
				return &jsonschema.Schema{Type: "string", Pattern: durationPattern}
			}
			return nil
		},
	}
	schema := r.Reflect(&Config{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "Gatekeeper configuration"
	schema.Description = "Schema for the gatekeeper config.yaml file"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("CONFIG_SCHEMA_FAILED").Wrap(err)
	}
	return data, nil
}

// ValidateSchema validates YAML config file data.
func ValidateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return oops.Code("CONFIG_YAML_INVALID").Wrapf(err, "invalid YAML")
	}
	if doc == nil {
		// An empty file keeps every default.
		return nil
	}

	sch, err := schema()
	if err != nil {
		return err
	}
	if err := sch.Validate(toJSONTypes(doc)); err != nil {
		return oops.Code("CONFIG_SCHEMA_VIOLATION").Wrapf(err, "schema validation failed")
	}
	return nil
}

func schema() (*jschema.Schema, error) {
	schemaOnce.Do(func() {
		raw, err := GenerateSchema()
		if err != nil {
			errCompile = err
			return
		}
		doc, err := jschema.UnmarshalJSON(strings.NewReader(string(raw)))
		if err != nil {
			errCompile = oops.Code("CONFIG_SCHEMA_FAILED").Wrap(err)
			return
		}
		c := jschema.NewCompiler()
		if err := c.AddResource("config.schema.json", doc); err != nil {
			errCompile = oops.Code("CONFIG_SCHEMA_FAILED").Wrap(err)
			return
		}
		compiledSchema, errCompile = c.Compile("config.schema.json")
		if errCompile != nil {
			errCompile = oops.Code("CONFIG_SCHEMA_FAILED").Wrap(errCompile)
		}
	})
	return compiledSchema, errCompile
}

// toJSONTypes converts yaml.v3 output into the types the validator expects.
func toJSONTypes(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = toJSONTypes(v)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = toJSONTypes(v)
		}
		return out
	case string, bool, int, int64, float64, nil:
		return val
	default:
		if b, err := json.Marshal(val); err == nil {
			var out any
			if err := json.Unmarshal(b, &out); err == nil {
				return out
			}
		}
		return val
	}
}

// FormatSchemaError strips wrapping so the violation reads on one line.
func FormatSchemaError(err error) string {
	if err == nil {
		return ""
	}
	var ve *jschema.ValidationError
	if errors.As(err, &ve) {
		return strings.Join(strings.Fields(strings.ReplaceAll(ve.Error(), "\n", "; ")), " ")
	}
	return err.Error()
}
