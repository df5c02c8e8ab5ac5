package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// GenerateSchema derives a JSON schema map from a struct so the gateway can
// enforce structured output. Field names follow json tags; fields without
// omitempty are required. A `description` struct tag annotates the property.
func GenerateSchema(v interface{}) (map[string]interface{}, error) {
	if v == nil {
		return nil, errors.New("llm: schema value cannot be nil")
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("llm: schema requires a struct, got %s", t.Kind())
	}
	return objectSchema(t, true), nil
}

// ParseStructured decodes a JSON document into target.
func ParseStructured(doc string, target interface{}) error {
	if target == nil || reflect.ValueOf(target).Kind() != reflect.Ptr {
		return errors.New("llm: structured target must be a pointer")
	}
	if err := json.Unmarshal([]byte(doc), target); err != nil {
		return fmt.Errorf("llm: decode structured response: %w", err)
	}
	return nil
}

func objectSchema(t reflect.Type, topLevel bool) map[string]interface{} {
	properties := make(map[string]interface{})
	var required []string

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name, optional, skip := jsonName(field)
		if skip {
			continue
		}

		prop := schemaFor(field.Type)
		if topLevel {
			if desc := field.Tag.Get("description"); desc != "" {
				prop["description"] = desc
			}
		}
		properties[name] = prop
		if !optional {
			required = append(required, name)
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func schemaFor(t reflect.Type) map[string]interface{} {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Bool:
		return map[string]interface{}{"type": "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]interface{}{"type": "integer"}
	case reflect.Float32, reflect.Float64:
		return map[string]interface{}{"type": "number"}
	case reflect.Slice, reflect.Array:
		return map[string]interface{}{"type": "array", "items": schemaFor(t.Elem())}
	case reflect.Map:
		return map[string]interface{}{"type": "object", "additionalProperties": schemaFor(t.Elem())}
	case reflect.Struct:
		return objectSchema(t, false)
	default:
		return map[string]interface{}{"type": "string"}
	}
}

// jsonName resolves the wire name of a struct field from its json tag.
// optional mirrors omitempty; skip is true for fields tagged "-".
func jsonName(field reflect.StructField) (name string, optional, skip bool) {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	name = field.Name
	if tag != "" {
		parts := strings.Split(tag, ",")
		if parts[0] != "" {
			name = parts[0]
		}
		for _, opt := range parts[1:] {
			if opt == "omitempty" {
				optional = true
			}
		}
	}
	return name, optional, false
}
