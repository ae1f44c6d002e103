// Package main generates JSON schemas for the documents treediff writes:
// the diff result of the json format and the flat record list.
package main

import (
	"encoding"
	"encoding/json"
	"flag"
	"fmt"
	"iter"
	"os"
	"path"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/treediff/pkg/render"
	"github.com/Sumatoshi-tech/treediff/pkg/tree"
)

// Schema represents a JSON Schema.
type Schema struct {
	Schema      string             `json:"$schema,omitempty"`
	Title       string             `json:"title,omitempty"`
	Description string             `json:"description,omitempty"`
	Type        string             `json:"type,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Ref         string             `json:"$ref,omitempty"`
	Definitions map[string]*Schema `json:"definitions,omitempty"`
}

// flatDocument mirrors the flat record output of "treediff parse -f flat".
type flatDocument struct {
	Nodes []tree.Record `json:"nodes"`
}

// documents lists the generated schemas by file name.
var documents = []struct {
	name        string
	title       string
	description string
	value       any
}{
	{"diff-result", "Diff Result", "Output of treediff diff --format json", render.ResultJSON{}},
	{"flat-tree", "Flat Tree", "Output of treediff parse --format flat", flatDocument{}},
}

var textMarshaler = reflect.TypeFor[encoding.TextMarshaler]()

func main() {
	outputDir := flag.String("o", "docs/schemas", "Output directory for schemas")
	flag.Parse()

	err := run(*outputDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(outputDir string) error {
	err := os.MkdirAll(outputDir, 0o755)
	if err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	for _, doc := range documents {
		schema := generateSchema(doc.title, doc.description, doc.value)

		err = writeSchema(filepath.Join(outputDir, doc.name+".json"), schema)
		if err != nil {
			return fmt.Errorf("write schema for %s: %w", doc.name, err)
		}

		fmt.Printf("Generated schema for %s\n", doc.name)
	}

	return nil
}

func generateSchema(title, description string, v any) *Schema {
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	defs := make(map[string]*Schema)
	props, required := structToProperties(t, defs)

	schema := &Schema{
		Schema:      "https://json-schema.org/draft-07/schema#",
		Title:       title,
		Description: description,
		Type:        "object",
		Properties:  props,
		Required:    required,
	}

	if len(defs) > 0 {
		schema.Definitions = defs
	}

	return schema
}

func structToProperties(t reflect.Type, defs map[string]*Schema) (map[string]*Schema, []string) {
	props := make(map[string]*Schema)

	var required []string

	for field := range fields(t) {
		parts := strings.Split(field.Tag.Get("json"), ",")
		jsonName := parts[0]

		props[jsonName] = typeToSchema(field.Type, defs)

		if !slices.Contains(parts[1:], "omitempty") && !slices.Contains(parts[1:], "omitzero") {
			required = append(required, jsonName)
		}
	}

	return props, required
}

// fields yields the exported, tagged fields of t.
func fields(t reflect.Type) iter.Seq[reflect.StructField] {
	return func(yield func(reflect.StructField) bool) {
		for i := range t.NumField() {
			field := t.Field(i)

			tag := field.Tag.Get("json")
			if tag == "-" || tag == "" || !field.IsExported() {
				continue
			}

			if !yield(field) {
				return
			}
		}
	}
}

func typeToSchema(t reflect.Type, defs map[string]*Schema) *Schema {
	if t.Implements(textMarshaler) {
		return &Schema{Type: "string"}
	}

	switch t.Kind() {
	case reflect.String:
		return &Schema{Type: "string"}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if t == reflect.TypeFor[time.Duration]() {
			return &Schema{Type: "integer", Description: "Duration in nanoseconds"}
		}

		return &Schema{Type: "integer"}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &Schema{Type: "integer"}

	case reflect.Float32, reflect.Float64:
		return &Schema{Type: "number"}

	case reflect.Bool:
		return &Schema{Type: "boolean"}

	case reflect.Slice:
		return &Schema{
			Type:  "array",
			Items: typeToSchema(t.Elem(), defs),
		}

	case reflect.Map:
		return &Schema{
			Type: "object",
			Description: fmt.Sprintf("Map with %s keys and %s values",
				t.Key().Kind().String(), t.Elem().Kind().String()),
		}

	case reflect.Struct:
		if t.Name() == "" {
			props, required := structToProperties(t, defs)

			return &Schema{Type: "object", Properties: props, Required: required}
		}

		// Qualified, since diff.Stats and matchers.Stats share a name.
		defName := path.Base(t.PkgPath()) + "." + t.Name()

		if _, exists := defs[defName]; !exists {
			// Reserve the name first so recursive types terminate.
			defs[defName] = &Schema{}
			props, required := structToProperties(t, defs)
			defs[defName] = &Schema{Type: "object", Properties: props, Required: required}
		}

		return &Schema{Ref: "#/definitions/" + defName}

	case reflect.Ptr:
		return typeToSchema(t.Elem(), defs)

	default:
		return &Schema{Type: "object"}
	}
}

func writeSchema(target string, schema *Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	return os.WriteFile(target, append(data, '\n'), 0o600)
}
