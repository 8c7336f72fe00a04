package validate

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"sigs.k8s.io/yaml"
)

//go:embed schema/*.schema.json
var schemaFS embed.FS

const (
	configSchemaFile  = "schema/config.schema.json"
	catalogSchemaFile = "schema/catalog.schema.json"
)

// ValidateAgainstSchema compiles schema under the resource name and validates
// the JSON document data against it. ref optionally selects a sub-schema,
// e.g. "#/definitions/release".
func ValidateAgainstSchema(name string, schema []byte, data []byte, ref string) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(schema)); err != nil {
		return fmt.Errorf("loading schema %s: %w", name, err)
	}
	sch, err := compiler.Compile(name + ref)
	if err != nil {
		return fmt.Errorf("compiling schema %s%s: %w", name, ref, err)
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("schema validation against %s failed: %w", name, err)
	}
	return nil
}

// ValidateConfigJSON validates a configuration document.
func ValidateConfigJSON(data []byte) error {
	return validateEmbedded(configSchemaFile, data)
}

// ValidateCatalogJSON validates a release catalog document.
func ValidateCatalogJSON(data []byte) error {
	return validateEmbedded(catalogSchemaFile, data)
}

// ValidateConfigYAML converts a YAML configuration to JSON and validates it.
func ValidateConfigYAML(data []byte) error {
	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return fmt.Errorf("converting config YAML to JSON: %w", err)
	}
	return ValidateConfigJSON(jsonData)
}

// ValidateCatalogYAML converts a YAML catalog to JSON and validates it.
func ValidateCatalogYAML(data []byte) error {
	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return fmt.Errorf("converting catalog YAML to JSON: %w", err)
	}
	return ValidateCatalogJSON(jsonData)
}

func validateEmbedded(file string, data []byte) error {
	schema, err := schemaFS.ReadFile(file)
	if err != nil {
		return fmt.Errorf("reading embedded schema %s: %w", file, err)
	}
	return ValidateAgainstSchema(file, schema, data, "")
}
