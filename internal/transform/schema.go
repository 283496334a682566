package transform

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var fieldsSchemaJSON string

var (
	fieldsSchemaOnce sync.Once
	fieldsSchema     *jsonschema.Schema
	fieldsSchemaErr  error
)

func compiledFieldsSchema() (*jsonschema.Schema, error) {
	fieldsSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("fields.json", strings.NewReader(fieldsSchemaJSON)); err != nil {
			fieldsSchemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		fieldsSchema, fieldsSchemaErr = compiler.Compile("fields.json")
		if fieldsSchemaErr != nil {
			fieldsSchemaErr = fmt.Errorf("compile schema: %w", fieldsSchemaErr)
		}
	})
	return fieldsSchema, fieldsSchemaErr
}

// ValidateFieldsJSON checks an encoded Fields document against the output schema.
func ValidateFieldsJSON(data []byte) error {
	schema, err := compiledFieldsSchema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal fields: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("fields do not match schema: %w", err)
	}
	return nil
}
