package http

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed dataset.schema.json
var datasetSchemaJSON []byte

const datasetSchemaURL = "mem://scheduler/dataset.schema.json"

// compileDatasetSchema compiles the embedded schema for POST bodies.
func compileDatasetSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7

	if err := compiler.AddResource(datasetSchemaURL, bytes.NewReader(datasetSchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to load dataset schema: %w", err)
	}

	schema, err := compiler.Compile(datasetSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid dataset schema: %w", err)
	}
	return schema, nil
}

// validateDataset checks body against schema and returns the leaf messages of
// any violation.
func validateDataset(schema *jsonschema.Schema, body []byte) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("malformed JSON: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		ve, ok := err.(*jsonschema.ValidationError)
		if !ok {
			return err
		}
		var msgs []string
		collectSchemaErrors(ve, &msgs)
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return nil
}

func collectSchemaErrors(err *jsonschema.ValidationError, msgs *[]string) {
	if len(err.Causes) == 0 {
		loc := err.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		*msgs = append(*msgs, loc+": "+err.Message)
		return
	}
	for _, cause := range err.Causes {
		collectSchemaErrors(cause, msgs)
	}
}
