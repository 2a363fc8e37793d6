package web

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFiles embed.FS

const (
	schemaBaseURL = "https://planner.local/schemas/"
	maxBodyBytes  = 1 << 20
)

var (
	credentialsSchema = mustCompileSchema("credentials.json")
	refreshSchema     = mustCompileSchema("refresh.json")
	todoCreateSchema  = mustCompileSchema("todo_create.json")
	todoPatchSchema   = mustCompileSchema("todo_patch.json")
)

func mustCompileSchema(name string) *jsonschema.Schema {
	raw, err := schemaFiles.ReadFile("schemas/" + name)
	if err != nil {
		panic(err)
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	url := schemaBaseURL + name
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", name, err))
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("compile schema %s: %v", name, err))
	}
	return schema
}

var errInvalidJSON = errors.New("invalid JSON payload")

// requestError is a body that parsed but failed its schema.
type requestError struct {
	Path    string
	Message string
}

func (e *requestError) Error() string {
	if e.Path == "" {
		return "invalid request: " + e.Message
	}
	return "invalid request: " + e.Path + ": " + e.Message
}

// decodeBody validates the request body against schema before decoding it
// into dst.
func decodeBody(r *http.Request, schema *jsonschema.Schema, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return errInvalidJSON
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return errInvalidJSON
	}
	if err := schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return firstLeafError(ve)
		}
		return &requestError{Message: err.Error()}
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errInvalidJSON
	}
	return nil
}

func firstLeafError(ve *jsonschema.ValidationError) *requestError {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return &requestError{Path: ve.InstanceLocation, Message: ve.Message}
}
