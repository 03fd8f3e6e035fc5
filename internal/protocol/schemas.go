package protocol

import (
	"bytes"
	"embed"
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const (
	SchemaOpRequest  = "op_request.schema.json"
	SchemaOpResponse = "op_response.schema.json"

	schemaBase = "https://dominion.gg/schemas/"
)

// Schemas holds the compiled frame schemas.
type Schemas struct {
	request  *jsonschema.Schema
	response *jsonschema.Schema
}

func CompileSchemas() (*Schemas, error) {
	c := jsonschema.NewCompiler()
	for _, name := range []string{SchemaOpRequest, SchemaOpResponse} {
		b, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(schemaBase+name, bytes.NewReader(b)); err != nil {
			return nil, eris.Wrapf(err, "schema %s", name)
		}
	}
	req, err := c.Compile(schemaBase + SchemaOpRequest)
	if err != nil {
		return nil, eris.Wrap(err, "compile request schema")
	}
	resp, err := c.Compile(schemaBase + SchemaOpResponse)
	if err != nil {
		return nil, eris.Wrap(err, "compile response schema")
	}
	return &Schemas{request: req, response: resp}, nil
}

// DecodeRequest validates raw against the OP schema and decodes it.
func (s *Schemas) DecodeRequest(raw []byte) (OpRequest, error) {
	var req OpRequest
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return req, eris.Wrap(err, "bad json")
	}
	if err := s.request.Validate(doc); err != nil {
		return req, eris.Wrap(err, "schema")
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, eris.Wrap(err, "decode")
	}
	return req, nil
}

// ValidateResponse checks an encoded OP_RESULT frame.
func (s *Schemas) ValidateResponse(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return eris.Wrap(err, "bad json")
	}
	return s.response.Validate(doc)
}
