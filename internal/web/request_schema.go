package web

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/JonMunkholm/recordimport/internal/core"
)

// commitRequestSchema checks the envelope of a commit body. Owner presence,
// record count and field values are left to the pipeline so they report
// their own codes.
const commitRequestSchema = `{
	"type": "object",
	"properties": {
		"owner_id": {"type": ["string", "null"]},
		"records": {
			"type": "array",
			"items": {
				"type": "object",
				"additionalProperties": {"type": ["string", "number", "boolean", "null"]}
			}
		}
	}
}`

var commitSchema = jsonschema.MustCompileString("commit_request.json", commitRequestSchema)

// decodeCommitRequest validates body against the commit envelope schema and
// decodes it. Numbers are kept as json.Number so integers survive exactly.
func decodeCommitRequest(body []byte) (commitRequest, error) {
	var doc any
	if err := newDecoder(body).Decode(&doc); err != nil {
		return commitRequest{}, fmt.Errorf("%w: %v", core.ErrInvalidRequest, err)
	}
	if err := commitSchema.Validate(doc); err != nil {
		return commitRequest{}, fmt.Errorf("%w: %v", core.ErrInvalidRequest, err)
	}

	var req commitRequest
	if err := newDecoder(body).Decode(&req); err != nil {
		return commitRequest{}, fmt.Errorf("%w: %v", core.ErrInvalidRequest, err)
	}
	return req, nil
}

func newDecoder(body []byte) *json.Decoder {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec
}
