package ingest

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// shapeSchemas describe the outer shape each known sub-record must have.
// They are deliberately loose: a value that passes may still yield nothing,
// but a value that fails is never handed to its extraction rule.
var shapeSchemas = map[string]string{
	"personal_info": `{"type": "object"}`,
	"contact":       `{"type": "object"}`,
	"employment":    `{"type": "object"}`,
	"financial":     `{"type": "object"}`,
	"legal":         `{"type": "object"}`,
	"online_presence": `{
		"type": "object",
		"additionalProperties": {"type": ["array", "string", "null"]}
	}`,
	"social_media": `{
		"type": "object",
		"additionalProperties": {"type": ["object", "string", "null"]}
	}`,
	"education": `{
		"type": "array",
		"items": {"type": ["object", "string", "null"]}
	}`,
	"languages": `{
		"type": ["object", "array"],
		"additionalProperties": {"type": ["boolean", "string", "number", "null"]}
	}`,
	"business_interests": `{
		"type": "array",
		"items": {"type": ["object", "string", "null"]}
	}`,
	"properties": `{
		"type": "array",
		"items": {"type": ["object", "string", "null"]}
	}`,
	"basic_info": `{
		"type": "object",
		"additionalProperties": {"type": ["object", "null"]}
	}`,
	"sources": `{
		"type": "array",
		"items": {"type": "object"}
	}`,
}

func compileSchemas() (map[string]*jsonschema.Schema, error) {
	compiled := make(map[string]*jsonschema.Schema, len(shapeSchemas))
	for shape, schema := range shapeSchemas {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		url := fmt.Sprintf("https://dossier.schemas.local/ingest/%s.schema.json", shape)
		if err := c.AddResource(url, strings.NewReader(schema)); err != nil {
			return nil, fmt.Errorf("load %s schema: %w", shape, err)
		}
		s, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", shape, err)
		}
		compiled[shape] = s
	}
	return compiled, nil
}
