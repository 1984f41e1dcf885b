package validation

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// llmEnvelopeSchema describes the JSON the assistant prompts require
// the model to emit. Validation happens before any field is trusted.
const llmEnvelopeSchema = `{
	"type": "object",
	"required": ["answer", "ui_type"],
	"properties": {
		"answer": {"type": "string"},
		"ui_type": {
			"type": "string",
			"enum": ["TEXT", "TABLE", "CARD_GRID", "CALCULATOR", "CHART"]
		},
		"chart_type": {
			"type": ["string", "null"],
			"enum": ["bar", "line", "pie", null]
		},
		"data": {},
		"suggested_actions": {
			"type": ["array", "null"],
			"items": {"type": "string"},
			"maxItems": 3
		},
		"sources": {
			"type": ["array", "null"],
			"items": {"type": "string"}
		},
		"sql": {"type": ["string", "null"]}
	}
}`

// LLMResponseValidator checks model output against the envelope schema.
type LLMResponseValidator struct {
	schema *gojsonschema.Schema
}

func NewLLMResponseValidator() (*LLMResponseValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(llmEnvelopeSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile llm envelope schema: %w", err)
	}
	return &LLMResponseValidator{schema: schema}, nil
}

// Validate returns an error describing the first violation, or nil.
func (v *LLMResponseValidator) Validate(raw []byte) error {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("llm response is not valid JSON: %w", err)
	}
	if !result.Valid() {
		errs := result.Errors()
		if len(errs) > 0 {
			return fmt.Errorf("llm response violates envelope: %s", errs[0].String())
		}
		return fmt.Errorf("llm response violates envelope")
	}
	return nil
}
