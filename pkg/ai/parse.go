package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// recordSchema is the shape contract the model is instructed to honour. The
// response is treated as an untrusted external schema: required keys are
// checked explicitly instead of trusting whatever unmarshals.
const recordSchema = `{
	"type": "object",
	"required": ["summary", "scores", "overallScore", "keyStrengths", "keyImprovements"],
	"properties": {
		"summary": {"type": "string"},
		"scores": {
			"type": "object",
			"additionalProperties": {"type": "number"}
		},
		"overallScore": {"type": "number", "minimum": 0, "maximum": 100},
		"keyStrengths": {"type": "array", "items": {"type": "string"}},
		"keyImprovements": {"type": "array", "items": {"type": "string"}}
	}
}`

var compiledRecordSchema = jsonschema.MustCompileString("evaluation_record.json", recordSchema)

// ParseEvaluation turns raw model output into an EvaluationRecord. Code-fence
// markup around the JSON body is tolerated and stripped; anything else that
// deviates from the contract fails with MalformedResponseError carrying the
// raw text. Values are never coerced or defaulted.
func ParseEvaluation(raw string) (EvaluationRecord, error) {
	cleaned := StripCodeFence(raw)

	var untyped interface{}
	if err := json.Unmarshal([]byte(cleaned), &untyped); err != nil {
		return EvaluationRecord{}, &MalformedResponseError{Raw: raw, Err: fmt.Errorf("parse json: %w", err)}
	}

	if err := compiledRecordSchema.Validate(untyped); err != nil {
		return EvaluationRecord{}, &MalformedResponseError{Raw: raw, Err: fmt.Errorf("validate shape: %w", err)}
	}

	var record EvaluationRecord
	if err := json.Unmarshal([]byte(cleaned), &record); err != nil {
		return EvaluationRecord{}, &MalformedResponseError{Raw: raw, Err: fmt.Errorf("decode record: %w", err)}
	}

	return record, nil
}

// StripCodeFence removes a surrounding markdown code fence, with or without a
// language tag. Models occasionally wrap the JSON body despite being told not
// to; this is a tolerated quirk of the integration.
func StripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "json"))
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}
