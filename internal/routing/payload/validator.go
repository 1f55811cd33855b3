package payload

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"

	"crisis-routing/internal/models"
)

// forbiddenFields is the fixed denylist of identifying keys that must never
// leave the boundary. Checked against the serialized payload field set.
var forbiddenFields = []string{
	"parentId",
	"familyId",
	"childId",
	"childName",
	"parentName",
	"email",
	"phone",
	"address",
	"screenshots",
	"activityData",
}

// payloadSchema is a closed schema over the serialized payload: exactly the
// six allowed fields, nothing else. Any builder change that widens the
// payload fails here before delivery proceeds.
const payloadSchema = `{
	"type": "object",
	"additionalProperties": false,
	"required": ["signalId", "childAge", "hasSharedCustody", "signalTimestamp", "jurisdiction", "devicePlatform"],
	"properties": {
		"signalId":         {"type": "string", "minLength": 1},
		"childAge":         {"type": "integer", "minimum": 0},
		"hasSharedCustody": {"type": "boolean"},
		"signalTimestamp":  {"type": "string"},
		"jurisdiction":     {"type": "string", "minLength": 1},
		"devicePlatform":   {"type": "string"}
	}
}`

var schemaLoader = gojsonschema.NewStringLoader(payloadSchema)

// Result reports the outcome of the exclusion validation.
type Result struct {
	Valid           bool     `json:"valid"`
	ForbiddenFields []string `json:"forbiddenFieldsFound,omitempty"`
}

// Validate runs the exclusion check over the payload's serialized field set.
// Runs on every outbound payload, including ones produced by Build.
func Validate(p *models.ExternalSignalPayload) (*Result, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("serialize payload: %w", err)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode payload fields: %w", err)
	}

	return ValidateFields(fields), nil
}

// ValidateFields checks an arbitrary serialized field set. Exposed separately
// so tests can inject forbidden keys directly.
func ValidateFields(fields map[string]interface{}) *Result {
	found := []string{}
	for _, forbidden := range forbiddenFields {
		if _, exists := fields[forbidden]; exists {
			found = append(found, forbidden)
		}
	}
	sort.Strings(found)

	schemaValid := false
	if res, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(fields)); err == nil {
		schemaValid = res.Valid()
	}

	return &Result{
		Valid:           len(found) == 0 && schemaValid,
		ForbiddenFields: found,
	}
}
