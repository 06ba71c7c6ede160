package bus

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Minimal JSON schemas for the event families the services exchange. A body
// failing its schema is treated the same as undecodable JSON: dropped at the
// boundary before it reaches a handler.
var topicSchemas = map[string]string{
	"incident.received": `{
		"type": "object",
		"required": ["incident_id", "raw_data"],
		"properties": {
			"incident_id": {"type": "string", "minLength": 1},
			"raw_data": {"type": "object"}
		}
	}`,
	"triage.completed": `{
		"type": "object",
		"required": ["incident_id", "triage_result"],
		"properties": {
			"incident_id": {"type": "string", "minLength": 1},
			"triage_result": {
				"type": "object",
				"required": ["decision", "confidence", "threat_score", "threat_level"],
				"properties": {
					"decision": {"type": "string"},
					"confidence": {"type": "number", "minimum": 0, "maximum": 1},
					"threat_score": {"type": "integer", "minimum": 0, "maximum": 100},
					"threat_level": {"type": "string"}
				}
			}
		}
	}`,
	"response.>": `{
		"type": "object",
		"required": ["incident_id"],
		"properties": {
			"incident_id": {"type": "string", "minLength": 1}
		}
	}`,
	"security.>": `{
		"type": "object",
		"required": ["incident_id", "ip_address"],
		"properties": {
			"incident_id": {"type": "string"},
			"ip_address": {"type": "string"}
		}
	}`,
}

// PayloadValidator checks event bodies against per-topic JSON schemas.
type PayloadValidator struct {
	schemas map[string]*gojsonschema.Schema
}

// NewPayloadValidator compiles the built-in topic schemas.
func NewPayloadValidator() (*PayloadValidator, error) {
	compiled := make(map[string]*gojsonschema.Schema, len(topicSchemas))
	for pattern, raw := range topicSchemas {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("compile schema for %q: %w", pattern, err)
		}
		compiled[pattern] = schema
	}
	return &PayloadValidator{schemas: compiled}, nil
}

// Validate checks body against the schema bound to the routing key.
// Unknown topics pass through: only known families are constrained.
func (v *PayloadValidator) Validate(routingKey string, body []byte) error {
	schema := v.schemaFor(routingKey)
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedEvent, err)
	}
	if !result.Valid() {
		return fmt.Errorf("%w: %s", ErrMalformedEvent, result.Errors()[0].String())
	}
	return nil
}

func (v *PayloadValidator) schemaFor(routingKey string) *gojsonschema.Schema {
	if s, ok := v.schemas[routingKey]; ok {
		return s
	}
	for pattern, s := range v.schemas {
		if MatchTopic(pattern, routingKey) {
			return s
		}
	}
	return nil
}
