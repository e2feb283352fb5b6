package marketplace

import "encoding/json"

// The parameter schemas below are the wire contract for the protocol's
// actions. They are served verbatim on the protocol listing and compiled
// once at registration, so a payload the gateway accepts is exactly a
// payload these documents admit. The message object is a closed sum over
// its "type" field; unknown message types never reach the handler.

const sendMessageSchema = `{
  "type": "object",
  "properties": {
    "to_agent_id": {"type": "string", "minLength": 1},
    "message": {
      "type": "object",
      "oneOf": [
        {
          "type": "object",
          "properties": {
            "type": {"const": "text"},
            "text": {"type": "string"}
          },
          "required": ["type", "text"],
          "additionalProperties": false
        },
        {
          "type": "object",
          "properties": {
            "type": {"const": "order_proposal"},
            "proposal_id": {"type": "string", "minLength": 1},
            "line_items": {"type": "array", "items": {"type": "object"}},
            "total_cents": {"type": "integer", "minimum": 0},
            "expires_at": {"type": "string", "format": "date-time"}
          },
          "required": ["type", "proposal_id", "line_items", "total_cents"],
          "additionalProperties": false
        },
        {
          "type": "object",
          "properties": {
            "type": {"const": "payment"},
            "proposal_id": {"type": "string", "minLength": 1},
            "amount_cents": {"type": "integer", "minimum": 0}
          },
          "required": ["type", "proposal_id", "amount_cents"],
          "additionalProperties": false
        },
        {
          "type": "object",
          "properties": {
            "type": {"const": "order_update"},
            "proposal_id": {"type": "string", "minLength": 1},
            "status": {"type": "string", "minLength": 1},
            "note": {"type": "string"}
          },
          "required": ["type", "proposal_id", "status"],
          "additionalProperties": false
        }
      ]
    },
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["to_agent_id", "message"],
  "additionalProperties": false
}`

const fetchMessagesSchema = `{
  "type": "object",
  "properties": {
    "from_agent_id": {"type": "string", "minLength": 1},
    "limit": {"type": "integer", "minimum": 1, "maximum": 1000},
    "offset": {"type": "integer", "minimum": 0},
    "after": {"type": "string", "format": "date-time"},
    "after_index": {"type": "integer", "minimum": 0}
  },
  "additionalProperties": false
}`

const searchBusinessesSchema = `{
  "type": "object",
  "properties": {
    "algorithm": {"enum": ["simple", "filtered", "lexical", "optimal"]},
    "query": {"type": "string"},
    "rating_threshold": {"type": "number", "minimum": 0},
    "required_amenities": {"type": "array", "items": {"type": "string", "minLength": 1}},
    "required_menu_items": {"type": "array", "items": {"type": "string", "minLength": 1}},
    "page": {"type": "integer", "minimum": 1},
    "page_size": {"type": "integer", "minimum": 1, "maximum": 100}
  },
  "required": ["algorithm"],
  "additionalProperties": false
}`

// mustSchema parses a schema literal into the document form the action
// registry compiles. The literals are package constants, so a parse
// failure is a programming error.
func mustSchema(raw string) map[string]any {
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		panic("marketplace: bad schema literal: " + err.Error())
	}
	return doc
}
