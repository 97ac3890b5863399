package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonschema"

	"roblox-lms-backend/internal/models"
)

type EnvelopeKind string

const (
	EnvelopeRoom     EnvelopeKind = "room"
	EnvelopeProgress EnvelopeKind = "progress"
)

// Envelope is one validated ingestion payload. Exactly one of Room or Progress is set.
type Envelope struct {
	Kind     EnvelopeKind
	Room     *RoomEventInput
	Progress *ProgressEventInput
}

type RoomEventInput struct {
	SessionID  string  `json:"sessionId"`
	EventType  string  `json:"eventType"`
	RoomID     string  `json:"roomID"`
	PlayerName *string `json:"playerName"`
	Timestamp  *int64  `json:"timestamp"`
}

type ProgressEventInput struct {
	SessionID      string          `json:"sessionId"`
	StudentID      string          `json:"studentId"`
	StudentName    *string         `json:"studentName"`
	ExerciseID     string          `json:"exerciseID"`
	LessonID       string          `json:"lessonID"`
	GameID         string          `json:"gameID"`
	StartTime      *int64          `json:"startTime"`
	EndTime        *int64          `json:"endTime"`
	Score          *float64        `json:"score"`
	ExerciseType   string          `json:"exerciseType"`
	AdditionalData json.RawMessage `json:"additionalData"`
}

const roomEventSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["sessionId", "eventType", "roomID"],
	"properties": {
		"kind": {"const": "room"},
		"sessionId": {"type": "string", "pattern": "^[A-Za-z0-9_-]{1,64}$"},
		"eventType": {"enum": ["enter", "exit", "flash"]},
		"roomID": {"type": "string", "minLength": 1},
		"playerName": {"type": ["string", "null"]},
		"timestamp": {"type": ["integer", "null"], "minimum": 0}
	}
}`

const progressEventSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["sessionId", "studentId", "exerciseID"],
	"properties": {
		"kind": {"const": "progress"},
		"sessionId": {"type": "string", "pattern": "^[A-Za-z0-9_-]{1,64}$"},
		"studentId": {"type": "string", "minLength": 1},
		"studentName": {"type": ["string", "null"]},
		"exerciseID": {"type": "string", "minLength": 1},
		"lessonID": {"type": "string"},
		"gameID": {"type": "string"},
		"startTime": {"type": ["integer", "null"], "minimum": 0},
		"endTime": {"type": ["integer", "null"], "minimum": 0},
		"score": {"type": ["number", "null"]},
		"exerciseType": {"type": "string"},
		"additionalData": {"type": ["object", "null"]}
	}
}`

var (
	roomEventSchema     = mustCompileSchema(roomEventSchemaJSON)
	progressEventSchema = mustCompileSchema(progressEventSchemaJSON)
)

func mustCompileSchema(src string) *jsonschema.Schema {
	schema, err := jsonschema.NewCompiler().Compile([]byte(src))
	if err != nil {
		panic(fmt.Sprintf("invalid ingestion schema: %v", err))
	}
	return schema
}

// Roblox HttpService posts numbers as strings; these keys are coerced back to numbers.
var numericKeys = []string{"timestamp", "startTime", "endTime", "score"}

// Identifier keys are stored as strings even when the game sends numbers.
var identifierKeys = []string{"roomID", "studentId", "exerciseID", "lessonID", "gameID"}

// DecodeEnvelopes validates a single payload or a batch. Every payload is checked before
// any of them is returned, so a bad batch is rejected as a whole.
func DecodeEnvelopes(body []byte) ([]Envelope, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, newValidationError("body", "Request body is empty")
	}

	var raws []json.RawMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, newValidationError("body", "Invalid JSON array")
		}
		if len(raws) == 0 {
			return nil, newValidationError("body", "Batch is empty")
		}
	} else {
		raws = []json.RawMessage{trimmed}
	}

	envelopes := make([]Envelope, 0, len(raws))
	for i, raw := range raws {
		env, verr := decodeEnvelope(raw)
		if verr != nil {
			if len(raws) > 1 {
				return nil, prefixFields(verr, fmt.Sprintf("payload[%d].", i))
			}
			return nil, verr
		}
		envelopes = append(envelopes, env)
	}
	return envelopes, nil
}

func decodeEnvelope(raw json.RawMessage) (Envelope, *ValidationError) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil || m == nil {
		return Envelope{}, newValidationError("payload", "Payload must be a JSON object")
	}

	normalizePayload(m)

	if sid, _ := m["sessionId"].(string); strings.TrimSpace(sid) == "" {
		return Envelope{}, newValidationError("sessionId", "Missing sessionId")
	}

	kind, verr := payloadKind(m)
	if verr != nil {
		return Envelope{}, verr
	}
	m["kind"] = string(kind)

	switch kind {
	case EnvelopeRoom:
		if id, _ := m["roomID"].(string); id == "" {
			return Envelope{}, newValidationError("roomID", "Missing roomID for room event")
		}
	case EnvelopeProgress:
		if id, _ := m["studentId"].(string); id == "" {
			return Envelope{}, newValidationError("studentId", "Missing studentId for progress event")
		}
	}

	data, err := json.Marshal(m)
	if err != nil {
		return Envelope{}, newValidationError("payload", "Payload could not be encoded")
	}

	schema := roomEventSchema
	if kind == EnvelopeProgress {
		schema = progressEventSchema
	}
	if result := schema.ValidateJSON(data); !result.IsValid() {
		fields := schemaFieldErrors(result)
		if len(fields) == 0 {
			fields["payload"] = "Payload does not match the " + string(kind) + " event schema"
		}
		return Envelope{}, &ValidationError{Fields: fields}
	}

	env := Envelope{Kind: kind}
	switch kind {
	case EnvelopeRoom:
		env.Room = &RoomEventInput{}
		err = json.Unmarshal(data, env.Room)
	case EnvelopeProgress:
		env.Progress = &ProgressEventInput{}
		err = json.Unmarshal(data, env.Progress)
	}
	if err != nil {
		return Envelope{}, newValidationError("payload", err.Error())
	}
	return env, nil
}

// schemaFieldErrors keys schema failures by the offending property, read from the instance
// location of each failing node. Root-level failures other than required land on payload.
func schemaFieldErrors(result *jsonschema.EvaluationResult) map[string]string {
	fields := make(map[string]string)
	set := func(field, msg string) {
		if _, ok := fields[field]; !ok {
			fields[field] = msg
		}
	}

	var walk func(r *jsonschema.EvaluationResult)
	walk = func(r *jsonschema.EvaluationResult) {
		field := strings.ReplaceAll(strings.TrimPrefix(r.InstanceLocation, "/"), "/", ".")
		for keyword, e := range r.Errors {
			switch {
			case keyword == "properties":
				// each property reports on its own node
			case keyword == "required":
				for _, name := range missingProperties(e) {
					set(joinField(field, name), "Missing "+name)
				}
			case field == "":
				set("payload", e.Error())
			default:
				set(field, e.Error())
			}
		}
		for _, d := range r.Details {
			walk(d)
		}
	}
	walk(result)
	return fields
}

func missingProperties(e *jsonschema.EvaluationError) []string {
	raw, _ := e.Params["property"].(string)
	if raw == "" {
		raw, _ = e.Params["properties"].(string)
	}
	var names []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.Trim(strings.TrimSpace(name), "'"); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func joinField(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

// payloadKind reads the explicit discriminant, or infers it for game clients that predate it.
func payloadKind(m map[string]any) (EnvelopeKind, *ValidationError) {
	if k, ok := m["kind"].(string); ok && k != "" {
		switch EnvelopeKind(strings.ToLower(k)) {
		case EnvelopeRoom:
			return EnvelopeRoom, nil
		case EnvelopeProgress:
			return EnvelopeProgress, nil
		}
		return "", newValidationError("kind", "kind must be room or progress")
	}

	if et, ok := m["eventType"].(string); ok && models.RoomEventType(et).Valid() {
		return EnvelopeRoom, nil
	}
	if _, ok := m["exerciseID"]; ok {
		return EnvelopeProgress, nil
	}
	return "", newValidationError("payload", "Payload did not match room or progress schema")
}

func normalizePayload(m map[string]any) {
	for _, k := range numericKeys {
		s, ok := m[k].(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			delete(m, k)
			continue
		}
		if _, err := strconv.ParseFloat(s, 64); err == nil {
			m[k] = json.Number(s)
		}
	}

	for _, k := range identifierKeys {
		if n, ok := m[k].(json.Number); ok {
			m[k] = n.String()
		}
	}

	if et, ok := m["eventType"].(string); ok {
		m["eventType"] = strings.ToLower(strings.TrimSpace(et))
	}
	if t, ok := m["exerciseType"].(string); ok {
		m["exerciseType"] = strings.ToLower(strings.TrimSpace(t))
	}
}

func prefixFields(verr *ValidationError, prefix string) *ValidationError {
	keys := make([]string, 0, len(verr.Fields))
	for k := range verr.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make(map[string]string, len(keys))
	for _, k := range keys {
		fields[prefix+k] = verr.Fields[k]
	}
	return &ValidationError{Fields: fields}
}
