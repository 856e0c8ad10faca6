// Copyright 2025 The FitGenius Authors
// SPDX-License-Identifier: Apache-2.0

package fitsync

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Entity schemas drive one generic apply routine instead of one handler per
// entity kind: the create/update/delete state machine is shared, and the
// per-entity differences (field mapping, access rules, versioning) are data.

// FieldKind enumerates payload field types the normalizer understands.
type FieldKind int

const (
	FieldString FieldKind = iota
	FieldInt
	FieldFloat
	FieldBool
	FieldTime // ISO-8601 datetime or plain date string
)

// FieldSpec describes one payload field of an entity.
type FieldSpec struct {
	Name     string
	Kind     FieldKind
	Required bool
	Default  any // Written into the stored payload when the field is absent
}

// EntitySchema describes one syncable entity kind.
type EntitySchema struct {
	Name       string
	Fields     []FieldSpec
	Versioned  bool // Participates in version conflict detection
	UpdateOnly bool // Only the update operation is accepted
	SelfOnly   bool // EntityID must equal the caller's user id
}

// defaultSchemas returns the entity registry for the fitness domain.
func defaultSchemas() map[string]*EntitySchema {
	return map[string]*EntitySchema{
		EntityWorkout: {
			Name:      EntityWorkout,
			Versioned: true,
			Fields: []FieldSpec{
				{Name: "name", Kind: FieldString, Required: true},
				{Name: "notes", Kind: FieldString},
				{Name: "scheduledAt", Kind: FieldTime},
				{Name: "durationMinutes", Kind: FieldInt, Default: 0},
				{Name: "completed", Kind: FieldBool, Default: false},
			},
		},
		EntityExercise: {
			Name:      EntityExercise,
			Versioned: true,
			Fields: []FieldSpec{
				{Name: "workoutId", Kind: FieldString, Required: true},
				{Name: "name", Kind: FieldString, Required: true},
				{Name: "muscleGroup", Kind: FieldString},
				{Name: "position", Kind: FieldInt, Default: 0},
				{Name: "restSeconds", Kind: FieldInt, Default: 0},
			},
		},
		EntitySet: {
			Name:      EntitySet,
			Versioned: true,
			Fields: []FieldSpec{
				{Name: "exerciseId", Kind: FieldString, Required: true},
				{Name: "reps", Kind: FieldInt, Default: 0},
				{Name: "weightKg", Kind: FieldFloat, Default: 0.0},
				{Name: "rpe", Kind: FieldFloat},
				{Name: "completedAt", Kind: FieldTime},
			},
		},
		EntityUser: {
			Name:       EntityUser,
			UpdateOnly: true,
			SelfOnly:   true,
			Fields: []FieldSpec{
				{Name: "name", Kind: FieldString},
				{Name: "displayName", Kind: FieldString},
				{Name: "bio", Kind: FieldString},
				{Name: "weightKg", Kind: FieldFloat},
				{Name: "heightCm", Kind: FieldFloat},
			},
		},
	}
}

// normalizedPayload is the result of validating a submitted payload against
// an entity schema.
type normalizedPayload struct {
	Data          json.RawMessage // Reserved keys stripped, defaults applied
	ClientVersion int64           // Version the client last observed, if any
	HasVersion    bool
}

// normalizePayload validates and canonicalizes a payload per the schema:
// required fields present, typed fields well-formed, date strings parseable,
// optional numerics defaulted, reserved keys ("version", "deleted") stripped.
// The extracted client version feeds the conflict gate.
func normalizePayload(schema *EntitySchema, payload json.RawMessage) (*normalizedPayload, error) {
	var obj map[string]any
	if err := json.Unmarshal(payload, &obj); err != nil || obj == nil {
		return nil, fmt.Errorf("payload must be a JSON object")
	}

	out := &normalizedPayload{}

	if v, ok := obj["version"]; ok {
		ver, err := asInt64(v)
		if err != nil {
			return nil, fmt.Errorf("version must be an integer")
		}
		out.ClientVersion = ver
		out.HasVersion = true
	}
	delete(obj, "version")
	delete(obj, "deleted")

	for _, field := range schema.Fields {
		raw, present := obj[field.Name]
		if !present || raw == nil {
			if field.Required {
				return nil, fmt.Errorf("missing required field %q", field.Name)
			}
			if field.Default != nil {
				obj[field.Name] = field.Default
			}
			continue
		}
		norm, err := normalizeField(field, raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field.Name, err)
		}
		obj[field.Name] = norm
	}

	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("re-encode payload: %w", err)
	}
	out.Data = data
	return out, nil
}

func normalizeField(field FieldSpec, raw any) (any, error) {
	switch field.Kind {
	case FieldString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("must be a string")
		}
		return s, nil
	case FieldInt:
		n, err := asInt64(raw)
		if err != nil {
			return nil, err
		}
		return n, nil
	case FieldFloat:
		f, ok := raw.(float64)
		if !ok {
			return nil, fmt.Errorf("must be a number")
		}
		return f, nil
	case FieldBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("must be a boolean")
		}
		return b, nil
	case FieldTime:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("must be a datetime string")
		}
		t, err := ParseTimestamp(s)
		if err != nil {
			return nil, err
		}
		return t.UTC().Format(time.RFC3339Nano), nil
	default:
		return raw, nil
	}
}

// asInt64 accepts the float64 that encoding/json produces for numbers and
// rejects fractional values.
func asInt64(v any) (int64, error) {
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("must be an integer")
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("must be an integer")
	}
	return int64(f), nil
}

// ParseTimestamp parses the ISO-8601 forms clients submit.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO-8601 datetime: %q", s)
}

// mergeProfileFields overwrites the schema's listed fields on an existing
// profile payload with values from the submitted one, leaving other keys
// intact. Used only by the user-profile path.
func mergeProfileFields(schema *EntitySchema, existing, submitted json.RawMessage) (json.RawMessage, error) {
	base := map[string]any{}
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &base); err != nil {
			base = map[string]any{}
		}
	}
	var next map[string]any
	if err := json.Unmarshal(submitted, &next); err != nil || next == nil {
		return nil, fmt.Errorf("payload must be a JSON object")
	}
	for _, field := range schema.Fields {
		if v, ok := next[field.Name]; ok {
			base[field.Name] = v
		}
	}
	return json.Marshal(base)
}
