// Package fieldmap translates application records between the client's
// camelCase field names and the backend's snake_case names.
package fieldmap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// ApplicationFields is the canonical list of internal application keys.
// External names are derived from it with ToSnake.
var ApplicationFields = []string{
	"studentId",
	"studentName",
	"facultyId",
	"departmentId",
	"majorId",
	"applicationType",
	"ruleId",
	"selfScore",
	"projectName",
	"awardDate",
	"awardLevel",
	"awardType",
	"academicType",
	"researchType",
	"innovationLevel",
	"innovationRole",
	"awardGrade",
	"awardCategory",
	"authorRankType",
	"authorOrder",
	"performanceType",
	"performanceLevel",
	"performanceParticipation",
	"teamRole",
	"finalScore",
	"dynamicCoefficients",
	"reviewComment",
	"reviewedAt",
	"reviewedBy",
	"appliedAt",
	"createdAt",
	"updatedAt",
}

// ApplicationAliases map extra internal spellings onto an external key.
// They are outbound only: student_name always maps back to studentName.
var ApplicationAliases = map[string]string{
	"name": "student_name",
}

// ApplicationOpaque lists keys whose values are copied without translation
var ApplicationOpaque = []string{"dynamicCoefficients"}

// Mapper is a bidirectional key translator. It is immutable after
// construction and safe for concurrent use.
type Mapper struct {
	toExternal map[string]string
	toInternal map[string]string
	opaque     map[string]bool
}

// New builds a mapper from the canonical internal keys. Opaque keys are
// given in their internal spelling; the external spelling is opaque too.
func New(fields []string, aliases map[string]string, opaque []string) *Mapper {
	m := &Mapper{
		toExternal: make(map[string]string, len(fields)+len(aliases)),
		toInternal: make(map[string]string, len(fields)),
		opaque:     make(map[string]bool, len(opaque)*2),
	}
	for _, field := range fields {
		ext := ToSnake(field)
		m.toExternal[field] = ext
		m.toInternal[ext] = field
	}
	for internal, ext := range aliases {
		m.toExternal[internal] = ext
	}
	for _, key := range opaque {
		m.opaque[key] = true
		m.opaque[ToSnake(key)] = true
	}
	return m
}

// Default returns the application record mapper
func Default() *Mapper {
	return New(ApplicationFields, ApplicationAliases, ApplicationOpaque)
}

// ExternalKey returns the backend spelling of an internal key
func (m *Mapper) ExternalKey(key string) string {
	if ext, ok := m.toExternal[key]; ok {
		return ext
	}
	return key
}

// InternalKey returns the client spelling of a backend key
func (m *Mapper) InternalKey(key string) string {
	if internal, ok := m.toInternal[key]; ok {
		return internal
	}
	return key
}

// ToExternal translates a record to backend key names. Nested objects are
// translated recursively except under opaque keys; arrays and scalars
// pass through unchanged.
func (m *Mapper) ToExternal(v interface{}) interface{} {
	return m.translate(v, m.ExternalKey)
}

// ToInternal translates a backend record to client key names
func (m *Mapper) ToInternal(v interface{}) interface{} {
	return m.translate(v, m.InternalKey)
}

func (m *Mapper) translate(v interface{}, rename func(string) string) interface{} {
	record, ok := v.(map[string]interface{})
	if !ok || record == nil {
		return v
	}
	out := make(map[string]interface{}, len(record))
	for key, value := range record {
		newKey := rename(key)
		if m.opaque[key] {
			out[newKey] = value
			continue
		}
		if nested, ok := value.(map[string]interface{}); ok {
			out[newKey] = m.translate(nested, rename)
			continue
		}
		out[newKey] = value
	}
	return out
}

// ToSnake converts a camelCase key to snake_case
func ToSnake(key string) string {
	var b strings.Builder
	b.Grow(len(key) + 4)
	for i, r := range key {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Encode converts a struct with client json tags into a generic record
func Encode(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	var record map[string]interface{}
	if err := decodeJSON(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return record, nil
}

// Decode converts a generic record into a struct with client json tags
func Decode(record interface{}, out interface{}) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return nil
}

// DecodeExternal parses a backend JSON object, translates it to client
// names and decodes it into out
func (m *Mapper) DecodeExternal(data []byte, out interface{}) error {
	var raw interface{}
	if err := decodeJSON(data, &raw); err != nil {
		return fmt.Errorf("failed to parse record: %w", err)
	}
	return Decode(m.ToInternal(raw), out)
}

// EncodeExternal encodes v with client names and translates to backend names
func (m *Mapper) EncodeExternal(v interface{}) (map[string]interface{}, error) {
	record, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return m.ToExternal(record).(map[string]interface{}), nil
}

// decodeJSON keeps numbers as json.Number so large ids survive the trip
func decodeJSON(data []byte, out interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(out)
}
