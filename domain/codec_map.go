package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EncodeMap renders r in the structured key/value form. Default importance and
// absent optional dates are left out.
func EncodeMap(r Record) map[string]any {
	m := map[string]any{
		FieldID:           r.ID.String(),
		FieldText:         r.Text,
		FieldIsDone:       r.IsDone,
		FieldCreationDate: unixSeconds(r.CreatedAt),
		FieldTextColor:    r.TextColor,
	}
	if !r.Importance.IsDefault() {
		m[FieldImportance] = string(r.Importance)
	}
	if r.Deadline != nil {
		m[FieldDeadline] = unixSeconds(*r.Deadline)
	}
	if r.ModifiedAt != nil {
		m[FieldModificationDate] = unixSeconds(*r.ModifiedAt)
	}
	return m
}

// DecodeMap builds a record from the structured key/value form.
func DecodeMap(m map[string]any) (Record, error) {
	if m == nil {
		return Record{}, Malformed("empty object")
	}

	rawID, ok := m[FieldID].(string)
	if !ok {
		return Record{}, Malformed("missing id")
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return Record{}, Malformed("invalid id")
	}

	text, ok := m[FieldText].(string)
	if !ok || text == "" {
		return Record{}, Malformed("missing text")
	}

	importance := ImportanceRegular
	if raw, present := m[FieldImportance]; present && raw != nil {
		s, ok := raw.(string)
		if !ok {
			return Record{}, Malformed("unknown importance")
		}
		if importance, ok = ParseImportance(s); !ok {
			return Record{}, Malformed("unknown importance")
		}
	}

	isDone, ok := m[FieldIsDone].(bool)
	if !ok {
		return Record{}, Malformed("invalid isDone")
	}

	created, ok := timeValue(m[FieldCreationDate])
	if !ok {
		return Record{}, Malformed("invalid creation date")
	}

	rec := Record{
		ID:         id,
		Text:       text,
		Importance: importance,
		IsDone:     isDone,
		CreatedAt:  created,
		TextColor:  DefaultTextColor,
	}

	if raw, present := m[FieldDeadline]; present && raw != nil {
		deadline, ok := timeValue(raw)
		if !ok {
			return Record{}, Malformed("invalid deadline")
		}
		rec.Deadline = &deadline
	}
	if raw, present := m[FieldModificationDate]; present && raw != nil {
		modified, ok := timeValue(raw)
		if !ok {
			return Record{}, Malformed("invalid modification date")
		}
		rec.ModifiedAt = &modified
	}
	if color, ok := m[FieldTextColor].(string); ok && color != "" {
		rec.TextColor = color
	}
	return rec, nil
}

// MarshalRecord encodes r as a JSON object in the structured form.
func MarshalRecord(r Record) ([]byte, error) {
	return json.Marshal(EncodeMap(r))
}

// UnmarshalRecord decodes a JSON object in the structured form.
func UnmarshalRecord(data []byte) (Record, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Record{}, Malformed("invalid json")
	}
	return DecodeMap(m)
}

func timeValue(raw any) (time.Time, bool) {
	var secs float64
	switch v := raw.(type) {
	case float64:
		secs = v
	case float32:
		secs = float64(v)
	case int:
		secs = float64(v)
	case int64:
		secs = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, false
		}
		secs = f
	default:
		return time.Time{}, false
	}
	t, err := fromUnixSeconds(secs)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
