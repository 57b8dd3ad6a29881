package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Importance ranks a record. The zero value is treated as ImportanceRegular.
type Importance string

const (
	ImportanceUnimportant Importance = "low"
	ImportanceRegular     Importance = "basic"
	ImportanceImportant   Importance = "important"
)

// DefaultTextColor is used when a record is created without a color.
const DefaultTextColor = "#000000"

// ParseImportance maps an external value to an Importance.
// An empty value decodes as regular.
func ParseImportance(raw string) (Importance, bool) {
	switch Importance(raw) {
	case "", ImportanceRegular:
		return ImportanceRegular, true
	case ImportanceUnimportant:
		return ImportanceUnimportant, true
	case ImportanceImportant:
		return ImportanceImportant, true
	default:
		return "", false
	}
}

// Normalize returns the importance with the implicit default applied.
func (i Importance) Normalize() Importance {
	if i == "" {
		return ImportanceRegular
	}
	return i
}

// IsDefault reports whether the importance is omitted from compact encodings.
func (i Importance) IsDefault() bool {
	return i.Normalize() == ImportanceRegular
}

// Index returns the position used by pickers: 0 low, 1 basic, 2 important.
func (i Importance) Index() int {
	switch i.Normalize() {
	case ImportanceUnimportant:
		return 0
	case ImportanceImportant:
		return 2
	default:
		return 1
	}
}

// Record is the synchronized todo item.
type Record struct {
	ID         uuid.UUID  `json:"id"`
	Text       string     `json:"text"`
	Importance Importance `json:"importance,omitempty"`
	Deadline   *time.Time `json:"deadline,omitempty"`
	IsDone     bool       `json:"is_done"`
	CreatedAt  time.Time  `json:"created_at"`
	ModifiedAt *time.Time `json:"modified_at,omitempty"`
	TextColor  string     `json:"text_color"`
}

// NewRecord builds a record for an item the user saved for the first time.
func NewRecord(text string, importance Importance, deadline *time.Time, textColor string) Record {
	if textColor == "" {
		textColor = DefaultTextColor
	}
	return Record{
		ID:         uuid.New(),
		Text:       normalizeText(text),
		Importance: importance.Normalize(),
		Deadline:   NormalizeTimePtr(deadline),
		CreatedAt:  NormalizeTime(time.Now()),
		TextColor:  textColor,
	}
}

// Edited returns the record with new user content and a fresh modification date.
func (r Record) Edited(text string, importance Importance, deadline *time.Time, textColor string, now time.Time) Record {
	if textColor == "" {
		textColor = r.TextColor
	}
	next := r
	next.Text = normalizeText(text)
	next.Importance = importance.Normalize()
	next.Deadline = NormalizeTimePtr(deadline)
	next.TextColor = textColor
	next.ModifiedAt = r.modifiedAt(now)
	return next
}

// Toggled flips the done state.
func (r Record) Toggled(now time.Time) Record {
	next := r
	next.IsDone = !r.IsDone
	next.ModifiedAt = r.modifiedAt(now)
	return next
}

func (r Record) modifiedAt(now time.Time) *time.Time {
	m := NormalizeTime(now)
	if m.Before(r.CreatedAt) {
		m = r.CreatedAt
	}
	return &m
}

// Validate reports the first broken field rule as an INVALID error.
func (r Record) Validate() error {
	switch {
	case r.ID == uuid.Nil:
		return NewError(ErrCodeInvalid, "record id is required")
	case strings.TrimSpace(r.Text) == "":
		return NewError(ErrCodeInvalid, "record text is required")
	case strings.ContainsRune(r.Text, '\r'):
		return NewError(ErrCodeInvalid, "record text must break lines with \\n only")
	case r.TextColor == "":
		return NewError(ErrCodeInvalid, "record text color is required")
	case r.CreatedAt.IsZero():
		return NewError(ErrCodeInvalid, "record creation date is required")
	case r.ModifiedAt != nil && r.ModifiedAt.Before(r.CreatedAt):
		return NewError(ErrCodeInvalid, "record modification date precedes creation date")
	}
	if _, ok := ParseImportance(string(r.Importance)); !ok {
		return NewError(ErrCodeInvalid, "unknown importance "+string(r.Importance))
	}
	return nil
}

// Normalized returns a copy with times in UTC at millisecond precision and
// defaults applied, so equal records compare equal after any round-trip.
func (r Record) Normalized() Record {
	r.Text = normalizeText(r.Text)
	r.Importance = r.Importance.Normalize()
	r.Deadline = NormalizeTimePtr(r.Deadline)
	r.CreatedAt = NormalizeTime(r.CreatedAt)
	r.ModifiedAt = NormalizeTimePtr(r.ModifiedAt)
	if r.TextColor == "" {
		r.TextColor = DefaultTextColor
	}
	return r
}

// Equal compares two records field by field.
func (r Record) Equal(o Record) bool {
	return r.ID == o.ID &&
		r.Text == o.Text &&
		r.Importance.Normalize() == o.Importance.Normalize() &&
		timePtrEqual(r.Deadline, o.Deadline) &&
		r.IsDone == o.IsDone &&
		r.CreatedAt.Equal(o.CreatedAt) &&
		timePtrEqual(r.ModifiedAt, o.ModifiedAt) &&
		r.TextColor == o.TextColor
}

// LastChange is the modification date, or the creation date for untouched records.
func (r Record) LastChange() time.Time {
	if r.ModifiedAt != nil {
		return *r.ModifiedAt
	}
	return r.CreatedAt
}

// normalizeText turns CRLF and lone CR line breaks into LF. The delimited
// form cannot carry a CR inside a field.
func normalizeText(s string) string {
	if !strings.ContainsRune(s, '\r') {
		return s
	}
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\r", "\n")
}

// NormalizeTime drops the monotonic reading and sub-millisecond precision.
func NormalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC().Truncate(time.Millisecond)
}

// NormalizeTimePtr is NormalizeTime for optional values.
func NormalizeTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	n := NormalizeTime(*t)
	return &n
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
