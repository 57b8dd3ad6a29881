package domain

import (
	"bytes"
	"encoding/csv"
	"strings"

	"github.com/google/uuid"
)

// CSVColumns is the number of columns in the delimited encoding.
const CSVColumns = 8

// CSVHeader names the delimited columns in order.
var CSVHeader = []string{
	FieldID,
	FieldText,
	FieldImportance,
	FieldDeadline,
	FieldIsDone,
	FieldCreationDate,
	FieldModificationDate,
	FieldTextColor,
}

// CSVFields returns the delimited columns of r.
func (r Record) CSVFields() []string {
	fields := make([]string, CSVColumns)
	fields[0] = r.ID.String()
	fields[1] = r.Text
	if !r.Importance.IsDefault() {
		fields[2] = string(r.Importance)
	}
	if r.Deadline != nil {
		fields[3] = FormatUnixSeconds(*r.Deadline)
	}
	fields[4] = "0"
	if r.IsDone {
		fields[4] = "1"
	}
	fields[5] = FormatUnixSeconds(r.CreatedAt)
	if r.ModifiedAt != nil {
		fields[6] = FormatUnixSeconds(*r.ModifiedAt)
	}
	fields[7] = r.TextColor
	return fields
}

// EncodeCSV renders r as a single delimited line without a trailing newline.
func EncodeCSV(r Record) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(r.CSVFields())
	w.Flush()
	return strings.TrimRight(buf.String(), "\r\n")
}

// DecodeCSV parses a single delimited line.
func DecodeCSV(line string) (Record, error) {
	reader := csv.NewReader(strings.NewReader(line))
	reader.FieldsPerRecord = -1
	fields, err := reader.Read()
	if err != nil {
		return Record{}, Malformed("unreadable line")
	}
	return DecodeCSVFields(fields)
}

// DecodeCSVFields builds a record from already split columns.
func DecodeCSVFields(fields []string) (Record, error) {
	if len(fields) != CSVColumns {
		return Record{}, Malformed("expected 8 columns")
	}

	id, err := uuid.Parse(fields[0])
	if err != nil {
		return Record{}, Malformed("invalid id")
	}
	if fields[1] == "" {
		return Record{}, Malformed("missing text")
	}
	importance, ok := ParseImportance(fields[2])
	if !ok {
		return Record{}, Malformed("unknown importance")
	}

	rec := Record{
		ID:         id,
		Text:       fields[1],
		Importance: importance,
		TextColor:  fields[7],
	}

	if fields[3] != "" {
		deadline, err := ParseUnixSeconds(fields[3])
		if err != nil {
			return Record{}, Malformed("invalid deadline")
		}
		rec.Deadline = &deadline
	}

	switch fields[4] {
	case "0":
		rec.IsDone = false
	case "1":
		rec.IsDone = true
	default:
		return Record{}, Malformed("invalid isDone")
	}

	created, err := ParseUnixSeconds(fields[5])
	if err != nil {
		return Record{}, Malformed("invalid creation date")
	}
	rec.CreatedAt = created

	if fields[6] != "" {
		modified, err := ParseUnixSeconds(fields[6])
		if err != nil {
			return Record{}, Malformed("invalid modification date")
		}
		rec.ModifiedAt = &modified
	}

	if rec.TextColor == "" {
		rec.TextColor = DefaultTextColor
	}
	return rec, nil
}
