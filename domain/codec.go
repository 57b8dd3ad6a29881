package domain

import (
	"math"
	"strconv"
	"time"
)

// Field names shared by the delimited and structured encodings.
const (
	FieldID               = "id"
	FieldText             = "text"
	FieldImportance       = "importance"
	FieldDeadline         = "deadline"
	FieldIsDone           = "isDone"
	FieldCreationDate     = "creationDate"
	FieldModificationDate = "modificationDate"
	FieldTextColor        = "textColor"
)

// Malformed builds the error returned when an encoded record cannot be decoded.
func Malformed(reason string) error {
	return NewError(ErrCodeInvalid, "malformed record: "+reason)
}

// FormatUnixSeconds renders t as Unix seconds with at most millisecond fraction.
func FormatUnixSeconds(t time.Time) string {
	return strconv.FormatFloat(unixSeconds(t), 'f', -1, 64)
}

// ParseUnixSeconds is the inverse of FormatUnixSeconds.
func ParseUnixSeconds(raw string) (time.Time, error) {
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return time.Time{}, err
	}
	return fromUnixSeconds(secs)
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1000
}

func fromUnixSeconds(secs float64) (time.Time, error) {
	if math.IsNaN(secs) || math.IsInf(secs, 0) {
		return time.Time{}, strconv.ErrRange
	}
	return time.UnixMilli(int64(math.Round(secs * 1000))).UTC(), nil
}
