package transport

import (
	"time"

	"github.com/google/uuid"

	"github.com/fastygo/todosync/domain"
)

// HeaderRevision carries the last list revision a client has seen.
const HeaderRevision = "X-Last-Known-Revision"

const statusOK = "ok"

// Element is the wire form of a record. Times are Unix milliseconds.
type Element struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	Importance    string `json:"importance"`
	Deadline      *int64 `json:"deadline,omitempty"`
	Done          bool   `json:"done"`
	Color         string `json:"color,omitempty"`
	CreatedAt     int64  `json:"created_at"`
	ChangedAt     int64  `json:"changed_at"`
	Modified      bool   `json:"modified,omitempty"`
	LastUpdatedBy string `json:"last_updated_by"`
}

// ListResponse is returned by every list-level route.
type ListResponse struct {
	Status   string    `json:"status"`
	List     []Element `json:"list"`
	Revision int64     `json:"revision"`
}

// ElementResponse is returned by every single-record route.
type ElementResponse struct {
	Status   string   `json:"status"`
	Element  *Element `json:"element,omitempty"`
	Revision int64    `json:"revision"`
}

func NewListResponse(list []Element, revision int64) ListResponse {
	if list == nil {
		list = []Element{}
	}
	return ListResponse{Status: statusOK, List: list, Revision: revision}
}

func NewElementResponse(element *Element, revision int64) ElementResponse {
	return ElementResponse{Status: statusOK, Element: element, Revision: revision}
}

// FromRecord converts a record to its wire form. ChangedAt is the last change
// of the record, which the server compares for last-writer-wins.
func FromRecord(rec domain.Record, device string) Element {
	rec = rec.Normalized()
	el := Element{
		ID:            rec.ID.String(),
		Text:          rec.Text,
		Importance:    string(rec.Importance),
		Done:          rec.IsDone,
		Color:         rec.TextColor,
		CreatedAt:     rec.CreatedAt.UnixMilli(),
		ChangedAt:     rec.LastChange().UnixMilli(),
		Modified:      rec.ModifiedAt != nil,
		LastUpdatedBy: device,
	}
	if rec.Deadline != nil {
		ms := rec.Deadline.UnixMilli()
		el.Deadline = &ms
	}
	return el
}

// FromRecords converts a list of records.
func FromRecords(records []domain.Record, device string) []Element {
	out := make([]Element, 0, len(records))
	for _, rec := range records {
		out = append(out, FromRecord(rec, device))
	}
	return out
}

// Record decodes and validates the wire form. Modified marks a record whose
// change time may equal its creation time; clients that omit it are read by
// comparing the two.
func (e Element) Record() (domain.Record, error) {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		return domain.Record{}, domain.Malformed("invalid id")
	}
	importance, ok := domain.ParseImportance(e.Importance)
	if !ok {
		return domain.Record{}, domain.Malformed("unknown importance " + e.Importance)
	}
	if e.CreatedAt == 0 {
		return domain.Record{}, domain.Malformed("missing created_at")
	}

	rec := domain.Record{
		ID:         id,
		Text:       e.Text,
		Importance: importance,
		IsDone:     e.Done,
		CreatedAt:  time.UnixMilli(e.CreatedAt).UTC(),
		TextColor:  e.Color,
	}
	if e.Deadline != nil {
		t := time.UnixMilli(*e.Deadline).UTC()
		rec.Deadline = &t
	}
	if e.Modified || e.ChangedAt > e.CreatedAt {
		t := time.UnixMilli(e.ChangedAt).UTC()
		rec.ModifiedAt = &t
	}
	rec = rec.Normalized()
	if err := rec.Validate(); err != nil {
		return domain.Record{}, err
	}
	return rec, nil
}

// Records decodes a list, failing on the first invalid element.
func Records(elements []Element) ([]domain.Record, error) {
	out := make([]domain.Record, 0, len(elements))
	for _, el := range elements {
		rec, err := el.Record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
