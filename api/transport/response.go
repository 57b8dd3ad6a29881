package transport

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope wraps auth, health and error answers. List routes reply with
// ListResponse or ElementResponse so clients read the revision directly.
type Envelope struct {
	Status string `json:"status"`
	Code   string `json:"code,omitempty"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

func Success(data any) Envelope {
	return Envelope{Status: StatusSuccess, Data: data}
}

// Failure reports a domain error code. Data may carry details, such as the
// state of each health probe.
func Failure(code, message string, data any) Envelope {
	return Envelope{Status: StatusError, Code: code, Error: message, Data: data}
}

// Detail renders "CODE: message" for error envelopes and "" otherwise.
func (e Envelope) Detail() string {
	if e.Status != StatusError || e.Error == "" {
		return ""
	}
	if e.Code == "" {
		return e.Error
	}
	return e.Code + ": " + e.Error
}
