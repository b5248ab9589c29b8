package schedule

// Messages carried by Result.
const (
	MsgAuthRequired    = "authentication required"
	MsgInvalidResponse = "invalid response from server"
	MsgNoEvents        = "no events"
	networkErrorPrefix = "network error: "
	untitled           = "Untitled"
)

// ErrorKind classifies a failed fetch.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindAuthRequired
	KindNetwork
	KindInvalidResponse
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthRequired:
		return "auth_required"
	case KindNetwork:
		return "network_error"
	case KindInvalidResponse:
		return "invalid_response"
	default:
		return "ok"
	}
}

// Event is one booking of a room.
type Event struct {
	Start       string `json:"start"`
	End         string `json:"end"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Result is the outcome of a fetch. Failures are values: Error is set and
// Events is empty. Events is never nil.
type Result struct {
	Events  []Event   `json:"events"`
	Error   string    `json:"error,omitempty"`
	Message string    `json:"message,omitempty"`
	Kind    ErrorKind `json:"-"`
}

func (r Result) Failed() bool { return r.Error != "" }

func (r Result) AuthRequired() bool { return r.Kind == KindAuthRequired }

// Retryable reports whether fresh credentials could change the outcome.
func (r Result) Retryable() bool {
	return r.Kind == KindNetwork || r.Kind == KindInvalidResponse
}

func failure(kind ErrorKind, msg string) Result {
	return Result{Events: []Event{}, Error: msg, Kind: kind}
}
