package protocol

// Status is the first payload byte of every response.
type Status uint8

const (
	// StatusOK precedes an operation-specific result body.
	StatusOK Status = 0

	// StatusError precedes a one-byte operation-specific error code and
	// means the request was understood but refused.
	StatusError Status = 1

	// StatusFailed carries no body and means the request could not be
	// processed at all: malformed payload, unknown opcode, unauthorized
	// connection, or an exhausted database retry budget.
	StatusFailed Status = 3

	// StatusPending marks a query that has not finished executing. It
	// never appears on the wire; a query still pending after its handler
	// returns is reported as failed.
	StatusPending Status = 4
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusError:
		return "ERROR"
	case StatusFailed:
		return "FAILED"
	case StatusPending:
		return "PENDING"
	default:
		return "INVALID"
	}
}
