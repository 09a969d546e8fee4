package processor

// OutcomeKind classifies how a request was handled.
type OutcomeKind int

const (
	// OutcomeSuccess means the filesystem effect happened.
	OutcomeSuccess OutcomeKind = iota

	// OutcomeFailure means the filesystem rejected the operation.
	OutcomeFailure

	// OutcomeInvalidEncoding means the subject was not valid UTF-8.
	OutcomeInvalidEncoding

	// OutcomeNotImplemented marks a reserved opcode that has no behavior.
	OutcomeNotImplemented

	// OutcomeUnrecognized means the opcode is outside the enum.
	OutcomeUnrecognized
)

var outcomeNames = [...]string{
	OutcomeSuccess:         "success",
	OutcomeFailure:         "failure",
	OutcomeInvalidEncoding: "invalid_encoding",
	OutcomeNotImplemented:  "not_implemented",
	OutcomeUnrecognized:    "unrecognized",
}

func (k OutcomeKind) String() string {
	if k >= 0 && int(k) < len(outcomeNames) {
		return outcomeNames[k]
	}
	return "unknown"
}

// Outcome is the result of processing one request.
type Outcome struct {
	Kind OutcomeKind

	// Message is the response text sent back to the client.
	Message string

	// Err is the underlying error for failures, nil otherwise.
	Err error
}

// Response returns the wire payload for the outcome.
func (o Outcome) Response() []byte {
	return []byte(o.Message)
}
