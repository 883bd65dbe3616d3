package executor

// Wire prefixes for the two outcome variants.
const (
	successPrefix = "SUCCESS "
	errorPrefix   = "ERROR "
)

// WriteDone is the payload of a successful write or DDL statement.
const WriteDone = "done"

// Outcome is the result of executing one command: either a success carrying
// a payload or a failure carrying the engine's message.
type Outcome struct {
	ok   bool
	text string
}

// Success returns a successful outcome with the given payload.
func Success(payload string) Outcome {
	return Outcome{ok: true, text: payload}
}

// Failure returns a failed outcome with the given message.
func Failure(message string) Outcome {
	return Outcome{ok: false, text: message}
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool { return o.ok }

// Text returns the payload of a success or the message of a failure.
func (o Outcome) Text() string { return o.text }

// Response renders the outcome as the text of a response frame.
func (o Outcome) Response() string {
	if o.ok {
		return successPrefix + o.text
	}
	return errorPrefix + o.text
}
