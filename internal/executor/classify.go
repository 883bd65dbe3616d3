package executor

import (
	"strings"
	"unicode"
)

// Kind is the dispatch class of a command.
type Kind int

const (
	// KindWrite covers DML, DDL and anything that is not a query.
	KindWrite Kind = iota
	// KindRead is a query whose rows are returned to the client.
	KindRead
)

// readPrefix is compared against the start of the trimmed command.
const readPrefix = "SELECT"

// maxVerbLength caps the verb reported in statement events.
const maxVerbLength = 16

// String returns "read" or "write".
func (k Kind) String() string {
	if k == KindRead {
		return "read"
	}
	return "write"
}

// Classify decides whether command is a read or a write.
//
// The rule is a plain case-insensitive prefix test on the trimmed text, not a
// keyword match: "SELECTED" counts as a read, while "WITH ... SELECT", a
// leading comment or blank input count as writes.
func Classify(command string) Kind {
	trimmed := strings.TrimSpace(command)
	if len(trimmed) < len(readPrefix) {
		return KindWrite
	}
	if strings.EqualFold(trimmed[:len(readPrefix)], readPrefix) {
		return KindRead
	}
	return KindWrite
}

// Verb returns the upper-cased leading word of command, for logs and
// events that must not carry the full statement text.
func Verb(command string) string {
	fields := strings.FieldsFunc(command, func(r rune) bool {
		return unicode.IsSpace(r) || r == '(' || r == ';'
	})
	if len(fields) == 0 {
		return ""
	}
	verb := strings.ToUpper(fields[0])
	if len(verb) > maxVerbLength {
		verb = verb[:maxVerbLength]
	}
	return verb
}
