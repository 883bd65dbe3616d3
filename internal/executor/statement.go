package executor

import "errors"

// ErrMultipleStatements rejects a command carrying more than one SQL
// statement. The text is what clients of the gateway have always received
// for this case.
var ErrMultipleStatements = errors.New("You can only execute one statement at a time.") //nolint:staticcheck // Wire-visible text

// Token classes of the statement-boundary scanner.
const (
	tokSemi = iota
	tokSpace
	tokOther
	tokExplain
	tokCreate
	tokTemp
	tokTrigger
	tokEnd
)

// Scanner states. stateStart means "between statements".
const (
	stateInvalid = iota
	stateStart
	stateNormal
	stateExplain
	stateCreate
	stateTrigger
	stateSemi
	stateEnd
)

// boundary is SQLite's statement-completion automaton. Semicolons inside a
// CREATE TRIGGER body do not end the statement; "END;" does.
var boundary = [8][8]uint8{
	//                SEMI         SPACE         OTHER         EXPLAIN       CREATE        TEMP          TRIGGER       END
	stateInvalid: {stateStart, stateInvalid, stateNormal, stateExplain, stateCreate, stateNormal, stateNormal, stateNormal},
	stateStart:   {stateStart, stateStart, stateNormal, stateExplain, stateCreate, stateNormal, stateNormal, stateNormal},
	stateNormal:  {stateStart, stateNormal, stateNormal, stateNormal, stateNormal, stateNormal, stateNormal, stateNormal},
	stateExplain: {stateStart, stateExplain, stateExplain, stateNormal, stateCreate, stateNormal, stateNormal, stateNormal},
	stateCreate:  {stateStart, stateCreate, stateNormal, stateNormal, stateNormal, stateCreate, stateTrigger, stateNormal},
	stateTrigger: {stateSemi, stateTrigger, stateTrigger, stateTrigger, stateTrigger, stateTrigger, stateTrigger, stateTrigger},
	stateSemi:    {stateSemi, stateSemi, stateTrigger, stateTrigger, stateTrigger, stateTrigger, stateTrigger, stateEnd},
	stateEnd:     {stateStart, stateEnd, stateTrigger, stateTrigger, stateTrigger, stateTrigger, stateTrigger, stateTrigger},
}

// checkSingleStatement returns ErrMultipleStatements when anything other
// than whitespace, comments or semicolons follows the first complete
// statement. Unterminated quotes and comments are left for the engine to
// report.
func checkSingleStatement(sql string) error {
	state := stateInvalid
	finished := false

	for i := 0; i < len(sql); {
		tok, next := scanToken(sql, i)
		i = next
		if tok == tokSpace {
			continue
		}
		if finished && tok != tokSemi {
			return ErrMultipleStatements
		}
		prev := state
		state = int(boundary[state][tok])
		if state == stateStart && prev != stateStart && prev != stateInvalid {
			finished = true
		}
	}
	return nil
}

// scanToken classifies the token starting at sql[i] and returns the index
// just past it.
func scanToken(sql string, i int) (int, int) {
	c := sql[i]
	switch {
	case c == ';':
		return tokSemi, i + 1
	case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f':
		return tokSpace, i + 1
	case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
		end := indexFrom(sql, i+2, "*/")
		if end < 0 {
			return tokOther, len(sql)
		}
		return tokSpace, end + 2
	case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
		end := indexFrom(sql, i+2, "\n")
		if end < 0 {
			return tokSpace, len(sql)
		}
		return tokSpace, end + 1
	case c == '[':
		end := indexFrom(sql, i+1, "]")
		if end < 0 {
			return tokOther, len(sql)
		}
		return tokOther, end + 1
	case c == '\'' || c == '"' || c == '`':
		return tokOther, skipQuoted(sql, i)
	case isIDChar(c):
		j := i
		for j < len(sql) && isIDChar(sql[j]) {
			j++
		}
		return keywordToken(sql[i:j]), j
	default:
		return tokOther, i + 1
	}
}

// skipQuoted returns the index just past the quoted token at sql[i]. A
// doubled quote character is an escaped quote.
func skipQuoted(sql string, i int) int {
	q := sql[i]
	for j := i + 1; j < len(sql); j++ {
		if sql[j] != q {
			continue
		}
		if j+1 < len(sql) && sql[j+1] == q {
			j++
			continue
		}
		return j + 1
	}
	return len(sql)
}

func keywordToken(word string) int {
	switch {
	case equalFoldASCII(word, "create"):
		return tokCreate
	case equalFoldASCII(word, "trigger"):
		return tokTrigger
	case equalFoldASCII(word, "temp"), equalFoldASCII(word, "temporary"):
		return tokTemp
	case equalFoldASCII(word, "end"):
		return tokEnd
	case equalFoldASCII(word, "explain"):
		return tokExplain
	default:
		return tokOther
	}
}

func isIDChar(c byte) bool {
	return c >= 0x80 || c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func equalFoldASCII(s, lower string) bool {
	if len(s) != len(lower) {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c != lower[i] {
			return false
		}
	}
	return true
}

func indexFrom(s string, from int, sub string) int {
	for i := from; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
