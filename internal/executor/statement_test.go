package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckSingleStatement(t *testing.T) {
	tests := []struct {
		name   string
		sql    string
		single bool
	}{
		{"empty", "", true},
		{"whitespace", "  \n\t", true},
		{"plain", "SELECT 1", true},
		{"trailing semicolon", "SELECT 1;", true},
		{"repeated semicolons", "SELECT 1;;  ;", true},
		{"trailing line comment", "SELECT 1; -- note", true},
		{"trailing block comment", "SELECT 1; /* note */", true},
		{"semicolon in string", "INSERT INTO t VALUES ('a;b')", true},
		{"escaped quote", "INSERT INTO t VALUES ('it''s; fine')", true},
		{"semicolon in identifier", `SELECT "a;b", [c;d], ` + "`e;f`" + ` FROM t`, true},
		{"semicolon in comment", "SELECT 1 /* ; DROP TABLE t */", true},
		{"line comment hides rest", "SELECT 1 -- ; DELETE FROM t", true},
		{"trigger body", "CREATE TRIGGER x AFTER INSERT ON t BEGIN INSERT INTO u VALUES (1); UPDATE u SET a = 2; END;", true},
		{"temp trigger", "create temp trigger x after insert on t begin delete from u; end", true},
		{"case end inside trigger", "CREATE TRIGGER x AFTER INSERT ON t BEGIN SELECT CASE WHEN 1 THEN 2 END; END", true},
		{"unterminated string", "SELECT 'abc; DELETE FROM t", true},
		{"two statements", "SELECT 1; DELETE FROM t", false},
		{"two writes", "INSERT INTO t VALUES (1); INSERT INTO t VALUES (2)", false},
		{"statement after trigger", "CREATE TRIGGER x AFTER INSERT ON t BEGIN SELECT 1; END; DROP TABLE t", false},
		{"create table then insert", "CREATE TABLE t (a); INSERT INTO t VALUES (1)", false},
		{"end as identifier outside trigger", "SELECT 1; end", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkSingleStatement(tt.sql)
			if tt.single {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrMultipleStatements)
			}
		})
	}
}
