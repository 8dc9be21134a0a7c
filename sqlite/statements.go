package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	enginebridge "github.com/wippyai/enginebridge"
	"github.com/wippyai/enginebridge/errors"
)

const useMessage = "SQLite uses a single database file - no USE command needed"

var returningClause = regexp.MustCompile(`(?i)\bRETURNING\b`)

// SplitStatements splits a batch on semicolons that are outside string
// literals, quoted identifiers and comments. Comments are dropped and
// empty statements are skipped.
func SplitStatements(batch string) []string {
	var (
		out     []string
		current strings.Builder
		quote   rune
	)

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			out = append(out, s)
		}
		current.Reset()
	}

	runes := []rune(batch)
	for i := 0; i < len(runes); i++ {
		c := runes[i]

		if quote != 0 {
			current.WriteRune(c)
			if c == quote {
				quote = 0
			}
			continue
		}

		switch {
		case c == '\'' || c == '"' || c == '`':
			quote = c
			current.WriteRune(c)
		case c == '[':
			quote = ']'
			current.WriteRune(c)
		case c == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			current.WriteRune('\n')
		case c == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			for i+1 < len(runes) && !(runes[i] == '*' && runes[i+1] == '/') {
				i++
			}
			i++
			current.WriteRune(' ')
		case c == ';':
			flush()
		default:
			current.WriteRune(c)
		}
	}
	flush()

	return out
}

// firstWord returns the leading keyword of a statement in upper case
func firstWord(stmt string) string {
	end := strings.IndexFunc(stmt, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if end < 0 {
		end = len(stmt)
	}
	return strings.ToUpper(stmt[:end])
}

// returnsRows reports whether a statement should be run as a query
func returnsRows(stmt string) bool {
	switch firstWord(stmt) {
	case "SELECT", "WITH", "PRAGMA", "EXPLAIN", "VALUES":
		return true
	}
	return returningClause.MatchString(stmt)
}

// normalizeWhitespace collapses runs of whitespace for shim matching
func normalizeWhitespace(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

// execute runs a batch and returns the output of the last statement that
// produced columns.
func execute(ctx context.Context, s *Session, batch string) (enginebridge.Output, error) {
	stmts := SplitStatements(batch)
	if len(stmts) == 0 {
		return enginebridge.Output{}, errors.InvalidInput(errors.PhaseExecute, "empty statement")
	}

	var last enginebridge.Output
	for _, stmt := range stmts {
		out, hasColumns, err := runStatement(ctx, s.conn, stmt)
		if err != nil {
			return enginebridge.Output{}, errors.Statement(EngineName, err)
		}
		if hasColumns {
			last = out
		}
	}
	return last, nil
}

func runStatement(ctx context.Context, conn *sql.Conn, stmt string) (enginebridge.Output, bool, error) {
	upper := normalizeWhitespace(stmt)

	switch {
	case upper == "SHOW TABLES":
		out, err := query(ctx, conn, tableListQuery)
		return out, true, err
	case upper == "SHOW DATABASES":
		return enginebridge.Output{Columns: []string{"Database"}, Rows: [][]any{{"main"}}}, true, nil
	case strings.HasPrefix(upper, "SHOW "):
		return enginebridge.Output{}, false, fmt.Errorf(
			"SQLite doesn't support %q. Try \"SELECT name FROM sqlite_master WHERE type='table';\" for tables", stmt)
	case strings.HasPrefix(upper, "USE "):
		return enginebridge.Output{Columns: []string{"Message"}, Rows: [][]any{{useMessage}}}, true, nil
	}

	if returnsRows(stmt) {
		out, err := query(ctx, conn, stmt)
		if err != nil {
			return out, false, err
		}
		return out, len(out.Columns) > 0, nil
	}

	_, err := conn.ExecContext(ctx, stmt)
	return enginebridge.Output{}, false, err
}

// queryer is satisfied by both *sql.Conn and *sql.Tx
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func query(ctx context.Context, conn queryer, stmt string, args ...any) (enginebridge.Output, error) {
	rows, err := conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		return enginebridge.Output{}, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return enginebridge.Output{}, err
	}

	out := enginebridge.Output{Columns: columns, Rows: [][]any{}}
	for rows.Next() {
		vals := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return enginebridge.Output{}, err
		}
		out.Rows = append(out.Rows, vals)
	}
	return out, rows.Err()
}

const tableListQuery = `SELECT name FROM main.sqlite_master
WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
ORDER BY name`
