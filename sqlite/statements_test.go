package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name  string
		batch string
		want  []string
	}{
		{"single", "SELECT 1", []string{"SELECT 1"}},
		{"trailing semicolon", "SELECT 1;", []string{"SELECT 1"}},
		{"two", "CREATE TABLE t(x); SELECT * FROM t", []string{"CREATE TABLE t(x)", "SELECT * FROM t"}},
		{"empty pieces", " ; ;SELECT 1;; ", []string{"SELECT 1"}},
		{"semicolon in string", "SELECT 'a;b'; SELECT 2", []string{"SELECT 'a;b'", "SELECT 2"}},
		{"escaped quote", "SELECT 'it''s;'", []string{"SELECT 'it''s;'"}},
		{"quoted identifier", `SELECT 1 AS "x;y"`, []string{`SELECT 1 AS "x;y"`}},
		{"bracket identifier", "SELECT [a;b] FROM t", []string{"SELECT [a;b] FROM t"}},
		{"line comment", "SELECT 1; -- done; really\nSELECT 2", []string{"SELECT 1", "SELECT 2"}},
		{"block comment", "SELECT /* ; */ 1", []string{"SELECT   1"}},
		{"only comments", "-- nothing\n/* here */", nil},
		{"unterminated comment", "SELECT 1; /* open", []string{"SELECT 1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitStatements(tt.batch))
		})
	}
}

func TestReturnsRows(t *testing.T) {
	tests := []struct {
		stmt string
		want bool
	}{
		{"SELECT 1", true},
		{"select * from t", true},
		{"WITH x AS (SELECT 1) SELECT * FROM x", true},
		{"PRAGMA table_info(t)", true},
		{"EXPLAIN QUERY PLAN SELECT 1", true},
		{"VALUES (1), (2)", true},
		{"INSERT INTO t VALUES (1) RETURNING id", true},
		{"INSERT INTO t VALUES (1)", false},
		{"CREATE TABLE t(x)", false},
		{"DROP TABLE t", false},
		{"UPDATE t SET returning_count = 1", false},
	}

	for _, tt := range tests {
		t.Run(tt.stmt, func(t *testing.T) {
			assert.Equal(t, tt.want, returnsRows(tt.stmt))
		})
	}
}

func TestDatasetStatement(t *testing.T) {
	stmt, err := datasetStatement(`my "t"`, []map[string]any{{"name": "O'Brien", "age": 3}}, []string{"age", "name"})
	assert.NoError(t, err)
	assert.Contains(t, stmt, `CREATE TABLE "my ""t"""`)
	assert.Contains(t, stmt, `json_extract(value, '$."age"') AS "age"`)
	assert.Contains(t, stmt, `O''Brien`)

	_, err = datasetStatement("t", []map[string]any{{"a": 1}}, []string{`bad"col`})
	assert.Error(t, err)
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, sortedKeys(map[string]any{"c": 1, "a": 2, "b": 3}))
}
