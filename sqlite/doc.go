// Package sqlite is the query engine: an embedded SQLite database on the
// pure-Go modernc.org/sqlite driver.
//
// The engine handle is a Session holding one *sql.DB limited to a single
// connection and that connection, so temporary state and in-memory tables
// are shared by every statement. NewProvider builds the process-wide
// provider; NewConsole attaches a consumer to it.
//
// Batches are split into statements. Statements that produce rows
// (SELECT, WITH, PRAGMA, EXPLAIN, VALUES or anything with RETURNING) are
// queried, the rest executed; the result is the last statement that
// produced columns. SHOW TABLES, SHOW DATABASES and USE are accepted for
// users coming from other dialects.
package sqlite
