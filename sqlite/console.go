package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"go.uber.org/zap"

	enginebridge "github.com/wippyai/enginebridge"
	"github.com/wippyai/enginebridge/bridge"
	"github.com/wippyai/enginebridge/errors"
	"github.com/wippyai/enginebridge/provider"
)

// Console is one consumer of the shared SQLite session
type Console struct {
	*bridge.Bridge[*Session]
}

// NewConsole attaches a consumer to prov
func NewConsole(prov *provider.Provider[*Session], opts ...bridge.Option) *Console {
	return &Console{
		Bridge: bridge.New(bridge.Engine[*Session]{
			Name:     EngineName,
			Provider: prov,
			Execute:  execute,
		}, opts...),
	}
}

// ExecuteQuery runs a batch of statements and returns the rows of the
// last statement that produced columns.
func (c *Console) ExecuteQuery(ctx context.Context, batch string) enginebridge.Result {
	return c.Execute(ctx, batch)
}

// TableExists reports whether a table or view named name exists in the
// main schema. Any failure, including not being ready, yields false.
func (c *Console) TableExists(ctx context.Context, name string) bool {
	var found bool
	err := c.Use(ctx, func(ctx context.Context, s *Session) error {
		var got string
		err := s.conn.QueryRowContext(ctx,
			`SELECT name FROM main.sqlite_master
			WHERE type IN ('table', 'view') AND name = ? COLLATE NOCASE`, name).Scan(&got)
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		c.introspectionFailed("exists", err, zap.String("table", name))
		return false
	}
	return found
}

// LoadDataset replaces table name with rows. Columns default to the sorted
// keys of the first row. It reports false when there is no data or the
// load fails.
func (c *Console) LoadDataset(ctx context.Context, name string, rows []map[string]any, columns ...string) bool {
	err := c.Use(ctx, func(ctx context.Context, s *Session) error {
		if _, err := s.conn.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(name)); err != nil {
			return err
		}
		if len(rows) == 0 {
			return errNoData
		}

		cols := columns
		if len(cols) == 0 {
			cols = sortedKeys(rows[0])
		}
		stmt, err := datasetStatement(name, rows, cols)
		if err != nil {
			return err
		}
		_, err = s.conn.ExecContext(ctx, stmt)
		return err
	})
	if err != nil {
		if stderrors.Is(err, errNoData) {
			c.Logger().Warn("no data to load", zap.String("table", name))
			return false
		}
		c.Logger().Error("failed to load dataset", zap.String("table", name), zap.Error(err))
		return false
	}
	c.Logger().Debug("dataset loaded", zap.String("table", name), zap.Int("rows", len(rows)))
	return true
}

var errNoData = stderrors.New("no data to load")

// LoadDatasetFromSQL executes a creation statement verbatim
func (c *Console) LoadDatasetFromSQL(ctx context.Context, stmt string) bool {
	err := c.Use(ctx, func(ctx context.Context, s *Session) error {
		_, err := s.conn.ExecContext(ctx, stmt)
		return err
	})
	if err != nil {
		c.Logger().Error("failed to load dataset from SQL", zap.Error(err))
		return false
	}
	return true
}

// ResetReport lists what Reset dropped and what it could not drop
type ResetReport struct {
	Dropped []string          `json:"dropped"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// Complete reports whether every table was dropped
func (r ResetReport) Complete() bool {
	return len(r.Failed) == 0
}

// Reset drops every table in the session. Foreign key enforcement is off
// for the duration so that a referenced table can go before the tables
// that reference it. Each drop is attempted on its own; failures are
// logged and listed in the report, never returned.
func (c *Console) Reset(ctx context.Context) ResetReport {
	report := ResetReport{Dropped: []string{}}
	err := c.Use(ctx, func(ctx context.Context, s *Session) error {
		return foreignKeysOff(ctx, s.conn, func() error {
			dropped, failed, err := dropTables(ctx, s.conn)
			report.Dropped = append(report.Dropped, dropped...)
			for _, table := range sortedKeys(failed) {
				c.introspectionFailed("reset", failed[table], zap.String("table", table))
				if report.Failed == nil {
					report.Failed = map[string]string{}
				}
				report.Failed[table] = failed[table].Error()
			}
			return err
		})
	})
	if err != nil {
		c.introspectionFailed("reset", err)
	}
	return report
}

// schemaConn is satisfied by both *sql.Conn and *sql.Tx
type schemaConn interface {
	queryer
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// dropTables drops every user table of the main schema. A failed drop is
// recorded and the rest are still attempted; err is set only when the
// tables cannot be listed.
func dropTables(ctx context.Context, conn schemaConn) (dropped []string, failed map[string]error, err error) {
	out, err := query(ctx, conn, tableListQuery)
	if err != nil {
		return nil, nil, err
	}
	for _, row := range out.Rows {
		table := fmt.Sprint(row[0])
		if _, err := conn.ExecContext(ctx, "DROP TABLE IF EXISTS main."+quoteIdent(table)); err != nil {
			if failed == nil {
				failed = map[string]error{}
			}
			failed[table] = err
			continue
		}
		dropped = append(dropped, table)
	}
	return dropped, failed, nil
}

// foreignKeysOff runs fn with foreign key enforcement disabled and turns
// it back on afterwards, even when ctx is cancelled. The pragma is a no-op
// inside a transaction, so fn must open any transaction itself.
func foreignKeysOff(ctx context.Context, conn *sql.Conn, fn func() error) error {
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return err
	}
	err := fn()
	_, restoreErr := conn.ExecContext(context.WithoutCancel(ctx), "PRAGMA foreign_keys = ON")
	return stderrors.Join(err, restoreErr)
}

type serializer interface {
	Serialize() ([]byte, error)
}

// Export returns a serialized image of the main database
func (c *Console) Export(ctx context.Context) ([]byte, error) {
	var image []byte
	err := c.Use(ctx, func(_ context.Context, s *Session) error {
		return s.conn.Raw(func(dc any) error {
			ser, ok := dc.(serializer)
			if !ok {
				return errors.Unsupported(errors.PhaseExecute, "driver connection cannot serialize")
			}
			var err error
			image, err = ser.Serialize()
			return err
		})
	})
	return image, err
}

const imageHeader = "SQLite format 3\x00"

const importedSchemaQuery = `SELECT type, name, sql FROM imported.sqlite_master
WHERE sql IS NOT NULL AND name NOT LIKE 'sqlite_%'
ORDER BY CASE type WHEN 'table' THEN 0 WHEN 'index' THEN 1 WHEN 'view' THEN 2 ELSE 3 END, rowid`

// Import replaces the main database with an image produced by Export. The
// image is attached from a temporary file and copied into main inside one
// transaction, so a bad image leaves the session as it was.
func (c *Console) Import(ctx context.Context, image []byte) error {
	if len(image) == 0 {
		return errors.InvalidInput(errors.PhaseExecute, "empty database image")
	}
	if !bytes.HasPrefix(image, []byte(imageHeader)) {
		return errors.InvalidInput(errors.PhaseExecute, "not an SQLite database image")
	}

	f, err := os.CreateTemp("", "enginebridge-import-*.sqlite")
	if err != nil {
		return errors.Wrap(errors.PhaseExecute, errors.KindStatement, err, "stage database image")
	}
	path := f.Name()
	defer func() { _ = os.Remove(path) }()
	_, err = f.Write(image)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrap(errors.PhaseExecute, errors.KindStatement, err, "stage database image")
	}

	return c.Use(ctx, func(ctx context.Context, s *Session) error {
		if _, err := s.conn.ExecContext(ctx, "ATTACH DATABASE ? AS imported", path); err != nil {
			return errors.Wrap(errors.PhaseExecute, errors.KindInvalidInput, err, "attach database image")
		}
		defer func() {
			if _, err := s.conn.ExecContext(context.WithoutCancel(ctx), "DETACH DATABASE imported"); err != nil {
				c.introspectionFailed("import", err)
			}
		}()

		err := foreignKeysOff(ctx, s.conn, func() error {
			tx, err := s.conn.BeginTx(ctx, nil)
			if err != nil {
				return err
			}
			if err := replaceMain(ctx, tx); err != nil {
				_ = tx.Rollback()
				return err
			}
			return tx.Commit()
		})
		if err != nil {
			return errors.Wrap(errors.PhaseExecute, errors.KindInvalidInput, err, "import database image")
		}
		c.Logger().Info("database imported", zap.Int("bytes", len(image)))
		return nil
	})
}

// replaceMain empties main and rebuilds it from the attached image: tables
// and their rows first, then indexes, views and triggers.
func replaceMain(ctx context.Context, tx *sql.Tx) error {
	objects, err := query(ctx, tx, importedSchemaQuery)
	if err != nil {
		return err
	}

	views, err := query(ctx, tx, `SELECT name FROM main.sqlite_master WHERE type = 'view'`)
	if err != nil {
		return err
	}
	for _, row := range views.Rows {
		if _, err := tx.ExecContext(ctx, "DROP VIEW IF EXISTS main."+quoteIdent(fmt.Sprint(row[0]))); err != nil {
			return err
		}
	}
	_, failed, err := dropTables(ctx, tx)
	if err != nil {
		return err
	}
	if len(failed) > 0 {
		table := sortedKeys(failed)[0]
		return fmt.Errorf("drop %s: %w", table, failed[table])
	}

	for _, row := range objects.Rows {
		kind, name, ddl := fmt.Sprint(row[0]), fmt.Sprint(row[1]), fmt.Sprint(row[2])
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create %s %s: %w", kind, name, err)
		}
		if kind != "table" {
			continue
		}
		q := quoteIdent(name)
		if _, err := tx.ExecContext(ctx, "INSERT INTO main."+q+" SELECT * FROM imported."+q); err != nil {
			return fmt.Errorf("copy %s: %w", name, err)
		}
	}

	var sequences int
	err = tx.QueryRowContext(ctx,
		`SELECT count(*) FROM imported.sqlite_master WHERE name = 'sqlite_sequence'`).Scan(&sequences)
	if err != nil || sequences == 0 {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM main.sqlite_sequence"); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, "INSERT INTO main.sqlite_sequence SELECT * FROM imported.sqlite_sequence")
	return err
}

// Tables lists the user tables of the session
func (c *Console) Tables(ctx context.Context) []string {
	var names []string
	err := c.Use(ctx, func(ctx context.Context, s *Session) error {
		out, err := query(ctx, s.conn, tableListQuery)
		if err != nil {
			return err
		}
		for _, row := range out.Rows {
			names = append(names, fmt.Sprint(row[0]))
		}
		return nil
	})
	if err != nil {
		c.introspectionFailed("tables", err)
		return nil
	}
	return names
}

func (c *Console) introspectionFailed(op string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(errors.Introspection(EngineName, op, err)))
	c.Logger().Warn("introspection failed", fields...)
}

// datasetStatement builds CREATE TABLE ... AS SELECT over a JSON blob of
// the rows, one json_extract per column.
func datasetStatement(name string, rows []map[string]any, columns []string) (string, error) {
	blob, err := json.Marshal(rows)
	if err != nil {
		return "", err
	}

	exprs := make([]string, len(columns))
	for i, col := range columns {
		if strings.ContainsAny(col, `"\`) {
			return "", errors.InvalidInput(errors.PhaseExecute, fmt.Sprintf("unsupported column name %q", col))
		}
		path := quoteLiteral(`$."` + col + `"`)
		exprs[i] = fmt.Sprintf("json_extract(value, %s) AS %s", path, quoteIdent(col))
	}

	return fmt.Sprintf("CREATE TABLE %s AS SELECT %s FROM json_each(%s)",
		quoteIdent(name), strings.Join(exprs, ", "), quoteLiteral(string(blob))), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
