package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"go.uber.org/zap"
	"golang.org/x/term"

	enginebridge "github.com/wippyai/enginebridge"
	"github.com/wippyai/enginebridge/bridge"
	"github.com/wippyai/enginebridge/internal/logger"
	"github.com/wippyai/enginebridge/sqlite"
	"github.com/wippyai/enginebridge/wasi"
)

// session is what the CLI needs from either engine
type session interface {
	Name() string
	Initialize(ctx context.Context) error
	Execute(ctx context.Context, source string) enginebridge.Result
	State() enginebridge.Snapshot
	Subscribe(fn func(enginebridge.Snapshot)) func()
	Terminate(ctx context.Context)
}

type options struct {
	engine      string
	wasmFile    string
	dbPath      string
	source      string
	argv        string
	stdinSource bool
	timeout     time.Duration
	interactive bool
	verbose     bool
}

func main() {
	var o options
	flag.StringVar(&o.engine, "engine", "sql", "Engine to run: sql or wasi")
	flag.StringVar(&o.wasmFile, "wasm", wasi.DefaultModule, "Path to the WASI interpreter module")
	flag.StringVar(&o.dbPath, "db", "", "SQLite database file (default in-memory)")
	flag.StringVar(&o.source, "e", "", "Source to execute")
	flag.StringVar(&o.argv, "argv", "python,-c", "Interpreter argv before the source (comma-separated)")
	flag.BoolVar(&o.stdinSource, "stdin-source", false, "Pass the source on stdin instead of argv")
	flag.DurationVar(&o.timeout, "timeout", bridge.DefaultTimeout, "Initialization timeout")
	flag.BoolVar(&o.interactive, "i", false, "Interactive mode with TUI")
	flag.BoolVar(&o.verbose, "v", false, "Log engine lifecycle to stderr")
	flag.Parse()

	if o.engine != "sql" && o.engine != "wasi" {
		fmt.Fprintln(os.Stderr, "Usage: run [-engine sql|wasi] [-e source] [-i]")
		fmt.Fprintln(os.Stderr, "       run -engine wasi -wasm <python.wasm> -e 'print(1)'")
		fmt.Fprintln(os.Stderr, "       echo 'SELECT 1' | run")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, o, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, stdin io.Reader, stdout io.Writer) error {
	log := zap.NewNop()
	if o.verbose {
		l, err := logger.NewLogger("development")
		if err != nil {
			return fmt.Errorf("logger: %w", err)
		}
		log = l
		defer func() { _ = log.Sync() }()
	}

	sess := newSession(o, log)
	defer sess.Terminate(context.Background())

	if o.interactive || (o.source == "" && isTerminal(stdin)) {
		return runInteractive(ctx, sess)
	}

	src := o.source
	if src == "" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		src = string(b)
	}

	if err := sess.Initialize(ctx); err != nil {
		return err
	}
	res := sess.Execute(ctx, src)
	fmt.Fprintln(stdout, renderResult(res))
	if !res.Success() {
		return fmt.Errorf("%s", res.Error)
	}
	return nil
}

func newSession(o options, log *zap.Logger) session {
	opts := []bridge.Option{bridge.WithTimeout(o.timeout), bridge.WithLogger(log)}
	if o.engine == "wasi" {
		prov := wasi.NewProvider(wasi.Config{
			Module:         o.wasmFile,
			Args:           splitList(o.argv),
			SourceViaStdin: o.stdinSource,
			Logger:         log,
		})
		return wasi.NewInterpreter(prov, opts...)
	}
	prov := sqlite.NewProvider(sqlite.Config{Path: o.dbPath, Logger: log})
	return sqlite.NewConsole(prov, opts...)
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// renderResult formats a result for the terminal: a table for rows, the
// output for text and the message for failures
func renderResult(res enginebridge.Result) string {
	switch res.Kind {
	case enginebridge.KindFailure:
		return "Error: " + res.Error
	case enginebridge.KindText:
		return res.Stdout
	}

	if len(res.Columns) == 0 {
		return fmt.Sprintf("OK (%.1fms)", res.ElapsedMillis())
	}

	rows := make([][]string, len(res.Rows))
	for i, row := range res.Rows {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = formatCell(v)
		}
		rows[i] = cells
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(res.Columns...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	noun := "rows"
	if res.RowCount == 1 {
		noun = "row"
	}
	return fmt.Sprintf("%s\n%d %s (%.1fms)", t.String(), res.RowCount, noun, res.ElapsedMillis())
}

func formatCell(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprint(v)
}
