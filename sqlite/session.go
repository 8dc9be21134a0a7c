package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/wippyai/enginebridge/errors"
	"github.com/wippyai/enginebridge/loader"
	"github.com/wippyai/enginebridge/provider"
)

const (
	// EngineName is used in logs and user-facing messages
	EngineName = "SQLite"

	// DriverName is the database/sql driver registered by modernc.org/sqlite
	DriverName = "sqlite"

	memoryDSN = ":memory:"
)

// Config configures the SQLite engine
type Config struct {
	// Path of the database file; empty selects a private in-memory database
	Path string

	Logger *zap.Logger
}

// Session is the engine handle: one database with one dedicated connection
type Session struct {
	ID     string
	Bundle string
	DSN    string

	db   *sql.DB
	conn *sql.Conn
}

// Conn returns the session's connection
func (s *Session) Conn() *sql.Conn {
	return s.conn
}

// Close closes the connection, then the database
func (s *Session) Close() error {
	var errs []error
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

var driverRegistered = loader.NewMemo(func(context.Context) (struct{}, error) {
	if !slices.Contains(sql.Drivers(), DriverName) {
		return struct{}{}, errors.NotFound(errors.PhaseLoad, "database driver", DriverName)
	}
	return struct{}{}, nil
})

// bundles lists the storage variants in preference order
func bundles(path string) []loader.Bundle[string] {
	return []loader.Bundle[string]{
		{
			Name:     "file",
			Module:   path,
			Requires: func(loader.Capabilities) bool { return path != "" },
		},
		{Name: "memory", Module: memoryDSN},
	}
}

// ColdStart opens a new session through the loader phases
func ColdStart(ctx context.Context, cfg Config) (*Session, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	s := &Session{ID: uuid.NewString()}
	log = log.With(zap.String("session", s.ID))

	err := loader.Run(ctx, log, EngineName,
		loader.Step("driver", func(ctx context.Context) error {
			_, err := driverRegistered.Get(ctx)
			return err
		}),
		loader.Step("bundle", func(context.Context) error {
			b, err := loader.Select(bundles(cfg.Path), loader.DetectCapabilities())
			if err != nil {
				return err
			}
			s.Bundle, s.DSN = b.Name, b.Module
			return nil
		}),
		loader.Step("open", func(context.Context) error {
			db, err := sql.Open(DriverName, s.DSN)
			if err != nil {
				return err
			}
			// every statement goes through the session's one connection
			db.SetMaxOpenConns(1)
			s.db = db
			return nil
		}),
		loader.Step("ping", func(ctx context.Context) error {
			return s.db.PingContext(ctx)
		}),
		loader.Step("connect", func(ctx context.Context) error {
			conn, err := s.db.Conn(ctx)
			if err != nil {
				return err
			}
			s.conn = conn
			_, err = conn.ExecContext(ctx, "PRAGMA foreign_keys = ON")
			return err
		}),
	)
	if err != nil {
		if cerr := s.Close(); cerr != nil {
			log.Debug("close after failed cold start", zap.Error(cerr))
		}
		return nil, err
	}
	return s, nil
}

// NewProvider creates the process-wide SQLite provider
func NewProvider(cfg Config) *provider.Provider[*Session] {
	return provider.New(provider.Config[*Session]{
		Name: EngineName,
		Load: func(ctx context.Context) (*Session, error) {
			return ColdStart(ctx, cfg)
		},
		Close: func(_ context.Context, s *Session) error {
			return s.Close()
		},
		Logger: cfg.Logger,
	})
}
