package httpapi

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wippyai/enginebridge/sqlite"
	"github.com/wippyai/enginebridge/wasi"
)

// Config configures the HTTP layer
type Config struct {
	// StaticDir is served at the root; its engines/ subdirectory holds the
	// engine binaries
	StaticDir string

	RateLimit bool
	RPS       float64
	Burst     int

	Logger *zap.Logger
}

// Server exposes the query console and the code interpreter over JSON
type Server struct {
	sql  *sqlite.Console
	code *wasi.Interpreter

	cfg     Config
	log     *zap.Logger
	limiter *rate.Limiter
}

// New creates a server over the two consumers
func New(sql *sqlite.Console, code *wasi.Interpreter, cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{sql: sql, code: code, cfg: cfg, log: log}
	if cfg.RateLimit {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	return s
}

// Routes builds the gin engine
func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())
	r.Use(crossOriginIsolation())

	if s.cfg.StaticDir != "" {
		r.Static("/engines", filepath.Join(s.cfg.StaticDir, "engines"))
	}

	api := r.Group("/api")
	{
		api.GET("/engines/:engine/state", s.engineState)
		api.POST("/engines/:engine/initialize", s.initializeEngine)
		api.POST("/engines/terminate", s.terminateEngines)
	}

	sql := api.Group("/sql")
	{
		sql.GET("/tables", s.listTables)
		sql.GET("/tables/:name", s.tableExists)
		sql.POST("/reset", s.resetDatabase)
		sql.GET("/export", s.exportDatabase)
		sql.POST("/import", s.importDatabase)
	}

	limited := api.Group("", s.rateLimit())
	{
		limited.POST("/sql/query", s.executeQuery)
		limited.POST("/sql/datasets", s.loadDataset)
		limited.POST("/sql/datasets/sql", s.loadDatasetFromSQL)
		limited.POST("/code/execute", s.executeCode)
	}

	return r
}
