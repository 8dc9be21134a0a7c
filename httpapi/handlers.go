package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	enginebridge "github.com/wippyai/enginebridge"
	"github.com/wippyai/enginebridge/errors"
)

// engine is the lifecycle surface shared by both consumers
type engine interface {
	Name() string
	Initialize(ctx context.Context) error
	State() enginebridge.Snapshot
	Terminate(ctx context.Context)
}

type queryRequest struct {
	SQL string `json:"sql" binding:"required"`
}

type codeRequest struct {
	Code string `json:"code" binding:"required"`
}

type datasetRequest struct {
	Name    string           `json:"name" binding:"required"`
	Rows    []map[string]any `json:"rows"`
	Columns []string         `json:"columns"`
}

type datasetSQLRequest struct {
	Statement string `json:"statement" binding:"required"`
}

func (s *Server) lookup(c *gin.Context) (engine, bool) {
	switch c.Param("engine") {
	case "sql":
		return s.sql, true
	case "code":
		return s.code, true
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "unknown engine " + c.Param("engine")})
	return nil, false
}

func (s *Server) engineState(c *gin.Context) {
	eng, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, eng.State())
}

// initializeEngine waits for the engine; a failed attempt is reported as
// 503 with the Failed snapshot in the body
func (s *Server) initializeEngine(c *gin.Context) {
	eng, ok := s.lookup(c)
	if !ok {
		return
	}
	if err := eng.Initialize(c.Request.Context()); err != nil {
		s.log.Warn("engine initialization failed", zap.String("engine", eng.Name()), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, eng.State())
		return
	}
	c.JSON(http.StatusOK, eng.State())
}

func (s *Server) terminateEngines(c *gin.Context) {
	ctx := c.Request.Context()
	s.sql.Terminate(ctx)
	s.code.Terminate(ctx)
	c.JSON(http.StatusOK, gin.H{
		"sql":  s.sql.State(),
		"code": s.code.State(),
	})
}

func (s *Server) executeQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.sql.ExecuteQuery(c.Request.Context(), req.SQL))
}

func (s *Server) executeCode(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.code.ExecuteCode(c.Request.Context(), req.Code))
}

func (s *Server) tableExists(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"exists": s.sql.TableExists(c.Request.Context(), c.Param("name"))})
}

func (s *Server) listTables(c *gin.Context) {
	tables := s.sql.Tables(c.Request.Context())
	if tables == nil {
		tables = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"tables": tables})
}

func (s *Server) loadDataset(c *gin.Context) {
	var req datasetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	loaded := s.sql.LoadDataset(c.Request.Context(), req.Name, req.Rows, req.Columns...)
	c.JSON(http.StatusOK, gin.H{"loaded": loaded})
}

func (s *Server) loadDatasetFromSQL(c *gin.Context) {
	var req datasetSQLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"loaded": s.sql.LoadDatasetFromSQL(c.Request.Context(), req.Statement)})
}

func (s *Server) resetDatabase(c *gin.Context) {
	c.JSON(http.StatusOK, s.sql.Reset(c.Request.Context()))
}

func (s *Server) exportDatabase(c *gin.Context) {
	image, err := s.sql.Export(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="playground.sqlite"`)
	c.Data(http.StatusOK, "application/vnd.sqlite3", image)
}

func (s *Server) importDatabase(c *gin.Context) {
	image, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.sql.Import(c.Request.Context(), image); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": true})
}

// fail maps an engine error onto a status code
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch errors.KindOf(err) {
	case errors.KindNotReady:
		status = http.StatusServiceUnavailable
	case errors.KindInvalidInput:
		status = http.StatusBadRequest
	case errors.KindUnsupported:
		status = http.StatusNotImplemented
	}
	c.JSON(status, gin.H{"error": errors.Message(err)})
}
