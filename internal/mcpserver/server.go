// Package mcpserver is the companion query service: a small HTTP surface that
// executes raw SQL against the shared SQLite file on behalf of the UI and the
// SQL-analysis agent. It owns all persistence for the relay path; callers send
// text and get JSON back.
package mcpserver

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xoity/medicinedb/internal/store"
	"github.com/xoity/medicinedb/models"

	_ "modernc.org/sqlite"
)

var queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "medicinedb_relay_queries_total",
	Help: "SQL queries executed by the relay service.",
}, []string{"endpoint", "status"})

type Server struct {
	DBPath string
	Store  *store.Store
	Now    func() time.Time

	logger *log.Logger
}

func NewServer(dbPath string) *Server {
	return &Server{
		DBPath: dbPath,
		Store:  store.New(dbPath),
		Now:    time.Now,
		logger: log.New(log.Writer(), "[RELAY] ", log.LstdFlags),
	}
}

// QueryRequest is the body of both query endpoints.
type QueryRequest struct {
	Query string `json:"query"`
}

// InsightRequest is the body of the append_insight endpoint.
type InsightRequest struct {
	Insight  string `json:"insight"`
	Category string `json:"category"`
}

// Run starts the relay service and blocks.
func (s *Server) Run(addr string) error {
	if err := s.Store.Init(context.Background()); err != nil {
		return err
	}
	e := s.router()
	s.logger.Printf("listening on %s (db %s)", addr, s.DBPath)
	return e.Start(addr)
}

func (s *Server) router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		s.logger.Printf("%d %s %s: %v", code, req.Method, req.URL.Path, err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	g := e.Group("/mcp")
	g.POST("/read_query", s.readQuery)
	g.POST("/write_query", s.writeQuery)
	g.POST("/append_insight", s.appendInsight)
	g.GET("/list_tables", s.listTables)
	g.GET("/insights", s.insights)
	return e
}

// readQuery executes the query and returns rows as column:value objects. The
// query text is trusted as-is; this is a single-user local tool.
func (s *Server) readQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	db, err := sql.Open("sqlite", s.DBPath)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	defer db.Close()

	rows, err := db.QueryContext(c.Request().Context(), req.Query)
	if err != nil {
		queriesTotal.WithLabelValues("read_query", "error").Inc()
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	results := make([]map[string]interface{}, 0)
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	queriesTotal.WithLabelValues("read_query", "ok").Inc()
	return c.JSON(http.StatusOK, map[string]interface{}{"results": results})
}

// writeQuery executes a mutating statement and reports success.
func (s *Server) writeQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	db, err := sql.Open("sqlite", s.DBPath)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	defer db.Close()

	if _, err := db.ExecContext(c.Request().Context(), req.Query); err != nil {
		queriesTotal.WithLabelValues("write_query", "error").Inc()
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	queriesTotal.WithLabelValues("write_query", "ok").Inc()
	return c.JSON(http.StatusOK, map[string]string{"message": "Query executed successfully."})
}

// appendInsight records an analytical note. This is the only writer of the
// insights table; the UI has no insight form.
func (s *Server) appendInsight(c echo.Context) error {
	var req InsightRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Insight == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "insight required")
	}
	if req.Category == "" {
		req.Category = "general"
	}

	in := models.Insight{
		Insight:     req.Insight,
		Category:    req.Category,
		DateCreated: s.Now().Format("2006-01-02"),
	}
	if err := s.Store.InsertInsight(c.Request().Context(), in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Insight recorded."})
}

// listTables enumerates user tables in the database file.
func (s *Server) listTables(c echo.Context) error {
	var req QueryRequest
	req.Query = `SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name`

	db, err := sql.Open("sqlite", s.DBPath)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	defer db.Close()

	rows, err := db.QueryContext(c.Request().Context(), req.Query)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer rows.Close()

	tables := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		tables = append(tables, name)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"tables": tables})
}

// insights lists every recorded insight.
func (s *Server) insights(c echo.Context) error {
	items, err := s.Store.ListInsights(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"insights": items})
}
