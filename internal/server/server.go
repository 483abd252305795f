// Package server is the chat web UI: medicine search backed by the browser
// agent, the record table with filters and exports, and the relay chat tab.
// All UI state lives in the session store; handlers receive the session,
// mutate it, and re-render.
package server

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xoity/medicinedb/config"
	"github.com/xoity/medicinedb/internal/agent"
	"github.com/xoity/medicinedb/internal/agent/browser"
	"github.com/xoity/medicinedb/internal/normalize"
	"github.com/xoity/medicinedb/internal/relay"
	"github.com/xoity/medicinedb/internal/store"
	"github.com/xoity/medicinedb/provider"
	"github.com/xoity/medicinedb/session"
	"github.com/xoity/medicinedb/session/inmemory"
	"github.com/xoity/medicinedb/session/redisstore"
)

//go:embed templates/*.html
var templateFS embed.FS

const sessionCookie = "medicinedb_session"

type Server struct {
	Config   *config.Config
	Store    *store.Store
	Sessions session.Store
	Relay    *relay.Client

	// NewRunner builds the automation runner for one search, honoring the
	// session's provider choice. Tests install a stub here.
	NewRunner func(settings session.Settings) (agent.Runner, error)

	Normalizer normalize.Normalizer

	logger *log.Logger
}

// New wires the UI server from configuration.
func New(cfg *config.Config) (*Server, error) {
	var sessions session.Store
	switch session.StoreType(cfg.Session.Store) {
	case session.RedisStore:
		sessions = redisstore.NewStore(cfg.Session.Redis.Addr, cfg.Session.Redis.Password, cfg.Session.Redis.DB)
	case session.InMemoryStore, "":
		sessions = inmemory.NewStore()
	default:
		return nil, fmt.Errorf("unsupported session store: %s", cfg.Session.Store)
	}

	s := &Server{
		Config:   cfg,
		Store:    store.New(cfg.Storage.SQLite.Path),
		Sessions: sessions,
		Relay:    relay.NewClient(cfg.Relay.BaseURL),
		logger:   log.New(log.Writer(), "[HTTP] ", log.LstdFlags),
	}
	s.NewRunner = func(settings session.Settings) (agent.Runner, error) {
		llmCfg := cfg.LLM
		if settings.APIKey != "" {
			llmCfg.Gemini.APIKey = settings.APIKey
		}
		client := provider.Client(settings.Provider)
		if settings.Provider == "" {
			client = provider.Client(llmCfg.Provider)
		}
		llm, err := provider.NewProvider(client, llmCfg)
		if err != nil {
			return nil, err
		}
		return browser.NewRunner(llm,
			cfg.Agent.MaxSteps, cfg.Agent.MaxActionsPerStep,
			cfg.Agent.BrowserTimeout, cfg.Agent.MaxChars), nil
	}
	return s, nil
}

// Run starts the UI server and blocks.
func (s *Server) Run() error {
	if err := s.Store.Init(context.Background()); err != nil {
		return err
	}
	e := s.router()
	s.logger.Printf("listening on %s", s.Config.Server.Address)
	return e.Start(s.Config.Server.Address)
}

type templateRenderer struct {
	templates *template.Template
}

func (r *templateRenderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}

func (s *Server) router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Renderer = &templateRenderer{
		templates: template.Must(template.ParseFS(templateFS, "templates/*.html")),
	}
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

	e.GET("/", s.index)
	e.POST("/search", s.search)
	e.POST("/medicines", s.addMedicine)
	e.POST("/relay", s.relayQuery)
	e.POST("/analyze", s.analyze)
	e.POST("/settings", s.applySettings)
	e.POST("/export/csv", s.exportCSV)
	return e
}

// resolveSession finds or creates the client's session and refreshes the
// cookie.
func (s *Server) resolveSession(c echo.Context) (session.Session, error) {
	id := ""
	if cookie, err := c.Cookie(sessionCookie); err == nil {
		id = cookie.Value
	}
	sess, err := s.Sessions.EnsureSession(id, s.Config.Session.TTL)
	if err != nil {
		return nil, err
	}
	c.SetCookie(&http.Cookie{
		Name:     sessionCookie,
		Value:    sess.ID(),
		Path:     "/",
		HttpOnly: true,
		Expires:  time.Now().Add(s.Config.Session.TTL),
	})
	return sess, nil
}
