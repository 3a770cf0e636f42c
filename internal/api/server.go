// Package api serves the containers of one directory over HTTP: listing,
// inspection, validation and metadata updates.
package api

import (
	"net/http"
	"sync"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/ggufedit/internal/editor"
	"github.com/samcharles93/ggufedit/internal/fs"
	"github.com/samcharles93/ggufedit/internal/logger"
	"github.com/samcharles93/ggufedit/internal/version"
)

// DefaultMaxBodyBytes bounds update request bodies.
const DefaultMaxBodyBytes = 8 << 20

type Config struct {
	// Root is the directory whose *.gguf files are served.
	Root string
	FS   fs.FileSystem
	// Editor supplies defaults for update sessions. Per-request query
	// parameters can switch NoInsert, ForceRewrite and Backup on.
	Editor editor.Options
	// MetricsHandler, when set, is mounted at /metrics.
	MetricsHandler http.Handler
	MaxBodyBytes   int64
	Logger         logger.Logger
}

type Server struct {
	cfg Config
	log logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewServer(cfg Config) *Server {
	cfg.FS = fs.OrDefault(cfg.FS)
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	cfg.Editor.FS = cfg.FS
	if cfg.Editor.Logger == nil {
		cfg.Editor.Logger = cfg.Logger
	}
	return &Server{
		cfg:   cfg,
		log:   cfg.Logger,
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/version", s.handleVersion)
	e.GET("/v1/files", s.handleListFiles)
	e.GET("/v1/files/:name", s.handleInspect)
	e.POST("/v1/files/:name/validate", s.handleValidate)
	e.PATCH("/v1/files/:name/metadata", s.handleUpdate)

	if s.cfg.MetricsHandler != nil {
		e.GET("/metrics", echo.WrapHandler(s.cfg.MetricsHandler))
	}
}

func (s *Server) handleVersion(c *echo.Context) error {
	return c.JSON(http.StatusOK, version.Resolve())
}

// lock serialises sessions on one file. The returned func releases it.
func (s *Server) lock(name string) func() {
	s.mu.Lock()
	m, ok := s.locks[name]
	if !ok {
		m = &sync.Mutex{}
		s.locks[name] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}
