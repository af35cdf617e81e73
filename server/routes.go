// Package server - Router und Server-Setup fuer die Bildgenerierung
// Beinhaltet: Server-Struct, Router-Registrierung, Middleware, Server-Start
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"

	"github.com/ollama/stablediffusion/api"
	"github.com/ollama/stablediffusion/diffusion"
	"github.com/ollama/stablediffusion/envconfig"
	"github.com/ollama/stablediffusion/store"
	"github.com/ollama/stablediffusion/version"
)

var mode string = gin.DebugMode

func init() {
	switch mode {
	case gin.DebugMode:
	case gin.ReleaseMode:
	case gin.TestMode:
	default:
		mode = gin.DebugMode
	}

	gin.SetMode(mode)
}

// Server haelt Pipeline, Request-Limit und optionales Lauf-Protokoll
type Server struct {
	addr     net.Addr
	pipeline *diffusion.Pipeline
	sem      *semaphore.Weighted
	runs     *store.Store
}

// NewServer erstellt einen Server. runs darf nil sein.
func NewServer(pipeline *diffusion.Pipeline, runs *store.Store) *Server {
	return &Server{
		pipeline: pipeline,
		sem:      semaphore.NewWeighted(int64(max(1, envconfig.NumParallel()))),
		runs:     runs,
	}
}

// GenerateRoutes erstellt und konfiguriert den HTTP-Router
func (s *Server) GenerateRoutes() (http.Handler, error) {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowBrowserExtensions = true
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
	}
	corsConfig.AllowOrigins = envconfig.AllowedOrigins()

	r := gin.Default()
	r.HandleMethodNotAllowed = true
	r.Use(cors.New(corsConfig))

	// General
	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "Stable Diffusion is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "Stable Diffusion is running") })
	r.HEAD("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, api.VersionResponse{Version: version.Version}) })
	r.GET("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, api.VersionResponse{Version: version.Version}) })

	// Inference
	r.POST("/api/generate", s.GenerateHandler)
	r.GET("/api/schedule", s.ScheduleHandler)

	return r, nil
}

// ScheduleHandler liefert Timesteps und Alphas fuer ?steps=N
func (s *Server) ScheduleHandler(c *gin.Context) {
	steps := int(envconfig.Steps())
	if raw := c.Query("steps"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(c, fmt.Errorf("%w: steps %q", diffusion.ErrInvalidSchedule, raw))
			return
		}
		steps = n
	}

	schedule, err := s.table().Subsample(steps)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.ScheduleResponse{
		Steps:      schedule.Len(),
		Timesteps:  schedule.Timesteps,
		Alphas:     schedule.Alphas,
		AlphasPrev: schedule.AlphasPrev,
	})
}

func (s *Server) table() *diffusion.Table {
	if s.pipeline != nil && s.pipeline.Table != nil {
		return s.pipeline.Table
	}
	return diffusion.DefaultTable()
}

// Serve startet den HTTP-Server auf ln und blockiert bis SIGINT/SIGTERM
func Serve(ln net.Listener, pipeline *diffusion.Pipeline, runs *store.Store) error {
	slog.Info("server config", "env", envconfig.Values())

	s := NewServer(pipeline, runs)
	s.addr = ln.Addr()

	h, err := s.GenerateRoutes()
	if err != nil {
		return err
	}

	ctx, done := context.WithCancel(context.Background())
	defer done()

	srvr := &http.Server{
		Handler:     h,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// Bei ctrl+c laufende Generierungen abbrechen
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		done()
		srvr.Close()
	}()

	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))
	err = srvr.Serve(ln)
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
