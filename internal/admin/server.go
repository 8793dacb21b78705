// Package admin serves a session's health, counters and prometheus metrics
// over HTTP while wbctl runs.
package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/wbclient/internal/auth"
	"github.com/danmuck/wbclient/internal/observability"
	"github.com/danmuck/wbclient/internal/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const shutdownGrace = 5 * time.Second

// Source is the view of a session the admin surface reports on.
type Source interface {
	Stats() session.Stats
	Params() session.Params
	Disconnected() <-chan struct{}
}

var _ Source = (*session.Session)(nil)

type Server struct {
	Name    string
	Addr    string
	Started time.Time

	source Source
	guard  auth.Validator
	router *gin.Engine
}

// New builds the admin router. A non-nil guard requires a bearer token on
// /stats and /metrics; /health stays open.
func New(name, addr string, corsOrigins []string, source Source, guard auth.Validator) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		Name:    name,
		Addr:    addr,
		Started: time.Now(),
		source:  source,
		guard:   guard,
		router:  r,
	}
	s.registerRoutes()
	return s
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		status, code := "ok", http.StatusOK
		if s.disconnected() {
			status, code = "disconnected", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":  status,
			"uptime":  time.Since(s.Started).String(),
			"session": s.Name,
		})
	})

	private := s.router.Group("/", s.requireToken())
	private.GET("/stats", func(c *gin.Context) {
		params := s.source.Params()
		c.JSON(http.StatusOK, gin.H{
			"session":      s.Name,
			"disconnected": s.disconnected(),
			"params": gin.H{
				"protocol_version": params.ProtocolVersion.String(),
				"separator":        string(params.Separator),
				"wildcard":         string(params.Wildcard),
				"multi_wildcard":   string(params.MultiWildcard),
			},
			"stats": s.source.Stats(),
		})
	})

	private.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.guard == nil {
			c.Next()
			return
		}
		if err := auth.Check(s.guard, c.GetHeader("Authorization")); err != nil {
			log.Warn().Err(err).Str("path", c.Request.URL.Path).Msg("admin.unauthorized")
			c.Header("WWW-Authenticate", `Bearer realm="wbctl"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// Serve listens on Addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.Addr).Msg("admin.listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) disconnected() bool {
	select {
	case <-s.source.Disconnected():
		return true
	default:
		return false
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
