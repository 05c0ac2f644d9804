// Package server is the local API through which the CLI, userscripts and
// other local tools reach the controlled tab.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/xander1421/yt-fs/internal/logging"
	"github.com/xander1421/yt-fs/internal/relay"
)

// ErrNoPort is returned by Start when every configured port is taken.
var ErrNoPort = errors.New("failed to start server - all ports in use")

// Controller is the tab the API talks to.
type Controller interface {
	HandleMessage(ctx context.Context, msg relay.Message) (relay.Ack, error)
	Status(ctx context.Context) (relay.Status, error)
}

type Config struct {
	Host           string        `yaml:"host" koanf:"host"`
	Ports          []int         `yaml:"ports" koanf:"ports"`
	AllowedOrigins []string      `yaml:"allowed_origins" koanf:"allowed_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout" koanf:"request_timeout"`
}

func DefaultConfig() Config {
	return Config{
		Host:           "127.0.0.1",
		Ports:          relay.DefaultPorts(),
		AllowedOrigins: []string{"https://youtube.com", "https://*.youtube.com"},
		RequestTimeout: 5 * time.Second,
	}
}

// BuildInfo is reported by /api/1/version.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

type Server struct {
	cfg   Config
	ctrl  Controller
	build BuildInfo
	log   *zap.Logger

	router     chi.Router
	httpServer *http.Server
	port       int

	mu         sync.Mutex
	onShutdown func()
}

func New(cfg Config, ctrl Controller, build BuildInfo, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	s := &Server{
		cfg:   cfg,
		ctrl:  ctrl,
		build: build,
		log:   log.Named("api"),
	}
	s.router = s.buildRouter()
	return s
}

// SetOnShutdown registers what /api/1/shutdown triggers.
func (s *Server) SetOnShutdown(fn func()) {
	s.mu.Lock()
	s.onShutdown = fn
	s.mu.Unlock()
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Port() int { return s.port }

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))
	r.Use(s.checkOrigin)
	r.Use(middleware.SetHeader("Cache-Control", "no-cache, must-revalidate"))

	r.Route("/api/1", func(r chi.Router) {
		r.Get("/ping", s.handlePing)
		r.Get("/version", s.handleVersion)
		r.Get("/status", s.handleStatus)
		r.Get("/ws", s.handleWebSocket)
		r.Group(func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			r.Post("/message", s.handleMessage)
			r.Post("/log", s.handleLog)
			r.Post("/shutdown", s.handleShutdown)
		})
	})
	return r
}

// originAllowed matches a browser Origin against the configured origins,
// which may hold one "*" wildcard each. Requests without an Origin come from
// local tools, not pages, and are allowed.
func (s *Server) originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	origin = strings.ToLower(origin)
	return lo.ContainsBy(s.cfg.AllowedOrigins, func(allowed string) bool {
		allowed = strings.ToLower(allowed)
		if allowed == "*" || allowed == origin {
			return true
		}
		prefix, suffix, ok := strings.Cut(allowed, "*")
		return ok && len(origin) >= len(prefix)+len(suffix) &&
			strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix)
	})
}

// checkOrigin refuses requests from pages outside the allowed origins. CORS
// alone does not stop a simple cross-site POST from reaching the handler.
func (s *Server) checkOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); !s.originAllowed(origin) {
			s.log.Warn("request from disallowed origin", zap.String("origin", origin), zap.String("path", r.URL.Path))
			writeError(w, http.StatusForbidden, "origin not allowed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// Start listens on the first free configured port and serves in the
// background.
func (s *Server) Start() error {
	for _, port := range s.cfg.Ports {
		addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(port))
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			s.log.Debug("port busy", zap.Int("port", port), zap.Error(err))
			continue
		}
		s.port = port
		s.httpServer = &http.Server{
			Handler:           s.router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		s.log.Info("API server running", zap.String("addr", addr))
		go func() {
			if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("serve", zap.Error(err))
			}
		}()
		return nil
	}
	return ErrNoPort
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "app": relay.AppName})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     relay.AppName,
		"version": s.build.Version,
		"commit":  s.build.Commit,
		"build":   s.build.Date,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()
	st, err := s.ctrl.Status(ctx)
	if err != nil {
		s.log.Warn("status", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg relay.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	ack, err := s.deliver(r.Context(), msg)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (s *Server) deliver(ctx context.Context, msg relay.Message) (relay.Ack, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	ack, err := s.ctrl.HandleMessage(ctx, msg)
	if err != nil {
		s.log.Warn("deliver message", zap.String("action", msg.Action), zap.Error(err))
		return relay.Ack{}, fmt.Errorf("deliver message: %w", err)
	}
	if ack.ID == "" {
		ack.ID = msg.ID
	}
	s.log.Info("message delivered", zap.String("action", msg.Action), zap.Bool("ok", ack.OK), zap.Bool("enabled", ack.Enabled))
	return ack, nil
}

// handleWebSocket speaks the message protocol over a websocket: each text
// frame is a Message, answered with an Ack, or with a Status for the
// status action.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return s.originAllowed(r.Header.Get("Origin")) },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	for {
		var msg relay.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("websocket read", zap.Error(err))
			}
			var syntax *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntax) || errors.As(err, &typeErr) {
				_ = conn.WriteJSON(relay.Ack{Error: "invalid message format"})
				continue
			}
			return
		}

		var reply any
		if msg.Action == relay.ActionStatus {
			ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
			st, err := s.ctrl.Status(ctx)
			cancel()
			if err != nil {
				reply = relay.Ack{ID: msg.ID, Error: err.Error()}
			} else {
				reply = st
			}
		} else {
			ack, err := s.deliver(r.Context(), msg)
			if err != nil {
				ack = relay.Ack{ID: msg.ID, Error: err.Error()}
			}
			reply = ack
		}
		if err := conn.WriteJSON(reply); err != nil {
			s.log.Debug("websocket write", zap.Error(err))
			return
		}
	}
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
		Level   string `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if req.Level == "" {
		req.Level = "info"
	}
	logging.Script(s.log.Named("js"), req.Level, req.Message)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	s.log.Info("shutdown requested")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "shutting down"})

	s.mu.Lock()
	fn := s.onShutdown
	s.mu.Unlock()
	if fn != nil {
		go fn()
	}
}
