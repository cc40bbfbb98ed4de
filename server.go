package main

import (
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/oszuidwest/zwfm-voice/internal/auth"
	"github.com/oszuidwest/zwfm-voice/internal/config"
	"github.com/oszuidwest/zwfm-voice/internal/connection"
	"github.com/oszuidwest/zwfm-voice/internal/livekit"
	"github.com/oszuidwest/zwfm-voice/internal/server"
	"github.com/oszuidwest/zwfm-voice/internal/session"
	"github.com/oszuidwest/zwfm-voice/internal/types"
	"github.com/oszuidwest/zwfm-voice/internal/util"
)

// Push cadence of the WebSocket event loop.
const (
	bandsInterval = 50 * time.Millisecond // 20 fps for the visualizer
	stateInterval = 3 * time.Second       // Keepalive state push
)

var loginTmpl = template.Must(template.New("login").Parse(loginHTML))
var indexTmpl = template.Must(template.New("index").Parse(indexHTML))
var faviconTmpl = template.Must(template.New("favicon").Parse(faviconSVG))

type pageData struct {
	Version    string
	Year       int
	AppName    string
	PrimaryCSS template.CSS
}

// Server is the HTTP server of the voice session web interface.
type Server struct {
	config     *config.Config
	negotiator *connection.Negotiator
	session    *session.Controller
	gate       *auth.Gate
	minter     *livekit.Minter
	commands   *server.CommandHandler
	version    *VersionChecker
}

// NewServer returns a new Server. gate is nil when the login gate is
// disabled; minter is nil when no LiveKit credentials are configured.
func NewServer(cfg *config.Config, negotiator *connection.Negotiator, sess *session.Controller, gate *auth.Gate, minter *livekit.Minter, version *VersionChecker) *Server {
	return &Server{
		config:     cfg,
		negotiator: negotiator,
		session:    sess,
		gate:       gate,
		minter:     minter,
		commands:   server.NewCommandHandler(cfg, negotiator, sess, gate != nil, version.Info),
		version:    version,
	}
}

// handleWebSocket handles bidirectional WebSocket communication for real-time updates.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	// Only the writer goroutine writes to the connection.
	send := make(chan any, 16)
	done := make(chan struct{})
	statusUpdate := make(chan struct{}, 1)

	go s.runWebSocketWriter(conn, send, done)
	go s.runWebSocketReader(conn, send, done, statusUpdate)

	s.runWebSocketEventLoop(send, done, statusUpdate)
}

// runWebSocketWriter writes messages from the send channel to the connection
// until the reader stops. The send channel is never closed: async command
// results may still arrive after the client went away.
func (s *Server) runWebSocketWriter(conn server.WebSocketConn, send <-chan any, done <-chan struct{}) {
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for {
		select {
		case msg := <-send:
			if err := conn.WriteJSON(msg); err != nil {
				slog.Debug("WebSocket write failed", "error", err)
				return
			}
		case <-done:
			return
		}
	}
}

// runWebSocketReader reads commands from the connection and dispatches them.
func (s *Server) runWebSocketReader(conn server.WebSocketConn, send chan<- any, done, statusUpdate chan<- struct{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
		close(done)
	}()

	for {
		var cmd server.WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		s.commands.Handle(cmd, send, func() {
			select {
			case statusUpdate <- struct{}{}:
			default:
			}
		})
	}
}

// runWebSocketEventLoop pushes session state on change and periodically, and
// volume bands on a fixed cadence.
func (s *Server) runWebSocketEventLoop(send chan any, done, statusUpdate <-chan struct{}) {
	bandsTicker := time.NewTicker(bandsInterval)
	stateTicker := time.NewTicker(stateInterval)
	defer bandsTicker.Stop()
	defer stateTicker.Stop()

	trySend := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-done:
			return false
		}
	}

	changed := s.session.Changed()
	if !trySend(s.buildWSState()) {
		return
	}

	var lastBands []float64
	for {
		select {
		case <-done:
			return
		case <-changed:
			changed = s.session.Changed()
			if !trySend(s.buildWSState()) {
				return
			}
		case <-statusUpdate:
			if !trySend(s.buildWSState()) {
				return
			}
		case <-stateTicker.C:
			if !trySend(s.buildWSState()) {
				return
			}
		case <-bandsTicker.C:
			bands := s.session.Bands()
			// Idle bars only need to be sent once.
			if isSilent(bands) && isSilent(lastBands) && lastBands != nil {
				continue
			}
			lastBands = bands
			if !trySend(types.WSBandsResponse{Type: "bands", Bands: bands}) {
				return
			}
		}
	}
}

// isSilent reports whether all bands are zero.
func isSilent(bands []float64) bool {
	return !slices.ContainsFunc(bands, func(v float64) bool { return v != 0 })
}

// buildWSState returns the current WebSocket state message.
func (s *Server) buildWSState() types.WSStateResponse {
	return types.WSStateResponse{
		Type:    "state",
		State:   s.session.State(),
		Version: s.version.Info(),
	}
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	protect := s.authMiddleware()

	// Public routes (no auth required)
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)
	mux.HandleFunc("/login.html", s.handleLoginPage)

	// Public static assets (needed for login page styling)
	mux.HandleFunc("/style.css", s.handlePublicStatic)
	mux.HandleFunc("/login.js", s.handlePublicStatic)
	mux.HandleFunc("/favicon.svg", s.handleFavicon)

	// Token relay (optional API key) and public client settings
	mux.HandleFunc("/api/connection", s.handleRelayToken)
	mux.HandleFunc("/api/config", s.handleAPIConfig)

	// Protected routes
	mux.HandleFunc("/api/session", protect(s.handleAPISession))
	mux.HandleFunc("/ws", protect(s.handleWebSocket))
	mux.HandleFunc("/", protect(s.handleStatic))

	return securityHeaders(mux)
}

// authMiddleware returns the login gate middleware, or a pass-through when
// the gate is disabled.
func (s *Server) authMiddleware() func(http.HandlerFunc) http.HandlerFunc {
	if s.gate == nil {
		return func(next http.HandlerFunc) http.HandlerFunc { return next }
	}
	return s.gate.Middleware()
}

// securityHeaders returns middleware that wraps handlers with security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// handleLogin verifies credentials through the login gate.
// POST /login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.gate == nil {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			s.writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "Method " + r.Method + " Not Allowed"})
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"message": "Login not required"})
		return
	}
	s.gate.LoginHandler()(w, r)
}

// handleLogout clears the session cookie.
// POST /logout
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s.gate == nil {
		s.writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
		return
	}
	s.gate.LogoutHandler()(w, r)
}

// handleLoginPage renders the login page.
func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if err := loginTmpl.Execute(w, s.pageData()); err != nil {
		slog.Error("failed to render login page", "error", err)
	}
}

func (s *Server) pageData() pageData {
	cfg := s.config.Snapshot()
	return pageData{
		Version:    Version,
		Year:       time.Now().Year(),
		AppName:    cfg.AppName,
		PrimaryCSS: template.CSS(util.ThemeCSS(cfg.ColorLight, cfg.ColorDark)), //nolint:gosec // Colors are validated as #RRGGBB
	}
}

// handlePublicStatic handles requests for static files without authentication.
func (s *Server) handlePublicStatic(w http.ResponseWriter, r *http.Request) {
	if !serveStaticFile(w, r.URL.Path) {
		http.NotFound(w, r)
	}
}

// handleFavicon serves the favicon with the configured accent color.
func (s *Server) handleFavicon(w http.ResponseWriter, r *http.Request) {
	cfg := s.config.Snapshot()
	w.Header().Set("Content-Type", "image/svg+xml")
	if err := faviconTmpl.Execute(w, struct{ Color string }{Color: cfg.ColorLight}); err != nil {
		slog.Error("failed to render favicon", "error", err)
	}
}

// serveStaticFile serves a static file by path and reports whether it was found.
func serveStaticFile(w http.ResponseWriter, path string) bool {
	file, ok := staticFiles[path]
	if !ok {
		return false
	}
	w.Header().Set("Content-Type", file.contentType)
	if _, err := w.Write([]byte(file.content)); err != nil {
		slog.Error("failed to write static file", "file", file.name, "error", err)
	}
	return true
}

// staticFile is an embedded static file with content type and data.
type staticFile struct {
	contentType string
	content     string
	name        string
}

// staticFiles is a map from URL paths to static file definitions.
var staticFiles = map[string]staticFile{
	"/style.css": {
		contentType: "text/css",
		content:     styleCSS,
		name:        "style.css",
	},
	"/app.js": {
		contentType: "application/javascript",
		content:     appJS,
		name:        "app.js",
	},
	"/login.js": {
		contentType: "application/javascript",
		content:     loginJS,
		name:        "login.js",
	},
	// favicon.svg is served dynamically via handleFavicon
}

// handleStatic handles requests for the embedded web interface.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/" {
		path = "/index.html"
	}

	if path == "/index.html" {
		w.Header().Set("Content-Type", "text/html")
		if err := indexTmpl.Execute(w, s.pageData()); err != nil {
			slog.Error("failed to write index.html", "error", err)
		}
		return
	}

	if serveStaticFile(w, path) {
		return
	}

	http.NotFound(w, r)
}

// Start begins the HTTP server.
// Returns an *http.Server that can be used for graceful shutdown.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.config.Snapshot().WebPort)
	slog.Info("starting web server", "addr", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}
