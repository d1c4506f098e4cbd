package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	gwebsocket "github.com/gorilla/websocket" // Alias to avoid name conflict
	"go.uber.org/zap"

	"sensor-dashboard/internal/auth"
	"sensor-dashboard/internal/data"
	"sensor-dashboard/internal/feed"
	"sensor-dashboard/internal/metrics"
	"sensor-dashboard/internal/settings"
	"sensor-dashboard/internal/websocket"
)

var upgrader = gwebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // The page may be served from the board itself.
}

// Feed is the part of *feed.Feed the HTTP layer reads.
type Feed interface {
	Snapshot() feed.Snapshot
	WithSnapshot(fn func(feed.Snapshot) error) error
}

type Options struct {
	Feed     Feed
	Settings *settings.Router
	Hub      *websocket.Hub
	Auth     *auth.Manager
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	WebDir   string
	// SensorConnected reports the board link state for /healthz. Optional.
	SensorConnected func() bool
	AllowedOrigins  []string
}

type APIHandler struct {
	feed            Feed
	settings        *settings.Router
	hub             *websocket.Hub
	auth            *auth.Manager
	metrics         *metrics.Metrics
	logger          *zap.Logger
	tmpl            *template.Template
	webDir          string
	sensorConnected func() bool
	allowedOrigins  []string
}

func NewAPIHandler(opts Options) (*APIHandler, error) {
	tmplPath := filepath.Join(opts.WebDir, "templates", "*.html")
	tmpl, err := template.ParseGlob(tmplPath)
	if err != nil {
		return nil, fmt.Errorf("parse templates %s: %w", tmplPath, err)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Auth == nil {
		opts.Auth = auth.NewManager(auth.Config{})
	}
	if opts.SensorConnected == nil {
		opts.SensorConnected = func() bool { return false }
	}
	return &APIHandler{
		feed:            opts.Feed,
		settings:        opts.Settings,
		hub:             opts.Hub,
		auth:            opts.Auth,
		metrics:         opts.Metrics,
		logger:          opts.Logger,
		tmpl:            tmpl,
		webDir:          opts.WebDir,
		sensorConnected: opts.SensorConnected,
		allowedOrigins:  opts.AllowedOrigins,
	}, nil
}

type pageData struct {
	Threshold float64
	TempAxis  feed.AxisBounds
	LightAxis feed.AxisBounds
}

// ServeWebUI serves the main HTML page with the current settings filled in.
func (h *APIHandler) ServeWebUI(w http.ResponseWriter, r *http.Request) {
	snap := h.feed.Snapshot()
	page := pageData{
		Threshold: snap.Threshold,
		TempAxis:  snap.Axes[data.Temp],
		LightAxis: snap.Axes[data.Light],
	}
	if err := h.tmpl.ExecuteTemplate(w, "index.html", page); err != nil {
		h.logger.Error("Error executing template", zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// HandleWebSocket upgrades connections and registers clients with the hub
func (h *APIHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade error", zap.Error(err))
		return
	}

	// Anyone may watch; only authenticated clients may commit settings.
	client := websocket.NewClient(h.hub, conn, h.auth.AllowsWrites(r))

	// The snapshot is taken and queued under the feed lock, so every display
	// event the client later receives was issued after the snapshot.
	err = h.feed.WithSnapshot(func(snap feed.Snapshot) error {
		return h.hub.RegisterWithGreeting(client, "snapshot", snap)
	})
	if err != nil {
		h.logger.Debug("WebSocket client not registered", zap.String("client_id", client.ID), zap.Error(err))
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

// HandleSeries returns the current chart contents and settings.
func (h *APIHandler) HandleSeries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.feed.Snapshot())
}

type commitRequest struct {
	Value settings.Input `json:"value"`
}

// HandleCommit applies a settings commit posted to /api/settings/{control}.
func (h *APIHandler) HandleCommit(w http.ResponseWriter, r *http.Request) {
	control := chi.URLParam(r, "control")

	var req commitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "body must be {\"value\": <number>}")
		return
	}

	err := h.settings.Commit(settings.CommitEvent{Control: control, Value: req.Value})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "committed", "control": control})
	case errors.Is(err, settings.ErrUnknownControl):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, settings.ErrInvalidValue), errors.Is(err, feed.ErrUnsupportedAxis):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("Commit failed", zap.String("control", control), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "commit failed")
	}
}

// HandleControls lists the settings controls the page may commit.
func (h *APIHandler) HandleControls(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"controls": h.settings.Controls()})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleLogin exchanges a username and password for a bearer token.
func (h *APIHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid login body")
		return
	}
	role, err := h.auth.AuthenticateUser(req.Username, req.Password)
	if err != nil {
		h.logger.Info("Login rejected", zap.String("username", req.Username), zap.Error(err))
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := h.auth.GenerateJWT(req.Username, role)
	if err != nil {
		h.logger.Error("Token generation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "token unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// HandleHealth reports liveness plus the board link and client count.
func (h *APIHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "ok",
		"sensor_connected": h.sensorConnected(),
		"clients":          h.hub.ClientCount(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
