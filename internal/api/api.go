// internal/api/api.go
// HTTP surface of the server: the websocket endpoint, user records, stats,
// health and static pages.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/isaac-art/dinamap/internal/hub"
	"github.com/isaac-art/dinamap/internal/logger"
	"github.com/isaac-art/dinamap/internal/message"
	"github.com/isaac-art/dinamap/internal/store"
	"github.com/isaac-art/dinamap/internal/util"
	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 5 * time.Second

// Server bundles the dependencies of the HTTP handlers.
type Server struct {
	Hub       *hub.Hub
	WS        http.Handler
	Store     *store.Store
	StaticDir string
	NatsConn  *nats.Conn
	Js        nats.JetStreamContext
	Logger    *logger.Logger
}

// Routes returns the server's handler with permissive CORS applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /ws/{uid}", s.WS)

	mux.HandleFunc("GET /{$}", s.page("index.html"))
	mux.HandleFunc("GET /editor", s.page("editor.html"))
	mux.HandleFunc("GET /video-test", s.page("video_test.html"))
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(s.StaticDir))))

	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /user/{uid}", s.handleUser)
	mux.HandleFunc("POST /begin", s.handleBegin)
	mux.HandleFunc("POST /avatar", s.handleAvatar)
	mux.HandleFunc("POST /save", s.handleSave)
	mux.HandleFunc("GET /health", s.handleHealth)

	return withCORS(mux)
}

func (s *Server) page(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, filepath.Join(s.StaticDir, name))
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Store.Stats()
	if err != nil {
		s.Logger.Errorf("Error generating stats: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	record, err := s.Store.Get(uid)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		s.Logger.Errorf("Error loading user %s: %v", uid, err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error loading user data: %v", err))
		return
	}
	saved, ok := record["saved"]
	if !ok {
		saved = []any{}
	}
	writeJSON(w, http.StatusOK, message.UserResponse{
		UID:    uid,
		Avatar: record["avatar"],
		Saved:  saved,
		Start:  record["start"],
	})
}

func (s *Server) handleBegin(w http.ResponseWriter, r *http.Request) {
	uid := uuid.NewString()
	start := float64(time.Now().UnixNano()) / float64(time.Second)
	if err := s.Store.Set(uid, "start", start); err != nil {
		s.Logger.Errorf("Error creating user %s: %v", uid, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.Logger.WithField("uid", uid).Info("New user started")
	writeJSON(w, http.StatusOK, message.BeginResponse{UID: uid})
}

func (s *Server) handleAvatar(w http.ResponseWriter, r *http.Request) {
	var req message.AvatarRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UID == "" || req.AvatarID == nil {
		writeError(w, http.StatusBadRequest, "Missing uid or avatar_id")
		return
	}
	if !isStringOrInteger(req.AvatarID) {
		writeError(w, http.StatusBadRequest, "avatar_id must be a string or integer")
		return
	}
	if !s.setValue(w, req.UID, "avatar", req.AvatarID) {
		return
	}
	writeJSON(w, http.StatusOK, message.StatusResponse{Message: "Avatar updated successfully"})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req message.SaveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UID == "" || req.SavedIDs == nil {
		writeError(w, http.StatusBadRequest, "Missing uid or saved_ids")
		return
	}
	if _, isList := req.SavedIDs.([]any); !isList && !isStringOrInteger(req.SavedIDs) {
		writeError(w, http.StatusBadRequest, "saved_ids must be a list, string, or integer")
		return
	}
	if !s.setValue(w, req.UID, "saved", req.SavedIDs) {
		return
	}
	writeJSON(w, http.StatusOK, message.StatusResponse{Message: "Data saved successfully"})
}

// setValue writes one value and reports failures to the client.
func (s *Server) setValue(w http.ResponseWriter, uid, key string, value any) bool {
	err := s.Store.Set(uid, key, value)
	if err == nil {
		return true
	}
	var ve *store.ValidationError
	if errors.As(err, &ve) {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	s.Logger.Errorf("Error updating %s for %s: %v", key, uid, err)
	writeError(w, http.StatusInternalServerError, err.Error())
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	natsStatus := "disconnected"
	if s.NatsConn != nil && s.NatsConn.Status() == nats.CONNECTED {
		natsStatus = "connected"
	}
	health := map[string]interface{}{
		"status":  "ok",
		"players": s.Hub.Count(),
		"nats":    natsStatus,
	}
	if s.Js != nil {
		info, err := s.Js.StreamInfo(hub.PresenceStream)
		if err == nil {
			health["jetstream"] = map[string]interface{}{
				"stream":    hub.PresenceStream,
				"messages":  info.State.Msgs,
				"bytes":     info.State.Bytes,
				"retention": fmt.Sprintf("%v", info.Config.MaxAge),
			}
		} else {
			health["jetstream"] = map[string]interface{}{"error": err.Error()}
		}
	}
	writeJSON(w, http.StatusOK, health)
}

// StartServer wires the hub, store and NATS connection and serves HTTP
// until ctx is cancelled.
func StartServer(ctx context.Context, cfg util.Config, serverLogger *logger.Logger) error {
	nc, js := connectNATS(cfg.NatsURL, serverLogger)
	if nc != nil {
		defer nc.Drain()
	}

	var publisher hub.Publisher
	if nc != nil {
		publisher = hub.NewNATSPublisher(nc, js)
	}
	presence := hub.NewHubWithLimit(publisher, logger.NewLogger("hub"), cfg.MaxNotifications)
	defer presence.Close()

	ws := hub.NewHandler(presence, logger.NewLogger("ws"))
	if cfg.UpdateRate > 0 {
		ws.UpdateRate = rate.Limit(cfg.UpdateRate)
		ws.UpdateBurst = cfg.UpdateBurst
	}
	ws.KeepAlive = time.Duration(cfg.KeepAliveSeconds) * time.Second

	srv := &Server{
		Hub:       presence,
		WS:        ws,
		Store:     store.New(cfg.DataFile),
		StaticDir: cfg.StaticDir,
		NatsConn:  nc,
		Js:        js,
		Logger:    serverLogger,
	}

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Routes(),
	}
	errCh := make(chan error, 1)
	go func() {
		serverLogger.Infof("Server started at %s", cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen and serve: %w", err)
	case <-ctx.Done():
	}

	serverLogger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Hijacked websockets are not tracked by Shutdown; presence.Close ends them.
	return httpServer.Shutdown(shutdownCtx)
}

// connectNATS returns a nil connection when NATS is unreachable; the server
// then runs without exporting presence events.
func connectNATS(url string, serverLogger *logger.Logger) (*nats.Conn, nats.JetStreamContext) {
	if url == "" {
		serverLogger.Info("NATS disabled")
		return nil, nil
	}
	serverLogger.Infof("Connecting to NATS at %s", url)
	nc, err := nats.Connect(url)
	if err != nil {
		serverLogger.Errorf("Error connecting to NATS: %v", err)
		serverLogger.Warn("Running without NATS connection. Presence events will not be exported.")
		return nil, nil
	}
	serverLogger.Info("Successfully connected to NATS")

	js, err := nc.JetStream()
	if err != nil {
		serverLogger.Errorf("Error getting JetStream context: %v", err)
		return nc, nil
	}
	if err := hub.SetupPresenceStream(js); err != nil {
		serverLogger.Errorf("Error setting up stream %s: %v", hub.PresenceStream, err)
		serverLogger.Warn("Publishing presence events on core NATS only.")
		return nc, nil
	}
	serverLogger.Infof("Presence events go to stream %s", hub.PresenceStream)
	return nc, js
}
