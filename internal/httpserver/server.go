package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pulsoweb/pulso-gateway/internal/auth"
	"github.com/pulsoweb/pulso-gateway/internal/config"
	"github.com/pulsoweb/pulso-gateway/internal/events"
	"github.com/pulsoweb/pulso-gateway/internal/export"
	"github.com/pulsoweb/pulso-gateway/internal/ingest"
	"github.com/pulsoweb/pulso-gateway/internal/record"
	"github.com/pulsoweb/pulso-gateway/internal/report"
	"github.com/pulsoweb/pulso-gateway/internal/store"
)

type Server struct {
	cfg     *config.Config
	log     *zap.Logger
	store   store.Store
	router  *ingest.Router
	reports *report.Service
	bus     *events.Bus
	auth    *auth.Validator
	r       *chi.Mux
}

func New(cfg *config.Config, log *zap.Logger, st store.Store, router *ingest.Router, reports *report.Service, bus *events.Bus) *Server {
	v, err := auth.New(cfg.Auth.JWTPublicKeys, cfg.Auth.Issuer, cfg.Auth.Audience)
	if err != nil {
		log.Warn("auth disabled: key load failed", zap.Error(err))
	}
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))
	s := &Server{cfg: cfg, log: log, store: st, router: router, reports: reports, bus: bus, auth: v, r: r}
	s.routes()
	return s
}

func (s *Server) Router() http.Handler      { return s.r }
func (s *Server) Reload(cfg *config.Config) { s.cfg = cfg }

func (s *Server) routes() {
	s.r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// One ingestion endpoint per logical collection, driven by the type
	// table. /api/webhook falls out of the same loop.
	for _, eventType := range ingest.Types {
		s.r.Post("/api/"+eventType, s.handleIngest(eventType))
	}

	s.r.Get("/api/session-replay/{sessionId}/{produto}", s.handleReplay)
	s.r.Get("/api/session-report/{sessionId}/{produto}", s.guard(s.handleReport))
	s.r.Get("/api/export/{collection}", s.guard(s.handleExport))
	s.r.Get("/api/metadados/all", s.guard(s.handleMetadataAll))
	s.r.Get("/api/metadados/{sessionId}/{produto}", s.handleMetadataGet)
	s.r.Put("/api/metadados", s.handleMetadataUpsert)
	s.r.Get("/api/live", s.handleLive)
}

func (s *Server) handleIngest(eventType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload record.Document
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid json body"})
			return
		}
		ack, err := s.router.Ingest(r.Context(), eventType, payload)
		writeJSON(w, statusFor(err), ack)
	}
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	eventos, err := s.router.Replay(r.Context(),
		chi.URLParam(r, "sessionId"), chi.URLParam(r, "produto"))
	if err != nil {
		s.log.Error("replay read failed", zap.Error(err))
		writeJSON(w, statusFor(err), map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "eventos": eventos})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.reports.BuildReport(r.Context(),
		chi.URLParam(r, "sessionId"), chi.URLParam(r, "produto"))
	if err != nil {
		s.log.Error("report build failed", zap.Error(err))
		writeJSON(w, statusFor(err), map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	docs, err := s.store.Find(r.Context(), collection, store.Filter{},
		store.Sort{Field: ingest.FieldCreatedAt, Ascending: true})
	if err != nil {
		s.log.Error("export read failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.xlsx", collection))
	if err := export.Write(w, "Dados", export.Columns(collection), docs); err != nil {
		// Headers are gone already; all we can do is log.
		s.log.Error("export write failed", zap.Error(err))
	}
}

func (s *Server) handleMetadataAll(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.Find(r.Context(), "metadados", store.Filter{}, store.Sort{})
	if err != nil {
		s.log.Error("metadata read failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	if docs == nil {
		docs = []record.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleMetadataGet(w http.ResponseWriter, r *http.Request) {
	filter := store.Filter{
		ingest.FieldSession: chi.URLParam(r, "sessionId"),
		ingest.FieldProduct: chi.URLParam(r, "produto"),
	}
	doc, err := s.store.FindOne(r.Context(), "metadados", filter)
	if err != nil {
		s.log.Error("metadata read failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	if doc == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleMetadataUpsert sets the given fields on the session's metadata
// document, creating it on first write. Last write wins.
func (s *Server) handleMetadataUpsert(w http.ResponseWriter, r *http.Request) {
	var doc record.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid json body"})
		return
	}
	sessionID, okS := doc.String(ingest.FieldSession)
	produto, okP := doc.String(ingest.FieldProduct)
	if !okS || !okP {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "sessionId and produto are required"})
		return
	}

	filter := store.Filter{ingest.FieldSession: sessionID, ingest.FieldProduct: produto}
	matched, err := s.store.UpdateOne(r.Context(), "metadados", filter, doc)
	if err != nil {
		s.log.Error("metadata update failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	created := false
	if matched == 0 {
		stored := doc.Clone()
		stored[ingest.FieldCreatedAt] = time.Now().UTC()
		if _, err := s.store.InsertOne(r.Context(), "metadados", stored); err != nil {
			s.log.Error("metadata insert failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		created = true
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "created": created})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	sub := s.bus.Subscribe()

	// Writer: push envelopes to the client until it goes away.
	go func() {
		defer func() {
			s.bus.Unsubscribe(sub)
			_ = conn.Close()
		}()
		for ev := range sub.C {
			if err := conn.WriteJSON(ev); err != nil {
				s.log.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	// Minimal reader to detect client close (control frames).
	conn.SetReadLimit(1024)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// guard applies bearer-token auth when a validator is configured. With no
// keys in config the surface stays open.
func (s *Server) guard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			next(w, r)
			return
		}
		tok := r.Header.Get("Authorization")
		if tok == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		if len(tok) > 7 && tok[:7] == "Bearer " {
			tok = tok[7:]
		}
		if _, err := s.auth.Verify(tok); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func statusFor(err error) int {
	var ve *ingest.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest
	}
	if err != nil {
		return http.StatusInternalServerError
	}
	return http.StatusOK
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
