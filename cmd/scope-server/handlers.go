package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/theimaginaryfoundation/shrink-o-scope/analysis"
	"github.com/theimaginaryfoundation/shrink-o-scope/store"
)

const maxBodyBytes = 1 << 20

type server struct {
	st      *store.Store
	lex     *lexiconHolder
	hub     *hub
	log     *logrus.Logger
	limiter *rate.Limiter
}

func newServer(st *store.Store, lex *lexiconHolder, h *hub, log *logrus.Logger, limiter *rate.Limiter) *server {
	return &server{st: st, lex: lex, hub: h, log: log, limiter: limiter}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimit)

		r.Get("/evolution", s.handleCorpusEvolution)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Post("/", s.handleCreateSession)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Post("/messages", s.handleAppendMessage)
				r.Get("/analysis", s.handleGetAnalysis)
				r.Get("/evolution", s.handleGetEvolution)
				r.Get("/live", s.handleLive)
			})
		})
	})

	return r
}

// liveEvent is the payload pushed to a session's WebSocket subscribers after
// each appended message.
type liveEvent struct {
	Type      string                        `json:"type"`
	SessionID string                        `json:"session_id"`
	Index     int                           `json:"index"`
	Analysis  analysis.ConversationAnalysis `json:"analysis"`
}

func (s *server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var sess analysis.Session
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&sess); err != nil {
		writeError(w, http.StatusBadRequest, "invalid session JSON: "+err.Error())
		return
	}
	if sess.SessionID == "" {
		sess.SessionID = uuid.NewString()
	}

	if err := s.st.CreateSession(r.Context(), sess); err != nil {
		if errors.Is(err, store.ErrExists) {
			writeError(w, http.StatusConflict, "session already exists: "+sess.SessionID)
			return
		}
		s.serverError(w, r, err)
		return
	}

	if len(sess.Messages) > 0 {
		if _, _, err := s.analyzeAndSave(r.Context(), sess); err != nil {
			s.serverError(w, r, err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id":    sess.SessionID,
		"message_count": len(sess.Messages),
	})
}

func (s *server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	infos, err := s.st.ListSessions(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": infos})
}

func (s *server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.st.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *server) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var m analysis.Message
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, "invalid message JSON: "+err.Error())
		return
	}
	if m.Text == "" {
		writeError(w, http.StatusBadRequest, "message text is empty")
		return
	}
	if m.Timestamp == 0 {
		m.Timestamp = time.Now().UnixMilli()
	}

	idx, err := s.st.AppendMessage(r.Context(), sessionID, m)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.serverError(w, r, err)
		return
	}

	sess, err := s.st.GetSession(r.Context(), sessionID)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	res, _, err := s.analyzeAndSave(r.Context(), sess)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	if payload, err := json.Marshal(liveEvent{
		Type:      "analysis",
		SessionID: sessionID,
		Index:     idx,
		Analysis:  res,
	}); err == nil {
		s.hub.send(sessionID, payload)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"index":    idx,
		"analysis": res,
	})
}

func (s *server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	res, _, err := s.loadOrAnalyze(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"analysis":   res,
	})
}

func (s *server) handleGetEvolution(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	_, evo, err := s.loadOrAnalyze(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"evolution":  evo,
	})
}

func (s *server) handleCorpusEvolution(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.st.AllSessions(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	evo := analysis.AnalyzeTopicEvolutionAcrossSessions(sessions, s.lex.Current())
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions":  len(sessions),
		"evolution": evo,
	})
}

func (s *server) handleLive(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := s.st.GetSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.serverError(w, r, err)
		return
	}
	s.hub.serveWS(w, r, sessionID)
}

// analyzeAndSave runs the full pipeline over the session with the current
// lexicon and persists both result halves.
func (s *server) analyzeAndSave(ctx context.Context, sess analysis.Session) (analysis.ConversationAnalysis, analysis.TopicEvolution, error) {
	lex := s.lex.Current()
	res := analysis.AnalyzeConversation(sess.Messages, analysis.AnalyzeOptions{Lexicon: lex})
	evo := analysis.AnalyzeTopicEvolution(sess, lex)
	if err := s.st.SaveAnalysis(ctx, sess.SessionID, res, evo); err != nil {
		return res, evo, err
	}
	return res, evo, nil
}

// loadOrAnalyze serves the stored analysis, computing and persisting it first
// for sessions that have never been analyzed.
func (s *server) loadOrAnalyze(ctx context.Context, sessionID string) (analysis.ConversationAnalysis, analysis.TopicEvolution, error) {
	res, evo, err := s.st.GetAnalysis(ctx, sessionID)
	if err == nil {
		return res, evo, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return res, evo, err
	}

	sess, err := s.st.GetSession(ctx, sessionID)
	if err != nil {
		return analysis.ConversationAnalysis{}, analysis.TopicEvolution{}, err
	}
	return s.analyzeAndSave(ctx, sess)
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
			"remote":     r.RemoteAddr,
		}).Info("request")
	})
}

func (s *server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.WithError(err).WithFields(logrus.Fields{
		"request_id": middleware.GetReqID(r.Context()),
		"path":       r.URL.Path,
	}).Error("request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
