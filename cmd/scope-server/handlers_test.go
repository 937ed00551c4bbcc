package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/theimaginaryfoundation/shrink-o-scope/analysis"
	"github.com/theimaginaryfoundation/shrink-o-scope/store"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "scope.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	h := newHub(log)
	go h.run()
	t.Cleanup(h.stop)

	srv := newServer(st, newLexiconHolder(analysis.DefaultLexicon()), h, log, rate.NewLimiter(rate.Limit(1000), 1000))
	return srv.routes()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Fatalf("body = %q, want ok", rec.Body.String())
	}
}

func TestCreateSessionAssignsID(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/sessions", analysis.Session{})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var out struct {
		SessionID string `json:"session_id"`
	}
	decodeBody(t, rec, &out)
	if out.SessionID == "" {
		t.Fatalf("no session id assigned")
	}
}

func TestSessionRoundTrip(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)

	sess := analysis.Session{
		SessionID: "s1",
		Title:     "first visit",
		Messages: []analysis.Message{
			{Author: "user", Text: "my job is stressful and the deadlines keep piling up", Timestamp: 1000},
			{Author: "agent", Text: "TELL ME MORE ABOUT YOUR JOB.", Timestamp: 2000},
		},
	}
	if rec := do(t, h, http.MethodPost, "/api/sessions", sess); rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}

	rec := do(t, h, http.MethodGet, "/api/sessions/s1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var got analysis.Session
	decodeBody(t, rec, &got)
	if got.SessionID != "s1" || len(got.Messages) != 2 {
		t.Fatalf("got session %q with %d messages", got.SessionID, len(got.Messages))
	}

	rec = do(t, h, http.MethodGet, "/api/sessions", nil)
	var list struct {
		Sessions []store.SessionInfo `json:"sessions"`
	}
	decodeBody(t, rec, &list)
	if len(list.Sessions) != 1 || list.Sessions[0].MessageCount != 2 {
		t.Fatalf("list = %+v", list.Sessions)
	}

	// The create call analyzed the messages; the artifact is served as stored.
	rec = do(t, h, http.MethodGet, "/api/sessions/s1/analysis", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("analysis status = %d", rec.Code)
	}
	var ar struct {
		Analysis analysis.ConversationAnalysis `json:"analysis"`
	}
	decodeBody(t, rec, &ar)
	if !hasTopic(ar.Analysis.Topics, "work") {
		t.Fatalf("analysis missing work topic: %+v", ar.Analysis.Topics)
	}
}

func TestCreateSessionConflict(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)

	sess := analysis.Session{SessionID: "dup"}
	if rec := do(t, h, http.MethodPost, "/api/sessions", sess); rec.Code != http.StatusCreated {
		t.Fatalf("first create = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/sessions", sess); rec.Code != http.StatusConflict {
		t.Fatalf("second create = %d, want 409", rec.Code)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)

	if rec := do(t, h, http.MethodGet, "/api/sessions/nope", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/sessions/nope/analysis", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("analysis status = %d, want 404", rec.Code)
	}
}

func TestAppendMessageAnalyzesAndPersists(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)

	if rec := do(t, h, http.MethodPost, "/api/sessions", analysis.Session{SessionID: "live"}); rec.Code != http.StatusCreated {
		t.Fatalf("create = %d", rec.Code)
	}

	rec := do(t, h, http.MethodPost, "/api/sessions/live/messages", analysis.Message{
		Author: "user", Text: "i am anxious about my exam next week", Timestamp: 1000,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("append = %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Index    int                           `json:"index"`
		Analysis analysis.ConversationAnalysis `json:"analysis"`
	}
	decodeBody(t, rec, &out)
	if out.Index != 0 {
		t.Fatalf("first index = %d, want 0", out.Index)
	}
	if !hasTopic(out.Analysis.Topics, "school") || !hasTopic(out.Analysis.Topics, "emotions") {
		t.Fatalf("topics = %+v", out.Analysis.Topics)
	}

	rec = do(t, h, http.MethodPost, "/api/sessions/live/messages", analysis.Message{
		Author: "user", Text: "my teacher says i study too little", Timestamp: 2000,
	})
	decodeBody(t, rec, &out)
	if out.Index != 1 {
		t.Fatalf("second index = %d, want 1", out.Index)
	}

	rec = do(t, h, http.MethodGet, "/api/sessions/live/evolution", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("evolution status = %d", rec.Code)
	}
}

func TestAppendMessageValidation(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)

	if rec := do(t, h, http.MethodPost, "/api/sessions/nope/messages", analysis.Message{Author: "user", Text: "hello"}); rec.Code != http.StatusNotFound {
		t.Fatalf("missing session = %d, want 404", rec.Code)
	}

	if rec := do(t, h, http.MethodPost, "/api/sessions", analysis.Session{SessionID: "v"}); rec.Code != http.StatusCreated {
		t.Fatalf("create = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/sessions/v/messages", analysis.Message{Author: "user"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty text = %d, want 400", rec.Code)
	}
}

func TestCorpusEvolution(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)

	early, late := 1000.0, 2000.0
	for _, sess := range []analysis.Session{
		{
			SessionID: "a", StartTime: &early,
			Messages: []analysis.Message{
				{Author: "user", Text: "work stress is wearing me down", Timestamp: 1_000_000},
				{Author: "agent", Text: "WHY DO YOU SAY THAT?", Timestamp: 1_060_000},
			},
		},
		{
			SessionID: "b", StartTime: &late,
			Messages: []analysis.Message{
				{Author: "user", Text: "i saw my doctor about the sleep problems", Timestamp: 2_000_000},
				{Author: "agent", Text: "HOW DOES THAT MAKE YOU FEEL?", Timestamp: 2_060_000},
			},
		},
	} {
		if rec := do(t, h, http.MethodPost, "/api/sessions", sess); rec.Code != http.StatusCreated {
			t.Fatalf("create %s = %d", sess.SessionID, rec.Code)
		}
	}

	rec := do(t, h, http.MethodGet, "/api/evolution", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out struct {
		Sessions  int                     `json:"sessions"`
		Evolution analysis.TopicEvolution `json:"evolution"`
	}
	decodeBody(t, rec, &out)
	if out.Sessions != 2 {
		t.Fatalf("sessions = %d, want 2", out.Sessions)
	}
	if len(out.Evolution.Timelines) == 0 {
		t.Fatalf("no timelines across sessions")
	}
}

func TestRateLimitExceeded(t *testing.T) {
	t.Parallel()

	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "scope.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)
	hb := newHub(log)
	go hb.run()
	t.Cleanup(hb.stop)

	srv := newServer(st, newLexiconHolder(analysis.DefaultLexicon()), hb, log, rate.NewLimiter(0, 0))
	h := srv.routes()

	rec := do(t, h, http.MethodGet, "/api/sessions", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After header")
	}

	// Health stays reachable for probes even when the API is saturated.
	if rec := do(t, h, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d, want 200", rec.Code)
	}
}

func hasTopic(topics []analysis.Topic, id string) bool {
	for _, tp := range topics {
		if tp.ID == id {
			return true
		}
	}
	return false
}
