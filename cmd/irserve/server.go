package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/effectus/irkit/eval"
	"github.com/effectus/irkit/guard"
	"github.com/effectus/irkit/hydrate"
	"github.com/effectus/irkit/hydrate/htmldom"
	"github.com/effectus/irkit/ir"
	"github.com/effectus/irkit/lint"
	"github.com/effectus/irkit/render"
	"github.com/effectus/irkit/session"
	"github.com/effectus/irkit/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxDocumentBytes = 4 << 20

type server struct {
	ev             *eval.Evaluator
	renderer       *render.Renderer
	hydrator       *hydrate.Hydrator
	docs           store.Store
	sessions       *session.Manager
	routes         *routeTable
	auth           apiAuth
	limiter        *rateLimiter
	trustForwarded bool
	readOnly       bool
	log            *zap.Logger
}

// limiterIdle is the shortest time an unused client limiter is kept.
const limiterIdle = 10 * time.Minute

type rateLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time
	swept   time.Time
	clients map[string]*clientLimiter
}

type clientLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

func newRateLimiter(requestsPerMinute int, burst int) *rateLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = requestsPerMinute
	}
	// A client is only forgotten once its bucket would have refilled.
	idle := limiterIdle
	if refill := time.Duration(burst) * time.Minute / time.Duration(requestsPerMinute); refill > idle {
		idle = refill
	}
	return &rateLimiter{
		limit:   rate.Every(time.Minute / time.Duration(requestsPerMinute)),
		burst:   burst,
		idle:    idle,
		now:     time.Now,
		clients: make(map[string]*clientLimiter),
	}
}

func (rl *rateLimiter) Allow(key string) bool {
	if rl == nil {
		return true
	}
	now := rl.now()
	rl.mu.Lock()
	if now.Sub(rl.swept) >= rl.idle {
		rl.sweep(now)
	}
	c, ok := rl.clients[key]
	if !ok {
		c = &clientLimiter{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = c
	}
	c.seen = now
	rl.mu.Unlock()
	return c.lim.AllowN(now, 1)
}

// sweep drops limiters idle for at least rl.idle. Callers hold rl.mu.
func (rl *rateLimiter) sweep(now time.Time) {
	for key, c := range rl.clients {
		if now.Sub(c.seen) >= rl.idle {
			delete(rl.clients, key)
		}
	}
	rl.swept = now
}

func (rl *rateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// clientKey identifies the caller for rate limiting. X-Forwarded-For is
// only consulted behind a trusted proxy.
func clientKey(r *http.Request, trustForwarded bool) string {
	if r == nil {
		return "unknown"
	}
	if trustForwarded {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			parts := strings.Split(forwarded, ",")
			if first := strings.TrimSpace(parts[0]); first != "" {
				return first
			}
		}
	}
	host := r.RemoteAddr
	if strings.Contains(host, ":") {
		if h, _, err := net.SplitHostPort(host); err == nil {
			return h
		}
	}
	return host
}

func (s *server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/documents", s.handleDocuments)
	mux.HandleFunc("/api/documents/", s.handleDocument)
	mux.HandleFunc("/api/events", s.handleEvent)
	mux.HandleFunc("/api/session", s.handleSession)
	mux.HandleFunc("/api/session/claims", s.handleClaims)
	mux.HandleFunc("/api/tags", s.handleTags)
	mux.HandleFunc("/", s.handlePage)
	return s.withMiddleware(mux)
}

func (s *server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" && !s.limiter.Allow(clientKey(r, s.trustForwarded)) {
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		if strings.HasPrefix(r.URL.Path, "/api/") && !visitorPaths[r.URL.Path] {
			if ok, hasToken := s.auth.Authorize(r, requiredRoleFor(r)); !ok {
				if !hasToken {
					writeJSONError(w, http.StatusUnauthorized, "missing or invalid token")
					return
				}
				writeJSONError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
		}
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"routes": s.routes.len(),
	})
}

// handlePage serves the routed document after its policy check.
func (s *server) handlePage(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.routes.match(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	ctx := r.Context()
	_, locals, err := s.sessions.Load(ctx, r)
	if err != nil {
		s.log.Error("loading session", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ec := eval.NewContext(rt.env, locals)

	if rt.policy != nil {
		decision := guard.Authorized(ctx, s.ev, ec, *rt.policy, rt.onFail)
		switch {
		case decision.Redirect != "":
			http.Redirect(w, r, decision.Redirect, http.StatusSeeOther)
			return
		case !decision.Allow:
			http.Error(w, http.StatusText(decision.Status), decision.Status)
			return
		}
	}

	doc, err := s.docs.Get(ctx, rt.document)
	if errors.Is(err, store.ErrNotFound) {
		s.log.Warn("routed document missing", zap.String("path", r.URL.Path), zap.String("document", rt.document))
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.log.Error("loading document", zap.String("document", rt.document), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	page, err := s.renderer.Page(ctx, doc, ec, render.WithTitle(rt.title))
	if err != nil {
		s.log.Error("rendering page", zap.String("document", rt.document), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	_, _ = io.WriteString(w, page)
}

func (s *server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	names, err := s.docs.List(r.Context())
	if err != nil {
		s.log.Error("listing documents", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "listing documents failed")
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *server) handleDocument(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/documents/")
	if err := store.ValidateName(name); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		doc, err := s.docs.Get(ctx, name)
		if errors.Is(err, store.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "document not found")
			return
		}
		if err != nil {
			s.log.Error("loading document", zap.String("document", name), zap.Error(err))
			writeJSONError(w, http.StatusInternalServerError, "loading document failed")
			return
		}
		writeJSON(w, http.StatusOK, doc)

	case http.MethodPut:
		if s.readOnly {
			writeJSONError(w, http.StatusForbidden, "document writes are disabled")
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentBytes+1))
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "reading body failed")
			return
		}
		if len(body) > maxDocumentBytes {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "document too large")
			return
		}
		doc, err := ir.ParseJSON(body)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		issues := lint.LintDocument(doc, name, s.ev.Registries())
		if lint.HasErrors(issues) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":  "document has lint errors",
				"issues": issues,
			})
			return
		}
		if err := s.docs.Put(ctx, name, doc); err != nil {
			s.log.Error("storing document", zap.String("document", name), zap.Error(err))
			writeJSONError(w, http.StatusInternalServerError, "storing document failed")
			return
		}
		s.log.Info("document stored", zap.String("document", name), zap.Int("nodes", doc.Len()))
		writeJSON(w, http.StatusOK, map[string]any{"name": name, "issues": issues})

	case http.MethodDelete:
		if s.readOnly {
			writeJSONError(w, http.StatusForbidden, "document writes are disabled")
			return
		}
		err := s.docs.Delete(ctx, name)
		if errors.Is(err, store.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "document not found")
			return
		}
		if err != nil {
			s.log.Error("deleting document", zap.String("document", name), zap.Error(err))
			writeJSONError(w, http.StatusInternalServerError, "deleting document failed")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type eventRequest struct {
	Document string `json:"document"`
	Target   string `json:"target"`
	Event    string `json:"event"`
}

type eventResponse struct {
	Fired  int            `json:"fired"`
	Locals map[string]any `json:"locals"`
}

// handleEvent runs the handlers bound to target in document against the
// caller's session and stores the resulting locals.
func (s *server) handleEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req eventRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid event request")
		return
	}
	if req.Target == "" || req.Event == "" {
		writeJSONError(w, http.StatusBadRequest, "target and event are required")
		return
	}
	if err := store.ValidateName(req.Document); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	doc, err := s.docs.Get(ctx, req.Document)
	if errors.Is(err, store.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		s.log.Error("loading document", zap.String("document", req.Document), zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "loading document failed")
		return
	}

	id, locals, err := s.sessions.Load(ctx, r)
	if err != nil {
		s.log.Error("loading session", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "loading session failed")
		return
	}
	ec := eval.NewContext(eval.Client, locals)

	fired, err := s.dispatch(ctx, doc, ec, req.Target, req.Event)
	if err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if fired == 0 {
		writeJSONError(w, http.StatusNotFound, "no handler bound to target")
		return
	}

	locals = ec.Locals()
	if _, err := s.sessions.Save(ctx, w, id, locals); err != nil {
		s.log.Error("saving session", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "saving session failed")
		return
	}
	writeJSON(w, http.StatusOK, eventResponse{Fired: fired, Locals: locals})
}

// dispatch renders doc, binds its handlers to the parsed markup and fires
// event on target.
func (s *server) dispatch(ctx context.Context, doc *ir.Document, ec *eval.Context, target, event string) (int, error) {
	markup := s.renderer.Render(ctx, doc.Root, ec)
	dom, err := htmldom.ParseString(markup)
	if err != nil {
		return 0, fmt.Errorf("parsing markup: %w", err)
	}
	bindings, err := s.hydrator.Hydrate(ctx, dom, doc, ec)
	if err != nil {
		return 0, err
	}
	s.log.Debug("hydrated", zap.Int("bindings", len(bindings)))
	return dom.Dispatch(ctx, target, event), nil
}

// handleSession reads, merges into, or clears the caller's session locals.
// Claim keys are left to handleClaims.
func (s *server) handleSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, locals, err := s.sessions.Load(ctx, r)
	if err != nil {
		s.log.Error("loading session", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "loading session failed")
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, locals)

	case http.MethodPut, http.MethodPatch:
		var update map[string]any
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&update); err != nil {
			writeJSONError(w, http.StatusBadRequest, "session body must be a JSON object")
			return
		}
		locals, err = s.sessions.ApplyVisitor(locals, update, r.Method == http.MethodPut)
		if errors.Is(err, session.ErrClaimKey) {
			writeJSONError(w, http.StatusForbidden, err.Error())
			return
		}
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		if _, err := s.sessions.Save(ctx, w, id, locals); err != nil {
			s.log.Error("saving session", zap.Error(err))
			writeJSONError(w, http.StatusInternalServerError, "saving session failed")
			return
		}
		writeJSON(w, http.StatusOK, locals)

	case http.MethodDelete:
		if err := s.sessions.Clear(ctx, w, id); err != nil {
			s.log.Error("clearing session", zap.Error(err))
			writeJSONError(w, http.StatusInternalServerError, "clearing session failed")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type claimsRequest struct {
	Session string         `json:"session"`
	Claims  map[string]any `json:"claims"`
}

type claimsResponse struct {
	Session string         `json:"session"`
	Locals  map[string]any `json:"locals"`
}

// handleClaims issues claims into a session for a write-token caller. The
// session is named in the body or taken from the request cookie; without
// either a new session is started.
func (s *server) handleClaims(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodPatch {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req claimsRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid claims request")
		return
	}

	ctx := r.Context()
	id := req.Session
	var locals map[string]any
	var err error
	if id == "" {
		id, locals, err = s.sessions.Load(ctx, r)
	} else {
		locals, err = s.sessions.Provider.Load(ctx, id)
		if errors.Is(err, session.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "session not found")
			return
		}
	}
	if err != nil {
		s.log.Error("loading session", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "loading session failed")
		return
	}

	locals, err = s.sessions.ApplyClaims(locals, req.Claims, r.Method == http.MethodPut)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err = s.sessions.Save(ctx, w, id, locals)
	if err != nil {
		s.log.Error("saving session", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "saving session failed")
		return
	}
	s.log.Info("session claims issued", zap.Int("claims", len(req.Claims)))
	writeJSON(w, http.StatusOK, claimsResponse{Session: id, Locals: locals})
}

func (s *server) handleTags(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, registryTags(s.ev.Registries()))
}

func registryTags(reg *eval.Registries) map[string][]string {
	return map[string][]string{
		"injectors":   reg.Injectors.List(),
		"operators":   reg.Operators.List(),
		"comparators": reg.Comparators.List(),
		"actions":     reg.Actions.List(),
		"events":      reg.Events.List(),
		"policies":    reg.Policies.List(),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func startHTTPServer(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting HTTP server", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("HTTP server stopped")
	return nil
}
