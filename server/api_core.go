package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/cors"
)

type api struct {
	svc     *service
	store   Store
	tokens  *tokenSigner
	log     *slog.Logger
	bus     *EventBus
	limiter Limiter
}

func newAPI(svc *service, bus *EventBus, limiter Limiter, log *slog.Logger) *api {
	return &api{svc: svc, store: svc.store, tokens: svc.tokens, log: log, bus: bus, limiter: limiter}
}

func (a *api) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", a.handleHealth)

	mux.HandleFunc("POST /api/auth/register", a.withRateLimit("register", a.handleRegister))
	mux.HandleFunc("POST /api/auth/login", a.withRateLimit("login", a.handleLogin))
	mux.HandleFunc("GET /api/auth/me", a.requireAuth(a.handleMe))
	mux.HandleFunc("PATCH /api/auth/me", a.requireAuth(a.handleUpdateMe))
	mux.HandleFunc("GET /api/users", a.requireAuth(a.handleFindUsers))

	mux.HandleFunc("GET /api/boards", a.requireAuth(a.handleListBoards))
	mux.HandleFunc("POST /api/boards", a.requireAuth(a.handleCreateBoard))
	mux.HandleFunc("GET /api/boards/{id}", a.requireAuth(a.handleGetBoard))
	mux.HandleFunc("PUT /api/boards/{id}", a.requireAuth(a.handleUpdateBoard))
	mux.HandleFunc("DELETE /api/boards/{id}", a.requireAuth(a.handleDeleteBoard))
	mux.HandleFunc("POST /api/boards/{id}/invite", a.requireAuth(a.handleInviteMember))
	mux.HandleFunc("POST /api/boards/{id}/change-role", a.requireAuth(a.handleChangeRole))
	mux.HandleFunc("GET /api/boards/{id}/events", a.requireAuth(a.handleBoardEvents))

	mux.HandleFunc("POST /api/lists", a.requireAuth(a.handleCreateList))
	mux.HandleFunc("POST /api/lists/reorder", a.requireAuth(a.handleReorderLists))
	mux.HandleFunc("PUT /api/lists/{id}", a.requireAuth(a.handleRenameList))
	mux.HandleFunc("DELETE /api/lists/{id}", a.requireAuth(a.handleDeleteList))

	mux.HandleFunc("POST /api/cards", a.requireAuth(a.handleCreateCard))
	mux.HandleFunc("POST /api/cards/move", a.requireAuth(a.handleMoveCard))
	mux.HandleFunc("GET /api/cards/{id}", a.requireAuth(a.handleGetCard))
	mux.HandleFunc("PUT /api/cards/{id}", a.requireAuth(a.handleUpdateCard))
	mux.HandleFunc("DELETE /api/cards/{id}", a.requireAuth(a.handleDeleteCard))
	mux.HandleFunc("POST /api/cards/{id}/comments", a.requireAuth(a.handleAddComment))
	mux.HandleFunc("POST /api/cards/{cardId}/attachments", a.requireAuth(a.handleUploadAttachments))
	mux.HandleFunc("DELETE /api/cards/{cardId}/attachments/{attachmentId}", a.requireAuth(a.handleDeleteAttachment))

	mux.HandleFunc("GET /api/search/cards", a.requireAuth(a.handleSearchCards))

	mux.HandleFunc("GET /uploads/cards/{cardId}/{filename}", a.handleServeUpload)
}

// handler wraps the routes with CORS and request logging.
func (a *api) handler(origins []string) http.Handler {
	mux := http.NewServeMux()
	a.routes(mux)
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         600,
	})
	return withLogging(a.log, c.Handler(mux))
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (a *api) withRateLimit(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.limiter != nil {
			ok, err := a.limiter.Allow(r.Context(), name+":"+clientIP(r))
			if err != nil {
				// fail open
				a.log.Warn("rate limiter", "err", err)
			} else if !ok {
				writeError(w, 429, "too many requests")
				return
			}
		}
		next(w, r)
	}
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, r.Body)
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func writeMessage(w http.ResponseWriter, msg string) {
	writeJSON(w, 200, map[string]string{"message": msg})
}

// fail writes err using the error taxonomy; unexpected errors are logged and hidden.
func (a *api) fail(w http.ResponseWriter, op string, err error) {
	status, msg, ok := errorStatus(err)
	if !ok {
		a.log.Error(op, "err", err)
	}
	writeError(w, status, msg)
}

type ctxKey int

const userKey ctxKey = iota

func withUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// currentUser returns the user set by requireAuth.
func currentUser(r *http.Request) *User {
	u, _ := r.Context().Value(userKey).(*User)
	return u
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// requireAuth resolves the bearer token to a stored user and puts it in the request context.
func (a *api) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, 401, "Not authorized, no token")
			return
		}
		uid, err := a.tokens.Parse(token)
		if err != nil {
			writeError(w, 401, "Not authorized, token failed")
			return
		}
		u, err := a.store.UserByID(r.Context(), uid)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				writeError(w, 401, "Not authorized, user not found")
				return
			}
			a.fail(w, "auth user", err)
			return
		}
		next(w, r.WithContext(withUser(r.Context(), u)))
	}
}

func withLogging(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: 200}
		start := time.Now()
		next.ServeHTTP(sw, r)
		log.Info("http", "method", r.Method, "path", r.URL.Path, "status", sw.status, "dur_ms", time.Since(start).Milliseconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) { w.status = code; w.ResponseWriter.WriteHeader(code) }

// Flush keeps SSE working through the logging wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
