package main

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiHarness struct {
	*fixture
	h http.Handler
}

func newAPIHarness(t *testing.T, limiter Limiter) *apiHarness {
	t.Helper()
	f := newFixture(t)
	log := discardLogger()
	a := newAPI(f.svc, NewEventBus(log), limiter, log)
	return &apiHarness{fixture: f, h: a.handler([]string{"http://localhost:3000"})}
}

func (h *apiHarness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func message(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, rec)["message"]
}

func (h *apiHarness) register(t *testing.T, name string) authResult {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": name, "email": name + "@example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[authResult](t, rec)
}

func TestAPIAuth(t *testing.T) {
	t.Parallel()
	h := newAPIHarness(t, nil)
	ana := h.register(t, "ana")

	rec := h.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "ana", "email": "ana@example.com", "password": "secret123",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User already exists", message(t, rec))

	rec = h.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ana@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials", message(t, rec))

	rec = h.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ana@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[authResult](t, rec).Token)

	rec = h.do(t, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Not authorized, no token", message(t, rec))

	rec = h.do(t, http.MethodGet, "/api/auth/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Not authorized, token failed", message(t, rec))

	rec = h.do(t, http.MethodGet, "/api/auth/me", ana.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[map[string]any](t, rec)
	assert.Equal(t, ana.ID, me["id"])
	assert.NotContains(t, me, "password_hash")

	rec = h.do(t, http.MethodPatch, "/api/auth/me", ana.Token, map[string]string{"name": "Ana B"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ana B", decode[User](t, rec).Name)

	rec = h.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"email": "ana@example.com", "extra": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid payload", message(t, rec))
}

func TestAPIBoardFlow(t *testing.T) {
	t.Parallel()
	h := newAPIHarness(t, nil)
	ana, bob := h.register(t, "ana"), h.register(t, "bob")

	rec := h.do(t, http.MethodPost, "/api/boards", ana.Token, map[string]string{"title": "Launch"})
	require.Equal(t, http.StatusCreated, rec.Code)
	board := decode[Board](t, rec)
	assert.Equal(t, ana.ID, board.Owner)

	rec = h.do(t, http.MethodPost, "/api/boards", ana.Token, map[string]string{"title": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Title required", message(t, rec))

	rec = h.do(t, http.MethodGet, "/api/boards/"+board.ID, bob.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Forbidden", message(t, rec))

	rec = h.do(t, http.MethodPost, "/api/boards/"+board.ID+"/invite", ana.Token, map[string]string{"user_id": bob.ID, "role": "Viewer"})
	require.Equal(t, http.StatusOK, rec.Code)

	var lists []List
	for _, title := range []string{"Todo", "Done"} {
		rec = h.do(t, http.MethodPost, "/api/lists", bob.Token, map[string]string{"board_id": board.ID, "title": title})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		lists = append(lists, decode[List](t, rec))
	}
	todo, done := lists[0], lists[1]

	rec = h.do(t, http.MethodPost, "/api/cards", ana.Token, map[string]any{
		"list_id": todo.ID, "title": "Ship it", "labels": []string{"release"}, "due_date": "2024-06-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	card := decode[Card](t, rec)
	require.NotNil(t, card.DueDate)
	assert.Equal(t, board.ID, card.Board)

	rec = h.do(t, http.MethodPost, "/api/cards/move", ana.Token, map[string]any{"card_id": card.ID, "to_list_id": done.ID, "position": 0})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, done.ID, decode[Card](t, rec).List)

	rec = h.do(t, http.MethodPost, "/api/lists/reorder", ana.Token, map[string]any{
		"board_id": board.ID, "order": []map[string]string{{"list_id": done.ID}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	detail := decode[BoardDetail](t, rec)
	require.Len(t, detail.Lists, 2)
	assert.Equal(t, done.ID, detail.Lists[0].ID)
	require.Len(t, detail.Lists[0].Cards, 1)
	assert.Equal(t, card.ID, detail.Lists[0].Cards[0].ID)

	rec = h.do(t, http.MethodPost, "/api/cards/"+card.ID+"/comments", bob.Token, map[string]string{"text": "nice"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[Card](t, rec).Comments, 1)

	rec = h.do(t, http.MethodGet, "/api/search/cards?labels=release,other&q=SHIP&due_to=2024-06-01", bob.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	hits := decode[[]CardHit](t, rec)
	require.Len(t, hits, 1)
	assert.Equal(t, "Launch", hits[0].BoardTitle)
	assert.Equal(t, "Done", hits[0].ListTitle)

	rec = h.do(t, http.MethodGet, "/api/search/cards?due_from=yesterday", bob.Token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid due_from", message(t, rec))

	rec = h.do(t, http.MethodPut, "/api/boards/"+board.ID, bob.Token, map[string]string{"title": "Mine now"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/cards/nope", ana.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Card not found", message(t, rec))

	rec = h.do(t, http.MethodDelete, "/api/lists/"+todo.ID, ana.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "List deleted", message(t, rec))

	rec = h.do(t, http.MethodDelete, "/api/boards/"+board.ID, bob.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = h.do(t, http.MethodDelete, "/api/boards/"+board.ID, ana.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Board deleted", message(t, rec))

	rec = h.do(t, http.MethodGet, "/api/boards", ana.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]Board](t, rec))
}

func TestAPIAttachments(t *testing.T) {
	t.Parallel()
	h := newAPIHarness(t, nil)
	ana := h.register(t, "ana")
	b := h.board(t, ana.ID, "Files")
	l := h.list(t, ana.ID, b.ID, "Inbox")
	c := h.card(t, ana.ID, l.ID, "Scan")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("files", "hello world.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("hi there"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/cards/"+c.ID+"/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+ana.Token)
	rec := httptest.NewRecorder()
	h.h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	got := decode[Card](t, rec)
	require.Len(t, got.Attachments, 1)
	att := got.Attachments[0]
	assert.Equal(t, "hello world.txt", att.OriginalName)
	assert.Regexp(t, `^\d+-hello_world\.txt$`, att.Filename)
	assert.Equal(t, "text/plain; charset=utf-8", att.MimeType)

	rec = h.do(t, http.MethodGet, att.URL, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hi there", rec.Body.String())

	rec = h.do(t, http.MethodDelete, "/api/cards/"+c.ID+"/attachments/"+att.ID, ana.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[Card](t, rec).Attachments)

	rec = h.do(t, http.MethodGet, att.URL, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "File not found", message(t, rec))
}

func TestAPIRateLimit(t *testing.T) {
	t.Parallel()
	h := newAPIHarness(t, newMemLimiter(1, 1))
	body := map[string]string{"email": "x@example.com", "password": "whatever"}

	rec := h.do(t, http.MethodPost, "/api/auth/login", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = h.do(t, http.MethodPost, "/api/auth/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "too many requests", message(t, rec))
}

func TestAPIHealthAndCORS(t *testing.T) {
	t.Parallel()
	h := newAPIHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[map[string]any](t, rec)
	assert.Equal(t, true, health["ok"])
	assert.Equal(t, "ok", health["store"])
	_, err := time.Parse(time.RFC3339, health["ts"].(string))
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodOptions, "/api/boards", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	h.h.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func (h *apiHarness) upload(t *testing.T, token, cardID string, names ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range names {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte("body of " + name))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/cards/"+cardID+"/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.h.ServeHTTP(rec, req)
	return rec
}

func TestAPIAttachmentURLEscaping(t *testing.T) {
	t.Parallel()
	h := newAPIHarness(t, nil)
	ana := h.register(t, "ana")
	b := h.board(t, ana.ID, "Files")
	l := h.list(t, ana.ID, b.ID, "Inbox")
	c := h.card(t, ana.ID, l.ID, "Scan")

	names := []string{"report#1.txt", "100%.txt", "a?b.txt"}
	rec := h.upload(t, ana.Token, c.ID, names...)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	got := decode[Card](t, rec)
	require.Len(t, got.Attachments, len(names))

	for i, att := range got.Attachments {
		assert.Equal(t, names[i], att.OriginalName)
		assert.NotContains(t, att.URL, "#")
		assert.NotContains(t, att.URL, "?")

		rec = h.do(t, http.MethodGet, att.URL, "", nil)
		require.Equal(t, http.StatusOK, rec.Code, att.URL)
		assert.Equal(t, "body of "+names[i], rec.Body.String())
	}
}
