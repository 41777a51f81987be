/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Seednode/bingo/games/bingo"
)

type testServer struct {
	*httptest.Server
	cfg   *Config
	store *bingo.Store
	gw    *bingo.Gateway
}

func newTestServer(t *testing.T, prefix string) *testServer {
	t.Helper()

	cfg := &Config{
		prefix: prefix,
		logger: zap.NewNop().Sugar(),
	}

	// Smallest remaining number every draw.
	store := bingo.NewStore(bingo.WithSource(bingo.NewFixedSource()))
	gw := bingo.NewGateway(store, cfg.logger)
	errs := make(chan error, 64)

	srv := httptest.NewServer(newRouter(cfg, store, gw, errs))
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, cfg: cfg, store: store, gw: gw}
}

func (ts *testServer) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, ts.URL+path, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, data
}

func (ts *testServer) createSession(t *testing.T) bingo.Session {
	t.Helper()

	resp, body := ts.do(t, http.MethodPost, ts.cfg.prefix+"/api/session/create", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var session bingo.Session
	require.NoError(t, json.Unmarshal(body, &session))

	return session
}

func (ts *testServer) submitCard(t *testing.T, sessionID, card string) (*http.Response, []byte) {
	t.Helper()

	return ts.do(t, http.MethodPost, ts.cfg.prefix+"/api/session/"+sessionID+"/card", `{"card":`+card+`}`)
}

func errorOf(t *testing.T, body []byte) string {
	t.Helper()

	var e errorResponse
	require.NoError(t, json.Unmarshal(body, &e))

	return e.Error
}

func TestAPI_CreateSession(t *testing.T) {
	ts := newTestServer(t, "")

	resp, body := ts.do(t, http.MethodPost, "/api/session/create", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))

	assert.NotEmpty(t, raw["id"])
	assert.Equal(t, "waiting", raw["status"])
	assert.Equal(t, []any{}, raw["drawnNumbers"])
	assert.NotZero(t, raw["createdAt"])

	_, ok := ts.store.GetSession(raw["id"].(string))
	assert.True(t, ok)
}

func TestAPI_PostOtherSessionPathIsNotFound(t *testing.T) {
	ts := newTestServer(t, "")

	resp, _ := ts.do(t, http.MethodPost, "/api/session/whatever", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_GetSession(t *testing.T) {
	ts := newTestServer(t, "")
	session := ts.createSession(t)

	resp, body := ts.do(t, http.MethodGet, "/api/session/"+session.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got sessionResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, session, got.Session)
	assert.Equal(t, 0, got.PlayerCount)
}

func TestAPI_GetSession_NotFound(t *testing.T) {
	ts := newTestServer(t, "")

	resp, body := ts.do(t, http.MethodGet, "/api/session/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Session not found", errorOf(t, body))
}

func TestAPI_SubmitCard(t *testing.T) {
	ts := newTestServer(t, "")
	session := ts.createSession(t)

	resp, body := ts.submitCard(t, session.ID, validCardJSON())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got playerResponse
	require.NoError(t, json.Unmarshal(body, &got))

	assert.NotEmpty(t, got.ID)
	assert.Equal(t, session.ID, got.SessionID)
	assert.Equal(t, 1, got.Card[0][0])
	assert.Equal(t, bingo.Marks{}, got.Marked)
	assert.Equal(t, 1, got.PlayerCount)

	stored, ok := ts.store.GetPlayer(got.ID)
	require.True(t, ok)
	assert.Equal(t, got.Card, stored.Card)
}

func TestAPI_SubmitCard_Rejected(t *testing.T) {
	ts := newTestServer(t, "")
	session := ts.createSession(t)
	valid := validCardJSON()

	tests := []struct {
		name   string
		body   string
		status int
		msg    string
	}{
		{"not json", `card`, http.StatusBadRequest, "Invalid card format"},
		{"no card", `{}`, http.StatusBadRequest, "Invalid card format"},
		{"wrong shape", `{"card":[[1,2,3]]}`, http.StatusBadRequest, "Invalid card format"},
		{"out of range", `{"card":` + strings.Replace(valid, "[1,", "[91,", 1) + `}`, http.StatusBadRequest, "Numbers must be between 1 and 90"},
		{"duplicates", `{"card":` + strings.Replace(valid, "[1,", "[25,", 1) + `}`, http.StatusBadRequest, "Duplicate numbers in card"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := ts.do(t, http.MethodPost, "/api/session/"+session.ID+"/card", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.msg, errorOf(t, body))
		})
	}

	assert.Equal(t, 0, ts.store.CountPlayers(session.ID))
}

func TestAPI_SubmitCard_UnknownSession(t *testing.T) {
	ts := newTestServer(t, "")

	resp, body := ts.submitCard(t, "missing", validCardJSON())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Session not found", errorOf(t, body))

	// Validation comes before the session lookup.
	resp, body = ts.submitCard(t, "missing", `[]`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid card format", errorOf(t, body))
}

func TestAPI_SubmitCard_GameStarted(t *testing.T) {
	ts := newTestServer(t, "")
	session := ts.createSession(t)
	require.True(t, ts.gw.StartGame(session.ID))

	resp, body := ts.submitCard(t, session.ID, validCardJSON())
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "Game already started", errorOf(t, body))
	assert.Equal(t, 0, ts.store.CountPlayers(session.ID))
}

func TestAPI_Players(t *testing.T) {
	ts := newTestServer(t, "")
	session := ts.createSession(t)

	resp, body := ts.do(t, http.MethodGet, "/api/session/"+session.ID+"/players", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"count":0,"players":[]}`, string(body))

	var ids []string
	for range 3 {
		_, body := ts.submitCard(t, session.ID, validCardJSON())

		var p playerResponse
		require.NoError(t, json.Unmarshal(body, &p))
		ids = append(ids, p.ID)
	}

	_, body = ts.do(t, http.MethodGet, "/api/session/"+session.ID+"/players", "")

	var got playersResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, 3, got.Count)

	var gotIDs []string
	for _, p := range got.Players {
		gotIDs = append(gotIDs, p.ID)
	}
	assert.Equal(t, ids, gotIDs)

	resp, _ = ts.do(t, http.MethodGet, "/api/session/missing/players", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestQR(t *testing.T) {
	ts := newTestServer(t, "")
	session := ts.createSession(t)

	resp, body := ts.do(t, http.MethodGet, "/join/"+session.ID+"/qr", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(body, []byte("\x89PNG")))

	resp, _ = ts.do(t, http.MethodGet, "/join/missing/qr", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestJoinURL(t *testing.T) {
	cfg := &Config{prefix: "/bingo"}

	r := httptest.NewRequest(http.MethodGet, "http://games.example.com/bingo/join/abc/qr", nil)
	assert.Equal(t, "http://games.example.com/bingo/join/abc", joinURL(cfg, r, "abc"))

	r.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https://games.example.com/bingo/join/abc", joinURL(cfg, r, "abc"))
}

func TestPages(t *testing.T) {
	ts := newTestServer(t, "/bingo")

	for _, path := range []string{"/bingo/", "/bingo/host", "/bingo/join/abc"} {
		resp, body := ts.do(t, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"), path)
		assert.NotContains(t, string(body), prefixPlaceholder, path)
		assert.Contains(t, string(body), `<meta name="prefix" content="/bingo">`, path)
	}

	resp, _ := ts.do(t, http.MethodGet, "/host", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAssets(t *testing.T) {
	ts := newTestServer(t, "")

	resp, body := ts.do(t, http.MethodGet, "/assets/bingo/host.js", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/javascript; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, body)

	resp, _ = ts.do(t, http.MethodGet, "/assets/bingo/app.css", "")
	assert.Equal(t, "text/css; charset=utf-8", resp.Header.Get("Content-Type"))

	resp, _ = ts.do(t, http.MethodGet, "/assets/bingo/host.html", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/assets/../go.mod", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMiscRoutes(t *testing.T) {
	ts := newTestServer(t, "")

	resp, body := ts.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Ok\n", string(body))

	resp, body = ts.do(t, http.MethodGet, "/version", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "bingo v"+releaseVersion+"\n", string(body))

	resp, body = ts.do(t, http.MethodGet, "/robots.txt", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Disallow: /")

	resp, _ = ts.do(t, http.MethodGet, "/favicon.svg", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/svg+xml", resp.Header.Get("Content-Type"))
	assert.Equal(t, "default-src 'self'", resp.Header.Get("Content-Security-Policy"))
}

type wireEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + ts.cfg.prefix + "/ws"

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})
	_ = resp.Body.Close()

	return conn
}

func send(t *testing.T, conn *websocket.Conn, action, sessionID string) {
	t.Helper()

	require.NoError(t, conn.WriteJSON(bingo.Action{
		Type: action,
		Data: bingo.SessionRef{SessionID: sessionID},
	}))
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var ev wireEvent
	require.NoError(t, conn.ReadJSON(&ev))

	return ev
}

func assertSilent(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))

	var ev wireEvent
	err := conn.ReadJSON(&ev)
	require.Error(t, err, "unexpected event %s", ev.Type)

	var netErr interface{ Timeout() bool }
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func (ts *testServer) waitForMembers(t *testing.T, sessionID string, n int) {
	t.Helper()

	require.Eventually(t, func() bool {
		return ts.gw.Members(sessionID) == n
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_GameRound(t *testing.T) {
	ts := newTestServer(t, "")
	session := ts.createSession(t)
	other := ts.createSession(t)

	_, body := ts.submitCard(t, session.ID, validCardJSON())
	var player playerResponse
	require.NoError(t, json.Unmarshal(body, &player))

	host := ts.dial(t)
	guest := ts.dial(t)
	bystander := ts.dial(t)

	// Garbage frames are ignored without dropping the connection.
	require.NoError(t, host.WriteMessage(websocket.TextMessage, []byte("not json")))

	send(t, host, bingo.ActionJoinSession, session.ID)
	send(t, guest, bingo.ActionJoinSession, session.ID)
	send(t, bystander, bingo.ActionJoinSession, other.ID)
	ts.waitForMembers(t, session.ID, 2)
	ts.waitForMembers(t, other.ID, 1)

	send(t, host, bingo.ActionStartGame, session.ID)
	for _, conn := range []*websocket.Conn{host, guest} {
		ev := readEvent(t, conn)
		assert.Equal(t, bingo.EventSessionStarted, ev.Type)
		assert.JSONEq(t, `{"sessionId":"`+session.ID+`"}`, string(ev.Data))
	}

	resp, _ := ts.submitCard(t, session.ID, validCardJSON())
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	send(t, host, bingo.ActionDrawNumber, session.ID)
	send(t, guest, bingo.ActionDrawNumber, session.ID)
	for _, conn := range []*websocket.Conn{host, guest} {
		first := readEvent(t, conn)
		assert.Equal(t, bingo.EventNumberDrawn, first.Type)
		assert.JSONEq(t, `{"number":1,"drawnNumbers":[1]}`, string(first.Data))

		second := readEvent(t, conn)
		assert.Equal(t, bingo.EventNumberDrawn, second.Type)
		assert.JSONEq(t, `{"number":2,"drawnNumbers":[1,2]}`, string(second.Data))
	}

	stored, ok := ts.store.GetPlayer(player.ID)
	require.True(t, ok)
	assert.True(t, stored.Marked[0][0])
	assert.True(t, stored.Marked[0][1])
	assert.False(t, stored.Marked[0][2])

	send(t, guest, bingo.ActionResetGame, session.ID)
	for _, conn := range []*websocket.Conn{host, guest} {
		ev := readEvent(t, conn)
		assert.Equal(t, bingo.EventSessionReset, ev.Type)
		assert.JSONEq(t, `{"sessionId":"`+session.ID+`"}`, string(ev.Data))
	}

	got, ok := ts.store.GetSession(session.ID)
	require.True(t, ok)
	assert.Equal(t, bingo.StatusWaiting, got.Status)
	assert.Empty(t, got.DrawnNumbers)

	stored, _ = ts.store.GetPlayer(player.ID)
	assert.Equal(t, bingo.Marks{}, stored.Marked)

	assertSilent(t, bystander)
}

func TestWebSocket_NoOpsAreSilent(t *testing.T) {
	ts := newTestServer(t, "")
	session := ts.createSession(t)

	conn := ts.dial(t)
	send(t, conn, bingo.ActionJoinSession, session.ID)
	ts.waitForMembers(t, session.ID, 1)

	// Drawing before the game starts and acting on unknown sessions do nothing.
	send(t, conn, bingo.ActionDrawNumber, session.ID)
	send(t, conn, bingo.ActionStartGame, "missing")
	send(t, conn, "shuffle", session.ID)

	assertSilent(t, conn)

	got, _ := ts.store.GetSession(session.ID)
	assert.Empty(t, got.DrawnNumbers)
}

func TestWebSocket_DisconnectLeavesRoom(t *testing.T) {
	ts := newTestServer(t, "")
	session := ts.createSession(t)

	conn := ts.dial(t)
	send(t, conn, bingo.ActionJoinSession, session.ID)
	ts.waitForMembers(t, session.ID, 1)

	require.NoError(t, conn.Close())
	ts.waitForMembers(t, session.ID, 0)
}

func TestWebSocket_Prefix(t *testing.T) {
	ts := newTestServer(t, "/bingo")
	session := ts.createSession(t)

	conn := ts.dial(t)
	send(t, conn, bingo.ActionJoinSession, session.ID)
	ts.waitForMembers(t, session.ID, 1)

	send(t, conn, bingo.ActionStartGame, session.ID)
	assert.Equal(t, bingo.EventSessionStarted, readEvent(t, conn).Type)
}
