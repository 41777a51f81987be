/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Bingo
//
// The host opens /host, which creates a session and shows a QR code for its
// join link. Players open /join/:sessionId, fill in a 5x5 card of distinct
// numbers from 1 to 90 and submit it. Once the host starts the game, every
// number drawn is pushed over the WebSocket to everyone in the session, and
// cards are marked as their numbers come up. Resetting clears the draw and
// every mark so the same cards can play again.
//
// Routes:
//   - POST /api/session/create          → new session
//   - GET  /api/session/:id             → session plus player count
//   - GET  /api/session/:id/players     → {count, players:[{id}]}
//   - POST /api/session/:id/card        → submit a card, returns the player
//   - GET  /join/:sessionId/qr          → PNG QR code of the join link
//   - GET  /ws                          → WebSocket for join/start/draw/reset

package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/bingo/games/bingo"
)

const (
	maxCardBytes   = 16 << 10
	maxMessageSize = 4 << 10
	sendBuffer     = 32
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	qrSize         = 320
)

type errorResponse struct {
	Error string `json:"error"`
}

type sessionResponse struct {
	bingo.Session
	PlayerCount int `json:"playerCount"`
}

type playerSummary struct {
	ID string `json:"id"`
}

type playersResponse struct {
	Count   int             `json:"count"`
	Players []playerSummary `json:"players"`
}

type playerResponse struct {
	bingo.Player
	PlayerCount int `json:"playerCount"`
}

type cardRequest struct {
	Card json.RawMessage `json:"card"`
}

func writeJSON(cfg *Config, w http.ResponseWriter, status int, v any, errs chan<- error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		errs <- err
	}
}

func writeError(cfg *Config, w http.ResponseWriter, status int, msg string, errs chan<- error) {
	writeJSON(cfg, w, status, errorResponse{Error: msg}, errs)
}

func createSession(cfg *Config, store *bingo.Store, w http.ResponseWriter, r *http.Request, errs chan<- error) {
	session := store.CreateSession()

	logf(cfg, "GAMES: Created session %s for %s", session.ID, realIP(r))

	writeJSON(cfg, w, http.StatusOK, session, errs)
}

// servePostSession handles both POST /api/session/create and any other POST
// on /api/session/:id; httprouter does not allow a static segment beside a
// parameter.
func servePostSession(cfg *Config, store *bingo.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		if p.ByName("id") == "create" {
			createSession(cfg, store, w, r, errs)

			return
		}

		writeError(cfg, w, http.StatusNotFound, "Not found", errs)
	}
}

func serveSession(cfg *Config, store *bingo.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		session, ok := store.GetSession(p.ByName("id"))
		if !ok {
			writeError(cfg, w, http.StatusNotFound, "Session not found", errs)

			return
		}

		writeJSON(cfg, w, http.StatusOK, sessionResponse{
			Session:     session,
			PlayerCount: store.CountPlayers(session.ID),
		}, errs)
	}
}

func servePlayers(cfg *Config, store *bingo.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		id := p.ByName("id")

		if _, ok := store.GetSession(id); !ok {
			writeError(cfg, w, http.StatusNotFound, "Session not found", errs)

			return
		}

		players := store.GetPlayersBySession(id)

		resp := playersResponse{
			Count:   len(players),
			Players: make([]playerSummary, 0, len(players)),
		}
		for _, player := range players {
			resp.Players = append(resp.Players, playerSummary{ID: player.ID})
		}

		writeJSON(cfg, w, http.StatusOK, resp, errs)
	}
}

func serveSubmitCard(cfg *Config, store *bingo.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		id := p.ByName("id")

		var req cardRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCardBytes)).Decode(&req); err != nil {
			writeError(cfg, w, http.StatusBadRequest, cardErrorMessage(errCardFormat), errs)

			return
		}

		card, err := parseCard(req.Card)
		if err != nil {
			logf(cfg, "GAMES: Rejected card for session %s from %s: %v", id, realIP(r), err)

			writeError(cfg, w, http.StatusBadRequest, cardErrorMessage(err), errs)

			return
		}

		session, ok := store.GetSession(id)
		if !ok {
			writeError(cfg, w, http.StatusNotFound, "Session not found", errs)

			return
		}

		if session.Status != bingo.StatusWaiting {
			writeError(cfg, w, http.StatusConflict, "Game already started", errs)

			return
		}

		player := store.CreatePlayer(id, card)
		count := store.CountPlayers(id)

		logf(cfg, "GAMES: Player %s joined session %s (%d players)", player.ID, id, count)

		writeJSON(cfg, w, http.StatusOK, playerResponse{
			Player:      player,
			PlayerCount: count,
		}, errs)
	}
}

// joinURL is the absolute link players open to join a session.
func joinURL(cfg *Config, r *http.Request, sessionID string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	return scheme + "://" + r.Host + cfg.prefix + "/join/" + sessionID
}

func serveQR(cfg *Config, store *bingo.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		id := p.ByName("sessionId")

		if _, ok := store.GetSession(id); !ok {
			http.Error(w, "session not found", http.StatusNotFound)

			return
		}

		png, err := qrcode.Encode(joinURL(cfg, r, id), qrcode.Medium, qrSize)
		if err != nil {
			errs <- err

			http.Error(w, "qr generation failed", http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "private, max-age=3600")
		securityHeaders(cfg, w)

		if _, err := w.Write(png); err != nil {
			errs <- err
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func serveWebSocket(cfg *Config, gw *bingo.Gateway) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "SERVE: WebSocket upgrade for %s failed: %v", realIP(r), err)

			return
		}

		client := bingo.NewClient(uuid.NewString(), sendBuffer)

		logf(cfg, "SERVE: Client %s connected from %s", client.ID(), realIP(r))

		go writePump(conn, client)
		readPump(cfg, conn, gw, client)

		logf(cfg, "SERVE: Client %s disconnected", client.ID())
	}
}

// readPump feeds inbound actions to the gateway until the connection fails.
func readPump(cfg *Config, conn *websocket.Conn, gw *bingo.Gateway, client *bingo.Client) {
	defer func() {
		gw.Leave(client)
		_ = conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logf(cfg, "SERVE: Client %s read error: %v", client.ID(), err)
			}

			return
		}

		var action bingo.Action
		if err := json.Unmarshal(data, &action); err != nil {
			cfg.logger.Debugf("SERVE: Ignoring malformed message from %s: %v", client.ID(), err)

			continue
		}

		gw.Dispatch(client, action)
	}
}

// writePump is the only writer on conn. It exits once the client is closed
// or a write fails.
func writePump(conn *websocket.Conn, client *bingo.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case ev, ok := <-client.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})

				return
			}

			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var errNoStore = errors.New("bingo routes need a store and a gateway")

// registerBingo sets up the pages, REST API, QR code and WebSocket routes.
func registerBingo(cfg *Config, store *bingo.Store, gw *bingo.Gateway, mux *httprouter.Router, errs chan<- error) {
	if store == nil || gw == nil {
		panic(errNoStore)
	}

	mux.GET(cfg.prefix+"/", servePage(cfg, "index.html", errs))
	mux.GET(cfg.prefix+"/host", servePage(cfg, "host.html", errs))
	mux.GET(cfg.prefix+"/join/:sessionId", servePage(cfg, "player.html", errs))
	mux.GET(cfg.prefix+"/join/:sessionId/qr", serveQR(cfg, store, errs))

	mux.GET(cfg.prefix+"/assets/*filepath", serveAssets(cfg, errs))

	mux.POST(cfg.prefix+"/api/session/:id", servePostSession(cfg, store, errs))
	mux.GET(cfg.prefix+"/api/session/:id", serveSession(cfg, store, errs))
	mux.GET(cfg.prefix+"/api/session/:id/players", servePlayers(cfg, store, errs))
	mux.POST(cfg.prefix+"/api/session/:id/card", serveSubmitCard(cfg, store, errs))

	mux.GET(cfg.prefix+"/ws", serveWebSocket(cfg, gw))
}
