/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package bingo

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Observer sees every event the gateway broadcasts, in broadcast order for
// a given session. It is called with the room locked and must not block.
type Observer func(sessionID string, ev Event)

type room struct {
	id string

	// mu serializes every action on the session, so events reach members
	// in the order the actions were processed.
	mu      sync.Mutex
	clients map[*Client]struct{}
}

// Gateway maps connections to session rooms, turns client actions into
// Store calls and broadcasts the results to the affected room.
//
// Lock order: g.mu before room.mu.
type Gateway struct {
	store    *Store
	log      *zap.SugaredLogger
	observer Observer

	mu      sync.Mutex
	rooms   map[string]*room
	members map[*Client]*room
}

type GatewayOption func(*Gateway)

func WithObserver(fn Observer) GatewayOption {
	return func(g *Gateway) {
		g.observer = fn
	}
}

func NewGateway(store *Store, log *zap.SugaredLogger, opts ...GatewayOption) *Gateway {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	g := &Gateway{
		store:   store,
		log:     log,
		rooms:   make(map[string]*room),
		members: make(map[*Client]*room),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// roomFor returns the room of an existing session, creating it on first use.
// Unknown sessions get no room.
func (g *Gateway) roomFor(sessionID string) *room {
	if sessionID == "" {
		return nil
	}

	if _, ok := g.store.GetSession(sessionID); !ok {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[sessionID]
	if !ok {
		r = &room{
			id:      sessionID,
			clients: make(map[*Client]struct{}),
		}
		g.rooms[sessionID] = r
	}

	return r
}

// Dispatch runs a single client action. It reports whether the action
// changed state (or, for joins, whether membership was recorded).
func (g *Gateway) Dispatch(c *Client, a Action) bool {
	id := a.Data.SessionID

	switch a.Type {
	case ActionJoinSession:
		return g.Join(c, id)
	case ActionStartGame:
		return g.StartGame(id)
	case ActionDrawNumber:
		_, ok := g.DrawNumber(id)
		return ok
	case ActionResetGame:
		return g.ResetGame(id)
	default:
		g.log.Debugf("GAMES: Ignoring unknown action %q from %s", a.Type, c.ID())
		return false
	}
}

// Join makes c a member of the session's room, leaving any room it was in.
func (g *Gateway) Join(c *Client, sessionID string) bool {
	r := g.roomFor(sessionID)
	if r == nil {
		g.log.Debugf("GAMES: Client %s tried to join unknown session %q", c.ID(), sessionID)
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if prev, ok := g.members[c]; ok && prev != r {
		prev.mu.Lock()
		delete(prev.clients, c)
		prev.mu.Unlock()
	}

	// The room may have been closed after roomFor returned it.
	if g.rooms[sessionID] != r {
		delete(g.members, c)
		return false
	}

	g.members[c] = r

	r.mu.Lock()
	r.clients[c] = struct{}{}
	r.mu.Unlock()

	g.store.Touch(sessionID)

	g.log.Infof("GAMES: Client %s joined session %s", c.ID(), sessionID)

	return true
}

// Leave removes c from its room and closes it.
func (g *Gateway) Leave(c *Client) {
	g.mu.Lock()
	r, ok := g.members[c]
	delete(g.members, c)

	if ok {
		r.mu.Lock()
		delete(r.clients, c)
		r.mu.Unlock()
	}
	g.mu.Unlock()

	c.Close()

	if ok {
		g.log.Infof("GAMES: Client %s left session %s", c.ID(), r.id)
	}
}

// StartGame moves a waiting session to active and announces it.
func (g *Gateway) StartGame(sessionID string) bool {
	r := g.roomFor(sessionID)
	if r == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := g.store.GetSession(sessionID)
	if !ok || sess.Status != StatusWaiting {
		return false
	}

	active := StatusActive
	if _, ok := g.store.UpdateSession(sessionID, SessionUpdate{Status: &active}); !ok {
		return false
	}

	g.log.Infof("GAMES: Started session %s", sessionID)

	g.broadcastLocked(r, Event{
		Type: EventSessionStarted,
		Data: SessionStarted{SessionID: sessionID},
	})

	return true
}

// DrawNumber draws the next number of an active session, marks it on every
// card and announces it with the full draw history.
func (g *Gateway) DrawNumber(sessionID string) (int, bool) {
	r := g.roomFor(sessionID)
	if r == nil {
		return 0, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := g.store.GetSession(sessionID)
	if !ok || sess.Status != StatusActive {
		return 0, false
	}

	number, ok := g.store.DrawNumber(sessionID)
	if !ok {
		g.log.Debugf("GAMES: Session %s has no numbers left", sessionID)
		return 0, false
	}

	g.store.MarkNumberOnPlayerCards(sessionID, number)

	sess, ok = g.store.GetSession(sessionID)
	if !ok {
		return 0, false
	}

	g.log.Infof("GAMES: Drew %d in session %s (%d/%d)", number, sessionID, len(sess.DrawnNumbers), MaxNumber)

	g.broadcastLocked(r, Event{
		Type: EventNumberDrawn,
		Data: NumberDrawn{
			Number:       number,
			DrawnNumbers: sess.DrawnNumbers,
		},
	})

	return number, true
}

// ResetGame returns a session to waiting, clears its draw history and every
// player's marks, and announces it.
func (g *Gateway) ResetGame(sessionID string) bool {
	r := g.roomFor(sessionID)
	if r == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	waiting := StatusWaiting
	none := []int{}

	if _, ok := g.store.UpdateSession(sessionID, SessionUpdate{
		Status:       &waiting,
		DrawnNumbers: &none,
	}); !ok {
		return false
	}

	for _, p := range g.store.GetPlayersBySession(sessionID) {
		var cleared Marks
		g.store.UpdatePlayer(p.ID, PlayerUpdate{Marked: &cleared})
	}

	g.log.Infof("GAMES: Reset session %s", sessionID)

	g.broadcastLocked(r, Event{
		Type: EventSessionReset,
		Data: SessionReset{SessionID: sessionID},
	})

	return true
}

// broadcastLocked sends ev to every member of r. Members that cannot keep
// up are dropped and closed. r.mu must be held.
func (g *Gateway) broadcastLocked(r *room, ev Event) {
	for c := range r.clients {
		if !c.deliver(ev) {
			delete(r.clients, c)
			c.Close()

			g.log.Warnf("GAMES: Dropped slow client %s from session %s", c.ID(), r.id)
		}
	}

	if g.observer != nil {
		g.observer(r.id, ev)
	}
}

// CloseSession disconnects every member of the session's room and forgets
// the room.
func (g *Gateway) CloseSession(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[sessionID]
	if !ok {
		return
	}
	delete(g.rooms, sessionID)

	r.mu.Lock()
	defer r.mu.Unlock()

	for c := range r.clients {
		delete(g.members, c)
		c.Close()
	}
	clear(r.clients)

	g.log.Infof("GAMES: Closed session %s", sessionID)
}

// Members returns the number of connections in the session's room.
func (g *Gateway) Members(sessionID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[sessionID]
	if !ok {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.clients)
}

// Reap removes sessions idle for longer than idle from the store and
// disconnects their rooms.
func (g *Gateway) Reap(idle time.Duration) []string {
	removed := g.store.Reap(g.store.now().Add(-idle))

	for _, id := range removed {
		g.CloseSession(id)
	}

	return removed
}
