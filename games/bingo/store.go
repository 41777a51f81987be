/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package bingo holds the session and player state of a number-bingo game
// and the gateway that fans state changes out to connected clients.
package bingo

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxNumber is the highest number that can be drawn; numbers run 1..MaxNumber.
	MaxNumber = 90

	// CardSize is the width and height of a player card.
	CardSize = 5
)

type Status string

const (
	StatusWaiting Status = "waiting"
	StatusActive  Status = "active"
)

// Card is a player's 5x5 grid of numbers.
type Card [CardSize][CardSize]int

// Marks parallels a Card; a cell is true once its number has been drawn.
type Marks [CardSize][CardSize]bool

// Session is a single game. CreatedAt is Unix milliseconds.
type Session struct {
	ID           string `json:"id"`
	Status       Status `json:"status"`
	DrawnNumbers []int  `json:"drawnNumbers"`
	CreatedAt    int64  `json:"createdAt"`
}

// Player is a card submitted to a session.
type Player struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	Card      Card   `json:"card"`
	Marked    Marks  `json:"marked"`
	CreatedAt int64  `json:"createdAt"`
}

// SessionUpdate lists the session fields to overwrite; nil fields are kept.
type SessionUpdate struct {
	Status       *Status
	DrawnNumbers *[]int
}

// PlayerUpdate lists the player fields to overwrite; nil fields are kept.
// The card itself is immutable.
type PlayerUpdate struct {
	Marked *Marks
}

type sessionRecord struct {
	Session
	lastActive time.Time
}

// Store owns every session and player for the lifetime of the process.
// All methods are safe for concurrent use; each call is atomic.
//
// Values handed out are copies, so callers can never mutate stored state.
type Store struct {
	mu        sync.RWMutex
	sessions  map[string]*sessionRecord
	players   map[string]*Player
	bySession map[string][]string // session id -> player ids, insertion order

	source Source
	newID  func() string
	now    func() time.Time
}

type StoreOption func(*Store)

// WithSource replaces the random source used by DrawNumber.
func WithSource(src Source) StoreOption {
	return func(s *Store) {
		s.source = src
	}
}

// WithIDGenerator replaces the id generator used for sessions and players.
func WithIDGenerator(fn func() string) StoreOption {
	return func(s *Store) {
		s.newID = fn
	}
}

// WithClock replaces the clock used for timestamps and idle tracking.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		sessions:  make(map[string]*sessionRecord),
		players:   make(map[string]*Player),
		bySession: make(map[string][]string),
		source:    NewMathSource(),
		newID:     NewID,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// NewID returns a random (version 4) UUID string. With 122 random bits, the
// chance of any collision among a billion ids stays below 1e-19.
func NewID() string {
	return uuid.NewString()
}

func (s *sessionRecord) snapshot() Session {
	out := s.Session
	out.DrawnNumbers = slices.Clone(s.DrawnNumbers)
	if out.DrawnNumbers == nil {
		out.DrawnNumbers = []int{}
	}

	return out
}

// nextIDLocked generates an id that is not yet in use as a session or player.
func (s *Store) nextIDLocked() string {
	for {
		id := s.newID()

		_, isSession := s.sessions[id]
		_, isPlayer := s.players[id]
		if !isSession && !isPlayer {
			return id
		}
	}
}

// CreateSession inserts a new waiting session with an empty draw history.
func (s *Store) CreateSession() Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	rec := &sessionRecord{
		Session: Session{
			ID:           s.nextIDLocked(),
			Status:       StatusWaiting,
			DrawnNumbers: []int{},
			CreatedAt:    now.UnixMilli(),
		},
		lastActive: now,
	}
	s.sessions[rec.ID] = rec

	return rec.snapshot()
}

func (s *Store) GetSession(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}

	return rec.snapshot(), true
}

// UpdateSession merges the non-nil fields of u into the session. It never
// creates a session: an unknown id returns false.
func (s *Store) UpdateSession(id string, u SessionUpdate) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}

	if u.Status != nil {
		rec.Status = *u.Status
	}
	if u.DrawnNumbers != nil {
		rec.DrawnNumbers = slices.Clone(*u.DrawnNumbers)
	}
	rec.lastActive = s.now()

	return rec.snapshot(), true
}

// DrawNumber picks uniformly among the numbers in 1..MaxNumber not yet drawn
// in the session, appends it to the draw history and returns it. It returns
// false when the session is unknown or every number has been drawn.
func (s *Store) DrawNumber(sessionID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return 0, false
	}

	var drawn [MaxNumber + 1]bool
	for _, n := range rec.DrawnNumbers {
		if n >= 1 && n <= MaxNumber {
			drawn[n] = true
		}
	}

	remaining := make([]int, 0, MaxNumber)
	for n := 1; n <= MaxNumber; n++ {
		if !drawn[n] {
			remaining = append(remaining, n)
		}
	}

	if len(remaining) == 0 {
		return 0, false
	}

	number := remaining[s.source.Intn(len(remaining))]

	rec.DrawnNumbers = append(rec.DrawnNumbers, number)
	rec.lastActive = s.now()

	return number, true
}

// CreatePlayer stores a new player with an all-false mark grid. The caller
// is responsible for validating the card and checking that the session exists.
func (s *Store) CreatePlayer(sessionID string, card Card) Player {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	p := &Player{
		ID:        s.nextIDLocked(),
		SessionID: sessionID,
		Card:      card,
		CreatedAt: now.UnixMilli(),
	}
	s.players[p.ID] = p
	s.bySession[sessionID] = append(s.bySession[sessionID], p.ID)

	if rec, ok := s.sessions[sessionID]; ok {
		rec.lastActive = now
	}

	return *p
}

func (s *Store) GetPlayer(id string) (Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.players[id]
	if !ok {
		return Player{}, false
	}

	return *p, true
}

// GetPlayersBySession returns the session's players in the order they were created.
func (s *Store) GetPlayersBySession(sessionID string) []Player {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.bySession[sessionID]

	out := make([]Player, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.players[id])
	}

	return out
}

// CountPlayers returns how many players have joined the session.
func (s *Store) CountPlayers(sessionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.bySession[sessionID])
}

// UpdatePlayer merges the non-nil fields of u into the player. It never
// creates a player: an unknown id returns false.
func (s *Store) UpdatePlayer(id string, u PlayerUpdate) (Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[id]
	if !ok {
		return Player{}, false
	}

	if u.Marked != nil {
		p.Marked = *u.Marked
	}

	return *p, true
}

// MarkNumberOnPlayerCards marks every cell equal to number on the cards of
// the session's players. Marks are only ever set, so repeated calls are no-ops.
func (s *Store) MarkNumberOnPlayerCards(sessionID string, number int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.bySession[sessionID] {
		p := s.players[id]

		for r := range CardSize {
			for c := range CardSize {
				if p.Card[r][c] == number {
					p.Marked[r][c] = true
				}
			}
		}
	}
}

// Reap removes every session whose last activity is before cutoff, along
// with its players, and returns the removed session ids.
func (s *Store) Reap(cutoff time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string

	for id, rec := range s.sessions {
		if !rec.lastActive.Before(cutoff) {
			continue
		}

		for _, pid := range s.bySession[id] {
			delete(s.players, pid)
		}
		delete(s.bySession, id)
		delete(s.sessions, id)

		removed = append(removed, id)
	}

	return removed
}

// Touch records activity on a session without changing it, keeping it from
// being reaped while clients are still around.
func (s *Store) Touch(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if !ok {
		return false
	}
	rec.lastActive = s.now()

	return true
}
