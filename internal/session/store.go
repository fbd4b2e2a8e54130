// Package session keeps a short per-user history of bot renders so a photo
// sent without a caption can reuse the last fixture layout.
package session

import (
	"sync"
	"time"

	"nightscape-preview/internal/fixture"
)

type Render struct {
	Mode       string
	Placements fixture.SpatialMap
	Score      float64
	At         time.Time
}

type Session struct {
	UserID       int64
	Username     string
	History      []Render
	LastActivity time.Time
}

type Options struct {
	MaxRenders int
}

type Store struct {
	mu         sync.Mutex
	sessions   map[int64]*Session
	maxHistory int
}

func NewStore(opts Options) *Store {
	maxHistory := opts.MaxRenders
	if maxHistory <= 0 {
		maxHistory = 20
	}

	return &Store{
		sessions:   make(map[int64]*Session),
		maxHistory: maxHistory,
	}
}

func (s *Store) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[userID]; ok {
		sess.History = nil
		sess.LastActivity = time.Now()
	}
}

func (s *Store) Snapshot(userID int64, username string) []Render {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(userID, username)
	sess.LastActivity = time.Now()

	history := make([]Render, len(sess.History))
	copy(history, sess.History)
	return history
}

func (s *Store) Append(userID int64, username string, renders ...Render) {
	if len(renders) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(userID, username)
	sess.LastActivity = time.Now()

	for _, r := range renders {
		r.Placements = append(fixture.SpatialMap(nil), r.Placements...)
		if r.At.IsZero() {
			r.At = sess.LastActivity
		}
		sess.History = append(sess.History, r)
	}
	if len(sess.History) > s.maxHistory {
		sess.History = sess.History[len(sess.History)-s.maxHistory:]
	}
}

// LastPlacements returns the layout of the most recent render that had one.
func (s *Store) LastPlacements(userID int64) (fixture.SpatialMap, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return nil, false
	}
	for i := len(sess.History) - 1; i >= 0; i-- {
		if len(sess.History[i].Placements) > 0 {
			return append(fixture.SpatialMap(nil), sess.History[i].Placements...), true
		}
	}
	return nil, false
}

func (s *Store) getOrCreateLocked(userID int64, username string) *Session {
	if sess, ok := s.sessions[userID]; ok {
		if sess.Username == "" && username != "" {
			sess.Username = username
		}
		return sess
	}

	sess := &Session{
		UserID:       userID,
		Username:     username,
		LastActivity: time.Now(),
	}
	s.sessions[userID] = sess
	return sess
}
