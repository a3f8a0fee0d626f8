package service

import (
	"sync"
	"sync/atomic"
	"time"
)

// State — агрегированное здоровье фермы: готовность, поток котировок
// и время последнего тика каждого бота.
type State struct {
	ready       atomic.Bool
	wsConnected atomic.Bool
	startedAt   time.Time

	mu        sync.RWMutex
	lastTicks map[string]time.Time // bot_id -> последний тик
}

func NewState() *State {
	return &State{
		startedAt: time.Now(),
		lastTicks: make(map[string]time.Time),
	}
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) SetWSConnected(v bool) { s.wsConnected.Store(v) }
func (s *State) WSConnected() bool     { return s.wsConnected.Load() }

// TouchTick отмечает прошедший тик бота.
func (s *State) TouchTick(botID string, t time.Time) {
	s.mu.Lock()
	s.lastTicks[botID] = t
	s.mu.Unlock()
}

// LastTicks — копия карты последних тиков по ботам.
func (s *State) LastTicks() map[string]time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]time.Time, len(s.lastTicks))
	for id, t := range s.lastTicks {
		out[id] = t
	}
	return out
}

// StalestTick — бот с самым давним тиком; по нему видно зависшего.
func (s *State) StalestTick() (string, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		worstID string
		worst   time.Time
	)
	for id, t := range s.lastTicks {
		if worstID == "" || t.Before(worst) {
			worstID, worst = id, t
		}
	}
	return worstID, worst
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
