// Package reminder schedules in-process note reminders. Each note has at most
// one pending timer; scheduling again replaces it.
package reminder

import (
	"log/slog"
	"sync"
	"time"
)

// FireFunc is invoked when a reminder comes due.
type FireFunc func(noteID int64, title string)

// Scheduler keys timers by note id. It is safe for concurrent use.
type Scheduler struct {
	mu     sync.Mutex
	timers map[int64]*time.Timer
	fire   FireFunc
	logger *slog.Logger
}

// New creates a scheduler delivering due reminders through fire. A nil fire
// falls back to logging.
func New(fire FireFunc, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if fire == nil {
		fire = func(noteID int64, title string) {
			logger.Info("reminder due", "note_id", noteID, "title", title)
		}
	}
	return &Scheduler{
		timers: make(map[int64]*time.Timer),
		fire:   fire,
		logger: logger,
	}
}

// Schedule arms a reminder for the note, replacing any pending one. A fireAt
// in the past fires immediately.
func (s *Scheduler) Schedule(noteID int64, title string, fireAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[noteID]; ok {
		t.Stop()
	}
	delay := time.Until(fireAt)
	if delay < 0 {
		delay = 0
	}
	s.timers[noteID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, noteID)
		s.mu.Unlock()
		s.fire(noteID, title)
	})
	s.logger.Debug("reminder scheduled", "note_id", noteID, "fire_at", fireAt)
	return nil
}

// Cancel drops the note's pending reminder, if any.
func (s *Scheduler) Cancel(noteID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[noteID]; ok {
		t.Stop()
		delete(s.timers, noteID)
	}
	return nil
}

// Pending reports how many reminders are armed.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
