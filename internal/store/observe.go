package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/SarcasticNickname/AudioNotes-sub000/internal/domain"
)

// observerRegistry fans committed note changes out to subscribers. Writes go
// through the store's transactions, so an observer never sees a note whose
// block set is mid-replacement; notifications fire only after commit.
type observerRegistry struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscription
	closed bool
}

type subscription struct {
	id     int
	noteID int64 // 0 subscribes to every note
	ch     chan *domain.Note
}

func newObserverRegistry() *observerRegistry {
	return &observerRegistry{subs: make(map[int]*subscription)}
}

// ObserveNote subscribes to committed changes of one note. The channel
// delivers the updated note, or nil once the note is deleted. The returned
// cancel func releases the subscription and closes the channel.
func (s *Store) ObserveNote(id int64) (<-chan *domain.Note, func()) {
	return s.observers.subscribe(id)
}

// ObserveNotes subscribes to committed changes of every note.
func (s *Store) ObserveNotes() (<-chan *domain.Note, func()) {
	return s.observers.subscribe(0)
}

func (r *observerRegistry) subscribe(noteID int64) (<-chan *domain.Note, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	sub := &subscription{id: r.nextID, noteID: noteID, ch: make(chan *domain.Note, 8)}
	if r.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	r.subs[sub.id] = sub

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if s, ok := r.subs[sub.id]; ok {
			delete(r.subs, sub.id)
			close(s.ch)
		}
	}
	return sub.ch, cancel
}

// notify pushes n (nil for deletion) to subscribers of noteID. Slow
// subscribers drop updates instead of blocking the writer; they will catch
// up on the next change.
func (r *observerRegistry) notify(noteID int64, n *domain.Note) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subs {
		if sub.noteID != 0 && sub.noteID != noteID {
			continue
		}
		select {
		case sub.ch <- n:
		default:
			slog.Debug("dropping note update for slow observer", "note_id", noteID)
		}
	}
}

func (r *observerRegistry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for id, sub := range r.subs {
		delete(r.subs, id)
		close(sub.ch)
	}
}

// notifyNote loads the current row and fans it out. Failures here only cost
// a missed refresh, never the write that triggered it.
func (s *Store) notifyNote(ctx context.Context, id int64) {
	n, err := s.GetNote(ctx, id)
	if err != nil {
		slog.Warn("load note for observers", "note_id", id, "err", err)
		return
	}
	s.observers.notify(id, n)
}
