package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/SarcasticNickname/AudioNotes-sub000/internal/content"
)

// ErrSaveInProgress is returned when a save overlaps another for the same
// session; saves serialize, the caller retries after the first finishes.
var ErrSaveInProgress = errors.New("save already in progress")

// Save persists the draft through the storage gateway. The pending blocks are
// handed over in their current text-derived order, so the persisted
// orderIndex follows what the text references at this moment, not recording
// order. On success the baseline resets to the just-saved values and the
// session lands in viewing or editing mode per switchToView. On failure the
// in-memory draft survives untouched and the prior state is restored.
func (s *Session) Save(ctx context.Context, switchToView bool) error {
	s.mu.Lock()
	if s.state == StateSaving {
		s.mu.Unlock()
		return ErrSaveInProgress
	}
	prev := s.state
	s.state = StateSaving
	s.emitLocked()

	draft := s.note
	handoff := content.ReferencedBlocks(s.note.Content, s.pending)
	s.mu.Unlock()

	_, err := s.deps.Storage.SaveNote(ctx, &draft, handoff)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = prev
		s.setErrLocked("could not save note")
		return fmt.Errorf("save note: %w", err)
	}

	s.note.ID = draft.ID
	s.note.CreatedAt = draft.CreatedAt
	s.note.UpdatedAt = draft.UpdatedAt

	// Unreferenced pending blocks are dropped at save; the kept ones take on
	// their persisted identity.
	kept := content.ReferencedBlocks(s.note.Content, s.pending)
	for i := range kept {
		kept[i].NoteID = s.note.ID
		kept[i].OrderIndex = i
	}
	s.pending = kept
	s.syncRefsLocked()
	s.captureBaseline()
	s.applyReminderLocked()

	if switchToView {
		s.state = StateViewing
	} else {
		s.state = StateEditing
	}
	s.errMsg = ""
	s.emitLocked()
	return nil
}

// Delete destroys the note: the stored row (cascading its block rows), the
// block media files (best-effort), and any pending reminder.
func (s *Session) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.note.ID != 0 {
		paths, err := s.deps.Storage.DeleteNote(ctx, s.note.ID)
		if err != nil {
			s.setErrLocked("could not delete note")
			return fmt.Errorf("delete note: %w", err)
		}
		s.removeFilesLocked(paths)
		if s.deps.Reminders != nil {
			if err := s.deps.Reminders.Cancel(s.note.ID); err != nil {
				s.log.Warn("cancel reminder", "note_id", s.note.ID, "err", err)
			}
		}
	} else {
		// Never persisted: only the session-local recordings exist.
		paths := make([]string, 0, len(s.pending))
		for _, b := range s.pending {
			paths = append(paths, b.FilePath)
		}
		s.removeFilesLocked(paths)
	}

	s.pending = nil
	s.displayed = nil
	s.state = StateDeleted
	s.errMsg = ""
	s.emitLocked()
	return nil
}

func (s *Session) removeFilesLocked(paths []string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := s.opts.RemoveFile(p); err != nil {
			s.log.Warn("delete audio file", "path", p, "err", err)
		}
	}
}

// applyReminderLocked reconciles the platform reminder with the just-saved
// draft. Fire-and-forget: scheduling failures are logged, never fatal.
func (s *Session) applyReminderLocked() {
	if s.deps.Reminders == nil || s.note.ID == 0 {
		return
	}
	if s.note.ReminderAt != nil {
		if err := s.deps.Reminders.Schedule(s.note.ID, s.note.DisplayTitle(), *s.note.ReminderAt); err != nil {
			s.log.Warn("schedule reminder", "note_id", s.note.ID, "err", err)
		}
		return
	}
	if err := s.deps.Reminders.Cancel(s.note.ID); err != nil {
		s.log.Warn("cancel reminder", "note_id", s.note.ID, "err", err)
	}
}
