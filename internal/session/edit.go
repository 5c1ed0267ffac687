package session

import (
	"errors"
	"time"

	"github.com/SarcasticNickname/AudioNotes-sub000/internal/domain"
	"github.com/SarcasticNickname/AudioNotes-sub000/internal/placeholder"
)

// Validation and guard errors surfaced by edit operations. They are also
// mirrored into the snapshot's Err field.
var (
	ErrReminderInPast   = errors.New("reminder time is in the past")
	ErrStyleOverToken   = errors.New("formatting cannot be applied across an audio placeholder")
	ErrUnknownBlock     = errors.New("audio block not found")
	ErrInvalidSelection = errors.New("selection out of range")
)

// Style is a formatting operation over a selection.
type Style int

const (
	StyleBold Style = iota
	StyleItalic
)

func (st Style) marker() string {
	if st == StyleBold {
		return "**"
	}
	return "*"
}

// SetSelection moves the cursor/selection. Start==end is a bare cursor.
func (s *Session) SetSelection(start, end int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if start < 0 || end < start || end > len(s.note.Content) {
		return ErrInvalidSelection
	}
	s.selStart, s.selEnd = start, end
	return nil
}

// SetText replaces the note body. Reference-sync runs debounced so keystroke
// bursts parse once.
func (s *Session) SetText(text string) {
	s.mu.Lock()
	s.note.Content = text
	if s.selStart > len(text) {
		s.selStart = len(text)
	}
	if s.selEnd > len(text) {
		s.selEnd = len(text)
	}
	s.mu.Unlock()
	s.scheduleSync()
}

// SetTitle updates the draft title.
func (s *Session) SetTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.note.Title = title
	s.emitLocked()
}

// SetCategory updates the draft category. Unknown values collapse to NONE.
func (s *Session) SetCategory(c domain.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.note.Category = domain.CategoryFromName(string(c))
	s.emitLocked()
}

// SetReminder sets or clears (nil) the reminder. A timestamp in the past is
// rejected and leaves state unchanged.
func (s *Session) SetReminder(at *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if at != nil && !at.After(s.opts.Now()) {
		s.setErrLocked("reminder time must be in the future")
		return ErrReminderInPast
	}
	s.note.ReminderAt = at
	s.errMsg = ""
	s.emitLocked()
	return nil
}

// ApplyStyle wraps the selected text in the style's markers. Placeholder
// tokens are atomic, unstylable units: a selection overlapping any token span
// is rejected with an error and no state changes.
func (s *Session) ApplyStyle(style Style) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start, end := s.selStart, s.selEnd
	if start == end {
		return nil
	}
	for _, m := range placeholder.FindAll(s.note.Content) {
		if start < m.End && end > m.Start {
			s.setErrLocked("cannot format over an audio attachment")
			return ErrStyleOverToken
		}
	}

	mark := style.marker()
	text := s.note.Content
	s.note.Content = text[:start] + mark + text[start:end] + mark + text[end:]
	s.selEnd = end + 2*len(mark)
	s.errMsg = ""
	s.emitLocked()
	return nil
}

// InsertRecording registers a freshly recorded clip: a new pending block with
// a provisional id, its token inserted at the cursor (replacing any selected
// text), and an immediate reference-sync.
func (s *Session) InsertRecording(filePath string, durationMs int64) domain.AudioBlock {
	s.mu.Lock()
	defer s.mu.Unlock()

	block := domain.AudioBlock{
		ID:         s.provisionalIDLocked(),
		NoteID:     s.note.ID,
		FilePath:   filePath,
		DurationMs: durationMs,
	}
	s.pending = append(s.pending, block)
	s.insertAtSelectionLocked(placeholder.Encode(block.ID))
	s.syncRefsLocked()
	s.errMsg = ""
	s.emitLocked()
	return block
}

// DeleteAudioBlock removes a block: every occurrence of its token leaves the
// text (whitespace collapsed), its media file is deleted best-effort, and the
// block drops out of the pending list.
func (s *Session) DeleteAudioBlock(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, b := range s.pending {
		if b.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		s.setErrLocked("audio block not found")
		return ErrUnknownBlock
	}

	block := s.pending[idx]
	s.note.Content = placeholder.Remove(s.note.Content, id)
	if s.selStart > len(s.note.Content) {
		s.selStart = len(s.note.Content)
	}
	if s.selEnd > len(s.note.Content) {
		s.selEnd = len(s.note.Content)
	}
	s.pending = append(s.pending[:idx], s.pending[idx+1:]...)

	if block.FilePath != "" {
		if err := s.opts.RemoveFile(block.FilePath); err != nil {
			// File deletion failure is logged, not fatal: the draft stays intact.
			s.log.Warn("delete audio file", "path", block.FilePath, "err", err)
		}
	}

	s.syncRefsLocked()
	s.errMsg = ""
	s.emitLocked()
	return nil
}

// HasUnsavedChanges reports whether the draft differs from the baseline
// captured at load (or new-note defaults). The pending-block id set is part
// of the comparison, so a record-then-save is never reported clean.
func (s *Session) HasUnsavedChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.note.Title != s.base.title ||
		s.note.Content != s.base.content ||
		s.note.Category != s.base.category {
		return true
	}
	if !equalTimePtr(s.note.ReminderAt, s.base.reminder) {
		return true
	}
	if len(s.pending) != len(s.base.blockIDs) {
		return true
	}
	for _, b := range s.pending {
		if !s.base.blockIDs[b.ID] {
			return true
		}
	}
	return false
}

// insertAtSelectionLocked splices text in at the selection, replacing any
// selected range, and leaves the cursor after the inserted text.
func (s *Session) insertAtSelectionLocked(insert string) {
	body := s.note.Content
	start, end := s.selStart, s.selEnd
	if start > len(body) {
		start = len(body)
	}
	if end > len(body) {
		end = len(body)
	}
	s.note.Content = body[:start] + insert + body[end:]
	s.selStart = start + len(insert)
	s.selEnd = s.selStart
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
