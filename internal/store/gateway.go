package store

import (
	"context"
	"fmt"
	"time"

	"github.com/SarcasticNickname/AudioNotes-sub000/internal/domain"
	"github.com/SarcasticNickname/AudioNotes-sub000/internal/placeholder"
)

// SaveNote atomically persists a note together with exactly the audio blocks
// its content references.
//
// The referenced-id set is recomputed here from the final content, not taken
// from the caller's live-edit view, so a last-moment desync cannot leak into
// storage. Kept blocks get a dense orderIndex 0..n-1 in filtered-list order
// and the (possibly just-assigned) note id. The stored block set is replaced
// wholesale: delete all rows for the note, then bulk-insert the kept ones.
// Any failure rolls the whole transaction back.
//
// Returns the resolved note id (newly assigned when draft.ID was 0).
func (s *Store) SaveNote(ctx context.Context, draft *domain.Note, pending []domain.AudioBlock) (int64, error) {
	if draft.Category == "" {
		draft.Category = domain.CategoryNone
	}
	referenced := placeholder.ReferencedIDs(draft.Content)

	kept := make([]domain.AudioBlock, 0, len(pending))
	for _, b := range pending {
		if referenced[b.ID] {
			kept = append(kept, b)
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	noteID := draft.ID
	if noteID == 0 {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO notes (title, content, category, is_archived, reminder_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			draft.Title, draft.Content, string(draft.Category), draft.IsArchived, draft.ReminderAt, now, now)
		if err != nil {
			return 0, fmt.Errorf("insert note: %w", err)
		}
		noteID, err = res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("resolve note id: %w", err)
		}
		draft.CreatedAt = now
	} else {
		res, err := tx.ExecContext(ctx,
			"UPDATE notes SET title = ?, content = ?, category = ?, is_archived = ?, reminder_at = ?, updated_at = ? WHERE id = ?",
			draft.Title, draft.Content, string(draft.Category), draft.IsArchived, draft.ReminderAt, now, noteID)
		if err != nil {
			return 0, fmt.Errorf("update note: %w", err)
		}
		if ra, err := res.RowsAffected(); err == nil && ra == 0 {
			return 0, ErrNotFound
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM audio_blocks WHERE note_id = ?", noteID); err != nil {
		return 0, fmt.Errorf("clear audio blocks: %w", err)
	}
	for i := range kept {
		kept[i].NoteID = noteID
		kept[i].OrderIndex = i
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO audio_blocks (id, note_id, order_index, file_path, duration_ms) VALUES (?, ?, ?, ?, ?)",
			kept[i].ID, kept[i].NoteID, kept[i].OrderIndex, kept[i].FilePath, kept[i].DurationMs); err != nil {
			return 0, fmt.Errorf("insert audio block: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit save: %w", err)
	}

	draft.ID = noteID
	draft.UpdatedAt = now
	s.notifyNote(ctx, noteID)
	return noteID, nil
}

// RestoreNote writes a note under its original id, replacing any local row
// (and, via cascade, its block rows) that carries the same id. This is the
// import path: unlike SaveNote it never allocates a fresh note id, so a
// restore lands on the same keys it was exported from and re-running it is
// idempotent. Timestamps come from the imported note; a zero CreatedAt is
// stamped with the current time.
func (s *Store) RestoreNote(ctx context.Context, note *domain.Note, blocks []domain.AudioBlock) error {
	if note.ID == 0 {
		return fmt.Errorf("restore note: missing id")
	}
	note.Category = domain.CategoryFromName(string(note.Category))
	referenced := placeholder.ReferencedIDs(note.Content)

	kept := make([]domain.AudioBlock, 0, len(blocks))
	for _, b := range blocks {
		if referenced[b.ID] {
			kept = append(kept, b)
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin restore: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	if note.CreatedAt.IsZero() {
		note.CreatedAt = now
	}
	if note.UpdatedAt.IsZero() {
		note.UpdatedAt = now
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM notes WHERE id = ?", note.ID); err != nil {
		return fmt.Errorf("clear existing note: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO notes (id, title, content, category, is_archived, reminder_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		note.ID, note.Title, note.Content, string(note.Category), note.IsArchived, note.ReminderAt, note.CreatedAt, note.UpdatedAt); err != nil {
		return fmt.Errorf("restore note: %w", err)
	}

	for i := range kept {
		kept[i].NoteID = note.ID
		kept[i].OrderIndex = i
		// OR REPLACE: a block id surviving under another note is the same
		// exported clip and moves to the restored note.
		if _, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO audio_blocks (id, note_id, order_index, file_path, duration_ms) VALUES (?, ?, ?, ?, ?)",
			kept[i].ID, kept[i].NoteID, kept[i].OrderIndex, kept[i].FilePath, kept[i].DurationMs); err != nil {
			return fmt.Errorf("restore audio block: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit restore: %w", err)
	}

	s.notifyNote(ctx, note.ID)
	return nil
}
