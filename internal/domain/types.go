package domain

import "time"

// DefaultTitle is used for display when a note is saved with a blank title.
const DefaultTitle = "Untitled note"

// Note is a user document. ID 0 means "not yet persisted".
type Note struct {
	ID         int64      `db:"id" json:"id"`
	Title      string     `db:"title" json:"title"`
	Content    string     `db:"content" json:"content"`
	Category   Category   `db:"category" json:"category"`
	IsArchived bool       `db:"is_archived" json:"is_archived"`
	ReminderAt *time.Time `db:"reminder_at" json:"reminder_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// AudioBlock is one recorded clip attached to a note.
//
// Newly recorded blocks carry a client-generated provisional ID (time-based)
// until the first save confirms it. OrderIndex is display order among the
// note's blocks, reassigned densely on every save; it is not the position of
// the block's placeholder in the text.
type AudioBlock struct {
	ID         int64  `db:"id" json:"id"`
	NoteID     int64  `db:"note_id" json:"note_id"`
	OrderIndex int    `db:"order_index" json:"order_index"`
	FilePath   string `db:"file_path" json:"file_path"`
	DurationMs int64  `db:"duration_ms" json:"duration_ms"`
}

// DisplayTitle returns the note title, or a placeholder if it is blank.
func (n Note) DisplayTitle() string {
	if n.Title == "" {
		return DefaultTitle
	}
	return n.Title
}
