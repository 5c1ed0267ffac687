package session

import (
	"context"
	"time"

	"github.com/SarcasticNickname/AudioNotes-sub000/internal/domain"
)

// Storage is the persistence collaborator. The save path is the reconciling
// gateway: it filters the pending blocks against the final content and
// replaces the stored block set transactionally.
type Storage interface {
	GetNote(ctx context.Context, id int64) (*domain.Note, error)
	GetAudioBlocks(ctx context.Context, noteID int64) ([]domain.AudioBlock, error)
	SaveNote(ctx context.Context, draft *domain.Note, pending []domain.AudioBlock) (int64, error)
	DeleteNote(ctx context.Context, id int64) ([]string, error)
}

// Recorder is the device microphone collaborator. At most one recording is
// active per recorder.
type Recorder interface {
	Start(ctx context.Context) error
	// Stop finalizes the recording and returns the captured file's path.
	Stop(ctx context.Context) (string, error)
	Active() bool
}

// DurationProber extracts a clip's duration from its media metadata.
type DurationProber interface {
	Probe(path string) (time.Duration, error)
}

// PlaybackState mirrors the player's lifecycle.
type PlaybackState int

const (
	PlaybackIdle PlaybackState = iota
	PlaybackPreparing
	PlaybackPlaying
	PlaybackPaused
	PlaybackCompleted
	PlaybackError
)

// PlaybackStatus is a point-in-time view of the player.
type PlaybackStatus struct {
	State      PlaybackState
	ClipID     int64
	PositionMs int64
	DurationMs int64
}

// Player is the media decoder collaborator. One active stream process-wide;
// the session enforces stop-before-start on top of it.
type Player interface {
	Play(path string, clipID int64) error
	Pause() error
	Resume() error
	Stop() error
	Seek(ms int64) error
	Status() PlaybackStatus
}

// SpeechToText is the speech recognition collaborator. Results deliver final
// transcript strings; Errors surfaces recognizer failures. Both channels
// close when listening stops.
type SpeechToText interface {
	Available() bool
	Start(languageTag string) error
	Stop() error
	Listening() bool
	Results() <-chan string
	Errors() <-chan error
}

// ReminderScheduler asks the platform to fire a reminder. Idempotent by note
// id: scheduling again replaces any pending reminder for that note.
type ReminderScheduler interface {
	Schedule(noteID int64, title string, fireAt time.Time) error
	Cancel(noteID int64) error
}
