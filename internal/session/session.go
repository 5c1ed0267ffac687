// Package session holds the stateful core of note editing: the current
// draft, its pending audio blocks, and every mutation the editor performs on
// them. All state lives behind one mutex; collaborators (recorder, player,
// speech recognizer, scheduler, storage) are injected interfaces.
//
// Failures reachable from user action never cross this boundary as panics or
// raw errors: they land in the snapshot's Err field, cleared by the next
// successful operation or an explicit dismissal.
package session

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bep/debounce"

	"github.com/SarcasticNickname/AudioNotes-sub000/internal/content"
	"github.com/SarcasticNickname/AudioNotes-sub000/internal/domain"
)

// State is the editing session lifecycle.
type State int

const (
	StateNew State = iota
	StateEditing
	StateViewing
	StateSaving
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateEditing:
		return "editing"
	case StateViewing:
		return "viewing"
	case StateSaving:
		return "saving"
	case StateDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Deps are the session's collaborators. Storage is required; the rest may be
// nil when the surface using them is absent (a headless import job has no
// player).
type Deps struct {
	Storage   Storage
	Recorder  Recorder
	Prober    DurationProber
	Player    Player
	Speech    SpeechToText
	Reminders ReminderScheduler
	Logger    *slog.Logger
}

// Options tune session behavior. Zero values pick the defaults.
type Options struct {
	// SyncDebounce collapses bursts of text edits into one reference-sync.
	SyncDebounce time.Duration
	// PollInterval drives playback position updates while playing.
	PollInterval time.Duration
	// RemoveFile deletes a media file (os.Remove outside tests).
	RemoveFile func(string) error
	// Now is the clock (time.Now outside tests).
	Now func() time.Time
}

const (
	defaultSyncDebounce = 150 * time.Millisecond
	defaultPollInterval = 250 * time.Millisecond
)

type baseline struct {
	title    string
	content  string
	category domain.Category
	reminder *time.Time
	blockIDs map[int64]bool
}

// Snapshot is an immutable view of session state handed to observers.
type Snapshot struct {
	State     State
	Note      domain.Note
	Blocks    []domain.AudioBlock // blocks referenced by the current text, in text order
	Err       string
	Recording bool
	Listening bool
	Playback  PlaybackStatus
}

// Session is the single-writer state container for one note being edited.
type Session struct {
	mu   sync.Mutex
	deps Deps
	opts Options
	log  *slog.Logger

	state     State
	note      domain.Note
	pending   []domain.AudioBlock
	displayed []domain.AudioBlock
	selStart  int
	selEnd    int
	base      baseline
	errMsg    string
	closed    bool

	lastProvisionalID int64
	debounced         func(func())

	pollStop chan struct{}
	sttStop  chan struct{}
	sttWG    sync.WaitGroup

	subMu   sync.Mutex
	subNext int
	subs    map[int]chan Snapshot
}

// New creates a session in the fresh-note state.
func New(deps Deps, opts Options) *Session {
	if opts.SyncDebounce <= 0 {
		opts.SyncDebounce = defaultSyncDebounce
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.RemoveFile == nil {
		opts.RemoveFile = os.Remove
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Session{
		deps:      deps,
		opts:      opts,
		log:       log,
		state:     StateNew,
		debounced: debounce.New(opts.SyncDebounce),
		subs:      make(map[int]chan Snapshot),
	}
	s.note.Category = domain.CategoryNone
	s.captureBaseline()
	return s
}

// Load hydrates the session from storage. A missing note or a fetch error
// degrades to a fresh editable note with the error recorded in state; the
// screen is never blocked by a hard failure.
func (s *Session) Load(ctx context.Context, id int64) {
	note, err := s.deps.Storage.GetNote(ctx, id)
	var blocks []domain.AudioBlock
	if err == nil {
		blocks, err = s.deps.Storage.GetAudioBlocks(ctx, note.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.log.Warn("load note, falling back to new", "note_id", id, "err", err)
		s.state = StateNew
		s.note = domain.Note{Category: domain.CategoryNone}
		s.pending = nil
		s.errMsg = "could not load note"
		s.captureBaseline()
		s.syncRefsLocked()
		s.emitLocked()
		return
	}

	s.state = StateViewing
	s.note = *note
	s.pending = blocks
	s.errMsg = ""
	s.captureBaseline()
	s.syncRefsLocked()
	s.emitLocked()
}

// Snapshot returns the current immutable view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a stream of snapshots emitted after every state change.
// Slow subscribers miss intermediate snapshots rather than blocking edits.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subNext++
	id := s.subNext
	ch := make(chan Snapshot, 8)
	s.subs[id] = ch
	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// DismissError clears the current error state.
func (s *Session) DismissError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = ""
	s.emitLocked()
}

// Edit switches the session into editing mode.
func (s *Session) Edit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateViewing {
		s.state = StateEditing
		s.emitLocked()
	}
}

// View switches back to read mode.
func (s *Session) View() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateEditing {
		s.state = StateViewing
		s.emitLocked()
	}
}

// Segments renders the current draft for read mode.
func (s *Session) Segments() []content.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return content.Segments(s.note.Content, s.pending)
}

// Close tears the session down: any active recording is stopped and its
// partial file discarded, playback and speech are released, and pending
// debounced work is neutralized so it cannot touch a discarded container.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopPollLocked()
	s.mu.Unlock()

	s.stopSpeechTeardown()

	if r := s.deps.Recorder; r != nil && r.Active() {
		if path, err := r.Stop(context.Background()); err == nil && path != "" {
			if err := s.opts.RemoveFile(path); err != nil {
				s.log.Warn("discard partial recording", "path", path, "err", err)
			}
		}
	}
	if p := s.deps.Player; p != nil {
		if err := p.Stop(); err != nil {
			s.log.Warn("release player", "err", err)
		}
	}

	s.subMu.Lock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.subMu.Unlock()
}

func (s *Session) captureBaseline() {
	ids := make(map[int64]bool, len(s.pending))
	for _, b := range s.pending {
		ids[b.ID] = true
	}
	s.base = baseline{
		title:    s.note.Title,
		content:  s.note.Content,
		category: s.note.Category,
		reminder: s.note.ReminderAt,
		blockIDs: ids,
	}
}

func (s *Session) snapshotLocked() Snapshot {
	blocks := make([]domain.AudioBlock, len(s.displayed))
	copy(blocks, s.displayed)
	snap := Snapshot{
		State:  s.state,
		Note:   s.note,
		Blocks: blocks,
		Err:    s.errMsg,
	}
	if s.deps.Recorder != nil {
		snap.Recording = s.deps.Recorder.Active()
	}
	if s.deps.Speech != nil {
		snap.Listening = s.deps.Speech.Listening()
	}
	if s.deps.Player != nil {
		snap.Playback = s.deps.Player.Status()
	}
	return snap
}

func (s *Session) emitLocked() {
	snap := s.snapshotLocked()
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// setErrLocked records a user-visible error in session state.
func (s *Session) setErrLocked(msg string) {
	s.errMsg = msg
	s.emitLocked()
}

// provisionalIDLocked hands out a session-unique time-based id for a newly
// recorded block. Monotonic so rapid recordings inside one millisecond still
// get distinct ids.
func (s *Session) provisionalIDLocked() int64 {
	id := s.opts.Now().UnixMilli()
	if id <= s.lastProvisionalID {
		id = s.lastProvisionalID + 1
	}
	s.lastProvisionalID = id
	return id
}

// syncRefsLocked recomputes the displayed-block view from the current text.
func (s *Session) syncRefsLocked() {
	s.displayed = content.ReferencedBlocks(s.note.Content, s.pending)
}

// scheduleSync queues a debounced reference-sync. The callback reads the
// session's state at fire time, so a burst of edits collapses into a single
// parse of the latest text and stale in-flight work cannot win.
func (s *Session) scheduleSync() {
	s.debounced(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		s.syncRefsLocked()
		s.emitLocked()
	})
}
