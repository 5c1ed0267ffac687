package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/SarcasticNickname/AudioNotes-sub000/internal/domain"
	"github.com/SarcasticNickname/AudioNotes-sub000/internal/placeholder"
)

// --- fakes ---

type fakeStorage struct {
	mu       sync.Mutex
	nextID   int64
	notes    map[int64]domain.Note
	blocks   map[int64][]domain.AudioBlock
	getErr   error
	saveErr  error
	saveGate chan struct{} // when set, Save blocks until the gate closes
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		notes:  make(map[int64]domain.Note),
		blocks: make(map[int64][]domain.AudioBlock),
	}
}

func (f *fakeStorage) GetNote(_ context.Context, id int64) (*domain.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	n, ok := f.notes[id]
	if !ok {
		return nil, errors.New("note not found")
	}
	return &n, nil
}

func (f *fakeStorage) GetAudioBlocks(_ context.Context, noteID int64) ([]domain.AudioBlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.AudioBlock(nil), f.blocks[noteID]...), nil
}

func (f *fakeStorage) SaveNote(_ context.Context, draft *domain.Note, pending []domain.AudioBlock) (int64, error) {
	if f.saveGate != nil {
		<-f.saveGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return 0, f.saveErr
	}

	referenced := placeholder.ReferencedIDs(draft.Content)
	kept := make([]domain.AudioBlock, 0, len(pending))
	for _, b := range pending {
		if referenced[b.ID] {
			kept = append(kept, b)
		}
	}

	if draft.ID == 0 {
		f.nextID++
		draft.ID = f.nextID
		draft.CreatedAt = time.Now()
	}
	draft.UpdatedAt = time.Now()
	for i := range kept {
		kept[i].NoteID = draft.ID
		kept[i].OrderIndex = i
	}
	f.notes[draft.ID] = *draft
	f.blocks[draft.ID] = kept
	return draft.ID, nil
}

func (f *fakeStorage) DeleteNote(_ context.Context, id int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var paths []string
	for _, b := range f.blocks[id] {
		paths = append(paths, b.FilePath)
	}
	delete(f.notes, id)
	delete(f.blocks, id)
	return paths, nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	active   bool
	path     string
	startErr error
	starts   int
	stops    int
}

func (f *fakeRecorder) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.active = true
	return nil
}

func (f *fakeRecorder) Stop(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.active = false
	return f.path, nil
}

func (f *fakeRecorder) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

type fakeProber struct {
	d   time.Duration
	err error
}

func (f fakeProber) Probe(string) (time.Duration, error) { return f.d, f.err }

type fakePlayer struct {
	mu     sync.Mutex
	status PlaybackStatus
	calls  []string
}

func (f *fakePlayer) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakePlayer) Play(path string, clipID int64) error {
	f.record("play")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = PlaybackStatus{State: PlaybackPlaying, ClipID: clipID}
	return nil
}

func (f *fakePlayer) Pause() error {
	f.record("pause")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.State = PlaybackPaused
	return nil
}

func (f *fakePlayer) Resume() error {
	f.record("resume")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.State = PlaybackPlaying
	return nil
}

func (f *fakePlayer) Stop() error {
	f.record("stop")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = PlaybackStatus{State: PlaybackIdle}
	return nil
}

func (f *fakePlayer) Seek(ms int64) error {
	f.record("seek")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.PositionMs = ms
	return nil
}

func (f *fakePlayer) Status() PlaybackStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakePlayer) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeSpeech struct {
	mu        sync.Mutex
	available bool
	listening bool
	results   chan string
	errs      chan error
}

func newFakeSpeech() *fakeSpeech {
	return &fakeSpeech{available: true}
}

func (f *fakeSpeech) Available() bool { return f.available }

func (f *fakeSpeech) Start(string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listening = true
	f.results = make(chan string, 4)
	f.errs = make(chan error, 4)
	return nil
}

func (f *fakeSpeech) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listening {
		f.listening = false
		close(f.results)
		close(f.errs)
	}
	return nil
}

func (f *fakeSpeech) Listening() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listening
}

func (f *fakeSpeech) Results() <-chan string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results
}

func (f *fakeSpeech) Errors() <-chan error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errs
}

type fakeScheduler struct {
	mu        sync.Mutex
	scheduled map[int64]time.Time
	canceled  []int64
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{scheduled: make(map[int64]time.Time)}
}

func (f *fakeScheduler) Schedule(noteID int64, _ string, fireAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled[noteID] = fireAt
	return nil
}

func (f *fakeScheduler) Cancel(noteID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, noteID)
	delete(f.scheduled, noteID)
	return nil
}

// --- harness ---

type harness struct {
	session   *Session
	storage   *fakeStorage
	recorder  *fakeRecorder
	player    *fakePlayer
	speech    *fakeSpeech
	scheduler *fakeScheduler
	removed   *[]string
	clock     *time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		storage:   newFakeStorage(),
		recorder:  &fakeRecorder{path: "/tmp/rec.wav"},
		player:    &fakePlayer{},
		speech:    newFakeSpeech(),
		scheduler: newFakeScheduler(),
	}
	var removed []string
	var removedMu sync.Mutex
	h.removed = &removed
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	h.clock = &now

	h.session = New(Deps{
		Storage:   h.storage,
		Recorder:  h.recorder,
		Prober:    fakeProber{d: 1500 * time.Millisecond},
		Player:    h.player,
		Speech:    h.speech,
		Reminders: h.scheduler,
	}, Options{
		SyncDebounce: time.Millisecond,
		PollInterval: 5 * time.Millisecond,
		RemoveFile: func(p string) error {
			removedMu.Lock()
			defer removedMu.Unlock()
			removed = append(removed, p)
			return nil
		},
		Now: func() time.Time { return *h.clock },
	})
	t.Cleanup(h.session.Close)
	return h
}

func (h *harness) waitBlocks(t *testing.T, n int) []domain.AudioBlock {
	t.Helper()
	var blocks []domain.AudioBlock
	require.Eventually(t, func() bool {
		blocks = h.session.Snapshot().Blocks
		return len(blocks) == n
	}, time.Second, 2*time.Millisecond)
	return blocks
}

// --- tests ---

func TestInsertRecordingAtCursor(t *testing.T) {
	h := newHarness(t)

	block := h.session.InsertRecording("/tmp/clip.wav", 900)
	snap := h.session.Snapshot()

	require.Equal(t, placeholder.Encode(block.ID), snap.Note.Content)
	require.Len(t, snap.Blocks, 1)
	require.Equal(t, block.ID, snap.Blocks[0].ID)
	require.Equal(t, int64(900), snap.Blocks[0].DurationMs)
}

func TestInsertRecordingReplacesSelection(t *testing.T) {
	h := newHarness(t)
	h.session.SetText("keep REMOVE keep")
	require.NoError(t, h.session.SetSelection(5, 11))

	block := h.session.InsertRecording("/tmp/clip.wav", 100)
	snap := h.session.Snapshot()
	require.Equal(t, "keep "+placeholder.Encode(block.ID)+" keep", snap.Note.Content)
}

func TestProvisionalIDsDistinctWithinBurst(t *testing.T) {
	h := newHarness(t)
	a := h.session.InsertRecording("/tmp/a.wav", 0)
	b := h.session.InsertRecording("/tmp/b.wav", 0) // same frozen clock
	require.NotEqual(t, a.ID, b.ID)
	require.Greater(t, b.ID, a.ID)
}

func TestReferenceSyncFiltersAndOrders(t *testing.T) {
	h := newHarness(t)
	b1 := h.session.InsertRecording("/tmp/1.wav", 0)
	b2 := h.session.InsertRecording("/tmp/2.wav", 0)
	b3 := h.session.InsertRecording("/tmp/3.wav", 0)

	// Only 3 and 2 survive in the text, 3 first.
	h.session.SetText(placeholder.Encode(b3.ID) + " middle " + placeholder.Encode(b2.ID))

	blocks := h.waitBlocks(t, 2)
	require.Equal(t, b3.ID, blocks[0].ID)
	require.Equal(t, b2.ID, blocks[1].ID)
	for _, b := range blocks {
		require.NotEqual(t, b1.ID, b.ID)
	}
}

func TestDeleteAudioBlockRemovesAllOccurrences(t *testing.T) {
	h := newHarness(t)
	block := h.session.InsertRecording("/tmp/dup.wav", 0)
	token := placeholder.Encode(block.ID)

	// Copy-pasted token: both occurrences must go, whitespace collapsed.
	h.session.SetText("a " + token + " b " + token + " c")
	h.waitBlocks(t, 1)

	require.NoError(t, h.session.DeleteAudioBlock(block.ID))
	snap := h.session.Snapshot()
	require.Equal(t, "a b c", snap.Note.Content)
	require.Empty(t, snap.Blocks)
	require.Contains(t, *h.removed, "/tmp/dup.wav")
}

func TestDeleteAudioBlockUnknown(t *testing.T) {
	h := newHarness(t)
	require.ErrorIs(t, h.session.DeleteAudioBlock(404), ErrUnknownBlock)
	require.NotEmpty(t, h.session.Snapshot().Err)
}

func TestStyleGuardRejectsOverlap(t *testing.T) {
	h := newHarness(t)
	block := h.session.InsertRecording("/tmp/clip.wav", 0)
	h.session.SetText("ab " + placeholder.Encode(block.ID) + " cd")
	before := h.session.Snapshot().Note.Content

	// Selection reaches into the token span.
	require.NoError(t, h.session.SetSelection(1, 6))
	err := h.session.ApplyStyle(StyleBold)
	require.ErrorIs(t, err, ErrStyleOverToken)

	snap := h.session.Snapshot()
	require.Equal(t, before, snap.Note.Content)
	require.NotEmpty(t, snap.Err)
}

func TestStyleAppliesOutsideTokens(t *testing.T) {
	h := newHarness(t)
	h.session.SetText("make this bold")
	require.NoError(t, h.session.SetSelection(5, 9))
	require.NoError(t, h.session.ApplyStyle(StyleBold))
	require.Equal(t, "make **this** bold", h.session.Snapshot().Note.Content)
}

func TestHasUnsavedChanges(t *testing.T) {
	h := newHarness(t)
	require.False(t, h.session.HasUnsavedChanges())

	h.session.SetTitle("draft")
	require.True(t, h.session.HasUnsavedChanges())

	require.NoError(t, h.session.Save(context.Background(), true))
	require.False(t, h.session.HasUnsavedChanges())

	// Audio-only change counts as dirty too.
	h.session.InsertRecording("/tmp/clip.wav", 0)
	require.True(t, h.session.HasUnsavedChanges())
}

func TestSaveEndToEnd(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	block := h.session.InsertRecording("/tmp/clip.wav", 1200)
	require.Equal(t, placeholder.Encode(block.ID), h.session.Snapshot().Note.Content)

	require.NoError(t, h.session.Save(ctx, true))
	snap := h.session.Snapshot()
	require.NotZero(t, snap.Note.ID)
	require.Equal(t, StateViewing, snap.State)

	stored := h.storage.blocks[snap.Note.ID]
	require.Len(t, stored, 1)
	require.Equal(t, 0, stored[0].OrderIndex)

	require.NoError(t, h.session.DeleteAudioBlock(block.ID))
	require.Equal(t, "", h.session.Snapshot().Note.Content)

	require.NoError(t, h.session.Save(ctx, true))
	require.Empty(t, h.storage.blocks[snap.Note.ID])
}

func TestSaveOrderFollowsTextNotRecordingOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	a := h.session.InsertRecording("/tmp/a.wav", 0)
	b := h.session.InsertRecording("/tmp/b.wav", 0)

	// User drags B's token in front of A's.
	h.session.SetText(placeholder.Encode(b.ID) + " " + placeholder.Encode(a.ID))
	var blocks []domain.AudioBlock
	require.Eventually(t, func() bool {
		blocks = h.session.Snapshot().Blocks
		return len(blocks) == 2 && blocks[0].ID == b.ID
	}, time.Second, 2*time.Millisecond)
	require.Equal(t, b.ID, blocks[0].ID)
	require.Equal(t, a.ID, blocks[1].ID)

	require.NoError(t, h.session.Save(ctx, false))
	stored := h.storage.blocks[h.session.Snapshot().Note.ID]
	require.Len(t, stored, 2)
	require.Equal(t, b.ID, stored[0].ID)
	require.Equal(t, 0, stored[0].OrderIndex)
	require.Equal(t, a.ID, stored[1].ID)
	require.Equal(t, 1, stored[1].OrderIndex)
}

func TestSaveFailureKeepsDraft(t *testing.T) {
	h := newHarness(t)
	h.storage.saveErr = errors.New("disk detached")

	h.session.SetTitle("precious")
	h.session.SetText("do not lose this")

	err := h.session.Save(context.Background(), true)
	require.Error(t, err)

	snap := h.session.Snapshot()
	require.Equal(t, StateNew, snap.State)
	require.Equal(t, "precious", snap.Note.Title)
	require.Equal(t, "do not lose this", snap.Note.Content)
	require.NotEmpty(t, snap.Err)
	require.True(t, h.session.HasUnsavedChanges())
}

func TestSaveSerializes(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.storage.saveGate = gate

	done := make(chan error, 1)
	go func() { done <- h.session.Save(context.Background(), true) }()

	require.Eventually(t, func() bool {
		return h.session.Snapshot().State == StateSaving
	}, time.Second, 2*time.Millisecond)

	require.ErrorIs(t, h.session.Save(context.Background(), true), ErrSaveInProgress)

	close(gate)
	require.NoError(t, <-done)
}

func TestLoadNotFoundDegradesToNew(t *testing.T) {
	h := newHarness(t)
	h.storage.getErr = errors.New("no such note")

	h.session.Load(context.Background(), 123)
	snap := h.session.Snapshot()
	require.Equal(t, StateNew, snap.State)
	require.NotEmpty(t, snap.Err)
	require.Zero(t, snap.Note.ID)
	require.False(t, h.session.HasUnsavedChanges())
}

func TestLoadHydratesAndCapturesBaseline(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	token := placeholder.Encode(42)
	h.storage.notes[7] = domain.Note{ID: 7, Title: "stored", Content: token, Category: domain.CategoryWork}
	h.storage.blocks[7] = []domain.AudioBlock{{ID: 42, NoteID: 7, FilePath: "/tmp/42.wav"}}

	h.session.Load(ctx, 7)
	snap := h.session.Snapshot()
	require.Equal(t, StateViewing, snap.State)
	require.Equal(t, "stored", snap.Note.Title)
	require.Len(t, snap.Blocks, 1)
	require.False(t, h.session.HasUnsavedChanges())

	h.session.SetText(token + " more")
	require.True(t, h.session.HasUnsavedChanges())
}

func TestStartRecordingWhileRecordingIsNoOp(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.session.StartRecording(context.Background()))
	require.NoError(t, h.session.StartRecording(context.Background()))
	require.Equal(t, 1, h.recorder.starts)
}

func TestRecordingAndSpeechMutuallyExclusive(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.session.StartSpeech("en-US"))
	require.ErrorIs(t, h.session.StartRecording(ctx), ErrMicrophoneBusy)
	require.NoError(t, h.session.StopSpeech())

	require.NoError(t, h.session.StartRecording(ctx))
	require.ErrorIs(t, h.session.StartSpeech("en-US"), ErrMicrophoneBusy)
}

func TestStopRecordingProbesDurationAndInserts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.session.StartRecording(ctx))
	block, err := h.session.StopRecording(ctx)
	require.NoError(t, err)
	require.Equal(t, "/tmp/rec.wav", block.FilePath)
	require.Equal(t, int64(1500), block.DurationMs)
	require.Contains(t, h.session.Snapshot().Note.Content, placeholder.Encode(block.ID))
}

func TestStopRecordingProbeFailureMeansZeroDuration(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.session.deps.Prober = fakeProber{err: errors.New("bad header")}

	require.NoError(t, h.session.StartRecording(ctx))
	block, err := h.session.StopRecording(ctx)
	require.NoError(t, err)
	require.Zero(t, block.DurationMs)
}

func TestSpeechTranscriptAppendsAtCursor(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.session.StartSpeech("en-US"))

	h.speech.results <- "hello world"
	require.Eventually(t, func() bool {
		return h.session.Snapshot().Note.Content == "hello world"
	}, time.Second, 2*time.Millisecond)

	require.NoError(t, h.session.StopSpeech())
}

func TestPlayBlockStopsPreviousClip(t *testing.T) {
	h := newHarness(t)
	b1 := h.session.InsertRecording("/tmp/1.wav", 0)
	b2 := h.session.InsertRecording("/tmp/2.wav", 0)

	require.NoError(t, h.session.PlayBlock(b1.ID))
	require.NoError(t, h.session.PlayBlock(b2.ID))

	calls := h.player.callLog()
	require.Equal(t, []string{"play", "stop", "play"}, calls)
	require.Equal(t, b2.ID, h.player.Status().ClipID)
}

func TestPlayUnknownBlock(t *testing.T) {
	h := newHarness(t)
	require.ErrorIs(t, h.session.PlayBlock(404), ErrUnknownBlock)
}

func TestSetReminderRejectsPast(t *testing.T) {
	h := newHarness(t)
	past := h.clock.Add(-time.Hour)
	require.ErrorIs(t, h.session.SetReminder(&past), ErrReminderInPast)
	require.Nil(t, h.session.Snapshot().Note.ReminderAt)
	require.NotEmpty(t, h.session.Snapshot().Err)

	future := h.clock.Add(time.Hour)
	require.NoError(t, h.session.SetReminder(&future))
	require.NotNil(t, h.session.Snapshot().Note.ReminderAt)
}

func TestSaveSchedulesAndCancelsReminder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	future := h.clock.Add(2 * time.Hour)
	require.NoError(t, h.session.SetReminder(&future))
	require.NoError(t, h.session.Save(ctx, true))

	id := h.session.Snapshot().Note.ID
	require.Contains(t, h.scheduler.scheduled, id)

	require.NoError(t, h.session.SetReminder(nil))
	require.NoError(t, h.session.Save(ctx, true))
	require.NotContains(t, h.scheduler.scheduled, id)
}

func TestCloseDiscardsPartialRecording(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.session.StartRecording(context.Background()))

	h.session.Close()
	require.Equal(t, 1, h.recorder.stops)
	require.Contains(t, *h.removed, "/tmp/rec.wav")
	require.Equal(t, []string{"stop"}, h.player.callLog())
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	h := newHarness(t)
	ch, cancel := h.session.Subscribe()
	defer cancel()

	h.session.SetTitle("observed")

	select {
	case snap := <-ch:
		require.Equal(t, "observed", snap.Note.Title)
	case <-time.After(time.Second):
		t.Fatal("no snapshot after mutation")
	}
}
