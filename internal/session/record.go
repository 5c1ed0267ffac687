package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/SarcasticNickname/AudioNotes-sub000/internal/domain"
)

var (
	ErrRecorderUnavailable = errors.New("recorder unavailable")
	ErrMicrophoneBusy      = errors.New("microphone is busy")
	ErrNoActiveRecording   = errors.New("no active recording")
)

// StartRecording begins capturing a new clip. Starting while a recording is
// already active is a guarded no-op; starting while speech recognition holds
// the microphone is rejected.
func (s *Session) StartRecording(ctx context.Context) error {
	r := s.deps.Recorder
	if r == nil {
		return ErrRecorderUnavailable
	}
	if r.Active() {
		return nil
	}
	if sp := s.deps.Speech; sp != nil && sp.Listening() {
		s.mu.Lock()
		s.setErrLocked("stop voice input before recording audio")
		s.mu.Unlock()
		return ErrMicrophoneBusy
	}

	if err := r.Start(ctx); err != nil {
		s.mu.Lock()
		s.setErrLocked("could not start recording")
		s.mu.Unlock()
		return fmt.Errorf("start recording: %w", err)
	}

	s.mu.Lock()
	s.emitLocked()
	s.mu.Unlock()
	return nil
}

// StopRecording finalizes the active recording, probes the clip's duration
// from its metadata (a failed probe counts as 0 and is only logged), and
// inserts the new block at the cursor.
func (s *Session) StopRecording(ctx context.Context) (domain.AudioBlock, error) {
	r := s.deps.Recorder
	if r == nil {
		return domain.AudioBlock{}, ErrRecorderUnavailable
	}
	if !r.Active() {
		return domain.AudioBlock{}, ErrNoActiveRecording
	}

	path, err := r.Stop(ctx)
	if err != nil || path == "" {
		s.mu.Lock()
		s.setErrLocked("recording failed")
		s.mu.Unlock()
		if err == nil {
			err = errors.New("recorder returned no file")
		}
		return domain.AudioBlock{}, fmt.Errorf("stop recording: %w", err)
	}

	var durationMs int64
	if s.deps.Prober != nil {
		d, err := s.deps.Prober.Probe(path)
		if err != nil {
			s.log.Warn("probe clip duration", "path", path, "err", err)
		} else {
			durationMs = d.Milliseconds()
		}
	}

	return s.InsertRecording(path, durationMs), nil
}
