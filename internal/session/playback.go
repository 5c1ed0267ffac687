package session

import (
	"errors"
	"fmt"
	"time"
)

var ErrPlayerUnavailable = errors.New("player unavailable")

// PlayBlock starts playback of one of the note's clips. Only one stream is
// active process-wide: a different clip already playing is stopped first so
// its resource is released before the new one is acquired.
func (s *Session) PlayBlock(id int64) error {
	p := s.deps.Player
	if p == nil {
		return ErrPlayerUnavailable
	}

	s.mu.Lock()
	var path string
	found := false
	for _, b := range s.pending {
		if b.ID == id {
			path = b.FilePath
			found = true
			break
		}
	}
	if !found {
		s.setErrLocked("audio block not found")
		s.mu.Unlock()
		return ErrUnknownBlock
	}
	s.mu.Unlock()

	status := p.Status()
	if status.ClipID != 0 && status.ClipID != id &&
		(status.State == PlaybackPlaying || status.State == PlaybackPaused || status.State == PlaybackPreparing) {
		if err := p.Stop(); err != nil {
			s.log.Warn("stop previous clip", "clip_id", status.ClipID, "err", err)
		}
	}

	if err := p.Play(path, id); err != nil {
		s.mu.Lock()
		s.setErrLocked("could not play recording")
		s.mu.Unlock()
		return fmt.Errorf("play block: %w", err)
	}

	s.mu.Lock()
	s.startPollLocked()
	s.errMsg = ""
	s.emitLocked()
	s.mu.Unlock()
	return nil
}

// PausePlayback pauses the active stream and halts position polling.
func (s *Session) PausePlayback() error {
	p := s.deps.Player
	if p == nil {
		return ErrPlayerUnavailable
	}
	if err := p.Pause(); err != nil {
		return fmt.Errorf("pause playback: %w", err)
	}
	s.mu.Lock()
	s.stopPollLocked()
	s.emitLocked()
	s.mu.Unlock()
	return nil
}

// ResumePlayback continues a paused stream and restarts position polling.
func (s *Session) ResumePlayback() error {
	p := s.deps.Player
	if p == nil {
		return ErrPlayerUnavailable
	}
	if err := p.Resume(); err != nil {
		return fmt.Errorf("resume playback: %w", err)
	}
	s.mu.Lock()
	s.startPollLocked()
	s.emitLocked()
	s.mu.Unlock()
	return nil
}

// StopPlayback stops the stream and releases its resource.
func (s *Session) StopPlayback() error {
	p := s.deps.Player
	if p == nil {
		return ErrPlayerUnavailable
	}
	s.mu.Lock()
	s.stopPollLocked()
	s.mu.Unlock()
	if err := p.Stop(); err != nil {
		return fmt.Errorf("stop playback: %w", err)
	}
	s.mu.Lock()
	s.emitLocked()
	s.mu.Unlock()
	return nil
}

// SeekPlayback jumps to a position in the active clip.
func (s *Session) SeekPlayback(ms int64) error {
	p := s.deps.Player
	if p == nil {
		return ErrPlayerUnavailable
	}
	if err := p.Seek(ms); err != nil {
		return fmt.Errorf("seek playback: %w", err)
	}
	s.mu.Lock()
	s.emitLocked()
	s.mu.Unlock()
	return nil
}

// startPollLocked (re)starts the position-polling loop. The loop only runs
// while a clip is actually playing; it exits the moment playback pauses,
// completes, errors, or the session closes, so no background ticker leaks.
func (s *Session) startPollLocked() {
	s.stopPollLocked()
	stop := make(chan struct{})
	s.pollStop = stop
	go s.pollPlayback(stop)
}

func (s *Session) stopPollLocked() {
	if s.pollStop != nil {
		close(s.pollStop)
		s.pollStop = nil
	}
}

func (s *Session) pollPlayback(stop <-chan struct{}) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				return
			}
			status := s.deps.Player.Status()
			s.emitLocked()
			running := status.State == PlaybackPlaying || status.State == PlaybackPreparing
			if !running && stop == s.pollStop {
				// Completed, errored, paused externally: shut the loop down.
				s.pollStop = nil
			}
			s.mu.Unlock()
			if !running {
				return
			}
		}
	}
}
