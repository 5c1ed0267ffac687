package session

import (
	"errors"
	"fmt"
)

var ErrSpeechUnavailable = errors.New("speech recognition unavailable")

// StartSpeech begins dictation. Final transcripts append at the cursor.
// Speech and audio recording are mutually exclusive: both need the
// microphone, so starting one while the other is active is rejected.
func (s *Session) StartSpeech(languageTag string) error {
	sp := s.deps.Speech
	if sp == nil || !sp.Available() {
		s.mu.Lock()
		s.setErrLocked("speech recognition is not available on this device")
		s.mu.Unlock()
		return ErrSpeechUnavailable
	}
	if sp.Listening() {
		return nil
	}
	if r := s.deps.Recorder; r != nil && r.Active() {
		s.mu.Lock()
		s.setErrLocked("stop the audio recording before using voice input")
		s.mu.Unlock()
		return ErrMicrophoneBusy
	}

	if err := sp.Start(languageTag); err != nil {
		s.mu.Lock()
		s.setErrLocked("could not start voice input")
		s.mu.Unlock()
		return fmt.Errorf("start speech: %w", err)
	}

	s.mu.Lock()
	stop := make(chan struct{})
	s.sttStop = stop
	s.emitLocked()
	s.mu.Unlock()

	s.sttWG.Add(1)
	go s.consumeSpeech(stop)
	return nil
}

// StopSpeech ends dictation. Safe to call when nothing is listening.
func (s *Session) StopSpeech() error {
	sp := s.deps.Speech
	if sp == nil {
		return nil
	}
	if err := sp.Stop(); err != nil {
		return fmt.Errorf("stop speech: %w", err)
	}
	s.mu.Lock()
	s.emitLocked()
	s.mu.Unlock()
	return nil
}

// consumeSpeech drains transcript and error streams until both close or the
// session tears down.
func (s *Session) consumeSpeech(stop <-chan struct{}) {
	defer s.sttWG.Done()
	results := s.deps.Speech.Results()
	errs := s.deps.Speech.Errors()

	for results != nil || errs != nil {
		select {
		case t, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			s.appendTranscript(t)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.log.Warn("speech recognition", "err", err)
			s.mu.Lock()
			if !s.closed {
				s.setErrLocked("voice input failed")
			}
			s.mu.Unlock()
		case <-stop:
			return
		}
	}
}

func (s *Session) appendTranscript(text string) {
	s.mu.Lock()
	if s.closed || text == "" {
		s.mu.Unlock()
		return
	}
	s.insertAtSelectionLocked(text)
	s.emitLocked()
	s.mu.Unlock()
	s.scheduleSync()
}

// stopSpeechTeardown releases the recognizer and its consumer during Close.
func (s *Session) stopSpeechTeardown() {
	if sp := s.deps.Speech; sp != nil && sp.Listening() {
		if err := sp.Stop(); err != nil {
			s.log.Warn("stop speech on teardown", "err", err)
		}
	}
	s.mu.Lock()
	stop := s.sttStop
	s.sttStop = nil
	s.mu.Unlock()
	if stop != nil {
		close(stop)
	}
	s.sttWG.Wait()
}
