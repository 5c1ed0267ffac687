package media

import "fmt"

// UnsupportedSpeech is the speech-to-text adapter for platforms without a
// recognition backend. It reports unavailable so callers can disable dictation
// rather than fail mid-session.
type UnsupportedSpeech struct{}

func (UnsupportedSpeech) Available() bool { return false }

func (UnsupportedSpeech) Start(languageTag string) error {
	return fmt.Errorf("speech recognition not supported on this platform")
}

func (UnsupportedSpeech) Stop() error { return nil }

func (UnsupportedSpeech) Listening() bool { return false }

func (UnsupportedSpeech) Results() <-chan string { return nil }

func (UnsupportedSpeech) Errors() <-chan error { return nil }
