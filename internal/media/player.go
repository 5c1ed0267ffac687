package media

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/SarcasticNickname/AudioNotes-sub000/internal/session"
)

// Player plays WAV clips on the default output device. One stream at a time:
// Play on a busy player releases the previous stream first.
type Player struct {
	mu         sync.Mutex
	stream     *portaudio.Stream
	data       []int16
	pos        int
	sampleRate int
	channels   int
	clipID     int64
	state      session.PlaybackState
}

// NewPlayer creates an idle player.
func NewPlayer() *Player {
	return &Player{state: session.PlaybackIdle}
}

// Play loads the clip and starts streaming it from the beginning.
func (p *Player) Play(path string, clipID int64) error {
	if err := p.Stop(); err != nil {
		slog.Warn("release previous stream", "err", err)
	}
	if err := initPortAudio(); err != nil {
		return fmt.Errorf("init audio: %w", err)
	}

	p.mu.Lock()
	p.state = session.PlaybackPreparing
	p.clipID = clipID
	p.mu.Unlock()

	data, rate, channels, err := readWAVData(path)
	if err != nil {
		p.fail()
		return err
	}

	stream, err := portaudio.OpenDefaultStream(0, channels, float64(rate), framesPerBuffer, p.feed)
	if err != nil {
		p.fail()
		return fmt.Errorf("open output stream: %w", err)
	}

	p.mu.Lock()
	p.stream = stream
	p.data = data
	p.pos = 0
	p.sampleRate = rate
	p.channels = channels
	p.mu.Unlock()

	if err := stream.Start(); err != nil {
		p.fail()
		stream.Close()
		return fmt.Errorf("start output stream: %w", err)
	}

	p.mu.Lock()
	p.state = session.PlaybackPlaying
	p.mu.Unlock()
	return nil
}

// feed is the output-stream callback. Past the end of the clip it emits
// silence and flips the state to completed; the stream itself is released
// lazily by the next Stop/Play.
func (p *Player) feed(out []int16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range out {
		if p.pos < len(p.data) {
			out[i] = p.data[p.pos]
			p.pos++
		} else {
			out[i] = 0
		}
	}
	if p.pos >= len(p.data) && p.state == session.PlaybackPlaying {
		p.state = session.PlaybackCompleted
	}
}

// Pause halts the stream, keeping the position.
func (p *Player) Pause() error {
	p.mu.Lock()
	stream, state := p.stream, p.state
	if stream == nil || state != session.PlaybackPlaying {
		p.mu.Unlock()
		return nil
	}
	p.state = session.PlaybackPaused
	p.mu.Unlock()

	if err := stream.Stop(); err != nil {
		return fmt.Errorf("pause stream: %w", err)
	}
	return nil
}

// Resume continues a paused clip.
func (p *Player) Resume() error {
	p.mu.Lock()
	stream, state := p.stream, p.state
	if stream == nil || state != session.PlaybackPaused {
		p.mu.Unlock()
		return nil
	}
	p.state = session.PlaybackPlaying
	p.mu.Unlock()

	if err := stream.Start(); err != nil {
		p.fail()
		return fmt.Errorf("resume stream: %w", err)
	}
	return nil
}

// Stop releases the stream and resets to idle. Safe on an idle player.
func (p *Player) Stop() error {
	p.mu.Lock()
	stream := p.stream
	p.stream = nil
	wasRunning := p.state == session.PlaybackPlaying || p.state == session.PlaybackPreparing
	p.state = session.PlaybackIdle
	p.clipID = 0
	p.data = nil
	p.pos = 0
	p.mu.Unlock()

	if stream == nil {
		return nil
	}
	if wasRunning {
		if err := stream.Stop(); err != nil {
			slog.Warn("stop output stream", "err", err)
		}
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("close output stream: %w", err)
	}
	return nil
}

// Seek jumps to a position within the loaded clip.
func (p *Player) Seek(ms int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.data == nil || p.sampleRate == 0 {
		return fmt.Errorf("no clip loaded")
	}
	pos := int(ms) * p.sampleRate * p.channels / 1000
	if pos < 0 {
		pos = 0
	}
	if pos > len(p.data) {
		pos = len(p.data)
	}
	p.pos = pos
	// The stream keeps running after completion (feed emits silence), so a
	// seek back into the clip resumes playing on the live stream. Flipping
	// to paused here would make the next Resume call Start on an already
	// started stream.
	if p.state == session.PlaybackCompleted {
		p.state = session.PlaybackPlaying
	}
	return nil
}

// Status reports the player's current state and clip position.
func (p *Player) Status() session.PlaybackStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := session.PlaybackStatus{State: p.state, ClipID: p.clipID}
	if p.sampleRate > 0 && p.channels > 0 {
		frames := p.sampleRate * p.channels
		st.PositionMs = int64(p.pos) * 1000 / int64(frames)
		st.DurationMs = int64(len(p.data)) * 1000 / int64(frames)
	}
	return st
}

func (p *Player) fail() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = session.PlaybackError
}
