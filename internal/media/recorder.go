// Package media implements the device-facing collaborators: a microphone
// recorder and a clip player over PortAudio, plus WAV metadata helpers.
package media

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/gordonklaus/portaudio"
)

const (
	sampleRate      = 44100
	channelCount    = 1
	bitDepth        = 16
	framesPerBuffer = 1024
)

var paInit sync.Once

func initPortAudio() error {
	var err error
	paInit.Do(func() {
		err = portaudio.Initialize()
	})
	return err
}

// Recorder captures microphone input into WAV files under a directory. At
// most one recording is active per Recorder.
type Recorder struct {
	dir string

	mu        sync.Mutex
	stream    *portaudio.Stream
	file      *os.File
	path      string
	dataBytes uint32
	active    bool
}

// NewRecorder creates a recorder writing clips into dir.
func NewRecorder(dir string) *Recorder {
	return &Recorder{dir: dir}
}

// createOutputFile allocates a fresh uuid-named clip file.
func (r *Recorder) createOutputFile() (*os.File, string, error) {
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return nil, "", fmt.Errorf("create recordings dir: %w", err)
	}
	path := filepath.Join(r.dir, uuid.New().String()+".wav")
	f, err := os.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("create recording file: %w", err)
	}
	return f, path, nil
}

// Start opens the default input device and begins streaming samples into a
// new file.
func (r *Recorder) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		return fmt.Errorf("recording already in progress")
	}
	if err := initPortAudio(); err != nil {
		return fmt.Errorf("init audio: %w", err)
	}

	f, path, err := r.createOutputFile()
	if err != nil {
		return err
	}
	if err := writeWAVHeader(f, sampleRate, channelCount, bitDepth, 0); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write wav header: %w", err)
	}

	stream, err := portaudio.OpenDefaultStream(channelCount, 0, float64(sampleRate), framesPerBuffer, r.capture)
	if err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("open input stream: %w", err)
	}

	r.file = f
	r.path = path
	r.dataBytes = 0
	r.stream = stream
	if err := stream.Start(); err != nil {
		stream.Close()
		f.Close()
		os.Remove(path)
		r.stream, r.file, r.path = nil, nil, ""
		return fmt.Errorf("start input stream: %w", err)
	}
	r.active = true
	return nil
}

// capture is the input-stream callback appending samples to the clip file.
func (r *Recorder) capture(in []int16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return
	}
	if err := binary.Write(r.file, binary.LittleEndian, in); err != nil {
		slog.Warn("write audio samples", "err", err)
		return
	}
	r.dataBytes += uint32(len(in) * 2)
}

// Stop ends the recording, patches the WAV header with the final data size,
// and returns the clip's path.
func (r *Recorder) Stop(_ context.Context) (string, error) {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return "", fmt.Errorf("no active recording")
	}
	stream := r.stream
	r.stream = nil
	r.active = false
	r.mu.Unlock()

	// Stopping waits for in-flight capture callbacks, so the lock must not
	// be held here.
	if err := stream.Stop(); err != nil {
		slog.Warn("stop input stream", "err", err)
	}
	if err := stream.Close(); err != nil {
		slog.Warn("close input stream", "err", err)
	}

	r.mu.Lock()
	f, path, dataBytes := r.file, r.path, r.dataBytes
	r.file, r.path = nil, ""
	r.mu.Unlock()

	if err := finalizeWAVHeader(f, dataBytes); err != nil {
		f.Close()
		return "", fmt.Errorf("finalize wav header: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close recording file: %w", err)
	}
	return path, nil
}

// Active reports whether a recording is in progress.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}
