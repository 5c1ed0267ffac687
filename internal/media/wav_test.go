package media

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestClip(t *testing.T, seconds float64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	frames := int(seconds * sampleRate)
	dataSize := uint32(frames * channelCount * bitDepth / 8)
	require.NoError(t, writeWAVHeader(f, sampleRate, channelCount, bitDepth, 0))
	samples := make([]int16, frames*channelCount)
	for i := range samples {
		samples[i] = int16(i % 128)
	}
	require.NoError(t, binary.Write(f, binary.LittleEndian, samples))
	require.NoError(t, finalizeWAVHeader(f, dataSize))
	return path
}

func TestProbeReportsDuration(t *testing.T) {
	path := writeTestClip(t, 1.5)

	d, err := WAVProber{}.Probe(path)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, d.Seconds(), 0.01)
}

func TestProbeRejectsNonWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a riff file at all.."), 0644))

	_, err := WAVProber{}.Probe(path)
	assert.Error(t, err)
}

func TestReadWAVDataRoundTrip(t *testing.T) {
	path := writeTestClip(t, 0.25)

	samples, rate, channels, err := readWAVData(path)
	require.NoError(t, err)
	assert.Equal(t, sampleRate, rate)
	assert.Equal(t, channelCount, channels)
	assert.Len(t, samples, int(0.25*sampleRate))
	assert.Equal(t, int16(5), samples[5])
}

func TestProbeMissingFile(t *testing.T) {
	_, err := WAVProber{}.Probe(filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)
}

func TestFinalizePatchesHeaderOnly(t *testing.T) {
	path := writeTestClip(t, 0.1)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	require.NoError(t, err)
	require.NoError(t, finalizeWAVHeader(f, binary.LittleEndian.Uint32(before[40:44])))
	require.NoError(t, f.Close())

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	d, err := WAVProber{}.Probe(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, d.Seconds(), 0.01)
}

func TestProbedDurationMatchesPlayerMath(t *testing.T) {
	path := writeTestClip(t, 2)

	samples, rate, channels, err := readWAVData(path)
	require.NoError(t, err)
	playerMs := int64(len(samples)) * 1000 / int64(rate*channels)

	d, err := WAVProber{}.Probe(path)
	require.NoError(t, err)
	assert.Equal(t, playerMs, d.Milliseconds())
}
