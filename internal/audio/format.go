package audio

import "fmt"

// Format describes interleaved signed 16-bit little endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// Valid reports whether f describes a playable layout.
func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Channels > 0
}

// FrameSize is the number of bytes per sample frame.
func (f Format) FrameSize() int { return f.Channels * 2 }

// BytesPerSecond is the PCM byte rate.
func (f Format) BytesPerSecond() int { return f.SampleRate * f.FrameSize() }

// Seconds converts a byte count to playback time.
func (f Format) Seconds(n int64) float64 {
	if !f.Valid() {
		return 0
	}
	return float64(n) / float64(f.BytesPerSecond())
}

// Offset converts playback time to a frame-aligned byte offset.
func (f Format) Offset(seconds float64) int64 {
	if !f.Valid() || seconds <= 0 {
		return 0
	}
	frames := int64(seconds * float64(f.SampleRate))
	return frames * int64(f.FrameSize())
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/s16le", f.SampleRate, f.Channels)
}
