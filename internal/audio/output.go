package audio

import "io"

// Stream is one playback of PCM pulled from a reader.
type Stream interface {
	Play()
	// Playing turns false once the source is exhausted and the device drained.
	Playing() bool
	// Queued is the number of source bytes read but not yet audible.
	Queued() int
	Close() error
}

// Output opens streams on an audio device. Streams may run concurrently and
// are mixed by the device.
type Output interface {
	NewStream(f Format, r io.Reader) (Stream, error)
}
