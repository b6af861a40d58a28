package audio

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// DefaultMemoryLimit is the PCM a Buffer keeps in RAM before it moves to a
// temp file: about three minutes of 44.1 kHz stereo.
const DefaultMemoryLimit = 32 << 20

type BufferOptions struct {
	// MemoryLimit is the PCM held in RAM. Past it the buffer spills to a
	// temp file and keeps no PCM in memory. 0 means DefaultMemoryLimit and a
	// negative value never spills.
	MemoryLimit int64
	// MaxBytes caps the total PCM; writes past it fail with ErrTooLong.
	// 0 means no cap.
	MaxBytes int64
	// Dir holds the spill file; empty means os.TempDir.
	Dir string
}

// Buffer is the decoded PCM store behind one playable resource. Decoders
// write into it while readers consume it from arbitrary offsets; readers
// block until data past their offset exists or the buffer is finished.
type Buffer struct {
	mu   sync.Mutex
	cond *sync.Cond
	opt  BufferOptions

	format    Format
	hasFormat bool
	bitrate   int   // encoded bits per second, 0 when unknown
	expected  int64 // total PCM bytes announced by the container, 0 when unknown

	// PCM lives in data until it outgrows the memory limit, then in file.
	data     []byte
	file     *os.File
	size     int64
	done     bool
	err      error
	released bool
}

func NewBuffer() *Buffer { return NewBufferWith(BufferOptions{}) }

func NewBufferWith(opt BufferOptions) *Buffer {
	if opt.MemoryLimit == 0 {
		opt.MemoryLimit = DefaultMemoryLimit
	}
	b := &Buffer{opt: opt}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// SetFormat records the PCM layout. Decoders call it before the first Write.
func (b *Buffer) SetFormat(f Format) {
	b.mu.Lock()
	b.format = f
	b.hasFormat = f.Valid()
	b.mu.Unlock()
	b.cond.Broadcast()
}

func (b *Buffer) Format() (Format, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.format, b.hasFormat
}

// SetBitrate records the bitrate of the encoded source.
func (b *Buffer) SetBitrate(bps int) {
	b.mu.Lock()
	b.bitrate = bps
	b.mu.Unlock()
}

func (b *Buffer) Bitrate() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bitrate
}

// SetExpected records the total PCM size when the container announces it.
func (b *Buffer) SetExpected(n int64) {
	b.mu.Lock()
	b.expected = n
	b.mu.Unlock()
}

// Write appends decoded PCM. It implements io.Writer for decoders.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return 0, ErrReleased
	}
	if b.done {
		b.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	if err := b.appendLocked(p); err != nil {
		b.mu.Unlock()
		return 0, err
	}
	b.mu.Unlock()
	b.cond.Broadcast()
	return len(p), nil
}

func (b *Buffer) appendLocked(p []byte) error {
	next := b.size + int64(len(p))
	if b.opt.MaxBytes > 0 && next > b.opt.MaxBytes {
		return fmt.Errorf("%w: more than %d MiB of audio", ErrTooLong, b.opt.MaxBytes>>20)
	}
	if b.file == nil && b.opt.MemoryLimit >= 0 && next > b.opt.MemoryLimit {
		if err := b.spillLocked(); err != nil {
			return err
		}
	}
	if b.file != nil {
		if _, err := b.file.WriteAt(p, b.size); err != nil {
			return fmt.Errorf("write spill file: %w", err)
		}
	} else {
		b.data = append(b.data, p...)
	}
	b.size = next
	return nil
}

// spillLocked moves the PCM held in memory to a temp file.
func (b *Buffer) spillLocked() error {
	f, err := os.CreateTemp(b.opt.Dir, "echo-pcm-*.raw")
	if err != nil {
		return fmt.Errorf("create spill file: %w", err)
	}
	if _, err := f.WriteAt(b.data, 0); err != nil {
		f.Close()
		os.Remove(f.Name())
		return fmt.Errorf("write spill file: %w", err)
	}
	b.file = f
	b.data = nil
	return nil
}

// Resident is the number of PCM bytes held in memory.
func (b *Buffer) Resident() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.data))
}

// Spilled reports whether the PCM moved to a temp file.
func (b *Buffer) Spilled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file != nil
}

func (b *Buffer) readAtLocked(p []byte, off int64) (int, error) {
	if n := b.size - off; int64(len(p)) > n {
		p = p[:n]
	}
	if b.file == nil {
		return copy(p, b.data[off:]), nil
	}
	n, err := b.file.ReadAt(p, off)
	if n == len(p) {
		return n, nil
	}
	return n, fmt.Errorf("read spill file: %w", err)
}

// Finish marks the end of decoded data. err is handed to readers that reach
// the end; nil means a clean io.EOF.
func (b *Buffer) Finish(err error) {
	b.mu.Lock()
	if !b.done {
		b.done = true
		b.err = err
	}
	b.mu.Unlock()
	b.cond.Broadcast()
}

// Len is the number of PCM bytes decoded so far.
func (b *Buffer) Len() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Complete reports whether the decoder finished without error.
func (b *Buffer) Complete() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done && b.err == nil && !b.released
}

func (b *Buffer) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Buffered is the amount of decoded audio in seconds.
func (b *Buffer) Buffered() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.format.Seconds(b.size)
}

// Duration returns the total length when it is known: either the buffer is
// complete or the container announced its size.
func (b *Buffer) Duration() (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.hasFormat || b.released {
		return 0, false
	}
	if b.done && b.err == nil {
		return b.format.Seconds(b.size), true
	}
	if b.expected > 0 {
		return b.format.Seconds(b.expected), true
	}
	return 0, false
}

// Release drops the decoded data and the spill file, then wakes every
// blocked reader. The buffer is unusable afterwards.
func (b *Buffer) Release() {
	b.mu.Lock()
	b.released = true
	b.done = true
	b.data = nil
	if b.file != nil {
		b.file.Close()
		os.Remove(b.file.Name())
		b.file = nil
	}
	b.mu.Unlock()
	b.cond.Broadcast()
}

// WaitFor blocks until at least n bytes are decoded, the buffer finished, or
// stop is closed. It returns the current length.
func (b *Buffer) WaitFor(n int64, stop <-chan struct{}) int64 {
	if stop != nil {
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-stop:
				b.mu.Lock()
				b.mu.Unlock()
				b.cond.Broadcast()
			case <-done:
			}
		}()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for b.size < n && !b.done {
		if stop != nil {
			select {
			case <-stop:
				return b.size
			default:
			}
		}
		b.cond.Wait()
	}
	return b.size
}

// NewReader returns a reader positioned at offset.
func (b *Buffer) NewReader(offset int64) *Reader {
	if offset < 0 {
		offset = 0
	}
	return &Reader{buf: b, off: offset}
}

// Reader reads PCM from a Buffer, blocking at the write frontier.
type Reader struct {
	buf    *Buffer
	off    int64
	closed bool
}

func (r *Reader) Read(p []byte) (int, error) {
	b := r.buf
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		if r.closed {
			return 0, io.ErrClosedPipe
		}
		if b.released {
			return 0, ErrReleased
		}
		if r.off < b.size {
			n, err := b.readAtLocked(p, r.off)
			r.off += int64(n)
			return n, err
		}
		if b.done {
			if b.err != nil {
				return 0, b.err
			}
			return 0, io.EOF
		}
		b.cond.Wait()
	}
}

// Offset is the position of the next byte to be read.
func (r *Reader) Offset() int64 {
	r.buf.mu.Lock()
	defer r.buf.mu.Unlock()
	return r.off
}

// Close unblocks a pending Read.
func (r *Reader) Close() error {
	r.buf.mu.Lock()
	r.closed = true
	r.buf.mu.Unlock()
	r.buf.cond.Broadcast()
	return nil
}
