package audio

import (
	"bytes"
	"errors"
	"io"
	"os"
	"testing"
)

func pcmPattern(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i % 251)
	}
	return p
}

func TestBufferSpillsPastMemoryLimit(t *testing.T) {
	dir := t.TempDir()
	b := NewBufferWith(BufferOptions{MemoryLimit: 1024, Dir: dir})
	b.SetFormat(Format{SampleRate: 8000, Channels: 1})
	want := pcmPattern(10 * 512)

	for i := 0; i < 10; i++ {
		if _, err := b.Write(want[i*512 : (i+1)*512]); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		if r := b.Resident(); r > 1024 {
			t.Fatalf("after write %d: %d bytes resident, limit 1024", i, r)
		}
	}
	b.Finish(nil)

	if !b.Spilled() || b.Resident() != 0 {
		t.Fatalf("spilled=%v resident=%d", b.Spilled(), b.Resident())
	}
	if b.Len() != int64(len(want)) {
		t.Fatalf("Len = %d", b.Len())
	}

	got, err := io.ReadAll(b.NewReader(0))
	if err != nil || !bytes.Equal(got, want) {
		t.Fatalf("read back %d bytes, err %v", len(got), err)
	}
	tail, err := io.ReadAll(b.NewReader(3000))
	if err != nil || !bytes.Equal(tail, want[3000:]) {
		t.Fatalf("read from offset: %d bytes, err %v", len(tail), err)
	}

	b.Release()
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("spill file left behind: %v", entries)
	}
}

func TestBufferInMemoryBelowLimit(t *testing.T) {
	dir := t.TempDir()
	b := NewBufferWith(BufferOptions{MemoryLimit: 4096, Dir: dir})
	b.Write(pcmPattern(4096))
	if b.Spilled() || b.Resident() != 4096 {
		t.Fatalf("spilled=%v resident=%d", b.Spilled(), b.Resident())
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Fatalf("unexpected spill file: %v", entries)
	}
}

func TestBufferMaxBytes(t *testing.T) {
	b := NewBufferWith(BufferOptions{MaxBytes: 1000, Dir: t.TempDir()})
	if _, err := b.Write(make([]byte, 600)); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if _, err := b.Write(make([]byte, 600)); !errors.Is(err, ErrTooLong) {
		t.Fatalf("write past cap = %v, want ErrTooLong", err)
	}
	if b.Len() != 600 {
		t.Fatalf("Len = %d after refused write", b.Len())
	}
}

func TestSinkFailsWhenAudioOutgrowsCap(t *testing.T) {
	buf := NewBufferWith(BufferOptions{MaxBytes: 64, Dir: t.TempDir()})
	s := NewSink(nil, buf)
	if err := s.Open("audio/pcm;rate=8000"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := t.Context()
	// the failure may surface on Append or only on Close
	s.Append(ctx, make([]byte, 128))
	err := s.Close(ctx)
	if !errors.Is(err, ErrDecode) || !errors.Is(err, ErrTooLong) {
		t.Fatalf("Close = %v, want ErrDecode wrapping ErrTooLong", err)
	}
}
