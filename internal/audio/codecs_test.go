package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func wavBytes(rate, channels int, samples []byte, extraChunk bool) []byte {
	var b bytes.Buffer
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(0))
	b.WriteString("WAVE")
	if extraChunk {
		b.WriteString("LIST")
		binary.Write(&b, binary.LittleEndian, uint32(3))
		b.Write([]byte{1, 2, 3, 0}) // odd size is padded
	}
	b.WriteString("fmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, uint16(1))
	binary.Write(&b, binary.LittleEndian, uint16(channels))
	binary.Write(&b, binary.LittleEndian, uint32(rate))
	binary.Write(&b, binary.LittleEndian, uint32(rate*channels*2))
	binary.Write(&b, binary.LittleEndian, uint16(channels*2))
	binary.Write(&b, binary.LittleEndian, uint16(16))
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(len(samples)))
	b.Write(samples)
	return b.Bytes()
}

func feed(t *testing.T, mimeType string, data []byte, chunk int) *Buffer {
	t.Helper()
	buf := NewBuffer()
	s := NewSink(DefaultCodecs(), buf)
	if err := s.Open(mimeType); err != nil {
		t.Fatalf("Open(%q): %v", mimeType, err)
	}
	ctx := context.Background()
	for len(data) > 0 {
		n := chunk
		if n > len(data) {
			n = len(data)
		}
		if err := s.Append(ctx, data[:n]); err != nil {
			t.Fatalf("Append: %v", err)
		}
		data = data[n:]
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf
}

func TestWAVDecoder(t *testing.T) {
	samples := make([]byte, 16000*2) // one second of mono 16 kHz
	for i := range samples {
		samples[i] = byte(i)
	}

	t.Run("plain", func(t *testing.T) {
		buf := feed(t, "audio/wav", wavBytes(16000, 1, samples, false), 1000)
		f, ok := buf.Format()
		if !ok || f != (Format{SampleRate: 16000, Channels: 1}) {
			t.Fatalf("format = %v (%v)", f, ok)
		}
		d, ok := buf.Duration()
		if !ok || d != 1 {
			t.Fatalf("duration = %v (%v), want 1s", d, ok)
		}
		got, err := io.ReadAll(buf.NewReader(0))
		if err != nil {
			t.Fatalf("ReadAll: %v", err)
		}
		if !bytes.Equal(got, samples) {
			t.Fatal("decoded samples differ from input")
		}
	})

	t.Run("skips unknown chunks", func(t *testing.T) {
		buf := feed(t, "audio/x-wav", wavBytes(16000, 1, samples, true), 7)
		if buf.Len() != int64(len(samples)) {
			t.Fatalf("len = %d, want %d", buf.Len(), len(samples))
		}
	})

	t.Run("rejects 8-bit", func(t *testing.T) {
		data := wavBytes(8000, 1, []byte{1, 2, 3, 4}, false)
		binary.LittleEndian.PutUint16(data[34:36], 8)

		s := NewSink(DefaultCodecs(), NewBuffer())
		if err := s.Open("audio/wav"); err != nil {
			t.Fatalf("Open: %v", err)
		}
		ctx := context.Background()
		_ = s.Append(ctx, data)
		err := s.Close(ctx)
		if !errors.Is(err, ErrDecode) || !errors.Is(err, ErrUnsupportedFormat) {
			t.Fatalf("Close = %v, want decode error wrapping ErrUnsupportedFormat", err)
		}
	})
}

func TestPCMDecoderParams(t *testing.T) {
	buf := feed(t, "audio/pcm;rate=8000;channels=2", make([]byte, 8000*4/2), 512)
	f, _ := buf.Format()
	if f != (Format{SampleRate: 8000, Channels: 2}) {
		t.Fatalf("format = %v", f)
	}
	if d, _ := buf.Duration(); d != 0.5 {
		t.Fatalf("duration = %v, want 0.5", d)
	}
	if buf.Bitrate() != 8000*4*8 {
		t.Fatalf("bitrate = %d", buf.Bitrate())
	}

	if _, err := DefaultCodecs().Lookup("audio/pcm;rate=abc"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("bad rate accepted: %v", err)
	}
}

func TestProbeMPEG(t *testing.T) {
	frame := []byte{0xFF, 0xFB, 0x90, 0x00}

	t.Run("bare frame", func(t *testing.T) {
		fi, ok := ProbeMPEG(append([]byte{0, 0, 0}, frame...))
		if !ok {
			t.Fatal("no frame found")
		}
		if fi.Bitrate != 128000 || fi.SampleRate != 44100 || fi.Offset != 3 {
			t.Fatalf("got %+v", fi)
		}
	})

	t.Run("after id3 tag", func(t *testing.T) {
		tag := []byte{'I', 'D', '3', 4, 0, 0, 0, 0, 0, 5}
		head := append(append(tag, make([]byte, 5)...), frame...)
		fi, ok := ProbeMPEG(head)
		if !ok || fi.Offset != 15 {
			t.Fatalf("got %+v (%v)", fi, ok)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, ok := ProbeMPEG([]byte("not an mp3 stream at all")); ok {
			t.Fatal("garbage probed as mpeg")
		}
	})

	t.Run("duration", func(t *testing.T) {
		data := append(frame, make([]byte, 16000-4)...)
		d, ok := EstimateMPEGDuration(data)
		if !ok || d != 1 {
			t.Fatalf("duration = %v (%v), want 1s at 128kbps", d, ok)
		}
	})
}
