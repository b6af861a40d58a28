package audio

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
)

func pcm16(vals ...int16) []byte {
	b := make([]byte, len(vals)*2)
	for i, v := range vals {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(v))
	}
	return b
}

func TestConverterMonoToStereo(t *testing.T) {
	in := pcm16(1, 2, 3)
	c := NewConverter(bytes.NewReader(in), Format{SampleRate: 100, Channels: 1}, Format{SampleRate: 100, Channels: 2})
	got, err := io.ReadAll(c)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if want := pcm16(1, 1, 2, 2, 3, 3); !bytes.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestConverterStereoToMonoAverages(t *testing.T) {
	in := pcm16(10, 20, -10, -30)
	c := NewConverter(bytes.NewReader(in), Format{SampleRate: 100, Channels: 2}, Format{SampleRate: 100, Channels: 1})
	got, _ := io.ReadAll(c)
	if want := pcm16(15, -20); !bytes.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestConverterUpsamples(t *testing.T) {
	in := pcm16(1, 2, 3, 4)
	c := NewConverter(bytes.NewReader(in), Format{SampleRate: 100, Channels: 1}, Format{SampleRate: 200, Channels: 1})
	got, _ := io.ReadAll(c)
	if want := pcm16(1, 1, 2, 2, 3, 3, 4, 4); !bytes.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestConverterDownsamples(t *testing.T) {
	in := pcm16(1, 2, 3, 4, 5, 6)
	c := NewConverter(bytes.NewReader(in), Format{SampleRate: 300, Channels: 1}, Format{SampleRate: 100, Channels: 1})
	got, _ := io.ReadAll(c)
	if want := pcm16(1, 4); !bytes.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
