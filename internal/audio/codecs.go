package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"mime"
	"strconv"

	"github.com/hajimehoshi/go-mp3"
)

// Decoder turns an encoded byte stream into PCM. Decode returns when r is
// exhausted or on the first error; it must keep reading r until then.
type Decoder interface {
	Decode(r io.Reader, dst *Buffer) error
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(r io.Reader, dst *Buffer) error

func (f DecoderFunc) Decode(r io.Reader, dst *Buffer) error { return f(r, dst) }

// Codecs maps a base MIME type to a decoder constructor that receives the
// MIME parameters.
type Codecs map[string]func(params map[string]string) (Decoder, error)

// DefaultCodecs covers what the speech providers emit.
func DefaultCodecs() Codecs {
	return Codecs{
		"audio/mpeg":  newMPEGDecoder,
		"audio/mp3":   newMPEGDecoder,
		"audio/wav":   newWAVDecoder,
		"audio/wave":  newWAVDecoder,
		"audio/x-wav": newWAVDecoder,
		"audio/pcm":   newPCMDecoder,
	}
}

// Lookup parses mimeType and returns the decoder registered for it.
func (c Codecs) Lookup(mimeType string) (Decoder, error) {
	mt, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, mimeType)
	}
	newDec, ok := c[mt]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mt)
	}
	return newDec(params)
}

// ── raw PCM ─────────────────────────────────────────────────────────────────

func newPCMDecoder(params map[string]string) (Decoder, error) {
	f := Format{SampleRate: 24000, Channels: 1}
	if v, ok := params["rate"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: bad rate %q", ErrUnsupportedFormat, v)
		}
		f.SampleRate = n
	}
	if v, ok := params["channels"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 2 {
			return nil, fmt.Errorf("%w: bad channels %q", ErrUnsupportedFormat, v)
		}
		f.Channels = n
	}
	return DecoderFunc(func(r io.Reader, dst *Buffer) error {
		dst.SetFormat(f)
		dst.SetBitrate(f.BytesPerSecond() * 8)
		_, err := io.Copy(dst, r)
		return err
	}), nil
}

// ── WAV ─────────────────────────────────────────────────────────────────────

func newWAVDecoder(map[string]string) (Decoder, error) {
	return DecoderFunc(decodeWAV), nil
}

// decodeWAV walks the RIFF chunks until "data", then passes samples through.
// A data size of 0 or 0xFFFFFFFF is treated as "until end of stream", which is
// what streaming providers send.
func decodeWAV(r io.Reader, dst *Buffer) error {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return fmt.Errorf("read riff header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return errors.New("not a RIFF/WAVE stream")
	}

	var f Format
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return fmt.Errorf("read chunk header: %w", err)
		}
		id := string(hdr[0:4])
		size := binary.LittleEndian.Uint32(hdr[4:8])

		switch id {
		case "fmt ":
			body := make([]byte, size+size&1)
			if _, err := io.ReadFull(r, body); err != nil {
				return fmt.Errorf("read fmt chunk: %w", err)
			}
			if size < 16 {
				return errors.New("short fmt chunk")
			}
			audioFormat := binary.LittleEndian.Uint16(body[0:2])
			channels := binary.LittleEndian.Uint16(body[2:4])
			rate := binary.LittleEndian.Uint32(body[4:8])
			bits := binary.LittleEndian.Uint16(body[14:16])
			if audioFormat != 1 || bits != 16 {
				return fmt.Errorf("%w: wav format %d with %d bits", ErrUnsupportedFormat, audioFormat, bits)
			}
			f = Format{SampleRate: int(rate), Channels: int(channels)}

		case "data":
			if !f.Valid() {
				return errors.New("data chunk before fmt chunk")
			}
			dst.SetFormat(f)
			dst.SetBitrate(f.BytesPerSecond() * 8)
			if size == 0 || size == 0xFFFFFFFF {
				_, err := io.Copy(dst, r)
				return err
			}
			dst.SetExpected(int64(size))
			if _, err := io.CopyN(dst, r, int64(size)); err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			// trailing chunks carry no audio
			_, err := io.Copy(io.Discard, r)
			return err

		default:
			if _, err := io.CopyN(io.Discard, r, int64(size+size&1)); err != nil {
				return fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
	}
}

// ── MP3 ─────────────────────────────────────────────────────────────────────

const probeWindow = 4096

func newMPEGDecoder(map[string]string) (Decoder, error) {
	return DecoderFunc(decodeMPEG), nil
}

func decodeMPEG(r io.Reader, dst *Buffer) error {
	br := bufio.NewReaderSize(r, probeWindow)
	head, _ := br.Peek(probeWindow)
	if fi, ok := ProbeMPEG(head); ok {
		dst.SetBitrate(fi.Bitrate)
	}

	d, err := mp3.NewDecoder(br)
	if err != nil {
		return err
	}
	// go-mp3 always emits 16-bit stereo
	dst.SetFormat(Format{SampleRate: d.SampleRate(), Channels: 2})
	if _, err := io.Copy(dst, d); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return err
	}
	// drain whatever the decoder left behind so the producer never blocks
	_, err = io.Copy(io.Discard, br)
	return err
}
