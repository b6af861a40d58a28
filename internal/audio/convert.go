package audio

import (
	"encoding/binary"
	"errors"
	"io"
)

// Converter rewrites s16le PCM from one layout to another: mono/stereo
// up- and down-mixing and nearest-frame resampling.
type Converter struct {
	src      io.Reader
	from, to Format

	in   []byte
	pos  float64 // source frame index relative to in[0]
	step float64 // source frames per output frame
	eof  bool
	err  error
	tmp  []byte
}

func NewConverter(src io.Reader, from, to Format) *Converter {
	return &Converter{
		src:  src,
		from: from,
		to:   to,
		step: float64(from.SampleRate) / float64(to.SampleRate),
		tmp:  make([]byte, 4096),
	}
}

func (c *Converter) Read(p []byte) (int, error) {
	outSize := c.to.FrameSize()
	inSize := c.from.FrameSize()
	if len(p) < outSize {
		return 0, io.ErrShortBuffer
	}

	n := 0
	for n+outSize <= len(p) {
		idx := int(c.pos)
		if (idx+1)*inSize > len(c.in) {
			if n > 0 {
				break
			}
			if c.eof {
				if c.err != nil {
					return 0, c.err
				}
				return 0, io.EOF
			}
			c.compact()
			c.fill()
			continue
		}
		c.mix(p[n:n+outSize], c.in[idx*inSize:(idx+1)*inSize])
		n += outSize
		c.pos += c.step
	}
	return n, nil
}

func (c *Converter) compact() {
	k := int(c.pos)
	if k == 0 {
		return
	}
	drop := k * c.from.FrameSize()
	if drop > len(c.in) {
		drop = len(c.in) - len(c.in)%c.from.FrameSize()
		k = drop / c.from.FrameSize()
	}
	c.in = append(c.in[:0], c.in[drop:]...)
	c.pos -= float64(k)
}

func (c *Converter) fill() {
	m, err := c.src.Read(c.tmp)
	c.in = append(c.in, c.tmp[:m]...)
	if err != nil {
		c.eof = true
		if !errors.Is(err, io.EOF) {
			c.err = err
		}
	}
}

func (c *Converter) mix(dst, frame []byte) {
	switch {
	case c.from.Channels == c.to.Channels:
		copy(dst, frame)
	case c.from.Channels == 1:
		for ch := 0; ch < c.to.Channels; ch++ {
			copy(dst[ch*2:ch*2+2], frame[0:2])
		}
	default:
		var sum int
		for ch := 0; ch < c.from.Channels; ch++ {
			sum += int(int16(binary.LittleEndian.Uint16(frame[ch*2:])))
		}
		v := uint16(int16(sum / c.from.Channels))
		for ch := 0; ch < c.to.Channels; ch++ {
			binary.LittleEndian.PutUint16(dst[ch*2:], v)
		}
	}
}
