package audio

import (
	"fmt"
	"io"
	"log"
	"time"

	"github.com/ebitengine/oto/v3"
)

// OtoOutput plays PCM on the default host device. oto allows a single
// context per process, so one OtoOutput is created at startup and shared;
// streams in another layout are converted to the device format.
type OtoOutput struct {
	ctx    *oto.Context
	format Format
}

func NewOtoOutput(f Format, bufferSize time.Duration) (*OtoOutput, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("audio output: invalid format %s", f)
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   f.SampleRate,
		ChannelCount: f.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   bufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("audio output: %w", err)
	}
	<-ready
	log.Printf("AUDIO: output ready (%s)", f)
	return &OtoOutput{ctx: ctx, format: f}, nil
}

func (o *OtoOutput) NewStream(f Format, r io.Reader) (Stream, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("audio stream: invalid format %s", f)
	}
	src := r
	if f != o.format {
		src = NewConverter(r, f, o.format)
	}
	return &otoStream{
		p:     o.ctx.NewPlayer(src),
		ratio: float64(f.BytesPerSecond()) / float64(o.format.BytesPerSecond()),
	}, nil
}

// Suspend pauses the whole device; Resume restarts it.
func (o *OtoOutput) Suspend() error { return o.ctx.Suspend() }
func (o *OtoOutput) Resume() error  { return o.ctx.Resume() }

type otoStream struct {
	p     *oto.Player
	ratio float64 // source bytes per device byte
}

func (s *otoStream) Play()         { s.p.Play() }
func (s *otoStream) Playing() bool { return s.p.IsPlaying() }

func (s *otoStream) Queued() int {
	return int(float64(s.p.BufferedSize()) * s.ratio)
}

func (s *otoStream) Close() error {
	s.p.Pause()
	return s.p.Close()
}
