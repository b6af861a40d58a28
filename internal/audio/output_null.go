package audio

import (
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// NullOutput consumes streams in real time without a device, for hosts
// without a sound card and for muted runs.
type NullOutput struct{}

func (NullOutput) NewStream(f Format, r io.Reader) (Stream, error) {
	return &nullStream{f: f, r: r, stop: make(chan struct{})}, nil
}

type nullStream struct {
	f       Format
	r       io.Reader
	start   sync.Once
	close   sync.Once
	stop    chan struct{}
	playing atomic.Bool
}

func (s *nullStream) Play() {
	s.start.Do(func() {
		s.playing.Store(true)
		go s.loop()
	})
}

func (s *nullStream) loop() {
	defer s.playing.Store(false)
	const tick = 20 * time.Millisecond
	per := s.f.BytesPerSecond() / int(time.Second/tick)
	per -= per % s.f.FrameSize()
	buf := make([]byte, per)

	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			if _, err := io.ReadFull(s.r, buf); err != nil {
				return
			}
		}
	}
}

func (s *nullStream) Playing() bool { return s.playing.Load() }
func (s *nullStream) Queued() int   { return 0 }

func (s *nullStream) Close() error {
	s.close.Do(func() { close(s.stop) })
	return nil
}
