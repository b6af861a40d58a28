//go:build linux

package voice

import (
	"context"
	"fmt"
	"log"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/webrtc/v4"
)

// DeviceMicrophone captures the default host microphone through
// pion/mediadevices (malgo on Linux) and encodes it to Opus.
type DeviceMicrophone struct {
	selector *mediadevices.CodecSelector
}

func NewDeviceMicrophone() (*DeviceMicrophone, error) {
	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}
	return &DeviceMicrophone{
		selector: mediadevices.NewCodecSelector(mediadevices.WithAudioEncoders(&opusParams)),
	}, nil
}

func (m *DeviceMicrophone) RegisterCodecs(me *webrtc.MediaEngine) error {
	m.selector.Populate(me)
	return nil
}

func (m *DeviceMicrophone) Capture(ctx context.Context) ([]webrtc.TrackLocal, func(), error) {
	found := false
	for _, d := range mediadevices.EnumerateDevices() {
		if d.Kind == mediadevices.AudioInput {
			found = true
			log.Printf("VOICE: audio input %q", d.Label)
		}
	}
	if !found {
		return nil, nil, fmt.Errorf("%w: no audio input device", ErrMicrophoneDenied)
	}

	type result struct {
		stream mediadevices.MediaStream
		err    error
	}
	done := make(chan result, 1)
	go func() {
		stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
			Audio: func(*mediadevices.MediaTrackConstraints) {},
			Codec: m.selector,
		})
		done <- result{stream, err}
	}()

	var r result
	select {
	case r = <-done:
	case <-ctx.Done():
		// the capture may still succeed; release it when it does
		go func() {
			if r := <-done; r.err == nil {
				for _, t := range r.stream.GetTracks() {
					t.Close()
				}
			}
		}()
		return nil, nil, ctx.Err()
	}
	if r.err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMicrophoneDenied, r.err)
	}

	audioTracks := r.stream.GetAudioTracks()
	if len(audioTracks) == 0 {
		return nil, nil, fmt.Errorf("%w: no audio track", ErrMicrophoneDenied)
	}
	tracks := make([]webrtc.TrackLocal, 0, len(audioTracks))
	for _, t := range audioTracks {
		t.OnEnded(func(err error) {
			if err != nil {
				log.Printf("VOICE: microphone track ended: %v", err)
			}
		})
		tracks = append(tracks, t)
	}
	log.Printf("VOICE: microphone captured (%d tracks)", len(tracks))

	release := func() {
		for _, t := range r.stream.GetTracks() {
			t.Close()
		}
	}
	return tracks, release, nil
}
