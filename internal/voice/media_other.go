//go:build !linux

package voice

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// DeviceMicrophone has no capture driver outside Linux; the session can
// still be negotiated but Capture always reports the microphone unavailable.
type DeviceMicrophone struct{}

func NewDeviceMicrophone() (*DeviceMicrophone, error) {
	return &DeviceMicrophone{}, nil
}

func (m *DeviceMicrophone) RegisterCodecs(me *webrtc.MediaEngine) error {
	return me.RegisterDefaultCodecs()
}

func (m *DeviceMicrophone) Capture(context.Context) ([]webrtc.TrackLocal, func(), error) {
	return nil, nil, fmt.Errorf("%w: no capture driver on this platform", ErrMicrophoneDenied)
}
