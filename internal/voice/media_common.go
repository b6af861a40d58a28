package voice

import (
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// DefaultICEServers is used when the configuration names none.
var DefaultICEServers = []string{"stun:stun.l.google.com:19302"}

// newPeerConnection builds the API from the microphone's codecs plus the
// default interceptors (NACK, RTCP reports, TWCC) and opens a connection.
func (s *Session) newPeerConnection() (*webrtc.PeerConnection, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := s.cfg.Microphone.RegisterCodecs(mediaEngine); err != nil {
		return nil, err
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, err
	}

	// A relay hiccup must not end the conversation; give ICE time to recover.
	se := webrtc.SettingEngine{}
	se.SetICETimeouts(30*time.Second, 120*time.Second, 2*time.Second)
	if s.cfg.IncludeLoopback {
		se.SetIncludeLoopbackCandidate(true)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	)

	var servers []webrtc.ICEServer
	if len(s.cfg.ICEServers) > 0 {
		servers = []webrtc.ICEServer{{URLs: s.cfg.ICEServers}}
	}
	return api.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
}
