package voice

import (
	"context"
	"errors"
	"time"

	"github.com/pion/webrtc/v4"
)

var (
	ErrCredential        = errors.New("voice credential unavailable")
	ErrMicrophoneDenied  = errors.New("microphone unavailable or denied")
	ErrChannelNotOpen    = errors.New("control channel not open")
	ErrNegotiationFailed = errors.New("voice negotiation failed")
	ErrAlreadyInProgress = errors.New("voice session already active")
)

type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Failed
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s ConnState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type ChannelState int

const (
	Unopened ChannelState = iota
	Open
	Closed
	Errored
)

func (s ChannelState) String() string {
	switch s {
	case Unopened:
		return "unopened"
	case Open:
		return "open"
	case Closed:
		return "closed"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

func (s ChannelState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Credential is a short-lived bearer token for one negotiation.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// Expired reports whether the credential can no longer be used at now.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// CredentialSource hands out ephemeral credentials.
type CredentialSource interface {
	Fetch(ctx context.Context) (Credential, error)
}

// Negotiator exchanges a local SDP offer for the remote answer.
type Negotiator interface {
	Negotiate(ctx context.Context, cred Credential, offer string) (answer string, err error)
}

// Microphone captures local audio. RegisterCodecs runs before the peer
// connection exists and declares the codecs Capture's tracks will use.
// Capture returns the tracks and a release func that stops them.
type Microphone interface {
	RegisterCodecs(me *webrtc.MediaEngine) error
	Capture(ctx context.Context) ([]webrtc.TrackLocal, func(), error)
}

// RemoteSink consumes the audio track the AI peer sends.
type RemoteSink interface {
	Attach(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	Detach()
}

// TurnDetection configures server-side voice activity detection.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms"`
	SilenceDurationMS int     `json:"silence_duration_ms"`
	CreateResponse    bool    `json:"create_response"`
}

// DefaultTurnDetection matches the provider's server VAD defaults.
func DefaultTurnDetection() TurnDetection {
	return TurnDetection{
		Type:              "server_vad",
		Threshold:         0.5,
		PrefixPaddingMS:   300,
		SilenceDurationMS: 500,
		CreateResponse:    true,
	}
}

type StartOptions struct {
	// Instructions seed the session, typically the text heard so far.
	Instructions  string
	TurnDetection TurnDetection
	Modalities    []string
}

type EventKind int

const (
	ConnChanged EventKind = iota
	ChannelChanged
	ServerEvent
)

func (k EventKind) String() string {
	switch k {
	case ConnChanged:
		return "conn"
	case ChannelChanged:
		return "channel"
	case ServerEvent:
		return "server"
	default:
		return "unknown"
	}
}

func (k EventKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Event is one session notification. ServerType and Text are set for
// ServerEvent: the provider's event type and its transcript, delta or error
// message.
type Event struct {
	Kind       EventKind    `json:"kind"`
	Conn       ConnState    `json:"conn"`
	Channel    ChannelState `json:"channel"`
	ServerType string       `json:"serverType,omitempty"`
	Text       string       `json:"text,omitempty"`
}
