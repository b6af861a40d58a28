// Package voice runs the live spoken conversation with the AI peer: a WebRTC
// peer connection carrying the microphone up and the AI's speech down, plus
// a JSON control channel for session configuration and instructions.
package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

// ControlChannel is the data channel label the provider listens on.
const ControlChannel = "oai-events"

var defaultModalities = []string{"audio", "text"}

type Config struct {
	Credentials CredentialSource
	Negotiator  Negotiator
	Microphone  Microphone
	// Remote plays the AI's audio; nil drops it.
	Remote RemoteSink

	ICEServers []string
	// IncludeLoopback admits 127.0.0.1 candidates, for same-host peers.
	IncludeLoopback bool
}

// Session is one realtime voice session. At most one peer connection is
// live per Session; Start fails with ErrAlreadyInProgress until Stop.
type Session struct {
	cfg Config

	mu sync.Mutex
	// gen identifies the current start attempt. Work belonging to an older
	// attempt is released instead of installed.
	gen     uint64
	conn    ConnState
	channel ChannelState
	cancel  context.CancelFunc
	pc      *webrtc.PeerConnection
	dc      *webrtc.DataChannel
	release func()
	// configure runs once both the peer is Connected and the control channel
	// has opened. It is parked here when the channel opens first.
	configure func()

	subMu sync.Mutex
	subs  map[chan Event]struct{}
}

func New(cfg Config) *Session {
	return &Session{
		cfg:  cfg,
		subs: make(map[chan Event]struct{}),
	}
}

// Status is a snapshot of the two session states.
type Status struct {
	Conn    ConnState    `json:"conn"`
	Channel ChannelState `json:"channel"`
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{Conn: s.conn, Channel: s.channel}
}

// Start connects to the AI peer. It returns once the remote answer is
// applied; the control channel opens asynchronously afterwards. Any failure
// leaves the session Disconnected with every acquired resource released.
func (s *Session) Start(ctx context.Context, opt StartOptions) error {
	s.mu.Lock()
	if s.conn != Disconnected {
		s.mu.Unlock()
		return ErrAlreadyInProgress
	}
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.channel = Unopened
	s.configure = nil
	s.setConnLocked(Connecting)
	s.mu.Unlock()

	if err := s.start(ctx, gen, opt); err != nil {
		log.Printf("VOICE: start failed: %v", err)
		s.mu.Lock()
		if s.gen == gen {
			s.setConnLocked(Failed)
		}
		s.mu.Unlock()
		s.stopGen(gen)
		return err
	}
	log.Printf("VOICE: connected")
	return nil
}

func (s *Session) start(ctx context.Context, gen uint64, opt StartOptions) error {
	cred, err := s.cfg.Credentials.Fetch(ctx)
	if err != nil {
		return wrap(ErrCredential, err)
	}
	if cred.Token == "" || cred.Expired(time.Now()) {
		return fmt.Errorf("%w: token empty or expired", ErrCredential)
	}

	pc, err := s.newPeerConnection()
	if err != nil {
		return wrap(ErrNegotiationFailed, fmt.Errorf("create peer connection: %w", err))
	}
	if !s.own(gen, func() { s.pc = pc }) {
		pc.Close()
		return wrap(ErrNegotiationFailed, context.Canceled)
	}
	s.watchPeer(gen, pc)

	tracks, release, err := s.cfg.Microphone.Capture(ctx)
	if err != nil {
		return wrap(ErrMicrophoneDenied, err)
	}
	if !s.own(gen, func() { s.release = release }) {
		release()
		return wrap(ErrMicrophoneDenied, context.Canceled)
	}

	for _, t := range tracks {
		if _, err := pc.AddTrack(t); err != nil {
			return wrap(ErrNegotiationFailed, fmt.Errorf("add track: %w", err))
		}
	}

	dc, err := pc.CreateDataChannel(ControlChannel, nil)
	if err != nil {
		return wrap(ErrNegotiationFailed, fmt.Errorf("create data channel: %w", err))
	}
	if !s.own(gen, func() { s.dc = dc }) {
		dc.Close()
		return wrap(ErrNegotiationFailed, context.Canceled)
	}
	s.watchChannel(gen, dc, opt)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return wrap(ErrNegotiationFailed, fmt.Errorf("create offer: %w", err))
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return wrap(ErrNegotiationFailed, fmt.Errorf("set local description: %w", err))
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return wrap(ErrNegotiationFailed, ctx.Err())
	}

	answer, err := s.cfg.Negotiator.Negotiate(ctx, cred, pc.LocalDescription().SDP)
	if err != nil {
		return wrap(ErrNegotiationFailed, err)
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}); err != nil {
		return wrap(ErrNegotiationFailed, fmt.Errorf("set remote description: %w", err))
	}

	return s.connected(gen)
}

// connected publishes Connected for gen, then opens the control channel if
// it came up during negotiation.
func (s *Session) connected(gen uint64) error {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return wrap(ErrNegotiationFailed, context.Canceled)
	}
	s.setConnLocked(Connected)
	configure := s.configure
	s.configure = nil
	if configure != nil {
		s.channel = Open
		s.emitLocked(Event{Kind: ChannelChanged})
	}
	s.mu.Unlock()

	if configure != nil {
		configure()
	}
	return nil
}

// openChannel marks the control channel Open and reports whether configure
// should run now. Before the peer is Connected the channel stays Unopened and
// configure waits for connected.
func (s *Session) openChannel(gen uint64, configure func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.channel == Open {
		return false
	}
	if s.conn != Connected {
		s.configure = configure
		return false
	}
	s.channel = Open
	s.emitLocked(Event{Kind: ChannelChanged})
	return true
}

// wrap tags err with sentinel unless it already carries it.
func wrap(sentinel, err error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// own runs install under the lock when gen is still the current attempt.
// When it is not, the caller keeps ownership and must release the resource.
func (s *Session) own(gen uint64, install func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	install()
	return true
}

func (s *Session) watchPeer(gen uint64, pc *webrtc.PeerConnection) {
	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		log.Printf("VOICE: connection state %s", st)
		if st != webrtc.PeerConnectionStateFailed && st != webrtc.PeerConnectionStateClosed {
			return
		}
		s.mu.Lock()
		live := s.gen == gen && s.conn == Connected
		if live {
			s.setConnLocked(Failed)
		}
		s.mu.Unlock()
		if live {
			go s.stopGen(gen)
		}
	})
	pc.OnICEConnectionStateChange(func(st webrtc.ICEConnectionState) {
		log.Printf("VOICE: ice connection state %s", st)
	})
	pc.OnICEGatheringStateChange(func(st webrtc.ICEGatheringState) {
		log.Printf("VOICE: ice gathering state %s", st)
	})
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c != nil {
			log.Printf("VOICE: local candidate %s", c.String())
		}
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Printf("VOICE: remote track %s (%s)", track.Kind(), track.Codec().MimeType)
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		if !s.attachRemote(gen, track, receiver) {
			log.Printf("VOICE: dropping remote track from a stopped session")
		}
	})
}

// attachRemote hands track to the remote sink while gen is current. It holds
// s.mu across Attach so a concurrent stop detaches after it, never before.
func (s *Session) attachRemote(gen uint64, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) bool {
	if s.cfg.Remote == nil {
		return true
	}
	return s.own(gen, func() { s.cfg.Remote.Attach(track, receiver) })
}

type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	Modalities    []string      `json:"modalities"`
	TurnDetection TurnDetection `json:"turn_detection"`
	Instructions  string        `json:"instructions,omitempty"`
}

type responseCreate struct {
	Type     string         `json:"type"`
	Response responseConfig `json:"response"`
}

type responseConfig struct {
	Modalities   []string `json:"modalities"`
	Instructions string   `json:"instructions"`
}

// serverEvent is the subset of inbound provider events the session reads.
type serverEvent struct {
	Type       string `json:"type"`
	Delta      string `json:"delta"`
	Transcript string `json:"transcript"`
	Error      *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (e serverEvent) text() string {
	switch {
	case e.Error != nil:
		return e.Error.Message
	case e.Transcript != "":
		return e.Transcript
	default:
		return e.Delta
	}
}

func (s *Session) watchChannel(gen uint64, dc *webrtc.DataChannel, opt StartOptions) {
	td := opt.TurnDetection
	if td.Type == "" {
		td = DefaultTurnDetection()
	}
	modalities := opt.Modalities
	if len(modalities) == 0 {
		modalities = defaultModalities
	}

	configure := func() {
		b, _ := json.Marshal(sessionUpdate{
			Type: "session.update",
			Session: sessionConfig{
				Modalities:    modalities,
				TurnDetection: td,
				Instructions:  opt.Instructions,
			},
		})
		if err := dc.SendText(string(b)); err != nil {
			log.Printf("VOICE: send session.update: %v", err)
			return
		}
		log.Printf("VOICE: control channel open, session configured")
	}
	dc.OnOpen(func() {
		if s.openChannel(gen, configure) {
			configure()
		}
	})
	dc.OnClose(func() {
		s.setChannel(gen, Closed)
	})
	dc.OnError(func(err error) {
		log.Printf("VOICE: control channel error: %v", err)
		s.setChannel(gen, Errored)
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		var ev serverEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil || ev.Type == "" {
			log.Printf("VOICE: unreadable server event (%d bytes)", len(msg.Data))
			return
		}
		if ev.Type == "error" {
			log.Printf("VOICE: server error: %s", ev.text())
		}
		s.mu.Lock()
		if s.gen == gen {
			s.emitLocked(Event{Kind: ServerEvent, ServerType: ev.Type, Text: ev.text()})
		}
		s.mu.Unlock()
	})
}

func (s *Session) setChannel(gen uint64, st ChannelState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.channel == st {
		return false
	}
	s.channel = st
	s.emitLocked(Event{Kind: ChannelChanged})
	return true
}

// SendInstruction asks the AI peer to respond with instructions.
func (s *Session) SendInstruction(text string) error {
	s.mu.Lock()
	dc, st := s.dc, s.channel
	s.mu.Unlock()
	if dc == nil || st != Open {
		return fmt.Errorf("%w: %s", ErrChannelNotOpen, st)
	}
	b, _ := json.Marshal(responseCreate{
		Type:     "response.create",
		Response: responseConfig{Modalities: defaultModalities, Instructions: text},
	})
	if err := dc.SendText(string(b)); err != nil {
		return fmt.Errorf("%w: %w", ErrChannelNotOpen, err)
	}
	return nil
}

// Stop ends the session and releases the microphone, the control channel
// and the peer connection. It is idempotent and may interrupt a Start in
// progress.
func (s *Session) Stop() {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	s.stopGen(gen)
}

func (s *Session) stopGen(gen uint64) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.gen++
	cancel, pc, dc, release := s.cancel, s.pc, s.dc, s.release
	s.cancel, s.pc, s.dc, s.release, s.configure = nil, nil, nil, nil, nil
	active := s.conn != Disconnected
	if s.channel == Open {
		s.channel = Closed
		s.emitLocked(Event{Kind: ChannelChanged})
	}
	s.setConnLocked(Disconnected)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if dc != nil {
		dc.Close()
	}
	if release != nil {
		release()
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			log.Printf("VOICE: close peer connection: %v", err)
		}
	}
	if s.cfg.Remote != nil {
		s.cfg.Remote.Detach()
	}
	if active {
		log.Printf("VOICE: stopped")
	}
}

// Subscribe returns a channel of session events and a cancel func. Slow
// subscribers miss events rather than block the session.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.subMu.Unlock()
	}
	return ch, cancel
}

func (s *Session) setConnLocked(st ConnState) {
	if s.conn == st {
		return
	}
	s.conn = st
	s.emitLocked(Event{Kind: ConnChanged})
}

func (s *Session) emitLocked(ev Event) {
	ev.Conn = s.conn
	ev.Channel = s.channel

	s.subMu.Lock()
	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.subMu.Unlock()
}
