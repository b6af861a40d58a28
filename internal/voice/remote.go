package voice

import (
	"encoding/binary"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/hraban/opus"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/685Degrees/echo-reader/internal/audio"
)

const (
	opusRate = 48000
	// 120 ms at 48 kHz, the longest Opus frame
	maxOpusFrame = 5760
	// lost packets concealed per gap; longer gaps are skipped
	maxConcealed = 5
)

// SpeakerFormat is what the speaker writes to the output.
var SpeakerFormat = audio.Format{SampleRate: opusRate, Channels: 1}

// Speaker decodes the AI peer's Opus track and plays it on an audio output.
type Speaker struct {
	out audio.Output

	mu     sync.Mutex
	stream audio.Stream
	pw     *io.PipeWriter
}

func NewSpeaker(out audio.Output) *Speaker {
	return &Speaker{out: out}
}

func (sp *Speaker) Attach(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	if !strings.EqualFold(track.Codec().MimeType, webrtc.MimeTypeOpus) {
		log.Printf("VOICE: ignoring remote %s track", track.Codec().MimeType)
		return
	}
	dec, err := opus.NewDecoder(opusRate, SpeakerFormat.Channels)
	if err != nil {
		log.Printf("VOICE: opus decoder: %v", err)
		return
	}

	pr, pw := io.Pipe()
	stream, err := sp.out.NewStream(SpeakerFormat, pr)
	if err != nil {
		log.Printf("VOICE: open speaker: %v", err)
		pr.Close()
		return
	}

	sp.Detach()
	sp.mu.Lock()
	sp.stream, sp.pw = stream, pw
	sp.mu.Unlock()
	stream.Play()

	go sp.readRTP(track, dec, pw)
	go readRTCP(receiver)
}

// Detach stops playback of the current track, if any.
func (sp *Speaker) Detach() {
	sp.mu.Lock()
	stream, pw := sp.stream, sp.pw
	sp.stream, sp.pw = nil, nil
	sp.mu.Unlock()

	if pw != nil {
		pw.CloseWithError(io.ErrClosedPipe)
	}
	if stream != nil {
		stream.Close()
	}
}

func (sp *Speaker) readRTP(track *webrtc.TrackRemote, dec *opus.Decoder, w *io.PipeWriter) {
	pcm := make([]int16, maxOpusFrame*SpeakerFormat.Channels)
	out := make([]byte, len(pcm)*2)

	write := func(samples int) error {
		n := samples * SpeakerFormat.Channels
		for i, v := range pcm[:n] {
			binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
		}
		_, err := w.Write(out[:2*n])
		return err
	}

	var last uint16
	var lastSamples int
	started := false
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			w.CloseWithError(err)
			return
		}

		if started && lastSamples > 0 {
			if gap := lost(last, pkt); gap > 0 && gap <= maxConcealed {
				for i := 0; i < gap; i++ {
					if err := dec.DecodePLC(pcm[:lastSamples*SpeakerFormat.Channels]); err != nil {
						break
					}
					if write(lastSamples) != nil {
						return
					}
				}
			}
		}
		last, started = pkt.SequenceNumber, true

		if len(pkt.Payload) == 0 {
			continue
		}
		n, err := dec.Decode(pkt.Payload, pcm)
		if err != nil {
			log.Printf("VOICE: opus decode: %v", err)
			continue
		}
		lastSamples = n
		if write(n) != nil {
			return
		}
	}
}

// lost counts the packets missing between last and pkt. Sequence numbers
// wrap at 16 bits; a reordered packet reads as a huge gap.
func lost(last uint16, pkt *rtp.Packet) int {
	return int(pkt.SequenceNumber - last - 1)
}

// readRTCP drains the receiver's RTCP so the interceptors keep running and
// logs what the remote sender reports.
func readRTCP(receiver *webrtc.RTPReceiver) {
	for {
		pkts, _, err := receiver.ReadRTCP()
		if err != nil {
			return
		}
		for _, p := range pkts {
			switch p := p.(type) {
			case *rtcp.SenderReport:
				log.Printf("VOICE: sender report ssrc=%d packets=%d octets=%d", p.SSRC, p.PacketCount, p.OctetCount)
			case *rtcp.Goodbye:
				log.Printf("VOICE: remote said goodbye (%d sources)", len(p.Sources))
			}
		}
	}
}
