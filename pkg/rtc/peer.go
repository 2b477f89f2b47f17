// Package rtc lends a browser's microphone and camera to the session over
// WebRTC and plays the model's speech back on an Opus track.
//
// The browser offers an audio track carrying its microphone and may open
// a "camera" data channel carrying JPEG snapshots. The server answers with
// an Opus track for playback.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"gopkg.in/hraban/opus.v2"

	"github.com/teslashibe/go-voicechat/internal/log"
	"github.com/teslashibe/go-voicechat/pkg/audioio"
	"github.com/teslashibe/go-voicechat/pkg/camera"
)

// Opus runs at 48kHz mono in 20ms frames on both directions.
const (
	SampleRate    = 48000
	FrameDuration = 20 * time.Millisecond
	FrameSamples  = SampleRate / 50

	// CameraChannel is the data channel label for JPEG snapshots.
	CameraChannel = "camera"
)

var (
	// ErrNoPeer is returned when media is requested and no browser is
	// connected.
	ErrNoPeer = errors.New("rtc: no peer connected")

	// ErrInvalidOffer is returned for anything but a non-empty SDP offer.
	ErrInvalidOffer = errors.New("rtc: invalid offer")
)

// SessionDescription is the JSON shape exchanged with the browser.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// decoder is the subset of *opus.Decoder used for the microphone.
type decoder interface {
	Decode(data []byte, pcm []int16) (int, error)
}

// encoder is the subset of *opus.Encoder used for playback.
type encoder interface {
	Encode(pcm []int16, data []byte) (int, error)
}

// sampleWriter is the subset of *webrtc.TrackLocalStaticSample used for
// playback.
type sampleWriter interface {
	WriteSample(s media.Sample) error
}

// rtpReader is the subset of *webrtc.TrackRemote used for the microphone.
type rtpReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Peer is one connected browser.
type Peer struct {
	ID        string
	Connected time.Time

	pc     *webrtc.PeerConnection
	track  sampleWriter
	frames *camera.FrameStore
	logger *slog.Logger

	mu  sync.Mutex
	mic *audioio.PushSource

	done      chan struct{}
	closeOnce sync.Once
}

func newPeer(id string, track sampleWriter, logger *slog.Logger) *Peer {
	return &Peer{
		ID:        id,
		Connected: time.Now(),
		track:     track,
		frames:    camera.NewFrameStore(),
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Frames returns the store holding the latest camera snapshot.
func (p *Peer) Frames() *camera.FrameStore { return p.frames }

// Done is closed when the peer goes away.
func (p *Peer) Done() <-chan struct{} { return p.done }

func (p *Peer) attachMic(src *audioio.PushSource) {
	p.mu.Lock()
	p.mic = src
	p.mu.Unlock()
}

// readMic decodes Opus packets from track until it fails and routes the
// PCM to whichever source is attached.
func (p *Peer) readMic(track rtpReader, dec decoder) {
	pcm := make([]int16, SampleRate*120/1000) // longest Opus frame
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			p.logger.Debug("mic track ended", "peer", p.ID, "error", err)
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		n, err := dec.Decode(pkt.Payload, pcm)
		if err != nil {
			p.logger.Debug("opus decode error", "peer", p.ID, "error", err)
			continue
		}

		p.mu.Lock()
		src := p.mic
		p.mu.Unlock()
		if src == nil {
			continue
		}
		src.Push(audioio.Frame{
			Samples:    audioio.DecodePCM16(pcm[:n]),
			SampleRate: SampleRate,
			Channels:   1,
		})
	}
}

// Close tears down the peer connection.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		p.frames.Close()
		if p.pc != nil {
			err = p.pc.Close()
		}
	})
	return err
}

// Server answers browser offers. The newest peer supplies session media.
type Server struct {
	iceServers []string
	logger     *slog.Logger

	mu     sync.RWMutex
	active *Peer
}

// NewServer creates a signalling server. iceServers are STUN/TURN URLs
// handed to pion.
func NewServer(iceServers []string, logger *slog.Logger) *Server {
	return &Server{
		iceServers: iceServers,
		logger:     log.Component(log.Or(logger), "rtc"),
	}
}

// Active returns the current peer, or nil.
func (s *Server) Active() *Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *Server) setActive(p *Peer) {
	s.mu.Lock()
	old := s.active
	s.active = p
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}
}

func (s *Server) clearActive(p *Peer) {
	s.mu.Lock()
	if s.active == p {
		s.active = nil
	}
	s.mu.Unlock()
}

// HandleOffer accepts an SDP offer and returns the answer once ICE
// gathering completes. The new peer replaces any previous one.
func (s *Server) HandleOffer(ctx context.Context, offer SessionDescription) (SessionDescription, error) {
	if offer.Type != "offer" || offer.SDP == "" {
		return SessionDescription{}, ErrInvalidOffer
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return SessionDescription{}, err
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, ir); err != nil {
		return SessionDescription{}, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithInterceptorRegistry(ir))

	var config webrtc.Configuration
	if len(s.iceServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: s.iceServers}}
	}
	pc, err := api.NewPeerConnection(config)
	if err != nil {
		return SessionDescription{}, err
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: SampleRate, Channels: 1},
		"speech", "voicechat")
	if err != nil {
		pc.Close()
		return SessionDescription{}, err
	}
	if _, err := pc.AddTrack(track); err != nil {
		pc.Close()
		return SessionDescription{}, err
	}

	p := newPeer(uuid.NewString(), track, s.logger)
	p.pc = pc

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.logger.Debug("peer state", "peer", p.ID, "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			s.clearActive(p)
			p.Close()
		}
	})

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if remote.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		s.logger.Info("mic track received", "peer", p.ID, "codec", remote.Codec().MimeType)
		dec, err := opus.NewDecoder(SampleRate, 1)
		if err != nil {
			s.logger.Error("opus decoder", "peer", p.ID, "error", err)
			return
		}
		go p.readMic(remote, dec)
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != CameraChannel {
			return
		}
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			if msg.IsString {
				return
			}
			p.frames.Update(append([]byte(nil), msg.Data...))
		})
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}); err != nil {
		pc.Close()
		return SessionDescription{}, fmt.Errorf("rtc: set remote description: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return SessionDescription{}, fmt.Errorf("rtc: create answer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return SessionDescription{}, fmt.Errorf("rtc: set local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-ctx.Done():
		pc.Close()
		return SessionDescription{}, ctx.Err()
	}

	local := pc.LocalDescription()
	if local == nil {
		pc.Close()
		return SessionDescription{}, errors.New("rtc: no local description")
	}

	s.setActive(p)
	s.logger.Info("peer connected", "peer", p.ID)
	return SessionDescription{Type: local.Type.String(), SDP: local.SDP}, nil
}
