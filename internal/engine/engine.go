// Package engine adapts a pion PeerConnection to the negotiation engine
// boundary. It converts between wire descriptions and pion types and exposes
// the connection's events as plain callbacks.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/pion/interceptor"
	"github.com/pion/transport/v3"
	"github.com/pion/webrtc/v4"

	"github.com/mossy-p/peercall/internal/logging"
	"github.com/mossy-p/peercall/internal/models"
	"github.com/mossy-p/peercall/internal/negotiation"
)

type Options struct {
	ICEServers []webrtc.ICEServer
	// Net replaces the OS network stack, for example with a vnet in tests.
	Net    transport.Net
	Logger *slog.Logger
}

// Peer is one PeerConnection.
type Peer struct {
	pc     *webrtc.PeerConnection
	logger *slog.Logger
}

var _ negotiation.Engine = (*Peer)(nil)

// New builds a PeerConnection with the default codecs and interceptors.
func New(opts Options) (*Peer, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{LoggerFactory: logging.PionFactory{Logger: logger}}
	if opts.Net != nil {
		se.SetNet(opts.Net)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(i),
		webrtc.WithSettingEngine(se),
	)

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: opts.ICEServers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	return &Peer{pc: pc, logger: logger.With("component", "engine")}, nil
}

func (p *Peer) CreateOffer() (models.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return models.SessionDescription{}, err
	}
	return fromPion(offer), nil
}

func (p *Peer) CreateAnswer() (models.SessionDescription, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return models.SessionDescription{}, err
	}
	return fromPion(answer), nil
}

func (p *Peer) SetLocalDescription(desc models.SessionDescription) error {
	return p.pc.SetLocalDescription(toPion(desc))
}

func (p *Peer) SetRemoteDescription(desc models.SessionDescription) error {
	return p.pc.SetRemoteDescription(toPion(desc))
}

func (p *Peer) AddICECandidate(c models.ICECandidate) error {
	return p.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	})
}

func (p *Peer) SignalingState() negotiation.SignalingState {
	switch p.pc.SignalingState() {
	case webrtc.SignalingStateStable:
		return negotiation.StateStable
	case webrtc.SignalingStateHaveLocalOffer:
		return negotiation.StateHaveLocalOffer
	case webrtc.SignalingStateHaveRemoteOffer:
		return negotiation.StateHaveRemoteOffer
	case webrtc.SignalingStateClosed:
		return negotiation.StateClosed
	default:
		return negotiation.StateUnknown
	}
}

// AddTrack starts sending a local track. It triggers negotiation-needed.
func (p *Peer) AddTrack(track webrtc.TrackLocal) error {
	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("add %s track: %w", track.Kind(), err)
	}

	// Drain RTCP so interceptors keep running.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (p *Peer) OnNegotiationNeeded(fn func()) {
	p.pc.OnNegotiationNeeded(fn)
}

// OnICECandidate reports each locally gathered candidate. The end of
// gathering is not reported.
func (p *Peer) OnICECandidate(fn func(models.ICECandidate)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			p.logger.Debug("ICE gathering complete")
			return
		}
		init := c.ToJSON()
		fn(models.ICECandidate{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
	})
}

func (p *Peer) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	p.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.logger.Debug("peer connection state", "state", state)
		fn(state)
	})
}

// OnTrack reports inbound media. The callback owns reading from the track.
func (p *Peer) OnTrack(fn func(*webrtc.TrackRemote)) {
	p.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		p.logger.Info("remote track", "kind", track.Kind(), "codec", track.Codec().MimeType)
		fn(track)
	})
}

func (p *Peer) Close() error {
	return p.pc.Close()
}

func toPion(desc models.SessionDescription) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(desc.Type), SDP: desc.SDP}
}

func fromPion(desc webrtc.SessionDescription) models.SessionDescription {
	return models.SessionDescription{Type: desc.Type.String(), SDP: desc.SDP}
}
