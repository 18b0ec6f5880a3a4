package negotiation

import "github.com/mossy-p/peercall/internal/models"

// SignalingState is the handshake phase reported by the engine.
type SignalingState int

const (
	StateUnknown SignalingState = iota
	StateStable
	StateHaveLocalOffer
	StateHaveRemoteOffer
	StateClosed
)

func (s SignalingState) String() string {
	switch s {
	case StateStable:
		return "stable"
	case StateHaveLocalOffer:
		return "have-local-offer"
	case StateHaveRemoteOffer:
		return "have-remote-offer"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Engine is the media transport the coordinator drives. Every method may
// block while the engine works and any of them may fail.
type Engine interface {
	CreateOffer() (models.SessionDescription, error)
	CreateAnswer() (models.SessionDescription, error)
	SetLocalDescription(desc models.SessionDescription) error
	SetRemoteDescription(desc models.SessionDescription) error
	AddICECandidate(candidate models.ICECandidate) error
	SignalingState() SignalingState
}

// SendFunc delivers an envelope to the peer through the signaling server.
type SendFunc func(env *models.Envelope) error
