package models

import (
	"encoding/json"
	"fmt"
)

// EnvelopeKind identifies a handshake message.
type EnvelopeKind string

const (
	KindOffer     EnvelopeKind = "offer"
	KindAnswer    EnvelopeKind = "answer"
	KindCandidate EnvelopeKind = "candidate"
)

// SessionDescription mirrors the browser RTCSessionDescription JSON shape.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate mirrors the browser RTCIceCandidateInit JSON shape.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// Envelope is the handshake payload carried in the data field of a signal
// frame. The server never looks inside it.
type Envelope struct {
	Type      EnvelopeKind        `json:"type"`
	SDP       *SessionDescription `json:"sdp,omitempty"`
	Candidate *ICECandidate       `json:"candidate,omitempty"`
}

// ParseEnvelope decodes and sanity-checks a relayed payload.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	switch env.Type {
	case KindOffer, KindAnswer:
		if env.SDP == nil {
			return nil, fmt.Errorf("%w: %s without sdp", ErrMalformedFrame, env.Type)
		}
	case KindCandidate:
		if env.Candidate == nil {
			return nil, fmt.Errorf("%w: candidate without body", ErrMalformedFrame)
		}
	default:
		return nil, fmt.Errorf("%w: unknown envelope type %q", ErrMalformedFrame, env.Type)
	}
	return &env, nil
}
