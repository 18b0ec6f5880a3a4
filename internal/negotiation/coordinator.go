// Package negotiation runs the offer/answer handshake of one call. Colliding
// offers are discarded; a deterministic role split keeps them from happening
// in the first place, because the engine cannot roll back a local offer.
package negotiation

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/mossy-p/peercall/internal/models"
)

var ErrClosed = errors.New("coordinator closed")

// Role decides which side may start a negotiation.
type Role int

const (
	// RoleSymmetric offers whenever negotiation is needed. When both sides
	// offer at once each discards the other's offer and the handshake stalls
	// until something else changes.
	RoleSymmetric Role = iota
	// RolePolite never offers. It answers the peer's offers, and its own
	// outbound media rides in those answers.
	RolePolite
	// RoleImpolite offers whenever negotiation is needed.
	RoleImpolite
)

func (r Role) String() string {
	switch r {
	case RolePolite:
		return "polite"
	case RoleImpolite:
		return "impolite"
	default:
		return "symmetric"
	}
}

// RoleFor assigns roles from the two occupant ids so that both sides reach
// opposite answers without talking: the smaller id is polite and waits for
// the other side's offer.
func RoleFor(selfID, peerID string) Role {
	if selfID == "" || peerID == "" || selfID == peerID {
		return RoleSymmetric
	}
	if selfID < peerID {
		return RolePolite
	}
	return RoleImpolite
}

// State is a snapshot of the coordinator's negotiation flags.
type State struct {
	Role        Role
	MakingOffer bool
	IgnoreOffer bool
	Phase       SignalingState
}

type Options struct {
	Role   Role
	Logger *slog.Logger
}

type eventKind int

const (
	evNegotiationNeeded eventKind = iota
	evEnvelope
	evLocalCandidate
	evSetRole
	evBarrier
)

type event struct {
	kind      eventKind
	envelope  *models.Envelope
	candidate models.ICECandidate
	role      Role
	reached   chan struct{}
}

// Coordinator runs the negotiation state machine for one call. Events are
// handled one at a time in arrival order on a dedicated goroutine; calls
// into the engine block that goroutine and later events wait in the queue.
type Coordinator struct {
	engine Engine
	send   SendFunc
	logger *slog.Logger

	qmu    sync.Mutex
	queue  []event
	wake   chan struct{}
	done   chan struct{}
	closed sync.Once
	exited chan struct{}

	mu          sync.Mutex
	role        Role
	makingOffer bool
	ignoreOffer bool
}

// New starts a coordinator. Close must be called to stop it.
func New(engine Engine, send SendFunc, opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		engine: engine,
		send:   send,
		logger: logger.With("component", "negotiation"),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
		role:   opts.Role,
	}
	go c.run()
	return c
}

// NegotiationNeeded queues an offer attempt. The engine calls it whenever
// the set of outbound media changes.
func (c *Coordinator) NegotiationNeeded() {
	c.enqueue(event{kind: evNegotiationNeeded})
}

// HandleEnvelope queues an envelope relayed from the peer.
func (c *Coordinator) HandleEnvelope(env *models.Envelope) {
	c.enqueue(event{kind: evEnvelope, envelope: env})
}

// LocalCandidate queues a locally gathered candidate for sending.
func (c *Coordinator) LocalCandidate(candidate models.ICECandidate) {
	c.enqueue(event{kind: evLocalCandidate, candidate: candidate})
}

// SetRole changes the collision role. It takes effect in queue order.
func (c *Coordinator) SetRole(role Role) {
	c.enqueue(event{kind: evSetRole, role: role})
}

// Idle blocks until every event queued before the call has been handled.
func (c *Coordinator) Idle(ctx context.Context) error {
	reached := make(chan struct{})
	if !c.enqueue(event{kind: evBarrier, reached: reached}) {
		return ErrClosed
	}
	select {
	case <-reached:
		return nil
	case <-c.exited:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current negotiation flags.
func (c *Coordinator) State() State {
	c.mu.Lock()
	s := State{Role: c.role, MakingOffer: c.makingOffer, IgnoreOffer: c.ignoreOffer}
	c.mu.Unlock()
	s.Phase = c.engine.SignalingState()
	return s
}

// Close drops every queued event and stops the coordinator. In-flight engine
// calls are not interrupted; their results are discarded.
func (c *Coordinator) Close() {
	c.closed.Do(func() {
		close(c.done)
		c.qmu.Lock()
		c.queue = nil
		c.qmu.Unlock()
	})
}

func (c *Coordinator) enqueue(ev event) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	c.qmu.Lock()
	c.queue = append(c.queue, ev)
	c.qmu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return true
}

func (c *Coordinator) next() (event, bool) {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	if len(c.queue) == 0 {
		return event{}, false
	}
	ev := c.queue[0]
	c.queue[0] = event{}
	c.queue = c.queue[1:]
	return ev, true
}

func (c *Coordinator) run() {
	defer close(c.exited)
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		}

		for {
			select {
			case <-c.done:
				return
			default:
			}
			ev, ok := c.next()
			if !ok {
				break
			}
			c.handle(ev)
		}
	}
}

func (c *Coordinator) handle(ev event) {
	switch ev.kind {
	case evNegotiationNeeded:
		c.makeOffer()
	case evEnvelope:
		c.handleEnvelope(ev.envelope)
	case evLocalCandidate:
		cand := ev.candidate
		c.deliver(&models.Envelope{Type: models.KindCandidate, Candidate: &cand})
	case evSetRole:
		c.mu.Lock()
		c.role = ev.role
		c.mu.Unlock()
		c.logger.Debug("negotiation role set", "role", ev.role)
	case evBarrier:
		close(ev.reached)
	}
}

func (c *Coordinator) setMakingOffer(v bool) {
	c.mu.Lock()
	c.makingOffer = v
	c.mu.Unlock()
}

func (c *Coordinator) makeOffer() {
	c.mu.Lock()
	role := c.role
	c.mu.Unlock()
	if role == RolePolite {
		c.logger.Debug("negotiation needed, waiting for the peer to offer")
		return
	}

	c.setMakingOffer(true)
	defer c.setMakingOffer(false)

	offer, err := c.engine.CreateOffer()
	if err != nil {
		c.logger.Error("negotiation failed, create offer", "err", err)
		return
	}
	if err := c.engine.SetLocalDescription(offer); err != nil {
		c.logger.Error("negotiation failed, set local offer", "err", err)
		return
	}
	c.deliver(&models.Envelope{Type: models.KindOffer, SDP: &offer})
	c.logger.Debug("offer sent")
}

func (c *Coordinator) handleEnvelope(env *models.Envelope) {
	switch env.Type {
	case models.KindOffer:
		c.handleOffer(env)
	case models.KindAnswer:
		c.handleAnswer(env)
	case models.KindCandidate:
		c.handleCandidate(env)
	default:
		c.logger.Warn("ignoring envelope of unknown type", "type", env.Type)
	}
}

func (c *Coordinator) handleOffer(env *models.Envelope) {
	if env.SDP == nil {
		c.logger.Warn("ignoring offer without description")
		return
	}
	phase := c.engine.SignalingState()

	c.mu.Lock()
	collision := c.makingOffer || phase != StateStable
	c.ignoreOffer = collision
	role := c.role
	c.mu.Unlock()

	if collision {
		c.logger.Info("offer collision, ignoring remote offer", "role", role, "phase", phase)
		return
	}

	if err := c.engine.SetRemoteDescription(*env.SDP); err != nil {
		c.logger.Error("failed to apply remote offer", "err", err)
		return
	}
	answer, err := c.engine.CreateAnswer()
	if err != nil {
		c.logger.Error("failed to create answer", "err", err)
		return
	}
	if err := c.engine.SetLocalDescription(answer); err != nil {
		c.logger.Error("failed to set local answer", "err", err)
		return
	}
	c.deliver(&models.Envelope{Type: models.KindAnswer, SDP: &answer})
	c.logger.Debug("answer sent")
}

func (c *Coordinator) handleAnswer(env *models.Envelope) {
	if env.SDP == nil {
		c.logger.Warn("ignoring answer without description")
		return
	}
	if phase := c.engine.SignalingState(); phase != StateHaveLocalOffer {
		c.logger.Warn("ignoring answer, no offer outstanding", "phase", phase)
		return
	}
	if err := c.engine.SetRemoteDescription(*env.SDP); err != nil {
		c.logger.Error("failed to apply remote answer", "err", err)
	}
}

func (c *Coordinator) handleCandidate(env *models.Envelope) {
	if env.Candidate == nil {
		return
	}
	err := c.engine.AddICECandidate(*env.Candidate)
	if err == nil {
		return
	}

	c.mu.Lock()
	ignoring := c.ignoreOffer
	c.mu.Unlock()

	// Candidates belonging to a discarded offer are expected to fail.
	if ignoring {
		c.logger.Debug("dropped candidate for ignored offer", "err", err)
		return
	}
	c.logger.Error("failed to add ICE candidate", "err", err)
}

func (c *Coordinator) deliver(env *models.Envelope) {
	if err := c.send(env); err != nil {
		c.logger.Error("failed to send envelope", "type", env.Type, "err", err)
	}
}
