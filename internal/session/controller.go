// Package session drives one participant through a call: join a room,
// negotiate with the peer once both are present, and tear everything down
// when either side leaves.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/mossy-p/peercall/internal/media"
	"github.com/mossy-p/peercall/internal/models"
	"github.com/mossy-p/peercall/internal/negotiation"
)

var (
	ErrRoomFull    = errors.New("room is full")
	ErrNotInRoom   = errors.New("not in a room")
	ErrBusy        = errors.New("already in a room")
	ErrClosed      = errors.New("signaling connection closed")
	ErrJoinAborted = errors.New("join aborted")
	ErrRejected    = errors.New("join rejected by server")
)

type State int

const (
	StateIdle State = iota
	StateJoining
	StateWaiting
	StateNegotiating
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateJoining:
		return "joining"
	case StateWaiting:
		return "waiting"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	default:
		return "idle"
	}
}

// Update is one state transition. Reason names the server event or local
// action behind it when there is one.
type Update struct {
	State  State
	RoomID string
	Reason string
}

// Transport is the signaling connection.
type Transport interface {
	Join(roomID string) error
	Leave() error
	Signal(roomID string, env *models.Envelope) error
	Incoming() <-chan *models.Message
}

// Engine is the media engine of one call.
type Engine interface {
	negotiation.Engine
	AddTrack(track webrtc.TrackLocal) error
	OnNegotiationNeeded(fn func())
	OnICECandidate(fn func(models.ICECandidate))
	OnConnectionStateChange(fn func(webrtc.PeerConnectionState))
	OnTrack(fn func(*webrtc.TrackRemote))
	Close() error
}

// Media is the local outbound media of one call.
type Media interface {
	Tracks() []webrtc.TrackLocal
	Close() error
}

type Options struct {
	Transport Transport
	NewEngine func() (Engine, error)
	OpenMedia func() (Media, error)
	// TieBreak assigns polite and impolite roles from the occupant ids.
	// Without it both sides discard colliding offers.
	TieBreak bool
	Logger   *slog.Logger
}

type call struct {
	roomID string
	engine Engine
	coord  *negotiation.Coordinator
	media  Media

	ready   bool
	pending bool
}

// Controller owns the participant's call state. Server messages are handled
// on one goroutine in arrival order.
type Controller struct {
	opts    Options
	logger  *slog.Logger
	updates chan Update
	closed  chan struct{}

	mu       sync.Mutex
	state    State
	roomID   string
	selfID   string
	peerID   string
	media    Media
	call     *call
	joinWait chan error
	gone     bool
}

// New starts a controller reading from opts.Transport.
func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		opts:    opts,
		logger:  logger.With("component", "session"),
		updates: make(chan Update, 64),
		closed:  make(chan struct{}),
	}
	go c.run()
	return c
}

// Updates delivers state transitions. Updates are dropped when the channel
// is not drained.
func (c *Controller) Updates() <-chan Update {
	return c.updates
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Identity returns the occupant ids of this side and the peer, when known.
func (c *Controller) Identity() (self, peer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selfID, c.peerID
}

// Negotiation reports the coordinator flags of the current call.
func (c *Controller) Negotiation() (negotiation.State, bool) {
	c.mu.Lock()
	cl := c.call
	c.mu.Unlock()
	if cl == nil {
		return negotiation.State{}, false
	}
	return cl.coord.State(), true
}

// Join acquires local media, asks the server for a seat in roomID and waits
// for the answer. Media failure aborts before the server is contacted.
func (c *Controller) Join(ctx context.Context, roomID string) error {
	c.mu.Lock()
	if c.gone {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrBusy
	}
	wait := make(chan error, 1)
	c.joinWait = wait
	c.roomID = roomID
	c.selfID, c.peerID = "", ""
	c.setStateLocked(StateJoining, "")
	c.mu.Unlock()

	m, err := c.opts.OpenMedia()
	if err != nil {
		c.teardown("media", false, nil)
		return fmt.Errorf("acquire media: %w", err)
	}

	c.mu.Lock()
	if c.joinWait != wait {
		c.mu.Unlock()
		m.Close()
		return ErrJoinAborted
	}
	c.media = m
	c.mu.Unlock()

	if err := c.opts.Transport.Join(roomID); err != nil {
		c.teardown("transport", false, nil)
		return fmt.Errorf("send join: %w", err)
	}

	select {
	case err := <-wait:
		return err
	case <-ctx.Done():
		c.teardown("canceled", true, ctx.Err())
		return ctx.Err()
	}
}

// Leave ends the current call or pending join and tells the server.
func (c *Controller) Leave() error {
	if !c.teardown("leave", true, nil) {
		return ErrNotInRoom
	}
	return nil
}

// Done is closed when the signaling connection ends.
func (c *Controller) Done() <-chan struct{} {
	return c.closed
}

func (c *Controller) run() {
	defer close(c.closed)
	for msg := range c.opts.Transport.Incoming() {
		c.handle(msg)
	}

	c.mu.Lock()
	c.gone = true
	c.mu.Unlock()
	c.teardown("disconnected", false, ErrClosed)
}

func (c *Controller) handle(msg *models.Message) {
	switch msg.Event {
	case models.EventJoined:
		c.onJoined(msg)
	case models.EventRoomFull:
		c.failJoin(ErrRoomFull, "room_full")
	case models.EventReady:
		c.onReady(msg)
	case models.EventSignal:
		c.onSignal(msg)
	case models.EventPeerDisconnect:
		c.logger.Info("peer left the room", "room", msg.RoomID)
		c.teardown("peer_disconnect", true, nil)
	case models.EventEvicted:
		c.logger.Warn("evicted from room", "room", msg.RoomID)
		c.teardown("evicted", false, nil)
	case models.EventError:
		c.logger.Warn("server error", "error", msg.Error)
		c.failJoin(fmt.Errorf("%w: %s", ErrRejected, msg.Error), "error")
	default:
		c.logger.Debug("ignoring server event", "event", msg.Event)
	}
}

// failJoin ends a pending join with err. Outside a join it does nothing.
func (c *Controller) failJoin(err error, reason string) {
	c.mu.Lock()
	pending := c.state == StateJoining
	c.mu.Unlock()
	if pending {
		c.teardown(reason, false, err)
	}
}

func (c *Controller) onJoined(msg *models.Message) {
	c.mu.Lock()
	if c.state != StateJoining || msg.RoomID != c.roomID || c.media == nil {
		c.mu.Unlock()
		c.logger.Warn("unexpected joined", "room", msg.RoomID)
		return
	}
	wait := c.joinWait
	roomID := c.roomID
	m := c.media
	c.selfID = msg.OccupantID
	c.mu.Unlock()

	engine, err := c.opts.NewEngine()
	if err != nil {
		c.teardown("engine", true, fmt.Errorf("create engine: %w", err))
		return
	}

	cl := &call{roomID: roomID, engine: engine, media: m}
	cl.coord = negotiation.New(engine, func(env *models.Envelope) error {
		return c.opts.Transport.Signal(roomID, env)
	}, negotiation.Options{Role: negotiation.RoleSymmetric, Logger: c.logger})

	engine.OnNegotiationNeeded(func() { c.negotiationNeeded(cl) })
	engine.OnICECandidate(cl.coord.LocalCandidate)
	engine.OnConnectionStateChange(func(s webrtc.PeerConnectionState) { c.connectionState(cl, s) })
	engine.OnTrack(func(track *webrtc.TrackRemote) { go media.Drain(track, c.logger) })

	c.mu.Lock()
	if c.joinWait != wait {
		// Left while the engine was being built.
		c.mu.Unlock()
		cl.coord.Close()
		engine.Close()
		return
	}
	c.call = cl
	c.joinWait = nil
	c.setStateLocked(StateWaiting, "joined")
	wait <- nil
	c.mu.Unlock()

	for _, track := range m.Tracks() {
		if err := engine.AddTrack(track); err != nil {
			c.logger.Error("failed to attach local track", "err", err)
		}
	}

	c.logger.Info("joined room", "room", roomID, "occupant", msg.OccupantID)
}

func (c *Controller) onReady(msg *models.Message) {
	c.mu.Lock()
	cl := c.call
	if cl == nil {
		c.mu.Unlock()
		return
	}
	c.peerID = msg.PeerID
	role := negotiation.RoleSymmetric
	if c.opts.TieBreak {
		role = negotiation.RoleFor(c.selfID, c.peerID)
	}
	// The role is queued before ready is visible, so no trigger released by
	// the gate is handled under the previous role.
	cl.coord.SetRole(role)
	cl.ready = true
	replay := cl.pending
	cl.pending = false
	c.setStateLocked(StateNegotiating, "ready")
	c.mu.Unlock()

	c.logger.Info("peer present, negotiating", "peer", msg.PeerID, "role", role)
	if replay {
		cl.coord.NegotiationNeeded()
	}
}

// negotiationNeeded holds triggers until the peer is present. An offer sent
// while alone would be dropped by the server.
func (c *Controller) negotiationNeeded(cl *call) {
	c.mu.Lock()
	if c.call != cl {
		c.mu.Unlock()
		return
	}
	if !cl.ready {
		cl.pending = true
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	cl.coord.NegotiationNeeded()
}

func (c *Controller) connectionState(cl *call, s webrtc.PeerConnectionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.call != cl {
		return
	}
	switch s {
	case webrtc.PeerConnectionStateConnected:
		c.setStateLocked(StateConnected, s.String())
	case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed:
		if c.state == StateConnected {
			c.setStateLocked(StateNegotiating, s.String())
		}
	}
}

func (c *Controller) onSignal(msg *models.Message) {
	c.mu.Lock()
	cl := c.call
	c.mu.Unlock()
	if cl == nil {
		c.logger.Debug("dropping signal outside a call")
		return
	}
	env, err := models.ParseEnvelope(msg.Data)
	if err != nil {
		c.logger.Warn("dropping malformed envelope", "err", err)
		return
	}
	cl.coord.HandleEnvelope(env)
}

// teardown discards the call and returns to idle. A pending Join returns
// joinErr, or ErrJoinAborted when joinErr is nil. It reports whether there
// was anything to tear down.
func (c *Controller) teardown(reason string, sendLeave bool, joinErr error) bool {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return false
	}
	cl := c.call
	m := c.media
	if c.joinWait != nil {
		if joinErr == nil {
			joinErr = ErrJoinAborted
		}
		c.joinWait <- joinErr
	}
	c.call = nil
	c.media = nil
	c.joinWait = nil
	c.peerID = ""
	gone := c.gone
	c.setStateLocked(StateIdle, reason)
	c.mu.Unlock()

	// Engine callbacks may fire during Close; they see a detached call.
	if cl != nil {
		cl.coord.Close()
		if err := cl.engine.Close(); err != nil {
			c.logger.Warn("failed to close engine", "err", err)
		}
	}
	if m != nil {
		m.Close()
	}
	if sendLeave && !gone {
		if err := c.opts.Transport.Leave(); err != nil {
			c.logger.Debug("leave not sent", "err", err)
		}
	}
	return true
}

func (c *Controller) setStateLocked(s State, reason string) {
	c.state = s
	select {
	case c.updates <- Update{State: s, RoomID: c.roomID, Reason: reason}:
	default:
	}
}
