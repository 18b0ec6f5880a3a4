// Package registry tracks which connections occupy which rooms and relays
// signaling payloads between the occupants of a room.
//
// Every room has its own lock. The registry-wide lock only guards the room
// map itself and is never held while a room's membership changes, so joins
// and leaves on different rooms run in parallel.
package registry

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mossy-p/peercall/internal/models"
)

// Capacity is the maximum number of occupants in a room.
const Capacity = 2

// ErrInvalidRoomID rejects empty or overlong room identifiers.
var ErrInvalidRoomID = errors.New("invalid room id")

// Occupant is a single participant connection.
//
// Send must not block: it queues the frame for delivery and reports whether
// the frame was accepted.
type Occupant interface {
	ID() string
	Send(frame []byte) bool
}

// Outcome is the result of a join attempt.
type Outcome int

const (
	Admitted Outcome = iota
	Full
)

func (o Outcome) String() string {
	switch o {
	case Admitted:
		return "admitted"
	case Full:
		return "full"
	default:
		return "unknown"
	}
}

// Membership describes one occupant's stay in a room.
type Membership struct {
	RoomID     string
	OccupantID string
	JoinedAt   time.Time
}

// Observer is told about every membership change after it happened.
// Calls for one occupant arrive in order.
type Observer interface {
	OccupantAdmitted(m Membership)
	OccupantLeft(m Membership)
}

// Options configures a Registry.
type Options struct {
	// MaxRoomIDLength rejects longer room identifiers. Zero means unlimited.
	MaxRoomIDLength int
	Observer        Observer
	Logger          *slog.Logger
}

type member struct {
	occ      Occupant
	joinedAt time.Time
}

type room struct {
	id        string
	createdAt time.Time

	mu        sync.RWMutex
	occupants []member
	// closed is set once the room has been emptied and dropped from the map.
	// A joiner that raced with the removal must look the room up again.
	closed bool
}

func (rm *room) indexOf(occupantID string) int {
	for i, m := range rm.occupants {
		if m.occ.ID() == occupantID {
			return i
		}
	}
	return -1
}

// Registry maps room identifiers to their occupants.
type Registry struct {
	opts   Options
	logger *slog.Logger

	mu    sync.RWMutex
	rooms map[string]*room

	// bound maps occupant id to the *room it currently occupies.
	bound sync.Map
}

// New returns an empty registry.
func New(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		opts:   opts,
		logger: logger.With("component", "registry"),
		rooms:  make(map[string]*room),
	}
}

// ValidateRoomID reports whether id is acceptable as a room key.
func (r *Registry) ValidateRoomID(id string) error {
	if id == "" {
		return ErrInvalidRoomID
	}
	if r.opts.MaxRoomIDLength > 0 && len(id) > r.opts.MaxRoomIDLength {
		return ErrInvalidRoomID
	}
	return nil
}

// Join admits occ to roomID unless the room already holds Capacity occupants.
//
// The caller is answered with a joined or room_full frame. When the room
// reaches Capacity both occupants are sent exactly one ready frame. An
// occupant bound to another room leaves it only once the new room has
// admitted it, so a Full answer keeps the old seat. Joining the room it
// already occupies is a no-op that reports Admitted.
func (r *Registry) Join(roomID string, occ Occupant) (Outcome, error) {
	if err := r.ValidateRoomID(roomID); err != nil {
		return Full, err
	}

	var prev *room
	if v, ok := r.bound.Load(occ.ID()); ok {
		prev = v.(*room)
		if prev.id == roomID {
			prev.mu.RLock()
			present := !prev.closed && prev.indexOf(occ.ID()) >= 0
			prev.mu.RUnlock()
			if present {
				return Admitted, nil
			}
		}
	}

	for {
		rm := r.getOrCreate(roomID)

		rm.mu.Lock()
		if rm.closed {
			rm.mu.Unlock()
			continue
		}

		if len(rm.occupants) >= Capacity {
			rm.mu.Unlock()
			r.send(occ, &models.Message{Event: models.EventRoomFull, RoomID: roomID})
			r.logger.Info("join rejected, room full", "room", roomID, "occupant", occ.ID())
			return Full, nil
		}

		m := member{occ: occ, joinedAt: time.Now()}
		rm.occupants = append(rm.occupants, m)
		r.bound.Store(occ.ID(), rm)

		r.send(occ, &models.Message{Event: models.EventJoined, RoomID: roomID, OccupantID: occ.ID()})
		if len(rm.occupants) == Capacity {
			a, b := rm.occupants[0].occ, rm.occupants[1].occ
			r.send(a, &models.Message{Event: models.EventReady, RoomID: roomID, OccupantID: a.ID(), PeerID: b.ID()})
			r.send(b, &models.Message{Event: models.EventReady, RoomID: roomID, OccupantID: b.ID(), PeerID: a.ID()})
		}
		count := len(rm.occupants)
		rm.mu.Unlock()

		r.logger.Info("occupant joined", "room", roomID, "occupant", occ.ID(), "occupants", count)
		if r.opts.Observer != nil {
			r.opts.Observer.OccupantAdmitted(Membership{RoomID: roomID, OccupantID: occ.ID(), JoinedAt: m.joinedAt})
		}
		if prev != nil && prev != rm {
			r.leaveRoom(prev, occ.ID())
		}
		return Admitted, nil
	}
}

// Leave removes occ from the room it occupies. It is safe to call more than
// once and for occupants that never joined. The remaining occupant, if any,
// is sent exactly one peer_disconnect.
func (r *Registry) Leave(occ Occupant) bool {
	v, ok := r.bound.LoadAndDelete(occ.ID())
	if !ok {
		return false
	}
	return r.leaveRoom(v.(*room), occ.ID())
}

func (r *Registry) leaveRoom(rm *room, occupantID string) bool {
	rm.mu.Lock()
	idx := rm.indexOf(occupantID)
	if idx < 0 {
		rm.mu.Unlock()
		return false
	}
	left := rm.occupants[idx]
	rm.occupants = append(rm.occupants[:idx], rm.occupants[idx+1:]...)

	remaining := len(rm.occupants)
	if remaining == 0 {
		r.dropLocked(rm)
	} else {
		for _, m := range rm.occupants {
			r.send(m.occ, &models.Message{Event: models.EventPeerDisconnect, RoomID: rm.id})
		}
	}
	rm.mu.Unlock()

	r.logger.Info("occupant left", "room", rm.id, "occupant", occupantID, "occupants", remaining)
	if remaining == 0 {
		r.logger.Debug("room removed", "room", rm.id)
	}
	if r.opts.Observer != nil {
		r.opts.Observer.OccupantLeft(Membership{RoomID: rm.id, OccupantID: occupantID, JoinedAt: left.joinedAt})
	}
	return true
}

// Evict removes every occupant of roomID and discards the room. Evicted
// occupants are sent an evicted frame. It reports how many were removed.
func (r *Registry) Evict(roomID string) int {
	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}

	rm.mu.Lock()
	if rm.closed {
		rm.mu.Unlock()
		return 0
	}
	evicted := rm.occupants
	rm.occupants = nil
	r.dropLocked(rm)
	for _, m := range evicted {
		// An occupant whose own Leave already unbound it is on its way out
		// and gets no frame.
		if r.bound.CompareAndDelete(m.occ.ID(), rm) {
			r.send(m.occ, &models.Message{Event: models.EventEvicted, RoomID: roomID})
		}
	}
	rm.mu.Unlock()

	r.logger.Info("room evicted", "room", roomID, "occupants", len(evicted))
	if r.opts.Observer != nil {
		for _, m := range evicted {
			r.opts.Observer.OccupantLeft(Membership{RoomID: roomID, OccupantID: m.occ.ID(), JoinedAt: m.joinedAt})
		}
	}
	return len(evicted)
}

// RoomOf returns the room the occupant currently occupies.
func (r *Registry) RoomOf(occupantID string) (string, bool) {
	v, ok := r.bound.Load(occupantID)
	if !ok {
		return "", false
	}
	return v.(*room).id, true
}

// Room returns a snapshot of one room.
func (r *Registry) Room(roomID string) (models.RoomInfo, bool) {
	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return models.RoomInfo{}, false
	}
	info := rm.info()
	if info.Occupants == 0 {
		return models.RoomInfo{}, false
	}
	return info, true
}

// Snapshot returns every live room ordered by id.
func (r *Registry) Snapshot() []models.RoomInfo {
	r.mu.RLock()
	rooms := make([]*room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rooms = append(rooms, rm)
	}
	r.mu.RUnlock()

	infos := make([]models.RoomInfo, 0, len(rooms))
	for _, rm := range rooms {
		if info := rm.info(); info.Occupants > 0 {
			infos = append(infos, info)
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Stats counts live rooms and their occupants.
func (r *Registry) Stats() models.Stats {
	var s models.Stats
	for _, info := range r.Snapshot() {
		s.Rooms++
		s.Occupants += info.Occupants
	}
	return s
}

func (rm *room) info() models.RoomInfo {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	ids := make([]string, 0, len(rm.occupants))
	for _, m := range rm.occupants {
		ids = append(ids, m.occ.ID())
	}
	return models.RoomInfo{
		ID:          rm.id,
		CreatedAt:   rm.createdAt,
		Capacity:    Capacity,
		Occupants:   len(ids),
		OccupantIDs: ids,
	}
}

func (r *Registry) getOrCreate(roomID string) *room {
	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if ok {
		return rm
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok := r.rooms[roomID]; ok {
		return rm
	}
	rm = &room{id: roomID, createdAt: time.Now()}
	r.rooms[roomID] = rm
	r.logger.Debug("room created", "room", roomID)
	return rm
}

// dropLocked removes an emptied room from the map. rm.mu must be held.
func (r *Registry) dropLocked(rm *room) {
	rm.closed = true
	r.mu.Lock()
	if r.rooms[rm.id] == rm {
		delete(r.rooms, rm.id)
	}
	r.mu.Unlock()
}

func (r *Registry) send(occ Occupant, msg *models.Message) {
	frame, err := models.Encode(msg)
	if err != nil {
		r.logger.Error("failed to encode frame", "event", msg.Event, "err", err)
		return
	}
	if !occ.Send(frame) {
		r.logger.Warn("dropped frame, occupant buffer full", "event", msg.Event, "occupant", occ.ID())
	}
}
