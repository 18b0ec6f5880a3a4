package registry

import "github.com/mossy-p/peercall/internal/models"

// Relay forwards data unchanged to every other occupant of roomID.
//
// Nothing is validated and nothing is retried. The payload is dropped when
// the room does not exist or sender does not occupy it. Relay reports
// whether at least one occupant accepted the frame.
func (r *Registry) Relay(sender Occupant, roomID string, data []byte) bool {
	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		r.logger.Debug("relay dropped, no such room", "room", roomID, "sender", sender.ID())
		return false
	}

	rm.mu.RLock()
	defer rm.mu.RUnlock()

	if rm.closed || rm.indexOf(sender.ID()) < 0 {
		r.logger.Debug("relay dropped, sender not in room", "room", roomID, "sender", sender.ID())
		return false
	}

	frame := models.SignalFrame(data)
	delivered := false
	for _, m := range rm.occupants {
		if m.occ.ID() == sender.ID() {
			continue
		}
		if m.occ.Send(frame) {
			delivered = true
		} else {
			r.logger.Warn("relay dropped, occupant buffer full", "room", roomID, "occupant", m.occ.ID())
		}
	}
	return delivered
}
