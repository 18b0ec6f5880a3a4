package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/mossy-p/peercall/internal/models"
	"github.com/mossy-p/peercall/internal/session"
)

// StatusLine renders one session transition for the terminal.
func StatusLine(u session.Update) string {
	room := BoldStyle.Foreground(Primary).Render(u.RoomID)

	switch u.State {
	case session.StateJoining:
		return fmt.Sprintf("%s Joining %s...", IconRoom, room)
	case session.StateWaiting:
		return fmt.Sprintf("%s In %s, waiting for a peer", IconWaiting, room)
	case session.StateNegotiating:
		if u.Reason == "ready" {
			return fmt.Sprintf("%s Peer present, negotiating", IconPeer)
		}
		return WarningStyle.Render(fmt.Sprintf("%s Connection %s, renegotiating", IconWarning, u.Reason))
	case session.StateConnected:
		return SuccessStyle.Render(IconConnect + " Connected")
	}

	switch u.Reason {
	case "peer_disconnect":
		return WarningStyle.Render(IconPeer + " Peer left the call")
	case "evicted":
		return ErrorStyle.Render(IconError + " Removed from the room by an operator")
	case "room_full":
		return ErrorStyle.Render(IconError + " Room is full (2 participants max)")
	case "disconnected":
		return ErrorStyle.Render(IconError + " Lost connection to the signaling server")
	case "":
		return MutedStyle.Render("Idle")
	default:
		return MutedStyle.Render("Call ended (" + u.Reason + ")")
	}
}

// RoomsTable renders rooms for the operator listing.
func RoomsTable(rooms []models.RoomInfo) string {
	if len(rooms) == 0 {
		return MutedStyle.Render("No active rooms")
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Room", "Occupants", "Age", "Occupant IDs"})
	for _, r := range rooms {
		t.AppendRow(table.Row{
			r.ID,
			fmt.Sprintf("%d/%d", r.Occupants, r.Capacity),
			time.Since(r.CreatedAt).Truncate(time.Second),
			strings.Join(r.OccupantIDs, "\n"),
		})
	}
	return t.Render()
}

// RoomBox renders the public view of a single room.
func RoomBox(r models.RoomInfo) string {
	return BoxStyle.Render(fmt.Sprintf("%s %s\n%s %d/%d occupants",
		IconRoom, TitleStyle.Render(r.ID),
		IconPeer, r.Occupants, r.Capacity,
	))
}
