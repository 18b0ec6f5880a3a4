package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/mossy-p/peercall/internal/models"
	"github.com/mossy-p/peercall/internal/session"
)

func TestStatusLine(t *testing.T) {
	tests := []struct {
		update session.Update
		want   string
	}{
		{session.Update{State: session.StateJoining, RoomID: "room1"}, "room1"},
		{session.Update{State: session.StateWaiting, RoomID: "room1"}, "waiting for a peer"},
		{session.Update{State: session.StateNegotiating, Reason: "ready"}, "negotiating"},
		{session.Update{State: session.StateNegotiating, Reason: "disconnected"}, "renegotiating"},
		{session.Update{State: session.StateConnected}, "Connected"},
		{session.Update{State: session.StateIdle, Reason: "peer_disconnect"}, "Peer left"},
		{session.Update{State: session.StateIdle, Reason: "room_full"}, "Room is full"},
		{session.Update{State: session.StateIdle, Reason: "evicted"}, "operator"},
		{session.Update{State: session.StateIdle, Reason: "leave"}, "Call ended (leave)"},
	}
	for _, tt := range tests {
		if got := StatusLine(tt.update); !strings.Contains(got, tt.want) {
			t.Errorf("StatusLine(%+v) = %q, want substring %q", tt.update, got, tt.want)
		}
	}
}

func TestRoomsTable(t *testing.T) {
	if got := RoomsTable(nil); !strings.Contains(got, "No active rooms") {
		t.Fatalf("empty table = %q", got)
	}

	got := RoomsTable([]models.RoomInfo{
		{ID: "room1", Capacity: 2, Occupants: 2, CreatedAt: time.Now(), OccupantIDs: []string{"a", "b"}},
		{ID: "room2", Capacity: 2, Occupants: 1, CreatedAt: time.Now()},
	})
	for _, want := range []string{"room1", "2/2", "room2", "1/2"} {
		if !strings.Contains(got, want) {
			t.Errorf("table missing %q:\n%s", want, got)
		}
	}
}

func TestPrintHelpers(t *testing.T) {
	var buf bytes.Buffer
	old := Out
	Out = &buf
	defer func() { Out = old }()

	PrintError("boom")
	PrintInfof("room %s", "room1")
	if s := buf.String(); !strings.Contains(s, "boom") || !strings.Contains(s, "room room1") {
		t.Fatalf("output = %q", s)
	}
}
