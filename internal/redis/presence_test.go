package redis

import (
	"context"
	"io"
	"log/slog"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/mossy-p/peercall/config"
	"github.com/mossy-p/peercall/internal/registry"
)

func newTestPresence(t *testing.T, mr *miniredis.Miniredis, instance string) *Presence {
	t.Helper()
	host, port, err := net.SplitHostPort(mr.Addr())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	p, err := Connect(context.Background(), config.RedisConfig{Host: host, Port: port}, instance,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestConnectFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port, _ := net.SplitHostPort(mr.Addr())
	mr.Close()

	_, err := Connect(context.Background(), config.RedisConfig{Host: host, Port: port}, "x", nil)
	if err == nil {
		t.Fatalf("expected connection error")
	}
}

func TestPresenceMirrorsMembership(t *testing.T) {
	mr := miniredis.RunT(t)
	p := newTestPresence(t, mr, "node-1")
	ctx := context.Background()

	t0 := time.Now()
	p.OccupantAdmitted(registry.Membership{RoomID: "room1", OccupantID: "a", JoinedAt: t0})
	p.OccupantAdmitted(registry.Membership{RoomID: "room1", OccupantID: "b", JoinedAt: t0.Add(time.Second)})

	recs, err := p.Occupants(ctx, "room1")
	if err != nil {
		t.Fatalf("occupants: %v", err)
	}
	if len(recs) != 2 || recs[0].OccupantID != "a" || recs[1].OccupantID != "b" {
		t.Fatalf("records = %+v", recs)
	}
	if recs[0].Instance != "node-1" || recs[0].RoomID != "room1" {
		t.Fatalf("record = %+v", recs[0])
	}
	if ttl := mr.TTL(occupantsKey("room1")); ttl != recordTTL {
		t.Fatalf("ttl = %v", ttl)
	}

	p.OccupantLeft(registry.Membership{RoomID: "room1", OccupantID: "a"})
	p.OccupantLeft(registry.Membership{RoomID: "room1", OccupantID: "b"})

	recs, err = p.Occupants(ctx, "room1")
	if err != nil {
		t.Fatalf("occupants: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("records after leave = %+v", recs)
	}
	if ok, _ := mr.SIsMember(roomsKey, "room1"); ok {
		t.Fatalf("room index not cleaned up")
	}
}

// The last occupant leaving while someone else joins must never leave a
// populated room missing from the room index.
func TestPresenceLeaveRacingJoinKeepsRoomListed(t *testing.T) {
	mr := miniredis.RunT(t)
	p := newTestPresence(t, mr, "node-1")

	for i := 0; i < 100; i++ {
		leaving := fmt.Sprintf("a%d", i)
		joining := fmt.Sprintf("b%d", i)
		p.OccupantAdmitted(registry.Membership{RoomID: "room1", OccupantID: leaving, JoinedAt: time.Now()})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			p.OccupantLeft(registry.Membership{RoomID: "room1", OccupantID: leaving})
		}()
		go func() {
			defer wg.Done()
			p.OccupantAdmitted(registry.Membership{RoomID: "room1", OccupantID: joining, JoinedAt: time.Now()})
		}()
		wg.Wait()

		if !mr.Exists(occupantsKey("room1")) {
			t.Fatalf("round %d: occupant hash missing", i)
		}
		if ok, _ := mr.SIsMember(roomsKey, "room1"); !ok {
			t.Fatalf("round %d: populated room dropped from index", i)
		}
		p.OccupantLeft(registry.Membership{RoomID: "room1", OccupantID: joining})
		if ok, _ := mr.SIsMember(roomsKey, "room1"); ok {
			t.Fatalf("round %d: empty room still indexed", i)
		}
	}
}

func TestPresenceResetOnlyTouchesOwnRecords(t *testing.T) {
	mr := miniredis.RunT(t)
	mine := newTestPresence(t, mr, "node-1")
	other := newTestPresence(t, mr, "node-2")
	ctx := context.Background()

	mine.OccupantAdmitted(registry.Membership{RoomID: "room1", OccupantID: "a", JoinedAt: time.Now()})
	other.OccupantAdmitted(registry.Membership{RoomID: "room1", OccupantID: "b", JoinedAt: time.Now()})
	mine.OccupantAdmitted(registry.Membership{RoomID: "room2", OccupantID: "c", JoinedAt: time.Now()})

	removed, err := mine.Reset(ctx)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}

	recs, _ := mine.Occupants(ctx, "room1")
	if len(recs) != 1 || recs[0].OccupantID != "b" {
		t.Fatalf("room1 = %+v", recs)
	}
	if ok, _ := mr.SIsMember(roomsKey, "room2"); ok {
		t.Fatalf("room2 still indexed")
	}
}

func TestPresenceAsRegistryObserver(t *testing.T) {
	mr := miniredis.RunT(t)
	p := newTestPresence(t, mr, "node-1")
	reg := registry.New(registry.Options{Observer: p, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	occ := nopOccupant("a")
	if _, err := reg.Join("room1", occ); err != nil {
		t.Fatalf("join: %v", err)
	}
	recs, _ := p.Occupants(context.Background(), "room1")
	if len(recs) != 1 {
		t.Fatalf("records = %+v", recs)
	}
	reg.Leave(occ)
	recs, _ = p.Occupants(context.Background(), "room1")
	if len(recs) != 0 {
		t.Fatalf("records after leave = %+v", recs)
	}
}

type nopOccupant string

func (n nopOccupant) ID() string            { return string(n) }
func (n nopOccupant) Send(frame []byte) bool { return true }
