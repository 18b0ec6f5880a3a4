package signaling

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/peercall/config"
	"github.com/mossy-p/peercall/internal/handlers"
	"github.com/mossy-p/peercall/internal/models"
	"github.com/mossy-p/peercall/internal/registry"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newServer(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := registry.New(registry.Options{Logger: quiet})
	h := handlers.New(&config.Config{AllowedOrigins: []string{"*"}}, reg, nil, quiet)
	ts := httptest.NewServer(handlers.NewRouter(h))
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, url, quiet)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func next(t *testing.T, c *Client, want models.Event) *models.Message {
	t.Helper()
	select {
	case msg, ok := <-c.Incoming():
		if !ok {
			t.Fatalf("connection closed waiting for %s", want)
		}
		if msg.Event != want {
			t.Fatalf("event = %s, want %s (%+v)", msg.Event, want, msg)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %s", want)
	}
	return nil
}

func TestJoinAndSignal(t *testing.T) {
	url := newServer(t)
	a, b := dial(t, url), dial(t, url)

	if err := a.Join("room1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	aID := next(t, a, models.EventJoined).OccupantID
	if err := b.Join("room1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	bID := next(t, b, models.EventJoined).OccupantID

	if ready := next(t, a, models.EventReady); ready.OccupantID != aID || ready.PeerID != bID {
		t.Fatalf("a ready = %+v", ready)
	}
	next(t, b, models.EventReady)

	sdp := &models.SessionDescription{Type: "offer", SDP: "v=0"}
	if err := a.Signal("room1", &models.Envelope{Type: models.KindOffer, SDP: sdp}); err != nil {
		t.Fatalf("signal: %v", err)
	}
	msg := next(t, b, models.EventSignal)
	env, err := models.ParseEnvelope(msg.Data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if env.Type != models.KindOffer || env.SDP.SDP != "v=0" {
		t.Fatalf("envelope = %+v", env)
	}

	if err := a.Leave(); err != nil {
		t.Fatalf("leave: %v", err)
	}
	next(t, b, models.EventPeerDisconnect)
}

func TestCloseEndsConnection(t *testing.T) {
	url := newServer(t)
	c := dial(t, url)
	c.Close()

	if err := c.Join("room1"); !errors.Is(err, ErrClosed) {
		t.Fatalf("join after close = %v", err)
	}

	select {
	case _, ok := <-c.Incoming():
		if ok {
			t.Fatalf("unexpected message after close")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("incoming not closed")
	}
}

func TestDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := Dial(ctx, "ws://127.0.0.1:1/ws", quiet); err == nil {
		t.Fatalf("dial to closed port succeeded")
	}
}
