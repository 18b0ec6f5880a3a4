package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/mossy-p/peercall/internal/models"
)

type stubPresence struct {
	records []models.PresenceRecord
	err     error
}

func (s stubPresence) Occupants(ctx context.Context, roomID string) ([]models.PresenceRecord, error) {
	return s.records, s.err
}

func login(t *testing.T, ts *testServer, password string) (*http.Response, models.LoginResponse) {
	t.Helper()
	body, _ := json.Marshal(models.LoginRequest{Password: password})
	resp, err := http.Post(ts.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer resp.Body.Close()
	var out models.LoginResponse
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func authed(t *testing.T, method, url, token string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(method, url, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, _ := login(t, ts, "wrong")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d", resp.StatusCode)
	}

	resp, out := login(t, ts, "hunter2")
	if resp.StatusCode != http.StatusOK || out.Token == "" {
		t.Fatalf("status = %d token = %q", resp.StatusCode, out.Token)
	}
	if out.ExpiresAt.Before(time.Now()) {
		t.Fatalf("token already expired: %v", out.ExpiresAt)
	}

	ts.cfg.AdminPassword = ""
	resp, _ = login(t, ts, "hunter2")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("disabled login status = %d", resp.StatusCode)
	}
}

func TestRoomEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)
	a, b := ts.dial(t), ts.dial(t)
	aID, bID := pair(t, a, b, "room1")

	resp, err := http.Get(ts.URL + "/api/rooms/room1")
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	var info models.RoomInfo
	json.NewDecoder(resp.Body).Decode(&info)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || info.Occupants != 2 || info.Capacity != 2 {
		t.Fatalf("status = %d info = %+v", resp.StatusCode, info)
	}
	if len(info.OccupantIDs) != 0 {
		t.Fatalf("public endpoint leaked occupant ids: %v", info.OccupantIDs)
	}

	resp, _ = http.Get(ts.URL + "/api/rooms/missing")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing room status = %d", resp.StatusCode)
	}

	resp = authed(t, http.MethodGet, ts.URL+"/api/rooms", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated list status = %d", resp.StatusCode)
	}

	_, tok := login(t, ts, "hunter2")
	resp = authed(t, http.MethodGet, ts.URL+"/api/rooms", tok.Token)
	var list struct {
		Rooms []models.RoomInfo `json:"rooms"`
	}
	json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if len(list.Rooms) != 1 || list.Rooms[0].OccupantIDs[0] != aID || list.Rooms[0].OccupantIDs[1] != bID {
		t.Fatalf("rooms = %+v", list.Rooms)
	}

	resp = authed(t, http.MethodDelete, ts.URL+"/api/rooms/room1", tok.Token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	expectEvent(t, a, models.EventEvicted)
	expectEvent(t, b, models.EventEvicted)

	resp = authed(t, http.MethodDelete, ts.URL+"/api/rooms/room1", tok.Token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status = %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	a := ts.dial(t)
	join(t, a, "room1")
	expectEvent(t, a, models.EventJoined)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Status    string `json:"status"`
		Rooms     int    `json:"rooms"`
		Occupants int    `json:"occupants"`
	}
	json.NewDecoder(resp.Body).Decode(&body)
	if body.Status != "ok" || body.Rooms != 1 || body.Occupants != 1 {
		t.Fatalf("health = %+v", body)
	}
}

func TestPresenceEndpoint(t *testing.T) {
	disabled := newTestServer(t, nil)
	_, tok := login(t, disabled, "hunter2")
	resp := authed(t, http.MethodGet, disabled.URL+"/api/presence/room1", tok.Token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("disabled presence status = %d", resp.StatusCode)
	}

	rec := models.PresenceRecord{OccupantID: "a", RoomID: "room1", Instance: "node-1"}
	enabled := newTestServer(t, stubPresence{records: []models.PresenceRecord{rec}})
	_, tok = login(t, enabled, "hunter2")
	resp = authed(t, http.MethodGet, enabled.URL+"/api/presence/room1", tok.Token)
	var body struct {
		Occupants []models.PresenceRecord `json:"occupants"`
	}
	json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || len(body.Occupants) != 1 || body.Occupants[0].Instance != "node-1" {
		t.Fatalf("status = %d body = %+v", resp.StatusCode, body)
	}

	failing := newTestServer(t, stubPresence{err: errors.New("down")})
	_, tok = login(t, failing, "hunter2")
	resp = authed(t, http.MethodGet, failing.URL+"/api/presence/room1", tok.Token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("failing presence status = %d", resp.StatusCode)
	}
}
