package signaling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mossy-p/peercall/internal/models"
)

var ErrNotFound = errors.New("not found")

// APIClient talks to the HTTP endpoints of the signaling server.
type APIClient struct {
	base string
	http *http.Client
}

// NewAPIClient derives the HTTP base URL from the websocket URL of the same
// server, so ws://host:8080/ws becomes http://host:8080.
func NewAPIClient(signalURL string) (*APIClient, error) {
	u, err := url.Parse(signalURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/ws")
	u.RawQuery = ""

	return &APIClient{
		base: strings.TrimSuffix(u.String(), "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Login exchanges the operator password for a token.
func (a *APIClient) Login(ctx context.Context, password string) (string, error) {
	body, _ := json.Marshal(models.LoginRequest{Password: password})
	var out models.LoginResponse
	if err := a.do(ctx, http.MethodPost, "/api/auth/login", "", body, &out); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	return out.Token, nil
}

// Rooms lists every live room. It needs an operator token.
func (a *APIClient) Rooms(ctx context.Context, token string) ([]models.RoomInfo, error) {
	var out struct {
		Rooms []models.RoomInfo `json:"rooms"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/rooms", token, nil, &out); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return out.Rooms, nil
}

// Room returns the public occupancy of one room.
func (a *APIClient) Room(ctx context.Context, roomID string) (models.RoomInfo, error) {
	var out models.RoomInfo
	if err := a.do(ctx, http.MethodGet, "/api/rooms/"+url.PathEscape(roomID), "", nil, &out); err != nil {
		return models.RoomInfo{}, fmt.Errorf("get room: %w", err)
	}
	return out, nil
}

// DeleteRoom evicts everyone in a room. It needs an operator token.
func (a *APIClient) DeleteRoom(ctx context.Context, token, roomID string) error {
	if err := a.do(ctx, http.MethodDelete, "/api/rooms/"+url.PathEscape(roomID), token, nil, nil); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}

func (a *APIClient) do(ctx context.Context, method, path, token string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, a.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
