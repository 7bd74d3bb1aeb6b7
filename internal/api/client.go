// Package api is the thin client for the REST collaborator surface:
// authentication and room CRUD live on the server, not here.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mkruglov/roomcast/internal/protocol"
)

// ErrUnauthenticated marks a rejected credential. The session is downgraded
// and the request is not retried.
var ErrUnauthenticated = errors.New("unauthenticated")

// UserInfo is the authenticated identity the server reports.
type UserInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Picture    []byte `json:"picture,omitempty"`
	PictureURL string `json:"pictureUrl,omitempty"`
}

// Login obtains a session token for a display name. It needs no prior
// credential, so it lives outside Client.
func Login(ctx context.Context, baseURL, name, pictureURL string) (string, error) {
	body, err := json.Marshal(map[string]string{"name": name, "pictureUrl": pictureURL})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return "", fmt.Errorf("login: unexpected status %d", res.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// Client talks to the REST collaborator with a bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for baseURL (scheme and host, no trailing slash).
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// GetUser fetches the authenticated user.
func (c *Client) GetUser(ctx context.Context) (UserInfo, error) {
	var user UserInfo
	err := c.do(ctx, http.MethodGet, "/auth/user", nil, &user)
	return user, err
}

// ListRooms fetches the rooms the user participates in.
func (c *Client) ListRooms(ctx context.Context) ([]protocol.Room, error) {
	var rooms []protocol.Room
	err := c.do(ctx, http.MethodGet, "/api/room", nil, &rooms)
	return rooms, err
}

// CreateRoom creates a room owned by the caller.
func (c *Client) CreateRoom(ctx context.Context) (protocol.Room, error) {
	var room protocol.Room
	err := c.do(ctx, http.MethodPost, "/api/room", struct{}{}, &room)
	return room, err
}

// JoinRoom adds the caller to a room and returns its descriptor with owner.
func (c *Client) JoinRoom(ctx context.Context, id string) (protocol.Room, error) {
	var room protocol.Room
	err := c.do(ctx, http.MethodPost, "/api/room/join/"+id, struct{}{}, &room)
	return room, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		bts, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(bts)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthenticated)
	case res.StatusCode >= 400:
		return fmt.Errorf("%s %s: unexpected status %d", method, path, res.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}
