package session

import (
	"encoding/base64"

	"github.com/mkruglov/roomcast/internal/protocol"
)

// VisibleUser is a room member as the rendering layer shows it: avatar
// already normalized, never the local participant itself.
type VisibleUser struct {
	ID     string
	PeerID string
	Name   string
	Avatar string
}

// FakeUser is a locally injected synthetic participant, keyed by the id of
// the file-sourced track that carries its audio.
type FakeUser struct {
	TrackID string
	Name    string
}

// RemoteStream is an incoming media track on some peer link, with the display
// name resolved from membership or in-band attribution (empty until known).
type RemoteStream struct {
	PeerID  string
	TrackID string
	Kind    string
	Name    string
}

// State is the single UI-observable snapshot. It is replaced wholesale on
// every mutation; consumers never see a partially updated version.
type State struct {
	Authenticated bool
	UserID        string
	Username      string
	Avatar        string
	PeerID        string

	Room           *protocol.Room
	Users          []VisibleUser
	Messages       []protocol.ChatMessage
	PendingRoomID  string
	ConferenceLink string
	Broadcasting   bool

	Muted     bool
	FakeUsers []FakeUser
	Streams   []RemoteStream
	Links     map[string]string // peer id -> negotiation state
}

// Listener observes every new state snapshot.
type Listener func(State)

// normalizeAvatar picks the one avatar representation the UI uses: an
// absolute URL when present, otherwise the inline image bytes as a data URI.
func normalizeAvatar(u protocol.User) string {
	if u.PictureURL != "" {
		return u.PictureURL
	}
	if len(u.Picture) > 0 {
		return "data:image/png;base64," + base64.StdEncoding.EncodeToString(u.Picture)
	}
	return ""
}

// visibleUsers maps the server's member list to the rendered list, dropping
// the entry whose peer id matches the local connection. Self never appears in
// the remote-peer list.
func visibleUsers(users []protocol.User, selfPeerID string) []VisibleUser {
	out := make([]VisibleUser, 0, len(users))
	for _, u := range users {
		if u.PeerID == selfPeerID {
			continue
		}
		out = append(out, VisibleUser{
			ID:     u.ID,
			PeerID: u.PeerID,
			Name:   u.Name,
			Avatar: normalizeAvatar(u),
		})
	}
	return out
}
