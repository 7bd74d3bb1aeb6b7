package protocol

// User is a room member as the server reports it. Exactly one of Picture and
// PictureURL is used by clients; PictureURL takes precedence when present.
type User struct {
	ID         string `json:"id"`
	PeerID     string `json:"peerId"`
	Name       string `json:"name"`
	Picture    []byte `json:"picture,omitempty"`
	PictureURL string `json:"pictureUrl,omitempty"`
}

// ChatMessage is one entry of a room's message history.
type ChatMessage struct {
	Author    string `json:"author"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Room is the server-owned room state. Clients hold a read-mostly cached
// copy, replaced wholesale on every UPDATE_ROOM event.
type Room struct {
	ID       string        `json:"id"`
	Owner    string        `json:"owner"`
	Users    []User        `json:"users"`
	Messages []ChatMessage `json:"messages"`
}

// HasPeer reports whether the room contains a member with the given peer id.
// Synthetic members carry no peer id and never match.
func (r *Room) HasPeer(peerID string) bool {
	if peerID == "" {
		return false
	}
	for _, u := range r.Users {
		if u.PeerID == peerID {
			return true
		}
	}
	return false
}
