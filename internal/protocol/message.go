package protocol

import "encoding/json"

// MessageType discriminates every message that crosses the signaling channel.
// The numeric values are part of the wire contract and must not be reordered.
type MessageType int

const (
	TypeText                MessageType = 0
	TypeCreateRoom          MessageType = 1
	TypeJoinRoom            MessageType = 2
	TypeLeaveRoom           MessageType = 3
	TypeSDP                 MessageType = 4
	TypeCandidate           MessageType = 5
	TypeGetRooms            MessageType = 6
	TypeRoomIsCreated       MessageType = 7
	TypeUpdateRoom          MessageType = 8
	TypeStartPeerConnection MessageType = 9
	TypeAddFakeUser         MessageType = 10
	TypeRemoveFakeUser      MessageType = 11
)

// Synthetic channel events, delivered through the same handler registry as
// wire messages but never serialized.
const (
	TypeOnOpen  MessageType = -1
	TypeOnClose MessageType = -2
)

// ToAll addresses a message to every member of the sender's room.
const ToAll = "all"

func (t MessageType) String() string {
	switch t {
	case TypeText:
		return "text"
	case TypeCreateRoom:
		return "create-room"
	case TypeJoinRoom:
		return "join-room"
	case TypeLeaveRoom:
		return "leave-room"
	case TypeSDP:
		return "sdp"
	case TypeCandidate:
		return "candidate"
	case TypeGetRooms:
		return "get-rooms"
	case TypeRoomIsCreated:
		return "room-is-created"
	case TypeUpdateRoom:
		return "update-room"
	case TypeStartPeerConnection:
		return "start-peer-connection"
	case TypeAddFakeUser:
		return "add-fake-user"
	case TypeRemoveFakeUser:
		return "remove-fake-user"
	case TypeOnOpen:
		return "on-open"
	case TypeOnClose:
		return "on-close"
	}
	return "unknown"
}

// Message is the wire envelope: binary-framed UTF-8 JSON. An absent To means
// server/default routing.
type Message struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	From string          `json:"from,omitempty"`
	To   string          `json:"to,omitempty"`
}

// NewMessage marshals data into a message envelope of the given type.
func NewMessage(t MessageType, data any) (*Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{Type: t, Data: raw}, nil
}

// DecodeData unmarshals the payload into v.
func (m *Message) DecodeData(v any) error {
	return json.Unmarshal(m.Data, v)
}

// JoinRoomData is carried by JOIN_ROOM messages.
type JoinRoomData struct {
	ID     string `json:"id"`
	PeerID string `json:"peerId"`
}

// SDPData carries an offer or answer session description.
type SDPData struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// CandidateData carries a trickled ICE candidate.
type CandidateData struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid,omitempty"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex,omitempty"`
}

// FakeUserData announces a synthetic, file-sourced participant. TrackID ties
// the room membership entry to the media track that carries its audio.
type FakeUserData struct {
	RoomID  string `json:"roomId"`
	TrackID string `json:"trackId"`
	Name    string `json:"name"`
}

// TextData is a chat message addressed to a room.
type TextData struct {
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
	Author string `json:"author"`
}
