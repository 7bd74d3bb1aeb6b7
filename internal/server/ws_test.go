package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkruglov/roomcast/internal/protocol"
)

type wsHarness struct {
	auth *Auth
	svc  *RoomService
	hub  *Hub
	srv  *httptest.Server
}

func newWSHarness(t *testing.T) *wsHarness {
	t.Helper()
	h := &wsHarness{
		auth: NewAuth("test-secret"),
		svc:  NewRoomService(NewMemoryStore()),
	}
	h.hub = NewHub(h.svc, h.auth)

	ctx, cancel := context.WithCancel(context.Background())
	go h.hub.Run(ctx)

	h.srv = httptest.NewServer(http.HandlerFunc(h.hub.ServeWS))
	t.Cleanup(func() {
		h.srv.Close()
		cancel()
	})
	return h
}

func (h *wsHarness) endpoint(token, peerID string) string {
	return "ws" + strings.TrimPrefix(h.srv.URL, "http") +
		"?token=" + url.QueryEscape(token) + "&id=" + url.QueryEscape(peerID)
}

// wsPeer is one connected test participant.
type wsPeer struct {
	conn     *websocket.Conn
	id       string
	received chan *protocol.Message
}

func (h *wsHarness) dial(t *testing.T, peerID, name string) *wsPeer {
	t.Helper()
	token, err := h.auth.NewToken(name, "")
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(h.endpoint(token, peerID), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	p := &wsPeer{conn: conn, id: peerID, received: make(chan *protocol.Message, 32)}
	go func() {
		for {
			_, bts, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg protocol.Message
			if err := json.Unmarshal(bts, &msg); err != nil {
				continue
			}
			p.received <- &msg
		}
	}()
	return p
}

func (p *wsPeer) send(t *testing.T, typ protocol.MessageType, data any, to string) {
	t.Helper()
	msg, err := protocol.NewMessage(typ, data)
	require.NoError(t, err)
	msg.To = to
	bts, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, p.conn.WriteMessage(websocket.BinaryMessage, bts))
}

// next returns the next inbound message, in delivery order.
func (p *wsPeer) next(t *testing.T) *protocol.Message {
	t.Helper()
	select {
	case msg := <-p.received:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func (p *wsPeer) expectType(t *testing.T, typ protocol.MessageType) *protocol.Message {
	t.Helper()
	msg := p.next(t)
	require.Equal(t, typ, msg.Type, "unexpected message type %s", msg.Type)
	return msg
}

func (p *wsPeer) expectSilence(t *testing.T) {
	t.Helper()
	select {
	case msg := <-p.received:
		t.Fatalf("unexpected message: %s", msg.Type)
	case <-time.After(150 * time.Millisecond):
	}
}

func createRoom(t *testing.T, p *wsPeer) protocol.Room {
	t.Helper()
	p.send(t, protocol.TypeCreateRoom, struct{}{}, "")
	var room protocol.Room
	require.NoError(t, p.expectType(t, protocol.TypeRoomIsCreated).DecodeData(&room))
	return room
}

func joinRoom(t *testing.T, owner, joiner *wsPeer, roomID string) {
	t.Helper()
	joiner.send(t, protocol.TypeJoinRoom, protocol.JoinRoomData{ID: roomID, PeerID: joiner.id}, "")
	owner.expectType(t, protocol.TypeUpdateRoom)
	owner.expectType(t, protocol.TypeStartPeerConnection)
	joiner.expectType(t, protocol.TypeUpdateRoom)
}

func TestUpgradeRequiresValidCredentials(t *testing.T) {
	h := newWSHarness(t)

	_, resp, err := websocket.DefaultDialer.Dial(h.endpoint("garbage", "p1"), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := h.auth.NewToken("Alice", "")
	require.NoError(t, err)
	_, resp, err = websocket.DefaultDialer.Dial(h.endpoint(token, ""), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateRoomConfirmedToCreator(t *testing.T) {
	h := newWSHarness(t)
	alice := h.dial(t, "p-alice", "Alice")

	room := createRoom(t, alice)

	assert.NotEmpty(t, room.ID)
	assert.Equal(t, "p-alice", room.Owner)
	require.Len(t, room.Users, 1)
	assert.Equal(t, "Alice", room.Users[0].Name)
}

func TestJoinNotifiesEveryoneAndPromptsOwner(t *testing.T) {
	h := newWSHarness(t)
	alice := h.dial(t, "p-alice", "Alice")
	bob := h.dial(t, "p-bob", "Bob")
	room := createRoom(t, alice)

	bob.send(t, protocol.TypeJoinRoom, protocol.JoinRoomData{ID: room.ID, PeerID: bob.id}, "")

	var updated protocol.Room
	require.NoError(t, alice.expectType(t, protocol.TypeUpdateRoom).DecodeData(&updated))
	assert.Len(t, updated.Users, 2)

	var prompt protocol.JoinRoomData
	require.NoError(t, alice.expectType(t, protocol.TypeStartPeerConnection).DecodeData(&prompt))
	assert.Equal(t, "p-bob", prompt.PeerID)
	assert.Equal(t, room.ID, prompt.ID)

	require.NoError(t, bob.expectType(t, protocol.TypeUpdateRoom).DecodeData(&updated))
	assert.Len(t, updated.Users, 2)
	// The joiner never gets told to originate a connection.
	bob.expectSilence(t)
}

func TestNegotiationRelayedToAddressee(t *testing.T) {
	h := newWSHarness(t)
	alice := h.dial(t, "p-alice", "Alice")
	bob := h.dial(t, "p-bob", "Bob")

	bob.send(t, protocol.TypeSDP, protocol.SDPData{Type: "offer", SDP: "v=0"}, alice.id)

	msg := alice.expectType(t, protocol.TypeSDP)
	assert.Equal(t, "p-bob", msg.From, "the hub stamps the sender identity")
	var sdp protocol.SDPData
	require.NoError(t, msg.DecodeData(&sdp))
	assert.Equal(t, "offer", sdp.Type)
	assert.Equal(t, "v=0", sdp.SDP)

	// Addressed to nobody: dropped, not broadcast.
	bob.send(t, protocol.TypeCandidate, protocol.CandidateData{Candidate: "candidate:1"}, "ghost")
	alice.expectSilence(t)
}

func TestChatBroadcastEchoesToAuthor(t *testing.T) {
	h := newWSHarness(t)
	alice := h.dial(t, "p-alice", "Alice")
	bob := h.dial(t, "p-bob", "Bob")
	room := createRoom(t, alice)
	joinRoom(t, alice, bob, room.ID)

	bob.send(t, protocol.TypeText, protocol.TextData{RoomID: room.ID, Text: "hello"}, "")

	var data protocol.TextData
	require.NoError(t, alice.expectType(t, protocol.TypeText).DecodeData(&data))
	assert.Equal(t, "hello", data.Text)
	assert.Equal(t, "Bob", data.Author, "the author defaults to the sender's display name")

	require.NoError(t, bob.expectType(t, protocol.TypeText).DecodeData(&data))
	assert.Equal(t, "hello", data.Text)
}

func TestFakeUserAttributionPrecedesMembership(t *testing.T) {
	h := newWSHarness(t)
	alice := h.dial(t, "p-alice", "Alice")
	bob := h.dial(t, "p-bob", "Bob")
	room := createRoom(t, alice)
	joinRoom(t, alice, bob, room.ID)

	alice.send(t, protocol.TypeAddFakeUser, protocol.FakeUserData{
		RoomID:  room.ID,
		TrackID: "t1",
		Name:    "Piano",
	}, "")

	// Listeners learn the name before the membership update.
	var fake protocol.FakeUserData
	require.NoError(t, bob.expectType(t, protocol.TypeAddFakeUser).DecodeData(&fake))
	assert.Equal(t, "Piano", fake.Name)

	var updated protocol.Room
	require.NoError(t, bob.expectType(t, protocol.TypeUpdateRoom).DecodeData(&updated))
	assert.Len(t, updated.Users, 3)

	// The originator already knows the name; it only sees the membership.
	require.NoError(t, alice.expectType(t, protocol.TypeUpdateRoom).DecodeData(&updated))
	assert.Len(t, updated.Users, 3)

	alice.send(t, protocol.TypeRemoveFakeUser, protocol.FakeUserData{RoomID: room.ID, TrackID: "t1"}, "")
	bob.expectType(t, protocol.TypeRemoveFakeUser)
	require.NoError(t, bob.expectType(t, protocol.TypeUpdateRoom).DecodeData(&updated))
	assert.Len(t, updated.Users, 2)
}

func TestGetRoomsReturnsCurrentRoom(t *testing.T) {
	h := newWSHarness(t)
	alice := h.dial(t, "p-alice", "Alice")
	room := createRoom(t, alice)

	alice.send(t, protocol.TypeGetRooms, struct{}{}, "")

	var got protocol.Room
	require.NoError(t, alice.expectType(t, protocol.TypeUpdateRoom).DecodeData(&got))
	assert.Equal(t, room.ID, got.ID)
}

func TestLeaveRoomNotifiesRemaining(t *testing.T) {
	h := newWSHarness(t)
	alice := h.dial(t, "p-alice", "Alice")
	bob := h.dial(t, "p-bob", "Bob")
	room := createRoom(t, alice)
	joinRoom(t, alice, bob, room.ID)

	bob.send(t, protocol.TypeLeaveRoom, map[string]string{"id": room.ID}, "")

	var updated protocol.Room
	require.NoError(t, alice.expectType(t, protocol.TypeUpdateRoom).DecodeData(&updated))
	require.Len(t, updated.Users, 1)
	assert.Equal(t, "Alice", updated.Users[0].Name)
}

func TestDisconnectDropsMemberFromRoom(t *testing.T) {
	h := newWSHarness(t)
	alice := h.dial(t, "p-alice", "Alice")
	bob := h.dial(t, "p-bob", "Bob")
	room := createRoom(t, alice)
	joinRoom(t, alice, bob, room.ID)

	bob.conn.Close()

	var updated protocol.Room
	require.NoError(t, alice.expectType(t, protocol.TypeUpdateRoom).DecodeData(&updated))
	require.Len(t, updated.Users, 1)
	assert.Equal(t, "Alice", updated.Users[0].Name)
}
