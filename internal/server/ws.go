package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mkruglov/roomcast/internal/api"
	"github.com/mkruglov/roomcast/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  maxMessageSize,
	WriteBufferSize: maxMessageSize,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsClient wraps one participant's websocket connection.
type wsClient struct {
	hub    *Hub
	conn   *websocket.Conn
	peerID string
	user   api.UserInfo
	send   chan *protocol.Message
}

type inbound struct {
	client *wsClient
	msg    *protocol.Message
}

// Hub routes signaling messages between connected participants. A single
// goroutine owns the client map, so no locks guard it.
type Hub struct {
	rooms *RoomService
	auth  *Auth
	log   *slog.Logger

	register   chan *wsClient
	unregister chan *wsClient
	inbound    chan inbound
	clients    map[string]*wsClient // peer id -> client
}

// NewHub creates a hub over the given room service and auth.
func NewHub(rooms *RoomService, auth *Auth) *Hub {
	return &Hub{
		rooms:      rooms,
		auth:       auth,
		log:        slog.Default().With("component", "hub"),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		inbound:    make(chan inbound, 64),
		clients:    make(map[string]*wsClient),
	}
}

// Run processes registrations and messages until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for _, c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[string]*wsClient)
			return

		case client := <-h.register:
			if old, ok := h.clients[client.peerID]; ok {
				close(old.send)
			}
			h.clients[client.peerID] = client
			h.log.Info("connected", "peer", client.peerID, "user", client.user.Name)

		case client := <-h.unregister:
			if current, ok := h.clients[client.peerID]; !ok || current != client {
				continue
			}
			delete(h.clients, client.peerID)
			close(client.send)
			h.dropFromRoom(ctx, client.peerID)
			h.log.Info("disconnected", "peer", client.peerID)

		case in := <-h.inbound:
			h.route(ctx, in.client, in.msg)
		}
	}
}

func (h *Hub) route(ctx context.Context, from *wsClient, msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeText:
		h.onText(ctx, from, msg)
	case protocol.TypeCreateRoom:
		h.onCreateRoom(ctx, from)
	case protocol.TypeJoinRoom:
		h.onJoinRoom(ctx, from, msg)
	case protocol.TypeLeaveRoom:
		h.dropFromRoom(ctx, from.peerID)
	case protocol.TypeGetRooms:
		h.onGetRooms(ctx, from)
	case protocol.TypeSDP, protocol.TypeCandidate:
		h.relay(from, msg)
	case protocol.TypeAddFakeUser:
		h.onAddFakeUser(ctx, from, msg)
	case protocol.TypeRemoveFakeUser:
		h.onRemoveFakeUser(ctx, from, msg)
	default:
		h.log.Warn("unhandled message type", "type", msg.Type, "from", from.peerID)
	}
}

func (h *Hub) onText(ctx context.Context, from *wsClient, msg *protocol.Message) {
	var data protocol.TextData
	if err := msg.DecodeData(&data); err != nil {
		h.log.Warn("malformed text message", "from", from.peerID, "error", err)
		return
	}
	if data.Author == "" {
		data.Author = from.user.Name
	}
	room, err := h.rooms.AppendMessage(ctx, data.RoomID, protocol.ChatMessage{
		Author: data.Author,
		Text:   data.Text,
	})
	if err != nil {
		h.log.Warn("chat append failed", "room", data.RoomID, "error", err)
		return
	}
	h.broadcast(room, protocol.TypeText, data, from.peerID)
}

func (h *Hub) onCreateRoom(ctx context.Context, from *wsClient) {
	owner := protocol.User{
		ID:         from.user.ID,
		PeerID:     from.peerID,
		Name:       from.user.Name,
		Picture:    from.user.Picture,
		PictureURL: from.user.PictureURL,
	}
	room, err := h.rooms.CreateRoom(ctx, owner)
	if err != nil {
		h.log.Warn("create room failed", "peer", from.peerID, "error", err)
		return
	}
	h.send(from.peerID, protocol.TypeRoomIsCreated, room, from.peerID)
}

func (h *Hub) onJoinRoom(ctx context.Context, from *wsClient, msg *protocol.Message) {
	var data protocol.JoinRoomData
	if err := msg.DecodeData(&data); err != nil {
		h.log.Warn("malformed join", "from", from.peerID, "error", err)
		return
	}
	user := protocol.User{
		ID:         from.user.ID,
		PeerID:     from.peerID,
		Name:       from.user.Name,
		Picture:    from.user.Picture,
		PictureURL: from.user.PictureURL,
	}
	room, err := h.rooms.JoinRoom(ctx, data.ID, user)
	if err != nil {
		h.log.Warn("join failed", "room", data.ID, "peer", from.peerID, "error", err)
		return
	}

	h.broadcast(room, protocol.TypeUpdateRoom, room, "")

	// Tell the owner to originate the media link to the newcomer.
	if room.Owner != from.peerID {
		h.send(room.Owner, protocol.TypeStartPeerConnection, protocol.JoinRoomData{
			ID:     room.ID,
			PeerID: from.peerID,
		}, from.peerID)
	}
}

func (h *Hub) onGetRooms(ctx context.Context, from *wsClient) {
	room, err := h.rooms.RoomForPeer(ctx, from.peerID)
	if err != nil {
		return
	}
	h.send(from.peerID, protocol.TypeUpdateRoom, room, "")
}

func (h *Hub) onAddFakeUser(ctx context.Context, from *wsClient, msg *protocol.Message) {
	var data protocol.FakeUserData
	if err := msg.DecodeData(&data); err != nil {
		h.log.Warn("malformed fake-user add", "from", from.peerID, "error", err)
		return
	}
	room, err := h.rooms.AddFakeUser(ctx, data.RoomID, data)
	if err != nil {
		h.log.Warn("fake-user add failed", "room", data.RoomID, "error", err)
		return
	}
	// Attribution first, membership second: receivers must know the name
	// before the renegotiated track shows up.
	h.broadcast(room, protocol.TypeAddFakeUser, data, from.peerID)
	h.broadcast(room, protocol.TypeUpdateRoom, room, "")
}

func (h *Hub) onRemoveFakeUser(ctx context.Context, from *wsClient, msg *protocol.Message) {
	var data protocol.FakeUserData
	if err := msg.DecodeData(&data); err != nil {
		return
	}
	room, err := h.rooms.RemoveFakeUser(ctx, data.RoomID, data.TrackID)
	if err != nil {
		return
	}
	h.broadcast(room, protocol.TypeRemoveFakeUser, data, from.peerID)
	h.broadcast(room, protocol.TypeUpdateRoom, room, "")
}

// relay forwards peer-addressed negotiation messages untouched.
func (h *Hub) relay(from *wsClient, msg *protocol.Message) {
	to, ok := h.clients[msg.To]
	if !ok {
		h.log.Warn("relay to unknown peer", "type", msg.Type, "to", msg.To)
		return
	}
	out := *msg
	out.From = from.peerID
	select {
	case to.send <- &out:
	default:
		h.log.Warn("send buffer full, dropping", "to", msg.To)
	}
}

func (h *Hub) dropFromRoom(ctx context.Context, peerID string) {
	room, err := h.rooms.RoomForPeer(ctx, peerID)
	if err != nil {
		return
	}
	room, err = h.rooms.LeaveRoom(ctx, room.ID, peerID)
	if err != nil || room == nil {
		return
	}
	h.broadcast(room, protocol.TypeUpdateRoom, room, "")
}

// broadcast sends to every connected member of the room except skipPeer.
func (h *Hub) broadcast(room *protocol.Room, t protocol.MessageType, data any, skipPeer string) {
	for _, u := range room.Users {
		if u.PeerID == "" || u.PeerID == skipPeer {
			continue
		}
		h.send(u.PeerID, t, data, "")
	}
	if skipPeer != "" && t == protocol.TypeText && room.HasPeer(skipPeer) {
		// Chat is echoed to the author too so both sides converge.
		h.send(skipPeer, t, data, "")
	}
}

func (h *Hub) send(peerID string, t protocol.MessageType, data any, from string) {
	client, ok := h.clients[peerID]
	if !ok {
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	msg := &protocol.Message{Type: t, Data: raw, From: from, To: peerID}
	select {
	case client.send <- msg:
	default:
		h.log.Warn("send buffer full, dropping", "to", peerID, "type", t)
	}
}

// ServeWS upgrades the connection after validating the token and peer id
// query parameters.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	peerID := r.URL.Query().Get("id")
	user, err := h.auth.ValidateToken(token)
	if err != nil || peerID == "" {
		h.log.Warn("ws auth rejected", "peer", peerID, "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		hub:    h,
		conn:   conn,
		peerID: peerID,
		user:   user,
		send:   make(chan *protocol.Message, 64),
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, bts, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg protocol.Message
		if err := json.Unmarshal(bts, &msg); err != nil {
			c.hub.log.Warn("malformed message discarded", "peer", c.peerID, "error", err)
			continue
		}
		c.hub.inbound <- inbound{client: c, msg: &msg}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			bts, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, bts); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
