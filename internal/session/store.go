package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mkruglov/roomcast/internal/api"
	"github.com/mkruglov/roomcast/internal/files"
	"github.com/mkruglov/roomcast/internal/media"
	"github.com/mkruglov/roomcast/internal/protocol"
	"github.com/mkruglov/roomcast/internal/rtc"
	"github.com/mkruglov/roomcast/internal/signaling"
)

// Transport is the slice of the signaling channel the store depends on.
type Transport interface {
	On(t protocol.MessageType, h signaling.Handler)
	Send(msg *protocol.Message)
	PeerID() string
}

// Store is the single source of truth for UI-observable state and the command
// surface that turns user intent into signaling traffic. It owns the media
// tracks and feeds the peer connection manager; the manager talks back only
// through the rtc.Sink edge the store implements.
type Store struct {
	log       *slog.Logger
	transport Transport
	manager   *rtc.Manager
	engine    media.Engine
	rest      *api.Client

	mu        sync.Mutex
	state     State
	listeners []Listener

	mic        media.Track
	silent     media.Track
	primary    media.Track
	fakeTracks map[string]rtc.LocalTrack
	trackNames map[string]string // remote track id -> attributed name
}

// NewStore wires the store to its collaborators. Call Bind before connecting
// the transport so no early message is missed.
func NewStore(transport Transport, manager *rtc.Manager, engine media.Engine, rest *api.Client) *Store {
	return &Store{
		log:        slog.Default().With("component", "session"),
		transport:  transport,
		manager:    manager,
		engine:     engine,
		rest:       rest,
		state:      State{Links: map[string]string{}},
		fakeTracks: make(map[string]rtc.LocalTrack),
		trackNames: make(map[string]string),
	}
}

// New builds a store together with its peer connection manager, closing the
// event loop between them: the manager reports into the store through the
// rtc.Sink edge.
func New(transport Transport, factory rtc.Factory, engine media.Engine, rest *api.Client) *Store {
	s := NewStore(transport, nil, engine, rest)
	s.manager = rtc.NewManager(factory, s)
	return s
}

// Bind registers the store's handlers on the transport.
func (s *Store) Bind() {
	s.transport.On(protocol.TypeOnOpen, s.onOpen)
	s.transport.On(protocol.TypeOnClose, s.onClose)
	s.transport.On(protocol.TypeText, s.onTextMessage)
	s.transport.On(protocol.TypeRoomIsCreated, s.onRoomIsCreated)
	s.transport.On(protocol.TypeUpdateRoom, s.onUpdateRoom)
	s.transport.On(protocol.TypeStartPeerConnection, s.onStartPeerConnection)
	s.transport.On(protocol.TypeSDP, s.onSDP)
	s.transport.On(protocol.TypeCandidate, s.onCandidate)
	s.transport.On(protocol.TypeAddFakeUser, s.onAddFakeUser)
	s.transport.On(protocol.TypeRemoveFakeUser, s.onRemoveFakeUser)
}

// Init authenticates against the REST collaborator and records the user. An
// authentication failure downgrades the session and is not retried.
func (s *Store) Init(ctx context.Context) error {
	user, err := s.rest.GetUser(ctx)
	if err != nil {
		s.set(func(st *State) { st.Authenticated = false })
		return fmt.Errorf("auth: %w", err)
	}
	s.set(func(st *State) {
		st.Authenticated = true
		st.UserID = user.ID
		st.Username = user.Name
		st.Avatar = normalizeAvatar(protocol.User{Picture: user.Picture, PictureURL: user.PictureURL})
	})
	return nil
}

// Subscribe registers a listener invoked synchronously with every new state.
func (s *Store) Subscribe(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// Get returns the current snapshot.
func (s *Store) Get() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// set is the only mutation primitive: it copies the current snapshot, applies
// the mutation, swaps, and notifies every listener with the full new state.
func (s *Store) set(mutate func(*State)) State {
	s.mu.Lock()
	next := s.state
	mutate(&next)
	s.state = next
	listeners := s.listeners
	s.mu.Unlock()

	for _, l := range listeners {
		l(next)
	}
	return next
}

// ---- user-intent commands ----

// SetPendingRoom records a room id to auto-join once the channel opens, the
// analog of loading the page with ?room=<id>. When the channel is already
// open the join goes out immediately.
func (s *Store) SetPendingRoom(id string) {
	st := s.set(func(st *State) { st.PendingRoomID = id })
	if st.PeerID != "" && st.Room == nil {
		s.JoinRoom(id)
	}
}

// JoinRoom announces this participant to the room.
func (s *Store) JoinRoom(id string) {
	msg, err := protocol.NewMessage(protocol.TypeJoinRoom, protocol.JoinRoomData{
		ID:     id,
		PeerID: s.transport.PeerID(),
	})
	if err != nil {
		s.log.Error("encode join failed", "error", err)
		return
	}
	msg.From = s.transport.PeerID()
	s.transport.Send(msg)
	s.set(func(st *State) { st.PendingRoomID = id })
}

// ToggleConference starts a conference when none is active, stops it
// otherwise.
func (s *Store) ToggleConference() {
	if s.Get().Room != nil {
		s.StopConference()
		return
	}
	s.StartConference()
}

// StartConference requests a new room. Broadcaster mode is entered when the
// server confirms with ROOM_IS_CREATED.
func (s *Store) StartConference() {
	msg, err := protocol.NewMessage(protocol.TypeCreateRoom, struct{}{})
	if err != nil {
		return
	}
	msg.From = s.transport.PeerID()
	s.transport.Send(msg)
}

// StopConference leaves the room and tears down every peer link.
func (s *Store) StopConference() {
	st := s.Get()
	if st.Room != nil {
		msg, err := protocol.NewMessage(protocol.TypeLeaveRoom, map[string]string{"id": st.Room.ID})
		if err == nil {
			msg.From = s.transport.PeerID()
			s.transport.Send(msg)
		}
	}
	s.manager.Reset()
	s.releaseTracks()
	s.set(func(st *State) {
		st.Room = nil
		st.Users = nil
		st.Messages = nil
		st.Broadcasting = false
		st.ConferenceLink = ""
		st.PendingRoomID = ""
		st.FakeUsers = nil
		st.Streams = nil
		st.Links = map[string]string{}
	})
}

// ToggleMute swaps the outgoing primary track between the microphone and the
// silent substitute on every live link, without renegotiating. Toggling twice
// restores the original track identity.
func (s *Store) ToggleMute() {
	muted := !s.Get().Muted

	target, err := s.primaryFor(muted)
	if err != nil {
		s.log.Error("mute toggle failed", "error", err)
		return
	}

	s.mu.Lock()
	s.primary = target
	s.mu.Unlock()

	s.manager.ReplaceAudio(target)
	s.set(func(st *State) { st.Muted = muted })
}

// LoadAudioFile injects a synthetic participant whose audio comes from a
// decoded file. The membership broadcast goes out before the track is fanned
// out so receivers can attribute the incoming media; the track id is also
// announced in-band on each link's metadata channel.
func (s *Store) LoadAudioFile(path, name string) error {
	st := s.Get()
	if st.Room == nil {
		return fmt.Errorf("not in a room")
	}

	info, err := files.ValidateAudioFile(path)
	if err != nil {
		return err
	}
	if name == "" {
		name = info.Name
	}

	track, err := s.engine.FileTrack(info.Path)
	if err != nil {
		return fmt.Errorf("load audio file: %w", err)
	}

	msg, err := protocol.NewMessage(protocol.TypeAddFakeUser, protocol.FakeUserData{
		RoomID:  st.Room.ID,
		TrackID: track.ID(),
		Name:    name,
	})
	if err != nil {
		track.Close()
		return err
	}
	msg.From = s.transport.PeerID()
	msg.To = protocol.ToAll
	s.transport.Send(msg)

	local := rtc.LocalTrack{Track: track, Name: name}
	s.mu.Lock()
	s.fakeTracks[track.ID()] = local
	s.mu.Unlock()

	s.manager.AddTrack(local)
	s.set(func(st *State) {
		st.FakeUsers = append(append([]FakeUser{}, st.FakeUsers...), FakeUser{TrackID: track.ID(), Name: name})
	})
	return nil
}

// DropClient removes a synthetic participant: the track leaves every link
// (one renegotiation per remaining link), the local registry, and the room
// membership.
func (s *Store) DropClient(trackID string) {
	s.mu.Lock()
	local, ok := s.fakeTracks[trackID]
	delete(s.fakeTracks, trackID)
	s.mu.Unlock()
	if !ok {
		s.log.Warn("drop of unknown track ignored", "track", trackID)
		return
	}

	s.manager.RemoveTrack(trackID)
	local.Track.Close()

	st := s.Get()
	if st.Room != nil {
		msg, err := protocol.NewMessage(protocol.TypeRemoveFakeUser, protocol.FakeUserData{
			RoomID:  st.Room.ID,
			TrackID: trackID,
		})
		if err == nil {
			msg.From = s.transport.PeerID()
			msg.To = protocol.ToAll
			s.transport.Send(msg)
		}
	}

	s.set(func(st *State) {
		kept := make([]FakeUser, 0, len(st.FakeUsers))
		for _, f := range st.FakeUsers {
			if f.TrackID != trackID {
				kept = append(kept, f)
			}
		}
		st.FakeUsers = kept
	})
}

// SendMessage transmits a chat entry for the current room. The entry shows up
// in local state when the server echoes it back with the room history.
func (s *Store) SendMessage(text string) {
	st := s.Get()
	if text == "" || st.Room == nil {
		return
	}
	msg, err := protocol.NewMessage(protocol.TypeText, protocol.TextData{
		RoomID: st.Room.ID,
		Text:   text,
		Author: st.Username,
	})
	if err != nil {
		return
	}
	msg.From = s.transport.PeerID()
	s.transport.Send(msg)
}

// ---- inbound signaling handlers ----

func (s *Store) onOpen(_ *protocol.Message) {
	peerID := s.transport.PeerID()
	st := s.set(func(st *State) { st.PeerID = peerID })
	if st.PendingRoomID != "" && st.Room == nil {
		s.JoinRoom(st.PendingRoomID)
	}
}

// onClose downgrades the session: the server hung up and the channel does not
// reconnect on its own.
func (s *Store) onClose(_ *protocol.Message) {
	s.set(func(st *State) {
		st.Authenticated = false
		st.PendingRoomID = ""
	})
}

func (s *Store) onTextMessage(msg *protocol.Message) {
	var data protocol.TextData
	if err := msg.DecodeData(&data); err != nil {
		s.log.Warn("malformed text message discarded", "error", err)
		return
	}
	s.set(func(st *State) {
		st.Messages = append(append([]protocol.ChatMessage{}, st.Messages...),
			protocol.ChatMessage{Author: data.Author, Text: data.Text})
	})
}

func (s *Store) onRoomIsCreated(msg *protocol.Message) {
	var room protocol.Room
	if err := msg.DecodeData(&room); err != nil {
		s.log.Warn("malformed room confirmation discarded", "error", err)
		return
	}
	s.set(func(st *State) {
		st.Room = &room
		st.Broadcasting = true
		st.ConferenceLink = "?room=" + room.ID
		st.Users = visibleUsers(room.Users, st.PeerID)
		st.Messages = room.Messages
	})
}

// onUpdateRoom replaces the cached room wholesale. The visible user list
// never contains the local participant.
func (s *Store) onUpdateRoom(msg *protocol.Message) {
	var room protocol.Room
	if err := msg.DecodeData(&room); err != nil {
		s.log.Warn("malformed room update discarded", "error", err)
		return
	}
	s.set(func(st *State) {
		st.Room = &room
		st.Users = visibleUsers(room.Users, st.PeerID)
		st.Messages = room.Messages
		if st.PendingRoomID == room.ID {
			st.PendingRoomID = ""
		}
	})
	s.refreshLinks()
}

// onStartPeerConnection originates an offer to a newly announced participant
// (broadcaster side).
func (s *Store) onStartPeerConnection(msg *protocol.Message) {
	var data protocol.JoinRoomData
	if err := msg.DecodeData(&data); err != nil {
		s.log.Warn("malformed peer announcement discarded", "error", err)
		return
	}
	if data.PeerID == "" || data.PeerID == s.transport.PeerID() {
		return
	}

	primary, err := s.currentPrimary()
	if err != nil {
		s.log.Error("no primary track", "error", err)
		return
	}
	if err := s.manager.ConnectPeer(data.PeerID, primary, s.extraTracks()); err != nil {
		s.log.Warn("peer connect failed", "peer", data.PeerID, "error", err)
	}
	s.refreshLinks()
}

func (s *Store) onSDP(msg *protocol.Message) {
	var sdp protocol.SDPData
	if err := msg.DecodeData(&sdp); err != nil {
		s.log.Warn("malformed sdp discarded", "from", msg.From, "error", err)
		return
	}

	primary, err := s.currentPrimary()
	if err != nil {
		s.log.Error("no primary track", "error", err)
		return
	}
	if err := s.manager.HandleSDP(msg.From, sdp, primary); err != nil {
		s.log.Warn("sdp rejected", "from", msg.From, "error", err)
	}
	s.refreshLinks()
}

func (s *Store) onCandidate(msg *protocol.Message) {
	var c protocol.CandidateData
	if err := msg.DecodeData(&c); err != nil {
		s.log.Warn("malformed candidate discarded", "from", msg.From, "error", err)
		return
	}
	s.manager.HandleCandidate(msg.From, c)
}

// onAddFakeUser records the display identity of a synthetic track before its
// media arrives, so the incoming anonymous track can be attributed.
func (s *Store) onAddFakeUser(msg *protocol.Message) {
	var data protocol.FakeUserData
	if err := msg.DecodeData(&data); err != nil {
		s.log.Warn("malformed fake-user announcement discarded", "error", err)
		return
	}
	s.mu.Lock()
	s.trackNames[data.TrackID] = data.Name
	s.mu.Unlock()
	s.renameStream(data.TrackID, data.Name)
}

func (s *Store) onRemoveFakeUser(msg *protocol.Message) {
	var data protocol.FakeUserData
	if err := msg.DecodeData(&data); err != nil {
		return
	}
	s.mu.Lock()
	delete(s.trackNames, data.TrackID)
	s.mu.Unlock()
	s.set(func(st *State) {
		kept := make([]RemoteStream, 0, len(st.Streams))
		for _, str := range st.Streams {
			if str.TrackID != data.TrackID {
				kept = append(kept, str)
			}
		}
		st.Streams = kept
	})
}

// ---- rtc.Sink ----

// SignalOut delivers an offer or answer produced by the manager.
func (s *Store) SignalOut(to string, sdp protocol.SDPData) {
	msg, err := protocol.NewMessage(protocol.TypeSDP, sdp)
	if err != nil {
		return
	}
	msg.From = s.transport.PeerID()
	msg.To = to
	s.transport.Send(msg)
	s.refreshLinks()
}

// CandidateOut delivers a locally gathered ICE candidate.
func (s *Store) CandidateOut(to string, c protocol.CandidateData) {
	msg, err := protocol.NewMessage(protocol.TypeCandidate, c)
	if err != nil {
		return
	}
	msg.From = s.transport.PeerID()
	msg.To = to
	s.transport.Send(msg)
}

// RemoteTrack records an incoming media track, resolving its display name
// from whichever attribution source arrived first.
func (s *Store) RemoteTrack(peerID, trackID, kind string) {
	s.mu.Lock()
	name := s.trackNames[trackID]
	s.mu.Unlock()

	s.set(func(st *State) {
		st.Streams = append(append([]RemoteStream{}, st.Streams...),
			RemoteStream{PeerID: peerID, TrackID: trackID, Kind: kind, Name: name})
	})
}

// TrackInfo applies in-band attribution from a link's metadata channel.
func (s *Store) TrackInfo(_, trackID, name string) {
	s.mu.Lock()
	s.trackNames[trackID] = name
	s.mu.Unlock()
	s.renameStream(trackID, name)
}

// LinkDown drops a closed link's streams from the visible state.
func (s *Store) LinkDown(peerID string) {
	s.set(func(st *State) {
		kept := make([]RemoteStream, 0, len(st.Streams))
		for _, str := range st.Streams {
			if str.PeerID != peerID {
				kept = append(kept, str)
			}
		}
		st.Streams = kept
	})
	s.refreshLinks()
}

// ---- internals ----

// currentPrimary lazily acquires the primary track: the microphone, or the
// silent substitute when muted or when no capture device is available.
func (s *Store) currentPrimary() (media.Track, error) {
	s.mu.Lock()
	if s.primary != nil {
		t := s.primary
		s.mu.Unlock()
		return t, nil
	}
	muted := s.state.Muted
	s.mu.Unlock()

	t, err := s.primaryFor(muted)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.primary = t
	s.mu.Unlock()
	return t, nil
}

func (s *Store) primaryFor(muted bool) (media.Track, error) {
	s.mu.Lock()
	mic, silent := s.mic, s.silent
	s.mu.Unlock()

	if muted {
		if silent == nil {
			var err error
			silent, err = s.engine.SilentTrack()
			if err != nil {
				return nil, err
			}
			s.mu.Lock()
			s.silent = silent
			s.mu.Unlock()
		}
		return silent, nil
	}

	if mic == nil {
		var err error
		mic, err = s.engine.CaptureMicrophone()
		if err != nil {
			s.log.Warn("microphone unavailable, staying silent", "error", err)
			return s.primaryFor(true)
		}
		s.mu.Lock()
		s.mic = mic
		s.mu.Unlock()
	}
	return mic, nil
}

func (s *Store) extraTracks() []rtc.LocalTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]rtc.LocalTrack, 0, len(s.fakeTracks))
	for _, t := range s.fakeTracks {
		out = append(out, t)
	}
	return out
}

func (s *Store) releaseTracks() {
	s.mu.Lock()
	mic, silent := s.mic, s.silent
	fakes := s.fakeTracks
	s.mic, s.silent, s.primary = nil, nil, nil
	s.fakeTracks = make(map[string]rtc.LocalTrack)
	s.mu.Unlock()

	if mic != nil {
		mic.Close()
	}
	if silent != nil {
		silent.Close()
	}
	for _, f := range fakes {
		f.Track.Close()
	}
}

func (s *Store) refreshLinks() {
	states := s.manager.PeerStates()
	links := make(map[string]string, len(states))
	for id, st := range states {
		links[id] = st.String()
	}
	s.set(func(st *State) { st.Links = links })
}

func (s *Store) renameStream(trackID, name string) {
	s.set(func(st *State) {
		streams := append([]RemoteStream{}, st.Streams...)
		for i := range streams {
			if streams[i].TrackID == trackID {
				streams[i].Name = name
			}
		}
		st.Streams = streams
	})
}
