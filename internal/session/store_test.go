package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkruglov/roomcast/internal/media"
	"github.com/mkruglov/roomcast/internal/protocol"
	"github.com/mkruglov/roomcast/internal/rtc"
	"github.com/mkruglov/roomcast/internal/signaling"
)

const selfPeerID = "self-peer"

// fakeTransport records outgoing messages and lets tests fire inbound ones
// through the store's registered handlers.
type fakeTransport struct {
	mu       sync.Mutex
	handlers map[protocol.MessageType][]signaling.Handler
	sent     []*protocol.Message
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[protocol.MessageType][]signaling.Handler)}
}

func (f *fakeTransport) On(t protocol.MessageType, h signaling.Handler) {
	f.mu.Lock()
	f.handlers[t] = append(f.handlers[t], h)
	f.mu.Unlock()
}

func (f *fakeTransport) Send(msg *protocol.Message) {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
}

func (f *fakeTransport) PeerID() string { return selfPeerID }

func (f *fakeTransport) fire(msg *protocol.Message) {
	f.mu.Lock()
	handlers := append([]signaling.Handler{}, f.handlers[msg.Type]...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(msg)
	}
}

func (f *fakeTransport) fireData(t *testing.T, typ protocol.MessageType, from string, data any) {
	t.Helper()
	msg, err := protocol.NewMessage(typ, data)
	require.NoError(t, err)
	msg.From = from
	f.fire(msg)
}

func (f *fakeTransport) sentOfType(typ protocol.MessageType) []*protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*protocol.Message
	for _, m := range f.sent {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeTransport) sentTypes() []protocol.MessageType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.MessageType, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.Type)
	}
	return out
}

// fakeLocal satisfies webrtc.TrackLocal so the identity of the track behind a
// sender stays observable.
type fakeLocal struct{ id string }

func (f *fakeLocal) Bind(webrtc.TrackLocalContext) (webrtc.RTPCodecParameters, error) {
	return webrtc.RTPCodecParameters{}, nil
}
func (f *fakeLocal) Unbind(webrtc.TrackLocalContext) error { return nil }

func (f *fakeLocal) ID() string { return f.id }

func (f *fakeLocal) RID() string { return "" }

func (f *fakeLocal) StreamID() string { return f.id }

func (f *fakeLocal) Kind() webrtc.RTPCodecType { return webrtc.RTPCodecTypeAudio }

type fakeMediaTrack struct {
	id     string
	local  *fakeLocal
	mu     sync.Mutex
	closed bool
}

func newFakeMediaTrack(id string) *fakeMediaTrack {
	return &fakeMediaTrack{id: id, local: &fakeLocal{id: id}}
}

func (t *fakeMediaTrack) ID() string { return t.id }

func (t *fakeMediaTrack) Kind() string { return "audio" }

func (t *fakeMediaTrack) Local() webrtc.TrackLocal { return t.local }

func (t *fakeMediaTrack) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

func (t *fakeMediaTrack) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// fakeEngine hands out fake tracks with predictable ids.
type fakeEngine struct {
	mu     sync.Mutex
	micErr error
	mics   []*fakeMediaTrack
	silent []*fakeMediaTrack
	files  []*fakeMediaTrack
}

func (e *fakeEngine) CaptureMicrophone() (media.Track, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.micErr != nil {
		return nil, e.micErr
	}
	t := newFakeMediaTrack(fmt.Sprintf("mic-%d", len(e.mics)+1))
	e.mics = append(e.mics, t)
	return t, nil
}

func (e *fakeEngine) SilentTrack() (media.Track, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := newFakeMediaTrack(fmt.Sprintf("silent-%d", len(e.silent)+1))
	e.silent = append(e.silent, t)
	return t, nil
}

func (e *fakeEngine) FileTrack(string) (media.Track, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := newFakeMediaTrack(fmt.Sprintf("file-%d", len(e.files)+1))
	e.files = append(e.files, t)
	return t, nil
}

type fakeSender struct {
	mu       sync.Mutex
	track    webrtc.TrackLocal
	replaced int
}

func (s *fakeSender) Track() webrtc.TrackLocal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track
}

func (s *fakeSender) ReplaceTrack(t webrtc.TrackLocal) error {
	s.mu.Lock()
	s.track = t
	s.replaced++
	s.mu.Unlock()
	return nil
}

type fakeHandle struct {
	mu         sync.Mutex
	senders    []*fakeSender
	offers     int
	answers    int
	applied    []protocol.SDPData
	candidates []protocol.CandidateData
	meta       [][]byte
	isClosed   bool

	onCandidate  func(protocol.CandidateData)
	onTrack      func(trackID, kind string)
	onDisconnect func()
	onMeta       func(b []byte)
}

func (h *fakeHandle) AddTrack(t webrtc.TrackLocal) (rtc.Sender, error) {
	s := &fakeSender{track: t}
	h.mu.Lock()
	h.senders = append(h.senders, s)
	h.mu.Unlock()
	return s, nil
}

func (h *fakeHandle) RemoveTrack(s rtc.Sender) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	kept := h.senders[:0]
	for _, have := range h.senders {
		if have != s {
			kept = append(kept, have)
		}
	}
	h.senders = kept
	return nil
}

func (h *fakeHandle) Senders() []rtc.Sender {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]rtc.Sender, len(h.senders))
	for i, s := range h.senders {
		out[i] = s
	}
	return out
}

func (h *fakeHandle) CreateOffer() (protocol.SDPData, error) {
	h.mu.Lock()
	h.offers++
	n := h.offers
	h.mu.Unlock()
	return protocol.SDPData{Type: "offer", SDP: fmt.Sprintf("offer-%d", n)}, nil
}

func (h *fakeHandle) CreateAnswer(protocol.SDPData) (protocol.SDPData, error) {
	h.mu.Lock()
	h.answers++
	n := h.answers
	h.mu.Unlock()
	return protocol.SDPData{Type: "answer", SDP: fmt.Sprintf("answer-%d", n)}, nil
}

func (h *fakeHandle) ApplyAnswer(a protocol.SDPData) error {
	h.mu.Lock()
	h.applied = append(h.applied, a)
	h.mu.Unlock()
	return nil
}

func (h *fakeHandle) AddICECandidate(c protocol.CandidateData) error {
	h.mu.Lock()
	h.candidates = append(h.candidates, c)
	h.mu.Unlock()
	return nil
}

func (h *fakeHandle) OnICECandidate(f func(protocol.CandidateData)) { h.onCandidate = f }

func (h *fakeHandle) OnTrack(f func(trackID, kind string)) { h.onTrack = f }

func (h *fakeHandle) OnDisconnected(f func()) { h.onDisconnect = f }

func (h *fakeHandle) OnMeta(f func(b []byte)) { h.onMeta = f }

func (h *fakeHandle) SendMeta(b []byte) error {
	h.mu.Lock()
	h.meta = append(h.meta, b)
	h.mu.Unlock()
	return nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	h.isClosed = true
	h.mu.Unlock()
	return nil
}

func (h *fakeHandle) offerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.offers
}

func (h *fakeHandle) candidateCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.candidates)
}

type harness struct {
	transport *fakeTransport
	engine    *fakeEngine
	store     *Store

	mu      sync.Mutex
	handles []*fakeHandle
}

func newHarness() *harness {
	h := &harness{transport: newFakeTransport(), engine: &fakeEngine{}}
	factory := func() (rtc.LinkHandle, error) {
		fh := &fakeHandle{}
		h.mu.Lock()
		h.handles = append(h.handles, fh)
		h.mu.Unlock()
		return fh, nil
	}
	h.store = New(h.transport, factory, h.engine, nil)
	h.store.Bind()
	return h
}

func (h *harness) handle(i int) *fakeHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.handles[i]
}

func (h *harness) handleCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handles)
}

// enterRoomAsBroadcaster drives the store through channel open and room
// confirmation.
func (h *harness) enterRoomAsBroadcaster(t *testing.T) {
	t.Helper()
	h.transport.fire(&protocol.Message{Type: protocol.TypeOnOpen})
	h.transport.fireData(t, protocol.TypeRoomIsCreated, "", protocol.Room{
		ID:    "r1",
		Owner: selfPeerID,
		Users: []protocol.User{{ID: "u-self", PeerID: selfPeerID, Name: "Self"}},
	})
}

// connectListener announces a joining participant so the store originates a
// link to it.
func (h *harness) connectListener(t *testing.T, peerID string) {
	t.Helper()
	h.transport.fireData(t, protocol.TypeStartPeerConnection, "",
		protocol.JoinRoomData{ID: "r1", PeerID: peerID})
}

func writeClip(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("ID3 fake mpeg payload"), 0o644))
	return path
}

func TestVisibleUsersExcludeSelf(t *testing.T) {
	h := newHarness()
	h.transport.fire(&protocol.Message{Type: protocol.TypeOnOpen})

	h.transport.fireData(t, protocol.TypeUpdateRoom, "", protocol.Room{
		ID: "r1",
		Users: []protocol.User{
			{ID: "u-self", PeerID: selfPeerID, Name: "Self"},
			{ID: "u2", PeerID: "peer-2", Name: "Bob"},
			{ID: "clip-1", Name: "Piano"}, // synthetic member
		},
	})

	st := h.store.Get()
	require.Len(t, st.Users, 2)
	for _, u := range st.Users {
		assert.NotEqual(t, selfPeerID, u.PeerID)
	}
	assert.Equal(t, "Bob", st.Users[0].Name)
	assert.Equal(t, "Piano", st.Users[1].Name)
}

func TestAvatarNormalization(t *testing.T) {
	assert.Equal(t, "https://example.com/a.png", normalizeAvatar(protocol.User{
		Picture:    []byte{1, 2, 3},
		PictureURL: "https://example.com/a.png",
	}), "an absolute URL wins over inline bytes")

	assert.Equal(t, "data:image/png;base64,AQID",
		normalizeAvatar(protocol.User{Picture: []byte{1, 2, 3}}))

	assert.Empty(t, normalizeAvatar(protocol.User{}))
}

func TestPendingRoomJoinedOnOpen(t *testing.T) {
	h := newHarness()
	h.store.SetPendingRoom("r9")

	h.transport.fire(&protocol.Message{Type: protocol.TypeOnOpen})

	joins := h.transport.sentOfType(protocol.TypeJoinRoom)
	require.Len(t, joins, 1)
	var data protocol.JoinRoomData
	require.NoError(t, joins[0].DecodeData(&data))
	assert.Equal(t, "r9", data.ID)
	assert.Equal(t, selfPeerID, data.PeerID)
	assert.Equal(t, selfPeerID, h.store.Get().PeerID)
}

func TestPendingRoomAfterOpenJoinsImmediately(t *testing.T) {
	h := newHarness()

	// Channel opened before the user supplied a room id, the ordering the
	// join command produces.
	h.transport.fire(&protocol.Message{Type: protocol.TypeOnOpen})
	h.store.SetPendingRoom("r9")

	joins := h.transport.sentOfType(protocol.TypeJoinRoom)
	require.Len(t, joins, 1)
	var data protocol.JoinRoomData
	require.NoError(t, joins[0].DecodeData(&data))
	assert.Equal(t, "r9", data.ID)
	assert.Equal(t, "r9", h.store.Get().PendingRoomID)
}

func TestPendingRoomWhileInRoomDoesNotRejoin(t *testing.T) {
	h := newHarness()
	h.enterRoomAsBroadcaster(t)

	h.store.SetPendingRoom("r9")

	assert.Empty(t, h.transport.sentOfType(protocol.TypeJoinRoom))
}

func TestRoomConfirmationEntersBroadcastMode(t *testing.T) {
	h := newHarness()
	h.enterRoomAsBroadcaster(t)

	st := h.store.Get()
	require.NotNil(t, st.Room)
	assert.True(t, st.Broadcasting)
	assert.Equal(t, "?room=r1", st.ConferenceLink)
	assert.Empty(t, st.Users, "the local participant never shows in the remote list")
}

func TestListenerAnnouncementOriginatesOffer(t *testing.T) {
	h := newHarness()
	h.enterRoomAsBroadcaster(t)

	h.connectListener(t, "peer-1")

	sdps := h.transport.sentOfType(protocol.TypeSDP)
	require.Len(t, sdps, 1)
	assert.Equal(t, "peer-1", sdps[0].To)
	assert.Equal(t, selfPeerID, sdps[0].From)
	var sdp protocol.SDPData
	require.NoError(t, sdps[0].DecodeData(&sdp))
	assert.Equal(t, "offer", sdp.Type)

	assert.Equal(t, "offering", h.store.Get().Links["peer-1"])
}

func TestOwnAnnouncementIgnored(t *testing.T) {
	h := newHarness()
	h.enterRoomAsBroadcaster(t)

	h.connectListener(t, selfPeerID)

	assert.Zero(t, h.handleCount())
	assert.Empty(t, h.transport.sentOfType(protocol.TypeSDP))
}

func TestDoubleMuteRestoresTrackWithoutRenegotiation(t *testing.T) {
	h := newHarness()
	h.enterRoomAsBroadcaster(t)
	h.connectListener(t, "peer-1")

	handle := h.handle(0)
	require.Equal(t, 1, handle.offerCount())
	require.Len(t, handle.Senders(), 1)
	micID := h.engine.mics[0].ID()

	h.store.ToggleMute()
	assert.True(t, h.store.Get().Muted)
	sender := handle.senders[0]
	assert.Equal(t, h.engine.silent[0].ID(), sender.Track().ID())

	h.store.ToggleMute()
	assert.False(t, h.store.Get().Muted)
	assert.Equal(t, micID, sender.Track().ID(), "unmute restores the original track identity")
	assert.Equal(t, 2, sender.replaced)

	assert.Equal(t, 1, handle.offerCount(), "mute must not renegotiate")
	assert.Len(t, handle.Senders(), 1)
}

func TestMicrophoneFallbackToSilence(t *testing.T) {
	h := newHarness()
	h.engine.micErr = fmt.Errorf("no capture device")
	h.enterRoomAsBroadcaster(t)

	h.connectListener(t, "peer-1")

	handle := h.handle(0)
	require.Len(t, handle.Senders(), 1)
	assert.Equal(t, h.engine.silent[0].ID(), handle.Senders()[0].Track().ID())
}

func TestLoadAudioFileAnnouncesBeforeFanOut(t *testing.T) {
	h := newHarness()
	h.enterRoomAsBroadcaster(t)
	h.connectListener(t, "peer-1")
	path := writeClip(t, "lobby music.mp3")

	require.NoError(t, h.store.LoadAudioFile(path, ""))

	adds := h.transport.sentOfType(protocol.TypeAddFakeUser)
	require.Len(t, adds, 1)
	assert.Equal(t, protocol.ToAll, adds[0].To)
	var data protocol.FakeUserData
	require.NoError(t, adds[0].DecodeData(&data))
	assert.Equal(t, "lobby music", data.Name, "name defaults to the file name")
	assert.Equal(t, "r1", data.RoomID)

	// Attribution goes out before the renegotiation offer carries the track.
	types := h.transport.sentTypes()
	addIdx, offerIdx := -1, -1
	for i, typ := range types {
		if typ == protocol.TypeAddFakeUser {
			addIdx = i
		}
		if typ == protocol.TypeSDP && i > 0 {
			offerIdx = i
		}
	}
	require.GreaterOrEqual(t, addIdx, 0)
	require.Greater(t, offerIdx, addIdx)

	handle := h.handle(0)
	assert.Len(t, handle.Senders(), 2)
	assert.Equal(t, 2, handle.offerCount())
	assert.Len(t, handle.meta, 1, "track name announced in-band too")

	st := h.store.Get()
	require.Len(t, st.FakeUsers, 1)
	assert.Equal(t, data.TrackID, st.FakeUsers[0].TrackID)
}

func TestLoadAudioFileRequiresRoom(t *testing.T) {
	h := newHarness()
	path := writeClip(t, "clip.mp3")

	err := h.store.LoadAudioFile(path, "clip")
	require.Error(t, err)
	assert.Empty(t, h.transport.sentOfType(protocol.TypeAddFakeUser))
}

func TestLoadAudioFileRejectsUnsupportedFormat(t *testing.T) {
	h := newHarness()
	h.enterRoomAsBroadcaster(t)
	path := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o644))

	err := h.store.LoadAudioFile(path, "clip")
	require.Error(t, err)
	assert.Empty(t, h.engine.files)
}

func TestDropClientRenegotiatesEveryLink(t *testing.T) {
	h := newHarness()
	h.enterRoomAsBroadcaster(t)
	h.connectListener(t, "peer-1")
	h.connectListener(t, "peer-2")
	require.NoError(t, h.store.LoadAudioFile(writeClip(t, "clip.mp3"), "clip"))

	trackID := h.store.Get().FakeUsers[0].TrackID
	before0, before1 := h.handle(0).offerCount(), h.handle(1).offerCount()

	h.store.DropClient(trackID)

	assert.Equal(t, before0+1, h.handle(0).offerCount())
	assert.Equal(t, before1+1, h.handle(1).offerCount())
	assert.Len(t, h.handle(0).Senders(), 1)

	removes := h.transport.sentOfType(protocol.TypeRemoveFakeUser)
	require.Len(t, removes, 1)
	assert.Equal(t, protocol.ToAll, removes[0].To)

	assert.Empty(t, h.store.Get().FakeUsers)
	assert.True(t, h.engine.files[0].isClosed())
}

func TestDropOfUnknownTrackIgnored(t *testing.T) {
	h := newHarness()
	h.enterRoomAsBroadcaster(t)

	h.store.DropClient("no-such-track")

	assert.Empty(t, h.transport.sentOfType(protocol.TypeRemoveFakeUser))
}

func TestInboundOfferAnswered(t *testing.T) {
	h := newHarness()
	h.transport.fire(&protocol.Message{Type: protocol.TypeOnOpen})

	h.transport.fireData(t, protocol.TypeSDP, "hub-peer",
		protocol.SDPData{Type: "offer", SDP: "v=0"})

	sdps := h.transport.sentOfType(protocol.TypeSDP)
	require.Len(t, sdps, 1)
	assert.Equal(t, "hub-peer", sdps[0].To)
	var sdp protocol.SDPData
	require.NoError(t, sdps[0].DecodeData(&sdp))
	assert.Equal(t, "answer", sdp.Type)

	assert.Equal(t, "connected", h.store.Get().Links["hub-peer"])
}

func TestAnswerForUnknownPeerLeavesLinksUntouched(t *testing.T) {
	h := newHarness()
	h.enterRoomAsBroadcaster(t)
	h.connectListener(t, "peer-1")
	sentBefore := len(h.transport.sentOfType(protocol.TypeSDP))

	h.transport.fireData(t, protocol.TypeSDP, "ghost",
		protocol.SDPData{Type: "answer", SDP: "v=0"})

	assert.Equal(t, "offering", h.store.Get().Links["peer-1"])
	assert.Len(t, h.transport.sentOfType(protocol.TypeSDP), sentBefore)
	assert.NotContains(t, h.store.Get().Links, "ghost")
}

func TestCandidateRoutedToLink(t *testing.T) {
	h := newHarness()
	h.transport.fire(&protocol.Message{Type: protocol.TypeOnOpen})
	h.transport.fireData(t, protocol.TypeSDP, "hub-peer",
		protocol.SDPData{Type: "offer", SDP: "v=0"})

	h.transport.fireData(t, protocol.TypeCandidate, "hub-peer",
		protocol.CandidateData{Candidate: "candidate:1"})
	assert.Equal(t, 1, h.handle(0).candidateCount())

	// Unknown peers never create links implicitly.
	h.transport.fireData(t, protocol.TypeCandidate, "ghost",
		protocol.CandidateData{Candidate: "candidate:2"})
	assert.Equal(t, 1, h.handleCount())
}

func TestStreamAttributionFromMembership(t *testing.T) {
	h := newHarness()

	// Membership announcement lands first, the anonymous track second.
	h.transport.fireData(t, protocol.TypeAddFakeUser, "hub-peer",
		protocol.FakeUserData{RoomID: "r1", TrackID: "t9", Name: "Piano"})
	h.store.RemoteTrack("hub-peer", "t9", "audio")

	st := h.store.Get()
	require.Len(t, st.Streams, 1)
	assert.Equal(t, "Piano", st.Streams[0].Name)
}

func TestStreamAttributionFromMetadata(t *testing.T) {
	h := newHarness()

	// Track arrives before any attribution.
	h.store.RemoteTrack("hub-peer", "t9", "audio")
	require.Empty(t, h.store.Get().Streams[0].Name)

	h.store.TrackInfo("hub-peer", "t9", "Piano")
	assert.Equal(t, "Piano", h.store.Get().Streams[0].Name)
}

func TestRemoveFakeUserDropsStream(t *testing.T) {
	h := newHarness()
	h.store.RemoteTrack("hub-peer", "t9", "audio")
	h.store.RemoteTrack("hub-peer", "t10", "audio")

	h.transport.fireData(t, protocol.TypeRemoveFakeUser, "hub-peer",
		protocol.FakeUserData{RoomID: "r1", TrackID: "t9"})

	st := h.store.Get()
	require.Len(t, st.Streams, 1)
	assert.Equal(t, "t10", st.Streams[0].TrackID)
}

func TestLinkDownDropsPeerStreams(t *testing.T) {
	h := newHarness()
	h.store.RemoteTrack("hub-peer", "t9", "audio")
	h.store.RemoteTrack("other-peer", "t10", "audio")

	h.store.LinkDown("hub-peer")

	st := h.store.Get()
	require.Len(t, st.Streams, 1)
	assert.Equal(t, "other-peer", st.Streams[0].PeerID)
}

func TestStopConferenceClearsEverything(t *testing.T) {
	h := newHarness()
	h.enterRoomAsBroadcaster(t)
	h.connectListener(t, "peer-1")
	require.NoError(t, h.store.LoadAudioFile(writeClip(t, "clip.mp3"), "clip"))

	h.store.StopConference()

	leaves := h.transport.sentOfType(protocol.TypeLeaveRoom)
	require.Len(t, leaves, 1)

	st := h.store.Get()
	assert.Nil(t, st.Room)
	assert.False(t, st.Broadcasting)
	assert.Empty(t, st.ConferenceLink)
	assert.Empty(t, st.FakeUsers)
	assert.Empty(t, st.Streams)
	assert.Empty(t, st.Links)

	assert.True(t, h.handle(0).isClosed)
	assert.True(t, h.engine.mics[0].isClosed())
	assert.True(t, h.engine.files[0].isClosed())

	// The manager is reusable for the next room.
	h.enterRoomAsBroadcaster(t)
	h.connectListener(t, "peer-9")
	assert.Equal(t, 2, h.handleCount())
}

func TestServerCloseDowngradesSession(t *testing.T) {
	h := newHarness()
	h.store.set(func(st *State) { st.Authenticated = true })
	h.store.SetPendingRoom("r1")

	h.transport.fire(&protocol.Message{Type: protocol.TypeOnClose})

	st := h.store.Get()
	assert.False(t, st.Authenticated)
	assert.Empty(t, st.PendingRoomID)
}

func TestSendMessageRequiresRoom(t *testing.T) {
	h := newHarness()
	h.store.SendMessage("hello")
	assert.Empty(t, h.transport.sentOfType(protocol.TypeText))

	h.enterRoomAsBroadcaster(t)
	h.store.SendMessage("hello")
	texts := h.transport.sentOfType(protocol.TypeText)
	require.Len(t, texts, 1)
	var data protocol.TextData
	require.NoError(t, texts[0].DecodeData(&data))
	assert.Equal(t, "r1", data.RoomID)
	assert.Equal(t, "hello", data.Text)
}

func TestInboundTextAppendsToHistory(t *testing.T) {
	h := newHarness()
	h.transport.fireData(t, protocol.TypeText, "peer-2",
		protocol.TextData{RoomID: "r1", Text: "hi", Author: "Bob"})

	st := h.store.Get()
	require.Len(t, st.Messages, 1)
	assert.Equal(t, "Bob", st.Messages[0].Author)
	assert.Equal(t, "hi", st.Messages[0].Text)
}

func TestSubscribersSeeEverySnapshot(t *testing.T) {
	h := newHarness()
	var got []State
	h.store.Subscribe(func(st State) { got = append(got, st) })

	h.store.SetPendingRoom("r1")
	h.store.SetPendingRoom("r2")

	require.Len(t, got, 2)
	assert.Equal(t, "r1", got[0].PendingRoomID)
	assert.Equal(t, "r2", got[1].PendingRoomID)
}
