package rtc

import (
	"log/slog"
	"sync"

	"github.com/mkruglov/roomcast/internal/media"
	"github.com/mkruglov/roomcast/internal/protocol"
)

// Sink receives every outbound event the manager produces. The manager never
// holds a reference back into its consumer; this interface is the only edge.
type Sink interface {
	// SignalOut asks for an SDP offer or answer to be delivered to a peer.
	SignalOut(to string, sdp protocol.SDPData)
	// CandidateOut asks for a locally gathered candidate to be delivered.
	CandidateOut(to string, c protocol.CandidateData)
	// RemoteTrack reports an incoming media track on a link.
	RemoteTrack(peerID, trackID, kind string)
	// TrackInfo reports in-band attribution for a track (metadata channel).
	TrackInfo(peerID, trackID, name string)
	// LinkDown reports that a link left the active set.
	LinkDown(peerID string)
}

// LocalTrack pairs a media track with the display name announced for it.
type LocalTrack struct {
	Track media.Track
	Name  string
}

// Manager owns the set of live peer links for the current room and drives
// per-peer negotiation. One peer's failure never blocks progress on another:
// fan-out operations renegotiate each link individually.
type Manager struct {
	factory Factory
	events  Sink
	log     *slog.Logger

	mu          sync.Mutex
	links       map[string]*link
	broadcaster string
	stopped     bool
}

// NewManager creates a manager using factory for link handles and events for
// every outbound notification.
func NewManager(factory Factory, events Sink) *Manager {
	return &Manager{
		factory: factory,
		events:  events,
		log:     slog.Default().With("component", "rtc"),
		links:   make(map[string]*link),
	}
}

// ConnectPeer originates a link to a newly announced participant: attaches
// the primary track plus extras, produces an offer and emits it. An existing
// link for the peer is torn down first (the peer reconnected).
func (m *Manager) ConnectPeer(peerID string, primary media.Track, extras []LocalTrack) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrStopped
	}
	if old, ok := m.links[peerID]; ok {
		old.close()
		delete(m.links, peerID)
	}
	m.mu.Unlock()

	l, err := m.createLink(peerID)
	if err != nil {
		return err
	}

	if err := l.attachPrimary(primary); err != nil {
		m.abandon(l)
		return err
	}
	for _, extra := range extras {
		if err := l.attachExtra(extra.Track); err != nil {
			m.log.Warn("attach extra track failed", "peer", peerID, "error", err)
			continue
		}
		m.announceTrack(l, extra)
	}

	offer, err := l.offer()
	if err != nil {
		m.abandon(l)
		return err
	}
	m.events.SignalOut(peerID, offer)
	return nil
}

// HandleSDP processes a remote offer or answer. Offers for unknown peers
// create the callee-side link; answers for unknown peers are a protocol
// violation and leave every existing link untouched.
func (m *Manager) HandleSDP(peerID string, sdp protocol.SDPData, primary media.Track) error {
	switch sdp.Type {
	case "answer":
		m.mu.Lock()
		l, ok := m.links[peerID]
		m.mu.Unlock()
		if !ok {
			m.log.Warn("answer for unknown peer discarded", "peer", peerID)
			return newLinkError("handle answer", peerID, ErrUnknownPeer)
		}
		return l.applyAnswer(sdp)

	case "offer":
		m.mu.Lock()
		if m.stopped {
			m.mu.Unlock()
			return ErrStopped
		}
		l, ok := m.links[peerID]
		m.mu.Unlock()

		if !ok {
			var err error
			l, err = m.createLink(peerID)
			if err != nil {
				return err
			}
			if err := l.attachPrimary(primary); err != nil {
				m.abandon(l)
				return err
			}
			// The peer that originates the offer is the room's media hub.
			m.mu.Lock()
			m.broadcaster = peerID
			m.mu.Unlock()
		}

		answer, err := l.answer(sdp)
		if err != nil {
			return err
		}
		m.events.SignalOut(peerID, answer)
		return nil

	default:
		return newLinkError("handle sdp", peerID, ErrUnexpectedSDP)
	}
}

// HandleCandidate applies (or buffers) a trickled candidate. A candidate for
// an unknown link is logged and discarded, never fatal.
func (m *Manager) HandleCandidate(peerID string, c protocol.CandidateData) {
	m.mu.Lock()
	l, ok := m.links[peerID]
	m.mu.Unlock()
	if !ok {
		m.log.Warn("candidate for unknown peer discarded", "peer", peerID)
		return
	}
	if err := l.addCandidate(c); err != nil {
		m.log.Warn("candidate rejected", "peer", peerID, "error", err)
	}
}

// AddTrack fans a new track out to every open link, renegotiating each link
// individually.
func (m *Manager) AddTrack(t LocalTrack) {
	for _, l := range m.snapshot() {
		if err := l.attachExtra(t.Track); err != nil {
			m.log.Warn("track fan-out failed", "peer", l.peerID, "error", err)
			continue
		}
		m.announceTrack(l, t)
		m.renegotiate(l)
	}
}

// RemoveTrack detaches the track from every link that carries it and
// renegotiates each. It returns the number of links renegotiated.
func (m *Manager) RemoveTrack(trackID string) int {
	count := 0
	for _, l := range m.snapshot() {
		if err := l.detachExtra(trackID); err != nil {
			continue
		}
		m.renegotiate(l)
		count++
	}
	return count
}

// ReplaceAudio substitutes the primary track on every link in place. Zero
// renegotiation: mute must not trigger an offer/answer cycle.
func (m *Manager) ReplaceAudio(t media.Track) {
	for _, l := range m.snapshot() {
		if err := l.replacePrimary(t); err != nil {
			m.log.Warn("replace primary failed", "peer", l.peerID, "error", err)
		}
	}
}

// PeerStates reports the negotiation state of every active link.
func (m *Manager) PeerStates() map[string]LinkState {
	states := make(map[string]LinkState)
	for _, l := range m.snapshot() {
		states[l.peerID] = l.currentState()
	}
	return states
}

// Broadcaster names the hub link on the callee side, empty when this client
// is itself the hub or not in a room.
func (m *Manager) Broadcaster() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.broadcaster
}

// ClosePeer tears one link down and removes it from the active set.
func (m *Manager) ClosePeer(peerID string) {
	m.mu.Lock()
	l, ok := m.links[peerID]
	if ok {
		delete(m.links, peerID)
		if m.broadcaster == peerID {
			m.broadcaster = ""
		}
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	l.close()
	m.events.LinkDown(peerID)
}

// Stop tears every link down and clears the peer map. Safe to call with no
// links, and repeatedly.
func (m *Manager) Stop() {
	m.mu.Lock()
	links := m.links
	m.links = make(map[string]*link)
	m.broadcaster = ""
	m.stopped = true
	m.mu.Unlock()

	for id, l := range links {
		l.close()
		m.events.LinkDown(id)
	}
}

// Reset makes a stopped manager usable again for the next room.
func (m *Manager) Reset() {
	m.Stop()
	m.mu.Lock()
	m.stopped = false
	m.mu.Unlock()
}

func (m *Manager) createLink(peerID string) (*link, error) {
	handle, err := m.factory()
	if err != nil {
		return nil, newLinkError("create link", peerID, err)
	}
	l := newLink(peerID, handle)

	handle.OnICECandidate(func(c protocol.CandidateData) {
		if l.closed() {
			return
		}
		m.events.CandidateOut(peerID, c)
	})
	handle.OnTrack(func(trackID, kind string) {
		if l.closed() {
			return
		}
		m.events.RemoteTrack(peerID, trackID, kind)
	})
	handle.OnMeta(func(b []byte) {
		frame, err := decodeMetaFrame(b)
		if err != nil {
			m.log.Warn("malformed meta frame discarded", "peer", peerID, "error", err)
			return
		}
		if frame.Type != metaTrackInfo {
			return
		}
		var info TrackInfoPayload
		if err := frame.DecodePayload(&info); err != nil {
			m.log.Warn("malformed track info discarded", "peer", peerID, "error", err)
			return
		}
		m.events.TrackInfo(peerID, info.TrackID, info.Name)
	})
	handle.OnDisconnected(func() {
		m.ClosePeer(peerID)
	})

	m.mu.Lock()
	m.links[peerID] = l
	m.mu.Unlock()
	return l, nil
}

func (m *Manager) snapshot() []*link {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*link, 0, len(m.links))
	for _, l := range m.links {
		out = append(out, l)
	}
	return out
}

func (m *Manager) announceTrack(l *link, t LocalTrack) {
	b, err := encodeTrackInfo(t.Track.ID(), t.Name)
	if err != nil {
		return
	}
	if err := l.handle.SendMeta(b); err != nil {
		m.log.Debug("meta announce failed", "peer", l.peerID, "error", err)
	}
}

func (m *Manager) renegotiate(l *link) {
	offer, err := l.offer()
	if err != nil {
		m.log.Warn("renegotiation failed", "peer", l.peerID, "error", err)
		return
	}
	m.events.SignalOut(l.peerID, offer)
}

func (m *Manager) abandon(l *link) {
	m.mu.Lock()
	delete(m.links, l.peerID)
	m.mu.Unlock()
	l.close()
}
