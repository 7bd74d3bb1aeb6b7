package rtc

import (
	"context"
	"sync"

	"github.com/mkruglov/roomcast/internal/media"
	"github.com/mkruglov/roomcast/internal/protocol"
)

// LinkState is the negotiation state of one peer link.
type LinkState int

const (
	StateAbsent LinkState = iota
	StateOffering
	StateAnswering
	StateConnected
	StateClosed
)

func (s LinkState) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateOffering:
		return "offering"
	case StateAnswering:
		return "answering"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// link owns the negotiation state for one remote peer. Candidates arriving
// before the remote description are buffered, not rejected. The context is
// cancelled on teardown so late answers and candidates are discarded instead
// of reviving a dead link.
type link struct {
	peerID string
	handle LinkHandle
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	state         LinkState
	remoteApplied bool
	pending       []protocol.CandidateData
	primary       Sender
	primaryID     string
	extras        map[string]Sender // track id -> sender
}

func newLink(peerID string, handle LinkHandle) *link {
	ctx, cancel := context.WithCancel(context.Background())
	return &link{
		peerID: peerID,
		handle: handle,
		ctx:    ctx,
		cancel: cancel,
		state:  StateAbsent,
		extras: make(map[string]Sender),
	}
}

func (l *link) closed() bool {
	return l.ctx.Err() != nil
}

func (l *link) currentState() LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// attachPrimary adds the mic-or-silence track. At most one primary sender
// exists per link; mute swaps the track on that sender instead.
func (l *link) attachPrimary(t media.Track) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.primary != nil {
		return nil
	}
	sender, err := l.handle.AddTrack(t.Local())
	if err != nil {
		return newLinkError("attach primary track", l.peerID, err)
	}
	l.primary = sender
	l.primaryID = t.ID()
	return nil
}

func (l *link) attachExtra(t media.Track) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.extras[t.ID()]; ok {
		return nil
	}
	sender, err := l.handle.AddTrack(t.Local())
	if err != nil {
		return newLinkError("attach track", l.peerID, err)
	}
	l.extras[t.ID()] = sender
	return nil
}

func (l *link) detachExtra(trackID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	sender, ok := l.extras[trackID]
	if !ok {
		return ErrTrackNotFound
	}
	delete(l.extras, trackID)
	if err := l.handle.RemoveTrack(sender); err != nil {
		return newLinkError("detach track", l.peerID, err)
	}
	return nil
}

// replacePrimary swaps the primary track in place. No offer/answer happens;
// that is the whole point of substituting a silent track for mute.
func (l *link) replacePrimary(t media.Track) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.primary == nil {
		return newLinkError("replace track", l.peerID, ErrNoAudioSender)
	}
	if err := l.primary.ReplaceTrack(t.Local()); err != nil {
		return newLinkError("replace track", l.peerID, err)
	}
	l.primaryID = t.ID()
	return nil
}

func (l *link) offer() (protocol.SDPData, error) {
	if l.closed() {
		return protocol.SDPData{}, ErrLinkClosed
	}
	sdp, err := l.handle.CreateOffer()
	if err != nil {
		return protocol.SDPData{}, newLinkError("create offer", l.peerID, err)
	}
	l.mu.Lock()
	l.state = StateOffering
	l.mu.Unlock()
	return sdp, nil
}

func (l *link) answer(offer protocol.SDPData) (protocol.SDPData, error) {
	if l.closed() {
		return protocol.SDPData{}, ErrLinkClosed
	}
	l.mu.Lock()
	l.state = StateAnswering
	l.mu.Unlock()

	answer, err := l.handle.CreateAnswer(offer)
	if err != nil {
		return protocol.SDPData{}, newLinkError("create answer", l.peerID, err)
	}
	l.finishRemote(StateConnected)
	return answer, nil
}

func (l *link) applyAnswer(answer protocol.SDPData) error {
	if l.closed() {
		return ErrLinkClosed
	}
	l.mu.Lock()
	if l.state != StateOffering {
		l.mu.Unlock()
		return newLinkError("apply answer", l.peerID, ErrUnexpectedSDP)
	}
	l.mu.Unlock()

	if err := l.handle.ApplyAnswer(answer); err != nil {
		return newLinkError("apply answer", l.peerID, err)
	}
	l.finishRemote(StateConnected)
	return nil
}

// finishRemote marks the remote description applied and drains candidates
// that arrived early.
func (l *link) finishRemote(next LinkState) {
	l.mu.Lock()
	l.remoteApplied = true
	l.state = next
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, c := range pending {
		_ = l.handle.AddICECandidate(c)
	}
}

func (l *link) addCandidate(c protocol.CandidateData) error {
	if l.closed() {
		return ErrLinkClosed
	}
	l.mu.Lock()
	if !l.remoteApplied {
		l.pending = append(l.pending, c)
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()
	if err := l.handle.AddICECandidate(c); err != nil {
		return newLinkError("add candidate", l.peerID, err)
	}
	return nil
}

// close releases the link: all senders are dropped with the handle and late
// signaling for this link is fenced off by the cancelled context.
func (l *link) close() {
	l.cancel()
	l.mu.Lock()
	l.state = StateClosed
	l.primary = nil
	l.extras = map[string]Sender{}
	l.mu.Unlock()
	_ = l.handle.Close()
}
