package rtc

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/mkruglov/roomcast/internal/protocol"
)

const metaChannelLabel = "meta"

// NewPionFactory returns a Factory producing pion-backed link handles with
// the given ICE servers.
func NewPionFactory(iceServers []webrtc.ICEServer) Factory {
	return factoryWithConfig(webrtc.Configuration{ICEServers: iceServers})
}

// NewRelayOnlyFactory restricts ICE to TURN relays, for host networks where
// direct paths are known to fail (VPN, CGNAT).
func NewRelayOnlyFactory(iceServers []webrtc.ICEServer) Factory {
	return factoryWithConfig(webrtc.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: webrtc.ICETransportPolicyRelay,
	})
}

func factoryWithConfig(cfg webrtc.Configuration) Factory {
	return func() (LinkHandle, error) {
		pc, err := webrtc.NewPeerConnection(cfg)
		if err != nil {
			return nil, fmt.Errorf("create peer connection: %w", err)
		}
		h := &pionHandle{pc: pc}
		h.wire()
		return h, nil
	}
}

type pionHandle struct {
	pc *webrtc.PeerConnection

	mu           sync.Mutex
	meta         *webrtc.DataChannel
	metaOpen     bool
	metaBacklog  [][]byte
	onMeta       func([]byte)
	onDisconnect func()
	disconnected bool
}

func (h *pionHandle) wire() {
	h.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		slog.Debug("peer connection state", "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			h.fireDisconnected()
		}
	})

	// The callee side receives the metadata channel the caller created.
	h.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != metaChannelLabel {
			return
		}
		h.adoptMeta(dc)
	})
}

func (h *pionHandle) fireDisconnected() {
	h.mu.Lock()
	if h.disconnected {
		h.mu.Unlock()
		return
	}
	h.disconnected = true
	cb := h.onDisconnect
	h.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (h *pionHandle) AddTrack(t webrtc.TrackLocal) (Sender, error) {
	sender, err := h.pc.AddTrack(t)
	if err != nil {
		return nil, err
	}
	// Drain RTCP so interceptors keep running.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return sender, nil
}

func (h *pionHandle) RemoveTrack(s Sender) error {
	sender, ok := s.(*webrtc.RTPSender)
	if !ok {
		return ErrTrackNotFound
	}
	return h.pc.RemoveTrack(sender)
}

func (h *pionHandle) Senders() []Sender {
	senders := h.pc.GetSenders()
	out := make([]Sender, 0, len(senders))
	for _, s := range senders {
		out = append(out, s)
	}
	return out
}

func (h *pionHandle) CreateOffer() (protocol.SDPData, error) {
	h.ensureMetaChannel()
	offer, err := h.pc.CreateOffer(nil)
	if err != nil {
		return protocol.SDPData{}, err
	}
	if err := h.pc.SetLocalDescription(offer); err != nil {
		return protocol.SDPData{}, err
	}
	return protocol.SDPData{Type: "offer", SDP: offer.SDP}, nil
}

func (h *pionHandle) CreateAnswer(offer protocol.SDPData) (protocol.SDPData, error) {
	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}
	if err := h.pc.SetRemoteDescription(remote); err != nil {
		return protocol.SDPData{}, err
	}
	answer, err := h.pc.CreateAnswer(nil)
	if err != nil {
		return protocol.SDPData{}, err
	}
	if err := h.pc.SetLocalDescription(answer); err != nil {
		return protocol.SDPData{}, err
	}
	return protocol.SDPData{Type: "answer", SDP: answer.SDP}, nil
}

func (h *pionHandle) ApplyAnswer(answer protocol.SDPData) error {
	return h.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer.SDP,
	})
}

func (h *pionHandle) AddICECandidate(c protocol.CandidateData) error {
	mid := c.SDPMid
	mline := c.SDPMLineIndex
	return h.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        &mid,
		SDPMLineIndex: &mline,
	})
}

func (h *pionHandle) OnICECandidate(cb func(protocol.CandidateData)) {
	h.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		data := protocol.CandidateData{Candidate: init.Candidate}
		if init.SDPMid != nil {
			data.SDPMid = *init.SDPMid
		}
		if init.SDPMLineIndex != nil {
			data.SDPMLineIndex = *init.SDPMLineIndex
		}
		cb(data)
	})
}

func (h *pionHandle) OnTrack(cb func(trackID, kind string)) {
	h.pc.OnTrack(func(tr *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		cb(tr.ID(), tr.Kind().String())
		// Consume the stream; playback is the rendering layer's concern.
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := tr.Read(buf); err != nil {
					if err != io.EOF {
						slog.Debug("remote track read ended", "track", tr.ID(), "error", err)
					}
					return
				}
			}
		}()
	})
}

func (h *pionHandle) OnDisconnected(cb func()) {
	h.mu.Lock()
	h.onDisconnect = cb
	h.mu.Unlock()
}

// ensureMetaChannel lazily creates the caller-side metadata channel before
// the first offer so it is included in the negotiation.
func (h *pionHandle) ensureMetaChannel() {
	h.mu.Lock()
	exists := h.meta != nil
	h.mu.Unlock()
	if exists {
		return
	}
	dc, err := h.pc.CreateDataChannel(metaChannelLabel, nil)
	if err != nil {
		slog.Warn("create meta channel failed", "error", err)
		return
	}
	h.adoptMeta(dc)
}

func (h *pionHandle) adoptMeta(dc *webrtc.DataChannel) {
	h.mu.Lock()
	h.meta = dc
	h.mu.Unlock()

	dc.OnOpen(func() {
		h.mu.Lock()
		h.metaOpen = true
		backlog := h.metaBacklog
		h.metaBacklog = nil
		h.mu.Unlock()
		for _, b := range backlog {
			if err := dc.Send(b); err != nil {
				slog.Warn("meta backlog send failed", "error", err)
			}
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		h.mu.Lock()
		cb := h.onMeta
		h.mu.Unlock()
		if cb != nil {
			cb(msg.Data)
		}
	})
}

func (h *pionHandle) SendMeta(b []byte) error {
	h.mu.Lock()
	dc, open := h.meta, h.metaOpen
	if dc == nil || !open {
		h.metaBacklog = append(h.metaBacklog, b)
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()
	return dc.Send(b)
}

func (h *pionHandle) OnMeta(cb func([]byte)) {
	h.mu.Lock()
	h.onMeta = cb
	h.mu.Unlock()
}

func (h *pionHandle) Close() error {
	return h.pc.Close()
}
