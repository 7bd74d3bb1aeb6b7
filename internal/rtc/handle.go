package rtc

import (
	"github.com/pion/webrtc/v4"

	"github.com/mkruglov/roomcast/internal/protocol"
)

// Sender is a live outbound track slot on a peer link. Replacing the track
// does not renegotiate.
type Sender interface {
	Track() webrtc.TrackLocal
	ReplaceTrack(webrtc.TrackLocal) error
}

// LinkHandle is the media-subsystem side of one peer link. The production
// implementation wraps a pion PeerConnection; tests substitute fakes.
type LinkHandle interface {
	AddTrack(t webrtc.TrackLocal) (Sender, error)
	RemoveTrack(s Sender) error
	Senders() []Sender

	// CreateOffer produces an offer and installs it as the local description.
	CreateOffer() (protocol.SDPData, error)
	// CreateAnswer applies the remote offer, produces an answer and installs
	// it as the local description.
	CreateAnswer(offer protocol.SDPData) (protocol.SDPData, error)
	// ApplyAnswer installs a remote answer.
	ApplyAnswer(answer protocol.SDPData) error
	AddICECandidate(c protocol.CandidateData) error

	// OnICECandidate delivers locally gathered candidates for trickling.
	OnICECandidate(func(protocol.CandidateData))
	// OnTrack fires when a remote track arrives.
	OnTrack(func(trackID, kind string))
	// OnDisconnected fires once when the underlying transport fails or closes.
	OnDisconnected(func())

	// SendMeta transmits one in-band metadata frame; frames submitted before
	// the metadata channel opens are delivered once it does.
	SendMeta(b []byte) error
	// OnMeta delivers metadata frames from the remote side.
	OnMeta(func(b []byte))

	Close() error
}

// Factory creates the handle for a new peer link.
type Factory func() (LinkHandle, error)
