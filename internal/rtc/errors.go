package rtc

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownPeer     = errors.New("peer does not exist")
	ErrUnexpectedSDP   = errors.New("unexpected sdp type")
	ErrLinkClosed      = errors.New("link is closed")
	ErrNoAudioSender   = errors.New("no audio sender on link")
	ErrTrackNotFound   = errors.New("track not found")
	ErrStopped         = errors.New("manager stopped")
)

// LinkError ties a negotiation failure to the peer it happened on. Failures
// are contained to that link; the rest of the session is untouched.
type LinkError struct {
	Op     string
	PeerID string
	Err    error
}

func (e *LinkError) Error() string {
	if e.PeerID != "" {
		return fmt.Sprintf("%s (peer %s): %v", e.Op, e.PeerID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

func newLinkError(op, peerID string, err error) *LinkError {
	return &LinkError{Op: op, PeerID: peerID, Err: err}
}
