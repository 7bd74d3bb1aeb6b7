// Package media produces the local audio tracks the conference coordinator
// fans out to peers: microphone capture, the silent substitute used for mute,
// and file-sourced synthetic tracks.
//
// Every track is G.711 µ-law at 8 kHz so that mute can swap tracks on a live
// RTP sender without changing codec parameters.
package media

import (
	"github.com/pion/webrtc/v4"
)

// Track is one locally produced audio source. It stays alive until Close,
// independently of how many peer links it is attached to.
type Track interface {
	// ID is the stable track identity used in membership announcements.
	ID() string
	// Kind is the RTP kind, always "audio" for this engine.
	Kind() string
	// Local exposes the underlying RTP track for attachment to a peer link.
	Local() webrtc.TrackLocal
	// Close stops the producer goroutine and releases the source.
	Close() error
}

// Engine is the narrow interface the coordinator uses to obtain tracks. Its
// implementations own all capture and decode machinery.
type Engine interface {
	// CaptureMicrophone opens the default capture device.
	CaptureMicrophone() (Track, error)
	// SilentTrack returns a generator of silence frames, used as the primary
	// track substitute while muted.
	SilentTrack() (Track, error)
	// FileTrack decodes an MP3 file into a looping audio track.
	FileTrack(path string) (Track, error)
}
