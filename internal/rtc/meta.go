package rtc

import "github.com/vmihailenco/msgpack/v5"

// Metadata frames travel on the per-link "meta" data channel. They carry
// track attribution in-band so a receiver can name an incoming media track
// even if the out-of-band membership broadcast is late or lost.

const metaTrackInfo = "track-info"

// MetaFrame is the envelope for all metadata channel messages.
type MetaFrame struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// TrackInfoPayload names one local track the sender has attached.
type TrackInfoPayload struct {
	TrackID string `msgpack:"trackId"`
	Name    string `msgpack:"name"`
}

// DecodePayload decodes the frame payload into v.
func (f MetaFrame) DecodePayload(v any) error {
	return msgpack.Unmarshal(f.Payload, v)
}

func encodeTrackInfo(trackID, name string) ([]byte, error) {
	payload, err := msgpack.Marshal(TrackInfoPayload{TrackID: trackID, Name: name})
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(MetaFrame{Type: metaTrackInfo, Payload: payload})
}

func decodeMetaFrame(b []byte) (MetaFrame, error) {
	var f MetaFrame
	err := msgpack.Unmarshal(b, &f)
	return f, err
}
