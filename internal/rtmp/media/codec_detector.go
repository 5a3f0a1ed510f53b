package media

import (
	"log/slog"
)

// CodecStore records the codecs a single ingest connection has announced so
// far. The glue layer that wires RTMP connections into internal/ingest
// (see internal/rtmpingest) implements it directly on its per-connection
// state rather than on a relay Stream entity, since ingest has no notion of
// subscribers to report codecs to — detection here is purely for the
// structured log line it produces the first time each codec is seen.
type CodecStore interface {
	SetAudioCodec(string)
	SetVideoCodec(string)
	GetAudioCodec() string
	GetVideoCodec() string
	ConnectionID() string
}

// CodecDetector performs one-shot detection of audio and video codecs based on the
// first audio (type 8) and video (type 9) messages received on a connection.
// It is concurrency-safe for single goroutine usage (called from the RTMP
// message handler) and keeps no internal state; state lives in the
// CodecStore implementation.
type CodecDetector struct{}

// Process inspects an incoming RTMP message (by its type ID and raw payload) and
// updates the codec store if this is the first occurrence of that media type.
//
// msgType: RTMP message type ID (8 = audio, 9 = video)
// payload: Raw tag data (FLV tag body) for that media message
// store:   per-connection state where detected codecs are persisted
// logger:  Structured logger (required for observability)
func (d *CodecDetector) Process(msgType uint8, payload []byte, store CodecStore, logger *slog.Logger) {
	if store == nil || logger == nil {
		return
	}

	var updated bool

	switch msgType {
	case 8: // Audio
		if store.GetAudioCodec() == "" {
			if am, err := ParseAudioMessage(payload); err == nil {
				store.SetAudioCodec(am.Codec)
				updated = true
			}
		}
	case 9: // Video
		if store.GetVideoCodec() == "" {
			if vm, err := ParseVideoMessage(payload); err == nil {
				store.SetVideoCodec(vm.Codec)
				updated = true
			}
		}
	}

	if updated {
		logger.Info("codecs detected", "connection_id", store.ConnectionID(), "video_codec", store.GetVideoCodec(), "audio_codec", store.GetAudioCodec())
	}
}
