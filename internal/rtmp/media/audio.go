package media

import (
	"fmt"
)

// Audio codec this pipeline transmuxes. Anything else is surfaced to the
// caller as an error rather than silently dropped, since spec.md only
// defines AAC audio_settings for the InitSegment.
const AudioCodecAAC = "AAC"

// AAC packet types.
const (
	AACPacketTypeSequenceHeader = "sequence_header"
	AACPacketTypeRaw            = "raw"
)

// AudioMessage is a lightweight parsed representation of an RTMP audio
// (message type 8) tag: enough to route sequence headers to codec
// negotiation and everything else to the transmuxer, with the raw payload
// bytes left untouched.
//
// Tag structure: [AudioHeader][AACPacketType][AACPayload...]
//
// AudioHeader (first byte) bits:
//
//	7-4: SoundFormat (10 == AAC; anything else is rejected)
//	3-0: ignored
type AudioMessage struct {
	Codec      string // always AudioCodecAAC on success
	PacketType string // sequence_header, raw, or unknown_<n> for any other AACPacketType byte
	Payload    []byte // raw payload, excluding header + AACPacketType
}

// ParseAudioMessage parses a raw RTMP audio message payload (the FLV/RTMP
// tag data for message type 8).
func ParseAudioMessage(data []byte) (*AudioMessage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("audio.parse: empty payload")
	}
	soundFormat := (data[0] >> 4) & 0x0F
	if soundFormat != 10 {
		return nil, fmt.Errorf("audio.parse: unsupported sound format id=%d", soundFormat)
	}
	if len(data) < 2 {
		return nil, fmt.Errorf("audio.parse: aac packet truncated (need packet type)")
	}

	msg := &AudioMessage{Codec: AudioCodecAAC, Payload: data[2:]}
	switch data[1] {
	case 0x00:
		msg.PacketType = AACPacketTypeSequenceHeader
	case 0x01:
		msg.PacketType = AACPacketTypeRaw
	default:
		msg.PacketType = fmt.Sprintf("unknown_%d", data[1])
	}
	return msg, nil
}
