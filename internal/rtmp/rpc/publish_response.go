package rpc

import (
	"fmt"

	"github.com/bitriver/edge/internal/errors"
	"github.com/bitriver/edge/internal/rtmp/amf"
	"github.com/bitriver/edge/internal/rtmp/chunk"
)

// BuildPublishStartResponse builds the onStatus NetStream.Publish.Start
// notification a publisher expects once admission succeeds. streamID is the
// value returned by BuildCreateStreamResponse for this connection's stream.
func BuildPublishStartResponse(streamID uint32, streamKey string) (*chunk.Message, error) {
	info := map[string]interface{}{
		"level":       "status",
		"code":        "NetStream.Publish.Start",
		"description": fmt.Sprintf("Publishing %s.", streamKey),
		"details":     streamKey,
	}

	payload, err := amf.EncodeAll("onStatus", float64(0), nil, info)
	if err != nil {
		return nil, errors.NewProtocolError("publish.response.encode", fmt.Errorf("amf encode: %w", err))
	}

	return &chunk.Message{
		CSID:            5,
		TypeID:          commandMessageAMF0TypeID,
		MessageStreamID: streamID,
		Payload:         payload,
		MessageLength:   uint32(len(payload)),
	}, nil
}

// BuildPublishRejectedResponse builds the onStatus NetStream.Publish.BadName
// notification for a publish that failed admission. internal/rtmpingest
// does not send it: a rejected publish there gets no RTMP-level response
// and its socket is closed.
func BuildPublishRejectedResponse(streamID uint32) (*chunk.Message, error) {
	info := map[string]interface{}{
		"level":       "error",
		"code":        "NetStream.Publish.BadName",
		"description": "stream key rejected",
	}

	payload, err := amf.EncodeAll("onStatus", float64(0), nil, info)
	if err != nil {
		return nil, errors.NewProtocolError("publish.response.encode", fmt.Errorf("amf encode: %w", err))
	}

	return &chunk.Message{
		CSID:            5,
		TypeID:          commandMessageAMF0TypeID,
		MessageStreamID: streamID,
		Payload:         payload,
		MessageLength:   uint32(len(payload)),
	}, nil
}
