package transcoderrpc

import (
	"fmt"

	coreerrors "github.com/bitriver/edge/internal/errors"
)

// Media is the ergonomic form of a MediaPayload sent to a transcoder
// worker: one ingest access unit.
type Media struct {
	Video     bool
	Data      []byte
	Keyframe  bool
	Timestamp uint32
	Timescale uint32
}

// Open is the ergonomic form of a worker's OpenPayload handshake.
type Open struct {
	RequestID string
}

// ServerSide wraps a Transcoder_ControlServer with the typed send/receive
// vocabulary an Ingest Connection's coordinator actually needs, keeping
// ControlMessage/Kind bookkeeping out of caller code.
type ServerSide struct {
	stream Transcoder_ControlServer
}

// NewServerSide adapts a raw grpc stream, as handed to a TranscoderServer's
// Control method, into a ServerSide.
func NewServerSide(stream Transcoder_ControlServer) *ServerSide {
	return &ServerSide{stream: stream}
}

// RecvOpen blocks for the worker's initial handshake message.
func (s *ServerSide) RecvOpen() (Open, error) {
	msg, err := s.stream.Recv()
	if err != nil {
		return Open{}, coreerrors.NewInfraError("transcoderrpc.recv_open", err, true)
	}
	if msg.Kind != ControlKind_OPEN || msg.Open == nil {
		return Open{}, coreerrors.NewProtocolError("transcoderrpc.recv_open", fmt.Errorf("expected OPEN, got %s", msg.Kind))
	}
	return Open{RequestID: msg.Open.RequestId}, nil
}

// SendMedia forwards one access unit to the worker.
func (s *ServerSide) SendMedia(m Media) error {
	kind := MediaKind_VIDEO
	if !m.Video {
		kind = MediaKind_AUDIO
	}
	err := s.stream.Send(&ControlMessage{
		Kind: ControlKind_MEDIA,
		Media: &MediaPayload{
			Kind:      kind,
			Data:      m.Data,
			Keyframe:  m.Keyframe,
			Timestamp: m.Timestamp,
			Timescale: m.Timescale,
		},
	})
	if err != nil {
		return coreerrors.NewInfraError("transcoderrpc.send_media", err, true)
	}
	return nil
}

// SendShutdown tells the worker to stop, either because it was demoted
// (ShutdownTarget_TRANSCODER) or the room went offline (ShutdownTarget_STREAM).
func (s *ServerSide) SendShutdown(target ShutdownTarget) error {
	err := s.stream.Send(&ControlMessage{Kind: ControlKind_SHUTDOWN, Shutdown: &ShutdownPayload{Target: target}})
	if err != nil {
		return coreerrors.NewInfraError("transcoderrpc.send_shutdown", err, true)
	}
	return nil
}

// RecvReadyOrShutdown waits for the worker's first Ready (it is ready to
// receive media) or an early Shutdown (it gave up).
// ready is false when the worker shut down instead of becoming ready.
func (s *ServerSide) RecvReadyOrShutdown() (ready bool, reason ShutdownReason, err error) {
	msg, err := s.stream.Recv()
	if err != nil {
		return false, 0, coreerrors.NewInfraError("transcoderrpc.recv_ready", err, true)
	}
	switch msg.Kind {
	case ControlKind_READY:
		return true, 0, nil
	case ControlKind_SHUTDOWN:
		if msg.Shutdown == nil {
			return false, ShutdownReason_REQUEST, nil
		}
		return false, msg.Shutdown.Reason, nil
	default:
		return false, 0, coreerrors.NewProtocolError("transcoderrpc.recv_ready", fmt.Errorf("expected READY or SHUTDOWN, got %s", msg.Kind))
	}
}

// ClientSide wraps a Transcoder_ControlClient with the vocabulary a
// Transcoder Worker needs after dialing back to an Ingest Connection.
type ClientSide struct {
	stream Transcoder_ControlClient
}

// NewClientSide adapts a dialed bidi stream into a ClientSide.
func NewClientSide(stream Transcoder_ControlClient) *ClientSide {
	return &ClientSide{stream: stream}
}

// SendOpen performs the handshake identifying which transcoder_request this
// stream answers.
func (c *ClientSide) SendOpen(requestID string) error {
	err := c.stream.Send(&ControlMessage{Kind: ControlKind_OPEN, Open: &OpenPayload{RequestId: requestID}})
	if err != nil {
		return coreerrors.NewInfraError("transcoderrpc.send_open", err, true)
	}
	return nil
}

// SendReady reports that the worker is ready to receive media, starting
// with the init segment; internal/transcoderworker sends it right after
// dialing, before any media has arrived.
func (c *ClientSide) SendReady() error {
	if err := c.stream.Send(&ControlMessage{Kind: ControlKind_READY}); err != nil {
		return coreerrors.NewInfraError("transcoderrpc.send_ready", err, true)
	}
	return nil
}

// SendShutdown tells the server the worker is giving up (reason ==
// ShutdownReason_REQUEST) or finished its work (ShutdownReason_COMPLETE).
func (c *ClientSide) SendShutdown(reason ShutdownReason) error {
	err := c.stream.Send(&ControlMessage{Kind: ControlKind_SHUTDOWN, Shutdown: &ShutdownPayload{Reason: reason}})
	if err != nil {
		return coreerrors.NewInfraError("transcoderrpc.send_shutdown", err, true)
	}
	return nil
}

// RecvMediaOrShutdown blocks for the next access unit or a shutdown
// instruction from the server.
func (c *ClientSide) RecvMediaOrShutdown() (media *Media, target ShutdownTarget, shutdown bool, err error) {
	msg, err := c.stream.Recv()
	if err != nil {
		return nil, 0, false, coreerrors.NewInfraError("transcoderrpc.recv_media", err, true)
	}
	switch msg.Kind {
	case ControlKind_MEDIA:
		if msg.Media == nil {
			return nil, 0, false, coreerrors.NewProtocolError("transcoderrpc.recv_media", fmt.Errorf("MEDIA with nil payload"))
		}
		return &Media{
			Video:     msg.Media.Kind == MediaKind_VIDEO,
			Data:      msg.Media.Data,
			Keyframe:  msg.Media.Keyframe,
			Timestamp: msg.Media.Timestamp,
			Timescale: msg.Media.Timescale,
		}, 0, false, nil
	case ControlKind_SHUTDOWN:
		if msg.Shutdown == nil {
			return nil, ShutdownTarget_TRANSCODER, true, nil
		}
		return nil, msg.Shutdown.Target, true, nil
	default:
		return nil, 0, false, coreerrors.NewProtocolError("transcoderrpc.recv_media", fmt.Errorf("expected MEDIA or SHUTDOWN, got %s", msg.Kind))
	}
}
