package rtmpingest

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	coreerrors "github.com/bitriver/edge/internal/errors"
	"github.com/bitriver/edge/internal/ingest"
	"github.com/bitriver/edge/internal/rtmp/chunk"
	iconn "github.com/bitriver/edge/internal/rtmp/conn"
	"github.com/bitriver/edge/internal/rtmp/control"
	"github.com/bitriver/edge/internal/rtmp/media"
	"github.com/bitriver/edge/internal/rtmp/rpc"
)

// connHandler holds the per-socket command state: the conn.Session
// connect/createStream/publish walks through, the stream-id allocator
// createStream hands out, the codec store publish populates, and — once
// publish is admitted — the ingest.Connection the rest of this socket's
// media is forwarded to.
type connHandler struct {
	ctx  context.Context
	cfg  ingest.Config
	deps ingest.Deps

	sock *iconn.Connection
	log  *slog.Logger

	session   *iconn.Session
	allocator *rpc.StreamIDAllocator
	detector  media.CodecDetector

	mu         sync.Mutex
	audioCodec string
	videoCodec string
	ingestConn *ingest.Connection
	ingestWG   sync.WaitGroup

	closeOnce sync.Once
	closed    chan struct{} // closed once the socket's read loop exits
}

func newConnHandler(ctx context.Context, cfg ingest.Config, deps ingest.Deps, sock *iconn.Connection, log *slog.Logger) *connHandler {
	h := &connHandler{
		ctx:       ctx,
		cfg:       cfg,
		deps:      deps,
		sock:      sock,
		log:       log,
		session:   iconn.NewSession(),
		allocator: rpc.NewStreamIDAllocator(),
		closed:    make(chan struct{}),
	}

	d := rpc.NewDispatcher(h.currentApp)
	d.OnConnect = h.onConnect
	d.OnCreateStream = h.onCreateStream
	d.OnPublish = h.onPublish
	d.OnDeleteStream = h.onDeleteStream

	sock.SetMessageHandler(h.dispatchMessage(d))
	return h
}

func (h *connHandler) currentApp() string { return h.session.App() }

// dispatchMessage routes every reassembled RTMP message: AMF0 commands
// (type 20) go through the rpc.Dispatcher, audio/video (types 8/9) run
// through codec detection and then the admitted ingest.Connection, if any.
func (h *connHandler) dispatchMessage(d *rpc.Dispatcher) func(msg *chunk.Message) {
	return func(msg *chunk.Message) {
		switch msg.TypeID {
		case 8, 9:
			h.detector.Process(msg.TypeID, msg.Payload, h, h.log)
			h.forwardMedia(msg)
		case 20:
			if err := d.Dispatch(msg); err != nil {
				h.log.Warn("command dispatch failed", "error", err)
			}
		default:
			// Set Chunk Size (1) has already been applied by the chunk
			// reader in internal/rtmp/conn's read loop. The other protocol
			// control types (2-6) and any other message type are ignored.
		}
	}
}

func (h *connHandler) forwardMedia(msg *chunk.Message) {
	h.mu.Lock()
	ic := h.ingestConn
	h.mu.Unlock()
	if ic == nil {
		return // media arriving before publish is admitted; drop it
	}
	if msg.TypeID == 9 {
		ic.PushVideo(msg.Timestamp, msg.Payload)
	} else {
		ic.PushAudio(msg.Timestamp, msg.Payload)
	}
}

// CodecStore implementation, backing media.CodecDetector.

func (h *connHandler) SetAudioCodec(c string) { h.mu.Lock(); h.audioCodec = c; h.mu.Unlock() }
func (h *connHandler) SetVideoCodec(c string) { h.mu.Lock(); h.videoCodec = c; h.mu.Unlock() }
func (h *connHandler) GetAudioCodec() string  { h.mu.Lock(); defer h.mu.Unlock(); return h.audioCodec }
func (h *connHandler) GetVideoCodec() string  { h.mu.Lock(); defer h.mu.Unlock(); return h.videoCodec }
func (h *connHandler) ConnectionID() string   { return h.sock.ID() }

func (h *connHandler) onConnect(cc *rpc.ConnectCommand, _ *chunk.Message) error {
	h.session.SetConnectInfo(cc.App, cc.TcURL, cc.FlashVer, uint8(cc.ObjectEncoding))
	resp, err := rpc.BuildConnectResponse(cc.TransactionID, "Connected.")
	if err != nil {
		return err
	}
	return h.sock.SendMessage(resp)
}

func (h *connHandler) onCreateStream(cs *rpc.CreateStreamCommand, _ *chunk.Message) error {
	resp, streamID, err := rpc.BuildCreateStreamResponse(cs.TransactionID, h.allocator)
	if err != nil {
		return err
	}
	h.session.AllocateStreamID() // advances session state to StreamCreated; its own counter runs in lockstep with h.allocator, both fresh per connection
	if err := h.sock.SendMessage(resp); err != nil {
		return err
	}
	return h.sock.SendMessage(control.EncodeUserControlStreamBegin(streamID))
}

// onPublish admits the publish through internal/ingest. On admission
// failure the socket is closed silently, matching spec.md §7.1: a rejected
// publish produces no RTMP-level response, just a dropped connection.
func (h *connHandler) onPublish(pc *rpc.PublishCommand, _ *chunk.Message) error {
	h.session.SetStreamKey(h.currentApp(), pc.PublishingName)

	ic, err := ingest.New(h.ctx, h.cfg, h.deps, h.currentApp(), pc.PublishingName)
	if err != nil {
		if coreerrors.IsCoreError(err) {
			h.log.Info("publish rejected", "stream_key", pc.StreamKey, "error", err)
			_ = h.sock.Close()
			return nil
		}
		return err
	}

	h.mu.Lock()
	h.ingestConn = ic
	h.mu.Unlock()

	h.ingestWG.Add(1)
	go func() {
		defer h.ingestWG.Done()
		cause, runErr := ic.Run(h.ctx)
		if runErr != nil {
			h.log.Warn("ingest connection run failed", "error", runErr, "cause", cause.Code)
		}
		_ = h.sock.Close()
	}()

	resp, err := rpc.BuildPublishStartResponse(h.session.StreamID(), pc.StreamKey)
	if err != nil {
		return err
	}
	return h.sock.SendMessage(resp)
}

// onDeleteStream tears down the admitted ingest connection, if any, as a
// publisher-requested clean stop (FCUnpublish/closeStream's usual partner).
func (h *connHandler) onDeleteStream(_ []interface{}, _ *chunk.Message) error {
	h.mu.Lock()
	ic := h.ingestConn
	h.mu.Unlock()
	if ic != nil {
		ic.ReportSocketClosed(coreerrors.DisconnectCause{Code: coreerrors.CauseDisconnectRequested})
	}
	return nil
}

// onSocketClosed classifies a socket-level read failure and reports it to
// the admitted ingest.Connection, if one exists, so Run can tear the room
// down with an accurate RtmpConnectionTimeout/RtmpConnectionError cause
// instead of silently hanging on ctx.Done() (spec.md §6).
func (h *connHandler) onSocketClosed(err error) {
	h.closeOnce.Do(func() { close(h.closed) })

	h.mu.Lock()
	ic := h.ingestConn
	h.mu.Unlock()
	if ic == nil || err == nil {
		return
	}

	cause := coreerrors.DisconnectCause{Code: coreerrors.CauseRTMPConnectionError}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		cause = coreerrors.DisconnectCause{Code: coreerrors.CauseRTMPConnectionTimeout}
	}
	ic.ReportSocketClosed(cause)
}

// Closed signals when the underlying socket's read loop has exited, whether
// cleanly or on error — the server's accept-loop goroutine waits on it
// alongside its own shutdown context to know when it can stop tracking
// this connection.
func (h *connHandler) Closed() <-chan struct{} { return h.closed }

func (h *connHandler) awaitIngestDone() {
	h.ingestWG.Wait()
}
