// Package ingest implements the Ingest Connection (spec.md §4.2): the
// single-task cooperative actor that owns one publisher's RTMP socket for
// its lifetime, admits and polices the stream, recruits and hands off
// transcoder workers, and tears the room down cleanly on exit.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	coreerrors "github.com/bitriver/edge/internal/errors"
	"github.com/bitriver/edge/internal/eventbus"
	"github.com/bitriver/edge/internal/logger"
	"github.com/bitriver/edge/internal/observability/metrics"
	"github.com/bitriver/edge/internal/roomdb"
	"github.com/bitriver/edge/internal/transcoderrpc"
	"github.com/bitriver/edge/internal/transmux"
)

// admissionTimeout bounds how long a publish has to complete admission
// after socket accept (spec.md §5 Timeouts).
const admissionTimeout = 5 * time.Second

// Config bounds the tunables an ingest Connection needs beyond the wiring
// of its collaborators.
type Config struct {
	Policer           PolicerConfig
	TranscoderTimeout time.Duration
	GRPCAdvertiseHost string // host:port prefix workers dial back to
}

// DefaultConfig returns sane defaults for Config.
func DefaultConfig() Config {
	return Config{Policer: DefaultPolicerConfig(), TranscoderTimeout: 10 * time.Second}
}

// Deps are the collaborators a Connection is wired against. They are
// supplied once at server startup and shared across every Connection.
type Deps struct {
	Rooms       *roomdb.Repository
	Bus         eventbus.Bus
	Coordinator *transcoderrpc.Coordinator
}

// Connection owns one publisher's ingest lifecycle end to end.
type Connection struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	connectionID string
	key          StreamKey

	tx       *transmux.Transmuxer
	register *Register
	policer  *Policer

	mediaCh  chan mediaMessage
	socketCh chan coreerrors.DisconnectCause
	done     chan struct{}

	// initSeg is the most recent CMAF init segment produced by tx; it is
	// replayed as the first MEDIA message to every newly dialed-back worker
	// so its pipeline can prime itself before receiving ongoing fragments.
	initSeg *transmux.InitSegment

	// pending* carry the most recent transmuxer output from handleMedia to
	// the forwardToCurrent/maybeReplace steps of the same Run loop
	// iteration; they are never read across iterations.
	pendingFragment transmux.MediaSegment
	pendingOK       bool
	pendingKeyframe bool
}

// mediaMessage is one raw RTMP audio/video message handed to the Connection
// from the socket-facing layer (internal/rtmp/conn + rpc.Dispatcher).
type mediaMessage struct {
	video     bool
	timestamp uint32
	payload   []byte
}

// New admits a publish: parses and validates the stream key, atomically
// claims the room, and allocates a connection id. Callers pass the app and
// publishing name of a parsed PublishCommand; New turns them into a
// StreamKey with ParseStreamKey. On any admission failure the returned error is an
// AdmissionError and the caller must close the socket silently (spec.md
// §4.2/§7.1).
func New(ctx context.Context, cfg Config, deps Deps, app, publishingName string) (*Connection, error) {
	ctx, cancel := context.WithTimeout(ctx, admissionTimeout)
	defer cancel()

	key, err := ParseStreamKey(app, publishingName)
	if err != nil {
		metrics.RecordReject("bad_stream_key")
		return nil, err
	}

	connectionID := ulid.Make().String()

	prev, ok, err := deps.Rooms.ClaimRoom(ctx, key.OrganizationID, key.RoomID, key.RoomSecret, connectionID)
	if err != nil {
		metrics.RecordReject("room_claim_error")
		return nil, err
	}
	if !ok {
		metrics.RecordReject("room_claim_rejected")
		return nil, coreerrors.NewAdmissionError("ingest.admit", fmt.Errorf("room claim rejected for %s/%s", key.OrganizationID, key.RoomID))
	}

	if prev != nil {
		if err := deps.Bus.Publish(ctx, IngestDisconnectSubject(*prev), nil); err != nil {
			// The old session will eventually be reaped by its own admission
			// timeout or socket error; losing this notification is not fatal
			// to the new session, but it is worth surfacing.
			logger.Logger().Warn("failed to publish takeover disconnect", "old_connection_id", *prev, "error", err)
		}
	}

	log := logger.WithConn(logger.Logger(), connectionID, fmt.Sprintf("%s/%s", key.OrganizationID, key.RoomID))
	log.Info("ingest connection admitted", "organization_id", key.OrganizationID, "room_id", key.RoomID)

	if err := deps.Rooms.SetRoomStatus(ctx, key.OrganizationID, key.RoomID, roomdb.StatusWaitingForTranscoder); err != nil {
		metrics.RecordReject("room_status_error")
		return nil, err
	}

	metrics.RecordAdmit()
	return &Connection{
		cfg:          cfg,
		deps:         deps,
		log:          log,
		connectionID: connectionID,
		key:          key,
		tx:           transmux.New(),
		register:     NewRegister(),
		policer:      NewPolicer(cfg.Policer, time.Now()),
		mediaCh:      make(chan mediaMessage, 256),
		socketCh:     make(chan coreerrors.DisconnectCause, 1),
		done:         make(chan struct{}),
	}, nil
}

// ConnectionID returns the allocated connection id (spec.md §4.2: "Allocates
// a fresh connection_id (ULID)").
func (c *Connection) ConnectionID() string { return c.connectionID }

// PushVideo enqueues one RTMP video message (type 9) for the ingest loop.
// It must be called from the socket read path; it never blocks once
// PushAudio/PushVideo is draining faster than the socket produces, per the
// bounded mediaCh buffer acting as the sole backpressure point between the
// socket and the cooperative loop.
func (c *Connection) PushVideo(timestamp uint32, payload []byte) {
	select {
	case c.mediaCh <- mediaMessage{video: true, timestamp: timestamp, payload: payload}:
	case <-c.done:
	}
}

// PushAudio enqueues one RTMP audio message (type 8).
func (c *Connection) PushAudio(timestamp uint32, payload []byte) {
	select {
	case c.mediaCh <- mediaMessage{video: false, timestamp: timestamp, payload: payload}:
	case <-c.done:
	}
}

// ReportSocketClosed tells the ingest loop the RTMP socket it reads from has
// gone away (spec.md §6: RtmpConnectionTimeout/RtmpConnectionError), so Run
// can tear the room down with that cause instead of waiting on ctx, which is
// reserved for operator-initiated shutdown (CauseIngestShutdown). Safe to
// call at most once; extra calls after Run has returned are dropped.
func (c *Connection) ReportSocketClosed(cause coreerrors.DisconnectCause) {
	select {
	case c.socketCh <- cause:
	case <-c.done:
	default:
	}
}
