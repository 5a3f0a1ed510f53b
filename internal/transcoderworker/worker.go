// Package transcoderworker implements the Transcoder Worker side of
// spec.md §4.2/§4.3: it watches the Event Bus for transcoder_request
// events, dials back to the naming Ingest Connection over gRPC, and cuts
// the access units it receives into CMAF parts and segments for one
// (connection, rendition) track.
//
// A worker process is bound at startup to a single rendition name and a
// single track kind (video or audio): spec.md's Metadata Store keys are
// scoped by rendition alone, so a video rendition and its paired audio
// rendition are published and cut independently, each by its own worker.
package transcoderworker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/bitriver/edge/internal/eventbus"
	"github.com/bitriver/edge/internal/ingest"
	"github.com/bitriver/edge/internal/logger"
	"github.com/bitriver/edge/internal/transcoder"
	"github.com/bitriver/edge/internal/transcoderrpc"
	"github.com/bitriver/edge/internal/transmux"
)

// defaultTimescale matches the Ingest Connection's hardcoded media
// timescale (internal/ingest/loop.go forwardToCurrent); the wire protocol
// carries no per-stream timescale negotiation today.
const defaultTimescale = 90000

// Config identifies the rendition and track kind this worker process
// produces CMAF output for.
type Config struct {
	Rendition string
	Kind      transmux.FragmentKind
}

// Deps are the stores a cut rendition is published to.
type Deps struct {
	Bus   eventbus.Bus
	Blobs transcoder.BlobStore
	Meta  transcoder.MetadataStore
}

// Run subscribes to transcoder_request events and handles each one in its
// own goroutine until ctx is canceled. It returns the Subscribe error, if
// any; per-request failures are logged, not returned, since one bad
// assignment must not take the whole worker process down.
func Run(ctx context.Context, cfg Config, deps Deps) error {
	log := logger.Logger().With("component", "transcoderworker", "rendition", cfg.Rendition, "kind", cfg.Kind.String())

	sub, err := deps.Bus.Subscribe(ctx, ingest.SubjectTranscoderRequest)
	if err != nil {
		return err
	}
	defer sub.Close()

	var wg sync.WaitGroup
	defer wg.Wait()

	log.Info("transcoder worker ready, watching for assignments")
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			var req ingest.TranscoderRequest
			if err := json.Unmarshal(msg.Payload, &req); err != nil {
				log.Warn("dropping malformed transcoder request", "error", err)
				continue
			}
			if err := sub.Ack(ctx, msg.ID); err != nil {
				log.Warn("failed to ack transcoder request", "error", err, "request_id", req.RequestID)
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				handleRequest(ctx, cfg, deps, req, log)
			}()
		}
	}
}

// handleRequest dials back to the Ingest Connection named by req, primes
// itself with the shared init segment, and cuts every access unit of this
// worker's kind until the connection shuts the stream down.
func handleRequest(ctx context.Context, cfg Config, deps Deps, req ingest.TranscoderRequest, log *slog.Logger) {
	reqLog := log.With("request_id", req.RequestID, "connection_id", req.ConnectionID)

	w, err := transcoderrpc.Dial(ctx, req.GRPCEndpoint, req.RequestID)
	if err != nil {
		reqLog.Warn("failed to dial back to ingest connection", "error", err)
		return
	}
	defer w.Close()

	client := w.Stream()
	if err := client.SendReady(); err != nil {
		reqLog.Warn("failed to send ready", "error", err)
		return
	}

	keys := transcoder.Keys{
		Org:        req.OrganizationID,
		Room:       req.RoomID,
		Connection: req.ConnectionID,
		Rendition:  cfg.Rendition,
	}
	cutter := transcoder.NewCutter(keys, cfg.Kind, defaultTimescale, deps.Blobs, deps.Meta, nil)

	haveInit := false
	for {
		media, target, shutdown, err := client.RecvMediaOrShutdown()
		if err != nil {
			reqLog.Warn("transcoder stream error", "error", err)
			return
		}
		if shutdown {
			reqLog.Info("shutdown requested", "target", target)
			if err := cutter.Flush(ctx); err != nil {
				reqLog.Warn("failed to flush cutter on shutdown", "error", err)
			}
			if err := client.SendShutdown(transcoderrpc.ShutdownReason_COMPLETE); err != nil {
				reqLog.Warn("failed to acknowledge shutdown", "error", err)
			}
			return
		}

		if !haveInit {
			haveInit = true
			if err := cutter.PutInit(ctx, media.Data); err != nil {
				reqLog.Warn("failed to store init segment", "error", err)
			}
			continue
		}

		kind := transmux.FragmentAudio
		if media.Video {
			kind = transmux.FragmentVideo
		}
		if kind != cfg.Kind {
			continue // the other rendition's worker owns this track
		}

		seg := transmux.MediaSegment{
			Kind:      kind,
			Timestamp: media.Timestamp,
			Keyframe:  media.Keyframe,
			Payload:   media.Data,
		}
		if err := cutter.Push(ctx, seg); err != nil {
			reqLog.Warn("failed to cut media segment", "error", err)
		}
	}
}
