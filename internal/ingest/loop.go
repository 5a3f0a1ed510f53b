package ingest

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/oklog/ulid/v2"

	coreerrors "github.com/bitriver/edge/internal/errors"
	"github.com/bitriver/edge/internal/observability/metrics"
	"github.com/bitriver/edge/internal/roomdb"
	"github.com/bitriver/edge/internal/transcoderrpc"
	"github.com/bitriver/edge/internal/transmux"
)

// slotRole identifies which Register slot a background watcher is bound to.
type slotRole int

const (
	roleCurrent slotRole = iota
	roleNext
	roleOld
)

type slotOutcome struct {
	role   slotRole
	reason transcoderrpc.ShutdownReason
	err    error
}

type assignmentOutcome struct {
	assignment *transcoderrpc.Assignment
	err        error
}

type readyOutcome struct {
	role   slotRole
	assign *transcoderrpc.Assignment
	ready  bool
	err    error
}

// Run drives the single-task cooperative loop of spec.md §5: it multiplexes
// socket media, transcoder-stream events, the ingest-disconnect
// subscription, and the bitrate tick until ctx is canceled or a fatal/policy
// error occurs, then tears the room down. It returns the Disconnected cause
// (zero value if clean) and any error.
func (c *Connection) Run(ctx context.Context) (cause coreerrors.DisconnectCause, err error) {
	sub, err := c.deps.Bus.Subscribe(ctx, IngestDisconnectSubject(c.connectionID))
	if err != nil {
		return coreerrors.DisconnectCause{Code: coreerrors.CauseFailedToSubscribe}, coreerrors.NewInfraError("ingest.subscribe_disconnect", err, false)
	}
	defer sub.Close()

	ticker := time.NewTicker(c.cfg.Policer.BitrateTickInterval)
	defer ticker.Stop()

	assignmentCh := make(chan assignmentOutcome, 1)
	readyCh := make(chan readyOutcome, 2)
	slotCh := make(chan slotOutcome, 4)

	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			c.terminate(coreerrors.DisconnectCause{Code: coreerrors.CauseIngestShutdown})
			return coreerrors.DisconnectCause{Code: coreerrors.CauseIngestShutdown}, nil

		case cause := <-c.socketCh:
			c.terminate(cause)
			return cause, nil

		case msg, ok := <-sub.Messages():
			if !ok {
				c.terminate(coreerrors.DisconnectCause{Code: coreerrors.CauseSubscriptionClosedUnexpectedly})
				return coreerrors.DisconnectCause{Code: coreerrors.CauseSubscriptionClosedUnexpectedly}, nil
			}
			_ = sub.Ack(ctx, msg.ID)
			c.terminate(coreerrors.DisconnectCause{Code: coreerrors.CauseDisconnectRequested})
			return coreerrors.DisconnectCause{Code: coreerrors.CauseDisconnectRequested}, nil

		case <-ticker.C:
			if perr := c.policer.Tick(); perr != nil {
				cause := perr.(*coreerrors.PolicyError).Cause
				c.terminate(cause)
				return cause, nil
			}

		case mm := <-c.mediaCh:
			if perr := c.handleMedia(ctx, mm, assignmentCh); perr != nil {
				var polErr *coreerrors.PolicyError
				if stderrors.As(perr, &polErr) {
					c.terminate(polErr.Cause)
					return polErr.Cause, nil
				}
				fallback := coreerrors.DisconnectCause{Code: coreerrors.CauseMux}
				c.terminate(fallback)
				return fallback, perr
			}
			c.maybeReplace(readyCh, slotCh)
			c.forwardToCurrent()

		case ao := <-assignmentCh:
			c.handleAssignmentOutcome(ao, readyCh)

		case ro := <-readyCh:
			c.handleReadyOutcome(ro, assignmentCh, slotCh)

		case so := <-slotCh:
			if term, disconnectCause := c.handleSlotOutcome(so, assignmentCh, slotCh); term {
				c.terminate(disconnectCause)
				return disconnectCause, nil
			}
		}
	}
}

// handleMedia pushes one RTMP media message through the transmuxer, polices
// it, and — once an init segment is available — recruits a transcoder if
// none is assigned or pending yet. The resulting fragment, if any, is
// stashed on c.pending* for forwardToCurrent/maybeReplace to act on.
func (c *Connection) handleMedia(ctx context.Context, mm mediaMessage, assignmentCh chan assignmentOutcome) error {
	var (
		seg  transmux.MediaSegment
		init *transmux.InitSegment
		ok   bool
		err  error
	)
	if mm.video {
		seg, init, ok, err = c.tx.PushVideo(mm.timestamp, mm.payload)
	} else {
		seg, init, ok, err = c.tx.PushAudio(mm.timestamp, mm.payload)
	}
	if err != nil {
		cause := coreerrors.CauseVideoDemux
		if !mm.video {
			cause = coreerrors.CauseAudioDemux
		}
		return coreerrors.NewPolicyError("ingest.demux", coreerrors.DisconnectCause{Code: cause})
	}

	if init != nil {
		c.initSeg = init
	}

	if err := c.policer.ObserveBytes(len(mm.payload), mm.video && seg.Keyframe, time.Now()); err != nil {
		return err
	}

	if c.initSeg != nil && c.register.NeedsRequest() {
		c.requestTranscoder(ctx, assignmentCh)
	}

	c.pendingFragment, c.pendingOK, c.pendingKeyframe = seg, ok, mm.video && seg.Keyframe
	return nil
}

// forwardToCurrent sends the fragment produced by the most recent
// handleMedia call (if any) to the current transcoder.
func (c *Connection) forwardToCurrent() {
	if !c.pendingOK {
		return // sequence-header packet; nothing to forward
	}
	current := c.register.Current()
	if current == nil {
		return // no current transcoder yet; dropped until one is promoted
	}
	media := transcoderrpc.Media{
		Video:     c.pendingFragment.Kind == transmux.FragmentVideo,
		Data:      c.pendingFragment.Payload,
		Keyframe:  c.pendingFragment.Keyframe,
		Timestamp: c.pendingFragment.Timestamp,
		Timescale: 90000,
	}
	if err := current.SendMedia(media); err != nil {
		c.log.Warn("failed to forward fragment to current transcoder", "error", err)
	}
}

// maybeReplace triggers the keyframe-boundary rolling replacement of
// spec.md §4.2 when a primed next slot exists and no old slot is still
// draining.
func (c *Connection) maybeReplace(readyCh chan readyOutcome, slotCh chan slotOutcome) {
	if !c.pendingKeyframe || !c.pendingOK {
		return
	}
	if c.register.NextSlotPrimed() && c.register.HasCurrent() && !c.register.HasOld() {
		c.rollingReplace(slotCh)
	}
}

// requestTranscoder publishes a TranscoderRequest and starts a background
// wait for the coordinator to match it to a dialed-back stream.
func (c *Connection) requestTranscoder(ctx context.Context, assignmentCh chan assignmentOutcome) {
	requestID := ulid.Make().String()
	req := TranscoderRequest{
		RequestID:      requestID,
		OrganizationID: c.key.OrganizationID,
		RoomID:         c.key.RoomID,
		ConnectionID:   c.connectionID,
		GRPCEndpoint:   c.cfg.GRPCAdvertiseHost,
	}
	payload, _ := marshalEvent(req)
	if err := c.deps.Bus.Publish(ctx, SubjectTranscoderRequest, payload); err != nil {
		c.log.Warn("failed to publish transcoder request", "error", err)
		return
	}
	c.register.MarkRequested(requestID)

	go func() {
		waitCtx, cancel := context.WithTimeout(context.Background(), c.cfg.TranscoderTimeout)
		defer cancel()
		a, err := c.deps.Coordinator.Await(waitCtx, requestID)
		select {
		case assignmentCh <- assignmentOutcome{assignment: a, err: err}:
		case <-c.done:
		}
	}()
}

// handleAssignmentOutcome binds a freshly dialed-back worker into the next
// slot, primes it with the current init segment, and starts waiting for its
// Ready.
func (c *Connection) handleAssignmentOutcome(ao assignmentOutcome, readyCh chan readyOutcome) {
	if ao.err != nil {
		c.log.Warn("transcoder assignment failed", "error", ao.err)
		metrics.RecordTranscoderAssignment("no_transcoder")
		return
	}
	if !c.register.MatchAssignment(ao.assignment) {
		c.log.Warn("unmatched transcoder stream", "request_id", ao.assignment.RequestID)
		_ = ao.assignment.SendShutdown(transcoderrpc.ShutdownTarget_STREAM)
		metrics.RecordTranscoderAssignment("failed")
		return
	}
	metrics.RecordTranscoderAssignment("assigned")
	c.primeAndAwaitReady(roleNext, ao.assignment, readyCh)
}

// primeAndAwaitReady sends the current init segment to a and spawns a
// background wait for its Ready, reported on readyCh under role.
func (c *Connection) primeAndAwaitReady(role slotRole, a *transcoderrpc.Assignment, readyCh chan readyOutcome) {
	if c.initSeg != nil {
		init := transcoderrpc.Media{Video: true, Data: c.initSeg.Bytes, Keyframe: true, Timestamp: 0, Timescale: 90000}
		if err := a.SendMedia(init); err != nil {
			c.log.Warn("failed to prime transcoder with init segment", "error", err)
		}
	}
	go func() {
		ready, _, err := a.AwaitReady()
		select {
		case readyCh <- readyOutcome{role: role, assign: a, ready: ready, err: err}:
		case <-c.done:
		}
	}()
}

// handleReadyOutcome reacts to a primed worker's Ready (or early give-up),
// promoting it to current the first time around, per spec.md §4.2
// Assignment: "if no current transcoder exists... promotes next→current."
// A worker already promoted by a rolling replacement only confirms its
// promotion here; it is already current by the time Ready arrives.
func (c *Connection) handleReadyOutcome(ro readyOutcome, assignmentCh chan assignmentOutcome, slotCh chan slotOutcome) {
	if ro.err != nil || !ro.ready {
		c.log.Warn("transcoder did not become ready", "error", ro.err)
		if ro.role == roleNext {
			c.register.LoseNext()
		} else {
			c.register.LoseCurrent()
		}
		if c.register.NeedsRequest() {
			c.requestTranscoder(context.Background(), assignmentCh)
		}
		return
	}

	if ro.role == roleNext && !c.register.HasCurrent() {
		c.register.PromoteFirst()
	}
	c.watchSlot(roleCurrent, ro.assign, slotCh)
}

// rollingReplace implements the handoff of spec.md §4.2 Rolling replacement
// on keyframe: current moves to old (draining) and next moves to current.
// The incoming worker was already confirmed Ready while it sat in the next
// slot, so promotion here is synchronous and safe to forward media to
// immediately afterward.
func (c *Connection) rollingReplace(slotCh chan slotOutcome) {
	outgoing := c.register.Current()
	if outgoing == nil || !c.register.NextSlotPrimed() {
		return
	}
	if err := outgoing.SendShutdown(transcoderrpc.ShutdownTarget_TRANSCODER); err != nil {
		c.log.Warn("failed to shut down outgoing transcoder", "error", err)
	}
	c.register.BeginRollingReplacement()
	c.watchSlot(roleOld, outgoing, slotCh)
}

// watchSlot spawns a background watcher that blocks for the next Shutdown
// message (or disconnect) from one slot's worker and reports it on slotCh.
func (c *Connection) watchSlot(role slotRole, a *transcoderrpc.Assignment, slotCh chan slotOutcome) {
	go func() {
		reason, err := a.AwaitShutdown()
		select {
		case slotCh <- slotOutcome{role: role, reason: reason, err: err}:
		case <-c.done:
		}
	}()
}

// handleSlotOutcome reacts to a worker's shutdown/disconnect in whichever
// slot it occupied. term is true if this is fatal to the connection.
func (c *Connection) handleSlotOutcome(so slotOutcome, assignmentCh chan assignmentOutcome, slotCh chan slotOutcome) (term bool, cause coreerrors.DisconnectCause) {
	switch so.role {
	case roleOld:
		// Shutdown(Request) from a draining old transcoder is a
		// transcoder-initiated drain notice, not completion; keep watching
		// the same slot until Shutdown(Complete) or a disconnect arrives.
		if so.err == nil && so.reason == transcoderrpc.ShutdownReason_REQUEST {
			c.watchSlot(roleOld, c.register.Old(), slotCh)
			return false, coreerrors.DisconnectCause{}
		}
		c.register.CompleteOld()
		metrics.RecordTranscoderJobEnded()
		return false, coreerrors.DisconnectCause{}

	case roleCurrent:
		if so.err == nil && so.reason == transcoderrpc.ShutdownReason_REQUEST {
			c.watchSlot(roleCurrent, c.register.Current(), slotCh)
			return false, coreerrors.DisconnectCause{}
		}
		c.register.LoseCurrent()
		metrics.RecordTranscoderJobEnded()
		if setErr := c.deps.Rooms.SetRoomStatus(context.Background(), c.key.OrganizationID, c.key.RoomID, roomdb.StatusWaitingForTranscoder); setErr != nil {
			c.log.Warn("failed to flip room to waiting_for_transcoder", "error", setErr)
		}
		if c.register.NeedsRequest() {
			c.requestTranscoder(context.Background(), assignmentCh)
		}
		return false, coreerrors.DisconnectCause{}

	case roleNext:
		if so.err == nil && so.reason == transcoderrpc.ShutdownReason_REQUEST {
			c.watchSlot(roleNext, c.register.Next(), slotCh)
			return false, coreerrors.DisconnectCause{}
		}
		c.register.LoseNext()
		metrics.RecordTranscoderJobEnded()
		if c.register.NeedsRequest() {
			c.requestTranscoder(context.Background(), assignmentCh)
		}
		return false, coreerrors.DisconnectCause{}
	}
	return false, coreerrors.DisconnectCause{}
}

// isCleanCause reports whether cause reflects a requested, orderly end of
// the connection (spec.md Scenario 3: a takeover or an operator-initiated
// shutdown) rather than a protocol, policy, or infrastructure failure.
func isCleanCause(cause coreerrors.DisconnectCause) bool {
	switch cause.Code {
	case coreerrors.CauseDisconnectRequested, coreerrors.CauseIngestShutdown:
		return true
	default:
		return false
	}
}

// terminate runs spec.md §4.2 Termination: Shutdown(Stream) to any
// current/next worker, then clears the room row iff this connection still
// owns it, and publishes a Disconnected room event.
func (c *Connection) terminate(cause coreerrors.DisconnectCause) {
	if a := c.register.Current(); a != nil {
		_ = a.SendShutdown(transcoderrpc.ShutdownTarget_STREAM)
	}
	if a := c.register.Next(); a != nil {
		_ = a.SendShutdown(transcoderrpc.ShutdownTarget_STREAM)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.deps.Rooms.ClearRoom(ctx, c.key.OrganizationID, c.key.RoomID, c.connectionID); err != nil {
		c.log.Warn("failed to clear room on termination", "error", err)
	}

	evt := RoomEvent{Kind: RoomEventDisconnected, RoomID: c.key.RoomID, ConnectionID: c.connectionID, Clean: isCleanCause(cause), Cause: cause.Code}
	payload, _ := marshalEvent(evt)
	if err := c.deps.Bus.Publish(ctx, RoomEventsSubject(c.key.OrganizationID), payload); err != nil {
		c.log.Warn("failed to publish disconnected event", "error", err)
	}
	metrics.RecordDisconnect(cause.Code)
	c.log.Info("ingest connection terminated", "cause", cause.Code)
}
