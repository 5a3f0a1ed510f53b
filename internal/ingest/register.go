package ingest

import (
	"github.com/bitriver/edge/internal/transcoderrpc"
)

// slot wraps one transcoder assignment with the bookkeeping the register
// needs: the request_id it was recruited under, the stream itself once the
// worker has dialed back, and a ready flag.
type slot struct {
	requestID string
	assign    *transcoderrpc.Assignment
	ready     bool // promoted past Ready
}

// Register implements the three-slot transcoder promotion machine of
// spec.md §4.2 Transcoder coordination: at most one current (actively
// receiving fragments), one next (primed with init but no media yet), and
// one old (draining a shutdown handshake). It holds no goroutines itself —
// the owning ingest loop drives every transition and serializes all access
// by construction (single-task cooperative actor, spec.md §5).
type Register struct {
	current *slot
	next    *slot
	old     *slot

	// pendingRequestID is the request_id most recently published on
	// transcoder.request and not yet matched to a dialed-back stream.
	pendingRequestID string
}

// NewRegister creates an empty Register.
func NewRegister() *Register { return &Register{} }

// NeedsRequest reports whether a new TranscoderRequest should be published:
// true when there is neither a current nor a next transcoder and none is
// already pending (spec.md §4.2 Assignment: "on loss of current/next").
func (r *Register) NeedsRequest() bool {
	return r.current == nil && r.next == nil && r.pendingRequestID == ""
}

// MarkRequested records that requestID was just published on
// transcoder.request and is now the one pending dial-back.
func (r *Register) MarkRequested(requestID string) {
	r.pendingRequestID = requestID
}

// MatchAssignment binds a freshly dialed-back Assignment into the next slot
// if its request_id matches the pending one. ok is false if the id does not
// match anything outstanding (a stale or duplicate dial), in which case the
// caller should tear the stream down.
func (r *Register) MatchAssignment(a *transcoderrpc.Assignment) (ok bool) {
	if a.RequestID != r.pendingRequestID || r.next != nil {
		return false
	}
	r.next = &slot{requestID: a.RequestID, assign: a}
	r.pendingRequestID = ""
	return true
}

// NextSlotPrimed reports whether next exists and hasn't been promoted yet —
// used to decide whether media sent so far needs to be replayed via the
// init segment resend path, and whether a rolling-replacement swap is legal.
func (r *Register) NextSlotPrimed() bool { return r.next != nil }

// HasCurrent reports whether a current transcoder is actively receiving
// fragments.
func (r *Register) HasCurrent() bool { return r.current != nil }

// HasOld reports whether an old transcoder is still draining.
func (r *Register) HasOld() bool { return r.old != nil }

// PromoteFirst promotes next→current when there was no current transcoder
// yet (spec.md §4.2: "if no current transcoder exists... sends Ready and
// promotes next→current"). The caller must have already sent Ready on the
// underlying stream.
func (r *Register) PromoteFirst() {
	r.current = r.next
	r.next = nil
}

// BeginRollingReplacement starts the handoff described in spec.md §4.2
// Rolling replacement on keyframe: the current transcoder moves to old
// (draining), and next becomes the new current. The caller is responsible
// for sending Shutdown(Transcoder) to the outgoing current and Ready to the
// newly promoted one, and for not forwarding media to it until the old slot
// acknowledges Shutdown(Complete) (see CompleteOld).
func (r *Register) BeginRollingReplacement() {
	r.old = r.current
	r.current = r.next
	r.next = nil
}

// CompleteOld clears the old slot once its Shutdown(Complete) has been
// received, per spec.md §4.2 Shutdown handshake: if a current transcoder
// was blocked awaiting this, the caller now sends it Ready.
func (r *Register) CompleteOld() {
	r.old = nil
}

// LoseCurrent clears the current slot after a spontaneous disconnect,
// returning the lost slot's request id for logging. The caller must flip
// room status to WaitingForTranscoder and issue a new TranscoderRequest
// (NeedsRequest will now report true).
func (r *Register) LoseCurrent() (requestID string) {
	if r.current == nil {
		return ""
	}
	requestID = r.current.requestID
	r.current = nil
	return requestID
}

// LoseNext clears the next slot after a spontaneous disconnect before
// promotion.
func (r *Register) LoseNext() (requestID string) {
	if r.next == nil {
		return ""
	}
	requestID = r.next.requestID
	r.next = nil
	return requestID
}

// Current returns the current slot's Assignment, or nil.
func (r *Register) Current() *transcoderrpc.Assignment {
	if r.current == nil {
		return nil
	}
	return r.current.assign
}

// Next returns the next slot's Assignment, or nil.
func (r *Register) Next() *transcoderrpc.Assignment {
	if r.next == nil {
		return nil
	}
	return r.next.assign
}

// Old returns the old slot's Assignment, or nil.
func (r *Register) Old() *transcoderrpc.Assignment {
	if r.old == nil {
		return nil
	}
	return r.old.assign
}
