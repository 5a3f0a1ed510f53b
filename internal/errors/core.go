package errors

import (
	stdErrors "errors"
	"fmt"
)

// coreMarker is implemented by the ingest-core error kinds (admission,
// policy, infrastructure) so callers can classify them the same way
// protocolMarker classifies the RTMP wire-layer errors above.
type coreMarker interface {
	error
	isCore()
}

// AdmissionError reports a failure to accept an RTMP publish: malformed
// stream name, unknown app, or a stream-key/secret mismatch. Per spec.md
// §7.1 these are reported silently (the connection is closed without an
// RTMP-level response); Op/Err exist for logging only.
type AdmissionError struct {
	Op  string
	Err error
}

func (e *AdmissionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("admission error: %s", e.Op)
	}
	return fmt.Sprintf("admission error: %s: %v", e.Op, e.Err)
}
func (e *AdmissionError) Unwrap() error { return e.Err }
func (e *AdmissionError) isCore()       {}

// PolicyError reports a bitrate or keyframe-interval policy violation
// (spec.md §7.2). Cause carries the DisconnectCause so the ingest loop can
// surface it on the event bus without re-deriving it from the error string.
type PolicyError struct {
	Op    string
	Cause DisconnectCause
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy error: %s: %s", e.Op, e.Cause.Code)
}
func (e *PolicyError) isCore() {}

// InfraError reports a failure of a collaborator (DB, metadata store, event
// bus) that prevents an ingest connection from making progress (spec.md
// §7.4). Retryable marks infra errors that the caller may retry once before
// treating them as fatal (e.g. an idempotent bitrate-tick DB write).
type InfraError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *InfraError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("infra error: %s", e.Op)
	}
	return fmt.Sprintf("infra error: %s: %v", e.Op, e.Err)
}
func (e *InfraError) Unwrap() error { return e.Err }
func (e *InfraError) isCore()       {}

// DisconnectCause is the structured form of the Disconnected.cause strings
// enumerated in spec.md §6. Code is the wire string; Observed/Limit carry
// the numeric context for policy violations so subscribers of the event bus
// don't need to parse it back out of a formatted message.
type DisconnectCause struct {
	Code     string
	Observed int64
	Limit    int64
}

func (c DisconnectCause) String() string {
	if c.Observed == 0 && c.Limit == 0 {
		return c.Code
	}
	return fmt.Sprintf("%s(%d, %d)", c.Code, c.Observed, c.Limit)
}

// Well-known disconnect causes (spec.md §6).
const (
	CauseRTMPConnectionTimeout          = "RtmpConnectionTimeout"
	CauseRTMPConnectionError            = "RtmpConnectionError"
	CauseBitrateLimit                   = "BitrateLimit"
	CauseKeyframeBitrateDistance        = "KeyframeBitrateDistance"
	CauseKeyframeTimeLimit              = "KeyframeTimeLimit"
	CauseNoTranscoderAvailable          = "NoTranscoderAvailable"
	CauseFailedToRequestTranscoder      = "FailedToRequestTranscoder"
	CauseFailedToSubscribe              = "FailedToSubscribe"
	CauseFailedToUpdateRoom             = "FailedToUpdateRoom"
	CauseFailedToUpdateBitrate          = "FailedToUpdateBitrate"
	CauseAudioDemux                     = "AudioDemux"
	CauseVideoDemux                     = "VideoDemux"
	CauseMetadataDemux                  = "MetadataDemux"
	CauseMux                            = "Mux"
	CauseIngestShutdown                 = "IngestShutdown"
	CauseDisconnectRequested            = "DisconnectRequested"
	CauseSubscriptionClosedUnexpectedly = "SubscriptionClosedUnexpectedly"
)

// NewAdmissionError constructs an AdmissionError wrapping cause.
func NewAdmissionError(op string, cause error) error { return &AdmissionError{Op: op, Err: cause} }

// NewPolicyError constructs a PolicyError carrying the given disconnect cause.
func NewPolicyError(op string, cause DisconnectCause) error {
	return &PolicyError{Op: op, Cause: cause}
}

// NewInfraError constructs an InfraError, optionally marked retryable.
func NewInfraError(op string, cause error, retryable bool) error {
	return &InfraError{Op: op, Err: cause, Retryable: retryable}
}

// IsCoreError reports whether err is (or wraps) one of AdmissionError,
// PolicyError, or InfraError.
func IsCoreError(err error) bool {
	if err == nil {
		return false
	}
	var cm coreMarker
	return stdErrors.As(err, &cm)
}

// IsRetryableInfra reports whether err is an InfraError marked Retryable.
func IsRetryableInfra(err error) bool {
	var ie *InfraError
	if stdErrors.As(err, &ie) {
		return ie.Retryable
	}
	return false
}
