package ingest

import (
	"testing"

	"github.com/bitriver/edge/internal/transcoderrpc"
	"github.com/stretchr/testify/require"
)

func TestRegister_NeedsRequestInitially(t *testing.T) {
	r := NewRegister()
	require.True(t, r.NeedsRequest())
}

func TestRegister_MarkRequestedSuppressesNeedsRequest(t *testing.T) {
	r := NewRegister()
	r.MarkRequested("req-1")
	require.False(t, r.NeedsRequest())
}

func TestRegister_MatchAssignmentBindsNextSlot(t *testing.T) {
	r := NewRegister()
	r.MarkRequested("req-1")

	a := &transcoderrpc.Assignment{RequestID: "req-1"}
	require.True(t, r.MatchAssignment(a))
	require.True(t, r.NextSlotPrimed())
	require.Same(t, a, r.Next())
	// Consumed: a later duplicate dial-back for the same request_id must
	// not be accepted now that the pending slot has cleared.
	require.False(t, r.MatchAssignment(a))
}

func TestRegister_MatchAssignmentRejectsUnknownRequestID(t *testing.T) {
	r := NewRegister()
	r.MarkRequested("req-1")

	a := &transcoderrpc.Assignment{RequestID: "req-stale"}
	require.False(t, r.MatchAssignment(a))
	require.False(t, r.NextSlotPrimed())
}

func TestRegister_PromoteFirst(t *testing.T) {
	r := NewRegister()
	r.MarkRequested("req-1")
	a := &transcoderrpc.Assignment{RequestID: "req-1"}
	require.True(t, r.MatchAssignment(a))

	r.PromoteFirst()
	require.True(t, r.HasCurrent())
	require.Same(t, a, r.Current())
	require.Nil(t, r.Next())
}

func TestRegister_BeginRollingReplacement(t *testing.T) {
	r := NewRegister()
	current := &transcoderrpc.Assignment{RequestID: "req-1"}
	next := &transcoderrpc.Assignment{RequestID: "req-2"}
	r.MarkRequested("req-1")
	r.MatchAssignment(current)
	r.PromoteFirst()

	r.MarkRequested("req-2")
	r.MatchAssignment(next)
	require.True(t, r.NextSlotPrimed())

	r.BeginRollingReplacement()
	require.Same(t, current, r.Old())
	require.Same(t, next, r.Current())
	require.Nil(t, r.Next())
	require.True(t, r.HasOld())
}

func TestRegister_CompleteOldClearsSlot(t *testing.T) {
	r := NewRegister()
	current := &transcoderrpc.Assignment{RequestID: "req-1"}
	r.MarkRequested("req-1")
	r.MatchAssignment(current)
	r.PromoteFirst()

	next := &transcoderrpc.Assignment{RequestID: "req-2"}
	r.MarkRequested("req-2")
	r.MatchAssignment(next)
	r.BeginRollingReplacement()
	require.True(t, r.HasOld())

	r.CompleteOld()
	require.False(t, r.HasOld())
	require.Nil(t, r.Old())
}

func TestRegister_LoseCurrentAllowsNewRequest(t *testing.T) {
	r := NewRegister()
	current := &transcoderrpc.Assignment{RequestID: "req-1"}
	r.MarkRequested("req-1")
	r.MatchAssignment(current)
	r.PromoteFirst()
	require.False(t, r.NeedsRequest())

	requestID := r.LoseCurrent()
	require.Equal(t, "req-1", requestID)
	require.False(t, r.HasCurrent())
	require.True(t, r.NeedsRequest())
}

func TestRegister_LoseNextAllowsNewRequest(t *testing.T) {
	r := NewRegister()
	next := &transcoderrpc.Assignment{RequestID: "req-1"}
	r.MarkRequested("req-1")
	r.MatchAssignment(next)
	require.False(t, r.NeedsRequest())

	requestID := r.LoseNext()
	require.Equal(t, "req-1", requestID)
	require.False(t, r.NextSlotPrimed())
	require.True(t, r.NeedsRequest())
}
