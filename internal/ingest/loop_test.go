package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	coreerrors "github.com/bitriver/edge/internal/errors"
	"github.com/bitriver/edge/internal/eventbus"
	"github.com/bitriver/edge/internal/logger"
	"github.com/bitriver/edge/internal/roomdb"
	"github.com/bitriver/edge/internal/transcoderrpc"
)

// fakeBus is a minimal in-memory eventbus.Bus: enough for requestTranscoder
// to publish a TranscoderRequest without a real broker behind it. Published
// subjects are recorded for assertions; none of these tests drive Run's
// disconnect subscription, so Subscribe is left unimplemented.
type fakeBus struct {
	mu        sync.Mutex
	published []string // subjects published to, in order
}

func (b *fakeBus) Publish(_ context.Context, subject string, _ []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, subject)
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (eventbus.Subscription, error) {
	return nil, nil
}

// newTestConnection builds a Connection by struct literal, bypassing New's
// Postgres-backed admission path entirely. deps.Rooms is a zero-value
// Repository: safe so long as the exercised code path never dereferences its
// connection pool (i.e. never reaches terminate or handleSlotOutcome's
// roleCurrent branch, both of which are integration-only concerns covered by
// internal/roomdb's own Postgres-gated tests).
func newTestConnection(t *testing.T, bus *fakeBus, coord *transcoderrpc.Coordinator) *Connection {
	t.Helper()
	return &Connection{
		cfg: Config{TranscoderTimeout: 500 * time.Millisecond},
		deps: Deps{
			Rooms:       &roomdb.Repository{},
			Bus:         bus,
			Coordinator: coord,
		},
		log:      logger.Logger(),
		key:      StreamKey{OrganizationID: "acme", RoomID: "room1"},
		register: NewRegister(),
		done:     make(chan struct{}),
	}
}

// dialAssignment spins up a real handshake over coord the way
// internal/transcoderrpc's own coordinator/worker test does, returning the
// resulting Assignment alongside the Worker dialed against it so the caller
// can drive both sides (SendReady, RecvMediaOrShutdown, ...).
func dialAssignment(t *testing.T, coord *transcoderrpc.Coordinator, requestID string) (*transcoderrpc.Assignment, *transcoderrpc.Worker) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	awaitCh := make(chan *transcoderrpc.Assignment, 1)
	awaitErrCh := make(chan error, 1)
	go func() {
		a, err := coord.Await(ctx, requestID)
		if err != nil {
			awaitErrCh <- err
			return
		}
		awaitCh <- a
	}()

	worker, err := transcoderrpc.Dial(ctx, coord.Addr(), requestID)
	require.NoError(t, err)

	select {
	case a := <-awaitCh:
		return a, worker
	case err := <-awaitErrCh:
		t.Fatalf("await assignment: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for assignment")
	}
	return nil, nil
}

func TestIsCleanCause(t *testing.T) {
	require.True(t, isCleanCause(coreerrors.DisconnectCause{Code: coreerrors.CauseDisconnectRequested}))
	require.True(t, isCleanCause(coreerrors.DisconnectCause{Code: coreerrors.CauseIngestShutdown}))
	require.False(t, isCleanCause(coreerrors.DisconnectCause{Code: coreerrors.CauseRTMPConnectionError}))
	require.False(t, isCleanCause(coreerrors.DisconnectCause{Code: coreerrors.CauseMux}))
	require.False(t, isCleanCause(coreerrors.DisconnectCause{}))
}

func TestHandleAssignmentOutcome_ErrorRecordsFailureAndLeavesRegisterEmpty(t *testing.T) {
	c := newTestConnection(t, &fakeBus{}, nil)
	readyCh := make(chan readyOutcome, 1)

	c.handleAssignmentOutcome(assignmentOutcome{err: require.AnError}, readyCh)

	require.False(t, c.register.HasCurrent())
	require.False(t, c.register.NextSlotPrimed())
	select {
	case <-readyCh:
		t.Fatal("did not expect a ready outcome to be queued")
	default:
	}
}

func TestHandleAssignmentOutcome_UnmatchedRequestIsShutDownAndDropped(t *testing.T) {
	coord, err := transcoderrpc.NewCoordinator("127.0.0.1:0")
	require.NoError(t, err)
	defer coord.Close()

	c := newTestConnection(t, &fakeBus{}, coord)
	c.register.MarkRequested("req-expected")

	assignment, worker := dialAssignment(t, coord, "req-other")
	defer worker.Close()

	readyCh := make(chan readyOutcome, 1)
	c.handleAssignmentOutcome(assignmentOutcome{assignment: assignment}, readyCh)

	require.False(t, c.register.NextSlotPrimed())

	_, _, shutdown, err := worker.Stream().RecvMediaOrShutdown()
	require.NoError(t, err)
	require.True(t, shutdown)
}

func TestHandleAssignmentOutcome_MatchedRequestPrimesNextAndAwaitsReady(t *testing.T) {
	coord, err := transcoderrpc.NewCoordinator("127.0.0.1:0")
	require.NoError(t, err)
	defer coord.Close()

	c := newTestConnection(t, &fakeBus{}, coord)
	c.register.MarkRequested("req-1")

	assignment, worker := dialAssignment(t, coord, "req-1")
	defer worker.Close()

	readyCh := make(chan readyOutcome, 1)
	c.handleAssignmentOutcome(assignmentOutcome{assignment: assignment}, readyCh)

	require.True(t, c.register.NextSlotPrimed())
	require.Equal(t, assignment, c.register.Next())

	require.NoError(t, worker.Stream().SendReady())

	select {
	case ro := <-readyCh:
		require.NoError(t, ro.err)
		require.True(t, ro.ready)
		require.Equal(t, roleNext, ro.role)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for readyOutcome")
	}
}

func TestHandleReadyOutcome_PromotesFirstTranscoderToCurrent(t *testing.T) {
	coord, err := transcoderrpc.NewCoordinator("127.0.0.1:0")
	require.NoError(t, err)
	defer coord.Close()

	c := newTestConnection(t, &fakeBus{}, coord)
	assignment, worker := dialAssignment(t, coord, "req-1")
	defer worker.Close()

	c.register.MarkRequested("req-1")
	require.True(t, c.register.MatchAssignment(assignment))
	require.True(t, c.register.NextSlotPrimed())
	require.False(t, c.register.HasCurrent())

	assignmentCh := make(chan assignmentOutcome, 1)
	slotCh := make(chan slotOutcome, 1)
	c.handleReadyOutcome(readyOutcome{role: roleNext, assign: assignment, ready: true}, assignmentCh, slotCh)

	require.True(t, c.register.HasCurrent())
	require.Equal(t, assignment, c.register.Current())
	require.False(t, c.register.NextSlotPrimed())

	// watchSlot(roleCurrent, ...) is now blocked in AwaitShutdown, which
	// receives FROM the worker; send its completion from the worker side.
	require.NoError(t, worker.Stream().SendShutdown(transcoderrpc.ShutdownReason_COMPLETE))
	select {
	case so := <-slotCh:
		require.Equal(t, roleCurrent, so.role)
		require.Equal(t, transcoderrpc.ShutdownReason_COMPLETE, so.reason)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for watchSlot to observe shutdown")
	}
}

func TestHandleReadyOutcome_FailureLosesNextAndRerequests(t *testing.T) {
	bus := &fakeBus{}
	coord, err := transcoderrpc.NewCoordinator("127.0.0.1:0")
	require.NoError(t, err)
	defer coord.Close()

	c := newTestConnection(t, bus, coord)
	assignment, worker := dialAssignment(t, coord, "req-1")
	defer worker.Close()

	c.register.MarkRequested("req-1")
	require.True(t, c.register.MatchAssignment(assignment))

	assignmentCh := make(chan assignmentOutcome, 1)
	slotCh := make(chan slotOutcome, 1)
	c.handleReadyOutcome(readyOutcome{role: roleNext, assign: assignment, err: require.AnError}, assignmentCh, slotCh)

	require.False(t, c.register.NextSlotPrimed())
	require.True(t, c.register.NeedsRequest())

	bus.mu.Lock()
	defer bus.mu.Unlock()
	require.Contains(t, bus.published, SubjectTranscoderRequest)
}

func TestHandleSlotOutcome_OldSlotRequestReasonKeepsWatching(t *testing.T) {
	coord, err := transcoderrpc.NewCoordinator("127.0.0.1:0")
	require.NoError(t, err)
	defer coord.Close()

	c := newTestConnection(t, &fakeBus{}, coord)
	assignment, worker := dialAssignment(t, coord, "req-old")
	defer worker.Close()
	c.register.MarkRequested("req-old")
	require.True(t, c.register.MatchAssignment(assignment))
	c.register.PromoteFirst() // current
	c.register.old = &slot{requestID: "req-old", assign: assignment}

	assignmentCh := make(chan assignmentOutcome, 1)
	slotCh := make(chan slotOutcome, 1)

	term, _ := c.handleSlotOutcome(slotOutcome{role: roleOld, reason: transcoderrpc.ShutdownReason_REQUEST}, assignmentCh, slotCh)
	require.False(t, term)
	require.True(t, c.register.HasOld()) // still draining, not yet complete

	require.NoError(t, worker.Stream().SendShutdown(transcoderrpc.ShutdownReason_COMPLETE))
	select {
	case so := <-slotCh:
		require.Equal(t, roleOld, so.role)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for re-armed old-slot watcher")
	}
}

func TestHandleSlotOutcome_OldSlotCompletionClearsSlot(t *testing.T) {
	c := newTestConnection(t, &fakeBus{}, nil)
	c.register.old = &slot{requestID: "req-old"}

	assignmentCh := make(chan assignmentOutcome, 1)
	slotCh := make(chan slotOutcome, 1)

	term, cause := c.handleSlotOutcome(slotOutcome{role: roleOld, reason: transcoderrpc.ShutdownReason_COMPLETE}, assignmentCh, slotCh)
	require.False(t, term)
	require.Equal(t, coreerrors.DisconnectCause{}, cause)
	require.False(t, c.register.HasOld())
}

func TestHandleSlotOutcome_NextSlotLossTriggersRerequest(t *testing.T) {
	bus := &fakeBus{}
	coord, err := transcoderrpc.NewCoordinator("127.0.0.1:0")
	require.NoError(t, err)
	defer coord.Close()

	c := newTestConnection(t, bus, coord)
	c.register.next = &slot{requestID: "req-next"}

	assignmentCh := make(chan assignmentOutcome, 1)
	slotCh := make(chan slotOutcome, 1)

	term, _ := c.handleSlotOutcome(slotOutcome{role: roleNext, err: require.AnError}, assignmentCh, slotCh)
	require.False(t, term)
	require.False(t, c.register.NextSlotPrimed())
	require.True(t, c.register.NeedsRequest())

	bus.mu.Lock()
	defer bus.mu.Unlock()
	require.Contains(t, bus.published, SubjectTranscoderRequest)
}

func TestRollingReplace_MovesCurrentToOldAndPromotesNext(t *testing.T) {
	coord, err := transcoderrpc.NewCoordinator("127.0.0.1:0")
	require.NoError(t, err)
	defer coord.Close()

	c := newTestConnection(t, &fakeBus{}, coord)

	currentAssign, currentWorker := dialAssignment(t, coord, "req-current")
	defer currentWorker.Close()
	nextAssign, nextWorker := dialAssignment(t, coord, "req-next")
	defer nextWorker.Close()

	c.register.current = &slot{requestID: "req-current", assign: currentAssign}
	c.register.next = &slot{requestID: "req-next", assign: nextAssign}

	slotCh := make(chan slotOutcome, 1)
	c.rollingReplace(slotCh)

	require.True(t, c.register.HasOld())
	require.Equal(t, currentAssign, c.register.Old())
	require.Equal(t, nextAssign, c.register.Current())
	require.False(t, c.register.NextSlotPrimed())

	_, target, shutdown, err := currentWorker.Stream().RecvMediaOrShutdown()
	require.NoError(t, err)
	require.True(t, shutdown)
	require.Equal(t, transcoderrpc.ShutdownTarget_TRANSCODER, target)
}
