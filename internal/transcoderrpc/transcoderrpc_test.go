package transcoderrpc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCoordinatorAndWorker_HandshakeAndMediaFlow(t *testing.T) {
	coord, err := NewCoordinator("127.0.0.1:0")
	require.NoError(t, err)
	defer coord.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	awaitDone := make(chan *Assignment, 1)
	awaitErr := make(chan error, 1)
	go func() {
		a, err := coord.Await(ctx, "req-1")
		if err != nil {
			awaitErr <- err
			return
		}
		awaitDone <- a
	}()

	worker, err := Dial(ctx, coord.Addr(), "req-1")
	require.NoError(t, err)
	defer worker.Close()

	var assignment *Assignment
	select {
	case assignment = <-awaitDone:
	case err := <-awaitErr:
		t.Fatalf("await: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for assignment")
	}
	require.Equal(t, "req-1", assignment.RequestID)

	readyErr := make(chan error, 1)
	readyCh := make(chan struct{})
	go func() {
		ready, _, err := assignment.AwaitReady()
		if err != nil {
			readyErr <- err
			return
		}
		if ready {
			close(readyCh)
		}
	}()

	require.NoError(t, worker.Stream().SendReady())
	select {
	case <-readyCh:
	case err := <-readyErr:
		t.Fatalf("await ready: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ready")
	}

	require.NoError(t, assignment.SendMedia(Media{Video: true, Data: []byte("frame"), Keyframe: true, Timestamp: 1000, Timescale: 90000}))

	media, _, shutdown, err := worker.Stream().RecvMediaOrShutdown()
	require.NoError(t, err)
	require.False(t, shutdown)
	require.NotNil(t, media)
	require.True(t, media.Video)
	require.True(t, media.Keyframe)
	require.Equal(t, []byte("frame"), media.Data)

	require.NoError(t, assignment.SendShutdown(ShutdownTarget_STREAM))
	_, target, shutdown, err := worker.Stream().RecvMediaOrShutdown()
	require.NoError(t, err)
	require.True(t, shutdown)
	require.Equal(t, ShutdownTarget_STREAM, target)
}
