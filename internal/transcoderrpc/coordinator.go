package transcoderrpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"

	coreerrors "github.com/bitriver/edge/internal/errors"
	"github.com/bitriver/edge/internal/logger"
)

// openTimeout bounds how long a worker has to send its OPEN handshake after
// dialing before the coordinator gives up on it.
const openTimeout = 5 * time.Second

// Assignment is a coordinator-side handle on one accepted worker stream,
// scoped to a single request_id (spec.md §4.2: the Ingest Connection
// "matches incoming streams by request_id").
type Assignment struct {
	RequestID string
	server    *ServerSide
}

// SendMedia forwards one access unit to this worker.
func (a *Assignment) SendMedia(m Media) error { return a.server.SendMedia(m) }

// SendShutdown instructs this worker to stop.
func (a *Assignment) SendShutdown(target ShutdownTarget) error { return a.server.SendShutdown(target) }

// AwaitReady blocks for the worker's Ready or an early give-up Shutdown.
func (a *Assignment) AwaitReady() (ready bool, reason ShutdownReason, err error) {
	return a.server.RecvReadyOrShutdown()
}

// AwaitShutdown blocks for the worker's next Shutdown message — the only
// message it sends once past Ready — or returns an error if the stream
// ended without one (spontaneous disconnect).
func (a *Assignment) AwaitShutdown() (ShutdownReason, error) {
	_, reason, err := a.server.RecvReadyOrShutdown()
	return reason, err
}

// Coordinator runs the gRPC server an Ingest Connection exposes at the
// grpc_endpoint it advertises on transcoder_request events. Workers dial in
// and each resulting stream is handed to Accept as an Assignment.
type Coordinator struct {
	log      *slog.Logger
	server   *grpc.Server
	listener net.Listener

	mu      sync.Mutex
	pending map[string]chan *Assignment
}

// NewCoordinator binds a listener on addr (use ":0" to let the OS pick a
// port, then read Addr() to learn what to advertise) and starts the gRPC
// server in the background.
func NewCoordinator(addr string) (*Coordinator, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, coreerrors.NewInfraError("transcoderrpc.listen", err, false)
	}
	c := &Coordinator{
		log:      logger.Logger().With("component", "transcoderrpc.coordinator"),
		listener: lis,
		pending:  make(map[string]chan *Assignment),
	}
	c.server = grpc.NewServer(
		grpc.ChainStreamInterceptor(c.logStreamInterceptor),
	)
	RegisterTranscoderServer(c.server, c)
	go func() {
		if err := c.server.Serve(lis); err != nil {
			c.log.Warn("coordinator server stopped", "error", err)
		}
	}()
	return c, nil
}

// Addr is the bind address workers should dial (e.g. to embed in a
// transcoder_request event's grpc_endpoint field).
func (c *Coordinator) Addr() string { return c.listener.Addr().String() }

// Await blocks until a worker opens a stream for requestID, or ctx expires.
func (c *Coordinator) Await(ctx context.Context, requestID string) (*Assignment, error) {
	ch := make(chan *Assignment, 1)
	c.mu.Lock()
	c.pending[requestID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
	}()

	select {
	case a := <-ch:
		return a, nil
	case <-ctx.Done():
		return nil, coreerrors.NewInfraError("transcoderrpc.await", ctx.Err(), true)
	}
}

// Control implements TranscoderServer: it reads the worker's OPEN handshake
// and hands the stream off to whichever Await call is waiting on that
// request_id, then blocks for the stream's lifetime.
func (c *Coordinator) Control(stream Transcoder_ControlServer) error {
	server := NewServerSide(stream)

	openCh := make(chan Open, 1)
	errCh := make(chan error, 1)
	go func() {
		open, err := server.RecvOpen()
		if err != nil {
			errCh <- err
			return
		}
		openCh <- open
	}()

	var open Open
	select {
	case open = <-openCh:
	case err := <-errCh:
		return err
	case <-time.After(openTimeout):
		return coreerrors.NewProtocolError("transcoderrpc.control", fmt.Errorf("no OPEN within %s", openTimeout))
	}

	c.mu.Lock()
	ch, ok := c.pending[open.RequestID]
	c.mu.Unlock()
	if !ok {
		return coreerrors.NewProtocolError("transcoderrpc.control", fmt.Errorf("unexpected request_id %q", open.RequestID))
	}

	ch <- &Assignment{RequestID: open.RequestID, server: server}
	// The Assignment owner drives Send/Recv from here; this handler's job is
	// only to keep the stream alive until the worker's context ends (it
	// completed, was shut down, or disconnected).
	<-stream.Context().Done()
	return stream.Context().Err()
}

// Close stops accepting new streams and shuts down in-flight ones.
func (c *Coordinator) Close() {
	stopped := make(chan struct{})
	go func() {
		c.server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(10 * time.Second):
		c.server.Stop()
	}
}

func (c *Coordinator) logStreamInterceptor(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	start := time.Now()
	err := handler(srv, ss)
	c.log.Debug("stream handled", "method", info.FullMethod, "duration", time.Since(start), "error", err)
	return err
}
