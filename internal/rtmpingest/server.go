// Package rtmpingest is the RTMP ingest listener (spec.md §2/§4.1): it
// accepts publisher sockets, runs them through the handshake/chunk/control
// wire stack in internal/rtmp, dispatches the connect/createStream/publish
// command sequence, and — once a publish is admitted — hands the
// connection off to an internal/ingest.Connection for the rest of its
// life. It is the glue the RTMP wire-protocol packages and the ingest core
// were always meant to be joined by.
package rtmpingest

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/bitriver/edge/internal/ingest"
	"github.com/bitriver/edge/internal/logger"
	iconn "github.com/bitriver/edge/internal/rtmp/conn"
)

// Config bounds the listener-level tunables. Ingest carries the per-
// connection admission/policer/transcoder settings internal/ingest.New
// needs. IngestFunc, if set, is consulted fresh for every accepted
// connection instead of the static Ingest value — wiring a live config
// watcher lets room-policing limits change without restarting the
// listener, per spec.md's hot-reload requirement.
type Config struct {
	ListenAddr string
	Ingest     ingest.Config
	IngestFunc func() ingest.Config
}

func (c Config) currentIngest() ingest.Config {
	if c.IngestFunc != nil {
		return c.IngestFunc()
	}
	return c.Ingest
}

// Deps are the collaborators every admitted connection is wired against.
type Deps struct {
	Ingest ingest.Deps
}

// Server runs the accept loop and tracks every connection it has handed
// off to internal/ingest, so Shutdown can cancel them all.
type Server struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	listener net.Listener

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
	closing bool
}

// NewServer builds a Server. Call Start to begin accepting connections.
func NewServer(cfg Config, deps Deps) *Server {
	return &Server{
		cfg:     cfg,
		deps:    deps,
		log:     logger.Logger().With("component", "rtmpingest.server"),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Start binds the listener and runs the accept loop until Shutdown closes
// the listener. It blocks for the lifetime of the listener, mirroring
// net/http's ListenAndServe so callers run it in its own goroutine.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("rtmpingest: listen: %w", err)
	}
	s.listener = l
	s.log.Info("rtmp ingest listening", "addr", s.cfg.ListenAddr)
	s.acceptLoop()
	return nil
}

// Shutdown stops accepting new connections, cancels every in-flight ingest
// connection, and waits for their Run loops to return or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	if s.listener != nil {
		_ = s.listener.Close()
	}
	for _, cancel := range s.cancels {
		cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) acceptLoop() {
	for {
		c, err := iconn.Accept(s.listener)
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return
			}
			s.log.Warn("accept failed", "error", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(c)
		}()
	}
}

func (s *Server) handleConnection(c *iconn.Connection) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[c.ID()] = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.cancels, c.ID())
		s.mu.Unlock()
		cancel()
	}()

	h := newConnHandler(ctx, s.cfg.currentIngest(), s.deps.Ingest, c, s.log.With("conn_id", c.ID()))
	c.SetCloseHandler(h.onSocketClosed)
	c.Start()

	select {
	case <-ctx.Done():
		// Server shutdown: close the socket ourselves, which drives the read
		// loop to exit and call onSocketClosed in turn.
		_ = c.Close()
		<-h.Closed()
	case <-h.Closed():
		// The publisher closed the socket (or it failed) on its own.
	}

	h.awaitIngestDone()
}
