package transcoderrpc

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	coreerrors "github.com/bitriver/edge/internal/errors"
	"github.com/bitriver/edge/internal/logger"
)

// Worker is the Transcoder Worker's dial-back client: it connects to the
// grpc_endpoint named in a transcoder_request event, sends the handshake,
// and exposes a ClientSide for the caller to drive.
type Worker struct {
	log    *slog.Logger
	conn   *grpc.ClientConn
	client *ClientSide
}

// Dial connects to endpoint and opens a Control stream identified by
// requestID, per spec.md §4.2 ("Peer transcoders dial back to
// grpc_endpoint... send an Open message containing request_id").
func Dial(ctx context.Context, endpoint, requestID string) (*Worker, error) {
	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, coreerrors.NewInfraError("transcoderrpc.dial", err, false)
	}

	// ctx governs the whole stream lifetime, not just the handshake: the
	// caller cancels it to tear the assignment down.
	stream, err := NewTranscoderClient(conn).Control(ctx)
	if err != nil {
		conn.Close()
		return nil, coreerrors.NewInfraError("transcoderrpc.open_stream", err, true)
	}

	client := NewClientSide(stream)
	if err := client.SendOpen(requestID); err != nil {
		conn.Close()
		return nil, err
	}

	return &Worker{
		log:    logger.Logger().With("component", "transcoderrpc.worker", "request_id", requestID),
		conn:   conn,
		client: client,
	}, nil
}

// Stream exposes the underlying ClientSide for Send/Recv.
func (w *Worker) Stream() *ClientSide { return w.client }

// Close tears down the gRPC connection.
func (w *Worker) Close() error {
	return w.conn.Close()
}
