package roomdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	coreerrors "github.com/bitriver/edge/internal/errors"
)

// claimStaleAfter is how long a room's last_live_at must have aged before a
// new ingest connection may claim it outright, per spec.md §4.2 Admission.
const claimStaleAfter = 10 * time.Second

// defaultOperationTimeout bounds every Repository call the way
// PostgresSessionStore.operationContext bounds auth session operations.
const defaultOperationTimeout = 5 * time.Second

// Repository is the Room/Session Database contract consumed by
// internal/ingest and internal/edge.
type Repository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewRepository opens a Postgres-backed Repository using dsn.
func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	if dsn == "" {
		return nil, fmt.Errorf("roomdb: dsn required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("roomdb: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, coreerrors.NewInfraError("roomdb.connect", fmt.Errorf("open pool: %w", err), false)
	}
	return &Repository{pool: pool, timeout: defaultOperationTimeout}, nil
}

// Close releases the connection pool.
func (r *Repository) Close() { r.pool.Close() }

func (r *Repository) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// GetRoom fetches a room by (org, room), returning ok=false if it does not
// exist (rooms are created externally, never by the core — spec.md §3).
func (r *Repository) GetRoom(ctx context.Context, org, room string) (Room, bool, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()
	row := r.pool.QueryRow(ctx, `
SELECT organization_id, room_id, stream_secret, status, active_ingest_connection_id,
       video_input, audio_input, active_transcoding_config, active_recording_id,
       visibility, last_live_at, updated_at
FROM rooms WHERE organization_id = $1 AND room_id = $2`, org, room)
	var rm Room
	if err := row.Scan(&rm.OrganizationID, &rm.RoomID, &rm.StreamSecret, &rm.Status,
		&rm.ActiveIngestConnectionID, &rm.VideoInput, &rm.AudioInput,
		&rm.ActiveTranscodingConfig, &rm.ActiveRecordingID, &rm.Visibility,
		&rm.LastLiveAt, &rm.UpdatedAt); err != nil {
		if isNoRows(err) {
			return Room{}, false, nil
		}
		return Room{}, false, coreerrors.NewInfraError("roomdb.get_room", err, true)
	}
	return rm, true, nil
}

// ClaimRoom atomically claims a room for a new ingest connection, per
// spec.md §4.2: requires the stream secret to match and either no prior
// live session or one stale by claimStaleAfter. Returns the previous
// active_ingest_connection_id (if any) so the caller can publish an
// ingest_disconnect takeover message, and ok=false if the precondition was
// not met (secret mismatch or room still actively live).
func (r *Repository) ClaimRoom(ctx context.Context, org, room, secret, newConnectionID string) (previous *string, ok bool, err error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()
	row := r.pool.QueryRow(ctx, `
WITH prior AS (
    SELECT active_ingest_connection_id FROM rooms
    WHERE organization_id = $2 AND room_id = $3
)
UPDATE rooms
SET active_ingest_connection_id = $1,
    status = 'waiting_for_transcoder',
    last_live_at = now(),
    updated_at = now()
FROM prior
WHERE rooms.organization_id = $2 AND rooms.room_id = $3 AND rooms.stream_secret = $4
  AND (rooms.last_live_at IS NULL OR rooms.last_live_at < now() - make_interval(secs => $5))
RETURNING prior.active_ingest_connection_id
`, newConnectionID, org, room, secret, claimStaleAfter.Seconds())
	var prev *string
	if err := row.Scan(&prev); err != nil {
		if isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, coreerrors.NewInfraError("roomdb.claim_room", err, true)
	}
	return prev, true, nil
}

// SetRoomStatus updates a room's status (and updated_at); it leaves
// active_ingest_connection_id unchanged.
func (r *Repository) SetRoomStatus(ctx context.Context, org, room string, status Status) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()
	_, err := r.pool.Exec(ctx, `
UPDATE rooms SET status = $1, updated_at = now()
WHERE organization_id = $2 AND room_id = $3`, status, org, room)
	if err != nil {
		return coreerrors.NewInfraError("roomdb.set_status", err, true)
	}
	return nil
}

// ClearRoom atomically resets a room to Offline only if it is still owned
// by expectedConnectionID, per spec.md §4.2 Termination ("clear the room
// row only if active_ingest_connection_id still equals this session's
// id"). Returns ok=false if ownership had already moved on (a newer
// connection took over before this one's shutdown ran).
func (r *Repository) ClearRoom(ctx context.Context, org, room, expectedConnectionID string) (ok bool, err error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()
	tag, err := r.pool.Exec(ctx, `
UPDATE rooms
SET active_ingest_connection_id = NULL, status = 'offline', updated_at = now()
WHERE organization_id = $1 AND room_id = $2 AND active_ingest_connection_id = $3
`, org, room, expectedConnectionID)
	if err != nil {
		return false, coreerrors.NewInfraError("roomdb.clear_room", err, true)
	}
	return tag.RowsAffected() > 0, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
