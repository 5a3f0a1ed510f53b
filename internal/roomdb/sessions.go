package roomdb

import (
	"context"
	"time"

	coreerrors "github.com/bitriver/edge/internal/errors"
)

// sessionExtendBy is how much a rendition fetch extends a still-valid
// session's expiry, per spec.md §4.7 Rendition playlist.
const sessionExtendBy = 10 * time.Minute

// InsertPlaybackSession records a session issued by a successful room
// playlist request (spec.md §3 Playback Session).
func (r *Repository) InsertPlaybackSession(ctx context.Context, s PlaybackSession) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()
	_, err := r.pool.Exec(ctx, `
INSERT INTO playback_sessions
    (session_id, organization_id, room_id, connection_id, issued_at, expires_at, was_authenticated)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, s.SessionID, s.OrganizationID, s.RoomID, s.ConnectionIDPinnedAtIssue, s.IssuedAt, s.ExpiresAt, s.WasAuthenticated)
	if err != nil {
		return coreerrors.NewInfraError("roomdb.insert_session", err, true)
	}
	return nil
}

// GetPlaybackSession fetches a session by id, ok=false if missing.
func (r *Repository) GetPlaybackSession(ctx context.Context, sessionID string) (PlaybackSession, bool, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()
	row := r.pool.QueryRow(ctx, `
SELECT session_id, organization_id, room_id, connection_id, issued_at, expires_at, was_authenticated
FROM playback_sessions WHERE session_id = $1`, sessionID)
	var s PlaybackSession
	if err := row.Scan(&s.SessionID, &s.OrganizationID, &s.RoomID, &s.ConnectionIDPinnedAtIssue,
		&s.IssuedAt, &s.ExpiresAt, &s.WasAuthenticated); err != nil {
		if isNoRows(err) {
			return PlaybackSession{}, false, nil
		}
		return PlaybackSession{}, false, coreerrors.NewInfraError("roomdb.get_session", err, true)
	}
	return s, true, nil
}

// ExtendPlaybackSession conditionally pushes expires_at forward by
// sessionExtendBy, but only while the session has not already expired
// ("refreshes... only while still valid" — spec.md §4.7). Returns ok=false
// if the session was missing or already expired.
func (r *Repository) ExtendPlaybackSession(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()
	tag, err := r.pool.Exec(ctx, `
UPDATE playback_sessions
SET expires_at = $2 + make_interval(secs => $3)
WHERE session_id = $1 AND expires_at > $2
`, sessionID, now, sessionExtendBy.Seconds())
	if err != nil {
		return false, coreerrors.NewInfraError("roomdb.extend_session", err, true)
	}
	return tag.RowsAffected() > 0, nil
}

// PurgeExpiredSessions deletes sessions whose expiry has passed, following
// PostgresSessionStore.PurgeExpired's shape.
func (r *Repository) PurgeExpiredSessions(ctx context.Context, now time.Time) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()
	_, err := r.pool.Exec(ctx, `DELETE FROM playback_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return coreerrors.NewInfraError("roomdb.purge_sessions", err, true)
	}
	return nil
}
