package edge

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bitriver/edge/internal/edge/signing"
	"github.com/bitriver/edge/internal/roomdb"
	"github.com/bitriver/edge/internal/transcoder"
)

// handleRoomPlaylist implements GET /{org}/{room}.m3u8 (spec.md §4.7 Room
// playlist): validates an optional room token, loads the room, issues a
// playback session, and lists one rendition per #EXT-X-STREAM-INF plus the
// first audio rendition's #EXT-X-MEDIA entry.
func (s *Server) handleRoomPlaylist(w http.ResponseWriter, r *http.Request) {
	org := chi.URLParam(r, "org")
	room := chi.URLParam(r, "room")
	ctx := r.Context()

	wasAuthenticated := false
	if token := r.URL.Query().Get("token"); token != "" {
		claims, err := signing.VerifyRoomToken(token, s.deps.RoomKeys)
		if err != nil || claims.OrganizationID != org || claims.RoomID != room {
			badRequest(w, "invalid room token")
			return
		}
		wasAuthenticated = true
	}

	rm, ok, err := s.deps.Rooms.GetRoom(ctx, org, room)
	if err != nil {
		internalError(w, s.log.Error, "room.get", err)
		return
	}
	if !ok || rm.Status == roomdb.StatusOffline || rm.ActiveIngestConnectionID == nil {
		notFound(w)
		return
	}
	if rm.Visibility == roomdb.VisibilityPrivate && !wasAuthenticated {
		badRequest(w, "room token required")
		return
	}

	connectionID := *rm.ActiveIngestConnectionID
	now := time.Now()
	sessionID := uuid.New().String()
	if err := s.deps.Rooms.InsertPlaybackSession(ctx, roomdb.PlaybackSession{
		SessionID:                 sessionID,
		OrganizationID:            org,
		RoomID:                    room,
		ConnectionIDPinnedAtIssue: connectionID,
		IssuedAt:                  now,
		ExpiresAt:                 now.Add(sessionDuration),
		WasAuthenticated:          wasAuthenticated,
	}); err != nil {
		internalError(w, s.log.Error, "room.insert_session", err)
		return
	}

	sessionToken, err := s.deps.Signer.SignSession(signing.SessionClaims{
		SessionID:        sessionID,
		OrganizationID:   org,
		RoomID:           room,
		ConnectionID:     connectionID,
		WasAuthenticated: wasAuthenticated,
	}, now.Add(sessionDuration))
	if err != nil {
		internalError(w, s.log.Error, "room.sign_session", err)
		return
	}

	live, err := s.loadLiveManifest(ctx, org, room, connectionID)
	if err != nil {
		internalError(w, s.log.Error, "room.load_manifest", err)
		return
	}

	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:7\n")
	audioWritten := false
	for _, rend := range live.Renditions {
		if rend.Audio {
			if audioWritten {
				continue
			}
			b.WriteString(`#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="audio",NAME="` + rend.Name +
				`",AUTOSELECT=YES,DEFAULT=YES,URI="` + renditionURL(org, room, sessionToken, rend.Name) + "\"\n")
			audioWritten = true
			continue
		}
	}
	for _, rend := range live.Renditions {
		if rend.Audio {
			continue
		}
		b.WriteString("#EXT-X-STREAM-INF:BANDWIDTH=")
		b.WriteString(strconv.Itoa(rend.Bandwidth))
		if audioWritten {
			b.WriteString(`,AUDIO="audio"`)
		}
		b.WriteString("\n")
		b.WriteString(renditionURL(org, room, sessionToken, rend.Name))
		b.WriteString("\n")
	}
	writePlaylist(w, b.String())
}

func renditionURL(org, room, sessionToken, rendition string) string {
	return "/" + org + "/" + room + "/" + sessionToken + "/" + rendition + ".m3u8"
}

// loadLiveManifest fetches the connection-level manifest; a missing key is
// tolerated as "no renditions yet" (a brief race right after admission,
// before the first transcoder has published anything) rather than an error.
func (s *Server) loadLiveManifest(ctx context.Context, org, room, connectionID string) (*transcoder.LiveManifest, error) {
	key := transcoder.ConnKeys{Org: org, Room: room, Connection: connectionID}.ManifestKey()
	data, ok, err := s.deps.Metadata.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &transcoder.LiveManifest{}, nil
	}
	return transcoder.UnmarshalLiveManifest(data)
}
