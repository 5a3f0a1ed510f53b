package edge

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bitriver/edge/internal/roomdb"
	"github.com/bitriver/edge/internal/transcoder"
)

// handleRoomScreenshot implements GET /{org}/{room}.jpg: resolves the room's
// current screenshot index from its LiveManifest and redirects to a signed,
// directly addressable screenshot URL.
func (s *Server) handleRoomScreenshot(w http.ResponseWriter, r *http.Request) {
	org := chi.URLParam(r, "org")
	room := chi.URLParam(r, "room")
	ctx := r.Context()

	rm, ok, err := s.deps.Rooms.GetRoom(ctx, org, room)
	if err != nil {
		internalError(w, s.log.Error, "screenshot.get_room", err)
		return
	}
	if !ok || rm.Status == roomdb.StatusOffline || rm.ActiveIngestConnectionID == nil {
		notFound(w)
		return
	}

	connectionID := *rm.ActiveIngestConnectionID
	live, err := s.loadLiveManifest(ctx, org, room, connectionID)
	if err != nil {
		internalError(w, s.log.Error, "screenshot.load_manifest", err)
		return
	}

	u, err := s.screenshotURL(org, room, connectionID, live.ScreenshotIdx)
	if err != nil {
		internalError(w, s.log.Error, "screenshot.sign", err)
		return
	}
	http.Redirect(w, r, u, http.StatusFound)
}

// handleScreenshot implements GET /{org}/{room}/{screenshot}.jpg: the
// {screenshot} path segment is an opaque literal, with addressing carried
// entirely by the signed claim query parameter (see claims.go).
func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	org := chi.URLParam(r, "org")
	room := chi.URLParam(r, "room")
	ctx := r.Context()

	claims, err := s.deps.Signer.VerifyScreenshot(r.URL.Query().Get("claim"))
	if err != nil || claims.OrganizationID != org || claims.RoomID != room {
		badRequest(w, "invalid claim")
		return
	}

	key := transcoder.ConnKeys{Org: org, Room: room, Connection: claims.ConnectionID}.ScreenshotKey(claims.Idx)
	body, err := s.deps.Blobs.Get(ctx, key)
	if err != nil {
		internalError(w, s.log.Error, "screenshot.get_blob", err)
		return
	}
	defer body.Close()
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}
