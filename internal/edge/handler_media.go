package edge

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bitriver/edge/internal/transcoder"
)

// handleMedia implements GET /{org}/{room}/{media}.mp4 (spec.md §4.7 Media
// endpoint): the {media} path segment is an opaque literal, with the init
// segment or ordered part indices carried entirely by the signed claim
// query parameter (see claims.go). An empty Idx addresses the init blob;
// a non-empty Idx concatenates the named parts in order.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	org := chi.URLParam(r, "org")
	room := chi.URLParam(r, "room")
	ctx := r.Context()

	claims, err := s.deps.Signer.VerifyMedia(r.URL.Query().Get("claim"))
	if err != nil || claims.OrganizationID != org || claims.RoomID != room {
		badRequest(w, "invalid claim")
		return
	}

	keys := transcoder.Keys{Org: org, Room: room, Connection: claims.ConnectionID, Rendition: claims.Rendition}

	var keysToServe []string
	if len(claims.Idx) == 0 {
		keysToServe = []string{keys.InitKey()}
	} else {
		for _, idx := range claims.Idx {
			keysToServe = append(keysToServe, keys.PartKey(idx))
		}
	}

	// Resolve every blob before writing anything, so a missing/failed blob
	// still produces a clean error response instead of a truncated body.
	bodies := make([]io.ReadCloser, 0, len(keysToServe))
	defer func() {
		for _, b := range bodies {
			_ = b.Close()
		}
	}()
	for _, key := range keysToServe {
		body, err := s.deps.Blobs.Get(ctx, key)
		if err != nil {
			internalError(w, s.log.Error, "media.get_blob", err)
			return
		}
		bodies = append(bodies, body)
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Cache-Control", "max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	for _, body := range bodies {
		if _, err := io.Copy(w, body); err != nil {
			s.log.Warn("media response truncated mid-stream", "error", err)
			return
		}
	}
}
