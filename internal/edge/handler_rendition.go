package edge

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bitriver/edge/internal/transcoder"
)

// llhlsRequest is the parsed set of LL-HLS/DVR query parameters spec.md
// §4.7 names for the rendition playlist.
type llhlsRequest struct {
	msn         int
	part        int
	hasMSN      bool
	skip        bool
	scufflePart int
	hasScuffle  bool
	scuffleDVR  bool
}

func parseLLHLSRequest(r *http.Request) (llhlsRequest, bool) {
	q := r.URL.Query()
	var req llhlsRequest
	if v := q.Get("_HLS_msn"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return llhlsRequest{}, false
		}
		req.msn = n
		req.hasMSN = true
	}
	hasHLSPart := false
	if v := q.Get("_HLS_part"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return llhlsRequest{}, false
		}
		req.part = n
		hasHLSPart = true
	}
	if v := q.Get("_SCUFFLE_PART"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return llhlsRequest{}, false
		}
		req.scufflePart = n
		req.hasScuffle = true
	}
	// spec.md §9 Open Question (c): both supplied at once is defined to
	// return 400, no fallback.
	if hasHLSPart && req.hasScuffle {
		return llhlsRequest{}, false
	}
	req.skip = q.Get("_HLS_skip") == "YES"
	req.scuffleDVR = q.Get("_SCUFFLE_DVR") == "true" || q.Get("_SCUFFLE_DVR") == "YES"
	return req, true
}

// satisfiedBy reports whether m already carries the (msn,part) or
// scuffle-part position the request targets.
func (req llhlsRequest) satisfiedBy(m *transcoder.RenditionManifest) bool {
	if req.hasScuffle {
		return m.Info.NextPartIdx > req.scufflePart
	}
	if req.hasMSN {
		if m.Info.NextSegmentIdx > req.msn {
			return true
		}
		if m.Info.NextSegmentIdx == req.msn && m.Info.NextSegmentPartIdx >= req.part {
			return true
		}
		return false
	}
	return true
}

// handleRenditionPlaylist implements GET
// /{org}/{room}/{session}/{rendition}.m3u8 (spec.md §4.7 Rendition
// playlist): refreshes the session, resolves LL-HLS blocking reload, and
// renders the manifest window.
func (s *Server) handleRenditionPlaylist(w http.ResponseWriter, r *http.Request) {
	org := chi.URLParam(r, "org")
	room := chi.URLParam(r, "room")
	rendition := chi.URLParam(r, "rendition")
	sessionToken := chi.URLParam(r, "session")
	ctx := r.Context()

	sess, err := s.deps.Signer.VerifySession(sessionToken)
	if err != nil || sess.OrganizationID != org || sess.RoomID != room {
		badRequest(w, "expired or not found")
		return
	}
	ok, err := s.deps.Rooms.ExtendPlaybackSession(ctx, sess.SessionID, time.Now())
	if err != nil {
		internalError(w, s.log.Error, "rendition.extend_session", err)
		return
	}
	if !ok {
		badRequest(w, "expired or not found")
		return
	}

	req, ok := parseLLHLSRequest(r)
	if !ok {
		badRequest(w, "invalid LL-HLS query parameters")
		return
	}

	keys := transcoder.Keys{Org: org, Room: room, Connection: sess.ConnectionID, Rendition: rendition}
	manifest, err := s.awaitRenditionManifest(ctx, keys.ManifestKey(), req)
	if err != nil {
		badRequest(w, "timed out waiting for requested segment")
		return
	}

	if req.scuffleDVR && manifest.RecordingID != "" {
		rec, err := s.loadRecordingRecord(ctx, org, room, manifest.RecordingID, rendition)
		if err == nil && rec != nil {
			writePlaylist(w, s.renderDVRPlaylist(org, room, sess.ConnectionID, rendition, manifest, rec, req))
			return
		}
	}

	writePlaylist(w, s.renderLivePlaylist(org, room, sess.ConnectionID, sessionToken, rendition, manifest))
}

// awaitRenditionManifest implements the "read once; if not satisfied,
// subscribe and recheck on each update" blocking-reload pattern of
// spec.md §9 Design Notes, capped at blockingReloadCap.
func (s *Server) awaitRenditionManifest(ctx context.Context, key string, req llhlsRequest) (*transcoder.RenditionManifest, error) {
	data, found, err := s.deps.Metadata.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var manifest *transcoder.RenditionManifest
	if found {
		manifest, err = transcoder.UnmarshalManifest(data)
		if err != nil {
			return nil, err
		}
		if manifest.Completed || req.satisfiedBy(manifest) {
			return manifest, nil
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, blockingReloadCap)
	defer cancel()
	updates, err := s.deps.Metadata.Watch(waitCtx, key)
	if err != nil {
		return nil, err
	}
	for {
		select {
		case <-waitCtx.Done():
			return nil, waitCtx.Err()
		case data, ok := <-updates:
			if !ok {
				return nil, context.DeadlineExceeded
			}
			manifest, err = transcoder.UnmarshalManifest(data)
			if err != nil {
				return nil, err
			}
			if manifest.Completed || req.satisfiedBy(manifest) {
				return manifest, nil
			}
		}
	}
}

func (s *Server) loadRecordingRecord(ctx context.Context, org, room, recordingID, rendition string) (*transcoder.RecordingRenditionRecord, error) {
	data, found, err := s.deps.Metadata.Get(ctx, transcoder.RecordingKey(org, room, recordingID, rendition))
	if err != nil || !found {
		return nil, err
	}
	return transcoder.UnmarshalRecordingRenditionRecord(data)
}

// renderLivePlaylist builds the LL-HLS window: init map, ready parts per
// open segment, closed segment lines, preload hints, and peer rendition
// reports, per spec.md §4.7.
func (s *Server) renderLivePlaylist(org, room, connectionID, sessionToken, rendition string, m *transcoder.RenditionManifest) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:9\n")
	b.WriteString("#EXT-X-TARGETDURATION:2\n")
	b.WriteString("#EXT-X-PART-INF:PART-TARGET=0.5\n")
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	if m.DiscontinuitySequence != 0 {
		b.WriteString("#EXT-X-DISCONTINUITY-SEQUENCE:")
		b.WriteString(strconv.Itoa(m.DiscontinuitySequence))
		b.WriteString("\n")
	}

	initURL, err := s.mediaURL(org, room, connectionID, rendition, nil)
	if err == nil {
		b.WriteString(`#EXT-X-MAP:URI="` + initURL + "\"\n")
	}

	for _, seg := range m.Segments {
		if seg.Discontinuity {
			b.WriteString("#EXT-X-DISCONTINUITY\n")
		}
		if !seg.Ready {
			for _, p := range seg.Parts {
				partURL, err := s.mediaURL(org, room, connectionID, rendition, []int{partGlobalIdx(m, seg, p)})
				if err != nil {
					continue
				}
				b.WriteString("#EXT-X-PART:DURATION=")
				b.WriteString(strconv.FormatFloat(float64(p.DurationMS)/1000, 'f', 3, 64))
				b.WriteString(`,URI="` + partURL + `"`)
				if p.Independent {
					b.WriteString(",INDEPENDENT=YES")
				}
				b.WriteString("\n")
			}
			continue
		}
		idx := make([]int, 0, len(seg.Parts))
		for _, p := range seg.Parts {
			idx = append(idx, partGlobalIdx(m, seg, p))
		}
		segURL, err := s.mediaURL(org, room, connectionID, rendition, idx)
		if err != nil {
			continue
		}
		b.WriteString("#EXTINF:")
		b.WriteString(strconv.FormatFloat(float64(seg.TimestampMS)/1000, 'f', 3, 64))
		b.WriteString(",\n")
		b.WriteString(segURL)
		b.WriteString("\n")
	}

	nextPart := m.Info.NextPartIdx
	for i := 0; i < 5; i++ {
		hintIdx := nextPart + i
		hintURL, err := s.mediaURL(org, room, connectionID, rendition, []int{hintIdx})
		if err != nil {
			continue
		}
		b.WriteString(`#EXT-X-PRELOAD-HINT:TYPE=PART,URI="` + hintURL + "\"\n")
	}

	for other, info := range m.OtherInfo {
		if other == rendition {
			continue
		}
		b.WriteString(`#EXT-X-RENDITION-REPORT:URI="` + renditionReportURL(org, room, sessionToken, other) +
			`",LAST-MSN=` + strconv.Itoa(info.NextSegmentIdx) +
			`,LAST-PART=` + strconv.Itoa(info.NextSegmentPartIdx) + "\n")
	}

	if m.Completed {
		b.WriteString("#EXT-X-ENDLIST\n")
	}
	return b.String()
}

// partGlobalIdx derives a part's flat global index from its position
// within the manifest, matching the monotonically increasing idx space
// the media claim addresses parts by.
func partGlobalIdx(m *transcoder.RenditionManifest, seg transcoder.Segment, p transcoder.Part) int {
	base := 0
	for _, s := range m.Segments {
		if s.Idx == seg.Idx {
			break
		}
		base += len(s.Parts)
	}
	return base + p.Idx
}

// renditionReportURL builds the URI an EXT-X-RENDITION-REPORT tag points
// clients at: the same session's rendition playlist route (routes.go),
// addressing a sibling rendition under the still-valid session token.
func renditionReportURL(org, room, sessionToken, rendition string) string {
	return "/" + org + "/" + room + "/" + sessionToken + "/" + rendition + ".m3u8"
}

// renderDVRPlaylist substitutes archived segments addressed by the
// recording's public URL for the live window, per spec.md Scenario 5.
func (s *Server) renderDVRPlaylist(org, room, connectionID, rendition string, m *transcoder.RenditionManifest, rec *transcoder.RecordingRenditionRecord, req llhlsRequest) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:9\n#EXT-X-TARGETDURATION:2\n#EXT-X-MEDIA-SEQUENCE:0\n")

	if req.skip && len(rec.Segments) > 0 {
		b.WriteString("#EXT-X-SKIP:SKIPPED-SEGMENTS=")
		b.WriteString(strconv.Itoa(rec.Segments[0].Idx))
		b.WriteString("\n")
	}

	for _, seg := range m.Segments {
		if !seg.Ready {
			continue
		}
		b.WriteString("#EXTINF:")
		b.WriteString(strconv.FormatFloat(float64(seg.TimestampMS)/1000, 'f', 3, 64))
		b.WriteString(",\n")
		b.WriteString(`#EXT-X-SCUFFLE-DVR:URI="` + rec.PublicURL + "/" + org + "/" + rec.RecordingID + "/" +
			rendition + "/" + strconv.Itoa(seg.Idx) + ".mp4\"\n")
	}

	if m.Completed {
		b.WriteString("#EXT-X-ENDLIST\n")
	}
	return b.String()
}
