package edge

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bitriver/edge/internal/edge/signing"
	"github.com/bitriver/edge/internal/transcoder"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return &Server{
		deps: Deps{Signer: signing.NewSigner([]byte("test-secret"))},
		log:  slog.Default(),
	}
}

func TestRenderLivePlaylist_ReadySegmentsAndPreloadHints(t *testing.T) {
	s := newTestServer(t)
	m := &transcoder.RenditionManifest{
		Segments: []transcoder.Segment{
			{
				Idx:   0,
				Ready: true,
				Parts: []transcoder.Part{
					{Idx: 0, DurationMS: 500, Independent: true},
					{Idx: 1, DurationMS: 500},
				},
			},
			{
				Idx:   1,
				Ready: false,
				Parts: []transcoder.Part{
					{Idx: 0, DurationMS: 500, Independent: true},
				},
			},
		},
		Info: transcoder.Info{NextSegmentIdx: 1, NextPartIdx: 3},
	}

	out := s.renderLivePlaylist("org1", "room1", "conn1", "sess1", "1080p", m)
	require.True(t, strings.HasPrefix(out, "#EXTM3U\n"))
	require.Contains(t, out, "#EXT-X-MAP:URI=")
	require.Contains(t, out, "#EXTINF:")
	require.Contains(t, out, "#EXT-X-PART:DURATION=")
	require.Contains(t, out, "INDEPENDENT=YES")
	require.Contains(t, out, "#EXT-X-PRELOAD-HINT:TYPE=PART")
	require.NotContains(t, out, "#EXT-X-ENDLIST")
}

func TestRenderLivePlaylist_CompletedEmitsEndlist(t *testing.T) {
	s := newTestServer(t)
	m := &transcoder.RenditionManifest{Completed: true}
	out := s.renderLivePlaylist("org1", "room1", "conn1", "sess1", "1080p", m)
	require.Contains(t, out, "#EXT-X-ENDLIST")
}

func TestRenderLivePlaylist_RenditionReportsSkipSelf(t *testing.T) {
	s := newTestServer(t)
	m := &transcoder.RenditionManifest{
		OtherInfo: map[string]transcoder.Info{
			"1080p": {NextSegmentIdx: 3},
			"720p":  {NextSegmentIdx: 4},
		},
	}
	out := s.renderLivePlaylist("org1", "room1", "conn1", "sess1", "1080p", m)
	require.NotContains(t, out, `URI="/org1/room1/sess1/1080p.m3u8"`)
	require.Contains(t, out, `URI="/org1/room1/sess1/720p.m3u8"`)
}

func TestRenderDVRPlaylist_SkipAndArchivedURIs(t *testing.T) {
	s := newTestServer(t)
	m := &transcoder.RenditionManifest{
		Segments: []transcoder.Segment{
			{Idx: 4, Ready: true, TimestampMS: 8000},
			{Idx: 5, Ready: true, TimestampMS: 10000},
		},
	}
	rec := &transcoder.RecordingRenditionRecord{
		RecordingID: "rec1",
		PublicURL:   "https://cdn.example/archive",
		Segments:    []transcoder.RecordingSegment{{Idx: 4, URL: "seg4"}, {Idx: 5, URL: "seg5"}},
	}
	out := s.renderDVRPlaylist("org1", "room1", "conn1", "1080p", m, rec, llhlsRequest{skip: true})
	require.Contains(t, out, "#EXT-X-SKIP:SKIPPED-SEGMENTS=4")
	require.Contains(t, out, `#EXT-X-SCUFFLE-DVR:URI="https://cdn.example/archive/org1/rec1/1080p/4.mp4"`)
	require.Contains(t, out, `#EXT-X-SCUFFLE-DVR:URI="https://cdn.example/archive/org1/rec1/1080p/5.mp4"`)
}
