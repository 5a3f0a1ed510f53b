package edge

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bitriver/edge/internal/transcoder"
)

func newRequestWithQuery(t *testing.T, rawQuery string) *http.Request {
	t.Helper()
	u := &url.URL{Path: "/x", RawQuery: rawQuery}
	return &http.Request{URL: u}
}

func TestParseLLHLSRequest_MSNAndPart(t *testing.T) {
	req, ok := parseLLHLSRequest(newRequestWithQuery(t, "_HLS_msn=5&_HLS_part=2"))
	require.True(t, ok)
	require.True(t, req.hasMSN)
	require.Equal(t, 5, req.msn)
	require.Equal(t, 2, req.part)
}

func TestParseLLHLSRequest_ScuffleAndHLSPartConflict(t *testing.T) {
	_, ok := parseLLHLSRequest(newRequestWithQuery(t, "_HLS_part=2&_SCUFFLE_PART=3"))
	require.False(t, ok)
}

func TestParseLLHLSRequest_Skip(t *testing.T) {
	req, ok := parseLLHLSRequest(newRequestWithQuery(t, "_SCUFFLE_DVR=true&_HLS_skip=YES"))
	require.True(t, ok)
	require.True(t, req.skip)
	require.True(t, req.scuffleDVR)
}

func TestParseLLHLSRequest_MalformedMSN(t *testing.T) {
	_, ok := parseLLHLSRequest(newRequestWithQuery(t, "_HLS_msn=notanumber"))
	require.False(t, ok)
}

func TestLLHLSRequest_SatisfiedByMSN(t *testing.T) {
	req := llhlsRequest{hasMSN: true, msn: 5, part: 2}
	require.False(t, req.satisfiedBy(&transcoder.RenditionManifest{
		Info: transcoder.Info{NextSegmentIdx: 5, NextSegmentPartIdx: 1},
	}))
	require.True(t, req.satisfiedBy(&transcoder.RenditionManifest{
		Info: transcoder.Info{NextSegmentIdx: 5, NextSegmentPartIdx: 2},
	}))
	require.True(t, req.satisfiedBy(&transcoder.RenditionManifest{
		Info: transcoder.Info{NextSegmentIdx: 6, NextSegmentPartIdx: 0},
	}))
}

func TestLLHLSRequest_SatisfiedByScuffle(t *testing.T) {
	req := llhlsRequest{hasScuffle: true, scufflePart: 10}
	require.False(t, req.satisfiedBy(&transcoder.RenditionManifest{Info: transcoder.Info{NextPartIdx: 10}}))
	require.True(t, req.satisfiedBy(&transcoder.RenditionManifest{Info: transcoder.Info{NextPartIdx: 11}}))
}

func TestLLHLSRequest_SatisfiedByNoParamsAlwaysTrue(t *testing.T) {
	req := llhlsRequest{}
	require.True(t, req.satisfiedBy(&transcoder.RenditionManifest{}))
}

func TestPartGlobalIdx(t *testing.T) {
	m := &transcoder.RenditionManifest{
		Segments: []transcoder.Segment{
			{Idx: 0, Parts: []transcoder.Part{{Idx: 0}, {Idx: 1}}},
			{Idx: 1, Parts: []transcoder.Part{{Idx: 0}, {Idx: 1}}},
		},
	}
	require.Equal(t, 0, partGlobalIdx(m, m.Segments[0], m.Segments[0].Parts[0]))
	require.Equal(t, 1, partGlobalIdx(m, m.Segments[0], m.Segments[0].Parts[1]))
	require.Equal(t, 2, partGlobalIdx(m, m.Segments[1], m.Segments[1].Parts[0]))
	require.Equal(t, 3, partGlobalIdx(m, m.Segments[1], m.Segments[1].Parts[1]))
}
