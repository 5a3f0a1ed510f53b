package transcoder

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"

	coreerrors "github.com/bitriver/edge/internal/errors"
	"github.com/bitriver/edge/internal/logger"
	"github.com/bitriver/edge/internal/transmux"
)

// Part/segment cutting targets (spec.md §4.3).
const (
	partTargetMS    = 250
	partMaxMS       = 500
	segmentTargetMS = 2000
)

const trackID = 1

// BlobStore is the narrow subset of internal/blobstore.Store the cutter
// needs: content-addressed writes for init and part blobs.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
}

// MetadataStore is the narrow subset of internal/metadata.Store the cutter
// needs: last-writer-wins publication of the rendition manifest.
type MetadataStore interface {
	Put(ctx context.Context, key string, data []byte) error
}

// Cutter handles one (connection_id, rendition): it accumulates a
// transmux.MediaSegment stream into CMAF parts and segments, writing part
// blobs and republishing the rendition manifest on every mutation worth
// publishing, per spec.md §4.3.
type Cutter struct {
	keys      Keys
	kind      transmux.FragmentKind
	timescale uint32
	blobs     BlobStore
	meta      MetadataStore
	log       *slog.Logger

	manifest *RenditionManifest

	pending           *fmp4.Sample
	pendingTS         uint32
	haveFirst         bool
	baseTime          uint64
	seqNumber         uint32
	samples           []*fmp4.Sample
	partAccMS         int64
	segAccMS          int64
	partIsIndependent bool

	pendingDiscontinuity bool
}

// NewCutter creates a Cutter for one rendition. resume, if non-nil, is a
// previously-published manifest to continue from (takeover): the next
// keyframe forces a new segment with discontinuity=true per spec.md §4.3.
func NewCutter(keys Keys, kind transmux.FragmentKind, timescale uint32, blobs BlobStore, meta MetadataStore, resume *RenditionManifest) *Cutter {
	m := resume
	if m == nil {
		m = &RenditionManifest{Timescale: timescale, OtherInfo: map[string]Info{}}
	}
	return &Cutter{
		keys:                 keys,
		kind:                 kind,
		timescale:            timescale,
		blobs:                blobs,
		meta:                 meta,
		log:                  logger.Logger().With("component", "transcoder.cutter", "rendition", keys.Rendition),
		manifest:             m,
		seqNumber:            1,
		pendingDiscontinuity: resume != nil,
	}
}

// PutInit persists the init segment blob; called once before any Push.
func (c *Cutter) PutInit(ctx context.Context, data []byte) error {
	if err := c.blobs.Put(ctx, c.keys.InitKey(), data); err != nil {
		return coreerrors.NewInfraError("transcoder.put_init", err, false)
	}
	return nil
}

// Push consumes one MediaSegment of this cutter's track kind. It buffers the
// sample until the next one arrives (so the sample's duration can be
// computed), cutting parts and segments as the accumulated duration crosses
// the configured targets.
func (c *Cutter) Push(ctx context.Context, seg transmux.MediaSegment) error {
	if seg.Kind != c.kind {
		return coreerrors.NewInfraError("transcoder.push", fmt.Errorf("cutter for %s received %s segment", c.kind, seg.Kind), false)
	}

	sample, err := c.buildSample(seg)
	if err != nil {
		return coreerrors.NewProtocolError("transcoder.mux", err)
	}

	if !c.haveFirst {
		c.haveFirst = true
		c.pending = sample
		c.pendingTS = seg.Timestamp
		return nil
	}

	durMS := int64(seg.Timestamp) - int64(c.pendingTS)
	if durMS < 0 {
		durMS = 0
	}
	c.pending.Duration = durationTicks(durMS, c.timescale)
	if err := c.appendPending(ctx, seg.Keyframe); err != nil {
		return err
	}

	c.pending = sample
	c.pendingTS = seg.Timestamp
	return nil
}

// Flush closes any open part/segment at end-of-stream and marks the
// manifest completed.
func (c *Cutter) Flush(ctx context.Context) error {
	if c.pending != nil {
		c.pending.Duration = durationTicks(0, c.timescale)
		if err := c.appendPending(ctx, false); err != nil {
			return err
		}
		c.pending = nil
	}
	if err := c.closePart(ctx); err != nil {
		return err
	}
	if err := c.closeSegment(ctx, false); err != nil {
		return err
	}
	c.manifest.Completed = true
	return c.publishManifest(ctx)
}

func (c *Cutter) buildSample(seg transmux.MediaSegment) (*fmp4.Sample, error) {
	if c.kind == transmux.FragmentVideo {
		s := &fmp4.Sample{IsNonSyncSample: !seg.Keyframe}
		nalus, err := transmux.SplitAccessUnit(seg.Payload)
		if err != nil {
			return nil, err
		}
		if err := s.FillH264(0, nalus); err != nil {
			return nil, fmt.Errorf("fill h264 sample: %w", err)
		}
		return s, nil
	}
	return &fmp4.Sample{Payload: seg.Payload}, nil
}

// appendPending adds c.pending to the open part's sample buffer and applies
// the cut rules. nextKeyframe reports whether the sample that triggered this
// append (the one now becoming "next pending") is itself a keyframe,
// i.e. whether the upcoming sample is a legal segment cut point.
func (c *Cutter) appendPending(ctx context.Context, nextKeyframe bool) error {
	// After a resume, the first keyframe (any sample, for audio) closes the
	// segment left open so the discontinuity starts a fresh segment.
	if c.pendingDiscontinuity && !c.pending.IsNonSyncSample {
		if err := c.closePart(ctx); err != nil {
			return err
		}
		if err := c.closeSegment(ctx, true); err != nil {
			return err
		}
	}
	if len(c.samples) == 0 {
		c.partIsIndependent = c.kind == transmux.FragmentAudio || !c.pending.IsNonSyncSample
	}
	c.samples = append(c.samples, c.pending)
	c.partAccMS += int64(c.pending.Duration) * 1000 / int64(c.timescale)

	// A keyframe always closes the current part early so the next part can
	// start independent (spec.md §4.3 tie-breaks); otherwise cut at the
	// soft target or hard max, whichever comes first.
	videoKeyframeBoundary := nextKeyframe && c.kind == transmux.FragmentVideo
	if c.partAccMS >= partMaxMS || c.partAccMS >= partTargetMS || videoKeyframeBoundary {
		if err := c.closePart(ctx); err != nil {
			return err
		}
	}

	if nextKeyframe && c.kind == transmux.FragmentVideo && c.segAccMS >= segmentTargetMS {
		if err := c.closeSegment(ctx, true); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cutter) closePart(ctx context.Context) error {
	if len(c.samples) == 0 {
		return nil
	}
	part := &fmp4.Part{
		SequenceNumber: c.seqNumber,
		Tracks: []*fmp4.PartTrack{
			{ID: trackID, BaseTime: c.baseTime, Samples: c.samples},
		},
	}
	var buf bytes.Buffer
	if err := part.Marshal(&seekBuf{Buffer: &buf}); err != nil {
		return coreerrors.NewProtocolError("transcoder.mux", fmt.Errorf("marshal part: %w", err))
	}

	idx := c.manifest.Info.NextPartIdx
	if err := c.blobs.Put(ctx, c.keys.PartKey(idx), buf.Bytes()); err != nil {
		return coreerrors.NewInfraError("transcoder.put_part", err, false)
	}

	for _, s := range c.samples {
		c.baseTime += uint64(s.Duration)
	}
	c.segAccMS += c.partAccMS

	open := c.openSegment()
	open.Parts = append(open.Parts, Part{Idx: idx, DurationMS: c.partAccMS, Independent: c.partIsIndependent})
	c.manifest.Info.NextPartIdx++
	c.manifest.Info.NextSegmentPartIdx = len(open.Parts)
	c.manifest.TotalDurationMS += c.partAccMS

	c.samples = nil
	c.partAccMS = 0
	c.partIsIndependent = false
	c.seqNumber++
	return c.publishManifest(ctx)
}

// openSegment returns the in-progress (not-yet-ready) segment, creating one
// if none is open.
func (c *Cutter) openSegment() *Segment {
	n := len(c.manifest.Segments)
	if n > 0 && !c.manifest.Segments[n-1].Ready {
		return &c.manifest.Segments[n-1]
	}
	seg := Segment{
		Idx:           c.manifest.Info.NextSegmentIdx,
		Discontinuity: c.pendingDiscontinuity,
	}
	if c.pendingDiscontinuity {
		c.manifest.DiscontinuitySequence++
		c.pendingDiscontinuity = false
	}
	c.manifest.Segments = append(c.manifest.Segments, seg)
	c.manifest.Info.NextSegmentPartIdx = 0
	return &c.manifest.Segments[len(c.manifest.Segments)-1]
}

func (c *Cutter) closeSegment(ctx context.Context, expectMore bool) error {
	n := len(c.manifest.Segments)
	if n == 0 || c.manifest.Segments[n-1].Ready {
		return nil
	}
	c.manifest.Segments[n-1].Ready = true
	c.manifest.Info.NextSegmentIdx++
	c.manifest.Info.NextSegmentPartIdx = 0
	c.segAccMS = 0
	if expectMore {
		return c.publishManifest(ctx)
	}
	return nil
}

func (c *Cutter) publishManifest(ctx context.Context) error {
	data, err := c.manifest.Marshal()
	if err != nil {
		return coreerrors.NewInfraError("transcoder.marshal_manifest", err, false)
	}
	if err := c.meta.Put(ctx, c.keys.ManifestKey(), data); err != nil {
		return coreerrors.NewInfraError("transcoder.put_manifest", err, true)
	}
	return nil
}

// Manifest returns the current manifest snapshot (for tests and for the
// cross-rendition watch loop to serve other_info to peers).
func (c *Cutter) Manifest() *RenditionManifest { return c.manifest }

func durationTicks(ms int64, timescale uint32) uint32 {
	return uint32(ms * int64(timescale) / 1000)
}

// seekBuf adapts *bytes.Buffer to io.WriteSeeker for fmp4 marshaling.
type seekBuf struct {
	*bytes.Buffer
	pos int64
}

func (s *seekBuf) Write(p []byte) (int, error) {
	if int(s.pos) > s.Buffer.Len() {
		s.Buffer.Write(make([]byte, int(s.pos)-s.Buffer.Len()))
	}
	if int(s.pos) == s.Buffer.Len() {
		n, err := s.Buffer.Write(p)
		s.pos += int64(n)
		return n, err
	}
	b := s.Buffer.Bytes()
	n := copy(b[s.pos:], p)
	if n < len(p) {
		m, err := s.Buffer.Write(p[n:])
		if err != nil {
			return n, err
		}
		n += m
	}
	s.pos += int64(n)
	return n, nil
}

func (s *seekBuf) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case 0:
		newPos = offset
	case 1:
		newPos = s.pos + offset
	case 2:
		newPos = int64(s.Buffer.Len()) + offset
	default:
		return 0, fmt.Errorf("transcoder: invalid seek whence %d", whence)
	}
	if newPos < 0 {
		return 0, fmt.Errorf("transcoder: negative seek position")
	}
	s.pos = newPos
	return newPos, nil
}
