// Package transcoder implements the fragment/segment cutter described in
// SPEC_FULL.md §5 Transcoder Worker: one instance handles one
// (connection_id, rendition) pair, consuming a transmux.MediaSegment stream
// and producing CMAF parts, segments, and a rendition manifest.
package transcoder

import "encoding/json"

// Part is a bounded, addressable unit inside a Segment.
type Part struct {
	Idx         int   `json:"idx"`
	DurationMS  int64 `json:"duration_ms"`
	Independent bool  `json:"independent"`
}

// Segment is an ordered list of parts.
type Segment struct {
	Idx           int    `json:"idx"`
	Discontinuity bool   `json:"discontinuity"`
	Ready         bool   `json:"ready"`
	TimestampMS   int64  `json:"timestamp_ms"`
	Parts         []Part `json:"parts"`
}

// Info is the progress cursor a manifest (or peer's other_info snapshot)
// carries, used by the edge server to drive LL-HLS blocking reload and
// rendition reports.
type Info struct {
	NextSegmentIdx     int `json:"next_segment_idx"`
	NextPartIdx        int `json:"next_part_idx"`
	NextSegmentPartIdx int `json:"next_segment_part_idx"`
}

// RenditionManifest is the single source of truth the edge server consults
// for one (organization, room, connection, rendition). It is re-serialized
// to the Metadata Store on every mutation worth publishing.
type RenditionManifest struct {
	Timescale             uint32          `json:"timescale"`
	Segments              []Segment       `json:"segments"`
	Completed             bool            `json:"completed"`
	Info                  Info            `json:"info"`
	OtherInfo             map[string]Info `json:"other_info,omitempty"`
	RecordingID           string          `json:"recording_id,omitempty"`
	TotalDurationMS       int64           `json:"total_duration_ms"`
	DiscontinuitySequence int             `json:"discontinuity_sequence"`
}

// Marshal serializes the manifest for storage in the Metadata Store.
func (m *RenditionManifest) Marshal() ([]byte, error) { return json.Marshal(m) }

// UnmarshalManifest deserializes a manifest previously written by Marshal;
// used both by a resuming worker (takeover) and by peers watching for
// cross-rendition other_info.
func UnmarshalManifest(data []byte) (*RenditionManifest, error) {
	m := &RenditionManifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}

// RenditionDescriptor names one rendition the edge server should offer in
// the room master playlist.
type RenditionDescriptor struct {
	Name  string `json:"name"` // e.g. "1080p", "audio"
	Audio bool   `json:"audio"`
	// Bandwidth is the nominal bitrate advertised on the corresponding
	// #EXT-X-STREAM-INF line.
	Bandwidth int `json:"bandwidth,omitempty"`
}

// LiveManifest is the per-connection manifest at key
// "manifest.<org>.<room>.<conn>" (spec.md §6): the set of renditions a
// publish produced and the current screenshot index, so the edge server
// doesn't need to enumerate rendition keys itself.
type LiveManifest struct {
	Renditions    []RenditionDescriptor `json:"renditions"`
	ScreenshotIdx int                   `json:"screenshot_idx"`
}

// Marshal serializes the manifest for storage in the Metadata Store.
func (m *LiveManifest) Marshal() ([]byte, error) { return json.Marshal(m) }

// UnmarshalLiveManifest deserializes a LiveManifest previously written by Marshal.
func UnmarshalLiveManifest(data []byte) (*LiveManifest, error) {
	m := &LiveManifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordingSegment maps one ready segment idx to its durable, publicly
// addressable URL (spec.md §4 Additions: RecordingRenditionRecord).
type RecordingSegment struct {
	Idx int    `json:"idx"`
	URL string `json:"url"`
}

// RecordingRenditionRecord backs the DVR (`_SCUFFLE_DVR`) feature of
// spec.md §4.7: it is consulted instead of the live manifest once a
// publish has finalized into a recording, so the edge server can serve
// archived segments from object storage rather than live parts.
type RecordingRenditionRecord struct {
	OrganizationID string             `json:"organization_id"`
	RoomID         string             `json:"room_id"`
	RecordingID    string             `json:"recording_id"`
	Rendition      string             `json:"rendition"`
	PublicURL      string             `json:"public_url"`
	Segments       []RecordingSegment `json:"segments"`
}

// Marshal serializes the record for storage in the Metadata Store.
func (r *RecordingRenditionRecord) Marshal() ([]byte, error) { return json.Marshal(r) }

// UnmarshalRecordingRenditionRecord deserializes a record previously
// written by Marshal.
func UnmarshalRecordingRenditionRecord(data []byte) (*RecordingRenditionRecord, error) {
	r := &RecordingRenditionRecord{}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, err
	}
	return r, nil
}
