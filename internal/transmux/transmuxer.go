package transmux

import (
	"bytes"
	"fmt"
	"io"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"

	coreerrors "github.com/bitriver/edge/internal/errors"
	"github.com/bitriver/edge/internal/rtmp/media"
)

const (
	videoTrackID = 1
	audioTrackID = 2

	// videoTimescale is fixed at the conventional 90kHz clock; RTMP
	// timestamps (milliseconds) are rescaled against it when the
	// transcoder worker cuts parts.
	videoTimescale = 90000
)

// Transmuxer consumes one publisher's demuxed RTMP audio/video tags and
// produces an InitSegment followed by a MediaSegment stream, per
// SPEC_FULL.md §5 Transmuxer. It is driven from the single goroutine that
// owns an ingest connection and keeps no internal locking.
type Transmuxer struct {
	videoSPS, videoPPS []byte
	audioConfig        []byte
	audioSampleRate    int
	audioChannels      int

	initReady bool
}

// New creates an empty Transmuxer; it produces no output until both a video
// and an audio sequence header have been observed (spec.md §3: InitSegment
// requires both video_settings and audio_settings).
func New() *Transmuxer {
	return &Transmuxer{}
}

// PushVideo consumes one RTMP video message payload (message type 9) and
// timestamp. It returns the decoded MediaSegment (ok=true) once the
// Transmuxer is initialized; sequence-header packets never produce a
// MediaSegment (ok=false, err=nil). init is non-nil exactly once: the first
// call after both video and audio settings have been observed.
func (t *Transmuxer) PushVideo(timestamp uint32, payload []byte) (seg MediaSegment, init *InitSegment, ok bool, err error) {
	vm, err := media.ParseVideoMessage(payload)
	if err != nil {
		return MediaSegment{}, nil, false, coreerrors.NewProtocolError("transmux.video", err)
	}
	if vm.Codec != media.VideoCodecAVC {
		return MediaSegment{}, nil, false, coreerrors.NewProtocolError("transmux.video", fmt.Errorf("unsupported video codec %s", vm.Codec))
	}

	if vm.PacketType == media.AVCPacketTypeSequenceHeader {
		sps, pps, perr := parseAVCDecoderConfigurationRecord(vm.Payload)
		if perr != nil {
			return MediaSegment{}, nil, false, coreerrors.NewProtocolError("transmux.video", perr)
		}
		t.videoSPS, t.videoPPS = sps, pps
		init, ierr := t.maybeInit()
		if ierr != nil {
			return MediaSegment{}, nil, false, ierr
		}
		return MediaSegment{}, init, false, nil
	}

	nalus, serr := splitAVCCAccessUnit(vm.Payload)
	if serr != nil {
		return MediaSegment{}, nil, false, coreerrors.NewProtocolError("transmux.video", serr)
	}
	seg = MediaSegment{
		Kind:      FragmentVideo,
		Timestamp: timestamp,
		Keyframe:  vm.FrameType == media.VideoFrameTypeKey,
		Payload:   reencodeAVCC(nalus),
	}
	return seg, nil, t.initReady, nil
}

// PushAudio consumes one RTMP audio message payload (message type 8). Like
// PushVideo, sequence-header packets never produce a MediaSegment but may
// trigger the one-time InitSegment emission.
func (t *Transmuxer) PushAudio(timestamp uint32, payload []byte) (seg MediaSegment, init *InitSegment, ok bool, err error) {
	am, err := media.ParseAudioMessage(payload)
	if err != nil {
		return MediaSegment{}, nil, false, coreerrors.NewProtocolError("transmux.audio", err)
	}
	if am.Codec != media.AudioCodecAAC {
		return MediaSegment{}, nil, false, coreerrors.NewProtocolError("transmux.audio", fmt.Errorf("unsupported audio codec %s", am.Codec))
	}

	if am.PacketType == media.AACPacketTypeSequenceHeader {
		var cfg mpeg4audio.AudioSpecificConfig
		if err := cfg.Unmarshal(am.Payload); err != nil {
			return MediaSegment{}, nil, false, coreerrors.NewProtocolError("transmux.audio", fmt.Errorf("invalid AudioSpecificConfig: %w", err))
		}
		t.audioConfig = append([]byte(nil), am.Payload...)
		t.audioSampleRate = cfg.SampleRate
		t.audioChannels = cfg.ChannelCount
		init, ierr := t.maybeInit()
		if ierr != nil {
			return MediaSegment{}, nil, false, ierr
		}
		return MediaSegment{}, init, false, nil
	}

	seg = MediaSegment{
		Kind:      FragmentAudio,
		Timestamp: timestamp,
		Payload:   append([]byte(nil), am.Payload...),
	}
	return seg, nil, t.initReady, nil
}

// maybeInit builds and returns the InitSegment the first time both video and
// audio settings are available; subsequent calls return (nil, nil).
func (t *Transmuxer) maybeInit() (*InitSegment, error) {
	if t.initReady || t.videoSPS == nil || t.videoPPS == nil || t.audioConfig == nil {
		return nil, nil
	}

	var cfg mpeg4audio.AudioSpecificConfig
	if err := cfg.Unmarshal(t.audioConfig); err != nil {
		return nil, coreerrors.NewProtocolError("transmux.init", fmt.Errorf("invalid AudioSpecificConfig: %w", err))
	}

	init := &fmp4.Init{
		Tracks: []*fmp4.InitTrack{
			{
				ID:        videoTrackID,
				TimeScale: videoTimescale,
				Codec:     &mp4.CodecH264{SPS: t.videoSPS, PPS: t.videoPPS},
			},
			{
				ID:        audioTrackID,
				TimeScale: uint32(cfg.SampleRate),
				Codec:     &mp4.CodecMPEG4Audio{Config: cfg},
			},
		},
	}

	var buf bytes.Buffer
	if err := init.Marshal(&seekableBuffer{Buffer: &buf}); err != nil {
		return nil, coreerrors.NewProtocolError("transmux.init", fmt.Errorf("marshal init segment: %w", err))
	}

	t.initReady = true
	return &InitSegment{
		VideoSettings: VideoSettings{Codec: "h264", SPS: t.videoSPS, PPS: t.videoPPS},
		AudioSettings: AudioSettings{Codec: "aac", Config: t.audioConfig, SampleRate: cfg.SampleRate, Channels: cfg.ChannelCount},
		Bytes:         buf.Bytes(),
	}, nil
}

// reencodeAVCC re-joins split NALUs back into a single 4-byte-length-prefixed
// access unit, the format fmp4.Sample.FillH264 expects as input (it rebuilds
// its own internal NALU list from this encoding).
func reencodeAVCC(nalus [][]byte) []byte {
	size := 0
	for _, n := range nalus {
		size += 4 + len(n)
	}
	out := make([]byte, 0, size)
	for _, n := range nalus {
		var lenBuf [4]byte
		l := uint32(len(n))
		lenBuf[0] = byte(l >> 24)
		lenBuf[1] = byte(l >> 16)
		lenBuf[2] = byte(l >> 8)
		lenBuf[3] = byte(l)
		out = append(out, lenBuf[:]...)
		out = append(out, n...)
	}
	return out
}

// seekableBuffer adapts *bytes.Buffer to io.WriteSeeker, which the fmp4
// package requires so it can patch box sizes after writing child boxes.
type seekableBuffer struct {
	*bytes.Buffer
	pos int64
}

func (s *seekableBuffer) Write(p []byte) (int, error) {
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

func (s *seekableBuffer) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = s.pos + offset
	case io.SeekEnd:
		newPos = int64(s.Buffer.Len()) + offset
	default:
		return 0, fmt.Errorf("transmux: invalid seek whence %d", whence)
	}
	if newPos < 0 {
		return 0, fmt.Errorf("transmux: negative seek position")
	}
	s.pos = newPos
	return newPos, nil
}
