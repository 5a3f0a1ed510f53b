package transmux

import (
	"bytes"
	"testing"
)

// buildAVCSeqHeader builds a minimal AVCDecoderConfigurationRecord carrying
// one SPS and one PPS NALU.
func buildAVCSeqHeader(sps, pps []byte) []byte {
	buf := []byte{1, 0x64, 0x00, 0x1f, 0xff, 0xe1}
	buf = append(buf, byte(len(sps)>>8), byte(len(sps)))
	buf = append(buf, sps...)
	buf = append(buf, 1) // numOfPictureParameterSets
	buf = append(buf, byte(len(pps)>>8), byte(len(pps)))
	buf = append(buf, pps...)
	return buf
}

func buildAVCCAccessUnit(nalus ...[]byte) []byte {
	var out []byte
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

// aacAudioSpecificConfig builds a 2-byte AudioSpecificConfig for AAC-LC,
// 48kHz stereo: 5 bits object type, 4 bits sample rate index, 4 bits channel
// config, 3 bits padding.
func aacAudioSpecificConfig() []byte {
	// objectType=2 (AAC LC), sampleRateIndex=3 (48000), channelConfig=2 (stereo)
	b0 := byte(2<<3) | byte(3>>1)
	b1 := byte((3&1)<<7) | byte(2<<3)
	return []byte{b0, b1}
}

func TestTransmuxer_InitAfterBothSequenceHeaders(t *testing.T) {
	tm := New()

	sps := []byte{0x67, 0x64, 0x00, 0x1f, 0xac}
	pps := []byte{0x68, 0xeb, 0xe3, 0xcb}
	videoHeader := append([]byte{0x17, 0x00}, buildAVCSeqHeader(sps, pps)...)

	_, init, ok, err := tm.PushVideo(0, videoHeader)
	if err != nil {
		t.Fatalf("push video seq header: %v", err)
	}
	if ok || init != nil {
		t.Fatalf("expected no init yet, got init=%v ok=%v", init, ok)
	}

	audioHeader := append([]byte{0xAF, 0x00}, aacAudioSpecificConfig()...)
	_, init, ok, err = tm.PushAudio(0, audioHeader)
	if err != nil {
		t.Fatalf("push audio seq header: %v", err)
	}
	if !ok && init == nil {
		t.Fatalf("expected init segment once both sequence headers seen")
	}
	if init == nil {
		t.Fatalf("expected non-nil init segment")
	}
	if init.VideoSettings.Codec != "h264" || init.AudioSettings.Codec != "aac" {
		t.Fatalf("unexpected settings: %+v", init)
	}
	if !bytes.Equal(init.VideoSettings.SPS, sps) || !bytes.Equal(init.VideoSettings.PPS, pps) {
		t.Fatalf("sps/pps mismatch")
	}
	if init.AudioSettings.SampleRate != 48000 || init.AudioSettings.Channels != 2 {
		t.Fatalf("unexpected audio settings: %+v", init.AudioSettings)
	}
	if len(init.Bytes) == 0 {
		t.Fatalf("expected non-empty marshaled init bytes")
	}
	// ftyp box always starts with a 4-byte size then "ftyp".
	if !bytes.Contains(init.Bytes[:16], []byte("ftyp")) {
		t.Fatalf("expected ftyp box at start of init bytes, got % x", init.Bytes[:16])
	}
}

func TestTransmuxer_VideoSegmentAfterInit(t *testing.T) {
	tm := New()
	sps := []byte{0x67, 0x64, 0x00, 0x1f, 0xac}
	pps := []byte{0x68, 0xeb, 0xe3, 0xcb}
	_, _, _, err := tm.PushVideo(0, append([]byte{0x17, 0x00}, buildAVCSeqHeader(sps, pps)...))
	if err != nil {
		t.Fatalf("seq header: %v", err)
	}
	_, _, _, err = tm.PushAudio(0, append([]byte{0xAF, 0x00}, aacAudioSpecificConfig()...))
	if err != nil {
		t.Fatalf("audio seq header: %v", err)
	}

	idr := []byte{0x65, 0x88, 0x84, 0x00}
	au := buildAVCCAccessUnit(idr)
	payload := append([]byte{0x17, 0x01, 0x00, 0x00, 0x00}, au...)
	seg, init, ok, err := tm.PushVideo(40, payload)
	if err != nil {
		t.Fatalf("push video nalu: %v", err)
	}
	if init != nil {
		t.Fatalf("init should only be emitted once")
	}
	if !ok {
		t.Fatalf("expected transmuxer to be initialized")
	}
	if seg.Kind != FragmentVideo || !seg.Keyframe || seg.Timestamp != 40 {
		t.Fatalf("unexpected segment: %+v", seg)
	}
	if len(seg.Payload) != 4+len(idr) {
		t.Fatalf("unexpected reencoded payload length: %d", len(seg.Payload))
	}
}

func TestTransmuxer_RejectsUnsupportedCodec(t *testing.T) {
	tm := New()
	// codecID=12 is HEVC, not AVC; video path should reject at parse level
	// since the transmuxer only constructs H.264 init tracks.
	_, _, _, err := tm.PushVideo(0, []byte{0x1C, 0x01})
	if err == nil {
		t.Fatalf("expected error for unsupported video codec")
	}
}

func TestTransmuxer_TruncatedSequenceHeaderErrors(t *testing.T) {
	tm := New()
	_, _, _, err := tm.PushVideo(0, []byte{0x17, 0x00, 0x01, 0x02})
	if err == nil {
		t.Fatalf("expected error for truncated avcC record")
	}
}
