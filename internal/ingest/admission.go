package ingest

import (
	"encoding/base64"
	"fmt"
	"strings"

	coreerrors "github.com/bitriver/edge/internal/errors"
)

// requiredApp is the only RTMP app this server accepts publishes under
// (spec.md §4.2 Admission, §6 External Interfaces).
const requiredApp = "live"

// StreamKey is the parsed form of an RTMP publish's app/stream_name, per
// spec.md §6: app="live", stream_name="<org_id>_<base64url(room_id+"+"+room_secret)>".
type StreamKey struct {
	OrganizationID string
	RoomID         string
	RoomSecret     string
}

// ParseStreamKey parses app and streamName into a StreamKey. Any failure —
// wrong app, missing separator, bad base64, missing "+" in the decoded
// payload — is reported as an AdmissionError, which per spec.md §4.2/§7.1
// the caller must handle by closing the connection silently (no RTMP-level
// response).
func ParseStreamKey(app, streamName string) (StreamKey, error) {
	if app != requiredApp {
		return StreamKey{}, coreerrors.NewAdmissionError("ingest.parse_stream_key", fmt.Errorf("unknown app %q", app))
	}

	orgID, encoded, ok := strings.Cut(streamName, "_")
	if !ok || orgID == "" || encoded == "" {
		return StreamKey{}, coreerrors.NewAdmissionError("ingest.parse_stream_key", fmt.Errorf("malformed stream name %q", streamName))
	}

	decoded, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(encoded)
	if err != nil {
		return StreamKey{}, coreerrors.NewAdmissionError("ingest.parse_stream_key", fmt.Errorf("bad base64url payload: %w", err))
	}

	roomID, secret, ok := strings.Cut(string(decoded), "+")
	if !ok || roomID == "" || secret == "" {
		return StreamKey{}, coreerrors.NewAdmissionError("ingest.parse_stream_key", fmt.Errorf("malformed room+secret payload"))
	}

	return StreamKey{OrganizationID: orgID, RoomID: roomID, RoomSecret: secret}, nil
}
