package ingest

import "encoding/json"

// Event Bus subjects (spec.md §4.6, §6).
const (
	SubjectTranscoderRequest = "transcoder.request"
	subjectIngestDisconnect  = "ingest.disconnect."
	subjectRoomEvents        = "events."
)

// IngestDisconnectSubject is the point-to-point takeover-trigger subject for
// one connection id; presence of any message is the signal, the payload is
// unused.
func IngestDisconnectSubject(connectionID string) string {
	return subjectIngestDisconnect + connectionID
}

// RoomEventsSubject is the room-lifecycle fan-out subject for one
// organization.
func RoomEventsSubject(organizationID string) string {
	return subjectRoomEvents + organizationID
}

// TranscoderRequest is published to SubjectTranscoderRequest to recruit an
// idle worker for one rendition slot (spec.md §4.2 Assignment).
type TranscoderRequest struct {
	RequestID      string `json:"request_id"`
	OrganizationID string `json:"organization_id"`
	RoomID         string `json:"room_id"`
	ConnectionID   string `json:"connection_id"`
	GRPCEndpoint   string `json:"grpc_endpoint"`
}

// RoomEventKind enumerates the RoomEvent variants of spec.md §6.
type RoomEventKind string

const (
	RoomEventConnected            RoomEventKind = "Connected"
	RoomEventDisconnected         RoomEventKind = "Disconnected"
	RoomEventTranscoderDisconnect RoomEventKind = "TranscoderDisconnected"
	RoomEventReady                RoomEventKind = "Ready"
)

// RoomEvent is published to RoomEventsSubject to report room lifecycle
// transitions.
type RoomEvent struct {
	Kind         RoomEventKind `json:"kind"`
	RoomID       string        `json:"room_id"`
	ConnectionID string        `json:"connection_id"`
	Clean        bool          `json:"clean,omitempty"`
	Cause        string        `json:"cause,omitempty"`
}

func marshalEvent(v interface{}) ([]byte, error) { return json.Marshal(v) }
