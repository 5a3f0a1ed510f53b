package transcoder

import "fmt"

// Keys names the Metadata/Blob Store keys for one (org, room, connection,
// rendition) tuple, per spec.md §6 "Metadata keys".
type Keys struct {
	Org        string
	Room       string
	Connection string
	Rendition  string
}

func (k Keys) InitKey() string {
	return fmt.Sprintf("init.%s.%s.%s.%s", k.Org, k.Room, k.Connection, k.Rendition)
}

func (k Keys) PartKey(idx int) string {
	return fmt.Sprintf("part.%s.%s.%s.%s.%d", k.Org, k.Room, k.Connection, k.Rendition, idx)
}

func (k Keys) ManifestKey() string {
	return fmt.Sprintf("manifest.%s.%s.%s.%s", k.Org, k.Room, k.Connection, k.Rendition)
}

// ConnKeys names the Metadata/Blob Store keys for one (org, room,
// connection) tuple, independent of rendition: the top-level LiveManifest
// and per-index screenshots.
type ConnKeys struct {
	Org        string
	Room       string
	Connection string
}

func (k ConnKeys) ManifestKey() string {
	return fmt.Sprintf("manifest.%s.%s.%s", k.Org, k.Room, k.Connection)
}

func (k ConnKeys) ScreenshotKey(idx int) string {
	return fmt.Sprintf("screenshot.%s.%s.%s.%d", k.Org, k.Room, k.Connection, idx)
}

// RecordingKey names the Metadata Store key for one (org, room, recording,
// rendition) tuple's RecordingRenditionRecord, consulted by the edge
// server's DVR path once a publish has finalized into a recording.
func RecordingKey(org, room, recordingID, rendition string) string {
	return fmt.Sprintf("recording.%s.%s.%s.%s", org, room, recordingID, rendition)
}
