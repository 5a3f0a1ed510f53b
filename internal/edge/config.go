package edge

import (
	"time"

	"github.com/bitriver/edge/internal/blobstore"
	"github.com/bitriver/edge/internal/edge/signing"
	"github.com/bitriver/edge/internal/metadata"
	"github.com/bitriver/edge/internal/roomdb"
)

// blockingReloadCap is the hard ceiling on how long a rendition playlist
// request blocks waiting for a manifest to advance (spec.md §4.7/§5).
const blockingReloadCap = 3 * time.Second

// sessionDuration is how long a freshly issued playback session is valid
// before its first refresh (spec.md §4.7 Room playlist).
const sessionDuration = 10 * time.Minute

// Config bounds the tunables a Server needs beyond its collaborators.
type Config struct {
	// ListenAddr is the host:port the HTTP server binds to.
	ListenAddr string
}

// Deps are the collaborators a Server is wired against.
type Deps struct {
	Rooms    *roomdb.Repository
	Metadata metadata.Store
	Blobs    blobstore.Store
	Signer   *signing.Signer
	RoomKeys signing.KeyProvider
}
