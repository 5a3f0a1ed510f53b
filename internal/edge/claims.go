package edge

import (
	"fmt"
	"net/url"

	"github.com/bitriver/edge/internal/edge/signing"
)

// mediaURL builds the signed URL for a media claim addressing either the
// init blob (idx == nil) or an ordered set of parts.
func (s *Server) mediaURL(org, room, connectionID, rendition string, idx []int) (string, error) {
	claim, err := s.deps.Signer.SignMedia(signing.MediaClaims{
		OrganizationID: org,
		RoomID:         room,
		ConnectionID:   connectionID,
		Rendition:      rendition,
		Idx:            idx,
	})
	if err != nil {
		return "", fmt.Errorf("sign media claim: %w", err)
	}
	v := url.Values{"claim": {claim}}
	return fmt.Sprintf("/%s/%s/media.mp4?%s", org, room, v.Encode()), nil
}

// screenshotURL builds the signed URL for a screenshot claim.
func (s *Server) screenshotURL(org, room, connectionID string, idx int) (string, error) {
	claim, err := s.deps.Signer.SignScreenshot(signing.ScreenshotClaims{
		OrganizationID: org,
		RoomID:         room,
		ConnectionID:   connectionID,
		Idx:            idx,
	})
	if err != nil {
		return "", fmt.Errorf("sign screenshot claim: %w", err)
	}
	v := url.Values{"claim": {claim}}
	return fmt.Sprintf("/%s/%s/screenshot.jpg?%s", org, room, v.Encode()), nil
}
