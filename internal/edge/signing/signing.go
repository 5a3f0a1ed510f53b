// Package signing implements the token and claim formats the Edge Server
// issues and verifies (spec.md §4.7): an externally-issued ES384 JWT room
// token, and internally-minted HMAC-SHA256 session and media/screenshot
// claims.
package signing

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// roomTokenSkew bounds how far a room token's iat may drift from now
// (spec.md §4.7: "requiring... iat within ±60 s").
const roomTokenSkew = 60 * time.Second

// RoomTokenClaims is the externally-issued room access token.
type RoomTokenClaims struct {
	OrganizationID string `json:"organization_id"`
	RoomID         string `json:"room_id"`
	jwt.RegisteredClaims
}

// KeyProvider resolves the ES384 public key for a room token, keyed by the
// organization the token claims to belong to and the `kid` header it
// carries. Implementations typically look this up from per-organization
// configuration; verification fails closed if the pair is unknown.
type KeyProvider interface {
	RoomTokenKey(organizationID, kid string) (*ecdsa.PublicKey, error)
}

// VerifyRoomToken parses and validates an ES384 room token. It enforces
// organization_id, room_id, and iat presence plus the ±60s skew bound; any
// failure is reported as a single opaque error, matching spec.md §4.7's
// "all token/signature failures return 400 with no information about which
// check failed."
func VerifyRoomToken(raw string, keys KeyProvider) (RoomTokenClaims, error) {
	var claims RoomTokenClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != "ES384" {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("missing kid header")
		}
		// organization_id isn't verified yet at this point (it's inside the
		// still-unverified claims), but it's only used to select which
		// org's key ring to consult — a wrong guess just fails signature
		// verification, it never grants access to another org's room.
		var probe RoomTokenClaims
		if _, _, err := jwt.NewParser().ParseUnverified(raw, &probe); err != nil {
			return nil, err
		}
		return keys.RoomTokenKey(probe.OrganizationID, kid)
	}, jwt.WithValidMethods([]string{"ES384"}))
	if err != nil || !token.Valid {
		return RoomTokenClaims{}, fmt.Errorf("invalid room token: %w", err)
	}

	if claims.OrganizationID == "" || claims.RoomID == "" || claims.IssuedAt == nil {
		return RoomTokenClaims{}, errors.New("room token missing required claims")
	}
	if drift := time.Since(claims.IssuedAt.Time); drift > roomTokenSkew || drift < -roomTokenSkew {
		return RoomTokenClaims{}, errors.New("room token iat out of skew bounds")
	}
	return claims, nil
}

// SessionClaims binds a playback session to the connection it was issued
// against (spec.md §4.7 Room playlist / §3 Playback Session).
type SessionClaims struct {
	SessionID        string `json:"session_id"`
	OrganizationID   string `json:"organization_id"`
	RoomID           string `json:"room_id"`
	ConnectionID     string `json:"connection_id"`
	WasAuthenticated bool   `json:"was_authenticated"`
	jwt.RegisteredClaims
}

// MediaClaims addresses one init blob or an ordered set of part blobs
// within a rendition (spec.md §4.7 Media endpoint).
type MediaClaims struct {
	OrganizationID string `json:"organization_id"`
	RoomID         string `json:"room_id"`
	ConnectionID   string `json:"connection_id"`
	Rendition      string `json:"rendition"`
	Idx            []int  `json:"idx"`
	jwt.RegisteredClaims
}

// ScreenshotClaims addresses one screenshot blob (spec.md §4.7 Screenshot
// endpoints).
type ScreenshotClaims struct {
	OrganizationID string `json:"organization_id"`
	RoomID         string `json:"room_id"`
	ConnectionID   string `json:"connection_id"`
	Idx            int    `json:"idx"`
	jwt.RegisteredClaims
}

// Signer mints and verifies the internal HMAC-SHA256 claims using a single
// server-side secret; it never touches the ES384 room-token keys.
type Signer struct {
	secret []byte
}

// NewSigner constructs a Signer over secret, the edge server's HMAC key.
func NewSigner(secret []byte) *Signer { return &Signer{secret: secret} }

// SignSession mints a session token valid until expiresAt.
func (s *Signer) SignSession(c SessionClaims, expiresAt time.Time) (string, error) {
	c.RegisteredClaims = jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

// VerifySession parses and validates a session token.
func (s *Signer) VerifySession(raw string) (SessionClaims, error) {
	var claims SessionClaims
	_, err := jwt.ParseWithClaims(raw, &claims, s.keyFunc, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return SessionClaims{}, fmt.Errorf("invalid session token: %w", err)
	}
	return claims, nil
}

// SignMedia mints a media claim. Media claims share the blob's immutability
// and so carry a long validity window (one year, matching the
// Cache-Control the media endpoint sets on its response).
func (s *Signer) SignMedia(c MediaClaims) (string, error) {
	c.RegisteredClaims = jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(365 * 24 * time.Hour)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

// VerifyMedia parses and validates a media claim.
func (s *Signer) VerifyMedia(raw string) (MediaClaims, error) {
	var claims MediaClaims
	_, err := jwt.ParseWithClaims(raw, &claims, s.keyFunc, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return MediaClaims{}, fmt.Errorf("invalid media claim: %w", err)
	}
	return claims, nil
}

// SignScreenshot mints a screenshot claim with the same long validity as
// media claims.
func (s *Signer) SignScreenshot(c ScreenshotClaims) (string, error) {
	c.RegisteredClaims = jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(365 * 24 * time.Hour)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

// VerifyScreenshot parses and validates a screenshot claim.
func (s *Signer) VerifyScreenshot(raw string) (ScreenshotClaims, error) {
	var claims ScreenshotClaims
	_, err := jwt.ParseWithClaims(raw, &claims, s.keyFunc, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return ScreenshotClaims{}, fmt.Errorf("invalid screenshot claim: %w", err)
	}
	return claims, nil
}

func (s *Signer) keyFunc(t *jwt.Token) (interface{}, error) { return s.secret, nil }
