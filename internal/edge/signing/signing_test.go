package signing

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

type staticKeyProvider struct {
	org string
	kid string
	key *ecdsa.PublicKey
}

func (p staticKeyProvider) RoomTokenKey(org, kid string) (*ecdsa.PublicKey, error) {
	if org != p.org || kid != p.kid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return p.key, nil
}

func signRoomToken(t *testing.T, priv *ecdsa.PrivateKey, kid string, claims RoomTokenClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodES384, claims)
	tok.Header["kid"] = kid
	signed, err := tok.SignedString(priv)
	require.NoError(t, err)
	return signed
}

func TestVerifyRoomToken_Valid(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	keys := staticKeyProvider{org: "org1", kid: "key1", key: &priv.PublicKey}

	raw := signRoomToken(t, priv, "key1", RoomTokenClaims{
		OrganizationID: "org1",
		RoomID:         "room1",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	})

	claims, err := VerifyRoomToken(raw, keys)
	require.NoError(t, err)
	require.Equal(t, "org1", claims.OrganizationID)
	require.Equal(t, "room1", claims.RoomID)
}

func TestVerifyRoomToken_SkewExceeded(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	keys := staticKeyProvider{org: "org1", kid: "key1", key: &priv.PublicKey}

	raw := signRoomToken(t, priv, "key1", RoomTokenClaims{
		OrganizationID: "org1",
		RoomID:         "room1",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now().Add(-2 * time.Minute)),
		},
	})

	_, err = VerifyRoomToken(raw, keys)
	require.Error(t, err)
}

func TestVerifyRoomToken_WrongKey(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	other, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	keys := staticKeyProvider{org: "org1", kid: "key1", key: &other.PublicKey}

	raw := signRoomToken(t, priv, "key1", RoomTokenClaims{
		OrganizationID: "org1",
		RoomID:         "room1",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	})

	_, err = VerifyRoomToken(raw, keys)
	require.Error(t, err)
}

func TestVerifyRoomToken_MissingKid(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	keys := staticKeyProvider{org: "org1", kid: "key1", key: &priv.PublicKey}

	tok := jwt.NewWithClaims(jwt.SigningMethodES384, RoomTokenClaims{
		OrganizationID: "org1",
		RoomID:         "room1",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	})
	raw, err := tok.SignedString(priv)
	require.NoError(t, err)

	_, err = VerifyRoomToken(raw, keys)
	require.Error(t, err)
}

func TestSigner_SessionRoundTrip(t *testing.T) {
	s := NewSigner([]byte("test-secret"))
	token, err := s.SignSession(SessionClaims{
		SessionID:      "sess1",
		OrganizationID: "org1",
		RoomID:         "room1",
		ConnectionID:   "conn1",
	}, time.Now().Add(10*time.Minute))
	require.NoError(t, err)

	claims, err := s.VerifySession(token)
	require.NoError(t, err)
	require.Equal(t, "sess1", claims.SessionID)
	require.Equal(t, "conn1", claims.ConnectionID)
}

func TestSigner_SessionExpired(t *testing.T) {
	s := NewSigner([]byte("test-secret"))
	token, err := s.SignSession(SessionClaims{SessionID: "sess1"}, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	_, err = s.VerifySession(token)
	require.Error(t, err)
}

func TestSigner_MediaRoundTrip(t *testing.T) {
	s := NewSigner([]byte("test-secret"))
	token, err := s.SignMedia(MediaClaims{
		OrganizationID: "org1",
		RoomID:         "room1",
		ConnectionID:   "conn1",
		Rendition:      "1080p",
		Idx:            []int{1, 2, 3},
	})
	require.NoError(t, err)

	claims, err := s.VerifyMedia(token)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, claims.Idx)
	require.Equal(t, "1080p", claims.Rendition)
}

func TestSigner_ScreenshotRoundTrip(t *testing.T) {
	s := NewSigner([]byte("test-secret"))
	token, err := s.SignScreenshot(ScreenshotClaims{
		OrganizationID: "org1",
		RoomID:         "room1",
		ConnectionID:   "conn1",
		Idx:            7,
	})
	require.NoError(t, err)

	claims, err := s.VerifyScreenshot(token)
	require.NoError(t, err)
	require.Equal(t, 7, claims.Idx)
}

func TestSigner_WrongSecretRejected(t *testing.T) {
	s := NewSigner([]byte("test-secret"))
	token, err := s.SignSession(SessionClaims{SessionID: "sess1"}, time.Now().Add(time.Minute))
	require.NoError(t, err)

	other := NewSigner([]byte("different-secret"))
	_, err = other.VerifySession(token)
	require.Error(t, err)
}
