package signing

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// StaticKeyProvider resolves room-token keys from a fixed set loaded at
// startup, keyed by "organization_id/kid". It never refreshes; rotating a
// room's key means redeploying with an updated config.
type StaticKeyProvider map[string]*ecdsa.PublicKey

// RoomTokenKey implements KeyProvider.
func (p StaticKeyProvider) RoomTokenKey(organizationID, kid string) (*ecdsa.PublicKey, error) {
	key, ok := p[organizationID+"/"+kid]
	if !ok {
		return nil, fmt.Errorf("signing: no room token key for %s/%s", organizationID, kid)
	}
	return key, nil
}

// LoadStaticKeyProvider parses a set of PEM-encoded ECDSA public keys keyed
// by "organization_id/kid" (the shape viper's map-valued config keys
// produce, e.g. room_token_keys.orgA/key1: |-\n  -----BEGIN PUBLIC KEY-----...)
// into a StaticKeyProvider.
func LoadStaticKeyProvider(pemByKey map[string]string) (StaticKeyProvider, error) {
	out := make(StaticKeyProvider, len(pemByKey))
	for key, raw := range pemByKey {
		block, _ := pem.Decode([]byte(raw))
		if block == nil {
			return nil, fmt.Errorf("signing: invalid PEM for room token key %q", key)
		}
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("signing: parse room token key %q: %w", key, err)
		}
		ecKey, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("signing: room token key %q is not ECDSA", key)
		}
		out[key] = ecKey
	}
	return out, nil
}
