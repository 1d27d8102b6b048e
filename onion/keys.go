package onion

import (
	"crypto/rand"

	"github.com/cretz/bine/torutil"
	"github.com/cretz/bine/torutil/ed25519"
	"github.com/go-errors/errors"
)

// GeneratePrivateKey creates the ed25519 key of a v3 onion service.
func GeneratePrivateKey() (ed25519.PrivateKey, error) {
	keyPair, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Errorf("Could not generate onion service key: %v", err)
	}

	return keyPair.PrivateKey(), nil
}

// ServiceID is the onion address, without .onion, the key will be reachable at.
func ServiceID(key ed25519.PrivateKey) string {
	return torutil.OnionServiceIDFromV3PublicKey(key.PublicKey())
}
