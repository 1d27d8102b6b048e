package node

import (
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/lightningnetwork/lnd/lntypes"
)

// ParseHash normalizes an invoice identifier. It accepts the lowercase or
// uppercase hex form handed out to callers as well as the base64 form lnd
// uses on the wire. Whatever the input, the result prints as lowercase hex.
func ParseHash(s string) (lntypes.Hash, error) {
	s = strings.TrimSpace(s)

	if len(s) == hex.EncodedLen(lntypes.HashSize) {
		hash, err := lntypes.MakeHashFromStr(strings.ToLower(s))
		if err != nil {
			return lntypes.Hash{}, invalidRequest("ParseHash", "invalid payment hash %q: %v", s, err)
		}

		return hash, nil
	}

	for _, encoding := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding} {
		raw, err := encoding.DecodeString(s)
		if err != nil || len(raw) != lntypes.HashSize {
			continue
		}

		return lntypes.MakeHash(raw)
	}

	return lntypes.Hash{}, invalidRequest("ParseHash", "invalid payment hash %q: expected %d hex characters",
		s, hex.EncodedLen(lntypes.HashSize))
}
