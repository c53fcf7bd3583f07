// Package identifier validates and decodes the 43-character URL-safe-base64
// content identifiers that key every retrieval.
package identifier

import (
	"encoding/base64"
	"regexp"

	"github.com/weavegate/gateway/pkg/constants"
	"github.com/weavegate/gateway/pkg/gatewayerr"
)

// pattern matches a 43-character URL-safe-base64 identifier exactly.
var pattern = regexp.MustCompile(`^[A-Za-z0-9_-]{43}$`)

// Valid reports whether id matches the 43-character URL-safe-base64 shape.
// It does not attempt to decode it — decoding is a separate step so callers
// can reject malformed input before touching any tier.
func Valid(id string) bool {
	return len(id) == constants.IdentifierLength && pattern.MatchString(id)
}

// Validate returns a classified error if id is not a valid identifier.
func Validate(id string) error {
	if !Valid(id) {
		return gatewayerr.New(gatewayerr.KindInvalidIdentifier, "identifier must be 43 URL-safe-base64 characters: "+id)
	}
	return nil
}

// Decode decodes a validated identifier to its 32 underlying bytes.
func Decode(id string) ([]byte, error) {
	if err := Validate(id); err != nil {
		return nil, err
	}
	b, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindInvalidIdentifier, "identifier does not decode to valid base64url", "", err)
	}
	return b, nil
}

// Encode encodes 32 raw bytes into the padding-free URL-safe-base64 string
// form.
func Encode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}
