package oauthclient

import "encoding/base64"

// base64URLNoPad encodes a raw JSON string the way a JWT segment would be
// encoded, for building synthetic ID tokens in tests.
func base64URLNoPad(json string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(json))
}
