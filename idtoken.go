package oauthclient

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// IDToken is a decoded OIDC ID Token. Decoding never verifies the
// signature segment; callers that need cryptographic assurance must
// validate the token against the issuer's keys themselves.
type IDToken struct {
	Raw    string
	Header map[string]any
	claims map[string]any

	Issuer     string
	Subject    string
	Audience   []string
	ExpiresAt  time.Time
	IssuedAt   time.Time
}

// ParseIDToken decodes a JWT-shaped ID token string into its claims without
// checking the signature.
func ParseIDToken(raw string) (*IDToken, error) {
	parts := strings.Split(raw, ".")
	if len(parts) < 2 {
		return nil, newTokenExchangeError("id token is not JWT-shaped", nil)
	}

	header, err := decodeJWTSegment(parts[0])
	if err != nil {
		return nil, newTokenExchangeError("id token header is not valid base64url JSON", err)
	}

	claims, err := decodeJWTSegment(parts[1])
	if err != nil {
		return nil, newTokenExchangeError("id token payload is not valid base64url JSON", err)
	}

	iss, ok := stringField(claims, "iss")
	if !ok {
		return nil, newTokenExchangeError("id token missing iss claim", nil)
	}
	sub, ok := stringField(claims, "sub")
	if !ok {
		return nil, newTokenExchangeError("id token missing sub claim", nil)
	}
	aud, ok := audienceField(claims)
	if !ok {
		return nil, newTokenExchangeError("id token missing aud claim", nil)
	}
	exp, ok := numericField(claims, "exp")
	if !ok {
		return nil, newTokenExchangeError("id token missing exp claim", nil)
	}
	iat, ok := numericField(claims, "iat")
	if !ok {
		return nil, newTokenExchangeError("id token missing iat claim", nil)
	}

	return &IDToken{
		Raw:       raw,
		Header:    header,
		claims:    claims,
		Issuer:    iss,
		Subject:   sub,
		Audience:  aud,
		ExpiresAt: time.Unix(int64(exp), 0),
		IssuedAt:  time.Unix(int64(iat), 0),
	}, nil
}

// decodeJWTSegment base64url-decodes (with padding recovered) a JWT segment
// and JSON-decodes the result into a map.
func decodeJWTSegment(segment string) (map[string]any, error) {
	std := strings.ReplaceAll(strings.ReplaceAll(segment, "-", "+"), "_", "/")
	if rem := len(std) % 4; rem != 0 {
		std += strings.Repeat("=", 4-rem)
	}

	decoded, err := base64.StdEncoding.DecodeString(std)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}

	var out map[string]any
	if err := json.Unmarshal(decoded, &out); err != nil {
		return nil, fmt.Errorf("json decode: %w", err)
	}
	return out, nil
}

func stringField(claims map[string]any, key string) (string, bool) {
	v, ok := claims[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// audienceField accepts the aud claim as either a single string or an
// array of strings, per OIDC Core §2.
func audienceField(claims map[string]any) ([]string, bool) {
	v, ok := claims["aud"]
	if !ok {
		return nil, false
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil, false
		}
		return []string{t}, true
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok || s == "" {
				return nil, false
			}
			out = append(out, s)
		}
		if len(out) == 0 {
			return nil, false
		}
		return out, true
	default:
		return nil, false
	}
}

// numericField accepts a JSON number in any of the shapes encoding/json
// might hand back depending on how the map was produced.
func numericField(claims map[string]any, key string) (float64, bool) {
	v, ok := claims[key]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Nonce returns the nonce claim, if present.
func (t *IDToken) Nonce() (string, bool) { return stringField(t.claims, "nonce") }

// Name returns the name claim, if present.
func (t *IDToken) Name() (string, bool) { return stringField(t.claims, "name") }

// Picture returns the picture claim, if present.
func (t *IDToken) Picture() (string, bool) { return stringField(t.claims, "picture") }

// Email returns the email claim, if present.
func (t *IDToken) Email() (string, bool) { return stringField(t.claims, "email") }

// GivenName returns the given_name claim, if present.
func (t *IDToken) GivenName() (string, bool) { return stringField(t.claims, "given_name") }

// FamilyName returns the family_name claim, if present.
func (t *IDToken) FamilyName() (string, bool) { return stringField(t.claims, "family_name") }

// Equal compares two ID tokens by their raw, undecoded representation.
func (t *IDToken) Equal(other *IDToken) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.Raw == other.Raw
}
