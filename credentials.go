package oauthclient

import (
	"encoding/json"
	"time"
)

// Credentials is the set of tokens and metadata produced by a completed
// authorization, token exchange, or refresh.
type Credentials struct {
	Scope                ScopeSet
	ResponseType         ResponseTypeSet
	AccessToken          *string
	AccessTokenExpiresAt *time.Time
	RefreshToken         *string
	IDToken              *IDToken
}

// EarliestExpirationDate returns the earlier of the access token's and the
// ID token's expiry, whichever are present; nil if neither carries one.
func (c Credentials) EarliestExpirationDate() *time.Time {
	idExpiresAt := c.idTokenExpiresAt()
	switch {
	case c.AccessTokenExpiresAt != nil && idExpiresAt != nil:
		if c.AccessTokenExpiresAt.Before(*idExpiresAt) {
			return c.AccessTokenExpiresAt
		}
		return idExpiresAt
	case c.AccessTokenExpiresAt != nil:
		return c.AccessTokenExpiresAt
	case idExpiresAt != nil:
		return idExpiresAt
	default:
		return nil
	}
}

func (c Credentials) idTokenExpiresAt() *time.Time {
	if c.IDToken == nil {
		return nil
	}
	t := c.IDToken.ExpiresAt
	return &t
}

// CanBeRefreshed reports whether these credentials carry enough material to
// attempt a refresh: a refresh token, and a token endpoint to send it to.
func (c Credentials) CanBeRefreshed(hasTokenEndpoint bool) bool {
	return hasTokenEndpoint && c.RefreshToken != nil && *c.RefreshToken != ""
}

// Equal compares two credential sets by value.
func (c Credentials) Equal(other Credentials) bool {
	if !c.Scope.Equal(other.Scope) || !c.ResponseType.Equal(other.ResponseType) {
		return false
	}
	if !stringPtrEqual(c.AccessToken, other.AccessToken) {
		return false
	}
	if !stringPtrEqual(c.RefreshToken, other.RefreshToken) {
		return false
	}
	if (c.AccessTokenExpiresAt == nil) != (other.AccessTokenExpiresAt == nil) {
		return false
	}
	if c.AccessTokenExpiresAt != nil && !c.AccessTokenExpiresAt.Equal(*other.AccessTokenExpiresAt) {
		return false
	}
	if (c.IDToken == nil) != (other.IDToken == nil) {
		return false
	}
	if c.IDToken != nil && !c.IDToken.Equal(other.IDToken) {
		return false
	}
	return true
}

func stringPtrEqual(a, b *string) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

// credentialsJSON is the wire/storage representation of Credentials: one
// blob per client identifier, keyed in Storage by Config.ClientIdentifier.
type credentialsJSON struct {
	Scope        []string `json:"scope"`
	ResponseType []string `json:"responseType"`
	AccessToken  *string  `json:"accessToken"`
	ExpiresAt    *float64 `json:"expiresAt"`
	RefreshToken *string  `json:"refreshToken"`
	IDToken      *string  `json:"idToken"`
}

// MarshalJSON renders Credentials as the storage blob schema.
func (c Credentials) MarshalJSON() ([]byte, error) {
	raw := credentialsJSON{
		Scope:        c.Scope.SortedValues(),
		ResponseType: make([]string, 0, len(c.ResponseType)),
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
	}
	for _, rt := range c.ResponseType.sortedRaw() {
		raw.ResponseType = append(raw.ResponseType, rt)
	}
	if c.AccessTokenExpiresAt != nil {
		secs := float64(c.AccessTokenExpiresAt.Unix())
		raw.ExpiresAt = &secs
	}
	if c.IDToken != nil {
		raw.IDToken = &c.IDToken.Raw
	}
	return json.Marshal(raw)
}

// UnmarshalJSON parses Credentials from the storage blob schema.
func (c *Credentials) UnmarshalJSON(data []byte) error {
	var raw credentialsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Scope = NewScopeSet(raw.Scope...)

	types := make([]ResponseType, 0, len(raw.ResponseType))
	for _, t := range raw.ResponseType {
		types = append(types, ResponseType(t))
	}
	c.ResponseType = NewResponseTypeSet(types...)

	c.AccessToken = raw.AccessToken
	c.RefreshToken = raw.RefreshToken

	if raw.ExpiresAt != nil {
		t := time.Unix(int64(*raw.ExpiresAt), 0)
		c.AccessTokenExpiresAt = &t
	}

	if raw.IDToken != nil && *raw.IDToken != "" {
		idt, err := ParseIDToken(*raw.IDToken)
		if err != nil {
			return err
		}
		c.IDToken = idt
	}

	return nil
}
