package oauthclient

import (
	"encoding/json"
	"testing"
	"time"
)

func TestCredentialsJSONRoundTrip(t *testing.T) {
	token := "abc123"
	expiry := time.Unix(1700000000, 0)

	creds := Credentials{
		Scope:        NewScopeSet("openid", "email"),
		ResponseType: NewResponseTypeSet(ResponseTypeCode),
		AccessToken:  &token,
		AccessTokenExpiresAt: &expiry,
	}

	blob, err := json.Marshal(creds)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(blob, &raw); err != nil {
		t.Fatalf("Unmarshal to map: %v", err)
	}
	for _, key := range []string{"scope", "responseType", "accessToken", "expiresAt", "refreshToken", "idToken"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("storage blob missing key %q", key)
		}
	}

	var roundTripped Credentials
	if err := json.Unmarshal(blob, &roundTripped); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !roundTripped.Equal(creds) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", roundTripped, creds)
	}
}

func TestCredentialsCanBeRefreshed(t *testing.T) {
	token := "refresh-1"
	withRefresh := Credentials{RefreshToken: &token}
	if !withRefresh.CanBeRefreshed(true) {
		t.Errorf("expected refreshable when token endpoint present and refresh token set")
	}
	if withRefresh.CanBeRefreshed(false) {
		t.Errorf("expected not refreshable without a token endpoint")
	}

	noRefresh := Credentials{}
	if noRefresh.CanBeRefreshed(true) {
		t.Errorf("expected not refreshable without a refresh token")
	}
}
