package oauthclient

import "testing"

// knownIDToken is a real, unsigned-segment-stripped ID token observed in
// the wild; it has no third "signature" segment, which ParseIDToken must
// tolerate since signature verification is out of scope.
const knownIDToken = "eyJhbGciOiJSUzI1NiIsImtpZCI6IjA4MWJjODhmOWVmNjNhNGUyMjU2ZmJkNWQyMzYzZmRmIn0." +
	"eyJpc3MiOiJodHRwczovL2FwcG9ic3Rvay5vdnBvYnMudHYvYXBpL2lkZW50aXR5Iiwic3ViIjoiODc1ODIzMzEtY2E3Yy00OWVmLTkwZjctNWJmMzQ4YTFkYTQ4IiwiYXVkIjoiMjczMTk3IiwiZXhwIjoxNTkzMTA5MTk2LCJpYXQiOjE1OTMxMDg1OTYsImF1dGhfdGltZSI6MTU5MzEwODU5NSwiYXRfaGFzaCI6IjR4NDE3VlVvV1kta2s5bzA0bHZpZ3cifQ"

func TestParseIDTokenKnownFixture(t *testing.T) {
	idt, err := ParseIDToken(knownIDToken)
	if err != nil {
		t.Fatalf("ParseIDToken returned error: %v", err)
	}

	if idt.Issuer != "https://appobstok.ovpobs.tv/api/identity" {
		t.Errorf("Issuer = %q", idt.Issuer)
	}
	if idt.Subject != "87582331-ca7c-49ef-90f7-5bf348a1da48" {
		t.Errorf("Subject = %q", idt.Subject)
	}
	if len(idt.Audience) != 1 || idt.Audience[0] != "273197" {
		t.Errorf("Audience = %v", idt.Audience)
	}
	if idt.ExpiresAt.Unix() != 1593109196 {
		t.Errorf("ExpiresAt.Unix() = %d", idt.ExpiresAt.Unix())
	}
	if idt.IssuedAt.Unix() != 1593108596 {
		t.Errorf("IssuedAt.Unix() = %d", idt.IssuedAt.Unix())
	}
	if _, ok := idt.Nonce(); ok {
		t.Errorf("expected no nonce claim on this fixture")
	}
}

func TestParseIDTokenRejectsMissingClaims(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"missing sub", `{"iss":"https://issuer.example","aud":"client","exp":1,"iat":1}`},
		{"missing aud", `{"iss":"https://issuer.example","sub":"u1","exp":1,"iat":1}`},
		{"missing exp", `{"iss":"https://issuer.example","sub":"u1","aud":"client","iat":1}`},
		{"empty aud array", `{"iss":"https://issuer.example","sub":"u1","aud":[],"exp":1,"iat":1}`},
	}

	header := base64URLNoPad(`{"alg":"none"}`)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := header + "." + base64URLNoPad(tc.payload)
			if _, err := ParseIDToken(raw); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}

func TestParseIDTokenArrayAudience(t *testing.T) {
	header := base64URLNoPad(`{"alg":"none"}`)
	payload := base64URLNoPad(`{"iss":"https://issuer.example","sub":"u1","aud":["a","b"],"exp":100,"iat":50,"nonce":"xyz"}`)
	idt, err := ParseIDToken(header + "." + payload)
	if err != nil {
		t.Fatalf("ParseIDToken returned error: %v", err)
	}
	if len(idt.Audience) != 2 || idt.Audience[0] != "a" || idt.Audience[1] != "b" {
		t.Errorf("Audience = %v", idt.Audience)
	}
	nonce, ok := idt.Nonce()
	if !ok || nonce != "xyz" {
		t.Errorf("Nonce() = %q, %v", nonce, ok)
	}
}

func TestIDTokenEqualByRaw(t *testing.T) {
	a, err := ParseIDToken(knownIDToken)
	if err != nil {
		t.Fatalf("ParseIDToken returned error: %v", err)
	}
	b, err := ParseIDToken(knownIDToken)
	if err != nil {
		t.Fatalf("ParseIDToken returned error: %v", err)
	}
	if !a.Equal(b) {
		t.Errorf("expected equal ID tokens")
	}
	if a.Equal(nil) {
		t.Errorf("expected non-nil token to not equal nil")
	}
}
