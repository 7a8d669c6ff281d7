package oauthclient

import (
	"net/url"
	"testing"
)

func TestAppendToQueryPreservesExistingParams(t *testing.T) {
	base, err := url.Parse("http://example.com/auth?paramToPreserve=true&anotherOneEmpty=")
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}

	out := AppendToQuery(base, []queryPair{{Key: "state", Value: "abc123"}})

	want := "paramToPreserve=true&anotherOneEmpty=&state=abc123"
	if out.RawQuery != want {
		t.Errorf("RawQuery = %q, want %q", out.RawQuery, want)
	}
}

func TestAppendToQueryPreservesDuplicateKeys(t *testing.T) {
	base, _ := url.Parse("http://example.com/auth?scope=a&scope=b")
	out := AppendToQuery(base, []queryPair{{Key: "scope", Value: "c"}})

	want := "scope=a&scope=b&scope=c"
	if out.RawQuery != want {
		t.Errorf("RawQuery = %q, want %q", out.RawQuery, want)
	}
}

func TestAppendToFragment(t *testing.T) {
	base, _ := url.Parse("http://example.com/callback")
	out := AppendToFragment(base, []queryPair{
		{Key: "access_token", Value: "tok"},
		{Key: "token_type", Value: "bearer"},
	})

	want := "access_token=tok&token_type=bearer"
	if out.Fragment != want {
		t.Errorf("Fragment = %q, want %q", out.Fragment, want)
	}
}

func TestParseQueryMapFirstOccurrenceWins(t *testing.T) {
	m := ParseQueryMap("a=1&b=2&a=3")
	if m["a"] != "1" {
		t.Errorf("a = %q, want 1", m["a"])
	}
	if m["b"] != "2" {
		t.Errorf("b = %q, want 2", m["b"])
	}
}

func TestParseQueryMapEmptyValue(t *testing.T) {
	m := ParseQueryMap("anotherOneEmpty=&x=1")
	v, ok := m["anotherOneEmpty"]
	if !ok || v != "" {
		t.Errorf("anotherOneEmpty = %q, %v", v, ok)
	}
}

func TestRedirectURLsLookAlike(t *testing.T) {
	a, _ := url.Parse("https://app.example.com:443/cb?state=1")
	b, _ := url.Parse("https://app.example.com:443/cb#fragmentstuff")
	if !RedirectURLsLookAlike(a, b) {
		t.Errorf("expected URLs differing only in query/fragment to look alike")
	}

	c, _ := url.Parse("https://app.example.com:443/other")
	if RedirectURLsLookAlike(a, c) {
		t.Errorf("expected URLs with different paths to not look alike")
	}
}
