package oauthclient

import (
	"net/url"
	"strings"
)

// queryPair is a single key/value entry from a query or fragment string,
// kept in original order so duplicate keys and empty values survive a
// round trip unchanged.
type queryPair struct {
	Key   string
	Value string
}

// splitQueryPairs parses a raw query or fragment string into ordered
// pairs. Unlike url.ParseQuery it never collapses duplicate keys and never
// reorders them.
func splitQueryPairs(raw string) []queryPair {
	if raw == "" {
		return nil
	}

	var pairs []queryPair
	for _, entry := range strings.Split(raw, "&") {
		if entry == "" {
			continue
		}
		key := entry
		value := ""
		if idx := strings.IndexByte(entry, '='); idx >= 0 {
			key = entry[:idx]
			value = entry[idx+1:]
		}
		k, errK := url.QueryUnescape(key)
		if errK != nil {
			k = key
		}
		v, errV := url.QueryUnescape(value)
		if errV != nil {
			v = value
		}
		pairs = append(pairs, queryPair{Key: k, Value: v})
	}
	return pairs
}

// encodeQueryPairs renders ordered pairs back into a query/fragment string,
// preserving order and duplicates.
func encodeQueryPairs(pairs []queryPair) string {
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, url.QueryEscape(p.Key)+"="+url.QueryEscape(p.Value))
	}
	return strings.Join(parts, "&")
}

// AppendToQuery returns a copy of u with params appended after any
// pre-existing query parameters, which are preserved byte-exactly
// (order, duplicates, and empty values included).
func AppendToQuery(u *url.URL, params []queryPair) *url.URL {
	out := *u
	added := encodeQueryPairs(params)
	switch {
	case u.RawQuery == "":
		out.RawQuery = added
	case added == "":
		out.RawQuery = u.RawQuery
	default:
		out.RawQuery = u.RawQuery + "&" + added
	}
	return &out
}

// AppendToFragment returns a copy of u with params encoded into its
// fragment, appended after whatever was already there.
func AppendToFragment(u *url.URL, params []queryPair) *url.URL {
	out := *u
	existing := splitQueryPairs(u.Fragment)
	out.Fragment = encodeQueryPairs(append(existing, params...))
	out.RawFragment = ""
	return &out
}

// ParseQueryMap flattens a query or fragment string into a map, first
// occurrence of a key wins.
func ParseQueryMap(raw string) map[string]string {
	out := make(map[string]string)
	for _, p := range splitQueryPairs(raw) {
		if _, exists := out[p.Key]; !exists {
			out[p.Key] = p.Value
		}
	}
	return out
}

// RedirectURLsLookAlike compares two URLs the way a redirect_uri
// allow-list check would: scheme, userinfo, host, port and path must
// match, but query and fragment are ignored since those vary per
// authorization attempt.
func RedirectURLsLookAlike(a, b *url.URL) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Scheme == b.Scheme &&
		a.User.String() == b.User.String() &&
		a.Host == b.Host &&
		a.Path == b.Path
}
