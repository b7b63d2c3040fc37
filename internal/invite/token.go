// Package invite extracts invitation tokens from page locations and composes
// the device URL that delivers them.
package invite

import (
	"net/url"
	"strings"
)

const (
	// ParamEK is the query parameter the device reads the invitation from.
	ParamEK = "ek"
	// ParamKey is the alternate name accepted on the page location.
	ParamKey = "key"

	ekPrefix = ParamEK + "="
)

// ExtractToken looks up the invitation token in a location's fragment and
// query. Lookup order is fragment ek, query ek, fragment key, query key; the
// first non-empty value wins. The boolean is false when no invite is present.
func ExtractToken(fragment, query string) (string, bool) {
	frag := parseParams(strings.TrimPrefix(fragment, "#"))
	qs := parseParams(strings.TrimPrefix(query, "?"))

	for _, lookup := range []struct {
		params url.Values
		name   string
	}{
		{frag, ParamEK},
		{qs, ParamEK},
		{frag, ParamKey},
		{qs, ParamKey},
	} {
		if raw := lookup.params.Get(lookup.name); raw != "" {
			return stripPrefix(raw), true
		}
	}
	return "", false
}

// FromLocation runs ExtractToken over a full page URL such as
// https://host/invite#ek=abc123.
func FromLocation(rawURL string) (string, bool) {
	rawURL = strings.TrimSpace(rawURL)
	var fragment, query string
	if i := strings.IndexByte(rawURL, '#'); i >= 0 {
		fragment = rawURL[i+1:]
		rawURL = rawURL[:i]
	}
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		query = rawURL[i+1:]
	}
	return ExtractToken(fragment, query)
}

// NormalizeToken trims whitespace and removes a leading "ek=" left over from
// pasting the whole parameter instead of its value.
func NormalizeToken(token string) string {
	return stripPrefix(strings.TrimSpace(token))
}

// stripPrefix drops one leading "ek=". The rest is kept whole, so padded
// values such as "abc123==" survive.
func stripPrefix(raw string) string {
	return strings.TrimPrefix(raw, ekPrefix)
}

// parseParams decodes form-encoded pairs, keeping whatever parsed cleanly when
// a pair carries a bad escape.
func parseParams(s string) url.Values {
	if s == "" {
		return url.Values{}
	}
	values, _ := url.ParseQuery(s)
	if values == nil {
		values = url.Values{}
	}
	return values
}
