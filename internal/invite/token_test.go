package invite

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTokenPriority(t *testing.T) {
	tests := []struct {
		name      string
		fragment  string
		query     string
		wantToken string
		wantFound bool
	}{
		{
			name:      "fragment ek beats everything",
			fragment:  "ek=frag-ek&key=frag-key",
			query:     "ek=query-ek&key=query-key",
			wantToken: "frag-ek",
			wantFound: true,
		},
		{
			name:      "query ek beats fragment key",
			fragment:  "key=frag-key",
			query:     "ek=query-ek&key=query-key",
			wantToken: "query-ek",
			wantFound: true,
		},
		{
			name:      "fragment key beats query key",
			fragment:  "key=frag-key",
			query:     "key=query-key",
			wantToken: "frag-key",
			wantFound: true,
		},
		{
			name:      "query key as last resort",
			query:     "other=1&key=query-key",
			wantToken: "query-key",
			wantFound: true,
		},
		{
			name:      "empty fragment ek falls through",
			fragment:  "ek=",
			query:     "ek=query-ek",
			wantToken: "query-ek",
			wantFound: true,
		},
		{
			name:      "leading markers tolerated",
			fragment:  "#ek=abc",
			query:     "?ek=zzz",
			wantToken: "abc",
			wantFound: true,
		},
		{
			name:      "double wrapped token",
			fragment:  "ek=ek=XYZ",
			wantToken: "XYZ",
			wantFound: true,
		},
		{
			name:      "padded value kept whole",
			fragment:  "ek=ek%3Dabc%3D%3D",
			wantToken: "abc==",
			wantFound: true,
		},
		{
			name:      "percent encoded value",
			query:     "ek=a%2Bb",
			wantToken: "a+b",
			wantFound: true,
		},
		{
			name:      "nothing present",
			fragment:  "section-2",
			query:     "lang=en",
			wantFound: false,
		},
		{
			name:      "empty inputs",
			wantFound: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := ExtractToken(tt.fragment, tt.query)
			assert.Equal(t, tt.wantFound, found)
			assert.Equal(t, tt.wantToken, got)
		})
	}
}

func TestExtractTokenSkipsMalformedPairs(t *testing.T) {
	got, found := ExtractToken("bad=%zz&ek=still-here", "")
	assert.True(t, found)
	assert.Equal(t, "still-here", got)
}

func TestFromLocation(t *testing.T) {
	got, found := FromLocation("https://invite.example.com/deliver?key=from-query#ek=ek=XYZ")
	assert.True(t, found)
	assert.Equal(t, "XYZ", got)

	got, found = FromLocation("https://invite.example.com/deliver?key=from-query")
	assert.True(t, found)
	assert.Equal(t, "from-query", got)

	_, found = FromLocation("https://invite.example.com/deliver")
	assert.False(t, found)
}

func TestNormalizeToken(t *testing.T) {
	assert.Equal(t, "abc123", NormalizeToken("  ek=abc123 "))
	assert.Equal(t, "abc123", NormalizeToken("abc123"))
	assert.Equal(t, "a=b", NormalizeToken("ek=a=b"))
	assert.Equal(t, "abc123==", NormalizeToken("ek=abc123=="))
	assert.Equal(t, "", NormalizeToken("ek="))
	assert.Equal(t, "key=abc", NormalizeToken("key=abc"))
}
