package utils

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"HTTPS://Example.COM", "https://example.com/"},
		{"https://example.com:443/a#top", "https://example.com/a"},
		{"http://example.com:80/a?b=1", "http://example.com/a?b=1"},
		{"http://example.com:8080/a", "http://example.com:8080/a"},
		{"https://user:pw@example.com/x", "https://example.com/x"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			u, err := url.Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, NormalizeURL(u))
		})
	}
}

func TestToAbsoluteURL(t *testing.T) {
	base, _ := url.Parse("https://example.com/blog/post")
	abs, err := ToAbsoluteURL(base, "../about#team")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/about", abs.String())
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, "2d711642b726b04401627ca9fbac32f5c8530fb1903cc4db02258717921a4881", Fingerprint([]byte("x")))
	assert.NotEqual(t, Fingerprint([]byte("x")), Fingerprint([]byte("y")))
}
