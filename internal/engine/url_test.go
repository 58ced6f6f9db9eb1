package engine

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases scheme and host", "HTTPS://Example.COM/Path", "https://example.com/Path"},
		{"strips fragment", "https://example.com/page#section", "https://example.com/page"},
		{"strips default https port", "https://example.com:443/page", "https://example.com/page"},
		{"strips default http port", "http://example.com:80/page", "http://example.com/page"},
		{"keeps explicit port", "https://example.com:8443/page", "https://example.com:8443/page"},
		{"sorts query params", "https://example.com/p?b=2&a=1", "https://example.com/p?a=1&b=2"},
		{"adds root path to bare origin", "https://example.com", "https://example.com/"},
		{"bare origin with port", "https://example.com:8443", "https://example.com:8443/"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeURL(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeURLFragmentsCollapse(t *testing.T) {
	t.Parallel()

	a, err := NormalizeURL("https://example.com/page#alpha")
	require.NoError(t, err)
	b, err := NormalizeURL("https://example.com/page#beta")
	require.NoError(t, err)
	require.Equal(t, a, b)
}

// TestNormalizeURLBareOriginCollapse guards the visited-set dedup: a seed
// without a path and in-page links to its slashed form must be one entry.
func TestNormalizeURLBareOriginCollapse(t *testing.T) {
	t.Parallel()

	a, err := NormalizeURL("https://example.com")
	require.NoError(t, err)
	b, err := NormalizeURL("https://example.com/")
	require.NoError(t, err)
	require.Equal(t, b, a)
}

func TestParseSeed(t *testing.T) {
	t.Parallel()

	u, err := ParseSeed("https://Example.com/start")
	require.NoError(t, err)
	require.Equal(t, "example.com", u.Host)

	root, err := ParseSeed("https://example.com")
	require.NoError(t, err)
	require.Equal(t, "/", root.Path)

	for _, bad := range []string{
		"",
		"not a url",
		"/relative/path",
		"ftp://example.com/file",
		"javascript:alert(1)",
	} {
		_, err := ParseSeed(bad)
		require.ErrorIs(t, err, ErrInvalidSeed, "seed %q", bad)
	}
}

func TestSameOrigin(t *testing.T) {
	t.Parallel()

	parse := func(raw string) *url.URL {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		return u
	}

	require.True(t, SameOrigin(parse("https://example.com/a"), parse("https://example.com/b")))
	require.False(t, SameOrigin(parse("https://example.com"), parse("http://example.com")))
	require.False(t, SameOrigin(parse("https://example.com"), parse("https://sub.example.com")))
	require.False(t, SameOrigin(parse("https://example.com"), parse("https://example.com:8443")))
	require.False(t, SameOrigin(nil, parse("https://example.com")))
}
