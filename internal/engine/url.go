package engine

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL standardizes a URL so `/page#a` and `/page#b` collapse to one
// entry. It lowercases the scheme and host, removes default ports, strips
// the fragment, canonicalizes an empty path to "/", and sorts query
// parameters.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	// A bare origin and its slashed form are the same page.
	if u.Host != "" && u.Path == "" {
		u.Path = "/"
	}

	u.Fragment = ""

	q := u.Query()
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// ParseSeed validates that raw is an absolute http(s) URL and returns its
// parsed, normalized form. Anything else is an ErrInvalidSeed.
func ParseSeed(raw string) (*url.URL, error) {
	normalized, err := NormalizeURL(raw)
	if err != nil {
		return nil, ErrInvalidSeed
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return nil, ErrInvalidSeed
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidSeed
	}
	return u, nil
}

// SameOrigin reports whether both URLs share scheme, host, and port.
func SameOrigin(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Scheme == b.Scheme && strings.EqualFold(a.Host, b.Host)
}

// Origin returns the scheme://host form of a URL.
func Origin(u *url.URL) string {
	if u == nil {
		return ""
	}
	return fmt.Sprintf("%s://%s", u.Scheme, u.Host)
}
