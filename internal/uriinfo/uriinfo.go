// Package uriinfo extracts the two keys the engine learns under: the full
// URI spec and its origin.
package uriinfo

import (
	"net"
	"net/url"
	"strings"
)

// Info is a by-value snapshot of a URI, safe to hand to another goroutine.
type Info struct {
	Spec   string
	Origin string
}

// From builds an Info from a parsed URL. Both keys are canonical: scheme
// and host lowercased and a default port dropped, so equivalent spellings
// of a URI share their records. A nil URL yields the zero Info.
func From(u *url.URL) Info {
	if u == nil {
		return Info{}
	}
	n := Normalize(u)
	return Info{Spec: n.String(), Origin: n.Scheme + "://" + n.Host}
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Normalize returns a copy of u with the scheme and host lowercased and
// the scheme's default port removed.
func Normalize(u *url.URL) *url.URL {
	n := *u
	n.Scheme = strings.ToLower(u.Scheme)

	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == defaultPorts[n.Scheme] {
		port = ""
	}
	switch {
	case port != "":
		n.Host = net.JoinHostPort(host, port)
	case strings.Contains(host, ":"):
		n.Host = "[" + host + "]"
	default:
		n.Host = host
	}
	return &n
}

// Parse parses raw and builds its Info.
func Parse(raw string) (Info, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Info{}, err
	}
	return From(u), nil
}

// Origin returns scheme://host[:port] in canonical form.
func Origin(u *url.URL) string {
	return From(u).Origin
}

// IsHTTP reports whether u uses http or https.
func IsHTTP(u *url.URL) bool {
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return true
	}
	return false
}

// IsNilOrHTTP is true for an absent URL or an http(s) one.
func IsNilOrHTTP(u *url.URL) bool {
	return u == nil || IsHTTP(u)
}

// IsHTTPS reports whether u uses https.
func IsHTTPS(u *url.URL) bool {
	return u != nil && strings.EqualFold(u.Scheme, "https")
}
