package canonical

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// DefaultSegment is the marker used by AMP caches in paths and query strings.
const DefaultSegment = "amp"

// ErrMalformedURL is returned when a destination cannot be parsed as an
// absolute URL. Callers skip the affected link and continue.
var ErrMalformedURL = errors.New("malformed URL")

// Canonicalizer strips proxy artifacts from URLs.
// The zero value is not usable; create one with New.
type Canonicalizer struct {
	// segment is the proxy marker, e.g. "amp".
	segment string

	// prefix and suffix are the path forms of segment ("/amp/" and "amp/").
	prefix string
	suffix string

	logger *slog.Logger
}

// Option configures a Canonicalizer.
type Option func(*Canonicalizer)

// WithSegment overrides the proxy marker. Empty values are ignored.
func WithSegment(segment string) Option {
	return func(c *Canonicalizer) {
		if segment != "" {
			c.segment = segment
		}
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Canonicalizer) {
		c.logger = logger
	}
}

// New creates a Canonicalizer.
func New(opts ...Option) *Canonicalizer {
	c := &Canonicalizer{segment: DefaultSegment}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.prefix = "/" + c.segment + "/"
	c.suffix = c.segment + "/"
	return c
}

// Segment returns the configured proxy marker.
func (c *Canonicalizer) Segment() string {
	return c.segment
}

// Canonicalize returns the canonical form of raw.
func (c *Canonicalizer) Canonicalize(raw string) (string, error) {
	u, err := parseAbsolute(raw)
	if err != nil {
		return "", err
	}

	u.RawQuery = c.stripQuery(u.RawQuery)
	u.ForceQuery = false

	if err := c.stripPath(u); err != nil {
		return "", err
	}

	return u.String(), nil
}

// stripQuery drops every parameter whose decoded key or value equals the
// marker. Surviving pairs are kept byte for byte.
func (c *Canonicalizer) stripQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	kept := make([]string, 0, strings.Count(rawQuery, "&")+1)
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, "=")
		key := unescapeQuery(rawKey)
		value := unescapeQuery(rawValue)
		if key == c.segment || value == c.segment {
			c.logger.Debug("removing query parameter", "key", key, "value", value)
			continue
		}
		kept = append(kept, pair)
	}

	return strings.Join(kept, "&")
}

// stripPath removes a leading "/amp/" segment, or else a trailing one.
func (c *Canonicalizer) stripPath(u *url.URL) error {
	path := u.EscapedPath()
	if path == c.prefix {
		return nil
	}

	var stripped string
	switch {
	case strings.HasPrefix(path, c.prefix):
		c.logger.Debug("removing path prefix", "segment", c.prefix)
		stripped = path[len(c.prefix)-1:]
	case strings.HasSuffix(path, "/"+c.suffix):
		c.logger.Debug("removing path suffix", "segment", c.suffix)
		stripped = path[:len(path)-len(c.suffix)]
	default:
		return nil
	}

	decoded, err := url.PathUnescape(stripped)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	u.Path = decoded
	u.RawPath = stripped
	return nil
}

// defaultCanonicalizer backs the package-level helpers.
var defaultCanonicalizer = New()

// Canonicalize returns the canonical form of raw using the default marker.
func Canonicalize(raw string) (string, error) {
	return defaultCanonicalizer.Canonicalize(raw)
}

// Hostname parses raw as an absolute URL and returns its hostname in the
// form a browser reports it: lowercased and, for internationalized names,
// punycode encoded.
func Hostname(raw string) (string, error) {
	u, err := parseAbsolute(raw)
	if err != nil {
		return "", err
	}
	return NormalizeHost(u.Hostname()), nil
}

// NormalizeHost lowercases host and converts it to its ASCII form.
// IP literals lose their brackets and take their shortest textual form, so
// "[0:0::1]" and "::1" compare equal. Hosts the IDNA profile rejects are
// returned lowercased only.
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return host
	}
	if ip := net.ParseIP(strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")); ip != nil {
		return ip.String()
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return host
	}
	return ascii
}

// parseAbsolute parses raw and requires a scheme.
func parseAbsolute(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty string", ErrMalformedURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("%w: %q is not absolute", ErrMalformedURL, raw)
	}
	return u, nil
}

// unescapeQuery decodes a query component, falling back to the raw text.
func unescapeQuery(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}
