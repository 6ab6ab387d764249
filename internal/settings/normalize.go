package settings

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/nao1215/deamp/internal/canonical"
)

// NormalizeHostname returns host in the form the rewrite engine compares
// against. Full URLs ("https://example.com/path") are reduced to their
// hostname.
func NormalizeHostname(host string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", fmt.Errorf("%w: empty value", ErrInvalidHostname)
	}

	if strings.Contains(host, "://") {
		u, err := url.Parse(host)
		if err != nil || u.Hostname() == "" {
			return "", fmt.Errorf("%w: %q", ErrInvalidHostname, host)
		}
		host = u.Hostname()
	}
	host = strings.TrimSuffix(host, ".")

	if strings.ContainsAny(host, "/?#@ ") {
		return "", fmt.Errorf("%w: %q", ErrInvalidHostname, host)
	}

	normalized := canonical.NormalizeHost(host)
	if normalized == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidHostname, host)
	}
	return normalized, nil
}

// NormalizeHostnames normalizes hosts, dropping invalid values and
// duplicates. The result is never nil.
func NormalizeHostnames(hosts []string) []string {
	out := make([]string, 0, len(hosts))
	seen := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		n, err := NormalizeHostname(h)
		if err != nil {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
