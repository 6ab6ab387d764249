package config

import (
	"strings"

	"github.com/nao1215/deamp/internal/rewrite"
)

// SiteConfig holds fetch settings for one host.
type SiteConfig struct {
	// Cookie is an HTTP cookie sent with requests to this host.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers sent with requests to this host.
	Headers map[string]string `yaml:"headers,omitempty"`

	// UserAgent overrides the User-Agent for this host.
	UserAgent string `yaml:"userAgent,omitempty"`
}

// File represents the structure of the .deamp configuration file.
type File struct {
	// Markers overrides the attributes and selectors that identify result
	// links and badges. Unset fields keep their defaults.
	Markers rewrite.Markers `yaml:"markers,omitempty"`

	// Segment overrides the proxy marker ("amp").
	Segment string `yaml:"segment,omitempty"`

	// Ignore lists hostnames that are always ignored, in addition to the
	// stored ignore list.
	Ignore []string `yaml:"ignore,omitempty"`

	// Proxy is a SOCKS5 proxy address used for fetches.
	Proxy string `yaml:"proxy,omitempty"`

	// Defaults are fetch settings applied to every host.
	Defaults SiteConfig `yaml:"defaults,omitempty"`

	// Sites maps hostnames to fetch settings that override Defaults.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`
}

// GetSiteConfig returns the fetch settings for host, merging the
// host-specific entry over the defaults.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults
	if len(cf.Defaults.Headers) > 0 {
		result.Headers = make(map[string]string, len(cf.Defaults.Headers))
		for k, v := range cf.Defaults.Headers {
			result.Headers[k] = v
		}
	}

	siteConfig, ok := cf.Sites[strings.ToLower(host)]
	if !ok {
		return result
	}

	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if siteConfig.UserAgent != "" {
		result.UserAgent = siteConfig.UserAgent
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		for k, v := range siteConfig.Headers {
			result.Headers[k] = v
		}
	}

	return result
}
