package config

import (
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "deamp"

	// DefaultTimeout bounds each page fetch.
	DefaultTimeout = 30 * time.Second

	// DefaultBatchSize is the number of pages processed concurrently.
	DefaultBatchSize = 4

	// DefaultMaxBodySize limits how much of a fetched page is read.
	DefaultMaxBodySize = 10 * 1024 * 1024 // 10MB

	// DefaultSegment is the proxy marker stripped from URLs.
	DefaultSegment = "amp"

	// Report formats.
	ReportText     = "text"
	ReportJSON     = "json"
	ReportMarkdown = "markdown"
)

// Config holds the options of one deamp invocation. It is built from CLI
// flags and passed down explicitly.
type Config struct {
	// Inputs are the pages to process: file paths, http(s) URLs, or "-".
	Inputs []string

	// IgnoreHosts are hostnames ignored for this run on top of the stored list.
	IgnoreHosts []string

	// NoStore skips the settings database; only IgnoreHosts and the config
	// file's ignore seeds apply.
	NoStore bool

	// AppendFiles are HTML fragments inserted into each page after load,
	// standing in for results the page loads on scroll.
	AppendFiles []string

	// Output is the file the rewritten page is written to. Empty means stdout.
	Output string

	// OutputDir receives one rewritten file per input.
	OutputDir string

	// Minify minifies the rewritten HTML.
	Minify bool

	// ReportFormat is one of ReportText, ReportJSON or ReportMarkdown.
	ReportFormat string

	// ReportFile is where the report goes. Empty means stderr.
	ReportFile string

	// BatchSize is the number of pages processed concurrently.
	BatchSize int

	// BaseURL is the page address used to resolve relative links in pages
	// read from files or stdin.
	BaseURL string

	// Segment is the proxy marker, "amp" by default.
	Segment string

	// Timeout bounds each page fetch.
	Timeout time.Duration

	// ProxyAddress is an optional SOCKS5 proxy in "host:port" form.
	ProxyAddress string

	// UserAgent overrides the browser User-Agent sent with fetches. Empty
	// means a realistic browser User-Agent is picked.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes.
	// Zero means DefaultMaxBodySize.
	MaxBodySize int64

	// Verbose enables debug logging.
	Verbose bool

	// JSONLog switches log output to JSON.
	JSONLog bool

	// ConfigFilePath is the explicit path of the config file, if any.
	ConfigFilePath string

	// File is the loaded config file, or nil.
	File *File

	// DBDir is the directory of the settings database.
	DBDir string
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		ReportFormat: ReportText,
		BatchSize:    DefaultBatchSize,
		Segment:      DefaultSegment,
		Timeout:      DefaultTimeout,
		MaxBodySize:  DefaultMaxBodySize,
		DBDir:        XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for deamp.
// On Linux: ~/.local/share/deamp
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for deamp.
// On Linux: ~/.config/deamp
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the configuration of the rewrite command and returns
// the first problem found.
func (c *Config) Validate() error {
	if len(c.Inputs) == 0 {
		return ErrNoInput
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	switch c.ReportFormat {
	case ReportText, ReportJSON, ReportMarkdown:
	default:
		return ErrInvalidReportFormat
	}

	if c.Output != "" && c.OutputDir != "" {
		return ErrConflictingOutputs
	}
	if c.Output != "" && len(c.Inputs) > 1 {
		return ErrOutputNeedsSingleInput
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || !u.IsAbs() {
			return ErrInvalidBaseURL
		}
	}

	return ValidateSegment(c.Segment)
}

// ValidateSegment reports whether segment can serve as the proxy marker.
func ValidateSegment(segment string) error {
	if segment == "" || strings.ContainsAny(segment, "/?#&=") {
		return ErrInvalidSegment
	}
	return nil
}

// ApplyFile merges the config file into c. Command line values win: the
// file only fills fields left at their zero or default value, and its
// ignore seeds are appended to IgnoreHosts.
func (c *Config) ApplyFile(f *File) {
	if f == nil {
		return
	}
	c.File = f

	if f.Segment != "" && c.Segment == DefaultSegment {
		c.Segment = f.Segment
	}
	if f.Proxy != "" && c.ProxyAddress == "" {
		c.ProxyAddress = f.Proxy
	}
	if f.Defaults.UserAgent != "" && c.UserAgent == "" {
		c.UserAgent = f.Defaults.UserAgent
	}
	c.IgnoreHosts = append(c.IgnoreHosts, f.Ignore...)
}
