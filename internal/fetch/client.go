package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"sync"
	"time"

	UA "github.com/EDDYCJY/fake-useragent"
	"golang.org/x/net/proxy"
)

// DefaultTimeout bounds each fetch when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// DefaultMaxBodySize limits how much of a response is read.
const DefaultMaxBodySize = 10 * 1024 * 1024

// maxRedirects caps redirect chains, e.g. consent interstitials.
const maxRedirects = 10

// Site holds per-host request settings.
type Site struct {
	// Cookie is a raw cookie string, "name=value; other=value".
	Cookie string

	// Headers are set on every request to the host.
	Headers map[string]string

	// UserAgent overrides the client's User-Agent for the host.
	UserAgent string
}

// Page is a fetched document.
type Page struct {
	// URL is the final URL after redirects.
	URL string

	// StatusCode is the HTTP status of the final response.
	StatusCode int

	// ContentType is the response Content-Type.
	ContentType string

	// Body is the response body.
	Body []byte
}

// Client fetches pages.
type Client struct {
	httpClient   *http.Client
	proxyAddress string
	userAgent    string
	uaOnce       sync.Once
	maxBodySize  int64
	timeout      time.Duration
	sites        func(host string) Site
	transport    http.RoundTripper
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithProxy routes requests through the SOCKS5 proxy at address ("host:port").
func WithProxy(address string) Option {
	return func(c *Client) {
		c.proxyAddress = address
	}
}

// WithTimeout bounds each fetch.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithUserAgent sets the default User-Agent.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithMaxBodySize limits response bodies. Zero or less means DefaultMaxBodySize.
func WithMaxBodySize(n int64) Option {
	return func(c *Client) {
		c.maxBodySize = n
	}
}

// WithSites sets the per-host settings lookup.
func WithSites(fn func(host string) Site) Option {
	return func(c *Client) {
		c.sites = fn
	}
}

// WithTransport replaces the underlying transport. WithProxy is ignored
// when a transport is given.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.transport = rt
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Client. The proxy address is validated but not
// contacted.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		timeout:     DefaultTimeout,
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.maxBodySize <= 0 {
		c.maxBodySize = DefaultMaxBodySize
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.sites == nil {
		c.sites = func(string) Site { return Site{} }
	}

	transport := c.transport
	if transport == nil {
		t, err := c.newTransport()
		if err != nil {
			return nil, err
		}
		transport = t
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options
	c.httpClient = &http.Client{
		Transport: &headerInjectingTransport{base: transport, client: c},
		Timeout:   c.timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
	return c, nil
}

// newTransport builds the default transport, dialing through the proxy
// when one is configured.
func (c *Client) newTransport() (*http.Transport, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if c.proxyAddress == "" {
		return transport, nil
	}

	if !isValidProxyAddress(c.proxyAddress) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProxyAddress, c.proxyAddress)
	}
	dialer, err := proxy.SOCKS5("tcp", c.proxyAddress, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	transport.Proxy = nil
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		transport.DialContext = cd.DialContext
	} else {
		transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	}
	return transport, nil
}

// isValidProxyAddress reports whether address is "host:port" with a port
// between 1 and 65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// ProxyAddress returns the configured proxy address.
func (c *Client) ProxyAddress() string {
	return c.proxyAddress
}

// UserAgent returns the default User-Agent, picking a browser one on first
// use when none was configured.
func (c *Client) UserAgent() string {
	c.uaOnce.Do(func() {
		if c.userAgent == "" {
			c.userAgent = UA.Safari()
		}
	})
	return c.userAgent
}

// Fetch downloads rawURL.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	c.logger.Debug("fetching page", "url", rawURL)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rawURL, err)
	}
	if int64(len(body)) > c.maxBodySize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrBodyTooLarge, rawURL, c.maxBodySize)
	}

	return &Page{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// headerInjectingTransport sets the User-Agent and the per-host cookie and
// headers on every request, redirects included.
type headerInjectingTransport struct {
	base   http.RoundTripper
	client *Client
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	site := t.client.sites(req.URL.Hostname())

	ua := site.UserAgent
	if ua == "" {
		ua = t.client.UserAgent()
	}
	clone.Header.Set("User-Agent", ua)

	if site.Cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+site.Cookie)
		} else {
			clone.Header.Set("Cookie", site.Cookie)
		}
	}

	for key, value := range site.Headers {
		clone.Header.Set(key, value)
	}

	return t.base.RoundTrip(clone)
}
