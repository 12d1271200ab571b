// Package imagefetch performs outbound GETs that look like a regular browser
// image request. Upstream CDNs that reject hotlinked requests accept these, so
// the same fetcher backs the proxy endpoint, intermediate job lookups and
// inline materialization of generated images.
package imagefetch

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"courtside/internal/domain"
	"courtside/internal/infra"
)

const (
	BrowserUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	DefaultContentType = "image/png"

	defaultMaxBytes = 20 << 20
	defaultTimeout  = 30 * time.Second
	maxRedirects    = 10
)

// Resolver looks up the addresses of a host. It matches net.Resolver.LookupIPAddr.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Options configures a Fetcher.
type Options struct {
	HTTPClient        *http.Client
	Timeout           time.Duration
	MaxBytes          int64
	AllowPrivateHosts bool
	Resolver          Resolver
	Logger            *infra.Logger
}

// Fetcher downloads remote resources with browser-like headers.
type Fetcher struct {
	httpClient   *http.Client
	maxBytes     int64
	allowPrivate bool
	resolver     Resolver
	logger       *infra.Logger
}

// Payload is a downloaded resource.
type Payload struct {
	URL         string
	StatusCode  int
	ContentType string
	Data        []byte
}

// StatusError reports a non-2xx upstream answer.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("imagefetch: upstream status %d for %s", e.StatusCode, e.URL)
}

// New constructs a Fetcher with defaults for any zero option. Unless private
// hosts are allowed, every redirect hop is validated and the default transport
// refuses to connect to restricted addresses.
func New(opts Options) *Fetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	var client http.Client
	if opts.HTTPClient != nil {
		client = *opts.HTTPClient
	} else {
		client = http.Client{Timeout: timeout}
		if !opts.AllowPrivateHosts {
			client.Transport = guardedTransport(timeout)
		}
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	f := &Fetcher{
		httpClient:   &client,
		maxBytes:     maxBytes,
		allowPrivate: opts.AllowPrivateHosts,
		resolver:     resolver,
		logger:       logger,
	}
	if !f.allowPrivate {
		client.CheckRedirect = f.checkRedirect
	}
	return f
}

// guardedTransport dials directly, never through an environment proxy, so the
// address checked at connect time is the one the request reaches.
func guardedTransport(timeout time.Duration) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
		Control:   dialControl,
	}
	transport.DialContext = dialer.DialContext
	return transport
}

// dialControl runs after name resolution, so it sees the address actually
// being connected to.
func dialControl(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnsafeURL, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("%w: dial %s: not an IP address", domain.ErrUnsafeURL, address)
	}
	if isRestricted(ip) {
		return fmt.Errorf("%w: dial %s %s: restricted address", domain.ErrUnsafeURL, network, address)
	}
	return nil
}

func (f *Fetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("imagefetch: stopped after %d redirects", maxRedirects)
	}
	if _, err := f.validate(req.Context(), req.URL.String()); err != nil {
		f.logger.Warn().Str("location", req.URL.String()).Err(err).Msg("imagefetch: redirect rejected")
		return err
	}
	return nil
}

// Fetch downloads rawURL. Non-2xx answers are returned as *StatusError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Payload, error) {
	target, err := f.validate(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("imagefetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", BrowserUserAgent)
	req.Header.Set("Accept", "image/*,*/*")
	req.Header.Set("Referer", Origin(target)+"/")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("imagefetch: http request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: target.String()}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("imagefetch: read body: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("imagefetch: body exceeds %d bytes", f.maxBytes)
	}
	contentType := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = DefaultContentType
	}
	f.logger.Debug().
		Str("url", target.String()).
		Int("status", resp.StatusCode).
		Str("content_type", contentType).
		Int("bytes", len(data)).
		Msg("imagefetch: fetched")
	return &Payload{
		URL:         target.String(),
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Data:        data,
	}, nil
}

// DataURI encodes the payload as a base64 data URI.
func (p *Payload) DataURI() string {
	contentType := p.ContentType
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if contentType == "" {
		contentType = DefaultContentType
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
}

// Origin returns scheme://host of u.
func Origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}

func (f *Fetcher) validate(ctx context.Context, rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, domain.ErrMissingURL
	}
	parsed, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnsafeURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q not allowed", domain.ErrUnsafeURL, parsed.Scheme)
	}
	host := parsed.Hostname()
	if host == "" {
		return nil, fmt.Errorf("%w: missing host", domain.ErrUnsafeURL)
	}
	if f.allowPrivate {
		return parsed, nil
	}
	var addrs []net.IPAddr
	if ip := net.ParseIP(host); ip != nil {
		addrs = []net.IPAddr{{IP: ip}}
	} else {
		addrs, err = f.resolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("imagefetch: resolve %s: %w", host, err)
		}
	}
	for _, addr := range addrs {
		if isRestricted(addr.IP) {
			return nil, fmt.Errorf("%w: %s resolves to restricted address %s", domain.ErrUnsafeURL, host, addr.IP)
		}
	}
	return parsed, nil
}

func isRestricted(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}

// IsStatusError reports whether err carries an upstream status.
func IsStatusError(err error) (*StatusError, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr, true
	}
	return nil, false
}
