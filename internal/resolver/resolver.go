// Package resolver turns raw upstream chat-completion bodies into a single
// image reference.
//
// Upstream providers report generated images in incompatible ways: a bare
// `urls` array, an images-API envelope, JSON fenced inside the assistant
// message, or free text with links. Resolve walks an ordered chain of
// strategies over the body and stops at the first one that yields a usable
// reference. A miss is a normal outcome, never an error.
package resolver

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// Strategy names reported in Debug.Strategy.
const (
	StrategyDirectEnvelope = "direct-envelope"
	StrategyImagesEnvelope = "images-envelope"
	StrategyEmbeddedJSON   = "embedded-json"
	StrategyCDNPattern     = "cdn-pattern"
	StrategyImageExtension = "image-extension"
	StrategyLastResort     = "last-resort"
	StrategyGenerations    = "generations-source"
	StrategyDirectImage    = "direct-image"
)

var (
	DefaultCDNPrefixes    = []string{"https://pro.filesystem.site/cdn/"}
	DefaultJobStatusHosts = []string{"asyncdata.net"}
)

const (
	previewRunes      = 200
	maxCandidateURLs  = 10
	imageB64URIPrefix = "data:image/png;base64,"
)

// Options configures the trusted CDN prefixes and the job-status hosts whose
// links are never treated as images.
type Options struct {
	CDNPrefixes    []string
	JobStatusHosts []string
}

// Resolver holds the strategy chain. It keeps no per-call state and is safe
// for concurrent use.
type Resolver struct {
	cdnPrefixes    []string
	jobStatusHosts []string
	chain          []step
	textChain      []step
	secondaryChain []step
}

// Debug carries enough of the intermediate state to diagnose a miss.
type Debug struct {
	Strategy        string   `json:"strategy,omitempty"`
	FoundURL        string   `json:"foundUrl,omitempty"`
	BodyIsJSON      bool     `json:"bodyIsJson"`
	ContentLength   int      `json:"contentLength"`
	ContentPreview  string   `json:"contentPreview,omitempty"`
	CandidateURLs   []string `json:"candidateUrls,omitempty"`
	UpstreamStatus  int      `json:"upstreamStatus,omitempty"`
	IntermediateURL string   `json:"intermediateUrl,omitempty"`
	SecondaryStatus int      `json:"secondaryStatus,omitempty"`
	SecondaryError  string   `json:"secondaryError,omitempty"`
	Inline          bool     `json:"inline,omitempty"`
	DownloadError   string   `json:"downloadError,omitempty"`
}

// Resolution is the outcome of one pass over a body. URL is empty on a miss.
type Resolution struct {
	URL   string
	Debug Debug
}

// Found reports whether a reference was resolved.
func (r Resolution) Found() bool {
	return r.URL != ""
}

// New builds a Resolver, falling back to the default CDN prefixes and
// job-status hosts when none are given.
func New(opts Options) *Resolver {
	r := &Resolver{
		cdnPrefixes:    normalizePrefixes(opts.CDNPrefixes),
		jobStatusHosts: normalizeHosts(opts.JobStatusHosts),
	}
	if len(r.cdnPrefixes) == 0 {
		r.cdnPrefixes = normalizePrefixes(DefaultCDNPrefixes)
	}
	if len(r.jobStatusHosts) == 0 {
		r.jobStatusHosts = normalizeHosts(DefaultJobStatusHosts)
	}
	r.chain = []step{
		{name: StrategyDirectEnvelope, find: directEnvelope},
		{name: StrategyImagesEnvelope, find: imagesEnvelope},
		{name: StrategyEmbeddedJSON, find: embeddedJSON},
		{name: StrategyCDNPattern, find: r.cdnPattern},
		{name: StrategyImageExtension, find: imageExtension},
		{name: StrategyLastResort, find: r.lastResort},
	}
	// A body that is not JSON is usually a proxy error page; only links that
	// look like finished images count.
	r.textChain = []step{
		{name: StrategyEmbeddedJSON, find: embeddedJSON},
		{name: StrategyCDNPattern, find: r.cdnPattern},
		{name: StrategyImageExtension, find: imageExtension},
	}
	// Job-status pages are often HTML full of unrelated links, so the
	// secondary chain stops before the last-resort scan.
	r.secondaryChain = []step{
		{name: StrategyDirectEnvelope, find: directEnvelope},
		{name: StrategyGenerations, find: generationsSource},
		{name: StrategyImagesEnvelope, find: imagesEnvelope},
		{name: StrategyEmbeddedJSON, find: embeddedJSON},
		{name: StrategyCDNPattern, find: r.cdnPattern},
		{name: StrategyImageExtension, find: imageExtension},
	}
	return r
}

// Default returns a Resolver with the built-in CDN prefixes and job hosts.
func Default() *Resolver {
	return New(Options{})
}

// Resolve runs the strategy chain over a raw upstream body. A body that is
// not JSON skips the envelope and last-resort steps.
func (r *Resolver) Resolve(body string) Resolution {
	s := newScan(body)
	if !s.isJSON {
		return r.run(s, r.textChain)
	}
	return r.run(s, r.chain)
}

// ResolveSecondary runs the chain used for the body of an intermediate job
// URL. Relative references are resolved against base.
func (r *Resolver) ResolveSecondary(base, body string) Resolution {
	s := newScan(body)
	if u, err := url.Parse(strings.TrimSpace(base)); err == nil && u.IsAbs() {
		s.base = u
	}
	return r.run(s, r.secondaryChain)
}

// IntermediateURL picks the job-status link a two-step upstream returns in
// place of an image: a link on a job-status host if there is one, otherwise
// the first link that does not look like a final image.
func (r *Resolver) IntermediateURL(body string) string {
	s := newScan(body)
	urls := s.urls()
	for _, u := range urls {
		if r.isJobStatusURL(u) {
			return u
		}
	}
	for _, u := range urls {
		if !r.IsFinalImage(u) {
			return u
		}
	}
	return ""
}

// IsFinalImage reports whether ref already points at image bytes: a data
// URI, a trusted CDN link or a link with an image file extension.
func (r *Resolver) IsFinalImage(ref string) bool {
	if ref == "" {
		return false
	}
	if isDataURI(ref) {
		return true
	}
	return r.hasCDNPrefix(ref) || hasImageExtension(ref)
}

func (r *Resolver) run(s *scan, chain []step) Resolution {
	res := Resolution{Debug: s.debug()}
	for _, st := range chain {
		found, ok := st.find(s)
		if !ok {
			continue
		}
		found = s.absolutize(strings.TrimSpace(found))
		if !IsImageReference(found) {
			continue
		}
		res.URL = found
		res.Debug.Strategy = st.name
		res.Debug.FoundURL = abbreviate(found)
		return res
	}
	return res
}

// scan is the prepared view of one body shared by every strategy.
type scan struct {
	body    string
	isJSON  bool
	content string
	base    *url.URL

	links     []string
	linksDone bool
}

func newScan(body string) *scan {
	body = strings.TrimSpace(body)
	s := &scan{body: body, isJSON: body != "" && gjson.Valid(body)}
	if s.isJSON {
		s.content = messageContent(gjson.Get(body, "choices.0.message.content"))
	} else {
		s.content = body
	}
	return s
}

// absolutize resolves a relative reference against the scan's base URL.
func (s *scan) absolutize(ref string) string {
	if s.base == nil || ref == "" || isDataURI(ref) {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil || u.IsAbs() {
		return ref
	}
	return s.base.ResolveReference(u).String()
}

func (s *scan) urls() []string {
	if !s.linksDone {
		s.links = extractURLs(s.content)
		s.linksDone = true
	}
	return s.links
}

func (s *scan) debug() Debug {
	d := Debug{
		BodyIsJSON:     s.isJSON,
		ContentLength:  len(s.content),
		ContentPreview: preview(s.content),
	}
	urls := s.urls()
	if len(urls) > maxCandidateURLs {
		urls = urls[:maxCandidateURLs]
	}
	for _, u := range urls {
		d.CandidateURLs = append(d.CandidateURLs, abbreviate(u))
	}
	return d
}

// messageContent flattens choices[0].message.content. Plain strings are used
// as-is; multimodal part arrays contribute their text and image_url values.
func messageContent(v gjson.Result) string {
	switch {
	case v.Type == gjson.String:
		return v.String()
	case v.IsArray():
		var parts []string
		for _, part := range v.Array() {
			if text := part.Get("text"); text.Type == gjson.String {
				parts = append(parts, text.String())
			}
			if img := part.Get("image_url.url"); img.Type == gjson.String {
				parts = append(parts, img.String())
			} else if img := part.Get("image_url"); img.Type == gjson.String {
				parts = append(parts, img.String())
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

// IsImageReference reports whether ref is an absolute http(s) URL with a
// host or a data URI.
func IsImageReference(ref string) bool {
	if ref == "" {
		return false
	}
	if isDataURI(ref) {
		return true
	}
	if strings.ContainsAny(ref, " \t\r\n") {
		return false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func isDataURI(ref string) bool {
	if len(ref) < 5 || !strings.EqualFold(ref[:5], "data:") {
		return false
	}
	return strings.Contains(ref, ",")
}

func preview(content string) string {
	if utf8.RuneCountInString(content) <= previewRunes {
		return content
	}
	return string([]rune(content)[:previewRunes]) + "…"
}

// abbreviate keeps data URIs out of debug output.
func abbreviate(ref string) string {
	if isDataURI(ref) {
		if i := strings.Index(ref, ","); i >= 0 {
			return ref[:i+1] + "…"
		}
	}
	return ref
}
