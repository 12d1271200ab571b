package resolver

import (
	"encoding/json"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

// step is one link of the chain. find returns ("", false) when it has
// nothing to offer.
type step struct {
	name string
	find func(*scan) (string, bool)
}

var (
	codeBlockRe = regexp.MustCompile("(?s)```[ \t]*(?i:json)?[ \t]*\\r?\\n?(.*?)```")
	linkRe      = regexp.MustCompile("https?://[^\\s<>\"'`\\[\\]{}|\\\\^]+")

	// Fields looked up inside a fenced JSON block, highest priority first.
	embeddedFields = []string{"urls.0", "url", "image_url", "image_url.url", "result_url", "output_url"}

	imageExtensions = []string{".png", ".jpg", ".jpeg", ".webp"}
)

// directEnvelope handles providers that skip the chat wrapper and answer with
// a root-level urls array.
func directEnvelope(s *scan) (string, bool) {
	if !s.isJSON {
		return "", false
	}
	return firstString(gjson.Get(s.body, "urls.0"))
}

// imagesEnvelope handles the images-API shape: data[0].url or data[0].b64_json.
func imagesEnvelope(s *scan) (string, bool) {
	if !s.isJSON {
		return "", false
	}
	if u, ok := firstString(gjson.Get(s.body, "data.0.url")); ok {
		return u, true
	}
	if b64, ok := firstString(gjson.Get(s.body, "data.0.b64_json")); ok {
		return imageB64URIPrefix + strings.Join(strings.Fields(b64), ""), true
	}
	return "", false
}

// generationsSource handles job payloads shaped like
// {"generations":[{"encodings":{"source":{"path":...}}}]}.
func generationsSource(s *scan) (string, bool) {
	if !s.isJSON {
		return "", false
	}
	return firstString(gjson.Get(s.body, "generations.0.encodings.source.path"))
}

// embeddedJSON looks for fenced code blocks in the message content and
// checks the decoded object for a known URL field. Blocks that do not parse
// are repaired once before being skipped.
func embeddedJSON(s *scan) (string, bool) {
	if s.content == "" {
		return "", false
	}
	for _, m := range codeBlockRe.FindAllStringSubmatch(s.content, -1) {
		doc, ok := decodeBlock(m[1])
		if !ok {
			continue
		}
		for _, field := range embeddedFields {
			if u, ok := firstString(gjson.Get(doc, field)); ok && IsImageReference(u) {
				return u, true
			}
		}
	}
	return "", false
}

func decodeBlock(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if json.Valid([]byte(raw)) {
		return raw, true
	}
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil || !json.Valid([]byte(repaired)) {
		return "", false
	}
	return repaired, true
}

func (r *Resolver) cdnPattern(s *scan) (string, bool) {
	return lo.Find(s.urls(), r.hasCDNPrefix)
}

func imageExtension(s *scan) (string, bool) {
	return lo.Find(s.urls(), hasImageExtension)
}

// lastResort returns the first link that is not on a job-status host. Those
// hosts serve polling pages, never images.
func (r *Resolver) lastResort(s *scan) (string, bool) {
	return lo.Find(s.urls(), func(u string) bool {
		return !r.isJobStatusURL(u)
	})
}

func firstString(v gjson.Result) (string, bool) {
	if v.Type != gjson.String {
		return "", false
	}
	str := strings.TrimSpace(v.String())
	return str, str != ""
}

// extractURLs returns every http(s) link in text, in order of appearance,
// without trailing punctuation.
func extractURLs(text string) []string {
	if text == "" {
		return nil
	}
	matches := linkRe.FindAllString(text, -1)
	links := make([]string, 0, len(matches))
	for _, m := range matches {
		m = trimLinkTail(m)
		if IsImageReference(m) {
			links = append(links, m)
		}
	}
	return links
}

// trimLinkTail drops trailing punctuation and any closing parenthesis that
// has no opening partner inside the link, such as the end of a markdown link.
func trimLinkTail(link string) string {
	for {
		link = strings.TrimRight(link, ".,;:!?*~")
		if !strings.HasSuffix(link, ")") || strings.Count(link, ")") <= strings.Count(link, "(") {
			return link
		}
		link = link[:len(link)-1]
	}
}

func hasImageExtension(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return lo.Contains(imageExtensions, strings.ToLower(path.Ext(u.Path)))
}

func (r *Resolver) hasCDNPrefix(ref string) bool {
	bare := stripScheme(ref)
	return lo.ContainsBy(r.cdnPrefixes, func(prefix string) bool {
		return strings.HasPrefix(strings.ToLower(bare), prefix)
	})
}

func (r *Resolver) isJobStatusURL(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return lo.ContainsBy(r.jobStatusHosts, func(h string) bool {
		return host == h || strings.HasSuffix(host, "."+h)
	})
}

func stripScheme(ref string) string {
	if i := strings.Index(ref, "://"); i >= 0 {
		return ref[i+3:]
	}
	return ref
}

// normalizePrefixes lowercases prefixes and drops their scheme so http and
// https links to the same CDN path match alike.
func normalizePrefixes(prefixes []string) []string {
	out := lo.FilterMap(prefixes, func(p string, _ int) (string, bool) {
		p = strings.ToLower(stripScheme(strings.TrimSpace(p)))
		return p, p != ""
	})
	return lo.Uniq(out)
}

func normalizeHosts(hosts []string) []string {
	out := lo.FilterMap(hosts, func(h string, _ int) (string, bool) {
		h = strings.ToLower(strings.TrimSpace(h))
		h = strings.TrimPrefix(stripScheme(h), "www.")
		h = strings.TrimSuffix(h, "/")
		return h, h != ""
	})
	return lo.Uniq(out)
}
