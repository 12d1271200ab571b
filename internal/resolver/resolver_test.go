package resolver

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chatBody wraps content the way an OpenAI-compatible upstream does.
func chatBody(t *testing.T, content any) string {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"choices": []any{
			map[string]any{
				"index":   0,
				"message": map[string]any{"role": "assistant", "content": content},
			},
		},
	})
	require.NoError(t, err)
	return string(body)
}

func TestResolveEmbeddedJSONURLsArray(t *testing.T) {
	urls := []string{
		"https://files.example.com/out/1.png",
		"https://files.example.com/gen?id=42",
		"http://a/x.webp",
	}
	for _, u := range urls {
		t.Run(u, func(t *testing.T) {
			content := fmt.Sprintf("Here you go!\n```json\n{\"urls\": [%q, \"https://other.example.com/2.png\"], \"status\": \"done\"}\n```", u)
			res := Default().Resolve(chatBody(t, content))
			assert.Equal(t, u, res.URL)
			assert.Equal(t, StrategyEmbeddedJSON, res.Debug.Strategy)
		})
	}
}

func TestResolveRootURLsShortcut(t *testing.T) {
	body := `{"urls":["https://direct.example.com/a.png"],"choices":[{"message":{"content":"https://pro.filesystem.site/cdn/other.png"}}]}`

	res := Default().Resolve(body)

	assert.Equal(t, "https://direct.example.com/a.png", res.URL)
	assert.Equal(t, StrategyDirectEnvelope, res.Debug.Strategy)
}

func TestResolveUntaggedFenceWithURLField(t *testing.T) {
	res := Default().Resolve(chatBody(t, "see ```json\n{\"url\":\"http://a/x.png\"}\n```"))
	assert.Equal(t, "http://a/x.png", res.URL)

	res = Default().Resolve(chatBody(t, "```\n{\"result_url\":\"https://r.example.com/job/9\"}\n```"))
	assert.Equal(t, "https://r.example.com/job/9", res.URL)
	assert.Equal(t, StrategyEmbeddedJSON, res.Debug.Strategy)
}

func TestResolveEmbeddedFieldPriority(t *testing.T) {
	content := "```json\n{\"output_url\":\"https://o.example.com/o\",\"image_url\":\"https://i.example.com/i\",\"url\":\"https://u.example.com/u\"}\n```"

	res := Default().Resolve(chatBody(t, content))

	assert.Equal(t, "https://u.example.com/u", res.URL)
}

func TestResolveRepairsMalformedEmbeddedJSON(t *testing.T) {
	content := "```json\n{url: 'https://broken.example.com/result', status: 'ok',}\n```"

	res := Default().Resolve(chatBody(t, content))

	assert.Equal(t, "https://broken.example.com/result", res.URL)
	assert.Equal(t, StrategyEmbeddedJSON, res.Debug.Strategy)
}

func TestResolveKnownCDN(t *testing.T) {
	content := "Generation finished. ![image](https://pro.filesystem.site/cdn/abc.png) enjoy"

	res := Default().Resolve(chatBody(t, content))

	assert.Equal(t, "https://pro.filesystem.site/cdn/abc.png", res.URL)
	assert.Equal(t, StrategyCDNPattern, res.Debug.Strategy)
}

func TestResolveCDNBeatsEarlierImageLink(t *testing.T) {
	content := "preview https://thumbs.example.com/p.jpg final https://pro.filesystem.site/cdn/final"

	res := Default().Resolve(chatBody(t, content))

	assert.Equal(t, "https://pro.filesystem.site/cdn/final", res.URL)
}

func TestResolveImageExtension(t *testing.T) {
	content := "progress https://status.example.com/job/1 then https://cdn.example.com/img/OUT.JPEG?sig=abc."

	res := Default().Resolve(chatBody(t, content))

	assert.Equal(t, "https://cdn.example.com/img/OUT.JPEG?sig=abc", res.URL)
	assert.Equal(t, StrategyImageExtension, res.Debug.Strategy)
}

func TestResolveRejectsJobStatusHost(t *testing.T) {
	content := "Job queued: https://asyncdata.net/web/123 result: https://cdn.example.com/y.jpg"

	res := Default().Resolve(chatBody(t, content))

	assert.Equal(t, "https://cdn.example.com/y.jpg", res.URL)
}

func TestResolveLastResortSkipsJobStatusHost(t *testing.T) {
	content := "track https://asyncdata.net/web/123 or https://sub.asyncdata.net/x, view https://gallery.example.com/v/77"

	res := Default().Resolve(chatBody(t, content))

	assert.Equal(t, "https://gallery.example.com/v/77", res.URL)
	assert.Equal(t, StrategyLastResort, res.Debug.Strategy)
}

func TestResolveOnlyJobStatusHostIsMiss(t *testing.T) {
	res := Default().Resolve(chatBody(t, "queued: https://asyncdata.net/web/123"))

	assert.False(t, res.Found())
	assert.Equal(t, []string{"https://asyncdata.net/web/123"}, res.Debug.CandidateURLs)
}

func TestResolveNothingFound(t *testing.T) {
	bodies := []string{
		chatBody(t, "Sorry, I cannot help with that request."),
		"",
		"   ",
		"<html><body>Bad Gateway</body></html>",
		`{"error":{"message":"quota exceeded","type":"insufficient_quota"}}`,
		`{"choices":[]}`,
		`{"choices":[{"message":{"content":null}}]}`,
		`{"urls":[]}`,
		`{"urls":["not a url"]}`,
		chatBody(t, "```json\n{\"url\": 42}\n```"),
		"{\"choices\":[{\"message\":{\"content\":\"```json\\n{\\\"url\\\":\\\"javascript:alert(1)\\\"}\\n```\"}}]}",
	}
	for i, body := range bodies {
		t.Run(fmt.Sprintf("body-%d", i), func(t *testing.T) {
			var res Resolution
			require.NotPanics(t, func() { res = Default().Resolve(body) })
			assert.False(t, res.Found())
			assert.Empty(t, res.URL)
		})
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	r := Default()
	body := chatBody(t, "a https://asyncdata.net/web/1 b https://cdn.example.com/y.jpg ```json\n{\"url\":\"https://x.example.com/1.png\"}\n```")

	first := r.Resolve(body)
	second := r.Resolve(body)

	assert.Equal(t, first, second)
	assert.Equal(t, "https://x.example.com/1.png", first.URL)
}

func TestResolveNonJSONBodyFallsBackToText(t *testing.T) {
	body := "  upstream said: your image is at https://cdn.example.com/z.png  "

	res := Default().Resolve(body)

	assert.Equal(t, "https://cdn.example.com/z.png", res.URL)
	assert.False(t, res.Debug.BodyIsJSON)
}

func TestResolveImagesEnvelope(t *testing.T) {
	res := Default().Resolve(`{"created":1,"data":[{"url":"https://oaidalle.example.com/img.png"}]}`)
	assert.Equal(t, "https://oaidalle.example.com/img.png", res.URL)
	assert.Equal(t, StrategyImagesEnvelope, res.Debug.Strategy)

	res = Default().Resolve(`{"created":1,"data":[{"b64_json":"iVBORw0KGgo="}]}`)
	assert.Equal(t, "data:image/png;base64,iVBORw0KGgo=", res.URL)
	assert.Equal(t, "data:image/png;base64,…", res.Debug.FoundURL)
}

func TestResolveMultimodalContentParts(t *testing.T) {
	content := []any{
		map[string]any{"type": "text", "text": "Done."},
		map[string]any{"type": "image_url", "image_url": map[string]any{"url": "https://parts.example.com/a.webp"}},
	}

	res := Default().Resolve(chatBody(t, content))

	assert.Equal(t, "https://parts.example.com/a.webp", res.URL)
}

func TestResolveDebugDescribesContent(t *testing.T) {
	content := "no links here"

	res := Default().Resolve(chatBody(t, content))

	assert.True(t, res.Debug.BodyIsJSON)
	assert.Equal(t, len(content), res.Debug.ContentLength)
	assert.Equal(t, content, res.Debug.ContentPreview)
	assert.Empty(t, res.Debug.Strategy)
}

func TestResolveCustomOptions(t *testing.T) {
	r := New(Options{
		CDNPrefixes:    []string{"http://media.example.org/files/"},
		JobStatusHosts: []string{"jobs.example.org"},
	})

	res := r.Resolve(chatBody(t, "https://thumb.example.com/t.png https://media.example.org/files/abc"))
	assert.Equal(t, "https://media.example.org/files/abc", res.URL)
	assert.Equal(t, StrategyCDNPattern, res.Debug.Strategy)

	res = r.Resolve(chatBody(t, "https://jobs.example.org/1 https://asyncdata.net/2"))
	assert.Equal(t, "https://asyncdata.net/2", res.URL)
}

func TestIntermediateURL(t *testing.T) {
	r := Default()

	assert.Equal(t, "https://asyncdata.net/web/9", r.IntermediateURL(chatBody(t, "see https://other.example.com/page and https://asyncdata.net/web/9")))
	assert.Equal(t, "https://other.example.com/page", r.IntermediateURL(chatBody(t, "https://cdn.example.com/a.png https://other.example.com/page")))
	assert.Empty(t, r.IntermediateURL(chatBody(t, "https://cdn.example.com/a.png")))
}

func TestResolveSecondaryGenerationsPath(t *testing.T) {
	r := Default()

	res := r.ResolveSecondary("https://asyncdata.net/web/1", `{"generations":[{"encodings":{"source":{"path":"https://videos.example.com/g/1.png"}}}]}`)
	assert.Equal(t, "https://videos.example.com/g/1.png", res.URL)
	assert.Equal(t, StrategyGenerations, res.Debug.Strategy)

	res = r.ResolveSecondary("https://asyncdata.net/web/1", `{"generations":[{"encodings":{"source":{"path":"/files/out.png"}}}]}`)
	assert.Equal(t, "https://asyncdata.net/files/out.png", res.URL)

	res = r.ResolveSecondary("https://asyncdata.net/web/1", `<html><a href="https://asyncdata.net/help">help</a></html>`)
	assert.False(t, res.Found())
}

func TestIsImageReference(t *testing.T) {
	assert.True(t, IsImageReference("https://a.example.com/x"))
	assert.True(t, IsImageReference("data:image/png;base64,AAAA"))
	assert.False(t, IsImageReference("/relative/x.png"))
	assert.False(t, IsImageReference("ftp://a.example.com/x.png"))
	assert.False(t, IsImageReference("https:///nohost"))
	assert.False(t, IsImageReference("data:nocomma"))
	assert.False(t, IsImageReference(""))
}

func TestResolveNonJSONErrorPageIsMiss(t *testing.T) {
	body := `<html><head><title>502 Bad Gateway</title></head><body>
<h1>502 Bad Gateway</h1>
<p>Performance &amp; security by <a href="https://www.cloudflare.com/5xx-error-landing">Cloudflare</a></p>
</body></html>`

	res := Default().Resolve(body)

	assert.False(t, res.Found())
	assert.False(t, res.Debug.BodyIsJSON)
	assert.Equal(t, []string{"https://www.cloudflare.com/5xx-error-landing"}, res.Debug.CandidateURLs)
}

func TestResolveNonJSONBodyKeepsImageStrategies(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		want     string
		strategy string
	}{
		{
			name:     "fenced json",
			body:     "result:\n```json\n{\"url\":\"https://files.example.com/r\"}\n```",
			want:     "https://files.example.com/r",
			strategy: StrategyEmbeddedJSON,
		},
		{
			name:     "cdn link",
			body:     "done https://pro.filesystem.site/cdn/abc",
			want:     "https://pro.filesystem.site/cdn/abc",
			strategy: StrategyCDNPattern,
		},
		{
			name:     "plain page link",
			body:     "see https://docs.example.com/help then https://cdn.example.com/a.webp",
			want:     "https://cdn.example.com/a.webp",
			strategy: StrategyImageExtension,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := Default().Resolve(tc.body)
			assert.Equal(t, tc.want, res.URL)
			assert.Equal(t, tc.strategy, res.Debug.Strategy)
		})
	}
}

func TestResolveFenceTagIsCaseInsensitive(t *testing.T) {
	for _, tag := range []string{"json", "JSON", "Json", "jSoN"} {
		t.Run(tag, func(t *testing.T) {
			content := "see https://docs.example.com/page\n```" + tag + "\n{\"url\":\"https://files.example.com/out\"}\n```"

			res := Default().Resolve(chatBody(t, content))

			assert.Equal(t, "https://files.example.com/out", res.URL)
			assert.Equal(t, StrategyEmbeddedJSON, res.Debug.Strategy)
		})
	}
}

func TestExtractURLsHandlesParentheses(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "balanced parens kept", text: "art https://en.example.org/wiki/Foo_(bar).png here", want: []string{"https://en.example.org/wiki/Foo_(bar).png"}},
		{name: "markdown link", text: "![img](https://cdn.example.com/a.png)", want: []string{"https://cdn.example.com/a.png"}},
		{name: "markdown link with balanced parens", text: "[x](https://en.example.org/wiki/Foo_(bar).png)", want: []string{"https://en.example.org/wiki/Foo_(bar).png"}},
		{name: "sentence in parens", text: "(see https://cdn.example.com/b.jpg).", want: []string{"https://cdn.example.com/b.jpg"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, extractURLs(tc.text))
		})
	}
}

func TestResolveKeepsBalancedParensInLink(t *testing.T) {
	res := Default().Resolve(chatBody(t, "Here: https://en.example.org/wiki/Foo_(bar).png"))

	assert.Equal(t, "https://en.example.org/wiki/Foo_(bar).png", res.URL)
	assert.Equal(t, StrategyImageExtension, res.Debug.Strategy)
}
