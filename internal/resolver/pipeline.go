package resolver

import (
	"context"
	"fmt"
	"strings"

	"courtside/internal/domain"
	"courtside/internal/imagefetch"
	"courtside/internal/infra"
)

// Dialect selects how an upstream reports its images. It is deployment
// configuration; the pipeline never guesses it from a response.
type Dialect string

const (
	// DialectPassthrough forwards the upstream body untouched.
	DialectPassthrough Dialect = "passthrough"
	// DialectEmbedded resolves the image from the chat response itself.
	DialectEmbedded Dialect = "embedded"
	// DialectTwoStep follows an intermediate job URL when the chat response
	// does not carry a final image.
	DialectTwoStep Dialect = "twostep"
)

// ParseDialect maps a configuration value onto a Dialect.
func ParseDialect(value string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(value))); d {
	case DialectPassthrough, DialectEmbedded, DialectTwoStep:
		return d, nil
	case "":
		return DialectEmbedded, nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedDialect, value)
	}
}

// Fetcher downloads a remote resource. *imagefetch.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*imagefetch.Payload, error)
}

// Result is the normalized answer returned to the browser. ImageURL is nil
// when nothing could be resolved.
type Result struct {
	ImageURL    *string `json:"imageUrl"`
	OriginalURL string  `json:"originalUrl,omitempty"`
	Debug       Debug   `json:"debug"`
}

// PipelineOptions wires a Pipeline.
type PipelineOptions struct {
	Resolver *Resolver
	Fetcher  Fetcher
	Dialect  Dialect
	// Inline replaces resolved http(s) URLs with data URIs so the browser
	// never hits a hotlink-protected CDN.
	Inline bool
	Logger *infra.Logger
}

// Pipeline runs the strategy chain and the optional network follow-ups: the
// intermediate job fetch and the inline download. Both follow-ups degrade to
// the best answer so far when they fail.
type Pipeline struct {
	resolver *Resolver
	fetcher  Fetcher
	dialect  Dialect
	inline   bool
	logger   *infra.Logger
}

// NewPipeline builds a Pipeline. A nil Resolver means Default(); a nil
// Fetcher disables every network follow-up.
func NewPipeline(opts PipelineOptions) *Pipeline {
	r := opts.Resolver
	if r == nil {
		r = Default()
	}
	dialect := opts.Dialect
	if dialect == "" {
		dialect = DialectEmbedded
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &Pipeline{
		resolver: r,
		fetcher:  opts.Fetcher,
		dialect:  dialect,
		inline:   opts.Inline,
		logger:   logger,
	}
}

// Dialect reports the configured dialect.
func (p *Pipeline) Dialect() Dialect {
	return p.dialect
}

// Run resolves body into a Result. It never fails; misses and degraded
// follow-ups are described in Result.Debug.
func (p *Pipeline) Run(ctx context.Context, body string) Result {
	res := p.resolver.Resolve(body)

	if p.dialect == DialectTwoStep && p.fetcher != nil && !p.resolver.IsFinalImage(res.URL) {
		if next := p.resolver.IntermediateURL(body); next != "" {
			res = p.followIntermediate(ctx, res, next)
		}
	}

	out := Result{Debug: res.Debug}
	if !res.Found() {
		p.logger.Warn().
			Int("content_length", res.Debug.ContentLength).
			Strs("candidates", res.Debug.CandidateURLs).
			Msg("resolver: no image reference found")
		return out
	}

	final := res.URL
	if p.inline && p.fetcher != nil && !isDataURI(final) {
		payload, err := p.fetcher.Fetch(ctx, final)
		if err != nil {
			out.Debug.DownloadError = err.Error()
			p.logger.Warn().Err(err).Str("url", final).Msg("resolver: inline download failed, returning url")
		} else {
			out.OriginalURL = final
			out.Debug.Inline = true
			final = payload.DataURI()
		}
	}
	out.ImageURL = &final

	p.logger.Info().
		Str("strategy", out.Debug.Strategy).
		Str("url", res.Debug.FoundURL).
		Bool("inline", out.Debug.Inline).
		Msg("resolver: image resolved")
	return out
}

func (p *Pipeline) followIntermediate(ctx context.Context, first Resolution, next string) Resolution {
	debug := first.Debug
	debug.IntermediateURL = next

	payload, err := p.fetcher.Fetch(ctx, next)
	if err != nil {
		debug.SecondaryError = err.Error()
		if statusErr, ok := imagefetch.IsStatusError(err); ok {
			debug.SecondaryStatus = statusErr.StatusCode
		}
		p.logger.Warn().Err(err).Str("url", next).Msg("resolver: intermediate fetch failed")
		return Resolution{URL: first.URL, Debug: debug}
	}
	debug.SecondaryStatus = payload.StatusCode

	// The job URL already serves the image itself.
	if strings.HasPrefix(strings.ToLower(payload.ContentType), "image/") {
		debug.Strategy = "twostep:" + StrategyDirectImage
		debug.FoundURL = next
		return Resolution{URL: next, Debug: debug}
	}

	second := p.resolver.ResolveSecondary(next, string(payload.Data))
	if !second.Found() {
		p.logger.Debug().Str("url", next).Msg("resolver: intermediate body held no image")
		return Resolution{URL: first.URL, Debug: debug}
	}
	debug.Strategy = "twostep:" + second.Debug.Strategy
	debug.FoundURL = second.Debug.FoundURL
	return Resolution{URL: second.URL, Debug: debug}
}
