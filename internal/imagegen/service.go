package imagegen

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"courtside/internal/domain"
	"courtside/internal/infra"
	"courtside/internal/providers/chat"
	"courtside/internal/resolver"
)

// Options wires a Service.
type Options struct {
	Invoker  Invoker
	Pipeline *resolver.Pipeline
	Prompts  Prompts
	Model    string
	// Timeout bounds the whole round trip: upstream call, intermediate fetch
	// and inline download.
	Timeout time.Duration
	Logger  *infra.Logger
}

// Service turns an inbound request into an upstream call and, unless the
// deployment forwards bodies verbatim, a resolved image reference.
type Service struct {
	invoker  Invoker
	pipeline *resolver.Pipeline
	prompts  Prompts
	model    string
	timeout  time.Duration
	logger   *infra.Logger
}

// NewService constructs a Service. A nil pipeline means the embedded dialect
// without network follow-ups.
func NewService(opts Options) *Service {
	pipeline := opts.Pipeline
	if pipeline == nil {
		pipeline = resolver.NewPipeline(resolver.PipelineOptions{Logger: opts.Logger})
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &Service{
		invoker:  opts.Invoker,
		pipeline: pipeline,
		prompts:  opts.Prompts,
		model:    opts.Model,
		timeout:  opts.Timeout,
		logger:   logger,
	}
}

// Validate checks the request before any long-running work starts.
func (s *Service) Validate(req GenerateRequest) error {
	_, err := req.Images()
	return err
}

// Generate runs one generation. Validation failures return domain input
// errors; upstream transport failures are wrapped in
// domain.ErrProviderFailure, as are non-2xx answers whose body is not JSON.
// A response without an image is not an error.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*Outcome, error) {
	images, err := req.Images()
	if err != nil {
		return nil, err
	}
	if s.invoker == nil {
		return nil, fmt.Errorf("%w: no upstream configured", domain.ErrProviderFailure)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := time.Now()
	resp, err := s.invoker.Complete(ctx, chat.Request{
		Prompt: BuildInstruction(req, s.prompts),
		Images: images,
		Model:  s.model,
	})
	if err != nil {
		s.logger.Error().Err(err).Int("images", len(images)).Msg("imagegen: upstream call failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}
	s.logger.Info().
		Int("status", resp.StatusCode).
		Int("images", len(images)).
		Int("body_bytes", len(resp.Body)).
		Dur("elapsed", time.Since(started)).
		Msg("imagegen: upstream responded")

	// Gateways answer failures with HTML error pages; those carry no image.
	if resp.StatusCode/100 != 2 && !gjson.Valid(strings.TrimSpace(resp.Body)) {
		s.logger.Error().Int("status", resp.StatusCode).Msg("imagegen: upstream returned a non-JSON error")
		return nil, fmt.Errorf("%w: upstream status %d with non-JSON body", domain.ErrProviderFailure, resp.StatusCode)
	}

	if s.pipeline.Dialect() == resolver.DialectPassthrough {
		return &Outcome{Passthrough: true, Raw: resp.Body}, nil
	}

	result := s.pipeline.Run(ctx, resp.Body)
	result.Debug.UpstreamStatus = resp.StatusCode
	return &Outcome{Result: &result}, nil
}
