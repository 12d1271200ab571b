package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"courtside/internal/domain"
	"courtside/internal/imagefetch"
	"courtside/internal/imagegen"
	"courtside/internal/infra"
)

const defaultMaxRequestBytes = 16 << 20

// Generator is the slice of imagegen.Service the handlers depend on.
type Generator interface {
	Validate(req imagegen.GenerateRequest) error
	Generate(ctx context.Context, req imagegen.GenerateRequest) (*imagegen.Outcome, error)
}

// ImageFetcher downloads remote images for the proxy endpoint.
type ImageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*imagefetch.Payload, error)
}

// Options wires an App.
type Options struct {
	Generator       Generator
	Fetcher         ImageFetcher
	Logger          *infra.Logger
	MaxRequestBytes int64
	KeepAlive       bool
}

type App struct {
	Generator       Generator
	Fetcher         ImageFetcher
	Logger          *infra.Logger
	MaxRequestBytes int64
	KeepAlive       bool
}

func NewApp(opts Options) *App {
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	maxBytes := opts.MaxRequestBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxRequestBytes
	}
	return &App{
		Generator:       opts.Generator,
		Fetcher:         opts.Fetcher,
		Logger:          logger,
		MaxRequestBytes: maxBytes,
		KeepAlive:       opts.KeepAlive,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, message string) {
	a.json(w, code, map[string]string{"message": message})
}

func (a *App) text(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(message))
}

// inputError maps validation failures to a 4xx answer.
func (a *App) inputError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrImageRequired):
		a.error(w, http.StatusBadRequest, "Image is required")
	case errors.Is(err, domain.ErrInvalidImage):
		a.error(w, http.StatusBadRequest, "Image must be a data URL or an http(s) URL")
	default:
		a.error(w, http.StatusInternalServerError, "Request failed")
	}
}
