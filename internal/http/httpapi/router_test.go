package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtside/internal/http/handlers"
	"courtside/internal/imagefetch"
	"courtside/internal/imagegen"
)

type stubGenerator struct{}

func (stubGenerator) Validate(req imagegen.GenerateRequest) error {
	_, err := req.Images()
	return err
}

func (stubGenerator) Generate(context.Context, imagegen.GenerateRequest) (*imagegen.Outcome, error) {
	return &imagegen.Outcome{Passthrough: true, Raw: `{"urls":["https://cdn.example.com/a.png"]}`}, nil
}

func newTestRouter() http.Handler {
	app := handlers.NewApp(handlers.Options{
		Generator: stubGenerator{},
		Fetcher:   imagefetch.New(imagefetch.Options{}),
	})
	return NewRouter(app, RouterOptions{Logger: zerolog.Nop(), CORSAllowedOrigins: []string{"*"}})
}

func TestRouterHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouterChat(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"image":"data:image/png;base64,AA"}`))
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"urls":["https://cdn.example.com/a.png"]}`, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouterMethodAndPath(t *testing.T) {
	router := newTestRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/proxy", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
