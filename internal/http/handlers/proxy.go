package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"courtside/internal/domain"
	"courtside/internal/imagefetch"
)

// Proxy streams a remote image back to the browser with hotlink-friendly
// request headers. Answers are plain text on failure.
func (a *App) Proxy(w http.ResponseWriter, r *http.Request) {
	target := strings.TrimSpace(r.URL.Query().Get("url"))
	if target == "" {
		a.text(w, http.StatusBadRequest, "Missing url parameter")
		return
	}

	payload, err := a.Fetcher.Fetch(r.Context(), target)
	if err != nil {
		if statusErr, ok := imagefetch.IsStatusError(err); ok {
			a.text(w, http.StatusBadGateway, fmt.Sprintf("Upstream error: %d", statusErr.StatusCode))
			return
		}
		if errors.Is(err, domain.ErrUnsafeURL) || errors.Is(err, domain.ErrMissingURL) {
			a.text(w, http.StatusBadRequest, "Invalid url parameter")
			return
		}
		a.Logger.Warn().Err(err).Str("url", target).Msg("proxy: fetch failed")
		a.text(w, http.StatusInternalServerError, "Proxy error: "+err.Error())
		return
	}

	contentType := payload.ContentType
	if contentType == "" {
		contentType = imagefetch.DefaultContentType
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload.Data)
}
