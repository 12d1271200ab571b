package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"courtside/internal/imagegen"
	"courtside/internal/middleware"
)

// keepAliveFiller is written before the payload when CHAT_KEEPALIVE is on.
// Leading whitespace is valid JSON padding.
var keepAliveFiller = []byte("  ")

type chatError struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

// Chat accepts {image} or {imageA, imageB}, calls the upstream once and
// answers with either the raw upstream body (passthrough) or the resolved
// result. Upstream failures are reported in-band with status 200.
func (a *App) Chat(w http.ResponseWriter, r *http.Request) {
	logger := a.Logger.With().Str("request_id", middleware.RequestIDFromContext(r.Context())).Logger()

	var req imagegen.GenerateRequest
	body := http.MaxBytesReader(w, r.Body, a.MaxRequestBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "Request too large")
			return
		}
		logger.Warn().Err(err).Msg("chat: decode request")
		a.error(w, http.StatusInternalServerError, "Request failed")
		return
	}
	if err := a.Generator.Validate(req); err != nil {
		a.inputError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if a.KeepAlive {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(keepAliveFiller)
		if err := http.NewResponseController(w).Flush(); err != nil {
			logger.Debug().Err(err).Msg("chat: flush keep-alive")
		}
	}

	out, err := a.Generator.Generate(r.Context(), req)
	if err != nil {
		logger.Error().Err(err).Msg("chat: generation failed")
		_ = json.NewEncoder(w).Encode(chatError{Error: true, Message: err.Error()})
		return
	}
	if out.Passthrough {
		_, _ = w.Write([]byte(out.Raw))
		return
	}

	ev := logger.Info()
	if out.Result.ImageURL == nil {
		ev = logger.Warn()
	}
	ev.Str("strategy", out.Result.Debug.Strategy).
		Bool("found", out.Result.ImageURL != nil).
		Bool("inline", out.Result.Debug.Inline).
		Msg("chat: resolved")
	_ = json.NewEncoder(w).Encode(out.Result)
}
