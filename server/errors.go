// MODUL: errors
// ZWECK: Abbildung von Sampler-Fehlern auf HTTP-Status und API-Codes
// INPUT: Fehler aus diffusion, imageio und dem Request-Binding
// OUTPUT: JSON-formatierte Fehler-Responses
// NEBENEFFEKTE: HTTP-Responses schreiben
// ABHAENGIGKEITEN: gin-gonic/gin
// HINWEISE: Unbekannte Fehler werden als INTERNAL_ERROR gemeldet

package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ollama/stablediffusion/api"
	"github.com/ollama/stablediffusion/diffusion"
	"github.com/ollama/stablediffusion/imageio"
)

// ErrInvalidRequest wird bei nicht lesbarem Request-Body geworfen
var ErrInvalidRequest = errors.New("invalid request")

type errorMapping struct {
	err    error
	status int
	code   string
}

// Reihenfolge ist relevant: der erste Treffer gewinnt
var errorCodes = []errorMapping{
	{ErrInvalidRequest, http.StatusBadRequest, "INVALID_REQUEST"},
	{diffusion.ErrPromptTooLong, http.StatusBadRequest, "PROMPT_TOO_LONG"},
	{diffusion.ErrInvalidSchedule, http.StatusBadRequest, "INVALID_SCHEDULE"},
	{diffusion.ErrInvalidOptions, http.StatusBadRequest, "INVALID_OPTIONS"},
	{imageio.ErrUnsupportedFormat, http.StatusBadRequest, "UNSUPPORTED_FORMAT"},
	{diffusion.ErrNumericInstability, http.StatusInternalServerError, "NUMERIC_INSTABILITY"},
	{diffusion.ErrShapeMismatch, http.StatusInternalServerError, "SHAPE_MISMATCH"},
	{diffusion.ErrInvalidEmbedding, http.StatusInternalServerError, "INVALID_EMBEDDING"},
	{context.Canceled, 499, "CANCELED"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "TIMEOUT"},
}

// classify gibt HTTP-Status und API-Code fuer err zurueck
func classify(err error) (int, string) {
	for _, m := range errorCodes {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

// errorResponse erzeugt den JSON-Body fuer err
func errorResponse(err error) (int, api.ErrorResponse) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		slog.Error("generate failed", "code", code, "error", err)
	}
	return status, api.ErrorResponse{Code: code, Error: err.Error()}
}

// writeError schreibt err als JSON Response
func writeError(c *gin.Context, err error) {
	status, body := errorResponse(err)
	c.AbortWithStatusJSON(status, body)
}
