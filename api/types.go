// Package api definiert die Request/Response Types der Bildgenerierungs-API
// und einen Client dafuer.
package api

import (
	"fmt"
	"time"
)

// StatusError ist ein Fehler mit HTTP-Statuscode und API-Fehlercode
type StatusError struct {
	StatusCode   int
	Status       string
	Code         string `json:"code,omitempty"`
	ErrorMessage string `json:"error"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		// this should not happen
		return "something went wrong, please see the server logs for details"
	}
}

// ErrorResponse ist der JSON-Body aller Fehlerantworten
type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// ============================================================================
// Generate Endpoint Types
// ============================================================================

// GenerateRequest beschreibt eine Bildgenerierung.
//
// POST /api/generate
type GenerateRequest struct {
	// Prompt ist der Text, der das Bild beschreibt
	Prompt string `json:"prompt"`

	// Width und Height in Pixeln, Vielfache von 8 (Default 512)
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// Steps ist die Anzahl der Sampling-Schritte (Default SD_STEPS)
	Steps int `json:"steps,omitempty"`

	// Guidance ist der Classifier-Free-Guidance-Faktor (Default SD_GUIDANCE).
	// Zeiger, weil 0 ein gueltiger Wert ist.
	Guidance *float64 `json:"guidance,omitempty"`

	// Temperature skaliert den Rauschterm (Default 1)
	Temperature *float64 `json:"temperature,omitempty"`

	// Seed fuer das Start-Latent, ohne Angabe wird einer gezogen
	Seed *int64 `json:"seed,omitempty"`

	// BatchSize ist die Anzahl Bilder pro Request (Default 1)
	BatchSize int `json:"batch_size,omitempty"`

	// Format der zurueckgegebenen Bilder: png (Default), jpeg, bmp, tiff
	Format string `json:"format,omitempty"`

	// Stream liefert Fortschrittsmeldungen als NDJSON (Default true)
	Stream *bool `json:"stream,omitempty"`
}

// GenerateResponse ist die Antwort auf einen GenerateRequest. Bei Streaming
// werden Fortschrittsmeldungen mit Done=false gesendet, die letzte Nachricht
// traegt die Bilder.
type GenerateResponse struct {
	// Images sind die Base64-kodierten Bilder
	Images []string `json:"images,omitempty"`

	Format    string `json:"format,omitempty"`
	Seed      int64  `json:"seed"`
	Steps     int    `json:"steps,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Completed int    `json:"completed,omitempty"`
	Total     int    `json:"total,omitempty"`
	Done      bool   `json:"done"`

	TotalDuration time.Duration `json:"total_duration,omitempty"`
}

// ============================================================================
// Schedule Endpoint Types
// ============================================================================

// ScheduleResponse beschreibt den unterabgetasteten Zeitplan.
//
// GET /api/schedule?steps=N
type ScheduleResponse struct {
	Steps      int       `json:"steps"`
	Timesteps  []int     `json:"timesteps"`
	Alphas     []float64 `json:"alphas"`
	AlphasPrev []float64 `json:"alphas_prev"`
}

// VersionResponse ist die Antwort von GET /api/version
type VersionResponse struct {
	Version string `json:"version"`
}
