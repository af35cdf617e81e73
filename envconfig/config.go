// config.go - Haupt-Konfigurationsfunktionen fuer den Stable-Diffusion-Server
//
// Dieses Modul enthaelt:
// - Host: Gibt Scheme und Host zurueck (SD_HOST)
// - AllowedOrigins: Gibt erlaubte Origins zurueck (SD_ORIGINS)
// - Models: Gibt das ONNX-Model-Verzeichnis zurueck (SD_MODELS)
// - Tokenizer: Gibt das Tokenizer-Verzeichnis zurueck (SD_TOKENIZER)
// - RunsDB: Gibt den Pfad der Run-Datenbank zurueck (SD_RUNS_DB)
// - LoadTimeout: Gibt Load-Timeout zurueck (SD_LOAD_TIMEOUT)
// - LogLevel: Gibt Log-Level zurueck (SD_DEBUG)
//
// Weitere Konfigurationen sind ausgelagert:
// - config_features.go: Sampling-Defaults, Runtime- und GPU-Variablen
// - config_utils.go: Utility-Funktionen und AsMap/Values
package envconfig

import (
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Host gibt Scheme und Host zurueck
// Konfigurierbar via SD_HOST
// Default: http://127.0.0.1:7860
func Host() *url.URL {
	defaultPort := "7860"

	s := strings.TrimSpace(Var("SD_HOST"))
	scheme, hostport, ok := strings.Cut(s, "://")
	switch {
	case !ok:
		scheme, hostport = "http", s
	case scheme == "http":
		defaultPort = "80"
	case scheme == "https":
		defaultPort = "443"
	}

	hostport, path, _ := strings.Cut(hostport, "/")
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = "127.0.0.1", defaultPort
		if ip := net.ParseIP(strings.Trim(hostport, "[]")); ip != nil {
			host = ip.String()
		} else if hostport != "" {
			host = hostport
		}
	}

	if n, err := strconv.ParseInt(port, 10, 32); err != nil || n > 65535 || n < 0 {
		slog.Warn("invalid port, using default", "port", port, "default", defaultPort)
		port = defaultPort
	}

	return &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, port),
		Path:   path,
	}
}

// AllowedOrigins gibt erlaubte Origins zurueck
// Konfigurierbar via SD_ORIGINS (komma-separiert)
// Enthaelt Standard-Origins fuer localhost
func AllowedOrigins() (origins []string) {
	if s := Var("SD_ORIGINS"); s != "" {
		origins = strings.Split(s, ",")
	}

	for _, origin := range []string{"localhost", "127.0.0.1", "0.0.0.0"} {
		origins = append(origins,
			fmt.Sprintf("http://%s", origin),
			fmt.Sprintf("https://%s", origin),
			fmt.Sprintf("http://%s", net.JoinHostPort(origin, "*")),
			fmt.Sprintf("https://%s", net.JoinHostPort(origin, "*")),
		)
	}

	origins = append(origins, "app://*", "file://*")
	return origins
}

// home gibt das Basisverzeichnis $HOME/.stablediffusion zurueck
func home() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	return filepath.Join(dir, ".stablediffusion")
}

// Models gibt das Verzeichnis mit text_encoder.onnx, diffusion_model.onnx
// und decoder.onnx zurueck
// Konfigurierbar via SD_MODELS
// Default: $HOME/.stablediffusion/models
func Models() string {
	if s := Var("SD_MODELS"); s != "" {
		return s
	}
	return filepath.Join(home(), "models")
}

// Tokenizer gibt das Verzeichnis mit vocab.json und merges.txt zurueck
// Konfigurierbar via SD_TOKENIZER
// Default: <Models()>/tokenizer
func Tokenizer() string {
	if s := Var("SD_TOKENIZER"); s != "" {
		return s
	}
	return filepath.Join(Models(), "tokenizer")
}

// RunsDB gibt den Pfad der SQLite-Datenbank fuer Runs zurueck
// Konfigurierbar via SD_RUNS_DB
// Default: $HOME/.stablediffusion/runs.db
func RunsDB() string {
	if s := Var("SD_RUNS_DB"); s != "" {
		return s
	}
	return filepath.Join(home(), "runs.db")
}

// LoadTimeout gibt das Timeout fuer das Laden der Modelle zurueck
// Konfigurierbar via SD_LOAD_TIMEOUT
// 0 oder negative Werte = unendlich
// Default: 5 Minuten
func LoadTimeout() (loadTimeout time.Duration) {
	loadTimeout = 5 * time.Minute
	if s := Var("SD_LOAD_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			loadTimeout = d
		} else if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			loadTimeout = time.Duration(n) * time.Second
		}
	}

	if loadTimeout <= 0 {
		return time.Duration(math.MaxInt64)
	}

	return loadTimeout
}

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via SD_DEBUG
// Werte: 0/false = INFO (Default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("SD_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
