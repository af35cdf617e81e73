// routes_generate.go - POST /api/generate
// Enthaelt: GenerateHandler, Options-Aufbau, Bild-Kodierung, NDJSON-Streaming
package server

import (
	"bytes"
	"cmp"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/exp/rand"

	"github.com/ollama/stablediffusion/api"
	"github.com/ollama/stablediffusion/diffusion"
	"github.com/ollama/stablediffusion/envconfig"
	"github.com/ollama/stablediffusion/imageio"
	"github.com/ollama/stablediffusion/store"
)

// GenerateHandler fuehrt eine Generierung aus. Mit stream=true werden
// Fortschrittsmeldungen als NDJSON gesendet.
func (s *Server) GenerateHandler(c *gin.Context) {
	var req api.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}

	opts, format, err := requestOptions(req)
	if err != nil {
		writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := s.sem.Acquire(ctx, 1); err != nil {
		writeError(c, err)
		return
	}
	defer s.sem.Release(1)

	if req.Stream != nil && !*req.Stream {
		resp, err := s.generate(ctx, opts, format)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	ch := make(chan any)
	go func() {
		defer close(ch)
		send := func(v any) bool {
			select {
			case ch <- v:
				return true
			case <-ctx.Done():
				return false
			}
		}

		opts.Progress = func(step, total int) {
			send(api.GenerateResponse{Seed: opts.Seed, Completed: step, Total: total})
		}
		resp, err := s.generate(ctx, opts, format)
		if err != nil {
			status, body := errorResponse(err)
			send(streamError{status: status, body: body})
			return
		}
		send(resp)
	}()

	streamResponse(c, ch)
}

// requestOptions baut diffusion.Options aus dem Request. Fehlende Werte
// kommen aus DefaultOptions und der Umgebung.
func requestOptions(req api.GenerateRequest) (diffusion.Options, imageio.ImageFormat, error) {
	opts := diffusion.DefaultOptions()
	opts.Prompt = req.Prompt
	opts.Width = cmp.Or(req.Width, opts.Width)
	opts.Height = cmp.Or(req.Height, opts.Height)
	opts.Steps = cmp.Or(req.Steps, int(envconfig.Steps()))
	opts.BatchSize = cmp.Or(req.BatchSize, opts.BatchSize)
	opts.GuidanceScale = envconfig.Guidance()
	opts.ParallelGuidance = envconfig.ParallelGuidance()
	if req.Guidance != nil {
		opts.GuidanceScale = *req.Guidance
	}
	if req.Temperature != nil {
		opts.Temperature = *req.Temperature
	}
	if req.Seed != nil {
		opts.Seed = *req.Seed
	} else {
		opts.Seed = rand.Int63()
	}

	format := imageio.ParseFormat(cmp.Or(req.Format, string(imageio.FormatPNG)))
	if format == imageio.FormatUnknown {
		return opts, format, fmt.Errorf("%w: %s", imageio.ErrUnsupportedFormat, req.Format)
	}

	return opts, format, opts.Validate()
}

// generate fuehrt die Pipeline aus und kodiert die Bilder
func (s *Server) generate(ctx context.Context, opts diffusion.Options, format imageio.ImageFormat) (api.GenerateResponse, error) {
	result, err := s.pipeline.Generate(ctx, opts)
	if err != nil {
		return api.GenerateResponse{}, err
	}

	images := imageio.ToImages(result.Images)
	encoded := make([]string, len(images))
	for i, img := range images {
		var buf bytes.Buffer
		if err := imageio.Encode(&buf, img, format); err != nil {
			return api.GenerateResponse{}, err
		}
		encoded[i] = base64.StdEncoding.EncodeToString(buf.Bytes())
	}

	slog.Info("generate", "steps", opts.Steps, "size", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"batch", opts.BatchSize, "seed", result.Seed, "duration", result.Duration)

	s.record(ctx, opts, result.Duration)

	return api.GenerateResponse{
		Images:        encoded,
		Format:        format.String(),
		Seed:          result.Seed,
		Steps:         opts.Steps,
		Width:         opts.Width,
		Height:        opts.Height,
		Done:          true,
		TotalDuration: result.Duration,
	}, nil
}

// record protokolliert den Lauf, Fehler werden nur geloggt
func (s *Server) record(ctx context.Context, opts diffusion.Options, d time.Duration) {
	if s.runs == nil {
		return
	}
	_, err := s.runs.Record(ctx, store.Run{
		Prompt:      opts.Prompt,
		Seed:        opts.Seed,
		Steps:       opts.Steps,
		Guidance:    opts.GuidanceScale,
		Temperature: opts.Temperature,
		Width:       opts.Width,
		Height:      opts.Height,
		Batch:       opts.BatchSize,
		Duration:    d,
		Output:      "api",
	})
	if err != nil {
		slog.Warn("failed to record run", "error", err)
	}
}

type streamError struct {
	status int
	body   api.ErrorResponse
}

// streamResponse schreibt Werte aus ch als NDJSON. Ein Fehler vor dem
// ersten Byte wird als normale JSON-Fehlerantwort gesendet.
func streamResponse(c *gin.Context, ch chan any) {
	c.Header("Content-Type", "application/x-ndjson")
	c.Stream(func(w io.Writer) bool {
		val, ok := <-ch
		if !ok {
			return false
		}

		if e, ok := val.(streamError); ok {
			if !c.Writer.Written() {
				c.Header("Content-Type", "application/json")
				c.JSON(e.status, e.body)
			} else if err := json.NewEncoder(c.Writer).Encode(e.body); err != nil {
				slog.Error("streamResponse failed to encode json error", "error", err)
			}
			return false
		}

		bts, err := json.Marshal(val)
		if err != nil {
			slog.Info(fmt.Sprintf("streamResponse: json.Marshal failed with %s", err))
			return false
		}

		bts = append(bts, '\n')
		if _, err := w.Write(bts); err != nil {
			slog.Info(fmt.Sprintf("streamResponse: w.Write failed with %s", err))
			return false
		}

		return true
	})
}
