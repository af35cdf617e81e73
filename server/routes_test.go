package server

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/stablediffusion/api"
	"github.com/ollama/stablediffusion/diffusion/difftest"
	"github.com/ollama/stablediffusion/store"
	"github.com/ollama/stablediffusion/version"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testRouter(t *testing.T, runs *store.Store) http.Handler {
	t.Helper()
	t.Setenv("SD_STEPS", "2")
	s := NewServer(difftest.Pipeline(), runs)
	h, err := s.GenerateRoutes()
	require.NoError(t, err)
	return h
}

// responseRecorder erfuellt http.CloseNotifier fuer gin's Context.Stream
type responseRecorder struct {
	*httptest.ResponseRecorder
	http.CloseNotifier
}

func NewRecorder() *responseRecorder {
	return &responseRecorder{
		ResponseRecorder: httptest.NewRecorder(),
	}
}

func (t *responseRecorder) CloseNotify() <-chan bool {
	return make(chan bool)
}

func doRaw(h http.Handler, method, path string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	w := NewRecorder()
	h.ServeHTTP(w, req)
	return w.ResponseRecorder
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	return doRaw(h, method, path, &buf)
}

func ptr[T any](v T) *T { return &v }

func TestRootAndVersion(t *testing.T) {
	h := testRouter(t, nil)

	w := doJSON(t, h, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Stable Diffusion is running", w.Body.String())

	w = doJSON(t, h, http.MethodGet, "/api/version", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var v api.VersionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, version.Version, v.Version)
}

func TestScheduleHandler(t *testing.T) {
	h := testRouter(t, nil)

	w := doJSON(t, h, http.MethodGet, "/api/schedule?steps=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp api.ScheduleResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Steps)
	assert.Equal(t, []int{1, 500}, resp.Timesteps)
	assert.Equal(t, 1.0, resp.AlphasPrev[0])
	assert.Equal(t, resp.Alphas[0], resp.AlphasPrev[1])

	// Default aus SD_STEPS
	w = doJSON(t, h, http.MethodGet, "/api/schedule", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Steps)
}

func TestScheduleHandlerErrors(t *testing.T) {
	h := testRouter(t, nil)
	for _, q := range []string{"0", "1001", "abc"} {
		w := doJSON(t, h, http.MethodGet, "/api/schedule?steps="+q, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, "steps=%s", q)

		var e api.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
		assert.Equal(t, "INVALID_SCHEDULE", e.Code)
	}
}

func TestGenerateHandler(t *testing.T) {
	runs, err := store.Open(filepath.Join(t.TempDir(), "runs.sqlite"))
	require.NoError(t, err)
	defer runs.Close()

	h := testRouter(t, runs)
	w := doJSON(t, h, http.MethodPost, "/api/generate", api.GenerateRequest{
		Prompt:    "a red cat",
		Width:     64,
		Height:    64,
		Seed:      ptr(int64(42)),
		BatchSize: 2,
		Stream:    ptr(false),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp api.GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Done)
	assert.Equal(t, int64(42), resp.Seed)
	assert.Equal(t, 2, resp.Steps)
	assert.Equal(t, "png", resp.Format)
	require.Len(t, resp.Images, 2)

	data, err := base64.StdEncoding.DecodeString(resp.Images[0])
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 64, img.Bounds().Dy())

	recorded, err := runs.List(t.Context(), 0)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, "a red cat", recorded[0].Prompt)
	assert.Equal(t, int64(42), recorded[0].Seed)
	assert.Equal(t, 2, recorded[0].Batch)
}

func TestGenerateHandlerDeterministic(t *testing.T) {
	h := testRouter(t, nil)
	req := api.GenerateRequest{Prompt: "a cat", Width: 16, Height: 16, Seed: ptr(int64(7)), Guidance: ptr(0.0), Stream: ptr(false)}

	var first, second api.GenerateResponse
	require.NoError(t, json.Unmarshal(doJSON(t, h, http.MethodPost, "/api/generate", req).Body.Bytes(), &first))
	require.NoError(t, json.Unmarshal(doJSON(t, h, http.MethodPost, "/api/generate", req).Body.Bytes(), &second))
	require.Len(t, first.Images, 1)
	assert.Equal(t, first.Images, second.Images, "gleicher Seed sollte gleiche Bilder liefern")
}

func TestGenerateHandlerStream(t *testing.T) {
	h := testRouter(t, nil)
	w := doJSON(t, h, http.MethodPost, "/api/generate", api.GenerateRequest{
		Prompt: "a cat",
		Width:  16,
		Height: 16,
		Steps:  3,
		Format: "jpeg",
		Stream: ptr(true),
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))

	msgs := readStream(t, w.Body)
	require.Len(t, msgs, 4)
	for i := range 3 {
		assert.Equal(t, i+1, msgs[i].Completed)
		assert.Equal(t, 3, msgs[i].Total)
		assert.False(t, msgs[i].Done)
	}
	assert.True(t, msgs[3].Done)
	assert.Equal(t, "jpeg", msgs[3].Format)
	assert.Len(t, msgs[3].Images, 1)
}

// readStream dekodiert eine NDJSON-Antwort Zeile fuer Zeile
func readStream(t *testing.T, r io.Reader) []api.GenerateResponse {
	t.Helper()
	var msgs []api.GenerateResponse
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, 1<<20)
	for scanner.Scan() {
		var m api.GenerateResponse
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		msgs = append(msgs, m)
	}
	require.NoError(t, scanner.Err())
	return msgs
}

func TestGenerateHandlerStreamsByDefault(t *testing.T) {
	h := testRouter(t, nil)
	w := doJSON(t, h, http.MethodPost, "/api/generate", api.GenerateRequest{
		Prompt: "a cat",
		Width:  16,
		Height: 16,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"), "ohne stream-Feld sollte gestreamt werden")

	// SD_STEPS=2: zwei Fortschrittsmeldungen und die finale Antwort
	msgs := readStream(t, w.Body)
	require.Len(t, msgs, 3)
	assert.Equal(t, 1, msgs[0].Completed)
	assert.Equal(t, 2, msgs[1].Completed)
	assert.False(t, msgs[1].Done)
	assert.True(t, msgs[2].Done)
	assert.Len(t, msgs[2].Images, 1)
}

func TestGenerateHandlerErrors(t *testing.T) {
	h := testRouter(t, nil)
	long := strings.Repeat("word ", 80)

	tests := []struct {
		name   string
		req    any
		status int
		code   string
	}{
		{"kaputtes json", "{", http.StatusBadRequest, "INVALID_REQUEST"},
		{"prompt zu lang", api.GenerateRequest{Prompt: long, Width: 16, Height: 16}, http.StatusBadRequest, "PROMPT_TOO_LONG"},
		{"schritte", api.GenerateRequest{Prompt: "x", Width: 16, Height: 16, Steps: 1001}, http.StatusBadRequest, "INVALID_SCHEDULE"},
		{"breite", api.GenerateRequest{Prompt: "x", Width: 15, Height: 16}, http.StatusBadRequest, "INVALID_OPTIONS"},
		{"guidance", api.GenerateRequest{Prompt: "x", Width: 16, Height: 16, Guidance: ptr(-1.0)}, http.StatusBadRequest, "INVALID_OPTIONS"},
		{"format", api.GenerateRequest{Prompt: "x", Width: 16, Height: 16, Format: "gif"}, http.StatusBadRequest, "UNSUPPORTED_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w *httptest.ResponseRecorder
			if s, ok := tt.req.(string); ok {
				w = doRaw(h, http.MethodPost, "/api/generate", strings.NewReader(s))
			} else {
				w = doJSON(t, h, http.MethodPost, "/api/generate", tt.req)
			}
			require.Equal(t, tt.status, w.Code, w.Body.String())

			var e api.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
			assert.Equal(t, tt.code, e.Code)
			assert.NotEmpty(t, e.Error)
		})
	}
}

func TestGenerateHandlerStreamError(t *testing.T) {
	h := testRouter(t, nil)
	long := strings.Repeat("word ", 80)
	w := doJSON(t, h, http.MethodPost, "/api/generate", api.GenerateRequest{
		Prompt: long, Width: 16, Height: 16, Stream: ptr(true),
	})
	// Fehler vor dem ersten Byte: normale JSON-Fehlerantwort
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var e api.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	assert.Equal(t, "PROMPT_TOO_LONG", e.Code)
}
