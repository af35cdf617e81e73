package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	base, err := url.Parse(ts.URL)
	require.NoError(t, err)
	return NewClient(base, ts.Client())
}

func TestClientVersion(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/version", r.URL.Path)
		json.NewEncoder(w).Encode(VersionResponse{Version: "1.2.3"})
	})

	v, err := c.Version(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", v)
}

func TestClientSchedule(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/schedule", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("steps"))
		json.NewEncoder(w).Encode(ScheduleResponse{Steps: 2, Timesteps: []int{1, 500}})
	})

	s, err := c.Schedule(t.Context(), 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 500}, s.Timesteps)
}

func TestClientStatusError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(ErrorResponse{Code: "INVALID_SCHEDULE", Error: "steps out of range"})
	})

	_, err := c.Schedule(t.Context(), 0)
	var se StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, "INVALID_SCHEDULE", se.Code)
	assert.Equal(t, "steps out of range", se.ErrorMessage)
}

func TestClientGenerateStream(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req GenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "a cat", req.Prompt)

		enc := json.NewEncoder(w)
		enc.Encode(GenerateResponse{Completed: 1, Total: 2})
		enc.Encode(GenerateResponse{Completed: 2, Total: 2})
		enc.Encode(GenerateResponse{Images: []string{"aGk="}, Seed: 42, Done: true})
	})

	stream := true
	var got []GenerateResponse
	err := c.Generate(t.Context(), &GenerateRequest{Prompt: "a cat", Stream: &stream}, func(r GenerateResponse) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].Completed)
	assert.True(t, got[2].Done)
	assert.Equal(t, int64(42), got[2].Seed)
}

func TestClientGenerateError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		json.NewEncoder(w).Encode(ErrorResponse{Code: "PROMPT_TOO_LONG", Error: "prompt too long"})
	})

	err := c.Generate(t.Context(), &GenerateRequest{Prompt: "x"}, func(GenerateResponse) error {
		t.Error("callback sollte nicht aufgerufen werden")
		return nil
	})
	var se StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "PROMPT_TOO_LONG", se.Code)
}

func TestStatusErrorMessage(t *testing.T) {
	assert.Equal(t, "400 Bad Request: kaputt", StatusError{Status: "400 Bad Request", ErrorMessage: "kaputt"}.Error())
	assert.Equal(t, "kaputt", StatusError{ErrorMessage: "kaputt"}.Error())
}
