package envconfig

import (
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestHost(t *testing.T) {
	cases := map[string]struct {
		value  string
		expect string
	}{
		"empty":               {"", "127.0.0.1:7860"},
		"only address":        {"1.2.3.4", "1.2.3.4:7860"},
		"only port":           {":1234", ":1234"},
		"address and port":    {"1.2.3.4:1234", "1.2.3.4:1234"},
		"hostname":            {"example.com", "example.com:7860"},
		"hostname and port":   {"example.com:1234", "example.com:1234"},
		"zero port":           {":0", ":0"},
		"too large port":      {":66000", ":7860"},
		"too small port":      {":-1", ":7860"},
		"ipv6 localhost":      {"[::1]", "[::1]:7860"},
		"ipv6 no brackets":    {"::1", "[::1]:7860"},
		"ipv6 + port":         {"[::1]:1337", "[::1]:1337"},
		"extra space":         {" 1.2.3.4 ", "1.2.3.4:7860"},
		"extra quotes":        {"\"1.2.3.4\"", "1.2.3.4:7860"},
		"extra single quotes": {"'1.2.3.4'", "1.2.3.4:7860"},
		"http scheme":         {"http://1.2.3.4", "1.2.3.4:80"},
		"https scheme":        {"https://example.com", "example.com:443"},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("SD_HOST", tt.value)
			if host := Host(); host.Host != tt.expect {
				t.Errorf("Host = %s, erwartet %s", host.Host, tt.expect)
			}
		})
	}
}

func TestOrigins(t *testing.T) {
	t.Setenv("SD_ORIGINS", "http://10.0.0.1,https://example.com")
	origins := AllowedOrigins()
	assert.Equal(t, "http://10.0.0.1", origins[0])
	assert.Equal(t, "https://example.com", origins[1])
	assert.Contains(t, origins, "http://localhost:*")
	assert.Contains(t, origins, "app://*")
}

func TestPaths(t *testing.T) {
	t.Setenv("SD_MODELS", "/models/sd14")
	t.Setenv("SD_TOKENIZER", "")
	t.Setenv("SD_RUNS_DB", "/tmp/runs.db")

	assert.Equal(t, "/models/sd14", Models())
	assert.Equal(t, "/models/sd14/tokenizer", Tokenizer())
	assert.Equal(t, "/tmp/runs.db", RunsDB())

	t.Setenv("SD_TOKENIZER", "/tok")
	assert.Equal(t, "/tok", Tokenizer())
}

func TestBool(t *testing.T) {
	cases := map[string]bool{
		"":       false,
		"true":   true,
		"false":  false,
		"1":      true,
		"0":      false,
		"random": true,
	}
	for value, expect := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("SD_GPU", value)
			if b := GPU(); b != expect {
				t.Errorf("SD_GPU=%q: %v, erwartet %v", value, b, expect)
			}
		})
	}
}

func TestUintAndFloat(t *testing.T) {
	t.Setenv("SD_STEPS", "")
	assert.Equal(t, uint(25), Steps())
	t.Setenv("SD_STEPS", "50")
	assert.Equal(t, uint(50), Steps())
	t.Setenv("SD_STEPS", "viele")
	assert.Equal(t, uint(25), Steps())

	t.Setenv("SD_GUIDANCE", "")
	assert.Equal(t, 7.5, Guidance())
	t.Setenv("SD_GUIDANCE", "3.25")
	assert.Equal(t, 3.25, Guidance())
	t.Setenv("SD_GUIDANCE", "stark")
	assert.Equal(t, 7.5, Guidance())
}

func TestLoadTimeout(t *testing.T) {
	cases := map[string]time.Duration{
		"":    5 * time.Minute,
		"1s":  time.Second,
		"30":  30 * time.Second,
		"0":   time.Duration(math.MaxInt64),
		"-1m": time.Duration(math.MaxInt64),
	}
	for value, expect := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("SD_LOAD_TIMEOUT", value)
			assert.Equal(t, expect, LoadTimeout())
		})
	}
}

func TestLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"false": slog.LevelInfo,
		"0":     slog.LevelInfo,
		"1":     slog.LevelDebug,
		"true":  slog.LevelDebug,
		"2":     slog.Level(-8),
	}
	for value, expect := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("SD_DEBUG", value)
			if level := LogLevel(); level != expect {
				t.Errorf("SD_DEBUG=%q: %v, erwartet %v", value, level, expect)
			}
		})
	}
}

func TestValues(t *testing.T) {
	t.Setenv("SD_NUM_PARALLEL", "4")
	t.Setenv("SD_MODELS", "/m")
	vals := Values()

	got := map[string]string{
		"SD_NUM_PARALLEL": vals["SD_NUM_PARALLEL"],
		"SD_MODELS":       vals["SD_MODELS"],
	}
	want := map[string]string{"SD_NUM_PARALLEL": "4", "SD_MODELS": "/m"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Values (-want +got):\n%s", diff)
	}
	for k, v := range AsMap() {
		if k != v.Name {
			t.Errorf("Schluessel %s != Name %s", k, v.Name)
		}
	}
}
