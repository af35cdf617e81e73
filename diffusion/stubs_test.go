package diffusion

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pdevine/tensor"
)

const stubEmbeddingWidth = 8

// stubTokenizer gibt eine feste Token-Folge zurueck
type stubTokenizer struct {
	tokens []int32
	err    error
}

func (s *stubTokenizer) Encode(string) ([]int32, error) {
	return s.tokens, s.err
}

// promptTokens erzeugt n Tokens: Start, n-2 Worte, Ende
func promptTokens(n int) []int32 {
	tokens := make([]int32, n)
	tokens[0] = StartOfText
	for i := 1; i < n-1; i++ {
		tokens[i] = int32(100 + i)
	}
	tokens[n-1] = EndOfText
	return tokens
}

// stubEncoder bildet jedes Token auf einen konstanten Vektor der Breite 8 ab
type stubEncoder struct {
	mu        sync.Mutex
	calls     int
	tokens    [][]int32
	positions [][]int32
	err       error
}

func (s *stubEncoder) EncodeText(_ context.Context, tokens, positions *tensor.Dense) (*tensor.Dense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	tok := tokens.Data().([]int32)
	pos := positions.Data().([]int32)
	s.tokens = append(s.tokens, append([]int32(nil), tok...))
	s.positions = append(s.positions, append([]int32(nil), pos...))

	shape := tokens.Shape()
	out := make([]float32, 0, len(tok)*stubEmbeddingWidth)
	for _, id := range tok {
		v := float32(id%97) / 97
		for range stubEmbeddingWidth {
			out = append(out, v)
		}
	}
	return NewTensor(out, shape[0], shape[1], stubEmbeddingWidth), nil
}

// stubDenoiser: eps = 0.5*x + 0.01*mean(context) + 0.001*emb[0]
type stubDenoiser struct {
	calls atomic.Int32
	err   error
	shape []int // falls gesetzt: falsche Ausgabeform
}

func (s *stubDenoiser) Denoise(_ context.Context, latent, emb, ctxEmb *tensor.Dense) (*tensor.Dense, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	x := latent.Data().([]float32)
	e := emb.Data().([]float32)
	c := ctxEmb.Data().([]float32)

	var mean float32
	for _, v := range c {
		mean += v
	}
	mean /= float32(len(c))

	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = 0.5*v + 0.01*mean + 0.001*e[0]
	}
	shape := []int(latent.Shape())
	if s.shape != nil {
		shape = s.shape
		out = make([]float32, product(shape))
	}
	return NewTensor(out, shape...), nil
}

// stubDecoder vergroessert das Latent um 8 und nimmt die ersten 3 Kanaele
type stubDecoder struct {
	calls atomic.Int32
	err   error
}

func (s *stubDecoder) Decode(_ context.Context, latent *tensor.Dense) (*tensor.Dense, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	shape := latent.Shape()
	b, h, w, c := shape[0], shape[1], shape[2], shape[3]
	x := latent.Data().([]float32)

	H, W := h*LatentScale, w*LatentScale
	out := make([]float32, b*H*W*3)
	for n := range b {
		for y := range H {
			for xx := range W {
				src := ((n*h+y/LatentScale)*w + xx/LatentScale) * c
				dst := ((n*H+y)*W + xx) * 3
				copy(out[dst:dst+3], x[src:src+3])
			}
		}
	}
	return NewTensor(out, b, H, W, 3), nil
}

func product(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

type stubModels struct {
	tokenizer *stubTokenizer
	encoder   *stubEncoder
	denoiser  *stubDenoiser
	decoder   *stubDecoder
}

func newStubModels(tokens []int32) *stubModels {
	return &stubModels{
		tokenizer: &stubTokenizer{tokens: tokens},
		encoder:   &stubEncoder{},
		denoiser:  &stubDenoiser{},
		decoder:   &stubDecoder{},
	}
}

func (s *stubModels) pipeline(t interface{ Fatalf(string, ...any) }) *Pipeline {
	p, err := NewPipeline(Models{
		Tokenizer:   s.tokenizer,
		TextEncoder: s.encoder,
		Denoiser:    s.denoiser,
		Decoder:     s.decoder,
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p
}
