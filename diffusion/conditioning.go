// conditioning.go - Aufbau des Conditioning-Kontexts (cond + uncond)
//
// Der Kontext wird genau einmal pro Request gebaut und danach von jedem
// Sampling-Schritt nur gelesen.
package diffusion

import (
	"context"
	"fmt"

	"github.com/pdevine/tensor"
)

const (
	// MaxTextLength ist die feste Laenge der Token-Sequenz
	MaxTextLength = 77

	// StartOfText ist die Token-ID <|startoftext|>
	StartOfText int32 = 49406

	// EndOfText ist die Token-ID <|endoftext|>, zugleich Padding
	EndOfText int32 = 49407
)

// Conditioning enthaelt die beiden Embeddings fuer Classifier-Free Guidance,
// jeweils [B,77,D]. Nach dem Bau unveraenderlich.
type Conditioning struct {
	Cond   *tensor.Dense
	Uncond *tensor.Dense
}

// UnconditionalTokens gibt die konstante "leerer Prompt" Sequenz zurueck
func UnconditionalTokens() []int32 {
	tokens := make([]int32, MaxTextLength)
	tokens[0] = StartOfText
	for i := 1; i < MaxTextLength; i++ {
		tokens[i] = EndOfText
	}
	return tokens
}

// Positions gibt die Positions-Indizes 0..76 zurueck
func Positions() []int32 {
	pos := make([]int32, MaxTextLength)
	for i := range pos {
		pos[i] = int32(i)
	}
	return pos
}

// PadTokens fuellt tokens mit EndOfText auf 77 auf. 77 oder mehr echte
// Tokens ergeben ErrPromptTooLong.
func PadTokens(tokens []int32) ([]int32, error) {
	if len(tokens) >= MaxTextLength {
		return nil, fmt.Errorf("%w: %d tokens, must be < %d", ErrPromptTooLong, len(tokens), MaxTextLength)
	}
	phrase := make([]int32, MaxTextLength)
	n := copy(phrase, tokens)
	for i := n; i < MaxTextLength; i++ {
		phrase[i] = EndOfText
	}
	return phrase, nil
}

// BuildConditioning ruft den Text-Encoder einmal fuer den Prompt und einmal
// fuer die unkonditionierte Sequenz auf. Beide Aufrufe teilen sich denselben
// Positions-Tensor.
func BuildConditioning(ctx context.Context, enc TextEncoder, tokens []int32, batch int) (*Conditioning, error) {
	if batch < 1 {
		return nil, fmt.Errorf("%w: batch size %d", ErrInvalidOptions, batch)
	}
	phrase, err := PadTokens(tokens)
	if err != nil {
		return nil, err
	}

	positions := NewInt32Tensor(repeatInt32(Positions(), batch), batch, MaxTextLength)

	cond, err := enc.EncodeText(ctx, NewInt32Tensor(repeatInt32(phrase, batch), batch, MaxTextLength), positions)
	if err != nil {
		return nil, fmt.Errorf("encode prompt: %w", err)
	}
	uncond, err := enc.EncodeText(ctx, NewInt32Tensor(repeatInt32(UnconditionalTokens(), batch), batch, MaxTextLength), positions)
	if err != nil {
		return nil, fmt.Errorf("encode unconditional: %w", err)
	}

	shape := []int(cond.Shape())
	if len(shape) != 3 || shape[0] != batch || shape[1] != MaxTextLength {
		return nil, fmt.Errorf("%w: text embedding has shape %v, want [%d %d D]", ErrShapeMismatch, shape, batch, MaxTextLength)
	}
	if err := checkShape("unconditional embedding", uncond, shape); err != nil {
		return nil, err
	}

	return &Conditioning{Cond: cond, Uncond: uncond}, nil
}
