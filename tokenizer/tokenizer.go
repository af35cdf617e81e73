// MODUL: tokenizer
// ZWECK: CLIP Byte-Level-BPE Tokenizer fuer Prompts
// INPUT: vocab.json und merges.txt (HuggingFace-Format), Prompt-Text
// OUTPUT: Token-IDs inklusive <|startoftext|> und <|endoftext|>
// NEBENEFFEKTE: Dateizugriff nur in Load
// ABHAENGIGKEITEN: dlclark/regexp2 (Pre-Tokenizer), emirpasic/gods/v2 (Merge-Heap),
//                  golang.org/x/text/unicode/norm (NFC)
// HINWEISE: Implementiert diffusion.Tokenizer. Keine Kuerzung auf 77 Tokens,
//           die Laengenpruefung passiert im Sampler.

package tokenizer

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/dlclark/regexp2"
	heap "github.com/emirpasic/gods/v2/trees/binaryheap"
	"golang.org/x/text/unicode/norm"

	"github.com/ollama/stablediffusion/logutil"
)

const (
	StartOfText = "<|startoftext|>"
	EndOfText   = "<|endoftext|>"

	// wordSuffix markiert das letzte Symbol eines Wortes
	wordSuffix = "</w>"
)

// pattern ist der CLIP Pre-Tokenizer: Spezialtokens, Kontraktionen,
// Buchstabenfolgen, einzelne Ziffern, sonstige Zeichenfolgen
const pattern = `<\|startoftext\|>|<\|endoftext\|>|'s|'t|'re|'ve|'m|'ll|'d|\p{L}+|\p{N}|[^\s\p{L}\p{N}]+`

var (
	// ErrMissingSpecialToken wird zurueckgegeben, wenn Start- oder End-Token
	// im Vokabular fehlt
	ErrMissingSpecialToken = errors.New("tokenizer: missing special token")
)

// Tokenizer ist ein CLIP BPE Tokenizer. Nach dem Laden unveraenderlich und
// sicher fuer nebenlaeufige Nutzung.
type Tokenizer struct {
	vocab   map[string]int32
	decoder map[int32]string
	ranks   map[[2]string]int
	re      *regexp2.Regexp

	bos, eos int32

	byteEncoder [256]rune
	byteDecoder map[rune]byte
}

// Load liest vocab.json und merges.txt aus dir
func Load(dir string) (*Tokenizer, error) {
	vocabData, err := os.ReadFile(filepath.Join(dir, "vocab.json"))
	if err != nil {
		return nil, fmt.Errorf("read vocab: %w", err)
	}
	var vocab map[string]int32
	if err := json.Unmarshal(vocabData, &vocab); err != nil {
		return nil, fmt.Errorf("parse vocab: %w", err)
	}

	mergesData, err := os.ReadFile(filepath.Join(dir, "merges.txt"))
	if err != nil {
		return nil, fmt.Errorf("read merges: %w", err)
	}

	return New(vocab, ParseMerges(string(mergesData)))
}

// ParseMerges zerlegt merges.txt in Paare. Kommentarzeilen (#version)
// und Leerzeilen werden uebersprungen.
func ParseMerges(s string) [][2]string {
	var merges [][2]string
	for line := range strings.Lines(s) {
		line = strings.TrimRight(line, "\r\n")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		a, b, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		merges = append(merges, [2]string{a, b})
	}
	return merges
}

// New baut einen Tokenizer aus Vokabular und Merge-Liste. Der Rang eines
// Merges ist seine Position in merges.
func New(vocab map[string]int32, merges [][2]string) (*Tokenizer, error) {
	bos, ok := vocab[StartOfText]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingSpecialToken, StartOfText)
	}
	eos, ok := vocab[EndOfText]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingSpecialToken, EndOfText)
	}

	t := &Tokenizer{
		vocab:       vocab,
		decoder:     make(map[int32]string, len(vocab)),
		ranks:       make(map[[2]string]int, len(merges)),
		re:          regexp2.MustCompile(pattern, regexp2.RE2),
		bos:         bos,
		eos:         eos,
		byteEncoder: bytesToUnicode(),
		byteDecoder: make(map[rune]byte, 256),
	}
	for k, v := range vocab {
		t.decoder[v] = k
	}
	for i, m := range merges {
		if _, ok := t.ranks[m]; !ok {
			t.ranks[m] = i
		}
	}
	for b, r := range t.byteEncoder {
		t.byteDecoder[r] = byte(b)
	}
	return t, nil
}

// BOS gibt die ID von <|startoftext|> zurueck
func (t *Tokenizer) BOS() int32 { return t.bos }

// EOS gibt die ID von <|endoftext|> zurueck
func (t *Tokenizer) EOS() int32 { return t.eos }

// Encode gibt [BOS] + BPE(prompt) + [EOS] zurueck
func (t *Tokenizer) Encode(prompt string) ([]int32, error) {
	text := clean(prompt)

	ids := []int32{t.bos}
	for piece := range t.split(text) {
		switch piece {
		case StartOfText:
			ids = append(ids, t.bos)
			continue
		case EndOfText:
			ids = append(ids, t.eos)
			continue
		}

		var sb strings.Builder
		for _, b := range []byte(piece) {
			sb.WriteRune(t.byteEncoder[b])
		}

		for _, sym := range t.bpe(sb.String()) {
			id, ok := t.vocab[sym]
			if !ok {
				logutil.Trace("tokenizer: symbol not in vocabulary", "symbol", sym)
				continue
			}
			ids = append(ids, id)
		}
	}
	ids = append(ids, t.eos)

	logutil.Trace("encoded", "prompt", prompt, "ids", ids)
	return ids, nil
}

// Decode bildet IDs zurueck auf Text ab. Start- und End-Token entfallen.
func (t *Tokenizer) Decode(ids []int32) string {
	var sb strings.Builder
	for _, id := range ids {
		if id == t.bos || id == t.eos {
			continue
		}
		sb.WriteString(t.decoder[id])
	}

	text := strings.ReplaceAll(sb.String(), wordSuffix, " ")
	out := make([]byte, 0, len(text))
	for _, r := range text {
		if b, ok := t.byteDecoder[r]; ok {
			out = append(out, b)
		}
	}
	return strings.TrimSpace(string(out))
}

// split liefert die Treffer des Pre-Tokenizers. Text zwischen Treffern
// (nur Leerraum) wird verworfen.
func (t *Tokenizer) split(s string) func(yield func(string) bool) {
	return func(yield func(string) bool) {
		runes := []rune(s)
		for m, _ := t.re.FindRunesMatch(runes); m != nil; m, _ = t.re.FindNextMatch(m) {
			if !yield(m.String()) {
				return
			}
		}
	}
}

// =============================================================================
// BPE
// =============================================================================

type symbol struct {
	prev, next int
	value      string
}

type pair struct {
	a, b  int
	rank  int
	value string
}

// bpe verschmilzt die Symbole eines Wortes nach Merge-Rang. Das letzte
// Symbol traegt das Wortende-Suffix.
func (t *Tokenizer) bpe(word string) []string {
	runes := []rune(word)
	if len(runes) == 0 {
		return nil
	}

	symbols := make([]symbol, len(runes))
	for i, r := range runes {
		symbols[i] = symbol{prev: i - 1, next: i + 1, value: string(r)}
	}
	symbols[len(symbols)-1].value += wordSuffix

	if len(symbols) == 1 {
		return []string{symbols[0].value}
	}

	pairwise := func(a, b int) *pair {
		if a < 0 || b >= len(symbols) {
			return nil
		}
		left, right := symbols[a].value, symbols[b].value
		rank, ok := t.ranks[[2]string{left, right}]
		if !ok {
			return nil
		}
		return &pair{a: a, b: b, rank: rank, value: left + right}
	}

	pairs := heap.NewWith(func(i, j *pair) int {
		if c := cmp.Compare(i.rank, j.rank); c != 0 {
			return c
		}
		return cmp.Compare(i.a, j.a)
	})
	for i := range len(symbols) - 1 {
		if p := pairwise(i, i+1); p != nil {
			pairs.Push(p)
		}
	}

	for !pairs.Empty() {
		p, _ := pairs.Pop()

		left, right := symbols[p.a], symbols[p.b]
		if left.value == "" || right.value == "" || left.next != p.b || left.value+right.value != p.value {
			continue
		}

		symbols[p.a].value = p.value
		symbols[p.b].value = ""
		symbols[p.a].next = right.next
		if right.next < len(symbols) {
			symbols[right.next].prev = p.a
		}

		if np := pairwise(symbols[p.a].prev, p.a); np != nil {
			pairs.Push(np)
		}
		if np := pairwise(p.a, symbols[p.a].next); np != nil {
			pairs.Push(np)
		}
	}

	var out []string
	for _, s := range symbols {
		if s.value != "" {
			out = append(out, s.value)
		}
	}
	return out
}

// =============================================================================
// Text-Normalisierung
// =============================================================================

// clean entfernt HTML-Entities, normalisiert auf NFC, fasst Leerraum
// zusammen und wandelt in Kleinbuchstaben.
func clean(s string) string {
	s = html.UnescapeString(html.UnescapeString(s))
	s = norm.NFC.String(s)
	s = strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
	return strings.ToLower(s)
}

// bytesToUnicode bildet jedes Byte auf ein druckbares Zeichen ab. Druckbare
// Latin-1 Bytes bleiben erhalten, die uebrigen werden ab U+0100 durchnummeriert.
func bytesToUnicode() [256]rune {
	var table [256]rune
	printable := func(b int) bool {
		return (b >= '!' && b <= '~') || (b >= 0xa1 && b <= 0xac) || (b >= 0xae && b <= 0xff)
	}
	n := 0
	for b := range 256 {
		if printable(b) {
			table[b] = rune(b)
		} else {
			table[b] = rune(256 + n)
			n++
		}
	}
	return table
}
