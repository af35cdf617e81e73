// progress.go - Fortschrittsbalken fuer Sampling-Schritte auf stderr
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// stepBar zeichnet "label [=====     ] 3/25 1.2s" auf eine Zeile
type stepBar struct {
	mu      sync.Mutex
	w       io.Writer
	label   string
	width   int
	start   time.Time
	enabled bool
}

// newStepBar schreibt nur wenn w ein Terminal ist
func newStepBar(w io.Writer, label string) *stepBar {
	b := &stepBar{w: w, label: label, width: 30, start: time.Now()}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b.enabled = true
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil {
			b.width = max(10, min(50, cols-len(label)-30))
		}
	}
	return b
}

// Update ist als diffusion.Options.Progress verwendbar
func (b *stepBar) Update(step, total int) {
	if !b.enabled || total <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	fmt.Fprint(b.w, "\r\x1b[K"+b.render(step, total, time.Since(b.start)))
}

func (b *stepBar) render(step, total int, elapsed time.Duration) string {
	filled := b.width * step / total
	return fmt.Sprintf("%s [%s%s] %d/%d %s",
		b.label,
		strings.Repeat("=", filled),
		strings.Repeat(" ", b.width-filled),
		step, total,
		elapsed.Round(100*time.Millisecond),
	)
}

// Stop beendet die Zeile
func (b *stepBar) Stop() {
	if !b.enabled {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	fmt.Fprintln(b.w)
}
