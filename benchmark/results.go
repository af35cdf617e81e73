// MODUL: results
// ZWECK: Formatierung und Export von Benchmark-Ergebnissen
// INPUT: Result Slices
// OUTPUT: Formatierte Ausgabe (Terminal-Tabelle, CSV, Markdown)
// NEBENEFFEKTE: Dateisystem-Schreibzugriff bei ExportCSV
// ABHAENGIGKEITEN: github.com/olekukonko/tablewriter, encoding/csv
// HINWEISE: CSV-Export verwendet Semikolon als Trennzeichen fuer DE-Kompatibilitaet

package benchmark

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
)

// ============================================================================
// Terminal-Ausgabe
// ============================================================================

// PrintTable gibt Ergebnisse als Tabelle auf w aus.
func PrintTable(w io.Writer, results []Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, "Keine Ergebnisse vorhanden.")
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"PROMPT", "SIZE", "STEPS", "BATCH", "AVG", "MIN", "MAX", "P95", "IMG/S"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	for _, r := range results {
		table.Append([]string{
			truncateString(r.Prompt, 40),
			r.ImageSize,
			strconv.Itoa(r.Steps),
			strconv.Itoa(r.BatchSize),
			formatDuration(r.AvgLatency),
			formatDuration(r.MinLatency),
			formatDuration(r.MaxLatency),
			formatDuration(r.P95Latency),
			strconv.FormatFloat(r.ImagesPerSecond, 'f', 3, 64),
		})
	}
	table.Render()
}

// ============================================================================
// Markdown-Ausgabe
// ============================================================================

// PrintMarkdown gibt Ergebnisse als Markdown-Tabelle aus.
func PrintMarkdown(w io.Writer, results []Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, "_Keine Ergebnisse vorhanden._")
		return
	}

	fmt.Fprintln(w, "| Prompt | Size | Steps | Batch | Avg | P95 | Throughput |")
	fmt.Fprintln(w, "|--------|------|-------|-------|-----|-----|------------|")
	for _, r := range results {
		fmt.Fprintf(w, "| %s | %s | %d | %d | %s | %s | %.3f img/s |\n",
			r.Prompt,
			r.ImageSize,
			r.Steps,
			r.BatchSize,
			formatDuration(r.AvgLatency),
			formatDuration(r.P95Latency),
			r.ImagesPerSecond,
		)
	}
}

// ============================================================================
// CSV-Export
// ============================================================================

// ExportCSV exportiert Ergebnisse als CSV-Datei.
func ExportCSV(results []Result, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("csv-datei erstellen: %w", err)
	}
	if err := WriteCSV(f, results); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteCSV schreibt Ergebnisse als CSV auf einen Writer.
func WriteCSV(w io.Writer, results []Result) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';' // Semikolon fuer DE-Excel-Kompatibilitaet

	header := []string{
		"prompt", "image_size", "steps", "batch_size", "iterations",
		"avg_latency_ms", "min_latency_ms", "max_latency_ms", "p95_latency_ms",
		"images_per_second", "steps_per_second",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range results {
		if err := cw.Write(buildCSVRow(r)); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func buildCSVRow(r Result) []string {
	return []string{
		r.Prompt,
		r.ImageSize,
		strconv.Itoa(r.Steps),
		strconv.Itoa(r.BatchSize),
		strconv.Itoa(r.Iterations),
		millis(r.AvgLatency),
		millis(r.MinLatency),
		millis(r.MaxLatency),
		millis(r.P95Latency),
		strconv.FormatFloat(r.ImagesPerSecond, 'f', 4, 64),
		strconv.FormatFloat(r.StepsPerSecond, 'f', 2, 64),
	}
}

// ============================================================================
// Formatierungs-Hilfsfunktionen
// ============================================================================

func millis(d time.Duration) string {
	return strconv.FormatFloat(float64(d.Microseconds())/1000, 'f', 3, 64)
}

// formatDuration formatiert eine Duration fuer menschliche Lesbarkeit.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.2fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.2fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// truncateString kuerzt einen String auf maxLen Runen.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
