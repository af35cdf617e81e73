// cmd_list.go - Tabellen-Commands: schedule, runs, env
// Hauptfunktionen: ScheduleHandler, RunsHandler, EnvHandler
package cmd

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ollama/stablediffusion/diffusion"
	"github.com/ollama/stablediffusion/envconfig"
	"github.com/ollama/stablediffusion/store"
)

// newTable - Tabelle im Stil von "ollama list"
func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.SetAutoWrapText(false)
	return table
}

// newScheduleCmd - Erstellt den schedule Command
func newScheduleCmd() *cobra.Command {
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Show the sampling schedule for a number of steps",
		Args:  cobra.ExactArgs(0),
		RunE:  ScheduleHandler,
	}
	scheduleCmd.Flags().Int("steps", 0, "Sampling steps (default $SD_STEPS)")
	return scheduleCmd
}

// ScheduleHandler - Listet Timesteps, a_t und a_prev in Sampling-Reihenfolge
func ScheduleHandler(cmd *cobra.Command, _ []string) error {
	steps := int(envconfig.Steps())
	if n, _ := cmd.Flags().GetInt("steps"); n != 0 {
		steps = n
	}

	schedule, err := diffusion.DefaultTable().Subsample(steps)
	if err != nil {
		return err
	}

	var data [][]string
	for i := schedule.Len() - 1; i >= 0; i-- {
		t, a, prev := schedule.Step(i)
		data = append(data, []string{
			strconv.Itoa(i),
			strconv.Itoa(t),
			strconv.FormatFloat(a, 'f', 6, 64),
			strconv.FormatFloat(prev, 'f', 6, 64),
		})
	}

	table := newTable(cmd.OutOrStdout(), []string{"INDEX", "TIMESTEP", "ALPHA", "ALPHA PREV"})
	table.AppendBulk(data)
	table.Render()
	return nil
}

// newRunsCmd - Erstellt den runs Command
func newRunsCmd() *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		Args:  cobra.ExactArgs(0),
		RunE:  RunsHandler,
	}
	runsCmd.Flags().IntP("limit", "n", 20, "Number of runs to show (0 = all)")
	runsCmd.Flags().StringArray("delete", nil, "Delete the run with this ID or unique ID prefix")
	return runsCmd
}

// RunsHandler - Listet die letzten Runs aus dem Lauf-Protokoll
func RunsHandler(cmd *cobra.Command, _ []string) error {
	runs, err := store.Open(envconfig.RunsDB())
	if err != nil {
		return err
	}
	defer runs.Close()

	if ids, _ := cmd.Flags().GetStringArray("delete"); len(ids) > 0 {
		return deleteRuns(cmd, runs, ids)
	}

	limit, _ := cmd.Flags().GetInt("limit")
	list, err := runs.List(cmd.Context(), limit)
	if err != nil {
		return err
	}

	var data [][]string
	for _, r := range list {
		data = append(data, []string{
			r.ID[:min(8, len(r.ID))],
			runewidth.Truncate(r.Prompt, 40, "..."),
			strconv.FormatInt(r.Seed, 10),
			strconv.Itoa(r.Steps),
			strconv.FormatFloat(r.Guidance, 'g', -1, 64),
			fmt.Sprintf("%dx%d", r.Width, r.Height),
			r.Duration.Round(time.Millisecond).String(),
			r.CreatedAt.Local().Format(time.DateTime),
		})
	}

	table := newTable(cmd.OutOrStdout(), []string{"ID", "PROMPT", "SEED", "STEPS", "GUIDANCE", "SIZE", "DURATION", "CREATED"})
	table.AppendBulk(data)
	table.Render()
	return nil
}

// deleteRuns loescht Runs per ID oder eindeutigem ID-Praefix, wie ihn die
// Tabelle anzeigt
func deleteRuns(cmd *cobra.Command, runs *store.Store, ids []string) error {
	all, err := runs.List(cmd.Context(), 0)
	if err != nil {
		return err
	}

	for _, prefix := range ids {
		var matches []string
		for _, r := range all {
			if strings.HasPrefix(r.ID, prefix) {
				matches = append(matches, r.ID)
			}
		}
		switch {
		case prefix == "" || len(matches) == 0:
			return fmt.Errorf("%w: %q", store.ErrNotFound, prefix)
		case len(matches) > 1:
			return fmt.Errorf("run id %q is ambiguous (%d matches)", prefix, len(matches))
		}

		if err := runs.Delete(cmd.Context(), matches[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted '%s'\n", matches[0])
	}
	return nil
}

// newEnvCmd - Erstellt den env Command
func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show the effective configuration",
		Args:  cobra.ExactArgs(0),
		RunE:  EnvHandler,
	}
}

// EnvHandler - Listet alle Umgebungsvariablen mit aktuellen Werten
func EnvHandler(cmd *cobra.Command, _ []string) error {
	vars := envconfig.AsMap()

	var data [][]string
	for _, k := range slices.Sorted(maps.Keys(vars)) {
		v := vars[k]
		data = append(data, []string{v.Name, fmt.Sprintf("%v", v.Value), v.Description})
	}

	table := newTable(cmd.OutOrStdout(), []string{"NAME", "VALUE", "DESCRIPTION"})
	table.AppendBulk(data)
	table.Render()
	return nil
}
