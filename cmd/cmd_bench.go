// cmd_bench.go - bench Command: Latenzmessung ueber einen Prompt-Sweep
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ollama/stablediffusion/benchmark"
)

// newBenchCmd - Erstellt den bench Command
func newBenchCmd() *cobra.Command {
	benchCmd := &cobra.Command{
		Use:   "bench PROMPT_TEMPLATE",
		Short: "Benchmark generation latency",
		Long: `Benchmark generation latency for a prompt or a prompt sweep.

Placeholders like {city} in the template are expanded with --var:

  sd bench "a photo of {city} by {artist}" --var city=paris,tokyo --var artist=monet`,
		Args: cobra.MinimumNArgs(1),
		RunE: BenchHandler,
	}

	benchCmd.Flags().StringArray("var", nil, "Placeholder values name=v1,v2 (repeatable)")
	benchCmd.Flags().Int("iterations", 3, "Measured runs per prompt")
	benchCmd.Flags().Int("warmup", 1, "Warmup runs per prompt")
	benchCmd.Flags().Int("width", 512, "Image width, multiple of 8")
	benchCmd.Flags().Int("height", 512, "Image height, multiple of 8")
	benchCmd.Flags().Int("steps", 0, "Sampling steps (default $SD_STEPS)")
	benchCmd.Flags().Float64("guidance", -1, "Classifier-free guidance scale (default $SD_GUIDANCE)")
	benchCmd.Flags().Float64("temperature", 1, "Noise temperature")
	benchCmd.Flags().Int64("seed", 0, "Seed (fixed for one iteration, start of the seed sequence otherwise)")
	benchCmd.Flags().Int("batch", 1, "Images per prompt")
	benchCmd.Flags().Bool("parallel-guidance", false, "Run both denoiser calls of a step concurrently")
	benchCmd.Flags().String("csv", "", "Write results as CSV to this file")
	benchCmd.Flags().Bool("markdown", false, "Print a Markdown table instead of a plain table")
	addModelFlags(benchCmd)

	return benchCmd
}

// parseVars bildet ["city=paris,tokyo"] auf {"city": [paris tokyo]} ab
func parseVars(raw []string) (map[string][]string, error) {
	vars := make(map[string][]string, len(raw))
	for _, kv := range raw {
		name, values, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --var %q, want name=v1,v2", kv)
		}
		for _, v := range strings.Split(values, ",") {
			if v = strings.TrimSpace(v); v != "" {
				vars[name] = append(vars[name], v)
			}
		}
	}
	return vars, nil
}

// BenchHandler - Fuehrt den Benchmark aus und gibt die Ergebnisse aus
func BenchHandler(cmd *cobra.Command, args []string) error {
	rawVars, _ := cmd.Flags().GetStringArray("var")
	vars, err := parseVars(rawVars)
	if err != nil {
		return err
	}

	opts, err := generateOptions(cmd, args)
	if err != nil {
		return err
	}

	cfg := benchmark.DefaultConfig()
	cfg.Options = opts
	cfg.Prompts = benchmark.ExpandPrompts(opts.Prompt, vars)
	cfg.Iterations, _ = cmd.Flags().GetInt("iterations")
	cfg.WarmupRuns, _ = cmd.Flags().GetInt("warmup")

	pipeline, closer, err := loadPipeline(cmd)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	results, err := benchmark.Run(cmd.Context(), pipeline, cfg)
	if err != nil {
		return err
	}

	if md, _ := cmd.Flags().GetBool("markdown"); md {
		benchmark.PrintMarkdown(cmd.OutOrStdout(), results)
	} else {
		benchmark.PrintTable(cmd.OutOrStdout(), results)
	}

	if path, _ := cmd.Flags().GetString("csv"); path != "" {
		if err := benchmark.ExportCSV(results, path); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", path)
	}
	return nil
}
