// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/containerd/console"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ollama/stablediffusion/envconfig"
	"github.com/ollama/stablediffusion/version"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cobra.EnableCommandSorting = false

	if runtime.GOOS == "windows" && term.IsTerminal(int(os.Stdout.Fd())) {
		console.ConsoleFromFile(os.Stdin) //nolint:errcheck
	}

	rootCmd := &cobra.Command{
		Use:           "sd",
		Short:         "Text-to-image latent diffusion sampler",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if v, _ := cmd.Flags().GetBool("version"); v {
				fmt.Fprintf(cmd.OutOrStdout(), "sd version is %s\n", version.Version)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	generateCmd := newGenerateCmd()
	benchCmd := newBenchCmd()
	serveCmd := newServeCmd()
	scheduleCmd := newScheduleCmd()
	runsCmd := newRunsCmd()
	envCmd := newEnvCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()
	modelEnvs := []envconfig.EnvVar{
		envVars["SD_MODELS"],
		envVars["SD_TOKENIZER"],
		envVars["SD_ORT_LIBRARY"],
		envVars["SD_GPU"],
		envVars["SD_FP16"],
		envVars["SD_LOAD_TIMEOUT"],
	}

	appendEnvDocs(generateCmd, append(modelEnvs,
		envVars["SD_STEPS"],
		envVars["SD_GUIDANCE"],
		envVars["SD_PARALLEL_GUIDANCE"],
		envVars["SD_RUNS_DB"],
		envVars["SD_HOST"],
	))
	appendEnvDocs(benchCmd, modelEnvs)
	appendEnvDocs(serveCmd, append(modelEnvs,
		envVars["SD_DEBUG"],
		envVars["SD_HOST"],
		envVars["SD_ORIGINS"],
		envVars["SD_NUM_PARALLEL"],
		envVars["SD_PARALLEL_GUIDANCE"],
		envVars["SD_RUNS_DB"],
	))
	appendEnvDocs(runsCmd, []envconfig.EnvVar{envVars["SD_RUNS_DB"]})

	rootCmd.AddCommand(
		generateCmd,
		benchCmd,
		serveCmd,
		scheduleCmd,
		runsCmd,
		envCmd,
	)

	return rootCmd
}
