// cmd_serve.go - serve Command
// Hauptfunktionen: RunServer
package cmd

import (
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/ollama/stablediffusion/envconfig"
	"github.com/ollama/stablediffusion/server"
	"github.com/ollama/stablediffusion/store"
)

// newServeCmd - Erstellt den serve Command
func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the generation server",
		Args:    cobra.ExactArgs(0),
		RunE:    RunServer,
	}
	serveCmd.Flags().Bool("log", false, "Record every request in the run ledger ($SD_RUNS_DB)")
	addModelFlags(serveCmd)
	return serveCmd
}

// RunServer - Laedt die Pipeline und startet den Server
func RunServer(cmd *cobra.Command, _ []string) error {
	pipeline, closer, err := loadPipeline(cmd)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	var runs *store.Store
	if logRuns, _ := cmd.Flags().GetBool("log"); logRuns {
		runs, err = store.Open(envconfig.RunsDB())
		if err != nil {
			return err
		}
		defer runs.Close()
		slog.Info("recording runs", "db", runs.Path())
	}

	ln, err := net.Listen("tcp", envconfig.Host().Host)
	if err != nil {
		return err
	}

	err = server.Serve(ln, pipeline, runs)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}
