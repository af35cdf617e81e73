// cmd_generate.go - generate Command: Prompt -> Bilddateien
// Hauptfunktionen: GenerateHandler, generateLocal, generateRemote
package cmd

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/exp/rand"

	"github.com/ollama/stablediffusion/api"
	"github.com/ollama/stablediffusion/diffusion"
	"github.com/ollama/stablediffusion/envconfig"
	"github.com/ollama/stablediffusion/imageio"
	"github.com/ollama/stablediffusion/store"
)

// newGenerateCmd - Erstellt den generate Command
func newGenerateCmd() *cobra.Command {
	generateCmd := &cobra.Command{
		Use:     "generate PROMPT",
		Aliases: []string{"gen"},
		Short:   "Generate images from a text prompt",
		Args:    cobra.MinimumNArgs(1),
		RunE:    GenerateHandler,
	}

	generateCmd.Flags().StringP("output", "o", "out.png", "Output file (.png, .jpg, .bmp, .tiff); batches get an index suffix")
	generateCmd.Flags().Int("width", 512, "Image width, multiple of 8")
	generateCmd.Flags().Int("height", 512, "Image height, multiple of 8")
	generateCmd.Flags().Int("steps", 0, "Sampling steps (default $SD_STEPS)")
	generateCmd.Flags().Float64("guidance", -1, "Classifier-free guidance scale (default $SD_GUIDANCE)")
	generateCmd.Flags().Float64("temperature", 1, "Noise temperature")
	generateCmd.Flags().Int64("seed", -1, "Seed for the initial latent (-1 = random)")
	generateCmd.Flags().Int("batch", 1, "Images per prompt")
	generateCmd.Flags().Bool("parallel-guidance", false, "Run both denoiser calls of a step concurrently")
	generateCmd.Flags().String("latent", "", "Write the final latent as float16 to this file")
	generateCmd.Flags().Bool("log", false, "Record the run in the run ledger ($SD_RUNS_DB)")
	generateCmd.Flags().Bool("remote", false, "Generate on a running server ($SD_HOST)")
	generateCmd.Flags().String("resize", "", "Resize output images to WxH")
	addModelFlags(generateCmd)

	return generateCmd
}

// generateOptions liest die Flags in diffusion.Options
func generateOptions(cmd *cobra.Command, args []string) (diffusion.Options, error) {
	flags := cmd.Flags()
	opts := diffusion.DefaultOptions()
	opts.Prompt = strings.Join(args, " ")
	opts.Width, _ = flags.GetInt("width")
	opts.Height, _ = flags.GetInt("height")
	opts.Temperature, _ = flags.GetFloat64("temperature")
	opts.BatchSize, _ = flags.GetInt("batch")

	opts.Steps = int(envconfig.Steps())
	if steps, _ := flags.GetInt("steps"); steps != 0 {
		opts.Steps = steps
	}

	opts.GuidanceScale = envconfig.Guidance()
	if flags.Changed("guidance") {
		opts.GuidanceScale, _ = flags.GetFloat64("guidance")
	}

	opts.ParallelGuidance = envconfig.ParallelGuidance()
	if flags.Changed("parallel-guidance") {
		opts.ParallelGuidance, _ = flags.GetBool("parallel-guidance")
	}

	opts.Seed, _ = flags.GetInt64("seed")
	if opts.Seed < 0 {
		opts.Seed = rand.Int63()
	}

	return opts, opts.Validate()
}

// GenerateHandler - Erzeugt Bilder lokal oder ueber den Server
func GenerateHandler(cmd *cobra.Command, args []string) error {
	opts, err := generateOptions(cmd, args)
	if err != nil {
		return err
	}

	output, _ := cmd.Flags().GetString("output")
	if imageio.FormatFromPath(output) == imageio.FormatUnknown {
		return fmt.Errorf("%w: %s", imageio.ErrUnsupportedFormat, output)
	}

	var images []*image.RGBA
	var result *diffusion.Result
	if remote, _ := cmd.Flags().GetBool("remote"); remote {
		images, err = generateRemote(cmd, opts)
	} else {
		result, err = generateLocal(cmd, opts)
		if result != nil {
			images = imageio.ToImages(result.Images)
		}
	}
	if err != nil {
		return err
	}

	if size, _ := cmd.Flags().GetString("resize"); size != "" {
		var w, h int
		if _, err := fmt.Sscanf(size, "%dx%d", &w, &h); err != nil || w <= 0 || h <= 0 {
			return fmt.Errorf("invalid --resize %q, want WxH", size)
		}
		for i, img := range images {
			images[i] = imageio.Resize(img, w, h)
		}
	}

	paths, err := imageio.SaveAll(output, images)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}

	if result != nil {
		if path, _ := cmd.Flags().GetString("latent"); path != "" {
			if err := writeLatent(path, result); err != nil {
				return err
			}
		}
	}

	if logRun, _ := cmd.Flags().GetBool("log"); logRun {
		var d time.Duration
		if result != nil {
			d = result.Duration
		}
		if err := recordRun(cmd, opts, strings.Join(paths, ","), d); err != nil {
			return err
		}
	}

	return nil
}

// generateLocal laedt die Pipeline und fuehrt den Sampler aus
func generateLocal(cmd *cobra.Command, opts diffusion.Options) (*diffusion.Result, error) {
	pipeline, closer, err := loadPipeline(cmd)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		defer closer.Close()
	}

	bar := newStepBar(cmd.ErrOrStderr(), "sampling")
	opts.Progress = bar.Update
	result, err := pipeline.Generate(cmd.Context(), opts)
	bar.Stop()
	if err != nil {
		return nil, err
	}

	slog.Info("generated", "seed", result.Seed, "steps", opts.Steps, "duration", result.Duration)
	return result, nil
}

// generateRemote sendet den Request an den Server und dekodiert die PNGs
func generateRemote(cmd *cobra.Command, opts diffusion.Options) ([]*image.RGBA, error) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, err
	}

	stream := true
	req := &api.GenerateRequest{
		Prompt:      opts.Prompt,
		Width:       opts.Width,
		Height:      opts.Height,
		Steps:       opts.Steps,
		Guidance:    &opts.GuidanceScale,
		Temperature: &opts.Temperature,
		Seed:        &opts.Seed,
		BatchSize:   opts.BatchSize,
		Format:      string(imageio.FormatPNG),
		Stream:      &stream,
	}

	bar := newStepBar(cmd.ErrOrStderr(), "sampling")
	defer bar.Stop()

	var final api.GenerateResponse
	err = client.Generate(cmd.Context(), req, func(resp api.GenerateResponse) error {
		if resp.Done {
			final = resp
			return nil
		}
		bar.Update(resp.Completed, resp.Total)
		return nil
	})
	if err != nil {
		return nil, err
	}

	images := make([]*image.RGBA, 0, len(final.Images))
	for _, enc := range final.Images {
		data, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, err
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode server image: %w", err)
		}
		images = append(images, toRGBA(img))
	}
	return images, nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	return imageio.Resize(img, b.Dx(), b.Dy())
}

func writeLatent(path string, result *diffusion.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := imageio.WriteLatentFP16(f, result.Latent); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// recordRun schreibt den Lauf ins Lauf-Protokoll
func recordRun(cmd *cobra.Command, opts diffusion.Options, output string, d time.Duration) error {
	runs, err := store.Open(envconfig.RunsDB())
	if err != nil {
		return err
	}
	defer runs.Close()

	run, err := runs.Record(cmd.Context(), store.Run{
		Prompt:      opts.Prompt,
		Seed:        opts.Seed,
		Steps:       opts.Steps,
		Guidance:    opts.GuidanceScale,
		Temperature: opts.Temperature,
		Width:       opts.Width,
		Height:      opts.Height,
		Batch:       opts.BatchSize,
		Duration:    d,
		Output:      output,
	})
	if err != nil {
		return err
	}
	slog.Debug("recorded run", "id", run.ID)
	return nil
}
