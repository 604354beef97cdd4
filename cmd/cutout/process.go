package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dunamismax/cutout/internal/batch"
	"github.com/dunamismax/cutout/internal/config"
	"github.com/dunamismax/cutout/internal/domain"
	"github.com/dunamismax/cutout/internal/pipeline"
	"github.com/dunamismax/cutout/internal/segment"
	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".webp", ".gif", ".bmp", ".tif", ".tiff"}

type processOptions struct {
	OutDir       string
	ConfigPath   string
	ProfilesPath string
	Profile      string

	Format       string
	Quality      int
	NoCompress   bool
	Width        int
	Height       int
	NoResize     bool
	Stretch      bool
	AutoCrop     bool
	Margin       int
	Grayscale    int
	RemoveBG     bool
	NoMatting    bool
	FakeCleanup  int
	MatchCleanup int
	FlattenColor string

	Segmenter string
	Model     string
	ONNXLib   string
	RemoteURL string

	NoProgress bool
	Verbose    bool
}

func newProcessCmd() *cobra.Command {
	var opts processOptions
	cmd := &cobra.Command{
		Use:   "process [files or directories...]",
		Short: "Run the pipeline over images and write the results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.OutDir, "out", "o", "cutout-out", "output directory (existing files are never replaced)")
	f.StringVar(&opts.ConfigPath, "config", "", "JSON pipeline config file")
	f.StringVar(&opts.ProfilesPath, "profiles", "", "JSON profile file")
	f.StringVar(&opts.Profile, "profile", "", "profile id or name from --profiles")

	f.StringVar(&opts.Format, "format", "", "output format: png, jpeg, webp or gif (default: keep the source format)")
	f.IntVar(&opts.Quality, "quality", 60, "lossy compression quality 1-100")
	f.BoolVar(&opts.NoCompress, "no-compress", false, "keep the lossless intermediate")
	f.IntVar(&opts.Width, "width", 0, "target width in pixels")
	f.IntVar(&opts.Height, "height", 0, "target height in pixels")
	f.BoolVar(&opts.NoResize, "no-resize", false, "keep the image size")
	f.BoolVar(&opts.Stretch, "stretch", false, "ignore the aspect ratio when both width and height are set")
	f.BoolVar(&opts.AutoCrop, "autocrop", false, "crop to the visible content")
	f.IntVar(&opts.Margin, "margin", 0, "autocrop margin in pixels")
	f.IntVar(&opts.Grayscale, "grayscale", 0, "grayscale intensity 0-100")
	f.BoolVar(&opts.RemoveBG, "remove-bg", false, "remove the background")
	f.BoolVar(&opts.NoMatting, "no-matting", false, "skip mask thresholding and erosion")
	f.IntVar(&opts.FakeCleanup, "fake-cleanup", 20, "clear baked-in checkerboard pixels with this tolerance")
	f.IntVar(&opts.MatchCleanup, "matched-cleanup", 30, "clear leftover background-coloured pixels with this tolerance")
	f.StringVar(&opts.FlattenColor, "flatten-color", "", "background colour for formats without alpha")

	f.StringVar(&opts.Segmenter, "segmenter", segment.KindAuto, "segmenter: "+strings.Join(segment.Kinds, ", "))
	f.StringVar(&opts.Model, "model", "", "ONNX model path for --segmenter onnx")
	f.StringVar(&opts.ONNXLib, "onnx-lib", os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"), "onnxruntime shared library path")
	f.StringVar(&opts.RemoteURL, "segmenter-url", "", "inference endpoint for --segmenter remote")

	f.BoolVar(&opts.NoProgress, "no-progress", false, "hide the progress bar")
	f.BoolVarP(&opts.Verbose, "verbose", "v", false, "log every image")
	return cmd
}

func runProcess(cmd *cobra.Command, args []string, opts processOptions) error {
	cfg, err := resolveConfig(opts, cmd.Flags().Changed)
	if err != nil {
		return err
	}

	paths, err := collectInputs(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no images found")
	}

	logger := log.New(io.Discard, "", 0)
	if opts.Verbose {
		logger = log.New(cmd.ErrOrStderr(), "[cutout] ", log.LstdFlags|log.Lmsgprefix)
	}

	if err := pipeline.Startup(); err != nil {
		return fmt.Errorf("start image runtime: %w", err)
	}
	defer pipeline.Shutdown()

	var segmenter pipeline.Segmenter
	if cfg.BackgroundRemoval.Enabled {
		segmenter, err = segment.New(opts.Segmenter, segment.Options{
			ModelPath:         opts.Model,
			SharedLibraryPath: opts.ONNXLib,
			RemoteURL:         opts.RemoteURL,
		})
		if err != nil {
			return err
		}
		if closer, ok := segmenter.(interface{ Close() }); ok {
			defer closer.Close()
		}
	}

	p, err := pipeline.New(segmenter, logger)
	if err != nil {
		return err
	}

	jobs, err := loadJobs(paths)
	if err != nil {
		return err
	}

	var runnerOpts []batch.Option
	if !opts.NoProgress {
		bar := progressbar.NewOptions(len(jobs),
			progressbar.OptionSetDescription("cutout"),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		runnerOpts = append(runnerOpts, batch.WithProgress(bar))
	}

	sum, runErr := batch.NewRunner(p, logger, runnerOpts...).Run(cmd.Context(), jobs, cfg)
	written, writeErr := batch.WriteOutputs(opts.OutDir, jobs)

	printReport(cmd.OutOrStdout(), jobs, written, sum)

	switch {
	case runErr != nil:
		return runErr
	case writeErr != nil:
		return writeErr
	case sum.Failed > 0:
		return fmt.Errorf("%d of %d images failed", sum.Failed, len(jobs))
	}
	return nil
}

// resolveConfig layers defaults, the config file, the selected profile and
// finally every flag the user set explicitly.
func resolveConfig(opts processOptions, changed func(string) bool) (domain.PipelineConfig, error) {
	cfg, err := config.LoadPipelineFile(opts.ConfigPath)
	if err != nil {
		return domain.PipelineConfig{}, err
	}

	if opts.Profile != "" {
		if opts.ProfilesPath == "" {
			return domain.PipelineConfig{}, errors.New("--profile needs --profiles")
		}
		profiles, err := config.LoadProfiles(opts.ProfilesPath)
		if err != nil {
			return domain.PipelineConfig{}, err
		}
		profile, err := domain.FindProfile(profiles, opts.Profile)
		if err != nil {
			return domain.PipelineConfig{}, err
		}
		cfg = profile.Apply(cfg)
	}

	if changed("format") {
		cfg.OutputFormat = domain.NormalizeOutputFormat(opts.Format)
		if cfg.OutputFormat == "" {
			return domain.PipelineConfig{}, fmt.Errorf("%w: unsupported --format %q", domain.ErrInvalidConfig, opts.Format)
		}
	}
	if changed("quality") {
		cfg.Compress = domain.CompressConfig{Enabled: true, Quality: opts.Quality}
	}
	if opts.NoCompress {
		cfg.Compress.Enabled = false
	}

	if changed("width") || changed("height") {
		cfg.Resize.Enabled = true
		cfg.Resize.Width = opts.Width
		cfg.Resize.Height = opts.Height
	}
	if opts.Stretch {
		cfg.Resize.KeepAspectRatio = false
	}
	if opts.NoResize {
		cfg.Resize.Enabled = false
	}

	if opts.AutoCrop || changed("margin") {
		cfg.AutoCrop = domain.AutoCropConfig{Enabled: true, Margin: opts.Margin}
	}
	if changed("grayscale") {
		cfg.Grayscale = domain.GrayscaleConfig{Enabled: opts.Grayscale > 0, Intensity: opts.Grayscale}
	}

	if opts.RemoveBG {
		cfg.BackgroundRemoval.Enabled = true
	}
	if opts.NoMatting {
		cfg.BackgroundRemoval.AlphaMatting = false
	}
	if changed("fake-cleanup") {
		cfg.FakeTransparencyCleanup = domain.ToleranceConfig{Enabled: true, Tolerance: opts.FakeCleanup}
	}
	if changed("matched-cleanup") {
		cfg.MatchedBackgroundCleanup = domain.ToleranceConfig{Enabled: true, Tolerance: opts.MatchCleanup}
	}
	if changed("flatten-color") {
		cfg.FlattenColor = opts.FlattenColor
	}

	if err := cfg.ValidateForRun(); err != nil {
		return domain.PipelineConfig{}, err
	}
	return cfg, nil
}

// collectInputs expands directories one level deep into their image files
// and keeps explicit file arguments as given.
func collectInputs(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}

		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() || !isImageFile(entry.Name()) {
				continue
			}
			paths = append(paths, filepath.Join(arg, entry.Name()))
		}
	}
	return paths, nil
}

func isImageFile(name string) bool {
	return slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(name)))
}

func loadJobs(paths []string) ([]*domain.ImageJob, error) {
	jobs := make([]*domain.ImageJob, 0, len(paths))
	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
		if !strings.HasPrefix(mimeType, "image/") {
			mimeType = ""
		}
		jobs = append(jobs, domain.NewImageJob(strconv.Itoa(i+1), path, mimeType, data))
	}
	return jobs, nil
}

func printReport(out io.Writer, jobs []*domain.ImageJob, written []batch.Written, sum batch.Summary) {
	paths := make(map[string]string, len(written))
	for _, w := range written {
		paths[w.JobID] = w.Path
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tSTATUS\tORIGINAL\tRESULT\tOUTPUT")
	for _, job := range jobs {
		switch job.Status {
		case domain.JobStatusDone:
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				job.Name, job.Status, humanize.Bytes(uint64(job.OriginalSize)), humanize.Bytes(uint64(job.ResultSize)), paths[job.ID])
		default:
			fmt.Fprintf(w, "%s\t%s\t%s\t-\t%s\n", job.Name, job.Status, humanize.Bytes(uint64(job.OriginalSize)), job.Error)
		}
	}
	_ = w.Flush()

	saved := sum.BytesSaved()
	verb := "saved"
	if saved < 0 {
		verb, saved = "grew by", -saved
	}
	fmt.Fprintf(out, "\n%d processed, %d failed, %d skipped in %s; %s %s\n",
		sum.Processed, sum.Failed, sum.Skipped, sum.Duration.Round(time.Millisecond), verb, humanize.Bytes(uint64(saved)))
}
