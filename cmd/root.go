package cmd

import (
	"context"
	"errors"
	"fmt"
	u "net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"splitfetch/internal/config"
	"splitfetch/internal/engine"
	"splitfetch/internal/logger"
	"splitfetch/internal/output"
	"splitfetch/internal/verify"
)

var (
	outputPath  string
	workers     int
	chunkSizeMB int
	keepParts   bool
	maxRetries  int
	timeout     time.Duration
	sha256Hex   string
	noResume    bool
	userAgent   string
	headers     []string
	configFile  string
	debug       bool
)

var Version = "dev"

var rootCmd = &cobra.Command{
	Use:     "splitfetch [URL]",
	Short:   "Splitfetch downloads a single large file over HTTP(S) in parallel byte-range segments",
	Version: Version,
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		logger.Init(debug)
		url := args[0]
		if _, err := u.Parse(url); err != nil {
			output.PrintError("Invalid URL format")
			os.Exit(1)
		}

		settings := config.Defaults()
		config.ApplyEnv(&settings)
		if configFile != "" {
			if err := config.ApplyFile(&settings, configFile); err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
		}
		settings.URL = url
		settings.OutputPath = outputPath
		settings.KeepParts = settings.KeepParts || keepParts
		settings.NoResume = noResume
		settings.SHA256 = sha256Hex
		settings.Headers = config.ParseHeaderArgs(headers)
		if cmd.Flags().Changed("workers") {
			settings.Workers = workers
		}
		if cmd.Flags().Changed("chunk-size-mb") {
			settings.ChunkSizeMB = chunkSizeMB
		}
		if cmd.Flags().Changed("max-retries") {
			settings.MaxRetries = maxRetries
		}
		if cmd.Flags().Changed("timeout") {
			settings.Timeout = timeout
		}
		if cmd.Flags().Changed("user-agent") {
			settings.UserAgent = userAgent
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		output.PrintInfo(fmt.Sprintf("Fetching %s", url))
		progressLog := logger.New("progress")
		result, err := engine.Run(ctx, settings, func(downloaded, total int64) {
			if total > 0 {
				progressLog.Debug().Msgf("Downloaded %s of %s", output.FormatBytes(uint64(downloaded)), output.FormatBytes(uint64(total)))
			} else {
				progressLog.Debug().Msgf("Downloaded %s", output.FormatBytes(uint64(downloaded)))
			}
		})
		if err != nil {
			code := exitCode(err)
			if code == 130 {
				output.PrintWarning("Interrupted; partial parts kept for resume")
			} else {
				output.PrintError(err.Error())
			}
			os.Exit(code)
		}
		output.PrintSuccess(fmt.Sprintf("Done: %s (%s)", result.OutputPath, output.FormatBytes(uint64(result.Size))))
		output.PrintDetail(summaryLine(result))
	},
}

// summaryLine renders the shape of a finished run: how the body was
// fetched and how long it took.
func summaryLine(r *engine.Result) string {
	if !r.Segmented {
		return fmt.Sprintf("single stream, %s elapsed", r.Elapsed.Round(time.Millisecond))
	}
	return fmt.Sprintf("%d parts of %s, %d workers, %s elapsed",
		r.Parts, output.FormatBytes(uint64(r.ChunkSize)), r.Workers, r.Elapsed.Round(time.Millisecond))
}

// exitCode maps the failure taxonomy onto the process exit status:
// 130 for interruption, 2 for integrity failures, 1 otherwise.
func exitCode(err error) int {
	if errors.Is(err, engine.ErrInterrupted) {
		return 130
	}
	var sizeErr *verify.SizeMismatchError
	var sumErr *verify.ChecksumMismatchError
	if errors.As(err, &sizeErr) || errors.As(err, &sumErr) {
		return 2
	}
	return 1
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (inferred from the URL if not provided)")
	rootCmd.Flags().IntVarP(&workers, "workers", "w", 8, "Number of concurrent segment downloads")
	rootCmd.Flags().IntVar(&chunkSizeMB, "chunk-size-mb", 0, "Fixed chunk size in MB (0 derives it from the worker count)")
	rootCmd.Flags().BoolVar(&keepParts, "keep-parts", false, "Keep part files after a successful download")
	rootCmd.Flags().IntVar(&maxRetries, "max-retries", 3, "Maximum attempts per segment")
	rootCmd.Flags().DurationVarP(&timeout, "timeout", "t", 60*time.Second, "Connection timeout (eg. 30s, 5m)")
	rootCmd.Flags().StringVar(&sha256Hex, "sha256", "", "Expected SHA-256 hex digest for integrity verification")
	rootCmd.Flags().BoolVar(&noResume, "no-resume", false, "Ignore existing manifest and part files")
	rootCmd.Flags().StringVarP(&userAgent, "user-agent", "a", config.DefaultUserAgent, "User agent")
	rootCmd.Flags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Bearer token'); can be specified multiple times")
	rootCmd.Flags().StringVar(&configFile, "config", "", "Path to YAML settings file")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
}
