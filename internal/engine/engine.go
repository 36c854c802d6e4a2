// Package engine orchestrates a download run: probe, plan, manifest
// bootstrap, concurrent fetch, assembly, verification, cleanup.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"splitfetch/internal/assemble"
	"splitfetch/internal/client"
	"splitfetch/internal/config"
	"splitfetch/internal/fetch"
	"splitfetch/internal/logger"
	"splitfetch/internal/manifest"
	"splitfetch/internal/plan"
	"splitfetch/internal/probe"
	"splitfetch/internal/verify"
)

// ErrInterrupted marks a run cancelled from outside during the fetch
// stage. Part files and the manifest stay on disk for a later resume.
var ErrInterrupted = errors.New("download interrupted")

// ProgressFunc receives running byte totals during the fetch stage.
type ProgressFunc func(downloaded, total int64)

// Result summarizes a finished run.
type Result struct {
	Resource   *probe.Resource
	OutputPath string
	Size       int64
	Parts      int
	ChunkSize  int64
	Workers    int
	Segmented  bool
	Elapsed    time.Duration
}

// Run performs one complete download. The returned error is nil only
// on confirmed full success: bytes assembled, size verified, digest
// verified when one was supplied.
func Run(ctx context.Context, s config.Settings, progressFn ProgressFunc) (*Result, error) {
	runID := uuid.NewString()[:8]
	log := logger.New("engine").With().Str("run", runID).Logger()
	startTime := time.Now()

	if s.SHA256 != "" {
		// A malformed expected digest can never match; fail before any
		// bytes are fetched.
		if err := verify.ValidateExpected("sha256", s.SHA256); err != nil {
			return nil, err
		}
	}

	c := client.New(client.Config{
		Timeout:   s.Timeout,
		UserAgent: s.UserAgent,
		Headers:   s.Headers,
	})

	res, err := probe.New(c, config.MaxRedirects).Probe(ctx, s.URL)
	if err != nil {
		return nil, fmt.Errorf("probe failed: %w", err)
	}
	outputPath := s.OutputPath
	if outputPath == "" {
		outputPath = deriveOutputPath(res.FinalURL)
	}
	log.Info().Str("url", res.FinalURL).Int64("size", res.Size).
		Bool("acceptRanges", res.AcceptRanges).Str("output", outputPath).Msg("Resource discovered")

	result := &Result{Resource: res, OutputPath: outputPath, Size: res.Size}

	// Conservative gate: only a literal Accept-Ranges of "bytes" plus a
	// known size permits segmented download. Size alone proves nothing
	// about range support.
	if !res.AcceptRanges || res.Size <= 0 {
		log.Info().Msg("Server does not advertise ranges or content length, performing single-request download")
		if err := runSingle(ctx, c, res, outputPath, s, progressFn); err != nil {
			return nil, err
		}
		if info, err := os.Stat(outputPath); err == nil {
			result.Size = info.Size()
		}
		result.Elapsed = time.Since(startTime)
		return result, nil
	}

	p := plan.Build(res.Size, s.Workers, s.ChunkSizeMB)
	result.Parts = len(p.Segments)
	result.ChunkSize = p.ChunkSize
	result.Workers = p.Workers
	result.Segmented = true
	log.Info().Int("parts", len(p.Segments)).Int64("chunk", p.ChunkSize).
		Int("workers", p.Workers).Msg("Planned segments")

	if err := bootstrapManifest(res, outputPath, p, s, log); err != nil {
		return nil, err
	}

	progressCh, progressDone := startProgress(res.Size, progressFn)
	fetchErr := fetch.Run(ctx, c, res.FinalURL, p, outputPath, fetch.Options{
		MaxRetries: s.MaxRetries,
		RetryDelay: s.RetryDelay,
		BufferSize: config.FetchBufferSize,
		Resume:     !s.NoResume,
	}, progressCh)
	close(progressCh)
	<-progressDone
	if fetchErr != nil {
		if ctx.Err() != nil {
			log.Warn().Msg("Interrupted, keeping partial parts for resume")
			return nil, fmt.Errorf("%w: %v", ErrInterrupted, ctx.Err())
		}
		return nil, fetchErr
	}

	if err := assemble.CheckParts(p.Segments, outputPath); err != nil {
		return nil, err
	}
	if err := assemble.Concat(outputPath, len(p.Segments), outputPath, config.AssembleBufferSize); err != nil {
		return nil, err
	}
	if err := verify.Size(outputPath, res.Size); err != nil {
		return nil, err
	}
	if s.SHA256 != "" {
		if err := verify.Checksum(outputPath, "sha256", s.SHA256, config.HashBufferSize); err != nil {
			return nil, err
		}
	}

	cleanup(outputPath, len(p.Segments), s.KeepParts)
	result.Elapsed = time.Since(startTime)
	log.Info().Int64("size", res.Size).Dur("elapsed", result.Elapsed).Msg("Download complete")
	return result, nil
}

func runSingle(ctx context.Context, c *client.Client, res *probe.Resource, outputPath string, s config.Settings, progressFn ProgressFunc) error {
	progressCh, progressDone := startProgress(res.Size, progressFn)
	err := fetch.SingleDownload(ctx, c, res.FinalURL, outputPath, fetch.Options{
		MaxRetries: s.MaxRetries,
		RetryDelay: s.SingleRetryDelay,
		BufferSize: config.FetchBufferSize,
	}, progressCh)
	close(progressCh)
	<-progressDone
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrInterrupted, ctx.Err())
		}
		return err
	}
	if s.SHA256 != "" {
		if err := verify.Checksum(outputPath, "sha256", s.SHA256, config.HashBufferSize); err != nil {
			return err
		}
	}
	return nil
}

// bootstrapManifest decides whether the stored manifest can be
// trusted. A rebuild also drops stale part files: bytes fetched under
// a different identity must never be merged into this run.
func bootstrapManifest(res *probe.Resource, outputPath string, p plan.Plan, s config.Settings, log zerolog.Logger) error {
	manifestPath := manifest.Path(outputPath)
	var m *manifest.Manifest
	if !s.NoResume {
		m = manifest.Load(manifestPath)
	}
	decision := manifest.Evaluate(m, res)
	if decision == manifest.Reuse && (m.NumParts != len(p.Segments) || m.ChunkSize != p.ChunkSize) {
		// Same resource but a different segmentation; part offsets
		// from the old layout cannot be reused.
		decision = manifest.Rebuild
	}
	log.Debug().Str("decision", decision.String()).Msg("Evaluated resume manifest")
	if decision == manifest.Reuse {
		return nil
	}
	if decision == manifest.Rebuild {
		for i := 1; i <= m.NumParts; i++ {
			os.Remove(plan.PartPath(outputPath, i))
		}
	}
	fresh := &manifest.Manifest{
		URL:          res.FinalURL,
		Output:       outputPath,
		Size:         res.Size,
		AcceptRanges: res.AcceptRanges,
		ETag:         res.ETag,
		LastModified: res.LastModified,
		NumParts:     len(p.Segments),
		ChunkSize:    p.ChunkSize,
	}
	if err := fresh.Write(manifestPath); err != nil {
		return err
	}
	return nil
}

// startProgress drains per-read byte counts and reports a running
// total on a short tick, so fetchers never block on the reporter.
func startProgress(total int64, progressFn ProgressFunc) (chan int64, <-chan struct{}) {
	progressCh := make(chan int64, 100)
	done := make(chan struct{})
	go func() {
		defer close(done)
		var downloaded int64
		var lastReported int64
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case n, ok := <-progressCh:
				if !ok {
					if progressFn != nil {
						progressFn(downloaded, total)
					}
					return
				}
				downloaded += n
			case <-ticker.C:
				if downloaded > lastReported {
					if progressFn != nil {
						progressFn(downloaded, total)
					}
					lastReported = downloaded
				}
			}
		}
	}()
	return progressCh, done
}

func cleanup(outputPath string, numParts int, keepParts bool) {
	manifest.Clear(manifest.Path(outputPath))
	if keepParts {
		return
	}
	for i := 1; i <= numParts; i++ {
		os.Remove(plan.PartPath(outputPath, i))
	}
}

// deriveOutputPath names the artifact after the final URL's basename.
func deriveOutputPath(finalURL string) string {
	if parsed, err := url.Parse(finalURL); err == nil {
		if base := path.Base(parsed.Path); base != "" && base != "." && base != "/" {
			return base
		}
	}
	return "download.bin"
}
