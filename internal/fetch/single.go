package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"splitfetch/internal/client"
	"splitfetch/internal/logger"
)

// SingleDownload streams the whole resource in one request, used when
// the server advertises neither range support nor a usable size. Each
// attempt restarts from scratch; no part files or manifest exist on
// this path.
func SingleDownload(ctx context.Context, c *client.Client, url, outputPath string, opts Options, progressCh chan<- int64) error {
	log := logger.New("fetch")
	var lastErr error
	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 1 {
			log.Debug().Int("attempt", attempt).Int("maxRetries", opts.MaxRetries).Msg("Retrying single-stream download")
			select {
			case <-time.After(time.Duration(attempt-1) * opts.RetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err := singleAttempt(ctx, c, url, outputPath, opts, progressCh)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Debug().Err(err).Int("attempt", attempt).Msg("Single-stream attempt failed")
		lastErr = err
	}
	return fmt.Errorf("download failed after %d attempts: %w", opts.MaxRetries, lastErr)
}

func singleAttempt(ctx context.Context, c *client.Client, url, outputPath string, opts Options, progressCh chan<- int64) error {
	outFile, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("error creating output file %s: %w", outputPath, err)
	}
	defer outFile.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("error creating GET request: %w", err)
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return &statusError{code: resp.StatusCode, reason: http.StatusText(resp.StatusCode)}
	}

	buffer := make([]byte, opts.BufferSize)
	for {
		bytesRead, readErr := resp.Body.Read(buffer)
		if bytesRead > 0 {
			if _, writeErr := outFile.Write(buffer[:bytesRead]); writeErr != nil {
				return fmt.Errorf("error writing output file: %w", writeErr)
			}
			report(progressCh, int64(bytesRead))
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return readErr
		}
	}
	return nil
}
