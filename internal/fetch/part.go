// Package fetch downloads byte-range segments concurrently, each into
// its own part file, with per-segment retry and append-resume.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"splitfetch/internal/client"
	"splitfetch/internal/logger"
	"splitfetch/internal/plan"
)

// Options configures segment fetching.
type Options struct {
	MaxRetries int
	RetryDelay time.Duration
	BufferSize int
	Resume     bool
}

// SegmentError reports a segment whose retries were exhausted. Status
// and Reason carry the last HTTP response when the failure was a bad
// status rather than a transport error.
type SegmentError struct {
	Index    int
	Attempts int
	Status   int
	Reason   string
	Err      error
}

func (e *SegmentError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("segment %d failed after %d attempts: HTTP %d %s", e.Index, e.Attempts, e.Status, e.Reason)
	}
	return fmt.Sprintf("segment %d failed after %d attempts: %v", e.Index, e.Attempts, e.Err)
}

func (e *SegmentError) Unwrap() error {
	return e.Err
}

// statusError is a single attempt's non-2xx/206 response.
type statusError struct {
	code   int
	reason string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.code, e.reason)
}

// FetchPart downloads one segment into partPath. When resuming, bytes
// already on disk shift the effective start of the range; a part that
// already holds its full segment makes no network call at all.
func FetchPart(ctx context.Context, c *client.Client, url string, seg plan.Segment, partPath string, opts Options, progressCh chan<- int64) error {
	log := logger.New("fetch").With().Int("segment", seg.Index).Logger()

	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 1 {
			log.Debug().Int("attempt", attempt).Int("maxRetries", opts.MaxRetries).Msg("Retrying segment")
			select {
			case <-time.After(time.Duration(attempt-1) * opts.RetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err := fetchAttempt(ctx, c, url, seg, partPath, opts, progressCh)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Debug().Err(err).Int("attempt", attempt).Msg("Segment attempt failed")
		if attempt == opts.MaxRetries {
			segErr := &SegmentError{Index: seg.Index, Attempts: attempt, Err: err}
			var se *statusError
			if errors.As(err, &se) {
				segErr.Status = se.code
				segErr.Reason = se.reason
			}
			return segErr
		}
	}
	return nil
}

// fetchAttempt performs one ranged request for whatever the part file
// still needs. The on-disk length is re-read on every attempt so a
// partially written attempt resumes instead of corrupting the file.
func fetchAttempt(ctx context.Context, c *client.Client, url string, seg plan.Segment, partPath string, opts Options, progressCh chan<- int64) error {
	effectiveStart := seg.Start
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if opts.Resume {
		if info, err := os.Stat(partPath); err == nil && info.Size() > 0 {
			effectiveStart = seg.Start + info.Size()
			if effectiveStart > seg.End+1 {
				effectiveStart = seg.End + 1
			}
			flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
		}
	}
	if effectiveStart > seg.End {
		// Segment already complete on disk.
		return nil
	}

	partFile, err := os.OpenFile(partPath, flags, 0644)
	if err != nil {
		return fmt.Errorf("error opening part file %s: %w", partPath, err)
	}
	defer partFile.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("error creating range request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", effectiveStart, seg.End))
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
			if _, writeErr := partFile.Write(buffer[:bytesRead]); writeErr != nil {
				return fmt.Errorf("error writing part file %s: %w", partPath, writeErr)
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

func report(progressCh chan<- int64, n int64) {
	if progressCh != nil {
		progressCh <- n
	}
}
