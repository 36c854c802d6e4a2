package fetch

import (
	"context"
	"sync"

	"splitfetch/internal/client"
	"splitfetch/internal/logger"
	"splitfetch/internal/plan"
)

// Run fans the plan's segments out over a fixed pool of workers. The
// first fetcher failure cancels the remaining workers and is the error
// returned; part files, complete or partial, are left on disk either
// way so a later run can resume them.
func Run(ctx context.Context, c *client.Client, url string, p plan.Plan, outputPath string, opts Options, progressCh chan<- int64) error {
	log := logger.New("pool")
	poolCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan plan.Segment)
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)

	for i := 0; i < p.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for seg := range jobs {
				err := FetchPart(poolCtx, c, url, seg, seg.PartPath(outputPath), opts, progressCh)
				if err != nil {
					errOnce.Do(func() {
						firstErr = err
						cancel()
					})
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, seg := range p.Segments {
			select {
			case jobs <- seg:
			case <-poolCtx.Done():
				return
			}
		}
	}()

	wg.Wait()

	if err := ctx.Err(); err != nil {
		// External cancellation outranks whatever error the cancel
		// provoked in the workers.
		log.Debug().Msg("Fetch stage cancelled, keeping partial parts for resume")
		return err
	}
	return firstErr
}
