package clipper

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// JobResult pairs a job's input with its export outcome.
type JobResult struct {
	Input string
	Result
}

// RunJobs exports every job with at most limit running at once. Each job gets
// its own Scheduler, so inputs never share decoder or output state. The
// progress callback, if any, is serialized across jobs. Results are returned
// in job order.
func RunJobs(ctx context.Context, backend Backend, jobs []Job, limit int, opts ...Option) []JobResult {
	o := applyOptions(opts)
	if o.progress != nil {
		var mu sync.Mutex
		fn := o.progress
		opts = append(opts, WithProgress(func(p Progress) {
			mu.Lock()
			defer mu.Unlock()
			fn(p)
		}))
	}

	results := make([]JobResult, len(jobs))
	var g errgroup.Group
	g.SetLimit(max(limit, 1))
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			log := o.log.With().Str("input", job.Input).Int("job", i).Logger()
			log.Info().Int("clips", len(job.Clips)).Msg("job started")
			jobOpts := append(append([]Option(nil), opts...), WithLogger(log))
			res := Export(ctx, backend, job.Input, job.Clips, jobOpts...)
			log.Info().Stringer("status", res.Status).Msg("job finished")
			results[i] = JobResult{Input: job.Input, Result: res}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
