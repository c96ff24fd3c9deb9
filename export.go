package clipper

import (
	"context"
	"errors"
)

// Status is the terminal outcome of a run.
type Status int

const (
	StatusSuccess Status = iota
	StatusCancelled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TargetResult reports one output.
type TargetResult struct {
	ID   string
	Path string
	Err  error // Setup or finalise failure attributed to this output
}

// Result is the outcome of Export.
type Result struct {
	Status  Status
	Err     error // Failure reason, nil unless Status is StatusFailed
	Targets []TargetResult
}

// Export runs Build, Run and Finish for one input and releases every context
// on all paths. Outputs of a cancelled or failed run are incomplete and should
// be deleted by the caller. A run in which every target failed its setup is
// reported as failed.
func Export(ctx context.Context, backend Backend, input string, clips []*ClipSpec, opts ...Option) Result {
	s := NewScheduler(backend, opts...)
	defer s.Close()

	if err := s.Build(input, clips); err != nil {
		s.log.Error().Err(err).Str("input", input).Msg("build failed")
		return s.result(StatusFailed, err)
	}
	if len(s.live()) == 0 {
		return s.result(StatusFailed, errors.New("no output could be set up"))
	}
	if err := s.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.log.Warn().Str("input", input).Msg("run cancelled")
			return s.result(StatusCancelled, nil)
		}
		s.log.Error().Err(err).Str("input", input).Msg("run aborted")
		return s.result(StatusFailed, err)
	}
	if err := s.Finish(); err != nil && len(s.live()) == 0 {
		return s.result(StatusFailed, err)
	}
	return s.result(StatusSuccess, nil)
}

func (s *Scheduler) result(status Status, err error) Result {
	r := Result{Status: status, Err: err}
	for _, t := range s.targets {
		r.Targets = append(r.Targets, TargetResult{ID: t.ID, Path: t.Path(), Err: t.Err()})
	}
	return r
}
