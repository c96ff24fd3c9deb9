package clipper

import (
	"cmp"
	"slices"
	"time"
)

// Batch is a group of targets whose windows overlap, served by one seek and
// one read pass.
type Batch struct {
	Start   time.Duration
	End     time.Duration // Latest end among the members
	Targets []*OutputTarget
}

// planBatches sorts targets by start and merges a target into the current
// batch while its start is not after the batch end.
func planBatches(targets []*OutputTarget) []Batch {
	sorted := slices.Clone(targets)
	slices.SortStableFunc(sorted, func(a, b *OutputTarget) int {
		return cmp.Compare(a.clip.Start, b.clip.Start)
	})

	var batches []Batch
	for _, t := range sorted {
		if n := len(batches); n > 0 && t.clip.Start <= batches[n-1].End {
			b := &batches[n-1]
			b.Targets = append(b.Targets, t)
			b.End = max(b.End, t.clip.End)
			continue
		}
		batches = append(batches, Batch{Start: t.clip.Start, End: t.clip.End, Targets: []*OutputTarget{t}})
	}
	return batches
}
