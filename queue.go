package clipper

import "io"

// outputQueue buffers codec output between Send and Receive calls.
type outputQueue[T any] struct {
	items    []T
	draining bool
}

func (q *outputQueue[T]) push(v T) { q.items = append(q.items, v) }

// pop returns ErrAgain when empty and io.EOF when empty and draining.
func (q *outputQueue[T]) pop() (T, error) {
	var zero T
	if len(q.items) == 0 {
		if q.draining {
			return zero, io.EOF
		}
		return zero, ErrAgain
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return v, nil
}

func (q *outputQueue[T]) reset() {
	q.items = nil
	q.draining = false
}
