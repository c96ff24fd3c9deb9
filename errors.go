package clipper

import (
	"github.com/ansel1/merry/v2"
)

// Error categories. Backend errors are always wrapped in one of these before
// they reach the caller.
var (
	// ErrContainerOpen means the input container could not be opened.
	ErrContainerOpen = merry.Sentinel("cannot open input container")
	// ErrStreamInfo means stream metadata could not be resolved.
	ErrStreamInfo = merry.Sentinel("cannot resolve stream info")
	// ErrSetup marks a failure to build, open or finalise one output target.
	// It only affects that target.
	ErrSetup = merry.Sentinel("output setup failed")
	// ErrRuntime marks a decode, filter, encode or write failure inside the
	// read loop. It aborts the whole run.
	ErrRuntime = merry.Sentinel("media processing failed")

	ErrInvalidGraph         = merry.Sentinel("invalid filter graph")
	ErrUnsupportedCodec     = merry.Sentinel("codec not supported")
	ErrUnsupportedContainer = merry.Sentinel("container not supported")
	ErrNoStreams            = merry.Sentinel("no stream matches the export mode")
)

type errKey int

const (
	errKeyPath errKey = iota
	errKeyOp
)

// setupError attributes a backend failure to the output file at path.
func setupError(path, op string, cause error) error {
	return merry.Wrap(ErrSetup,
		merry.WithValue(errKeyPath, path),
		merry.WithValue(errKeyOp, op),
		merry.WithCause(cause),
		merry.WithMessagef("%s %s: %v", op, path, cause),
	)
}

// runtimeError translates a backend failure inside the read loop.
func runtimeError(path, op string, cause error) error {
	return merry.Wrap(ErrRuntime,
		merry.WithValue(errKeyPath, path),
		merry.WithValue(errKeyOp, op),
		merry.WithCause(cause),
		merry.WithMessagef("%s %s: %v", op, path, cause),
	)
}

func inputError(sentinel error, path string, cause error) error {
	return merry.Wrap(sentinel,
		merry.WithValue(errKeyPath, path),
		merry.WithCause(cause),
		merry.WithMessagef("%v %s: %v", sentinel, path, cause),
	)
}

// ErrorPath returns the file path an error is attributed to, if any.
func ErrorPath(err error) string {
	p, _ := merry.Value(err, errKeyPath).(string)
	return p
}

// ErrorOp returns the failed operation ("open", "encode", ...), if recorded.
func ErrorOp(err error) string {
	op, _ := merry.Value(err, errKeyOp).(string)
	return op
}
