//go:build !(darwin || linux) || noopus

package clipper

// IsOpusAvailable reports whether libopus could be loaded. Opus is not
// compiled into this build.
func IsOpusAvailable() bool { return false }

// OpusVersion returns "" when Opus is unavailable.
func OpusVersion() string { return "" }
