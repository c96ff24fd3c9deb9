// Package clipper cuts many clips out of one media file in a single pass.
//
// A run takes one input and a list of ClipSpec values. Each clip becomes an
// OutputTarget with one OutputWindow per exported stream. Overlapping clips
// are grouped into batches so the input is seeked and read once per batch;
// every packet read is routed to all targets of the batch.
//
// # Architecture
//
//	Export: Build -> Run -> Finish -> Close
//	Read loop: Demuxer -> (copy) -> OutputWindow -> Muxer
//	           Demuxer -> Decoder -> VideoChain/AudioChain -> Encoder -> Muxer
//
// Copy targets forward packets with rebased timestamps. Transcode targets
// decode once per source stream and filter per window: video windows scale
// and resample the frame rate, audio windows apply per-track gain and either
// mix all tracks into one stream or keep one stream per track. Two-pass
// targets run an analysis pass and replay their batch for the final encode.
//
// # Errors
//
// Failures are reported in four categories: ErrContainerOpen and
// ErrStreamInfo fail the whole run before any output is created, ErrSetup
// disables a single target, and ErrRuntime aborts the run. ErrorPath and
// ErrorOp recover the attribution of any error.
//
// # Backends
//
// The scheduler only talks to the Backend interface. FileBackend reads and
// writes IVF (video) and Ogg Opus (audio) files and encodes with the codec
// registry: raw I420 video, PCM audio and, when libopus is found at runtime,
// Opus. Set CLIPPER_OPUS_LIB to the path of libopus to override discovery.
//
// # Build Tags
//
//   - noopus: disable the libopus binding
package clipper
