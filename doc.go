// Package codec2 provides a media-codec session controller: it drives a
// pluggable codec component through its lifecycle and feeds completed
// work back to a buffer-channel collaborator.
//
// Key pieces include:
//   - Codec, the per-instance session state machine with asynchronous
//     Initiate/Signal operations and owner callbacks
//   - Component, ComponentListener and ComponentStore, the boundary a
//     codec implementation plugs into
//   - BufferChannel, the boundary buffer plumbing plugs into
//   - Registry, a named component store, and SoftComponent, a pure-Go
//     component driven by a process function
//   - MediaFormat, the opaque key/value format model
//   - DetectMime, bitstream sniffing for picking a component when the
//     caller only has raw bytes
//   - WorkPacketizer, which turns completed encoder work into RTP
//     packets
//
// # Architecture
//
//	owner -> Codec.Initiate*/Signal* -> serialized command queue -> Component
//	Component -> listener -> drain queue -> BufferChannel.OnWorkDone
//
// Every lifecycle operation returns immediately and reports its result
// through the owner's CallbackReceiver. One command runs at a time per
// session, so operation effects are observed in submission order; only
// release bypasses the queue so teardown cannot get stuck behind a
// wedged command.
//
// # Watchdog
//
// A process-wide watchdog sweeps all sessions every few seconds. Each
// queued operation carries a deadline; a session whose operation overran
// it gets a fatal error and a forced release. Deadlines are advisory,
// there is no cooperative cancellation.
package codec2
