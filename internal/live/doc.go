// Package live runs the continuous detection loop over a frame source.
//
// A Poller grabs a frame on every tick, synthesizes a detection result for
// the frame's dimensions, draws the overlay onto a copy of the frame and
// hands the resulting Frame to a sink. The tick interval is taken from the
// history settings when the poller starts: one second in real-time mode,
// three seconds otherwise. The confidence threshold and auto-save flag are
// read again on every tick.
//
// # Overlapping Ticks
//
// Each tick runs in its own goroutine, so a slow synthesis (up to 1.5s of
// simulated latency) can still be in flight when the next tick fires.
// Every tick takes a sequence number when it starts. A tick that finishes
// after a newer one has already been delivered is dropped and counted as
// stale, so display state never moves backwards.
//
// # Cancellation
//
// Stop cancels the context shared by all in-flight ticks and waits for them
// to return. Cancelled ticks deliver nothing.
package live
