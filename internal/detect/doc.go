// Package detect turns per-frame object detector output into the current
// placement candidate.
//
// A Runner pulls frames from the AR session and submits them to a Detector with
// at most one inference in flight; frames that arrive while an inference is
// running are dropped. Completed results go through the Selector, which keeps
// the current Candidate as an immutable snapshot swapped atomically, so a tap
// handler on another goroutine never observes a half-updated label/box pair.
//
// Selection rules:
//
//   - Only the top-ranked label of each detection is considered.
//   - A detection qualifies when that label's confidence is strictly above the
//     threshold (0.9 by default).
//   - With the "last" policy the last qualifying detection of the frame wins;
//     with "highest" the most confident one does.
//   - A frame with no qualifying detection leaves the previous Candidate in place.
package detect
