// Package anchor turns the current detection candidate into a named world
// anchor when the user taps.
//
// A placement runs through a fixed sequence of stages:
//
//	Idle → Claiming → Transforming → Locating → Creating → Done
//
// with an early exit to Aborted from any stage. The label is claimed first,
// so two concurrent taps for the same label can never both create an anchor.
// A claim is kept when a later stage fails unless the controller is
// configured to release it on a missing surface.
package anchor
