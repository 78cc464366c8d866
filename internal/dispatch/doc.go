// Package dispatch implements the Dispatch Registry.
//
// The Dispatch Registry:
//   - Holds the set of subscribers interested in inbound stream messages
//   - Delivers each message to every subscriber exactly once, synchronously
//   - Isolates subscribers from each other (a panicking handler is recovered)
//   - Uses snapshot semantics: subscribers added mid-dispatch miss that message
//
// Subscribers never see the Connection Manager; they survive reconnects.
package dispatch
