// Package license implements the license authority: the lifecycle of a
// license record from creation through activation, verification, revocation,
// extension, reset, unbinding, and deletion.
//
// # Binding protocol
//
// A license is created unbound. The first successful activation binds it to
// the activating machine's fingerprint; the binding is one-way sticky. The
// same fingerprint re-activating is an idempotent success, any other
// fingerprint fails with KindAlreadyBound. The bind itself is a single
// conditional update at the store, so two concurrent activations with
// different fingerprints resolve to exactly one winner.
//
// # Authoritative clock
//
// Expiration comparisons never trust a client clock. The Clock walks a
// ranked chain of time sources: the database's own calendar date, the
// creation timestamp of the newest stored record, and (only when explicitly
// allowed by configuration) the local clock. With the local fallback
// disabled, exhausting the chain is an error and verification fails closed.
//
// # Durations
//
// All duration arithmetic uses a fixed 30-day month. This is deliberately
// not calendar-accurate: expirations computed by earlier releases used the
// same approximation, and existing records must keep verifying identically.
package license
