// Package ledger implements the durable, hash-chained audit log of gate
// decisions.
//
// The ledger is append-only: one canonical JSON record per line, each entry
// carrying the previous entry's hash and its own hash over a deterministic
// encoding of its fields. Any retroactive edit breaks the chain and is
// surfaced by Verify, which replays the file from the genesis sentinel and
// reports the first index at which recomputation disagrees. An empty or
// missing ledger is a distinct "no chain yet" state, not a verification
// failure.
//
// Appends are serialized by a mutex since the chain is a total order. The
// ledger never repairs a broken chain; corruption is reported, not healed.
package ledger
