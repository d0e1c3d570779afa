// Package txlog implements the append-only, hash-chained journal of calls
// applied to the social ledger.
//
// The chain begins with a well-known genesis entry whose Hash equals
// GenesisHash (64 hex zeros). Every subsequent entry stores its call payload,
// the Keccak-256 of that payload, and the hash of its predecessor, so any
// tampering is detectable via Verify. Replaying entries 1..Len-1 in order
// reproduces the ledger state.
//
// Three implementations of the Log interface are provided:
//   - MemoryLog: in-process, for testing and development.
//   - BadgerLog: embedded and durable, for single-node deployments.
//   - PostgresLog: durable and shared, for production use.
package txlog
