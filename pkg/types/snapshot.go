package types

// Snapshot delivery rules, as guaranteed by the server:
//   - a (re)joining connection always receives a full Snapshot before any
//     Delta, so deltas never apply to a missing or stale base state
//   - Delta.seq is strictly increasing per match; clients that observe a
//     gap send RequestSnapshot instead of guessing
//   - the snapshot sent on reconnect is built from the authoritative
//     store, which is the only mutated copy throughout a pause
