// Package memkv is a sharded, thread-safe in-memory key/value store with
// per-key TTL. The mesh keeps its path table and link table in it.
//
// Properties:
//   - sharded map guarded by RW mutexes (256 shards by default)
//   - TTL with lazy expiry on read and a background expirer driven by a heap
//   - values are copied on Set and Get
//   - lock-free counters for keys, bytes, hits and expiries
//   - optional cap on total value bytes (Options.MaxBytes)
package memkv
