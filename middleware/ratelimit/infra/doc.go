// Package infra contains the concrete implementations of the domain contracts.
//
//   - MemoryWindow: per-key fixed windows kept in a ttlcache with idle eviction
//   - RedisWindow: fixed windows shared by every gateway replica (INCR + PEXPIRE script)
//   - TokenBucket: per-key token buckets on golang.org/x/time/rate, with a janitor
//   - ChanPool: channel semaphore for the concurrency limit
//   - MemoryStatsStore, RedisStatsStore, TeeStats: decision statistics
package infra
